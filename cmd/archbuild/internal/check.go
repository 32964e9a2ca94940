package internal

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goplus/archbuild/internal/config"
	"github.com/goplus/archbuild/internal/hostcheck"
	"github.com/goplus/archbuild/internal/library"
	"github.com/goplus/archbuild/pkgs/runner"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the configuration, the NDK and the host tools",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	specs, err := library.Resolve(cfg.Libraries)
	if err != nil {
		return err
	}
	if err := checkNDK(cfg); err != nil {
		return &usageError{err}
	}
	tools := hostcheck.Required(specs, cfg.Versions, library.FFmpeg)
	if err := hostcheck.Check(cmd.Context(), runner.Exec{}, tools); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: NDK %s, %d libraries, tools: %v\n", cfg.NDKPath, len(specs), tools)
	return nil
}

// checkNDK verifies that the configured toolchain exists.
func checkNDK(cfg *config.Config) error {
	tc := cfg.Toolchain()
	if _, err := os.Stat(tc.Prebuilt()); err != nil {
		return fmt.Errorf("NDK toolchain for host %s not found: %w", cfg.NDKHost, err)
	}
	ids, err := cfg.ArchIDs()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := os.Stat(tc.CC(id)); err != nil {
			return fmt.Errorf("no compiler for %s at API %s: %w", id, cfg.API, err)
		}
	}
	return nil
}
