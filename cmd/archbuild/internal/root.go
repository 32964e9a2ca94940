package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goplus/archbuild/internal/config"
	"github.com/goplus/archbuild/internal/ctxlog"
	"github.com/goplus/archbuild/internal/env"
)

var (
	configFile string
	logLevel   string
	logFormat  string
	workDir    string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "archbuild",
	Short: "archbuild cross-compiles FFmpeg and its libraries for Android",
	Long: `archbuild builds a set of native libraries for every Android ABI with the
NDK toolchain and then builds FFmpeg against them, once per ABI.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger := ctxlog.New(logLevel, logFormat, cmd.ErrOrStderr())
		cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Configuration file (.yaml or .hcl)")
	pf.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	pf.StringVar(&logFormat, "log-format", "text", "Log format: text or json")
	pf.StringVarP(&workDir, "work-dir", "C", "", "Workspace directory (default: current directory)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Copy build tool output to stderr")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err}
	})
}

// loadConfig loads the configuration; override applies command specific
// flags on top of the persistent ones. The command's logger is replaced by
// one honoring the loaded log settings.
func loadConfig(cmd *cobra.Command, override func(*config.Config)) (*config.Config, error) {
	flags := rootCmd.PersistentFlags()
	cfg, err := config.Load(config.Options{
		File: configFile,
		Override: func(c *config.Config) {
			if flags.Changed("work-dir") {
				c.WorkDir = workDir
			}
			if flags.Changed("verbose") {
				c.Verbose = verbose
			}
			if flags.Changed("log-level") {
				c.LogLevel = logLevel
			}
			if flags.Changed("log-format") {
				c.LogFormat = logFormat
			}
			if override != nil {
				override(c)
			}
		},
	})
	if err != nil {
		return nil, &usageError{err}
	}
	logger := ctxlog.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
	return cfg, nil
}

// layout returns the workspace of cfg. Its root is always absolute.
func layout(cfg *config.Config) (env.Layout, error) {
	root := cfg.WorkDir
	if root == "" {
		wd, err := env.WorkDir()
		if err != nil {
			return env.Layout{}, err
		}
		root = wd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return env.Layout{}, err
	}
	return env.Layout{Root: root}, nil
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "archbuild:", err)
	}
	return exitCode(err)
}
