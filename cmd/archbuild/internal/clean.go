package internal

import (
	"github.com/spf13/cobra"

	"github.com/goplus/archbuild/internal/ctxlog"
	"github.com/goplus/archbuild/internal/lockedfile"
)

var cleanSources bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove build and install trees",
	Long: `Clean removes the build and install trees of the workspace, so the next
build starts from scratch. Fetched sources are kept unless --sources is set.`,
	Args: cobra.NoArgs,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&cleanSources, "sources", false, "Also remove fetched sources")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	l, err := layout(cfg)
	if err != nil {
		return err
	}
	unlock, err := lockedfile.MutexAt(l.LockFile()).TryLock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := l.Clean(cleanSources); err != nil {
		return err
	}
	ctxlog.FromContext(cmd.Context()).Info("workspace cleaned", "root", l.Root, "sources", cleanSources)
	return nil
}
