package internal

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goplus/archbuild/internal/build"
	"github.com/goplus/archbuild/internal/config"
	"github.com/goplus/archbuild/internal/ctxlog"
	"github.com/goplus/archbuild/internal/env"
	"github.com/goplus/archbuild/internal/fetch"
	"github.com/goplus/archbuild/internal/library"
	"github.com/goplus/archbuild/internal/license"
	"github.com/goplus/archbuild/internal/lockedfile"
	"github.com/goplus/archbuild/pkgs/arch"
	"github.com/goplus/archbuild/pkgs/buildsys"
	"github.com/goplus/archbuild/pkgs/runner"
)

var (
	buildArchs     []string
	buildLibs      []string
	buildVersions  map[string]string
	buildNDK       string
	buildAPI       string
	buildType      string
	buildShared    bool
	buildJobs      int
	buildParallel  int
	buildAccept    bool
	buildOutput    string
	buildSkipCheck bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the libraries and FFmpeg for every configured ABI",
	Long: `Build fetches every configured library, builds it for each ABI, and then
configures and builds FFmpeg against the installed libraries.

Libraries already installed by a previous run with the same version, build
type and linkage are not rebuilt.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	f := buildCmd.Flags()
	f.StringSliceVarP(&buildArchs, "arch", "a", nil, "Architectures to build (arm32, arm64, x86, x86_64)")
	f.StringSliceVarP(&buildLibs, "lib", "l", nil, "Libraries to build, in order")
	f.StringToStringVar(&buildVersions, "version", nil, "Override versions, e.g. libaom=3.12.0,ffmpeg=7.1")
	f.StringVar(&buildNDK, "ndk", "", "Android NDK path")
	f.StringVar(&buildAPI, "api", "", "Android API level")
	f.StringVar(&buildType, "build-type", "", "Release, Debug, RelWithDebInfo or MinSizeRel")
	f.BoolVar(&buildShared, "shared", false, "Build shared instead of static libraries")
	f.IntVarP(&buildJobs, "jobs", "j", 0, "Parallel jobs per build tool")
	f.IntVar(&buildParallel, "parallel", 0, "Build tool processes running at once (default: one per ABI)")
	f.BoolVarP(&buildAccept, "accept-license", "y", false, "Accept license upgrades without asking")
	f.StringVarP(&buildOutput, "output", "o", "", "Copy the FFmpeg installs to a directory or .zip file")
	f.BoolVar(&buildSkipCheck, "skip-host-check", false, "Do not check for host tools")
	rootCmd.AddCommand(buildCmd)
}

func buildOverrides(c *config.Config) {
	f := buildCmd.Flags()
	if f.Changed("arch") {
		c.Archs = buildArchs
	}
	if f.Changed("lib") {
		c.Libraries = buildLibs
	}
	for name, v := range buildVersions {
		c.Versions[name] = v
	}
	if f.Changed("ndk") {
		c.NDKPath = buildNDK
	}
	if f.Changed("api") {
		c.API = buildAPI
	}
	if f.Changed("build-type") {
		c.BuildType = buildType
	}
	if f.Changed("shared") {
		c.Static = !buildShared
	}
	if f.Changed("jobs") {
		c.Jobs = buildJobs
	}
	if f.Changed("parallel") {
		c.Parallel = buildParallel
	}
	if f.Changed("accept-license") {
		c.AcceptLicense = buildAccept
	}
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, buildOverrides)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	log := ctxlog.FromContext(ctx)

	l, err := layout(cfg)
	if err != nil {
		return err
	}
	// Resolve the output path before anything touches the workspace.
	if buildOutput != "" {
		if buildOutput, err = filepath.Abs(buildOutput); err != nil {
			return fmt.Errorf("failed to resolve output path: %w", err)
		}
	}

	unlock, err := lockedfile.MutexAt(l.LockFile()).TryLock()
	if err != nil {
		if errors.Is(err, lockedfile.ErrLocked) {
			return fmt.Errorf("workspace %s is used by another build", l.Root)
		}
		return err
	}
	defer unlock()

	ids, err := cfg.ArchIDs()
	if err != nil {
		return &usageError{err}
	}
	var tee io.Writer
	if cfg.Verbose {
		tee = cmd.ErrOrStderr()
	}
	b := build.New(build.Options{
		Targets:       arch.NewTargets(cfg.Toolchain(), ids),
		Libraries:     cfg.Libraries,
		Versions:      cfg.Versions,
		Static:        cfg.Static,
		BuildType:     cfg.BuildType,
		Jobs:          cfg.Jobs,
		Parallel:      cfg.Parallel,
		Layout:        l,
		Runner:        runner.Exec{},
		Fetcher:       fetch.New(cfg.FetchAttempts, cfg.Backoff()),
		License:       &license.Resolver{AutoAccept: cfg.AcceptLicense, Prompter: license.NewTeaPrompter()},
		SkipHostCheck: buildSkipCheck,
		Tee:           tee,
	})

	log.Info("starting build",
		"archs", strings.Join(cfg.Archs, ","),
		"libraries", strings.Join(cfg.Libraries, ","),
		"static", cfg.Static, "build_type", cfg.BuildType, "workspace", l.Root)

	res, err := b.Run(ctx)
	if err != nil {
		var pe *buildsys.PhaseError
		if errors.As(err, &pe) && pe.Arch != "" {
			log.Error("build step failed",
				"library", pe.Library, "arch", pe.Arch.String(), "phase", pe.Phase.String(),
				"log", filepath.Join(l.BuildDir(pe.Arch, pe.Library), "build.log"))
		}
		for _, id := range ids {
			snap := res.Snapshots[id]
			log.Debug("flags at failure", "arch", id.String(), "cflags", strings.Join(snap.CFlags, " "), "ldflags", strings.Join(snap.LDFlags, " "))
		}
		return err
	}

	for _, id := range ids {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id.AndroidABI(), l.InstallDir(id, library.FFmpeg.Name))
	}
	if buildOutput != "" {
		if err := writeOutput(l, ids, buildOutput); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		log.Info("output written", "path", buildOutput)
	}
	return nil
}

// consumerInstalls maps each ABI name to the consumer's install tree.
func consumerInstalls(l env.Layout, ids []arch.ID) map[string]string {
	dirs := make(map[string]string, len(ids))
	for _, id := range ids {
		dirs[id.AndroidABI()] = l.InstallDir(id, library.FFmpeg.Name)
	}
	return dirs
}
