package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/archbuild/pkgs/arch"
	"github.com/goplus/archbuild/pkgs/buildsys"
	"github.com/goplus/archbuild/pkgs/runner"
)

// consumer drives FFmpeg's hand written configure script. It is not an
// autoconf script: it takes --arch and --cross-prefix instead of --host.
// req.Args carries the feature and license switches.
type consumer struct {
	runner runner.Runner
}

var _ buildsys.Adapter = (*consumer)(nil)

func (c *consumer) configureArgs(req *buildsys.Request) []string {
	t := req.Target
	tc := t.Toolchain
	snap := t.Snapshot()

	args := []string{
		filepath.Join(req.SourceDir, "configure"),
		"--target-os=android",
		"--enable-cross-compile",
		"--nm=" + tc.NM(),
		"--ar=" + tc.AR(),
		"--sysroot=" + tc.Sysroot(),
		"--ranlib=" + tc.Ranlib(),
		"--strip=" + tc.Strip(),
		"--pkg-config=pkg-config",
	}
	if req.Static {
		args = append(args, "--enable-static", "--disable-shared", "--pkg-config-flags=--static")
	} else {
		args = append(args, "--disable-static", "--enable-shared")
	}
	args = append(args,
		"--arch="+t.ID.FFmpegArch(),
		"--cross-prefix="+t.ID.CrossPrefix(),
		"--cc="+t.CC,
		"--cxx="+t.CXX,
	)
	args = append(args, t.ConfigureFlags...)
	args = append(args,
		"--extra-cflags="+joinFlags(t.BaseCFlags, snap.CFlags),
		"--extra-ldflags="+joinFlags(t.BaseLDFlags, snap.LDFlags),
	)
	args = append(args, req.Args...)
	return append(args, "--prefix="+req.InstallDir)
}

func joinFlags(base, acc []string) string {
	return strings.Join(append(append([]string(nil), base...), acc...), " ")
}

func (c *consumer) env(req *buildsys.Request) map[string]string {
	snap := req.Target.Snapshot()
	return map[string]string{
		"PKG_CONFIG_PATH": runner.JoinPath("PKG_CONFIG_PATH", snap.PkgConfigPath),
	}
}

func (c *consumer) Configure(ctx context.Context, req *buildsys.Request) error {
	if err := os.MkdirAll(req.BuildDir, 0o755); err != nil {
		return &buildsys.PhaseError{Phase: buildsys.PhaseConfigure, Library: req.Library, Arch: req.Target.ID, ExitCode: -1, Err: err}
	}
	return buildsys.Run(ctx, c.runner, req, buildsys.PhaseConfigure, runner.Command{
		Args: c.configureArgs(req),
		Env:  c.env(req),
		Dir:  req.BuildDir,
	})
}

func (c *consumer) Build(ctx context.Context, req *buildsys.Request) error {
	return buildsys.Run(ctx, c.runner, req, buildsys.PhaseBuild, runner.Command{
		Args: []string{"make", "-j" + buildsys.Jobs(req)},
		Env:  c.env(req),
		Dir:  req.BuildDir,
	})
}

func (c *consumer) Install(ctx context.Context, req *buildsys.Request) error {
	return buildsys.Run(ctx, c.runner, req, buildsys.PhaseInstall, runner.Command{
		Args: []string{"make", "install"},
		Env:  c.env(req),
		Dir:  req.BuildDir,
	})
}

func (c *consumer) Output(req *buildsys.Request) arch.Install {
	return buildsys.StandardOutput(req.InstallDir)
}
