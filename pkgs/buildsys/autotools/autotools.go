// Package autotools cross-compiles ./configure && make && make install
// projects.
package autotools

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/goplus/archbuild/pkgs/arch"
	"github.com/goplus/archbuild/pkgs/buildsys"
	"github.com/goplus/archbuild/pkgs/runner"
)

// Options tunes the adapter for configure scripts that are not generated by
// autoconf.
type Options struct {
	// ConfigureDir is the directory holding the configure script, relative
	// to the source directory.
	ConfigureDir string
	// StaticArgs and SharedArgs replace the default linkage switches.
	StaticArgs []string
	SharedArgs []string
}

// AutoTools implements buildsys.Adapter.
type AutoTools struct {
	runner runner.Runner
	opts   Options
}

var _ buildsys.Adapter = (*AutoTools)(nil)

func New(r runner.Runner, opts Options) *AutoTools {
	if opts.StaticArgs == nil && opts.SharedArgs == nil {
		opts.StaticArgs = []string{"--enable-static", "--disable-shared", "--with-pic"}
		opts.SharedArgs = []string{"--disable-static", "--enable-shared"}
	}
	return &AutoTools{runner: r, opts: opts}
}

// Script returns the path of the configure script.
func (a *AutoTools) Script(req *buildsys.Request) string {
	return filepath.Join(req.SourceDir, a.opts.ConfigureDir, "configure")
}

// ConfigureArgs returns the argv of the configure phase.
func (a *AutoTools) ConfigureArgs(req *buildsys.Request) []string {
	args := []string{
		a.Script(req),
		"--host=" + req.Target.ID.Triple(),
		"--prefix=" + req.InstallDir,
	}
	if req.Static {
		args = append(args, a.opts.StaticArgs...)
	} else {
		args = append(args, a.opts.SharedArgs...)
	}
	return append(args, req.Args...)
}

// Env returns the toolchain environment. The target's flag state is
// snapshotted when Env is called, so a library configured after another one
// can compile and link against it.
func (a *AutoTools) Env(req *buildsys.Request) map[string]string {
	t := req.Target
	tc := t.Toolchain
	snap := t.Snapshot()

	cflags := strings.Join(append(append([]string{}, t.BaseCFlags...), snap.CFlags...), " ")
	ldflags := strings.Join(append(append([]string{}, t.BaseLDFlags...), snap.LDFlags...), " ")
	env := map[string]string{
		"CC":       t.CC,
		"CXX":      t.CXX,
		"AR":       tc.AR(),
		"NM":       tc.NM(),
		"RANLIB":   tc.Ranlib(),
		"STRIP":    tc.Strip(),
		"CFLAGS":   cflags,
		"CXXFLAGS": cflags,
		"LDFLAGS":  ldflags,
	}
	paths := append(append([]string{}, req.PkgConfigPath...), snap.PkgConfigPath...)
	if len(paths) > 0 {
		env["PKG_CONFIG_PATH"] = runner.JoinPath("PKG_CONFIG_PATH", paths)
	}
	return env
}

// Configure runs configure in the build directory.
func (a *AutoTools) Configure(ctx context.Context, req *buildsys.Request) error {
	if err := os.MkdirAll(req.BuildDir, 0o755); err != nil {
		return &buildsys.PhaseError{Phase: buildsys.PhaseConfigure, Library: req.Library, Arch: req.Target.ID, ExitCode: -1, Err: err}
	}
	return buildsys.Run(ctx, a.runner, req, buildsys.PhaseConfigure, runner.Command{
		Args: a.ConfigureArgs(req),
		Env:  a.Env(req),
		Dir:  req.BuildDir,
	})
}

// Build runs make in the build directory.
func (a *AutoTools) Build(ctx context.Context, req *buildsys.Request) error {
	return buildsys.Run(ctx, a.runner, req, buildsys.PhaseBuild, runner.Command{
		Args: []string{"make", "-j" + buildsys.Jobs(req)},
		Env:  a.Env(req),
		Dir:  req.BuildDir,
	})
}

// Install runs make install in the build directory.
func (a *AutoTools) Install(ctx context.Context, req *buildsys.Request) error {
	return buildsys.Run(ctx, a.runner, req, buildsys.PhaseInstall, runner.Command{
		Args: []string{"make", "install"},
		Env:  a.Env(req),
		Dir:  req.BuildDir,
	})
}

func (a *AutoTools) Output(req *buildsys.Request) arch.Install {
	return buildsys.StandardOutput(req.InstallDir)
}
