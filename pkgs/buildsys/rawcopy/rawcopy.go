// Package rawcopy "installs" header-only SDKs by copying a directory from the
// source tree. Nothing is compiled.
package rawcopy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goplus/archbuild/pkgs/arch"
	"github.com/goplus/archbuild/pkgs/buildsys"
)

// Options selects what to copy.
type Options struct {
	// From is the directory to copy, relative to the source directory.
	From string
	// To is the destination, relative to <install>/include.
	To string
}

// Copy implements buildsys.Adapter.
type Copy struct {
	opts Options
}

var _ buildsys.Adapter = (*Copy)(nil)

func New(opts Options) *Copy {
	return &Copy{opts: opts}
}

// Configure checks that the directory to copy exists.
func (c *Copy) Configure(ctx context.Context, req *buildsys.Request) error {
	src := filepath.Join(req.SourceDir, c.opts.From)
	fi, err := os.Stat(src)
	if err == nil && !fi.IsDir() {
		err = fmt.Errorf("%s is not a directory", src)
	}
	if err != nil {
		return &buildsys.PhaseError{Phase: buildsys.PhaseConfigure, Library: req.Library, Arch: req.Target.ID, ExitCode: -1, Err: err}
	}
	return nil
}

func (c *Copy) Build(ctx context.Context, req *buildsys.Request) error { return nil }

// Install replaces the destination with a fresh copy of the headers.
func (c *Copy) Install(ctx context.Context, req *buildsys.Request) error {
	src := filepath.Join(req.SourceDir, c.opts.From)
	dst := filepath.Join(req.InstallDir, "include", c.opts.To)
	fail := func(err error) error {
		return &buildsys.PhaseError{Phase: buildsys.PhaseInstall, Library: req.Library, Arch: req.Target.ID, ExitCode: -1, Err: err}
	}
	if err := os.RemoveAll(dst); err != nil {
		return fail(err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fail(err)
	}
	if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
		return fail(err)
	}
	return nil
}

// Output registers only an include directory: there is nothing to link.
func (c *Copy) Output(req *buildsys.Request) arch.Install {
	return arch.Install{IncludeDir: filepath.Join(req.InstallDir, "include")}
}
