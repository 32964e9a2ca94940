// Package buildsys defines the uniform configure/build/install contract
// over native build backends (CMake, Meson, Autotools, plain copies).
package buildsys

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/goplus/archbuild/internal/ctxlog"
	"github.com/goplus/archbuild/pkgs/arch"
	"github.com/goplus/archbuild/pkgs/runner"
)

// Kind selects a backend. Each library is wired to exactly one Kind.
type Kind int

const (
	CMake Kind = iota + 1
	Meson
	Autotools
	Copy
)

func (k Kind) String() string {
	switch k {
	case CMake:
		return "cmake"
	case Meson:
		return "meson"
	case Autotools:
		return "autotools"
	case Copy:
		return "copy"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Tools lists the host executables a backend needs.
func (k Kind) Tools() []string {
	switch k {
	case CMake:
		return []string{"cmake"}
	case Meson:
		return []string{"meson", "ninja"}
	case Autotools:
		return []string{"make"}
	}
	return nil
}

// Request carries everything an adapter needs for one (library, architecture)
// unit. Directories are derived deterministically by the caller, so
// concurrent units never share a path.
type Request struct {
	Target  *arch.Target
	Library string

	SourceDir  string
	BuildDir   string
	InstallDir string

	// Args are backend specific extra arguments for the configure phase.
	Args []string
	// PkgConfigPath is prepended to the snapshot's search path.
	PkgConfigPath []string

	BuildType string // Release, Debug, ...
	Static    bool
	Jobs      int

	Stdout io.Writer
	Stderr io.Writer
}

// Adapter drives one backend through its three phases. A failed phase
// returns a *PhaseError.
type Adapter interface {
	Configure(ctx context.Context, req *Request) error
	Build(ctx context.Context, req *Request) error
	Install(ctx context.Context, req *Request) error

	// Output reports where the artifacts of a successful Install live.
	Output(req *Request) arch.Install
}

// StandardOutput returns the conventional include/, lib/ and lib/pkgconfig/
// layout under installDir.
func StandardOutput(installDir string) arch.Install {
	return arch.Install{
		IncludeDir:   filepath.Join(installDir, "include"),
		LibDir:       filepath.Join(installDir, "lib"),
		PkgConfigDir: filepath.Join(installDir, "lib", "pkgconfig"),
	}
}

// Jobs returns the -j value for req.
func Jobs(req *Request) string {
	if req.Jobs < 1 {
		return "1"
	}
	return strconv.Itoa(req.Jobs)
}

// Run executes cmd on behalf of phase and converts failures into a
// *PhaseError. Output goes to the request's writers unless cmd sets its own.
func Run(ctx context.Context, r runner.Runner, req *Request, phase Phase, cmd runner.Command) error {
	if cmd.Stdout == nil {
		cmd.Stdout = req.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = req.Stderr
	}
	ctxlog.FromContext(ctx).Debug("exec", "phase", phase.String(), "cmd", cmd.String(), "dir", cmd.Dir)

	code, err := r.Run(ctx, cmd)
	if err == nil && code == 0 {
		return nil
	}
	if err == nil {
		err = fmt.Errorf("%s exited with status %d", filepath.Base(cmd.Args[0]), code)
	}
	return &PhaseError{
		Phase:    phase,
		Library:  req.Library,
		Arch:     req.Target.ID,
		ExitCode: code,
		Err:      err,
	}
}
