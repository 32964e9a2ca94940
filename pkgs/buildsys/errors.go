package buildsys

import (
	"errors"
	"fmt"

	"github.com/goplus/archbuild/pkgs/arch"
)

// Phase is one stage of a build step.
type Phase int

const (
	PhaseFetch Phase = iota + 1
	PhaseConfigure
	PhaseBuild
	PhaseInstall
)

func (p Phase) String() string {
	switch p {
	case PhaseFetch:
		return "fetch"
	case PhaseConfigure:
		return "configure"
	case PhaseBuild:
		return "build"
	case PhaseInstall:
		return "install"
	}
	return "unknown"
}

var (
	// ErrFetch matches failures to obtain a library's source.
	ErrFetch = errors.New("fetch failed")
	// ErrConfigure matches configure/setup failures.
	ErrConfigure = errors.New("configure failed")
	// ErrCompile matches build/compile failures.
	ErrCompile = errors.New("compile failed")
	// ErrInstall matches install failures.
	ErrInstall = errors.New("install failed")
)

var phaseErrs = map[Phase]error{
	PhaseFetch:     ErrFetch,
	PhaseConfigure: ErrConfigure,
	PhaseBuild:     ErrCompile,
	PhaseInstall:   ErrInstall,
}

// PhaseError reports which phase of which (library, architecture) unit
// failed. Use errors.Is with ErrFetch, ErrConfigure, ErrCompile or
// ErrInstall to classify it.
type PhaseError struct {
	Phase    Phase
	Library  string
	Arch     arch.ID // empty for fetch failures, which are per library
	ExitCode int
	Err      error
}

func (e *PhaseError) Error() string {
	if e.Arch == "" {
		return fmt.Sprintf("%s %s: %v", e.Phase, e.Library, e.Err)
	}
	return fmt.Sprintf("%s %s (%s): %v", e.Phase, e.Library, e.Arch, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

func (e *PhaseError) Is(target error) bool {
	return phaseErrs[e.Phase] == target
}
