package internal

import (
	"errors"

	"github.com/goplus/archbuild/internal/hostcheck"
	"github.com/goplus/archbuild/internal/library"
	"github.com/goplus/archbuild/internal/license"
	"github.com/goplus/archbuild/pkgs/buildsys"
)

// Process exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitToolMissing = 3
	exitUnsupported = 4
	exitLicense     = 5
	exitBuildStep   = 6
)

// usageError marks invalid flags or configuration.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var (
		usage   *usageError
		dup     *library.DuplicateError
		tool    *hostcheck.ToolMissingError
		unknown *library.UnsupportedError
		refused *license.RefusedError
		phase   *buildsys.PhaseError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &usage), errors.As(err, &dup):
		return exitUsage
	case errors.As(err, &tool):
		return exitToolMissing
	case errors.As(err, &unknown):
		return exitUnsupported
	case errors.As(err, &refused):
		return exitLicense
	case errors.As(err, &phase):
		return exitBuildStep
	}
	return exitFailure
}
