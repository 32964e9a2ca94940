package internal

import (
	"errors"
	"fmt"
	"os/exec"
	"testing"

	"github.com/goplus/archbuild/internal/hostcheck"
	"github.com/goplus/archbuild/internal/library"
	"github.com/goplus/archbuild/internal/license"
	"github.com/goplus/archbuild/pkgs/arch"
	"github.com/goplus/archbuild/pkgs/buildsys"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"ok", nil, exitOK},
		{"other", errors.New("boom"), exitFailure},
		{"usage", &usageError{errors.New("bad flag")}, exitUsage},
		{"duplicate library", &library.DuplicateError{Name: "libaom"}, exitUsage},
		{"tool", &hostcheck.ToolMissingError{Tool: "meson", Err: exec.ErrNotFound}, exitToolMissing},
		{"unsupported", &library.UnsupportedError{Name: "x264"}, exitUnsupported},
		{"license", &license.RefusedError{Obligation: license.GPL}, exitLicense},
		{"configure", &buildsys.PhaseError{Phase: buildsys.PhaseConfigure, Library: "libaom", Arch: arch.ARM64, ExitCode: 1}, exitBuildStep},
		{"fetch", &buildsys.PhaseError{Phase: buildsys.PhaseFetch, Library: "amf", Err: errors.New("timeout")}, exitBuildStep},
		{"wrapped", fmt.Errorf("run: %w", &buildsys.PhaseError{Phase: buildsys.PhaseInstall, Library: "libdav1d"}), exitBuildStep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
