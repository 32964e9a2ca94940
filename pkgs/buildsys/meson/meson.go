// Package meson cross-compiles Meson projects.
package meson

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/goplus/archbuild/pkgs/arch"
	"github.com/goplus/archbuild/pkgs/buildsys"
	"github.com/goplus/archbuild/pkgs/runner"
)

// CrossFileName is the name of the generated cross file inside an
// architecture's build directory.
const CrossFileName = "meson-cross.ini"

var crossTmpl = template.Must(template.New("cross").Parse(`[binaries]
c = '{{.CC}}'
cpp = '{{.CXX}}'
ar = '{{.AR}}'
strip = '{{.Strip}}'
pkg-config = 'pkg-config'

[host_machine]
system = 'android'
cpu_family = '{{.CPUFamily}}'
cpu = '{{.CPU}}'
endian = 'little'
`))

type crossFile struct {
	once sync.Once
	path string
	err  error
}

// Meson implements buildsys.Adapter. Cross files are written once per
// architecture and reused by every library built with the same adapter.
type Meson struct {
	runner runner.Runner
	// crossDir returns the directory the cross file of id is written to.
	crossDir func(id arch.ID) string

	mu    sync.Mutex
	cross map[arch.ID]*crossFile
}

var _ buildsys.Adapter = (*Meson)(nil)

// New returns a Meson adapter writing cross files below crossDir(id).
func New(r runner.Runner, crossDir func(id arch.ID) string) *Meson {
	return &Meson{runner: r, crossDir: crossDir, cross: make(map[arch.ID]*crossFile)}
}

// RenderCrossFile returns the cross file contents for t.
func RenderCrossFile(t *arch.Target) (string, error) {
	var buf bytes.Buffer
	err := crossTmpl.Execute(&buf, struct {
		CC, CXX, AR, Strip string
		CPUFamily, CPU     string
	}{
		CC:        t.CC,
		CXX:       t.CXX,
		AR:        t.Toolchain.AR(),
		Strip:     t.Toolchain.Strip(),
		CPUFamily: t.ID.MesonCPUFamily(),
		CPU:       t.ID.MesonCPU(),
	})
	return buf.String(), err
}

// CrossFile returns the path of t's cross file, generating it on first use.
func (m *Meson) CrossFile(t *arch.Target) (string, error) {
	m.mu.Lock()
	cf, ok := m.cross[t.ID]
	if !ok {
		cf = &crossFile{}
		m.cross[t.ID] = cf
	}
	m.mu.Unlock()

	cf.once.Do(func() {
		dir := m.crossDir(t.ID)
		content, err := RenderCrossFile(t)
		if err != nil {
			cf.err = err
			return
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			cf.err = err
			return
		}
		path := filepath.Join(dir, CrossFileName)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			cf.err = err
			return
		}
		cf.path = path
	})
	return cf.path, cf.err
}

// array renders a meson array literal.
func array(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + strings.ReplaceAll(v, "'", `\'`) + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func buildType(name string) string {
	switch name {
	case "Debug":
		return "debug"
	case "RelWithDebInfo":
		return "debugoptimized"
	case "MinSizeRel":
		return "minsize"
	}
	return "release"
}

// SetupArgs returns the argv of the setup phase.
func (m *Meson) SetupArgs(req *buildsys.Request, crossFile string) []string {
	t := req.Target
	snap := t.Snapshot()
	library := "shared"
	if req.Static {
		library = "static"
	}
	args := []string{
		"meson", "setup", req.BuildDir, req.SourceDir,
		"--cross-file", crossFile,
		"--prefix", req.InstallDir,
		"--libdir", "lib",
		"--buildtype", buildType(req.BuildType),
		"--default-library", library,
		"-Db_pie=true",
		"-Dc_args=" + array(append(append([]string{}, t.BaseCFlags...), snap.CFlags...)),
		"-Dc_link_args=" + array(append(append([]string{}, t.BaseLDFlags...), snap.LDFlags...)),
	}
	if paths := append(append([]string{}, req.PkgConfigPath...), snap.PkgConfigPath...); len(paths) > 0 {
		args = append(args, "-Dpkg_config_path="+strings.Join(paths, ","))
	}
	return append(args, req.Args...)
}

func (m *Meson) Configure(ctx context.Context, req *buildsys.Request) error {
	crossFile, err := m.CrossFile(req.Target)
	if err != nil {
		return &buildsys.PhaseError{
			Phase: buildsys.PhaseConfigure, Library: req.Library, Arch: req.Target.ID, ExitCode: -1,
			Err: fmt.Errorf("write cross file: %w", err),
		}
	}
	// meson refuses to set up into an existing non-meson directory
	if err := os.MkdirAll(filepath.Dir(req.BuildDir), 0o755); err != nil {
		return &buildsys.PhaseError{Phase: buildsys.PhaseConfigure, Library: req.Library, Arch: req.Target.ID, ExitCode: -1, Err: err}
	}
	args := m.SetupArgs(req, crossFile)
	if _, err := os.Stat(filepath.Join(req.BuildDir, "meson-private")); err == nil {
		args = append(args[:3:3], append([]string{"--reconfigure"}, args[3:]...)...)
	}
	return buildsys.Run(ctx, m.runner, req, buildsys.PhaseConfigure, runner.Command{
		Args: args,
		Dir:  filepath.Dir(req.BuildDir),
	})
}

func (m *Meson) Build(ctx context.Context, req *buildsys.Request) error {
	return buildsys.Run(ctx, m.runner, req, buildsys.PhaseBuild, runner.Command{
		Args: []string{"meson", "compile", "-C", req.BuildDir, "-j", buildsys.Jobs(req)},
		Dir:  req.BuildDir,
	})
}

func (m *Meson) Install(ctx context.Context, req *buildsys.Request) error {
	return buildsys.Run(ctx, m.runner, req, buildsys.PhaseInstall, runner.Command{
		Args: []string{"meson", "install", "-C", req.BuildDir},
		Dir:  req.BuildDir,
	})
}

func (m *Meson) Output(req *buildsys.Request) arch.Install {
	return buildsys.StandardOutput(req.InstallDir)
}
