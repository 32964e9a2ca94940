// Package cmake cross-compiles CMake projects with the NDK toolchain file.
package cmake

import (
	"context"
	"os"
	"sort"

	"github.com/goplus/archbuild/pkgs/arch"
	"github.com/goplus/archbuild/pkgs/buildsys"
	"github.com/goplus/archbuild/pkgs/runner"
)

type defineValue struct {
	value    string
	typeName string
}

// Defines is an ordered-on-render set of -D cache entries.
type Defines map[string]defineValue

// Define adds a -D<key>:STRING=<value> entry.
func (d Defines) Define(key, value string) {
	d[key] = defineValue{value: value, typeName: "STRING"}
}

// DefineBool adds a -D<key>:BOOL=ON/OFF entry.
func (d Defines) DefineBool(key string, value bool) {
	v := "OFF"
	if value {
		v = "ON"
	}
	d[key] = defineValue{value: v, typeName: "BOOL"}
}

// Args renders the entries sorted by key.
func (d Defines) Args() []string {
	if len(d) == 0 {
		return nil
	}
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		def := d[k]
		if def.typeName != "" {
			args = append(args, "-D"+k+":"+def.typeName+"="+def.value)
			continue
		}
		args = append(args, "-D"+k+"="+def.value)
	}
	return args
}

// CMake implements buildsys.Adapter.
type CMake struct {
	runner    runner.Runner
	generator string
}

var _ buildsys.Adapter = (*CMake)(nil)

// New returns a CMake adapter. generator may be empty to use CMake's default.
func New(r runner.Runner, generator string) *CMake {
	return &CMake{runner: r, generator: generator}
}

// defines returns the cache entries every cross build gets.
func defines(req *buildsys.Request) Defines {
	t := req.Target
	tc := t.Toolchain
	d := Defines{}
	d.Define("CMAKE_TOOLCHAIN_FILE", tc.CMakeToolchainFile())
	d.Define("CMAKE_SYSTEM_NAME", "Android")
	d.Define("CMAKE_ANDROID_NDK", tc.NDK)
	d.Define("ANDROID_ABI", t.ID.AndroidABI())
	d.Define("ANDROID_PLATFORM", "android-"+tc.API)
	d.Define("CMAKE_ANDROID_ARCH_ABI", t.ID.AndroidABI())
	d.Define("CMAKE_ANDROID_API", tc.API)
	d.Define("CMAKE_INSTALL_PREFIX", req.InstallDir)
	d.Define("CMAKE_INSTALL_LIBDIR", "lib")
	d.Define("CMAKE_BUILD_TYPE", req.BuildType)
	d.DefineBool("CMAKE_POSITION_INDEPENDENT_CODE", true)
	d.DefineBool("BUILD_SHARED_LIBS", !req.Static)
	return d
}

// ConfigureArgs returns the argv of the configure phase. Library specific
// arguments come last so they can override the defaults.
func (c *CMake) ConfigureArgs(req *buildsys.Request) []string {
	args := []string{"cmake", "-S", req.SourceDir, "-B", req.BuildDir}
	if c.generator != "" {
		args = append(args, "-G", c.generator)
	}
	args = append(args, defines(req).Args()...)
	return append(args, req.Args...)
}

func (c *CMake) Configure(ctx context.Context, req *buildsys.Request) error {
	if err := os.MkdirAll(req.BuildDir, 0o755); err != nil {
		return &buildsys.PhaseError{Phase: buildsys.PhaseConfigure, Library: req.Library, Arch: req.Target.ID, ExitCode: -1, Err: err}
	}
	return buildsys.Run(ctx, c.runner, req, buildsys.PhaseConfigure, runner.Command{
		Args: c.ConfigureArgs(req),
		Env:  c.env(req),
		Dir:  req.BuildDir,
	})
}

func (c *CMake) Build(ctx context.Context, req *buildsys.Request) error {
	args := []string{"cmake", "--build", req.BuildDir, "--parallel", buildsys.Jobs(req)}
	if req.BuildType != "" {
		args = append(args, "--config", req.BuildType)
	}
	return buildsys.Run(ctx, c.runner, req, buildsys.PhaseBuild, runner.Command{
		Args: args,
		Env:  c.env(req),
		Dir:  req.BuildDir,
	})
}

func (c *CMake) Install(ctx context.Context, req *buildsys.Request) error {
	return buildsys.Run(ctx, c.runner, req, buildsys.PhaseInstall, runner.Command{
		Args: []string{"cmake", "--install", req.BuildDir, "--prefix", req.InstallDir},
		Env:  c.env(req),
		Dir:  req.BuildDir,
	})
}

func (c *CMake) Output(req *buildsys.Request) arch.Install {
	return buildsys.StandardOutput(req.InstallDir)
}

// env exposes earlier dependencies to find_package/pkg_check_modules.
func (c *CMake) env(req *buildsys.Request) map[string]string {
	snap := req.Target.Snapshot()
	paths := append(append([]string{}, req.PkgConfigPath...), snap.PkgConfigPath...)
	if len(paths) == 0 {
		return nil
	}
	return map[string]string{
		"PKG_CONFIG_PATH": runner.JoinPath("PKG_CONFIG_PATH", paths),
	}
}
