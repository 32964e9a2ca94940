package build

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goplus/archbuild/internal/env"
	"github.com/goplus/archbuild/internal/hostcheck"
	"github.com/goplus/archbuild/internal/library"
	"github.com/goplus/archbuild/internal/license"
	"github.com/goplus/archbuild/pkgs/arch"
	"github.com/goplus/archbuild/pkgs/buildsys"
	"github.com/goplus/archbuild/pkgs/runner"
	"github.com/goplus/archbuild/pkgs/runner/runnertest"
)

// fakeFetcher creates the destination directory and counts calls per
// source.
type fakeFetcher struct {
	fail map[string]error

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeFetcher) Fetch(ctx context.Context, source, ref, destDir string) error {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[source]++
	f.mu.Unlock()
	if err := f.fail[source]; err != nil {
		return err
	}
	return os.MkdirAll(destDir, 0o755)
}

func (f *fakeFetcher) count(source string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[source]
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

var testTable = library.Table{
	"L1": {
		Name:           "L1",
		Kind:           buildsys.CMake,
		Source:         "https://example.com/l1.git",
		Ref:            "v{version}",
		DefaultVersion: "1.0.0",
		Feature:        "--enable-l1",
	},
	"L2": {
		Name:           "L2",
		Kind:           buildsys.Autotools,
		Source:         "https://example.com/l2.git",
		Ref:            "v{version}",
		DefaultVersion: "2.0.0",
		Feature:        "--enable-l2",
		License:        license.GPL,
	},
	"L3": {
		Name:           "L3",
		Kind:           buildsys.Meson,
		Source:         "https://example.com/l3.git",
		Ref:            "{version}",
		DefaultVersion: "3.0.0",
		Feature:        "--enable-l3",
	},
}

var testConsumer = &library.Spec{
	Name:           "app",
	Kind:           buildsys.Autotools,
	Source:         "https://example.com/app.git",
	Ref:            "n{version}",
	DefaultVersion: "1.0.0",
}

type fixture struct {
	layout  env.Layout
	rec     *runnertest.Recorder
	fetcher *fakeFetcher
	targets []*arch.Target
}

func newFixture(t *testing.T, ids ...arch.ID) *fixture {
	t.Helper()
	return &fixture{
		layout:  env.Layout{Root: t.TempDir()},
		rec:     &runnertest.Recorder{},
		fetcher: &fakeFetcher{},
		targets: arch.NewTargets(arch.Toolchain{NDK: "/ndk", Host: "linux-x86_64", API: "28"}, ids),
	}
}

func (f *fixture) builder(libs []string, mutate func(*Options)) *Builder {
	opts := Options{
		Targets:   f.targets,
		Libraries: libs,
		Table:     testTable,
		Consumer:  testConsumer,
		Static:    true,
		BuildType: "Release",
		Jobs:      2,
		Layout:    f.layout,
		Runner:    f.rec,
		Fetcher:   f.fetcher,
		License:   &license.Resolver{AutoAccept: true},
	}
	if mutate != nil {
		mutate(&opts)
	}
	return New(opts)
}

func (f *fixture) include(id arch.ID, lib string) string {
	return "-I" + buildsys.StandardOutput(f.layout.InstallDir(id, lib)).IncludeDir
}

func (f *fixture) libdir(id arch.ID, lib string) string {
	return "-L" + buildsys.StandardOutput(f.layout.InstallDir(id, lib)).LibDir
}

func (f *fixture) pcdir(id arch.ID, lib string) string {
	return buildsys.StandardOutput(f.layout.InstallDir(id, lib)).PkgConfigDir
}

// consumerConfigure returns the consumer configure call for id.
func (f *fixture) consumerConfigure(t *testing.T, id arch.ID) runnertest.Call {
	t.Helper()
	script := filepath.Join(f.layout.SourceDir("app"), "configure")
	calls := f.rec.Find(script, "--arch="+id.FFmpegArch()+" ")
	if len(calls) != 1 {
		t.Fatalf("found %d consumer configure calls for %s, want 1", len(calls), id)
	}
	return calls[0]
}

func TestScenarioTwoArchsTwoLibraries(t *testing.T) {
	f := newFixture(t, arch.ARM64, arch.X86_64)
	res, err := f.builder([]string{"L1", "L2"}, nil).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []arch.ID{arch.ARM64, arch.X86_64} {
		want := arch.Snapshot{
			CFlags:        []string{f.include(id, "L1"), f.include(id, "L2")},
			LDFlags:       []string{f.libdir(id, "L1"), f.libdir(id, "L2")},
			PkgConfigPath: []string{f.pcdir(id, "L1"), f.pcdir(id, "L2")},
		}
		if diff := cmp.Diff(want, res.Snapshots[id]); diff != "" {
			t.Errorf("%s snapshot mismatch (-want +got):\n%s", id, diff)
		}
	}

	// L2 compiles against L1 of its own architecture only.
	script := filepath.Join(f.layout.SourceDir("L2"), "configure")
	l2 := f.rec.Find(script, "--host=aarch64-linux-android")
	if len(l2) != 1 {
		t.Fatalf("L2 configure calls for arm64 = %d", len(l2))
	}
	cflags := l2[0].Env["CFLAGS"]
	if !strings.Contains(cflags, f.include(arch.ARM64, "L1")) || strings.Contains(cflags, "x86_64") {
		t.Errorf("L2 arm64 CFLAGS = %q", cflags)
	}
	if !strings.HasPrefix(l2[0].Env["PKG_CONFIG_PATH"], f.pcdir(arch.ARM64, "L1")) {
		t.Errorf("L2 arm64 PKG_CONFIG_PATH = %q", l2[0].Env["PKG_CONFIG_PATH"])
	}

	for _, id := range []arch.ID{arch.ARM64, arch.X86_64} {
		c := f.consumerConfigure(t, id)
		line := c.Line()
		wantCFlags := "--extra-cflags=-O3 -fPIC " + f.include(id, "L1") + " " + f.include(id, "L2")
		if !slices.Contains(c.Args, wantCFlags) {
			t.Errorf("%s consumer args lack %q:\n%s", id, wantCFlags, line)
		}
		wantLDFlags := "--extra-ldflags=-Wl,-z,max-page-size=16384 " + f.libdir(id, "L1") + " " + f.libdir(id, "L2")
		if !slices.Contains(c.Args, wantLDFlags) {
			t.Errorf("%s consumer args lack %q:\n%s", id, wantLDFlags, line)
		}
		if !strings.Contains(line, "--enable-l1 --enable-l2 --enable-gpl --prefix="+f.layout.InstallDir(id, "app")) {
			t.Errorf("%s consumer switches out of order:\n%s", id, line)
		}
		want := f.pcdir(id, "L1") + string(os.PathListSeparator) + f.pcdir(id, "L2")
		if !strings.HasPrefix(c.Env["PKG_CONFIG_PATH"], want) {
			t.Errorf("%s consumer PKG_CONFIG_PATH = %q", id, c.Env["PKG_CONFIG_PATH"])
		}
	}
	if got := f.rec.Find("make install"); len(got) != 4 {
		t.Errorf("make install ran %d times, want 4 (L2 and app for two archs)", len(got))
	}
	if f.fetcher.count("https://example.com/l1.git") != 1 || f.fetcher.count("https://example.com/app.git") != 1 {
		t.Errorf("fetch calls = %v", f.fetcher.calls)
	}
	if _, err := os.Stat(filepath.Join(f.layout.BuildDir(arch.ARM64, "L1"), "build.log")); err != nil {
		t.Errorf("build log: %v", err)
	}
}

func TestSingleLicenseTokenAcrossArchs(t *testing.T) {
	f := newFixture(t, arch.All...)
	res, err := f.builder([]string{"L2"}, nil).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(res.Features, []string{"--enable-l2"}) || !slices.Equal(res.LicenseFlags, []string{"--enable-gpl"}) {
		t.Fatalf("features = %v, license = %v", res.Features, res.LicenseFlags)
	}
	for _, id := range arch.All {
		line := f.consumerConfigure(t, id).Line()
		if n := strings.Count(line, "--enable-gpl"); n != 1 {
			t.Errorf("%s: --enable-gpl appears %d times", id, n)
		}
		if n := strings.Count(line, "--enable-l2"); n != 1 {
			t.Errorf("%s: --enable-l2 appears %d times", id, n)
		}
	}
}

func TestFailFast(t *testing.T) {
	f := newFixture(t, arch.ARM64, arch.X86_64)
	l2 := filepath.Join(f.layout.SourceDir("L2"), "configure")
	f.rec.Handler = func(c runner.Command) (int, error) {
		if c.Args[0] == l2 {
			return 1, nil
		}
		return 0, nil
	}
	res, err := f.builder([]string{"L1", "L2", "L3"}, nil).Run(context.Background())
	if !errors.Is(err, buildsys.ErrConfigure) {
		t.Fatalf("err = %v, want configure failure", err)
	}
	var pe *buildsys.PhaseError
	if !errors.As(err, &pe) || pe.Library != "L2" || pe.ExitCode != 1 {
		t.Fatalf("err = %#v", err)
	}

	// the failing architecture keeps what L1 registered and nothing else
	want := []string{f.include(pe.Arch, "L1")}
	if got := res.Snapshots[pe.Arch].CFlags; !slices.Equal(got, want) {
		t.Errorf("CFlags = %v, want %v", got, want)
	}
	for id, snap := range res.Snapshots {
		for _, lib := range []string{"L2", "L3"} {
			if slices.Contains(snap.CFlags, f.include(id, lib)) {
				t.Errorf("%s registered %s after a failure", id, lib)
			}
		}
	}
	if got := f.rec.Find("meson setup"); len(got) != 0 {
		t.Errorf("L3 ran after L2 failed: %v", got[0].Line())
	}
	if got := f.rec.Find(filepath.Join(f.layout.SourceDir("app"), "configure")); len(got) != 0 {
		t.Error("consumer ran after a dependency failed")
	}
	if f.fetcher.count(testConsumer.Source) != 0 {
		t.Error("consumer source fetched after a dependency failed")
	}
}

func TestFetchFailure(t *testing.T) {
	f := newFixture(t, arch.ARM64, arch.X86_64)
	f.fetcher.fail = map[string]error{"https://example.com/l1.git": errors.New("connection refused")}

	_, err := f.builder([]string{"L1", "L2"}, nil).Run(context.Background())
	var pe *buildsys.PhaseError
	if !errors.As(err, &pe) || pe.Phase != buildsys.PhaseFetch || pe.Library != "L1" || pe.Arch != "" {
		t.Fatalf("err = %v", err)
	}
	if !errors.Is(err, buildsys.ErrFetch) {
		t.Fatalf("err = %v, want fetch failure", err)
	}
	if n := f.fetcher.count("https://example.com/l1.git"); n != 1 {
		t.Errorf("L1 fetched %d times, want 1", n)
	}
	if n := f.fetcher.count("https://example.com/l2.git"); n != 0 {
		t.Errorf("L2 fetched %d times after L1 failed", n)
	}
	if got := f.rec.Find("cmake -S"); len(got) != 0 {
		t.Error("configure ran without sources")
	}
}

func TestUnknownLibraryRejectedBeforeFetch(t *testing.T) {
	f := newFixture(t, arch.ARM64)
	_, err := f.builder([]string{"L1", "x264"}, nil).Run(context.Background())
	var ue *library.UnsupportedError
	if !errors.As(err, &ue) || ue.Name != "x264" {
		t.Fatalf("err = %v, want UnsupportedError", err)
	}
	if f.fetcher.total() != 0 {
		t.Errorf("fetched %v", f.fetcher.calls)
	}
	if calls := f.rec.Calls(); len(calls) != 0 {
		t.Errorf("ran %d commands, first %q", len(calls), calls[0].Line())
	}
}

func TestMissingHostTool(t *testing.T) {
	f := newFixture(t, arch.ARM64)
	f.rec.Handler = func(c runner.Command) (int, error) {
		if c.Args[0] == "cmake" {
			return -1, exec.ErrNotFound
		}
		return 0, nil
	}
	_, err := f.builder([]string{"L1"}, nil).Run(context.Background())
	var te *hostcheck.ToolMissingError
	if !errors.As(err, &te) || te.Tool != "cmake" {
		t.Fatalf("err = %v, want missing cmake", err)
	}
	if f.fetcher.total() != 0 {
		t.Error("fetched before the host check passed")
	}

	f = newFixture(t, arch.ARM64)
	f.rec.Handler = func(c runner.Command) (int, error) {
		if c.Args[0] == "gawk" {
			return -1, exec.ErrNotFound
		}
		return 0, nil
	}
	_, err = f.builder([]string{"L1"}, nil).Run(context.Background())
	if !errors.As(err, &te) || te.Tool != "gawk" {
		t.Fatalf("err = %v, want missing gawk", err)
	}
}

func TestLicenseRefused(t *testing.T) {
	f := newFixture(t, arch.ARM64)
	res, err := f.builder([]string{"L1", "L2"}, func(o *Options) {
		o.License = &license.Resolver{}
	}).Run(context.Background())
	var re *license.RefusedError
	if !errors.As(err, &re) || re.Obligation != license.GPL {
		t.Fatalf("err = %v, want RefusedError", err)
	}
	if len(res.Snapshots[arch.ARM64].CFlags) != 2 {
		t.Errorf("libraries not registered: %v", res.Snapshots[arch.ARM64])
	}
	if f.fetcher.count(testConsumer.Source) != 0 {
		t.Error("consumer fetched after the license was refused")
	}
}

func TestRerunSkipsInstalledLibraries(t *testing.T) {
	f := newFixture(t, arch.ARM64, arch.X86_64)
	first, err := f.builder([]string{"L1", "L2"}, nil).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// a new run starts from fresh targets over the same workspace
	f2 := &fixture{
		layout:  f.layout,
		rec:     &runnertest.Recorder{},
		fetcher: &fakeFetcher{},
		targets: arch.NewTargets(f.targets[0].Toolchain, []arch.ID{arch.ARM64, arch.X86_64}),
	}
	second, err := f2.builder([]string{"L1", "L2"}, nil).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(first.Snapshots, second.Snapshots); diff != "" {
		t.Errorf("snapshots differ between runs (-first +second):\n%s", diff)
	}
	if got := f2.rec.Find("cmake -S"); len(got) != 0 {
		t.Errorf("L1 reconfigured on re-run: %s", got[0].Line())
	}
	if got := f2.rec.Find(filepath.Join(f.layout.SourceDir("L2"), "configure")); len(got) != 0 {
		t.Errorf("L2 reconfigured on re-run")
	}
	if got := f2.rec.Find(filepath.Join(f.layout.SourceDir("app"), "configure")); len(got) != 2 {
		t.Errorf("consumer configured %d times on re-run, want 2", len(got))
	}
	if !slices.Equal(first.Features, second.Features) || !slices.Equal(first.LicenseFlags, second.LicenseFlags) {
		t.Errorf("features %v/%v, license %v/%v", first.Features, second.Features, first.LicenseFlags, second.LicenseFlags)
	}

	// registering the same trees again on the same targets adds nothing
	for _, tgt := range f2.targets {
		before := tgt.Snapshot()
		tgt.RegisterInstall(buildsys.StandardOutput(f.layout.InstallDir(tgt.ID, "L1")))
		if diff := cmp.Diff(before, tgt.Snapshot()); diff != "" {
			t.Errorf("%s: duplicate registration changed flags:\n%s", tgt.ID, diff)
		}
	}
}

func TestVersionChangeRebuilds(t *testing.T) {
	f := newFixture(t, arch.ARM64)
	if _, err := f.builder([]string{"L1"}, nil).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.rec = &runnertest.Recorder{}
	f.targets = arch.NewTargets(f.targets[0].Toolchain, []arch.ID{arch.ARM64})
	_, err := f.builder([]string{"L1"}, func(o *Options) {
		o.Versions = map[string]string{"L1": "1.1.0"}
	}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := f.rec.Find("cmake -S"); len(got) != 1 {
		t.Fatalf("L1 configured %d times after a version change, want 1", len(got))
	}
	s, err := loadStamp(f.layout.InstallDir(arch.ARM64, "L1"))
	if err != nil || s.Version != "1.1.0" {
		t.Fatalf("stamp = %+v, %v", s, err)
	}
}

func TestOrderingUnderConcurrency(t *testing.T) {
	libs := []string{"L1", "L2", "L3"}
	for i := range 5 {
		f := newFixture(t, arch.All...)
		rng := rand.New(rand.NewPCG(uint64(i), 7))
		var mu sync.Mutex
		f.rec.Handler = func(c runner.Command) (int, error) {
			mu.Lock()
			d := time.Duration(rng.IntN(2000)) * time.Microsecond
			mu.Unlock()
			time.Sleep(d)
			return 0, nil
		}
		res, err := f.builder(libs, func(o *Options) { o.Parallel = 3 }).Run(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		for _, id := range arch.All {
			var want []string
			for _, lib := range libs {
				want = append(want, f.include(id, lib))
			}
			if diff := cmp.Diff(want, res.Snapshots[id].CFlags); diff != "" {
				t.Fatalf("run %d, %s: CFlags order (-want +got):\n%s", i, id, diff)
			}
		}
		if !slices.Equal(res.Features, []string{"--enable-l1", "--enable-l2", "--enable-l3"}) {
			t.Fatalf("run %d: features = %v", i, res.Features)
		}
	}
}

func TestProcessBudget(t *testing.T) {
	f := newFixture(t, arch.All...)
	var running, peak atomic.Int32
	f.rec.Handler = func(c runner.Command) (int, error) {
		if c.Dir == "" { // host tool checks
			return 0, nil
		}
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		running.Add(-1)
		return 0, nil
	}
	if _, err := f.builder([]string{"L1", "L2"}, func(o *Options) { o.Parallel = 2 }).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p := peak.Load(); p > 2 {
		t.Fatalf("peak concurrent processes = %d, want <= 2", p)
	}
}

func TestCancelledBeforeStart(t *testing.T) {
	f := newFixture(t, arch.ARM64)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.builder([]string{"L1"}, func(o *Options) { o.SkipHostCheck = true }).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(f.rec.Calls()) != 0 {
		t.Error("ran commands after cancellation")
	}
}

func TestFailureLetsRunningPhaseFinish(t *testing.T) {
	f := newFixture(t, arch.ARM64, arch.X86_64)
	armDir := f.layout.BuildDir(arch.ARM64, "L1")
	x86Dir := f.layout.BuildDir(arch.X86_64, "L1")

	x86Started := make(chan struct{})
	armFailed := make(chan struct{})
	release := make(chan struct{})
	var x86Configured atomic.Bool
	f.rec.Handler = func(c runner.Command) (int, error) {
		if c.Args[0] != "cmake" || c.Args[1] != "-S" {
			return 0, nil
		}
		switch c.Dir {
		case x86Dir:
			close(x86Started)
			<-release
			x86Configured.Store(true)
		case armDir:
			<-x86Started
			defer close(armFailed)
			return 1, nil
		}
		return 0, nil
	}
	go func() {
		<-armFailed
		// give the failing pipeline time to cancel the others
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	res, err := f.builder([]string{"L1", "L2"}, nil).Run(context.Background())
	var pe *buildsys.PhaseError
	if !errors.As(err, &pe) || pe.Arch != arch.ARM64 || pe.Library != "L1" || pe.Phase != buildsys.PhaseConfigure {
		t.Fatalf("err = %v, want arm64 L1 configure failure", err)
	}
	if !x86Configured.Load() {
		t.Error("x86_64 configure was interrupted")
	}
	if got := f.rec.Find("cmake --build"); len(got) != 0 {
		t.Errorf("build phase started after a failure: %s", got[0].Line())
	}
	if got := f.rec.Find(filepath.Join(f.layout.SourceDir("L2"), "configure")); len(got) != 0 {
		t.Error("next library started after a failure")
	}
	if snap := res.Snapshots[arch.X86_64]; len(snap.CFlags) != 0 {
		t.Errorf("x86_64 registered %v after a failure", snap.CFlags)
	}
}
