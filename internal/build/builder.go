// Package build runs dependency libraries and the consumer project through
// their build systems for every target architecture.
//
// Each architecture gets its own pipeline. Inside a pipeline the libraries
// are built one after another in declaration order, so a library always
// sees the flags of the ones declared before it. Pipelines of different
// architectures run concurrently and share only the fetched sources, the
// FeatureSet and the process budget.
package build

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/goplus/archbuild/internal/ctxlog"
	"github.com/goplus/archbuild/internal/env"
	"github.com/goplus/archbuild/internal/fetch"
	"github.com/goplus/archbuild/internal/hostcheck"
	"github.com/goplus/archbuild/internal/library"
	"github.com/goplus/archbuild/internal/license"
	"github.com/goplus/archbuild/pkgs/arch"
	"github.com/goplus/archbuild/pkgs/buildsys"
	"github.com/goplus/archbuild/pkgs/buildsys/autotools"
	"github.com/goplus/archbuild/pkgs/buildsys/cmake"
	"github.com/goplus/archbuild/pkgs/buildsys/meson"
	"github.com/goplus/archbuild/pkgs/buildsys/rawcopy"
	"github.com/goplus/archbuild/pkgs/runner"
)

// Options configures a Builder.
type Options struct {
	Targets   []*arch.Target
	Libraries []string          // in declaration order
	Versions  map[string]string // library or consumer name to version

	// Table resolves library names. Defaults to library.Registry().
	Table library.Table
	// Consumer is built last against all libraries. Defaults to
	// library.FFmpeg.
	Consumer *library.Spec

	Static    bool
	BuildType string
	// Jobs is the -j value handed to each build tool.
	Jobs int
	// Parallel bounds the external processes running at once. Defaults to
	// the number of targets.
	Parallel int

	Layout  env.Layout
	Runner  runner.Runner
	Fetcher fetch.Fetcher
	License *license.Resolver

	// SkipHostCheck disables the host tool check.
	SkipHostCheck bool
	// Tee, if set, receives a copy of every unit's build log.
	Tee io.Writer
}

// Builder orchestrates one run. It is not reusable.
type Builder struct {
	opts     Options
	meson    *meson.Meson
	sem      *semaphore.Weighted
	features *FeatureSet

	fetchMu sync.Mutex
	fetched map[string]func() error
}

// New returns a Builder for opts.
func New(opts Options) *Builder {
	if opts.Table == nil {
		opts.Table = library.Registry()
	}
	if opts.Consumer == nil {
		opts.Consumer = library.FFmpeg
	}
	if opts.Runner == nil {
		opts.Runner = runner.Exec{}
	}
	if opts.Fetcher == nil {
		opts.Fetcher = fetch.New(3, 2*time.Second)
	}
	if opts.License == nil {
		opts.License = &license.Resolver{}
	}
	if opts.Parallel < 1 {
		opts.Parallel = max(len(opts.Targets), 1)
	}
	return &Builder{
		opts:     opts,
		meson:    meson.New(opts.Runner, opts.Layout.ArchBuildDir),
		sem:      semaphore.NewWeighted(int64(opts.Parallel)),
		features: NewFeatureSet(opts.Libraries),
		fetched:  make(map[string]func() error),
	}
}

// Result describes a finished or failed run.
type Result struct {
	// Snapshots holds the accumulated flags of every target at the end of
	// the run, including after a failure.
	Snapshots map[arch.ID]arch.Snapshot
	// Features are the consumer switches contributed by the libraries.
	Features []string
	// LicenseFlags are the accepted license upgrades.
	LicenseFlags []string
}

func (b *Builder) result() *Result {
	res := &Result{
		Snapshots: make(map[arch.ID]arch.Snapshot, len(b.opts.Targets)),
		Features:  b.features.Tokens(),
	}
	for _, t := range b.opts.Targets {
		res.Snapshots[t.ID] = t.Snapshot()
	}
	return res
}

// Run builds every library for every target, resolves license upgrades and
// then builds the consumer for every target. It returns the first error.
func (b *Builder) Run(ctx context.Context) (*Result, error) {
	log := ctxlog.FromContext(ctx)

	specs, err := b.opts.Table.Resolve(b.opts.Libraries)
	if err != nil {
		return b.result(), err
	}
	if !b.opts.SkipHostCheck {
		tools := hostcheck.Required(specs, b.opts.Versions, b.opts.Consumer)
		if err := hostcheck.Check(ctx, b.opts.Runner, tools); err != nil {
			return b.result(), err
		}
	}

	start := time.Now()
	if err := b.buildLibraries(ctx, specs); err != nil {
		return b.result(), err
	}
	log.Info("libraries built", "count", len(specs), "archs", len(b.opts.Targets), "elapsed", time.Since(start).Round(time.Millisecond))

	flags, err := b.opts.License.Resolve(ctx, b.features.Obligations())
	if err != nil {
		return b.result(), err
	}

	err = b.buildConsumer(ctx, flags)
	res := b.result()
	res.LicenseFlags = flags
	if err != nil {
		return res, err
	}
	log.Info("build finished", "consumer", b.opts.Consumer.Name, "elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// buildLibraries runs one pipeline per target. The first failure cancels
// the others; a unit in flight finishes its current phase before
// observing the cancellation.
func (b *Builder) buildLibraries(ctx context.Context, specs []*library.Spec) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range b.opts.Targets {
		g.Go(func() error {
			for _, spec := range specs {
				if err := b.step(gctx, t, spec); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (b *Builder) buildConsumer(ctx context.Context, licenseFlags []string) error {
	spec := b.opts.Consumer
	extra := append(b.features.Tokens(), licenseFlags...)
	adapter := &consumer{runner: b.opts.Runner}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range b.opts.Targets {
		g.Go(func() error {
			ctx := ctxlog.With(gctx, "library", spec.Name, "arch", t.ID.String())
			u := &unit{library: spec.Name, arch: t.ID.String()}
			req := b.request(t, spec)
			req.Args = extra
			_, err := b.runUnit(ctx, u, spec, adapter, req, false)
			return err
		})
	}
	return g.Wait()
}

func (b *Builder) version(spec *library.Spec) string {
	if v := b.opts.Versions[spec.Name]; v != "" {
		return v
	}
	return spec.DefaultVersion
}

// fetch returns the memoized source fetch of spec. All pipelines share it,
// so a library is downloaded once no matter how many targets need it.
func (b *Builder) fetch(ctx context.Context, spec *library.Spec) error {
	b.fetchMu.Lock()
	once, ok := b.fetched[spec.Name]
	if !ok {
		version := b.version(spec)
		once = sync.OnceValue(func() error {
			dir := b.opts.Layout.SourceDir(spec.Name)
			log := ctxlog.FromContext(ctx)
			log.Info("fetching source", "version", version)
			if err := b.opts.Fetcher.Fetch(ctx, spec.SourceURL(version), spec.RefOf(version), dir); err != nil {
				return &buildsys.PhaseError{Phase: buildsys.PhaseFetch, Library: spec.Name, ExitCode: -1, Err: err}
			}
			return nil
		})
		b.fetched[spec.Name] = once
	}
	b.fetchMu.Unlock()
	return once()
}

func (b *Builder) request(t *arch.Target, spec *library.Spec) *buildsys.Request {
	l := b.opts.Layout
	return &buildsys.Request{
		Target:     t,
		Library:    spec.Name,
		SourceDir:  l.SourceDir(spec.Name),
		BuildDir:   l.BuildDir(t.ID, spec.Name),
		InstallDir: l.InstallDir(t.ID, spec.Name),
		Args:       spec.ArgsFor(t),
		BuildType:  b.opts.BuildType,
		Static:     b.opts.Static,
		Jobs:       b.opts.Jobs,
	}
}

func (b *Builder) adapter(spec *library.Spec) (buildsys.Adapter, error) {
	switch spec.Kind {
	case buildsys.CMake:
		return cmake.New(b.opts.Runner, ""), nil
	case buildsys.Meson:
		return b.meson, nil
	case buildsys.Autotools:
		return autotools.New(b.opts.Runner, spec.Autotools), nil
	case buildsys.Copy:
		return rawcopy.New(spec.Copy), nil
	}
	return nil, fmt.Errorf("library %s: no adapter for build system %v", spec.Name, spec.Kind)
}

// step builds spec for t and registers its install tree.
func (b *Builder) step(ctx context.Context, t *arch.Target, spec *library.Spec) error {
	ctx = ctxlog.With(ctx, "library", spec.Name, "arch", t.ID.String())
	adapter, err := b.adapter(spec)
	if err != nil {
		return err
	}
	u := &unit{library: spec.Name, arch: t.ID.String()}
	req := b.request(t, spec)
	out, err := b.runUnit(ctx, u, spec, adapter, req, true)
	if err != nil {
		return err
	}
	t.RegisterInstall(out)
	b.features.Add(spec.Name, spec.Feature)
	b.features.Require(spec.License)
	return nil
}

// runUnit drives u through fetch, configure, build and install. With
// stamped set, a matching stamp from a previous run skips the adapter and
// a successful install writes a new one.
func (b *Builder) runUnit(ctx context.Context, u *unit, spec *library.Spec, adapter buildsys.Adapter, req *buildsys.Request, stamped bool) (arch.Install, error) {
	log := ctxlog.FromContext(ctx)
	if err := ctx.Err(); err != nil {
		return arch.Install{}, err
	}

	u.to(ctx, Fetching)
	if err := b.fetch(ctx, spec); err != nil {
		u.fail(ctx, buildsys.PhaseFetch)
		return arch.Install{}, err
	}

	u.to(ctx, Configuring)
	want := &stamp{Library: spec.Name, Version: b.version(spec), BuildType: req.BuildType, Static: req.Static}
	if stamped {
		if have, err := loadStamp(req.InstallDir); err == nil && have.matches(want) {
			log.Info("already installed", "built", have.BuildTime.Format(time.RFC3339))
			u.to(ctx, Registered)
			return adapter.Output(req), nil
		}
	}

	logFile, err := b.openLog(req)
	if err != nil {
		u.fail(ctx, buildsys.PhaseConfigure)
		return arch.Install{}, err
	}
	defer logFile.Close()

	phases := []struct {
		state State
		run   func(context.Context, *buildsys.Request) error
	}{
		{Configuring, adapter.Configure},
		{Building, adapter.Build},
		{Installing, adapter.Install},
	}
	for i, p := range phases {
		if i > 0 {
			u.to(ctx, p.state)
		}
		if err := b.runPhase(ctx, p.state.phase(), req, p.run); err != nil {
			u.fail(ctx, p.state.phase())
			return arch.Install{}, err
		}
	}

	if stamped {
		want.BuildTime = time.Now()
		if err := saveStamp(req.InstallDir, want); err != nil {
			u.fail(ctx, buildsys.PhaseInstall)
			return arch.Install{}, &buildsys.PhaseError{Phase: buildsys.PhaseInstall, Library: spec.Name, Arch: req.Target.ID, ExitCode: -1, Err: err}
		}
	}
	u.to(ctx, Registered)
	log.Info("installed", "prefix", req.InstallDir)
	return adapter.Output(req), nil
}

// runPhase runs one adapter phase inside the process budget. A cancelled
// context stops the unit before the phase starts, never during it.
func (b *Builder) runPhase(ctx context.Context, phase buildsys.Phase, req *buildsys.Request, run func(context.Context, *buildsys.Request) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer b.sem.Release(1)

	ctx = ctxlog.With(ctx, "phase", phase.String())
	ctxlog.FromContext(ctx).Info("running")
	return run(context.WithoutCancel(ctx), req)
}

// openLog creates build.log in the unit's build directory and points the
// request's output at it.
func (b *Builder) openLog(req *buildsys.Request) (io.Closer, error) {
	if err := os.MkdirAll(req.BuildDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(filepath.Join(req.BuildDir, "build.log"))
	if err != nil {
		return nil, err
	}
	var w io.Writer = f
	if b.opts.Tee != nil {
		w = io.MultiWriter(f, b.opts.Tee)
	}
	req.Stdout, req.Stderr = w, w
	return f, nil
}
