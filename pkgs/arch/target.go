package arch

import (
	"slices"
	"sync"
)

var (
	defaultCFlags  = []string{"-O3", "-fPIC"}
	defaultLDFlags = []string{"-Wl,-z,max-page-size=16384"}
)

// Install describes where a dependency put its artifacts for one
// architecture. Empty fields are not registered.
type Install struct {
	IncludeDir   string
	LibDir       string
	PkgConfigDir string
}

// Snapshot is an immutable copy of a Target's accumulated flag state.
type Snapshot struct {
	CFlags        []string
	LDFlags       []string
	PkgConfigPath []string
}

// Target is one architecture being built. It is created once per run and
// shared by reference: every step for the architecture observes what the
// previous steps registered.
type Target struct {
	ID        ID
	Toolchain Toolchain

	// CompilerPrefix is the clang driver prefix, e.g. aarch64-linux-android28.
	CompilerPrefix string
	CC             string
	CXX            string

	// ConfigureFlags are architecture specific switches handed to the
	// consumer's configure script.
	ConfigureFlags []string

	// BaseCFlags and BaseLDFlags are always passed ahead of the accumulated
	// flags. They are not part of the Snapshot.
	BaseCFlags  []string
	BaseLDFlags []string

	mu            sync.Mutex
	cflags        []string
	ldflags       []string
	pkgConfigPath []string
}

// NewTarget creates the Target for id using tc.
func NewTarget(tc Toolchain, id ID) *Target {
	t := &Target{
		ID:             id,
		Toolchain:      tc,
		CompilerPrefix: tc.CompilerPrefix(id),
		CC:             tc.CC(id),
		CXX:            tc.CXX(id),
		BaseCFlags:     slices.Clone(defaultCFlags),
		BaseLDFlags:    slices.Clone(defaultLDFlags),
	}
	if id == X86 {
		// the i686 inline assembly in FFmpeg is not PIC clean.
		t.ConfigureFlags = []string{"--disable-asm", "--x86asmexe=" + tc.Yasm()}
	}
	return t
}

// NewTargets creates one Target per id, preserving order.
func NewTargets(tc Toolchain, ids []ID) []*Target {
	targets := make([]*Target, 0, len(ids))
	for _, id := range ids {
		targets = append(targets, NewTarget(tc, id))
	}
	return targets
}

// RegisterInstall makes a dependency's install tree visible to later steps
// by appending -I<include>, -L<lib> and the pkg-config directory. It is the
// only way to mutate the accumulated state. Entries that are already present
// are kept at their first position and not appended again, so resumed runs
// produce the same flags as fresh ones.
func (t *Target) RegisterInstall(in Install) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if in.IncludeDir != "" {
		t.cflags = appendUnique(t.cflags, "-I"+in.IncludeDir)
	}
	if in.LibDir != "" {
		t.ldflags = appendUnique(t.ldflags, "-L"+in.LibDir)
	}
	if in.PkgConfigDir != "" {
		t.pkgConfigPath = appendUnique(t.pkgConfigPath, in.PkgConfigDir)
	}
}

// Snapshot returns copies of the accumulated lists.
func (t *Target) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		CFlags:        slices.Clone(t.cflags),
		LDFlags:       slices.Clone(t.ldflags),
		PkgConfigPath: slices.Clone(t.pkgConfigPath),
	}
}

func appendUnique(list []string, v string) []string {
	if slices.Contains(list, v) {
		return list
	}
	return append(list, v)
}
