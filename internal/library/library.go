// Package library is the static registration table of the dependency
// libraries the orchestrator knows how to build.
package library

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goplus/archbuild/internal/license"
	"github.com/goplus/archbuild/pkgs/arch"
	"github.com/goplus/archbuild/pkgs/buildsys"
	"github.com/goplus/archbuild/pkgs/buildsys/autotools"
	"github.com/goplus/archbuild/pkgs/buildsys/rawcopy"
)

// Spec describes how one library is fetched, built and announced to the
// consumer.
type Spec struct {
	Name string
	Kind buildsys.Kind

	// Source is a git remote or an archive URL. "{version}" is replaced by
	// the configured version, in Source and in Ref.
	Source         string
	Ref            string
	DefaultVersion string

	// Feature is the consumer configure switch enabling this library.
	Feature string
	License license.Obligation

	// Args returns backend specific configure arguments for t.
	Args func(t *arch.Target) []string

	Copy      rawcopy.Options
	Autotools autotools.Options
}

func expand(s, version string) string {
	return strings.ReplaceAll(s, "{version}", version)
}

// SourceURL returns the fetch location of version.
func (s *Spec) SourceURL(version string) string { return expand(s.Source, version) }

// RefOf returns the git ref of version.
func (s *Spec) RefOf(version string) string { return expand(s.Ref, version) }

// ArgsFor returns the configure arguments for t.
func (s *Spec) ArgsFor(t *arch.Target) []string {
	if s.Args == nil {
		return nil
	}
	return s.Args(t)
}

// UnsupportedError reports a library name missing from the table.
type UnsupportedError struct {
	Name  string
	Known []string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported external library %q (known: %s)", e.Name, strings.Join(e.Known, ", "))
}

// DuplicateError reports a library listed more than once.
type DuplicateError struct {
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("library %q listed twice", e.Name)
}

// Table maps library names to their Spec.
type Table map[string]*Spec

// Lookup returns the Spec registered for name.
func (t Table) Lookup(name string) (*Spec, error) {
	s, ok := t[name]
	if !ok {
		return nil, &UnsupportedError{Name: name, Known: t.Names()}
	}
	return s, nil
}

// Resolve looks up every name, in order. It fails on the first unknown or
// duplicated name without side effects, so a misconfigured run stops before
// anything is fetched.
func (t Table) Resolve(names []string) ([]*Spec, error) {
	specs := make([]*Spec, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		s, err := t.Lookup(name)
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, &DuplicateError{Name: name}
		}
		seen[name] = true
		specs = append(specs, s)
	}
	return specs, nil
}

// Names returns the registered names, sorted.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the built-in Spec for name.
func Lookup(name string) (*Spec, error) { return registry.Lookup(name) }

// Resolve resolves names against the built-in table.
func Resolve(names []string) ([]*Spec, error) { return registry.Resolve(names) }

// Names returns the built-in library names, sorted.
func Names() []string { return registry.Names() }

// Registry returns the built-in table.
func Registry() Table { return registry }
