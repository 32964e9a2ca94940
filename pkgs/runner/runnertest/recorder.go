// Package runnertest provides a recording Runner for tests.
package runnertest

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/goplus/archbuild/pkgs/runner"
)

// Call is one recorded invocation.
type Call struct {
	Args []string
	Env  map[string]string
	Dir  string
}

// Line joins Args with spaces.
func (c Call) Line() string { return strings.Join(c.Args, " ") }

// Recorder records every command and answers with the exit code chosen by
// Handler. With a nil Handler every command succeeds.
type Recorder struct {
	Handler func(c runner.Command) (int, error)

	mu    sync.Mutex
	calls []Call
}

var _ runner.Runner = (*Recorder)(nil)

func (r *Recorder) Run(ctx context.Context, c runner.Command) (int, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{
		Args: slices.Clone(c.Args),
		Env:  maps.Clone(c.Env),
		Dir:  c.Dir,
	})
	r.mu.Unlock()
	if r.Handler == nil {
		return 0, nil
	}
	return r.Handler(c)
}

// Calls returns a copy of the recorded calls in invocation order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

// Find returns the recorded calls whose command line contains all of substrs.
func (r *Recorder) Find(substrs ...string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		line := c.Line()
		match := true
		for _, s := range substrs {
			if !strings.Contains(line, s) {
				match = false
				break
			}
		}
		if match {
			out = append(out, c)
		}
	}
	return out
}
