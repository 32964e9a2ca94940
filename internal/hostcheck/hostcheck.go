// Package hostcheck verifies that the host build tools a run needs are
// installed before anything is fetched or built.
package hostcheck

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/goplus/archbuild/internal/ctxlog"
	"github.com/goplus/archbuild/internal/fetch"
	"github.com/goplus/archbuild/internal/library"
	"github.com/goplus/archbuild/pkgs/runner"
)

// ToolMissingError reports a required host tool that could not be run.
type ToolMissingError struct {
	Tool string
	Err  error
}

func (e *ToolMissingError) Error() string {
	return fmt.Sprintf("%s is needed but not installed: %v", e.Tool, e.Err)
}

func (e *ToolMissingError) Unwrap() error { return e.Err }

// Required returns the tools needed to build specs and the consumer, in a
// stable order.
func Required(specs []*library.Spec, versions map[string]string, consumer *library.Spec) []string {
	// the consumer's configure script runs gawk
	tools := []string{"pkg-config", "make", "gawk"}
	add := func(names ...string) {
		for _, n := range names {
			if !slices.Contains(tools, n) {
				tools = append(tools, n)
			}
		}
	}
	all := append(slices.Clone(specs), consumer)
	for _, s := range all {
		add(s.Kind.Tools()...)
		version := versions[s.Name]
		if version == "" {
			version = s.DefaultVersion
		}
		if !fetch.IsArchive(s.SourceURL(version)) {
			add("git")
		}
	}
	return tools
}

// Check runs "<tool> --version" for every tool and returns a
// *ToolMissingError for the first one that fails.
func Check(ctx context.Context, r runner.Runner, tools []string) error {
	log := ctxlog.FromContext(ctx)
	for _, tool := range tools {
		code, err := r.Run(ctx, runner.Command{
			Args:   []string{tool, "--version"},
			Stdout: io.Discard,
			Stderr: io.Discard,
		})
		if err == nil && code != 0 {
			err = fmt.Errorf("exit status %d", code)
		}
		if err != nil {
			return &ToolMissingError{Tool: tool, Err: err}
		}
		log.Debug("host tool found", "tool", tool)
	}
	return nil
}
