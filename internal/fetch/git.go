package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Git fetches a single ref with a shallow fetch.
type Git struct {
	git string
}

// GitOption configures Git.
type GitOption func(*Git)

// WithGitPath sets a custom git executable path.
func WithGitPath(path string) GitOption {
	return func(g *Git) {
		g.git = path
	}
}

// NewGit creates a git fetcher.
func NewGit(opts ...GitOption) *Git {
	g := &Git{git: "git"}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Fetch clones ref (a branch, tag or commit) of remote into destDir.
func (g *Git) Fetch(ctx context.Context, remote, ref, destDir string) error {
	if exists(destDir) {
		return nil
	}
	return stage(destDir, func(dir string) error {
		if err := g.run(ctx, dir, "init", "--quiet"); err != nil {
			return err
		}
		if err := g.run(ctx, dir, "fetch", "--depth", "1", remote, ref); err != nil {
			return fmt.Errorf("fetch %s %s: %w", remote, ref, err)
		}
		if err := g.run(ctx, dir, "checkout", "--quiet", "FETCH_HEAD"); err != nil {
			return fmt.Errorf("checkout %s: %w", ref, err)
		}
		return nil
	})
}

func (g *Git) run(ctx context.Context, dir string, args ...string) error {
	_, err := g.output(ctx, dir, args...)
	return err
}

func (g *Git) output(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, g.git, args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", Permanent(err)
		}
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(msg, "couldn't find remote ref") {
			return "", Permanent(fmt.Errorf("%s", msg))
		}
		if msg != "" {
			return "", fmt.Errorf("%s", msg)
		}
		return "", err
	}
	return stdout.String(), nil
}
