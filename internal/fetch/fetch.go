// Package fetch obtains library sources, either by cloning a git ref or by
// unpacking a release archive.
package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goplus/archbuild/internal/ctxlog"
)

// Fetcher places the source identified by (source, ref) at destDir.
// Implementations are idempotent: an existing destDir is left untouched.
type Fetcher interface {
	Fetch(ctx context.Context, source, ref, destDir string) error
}

// exists reports whether dir is present. Fetchers populate a temporary
// sibling and rename it into place, so a present dir is complete.
func exists(dir string) bool {
	_, err := os.Stat(dir)
	return err == nil
}

// stage creates a temporary directory next to destDir, calls fill on it and
// renames it to destDir on success.
func stage(destDir string, fill func(tmp string) error) error {
	if err := os.MkdirAll(filepath.Dir(destDir), 0o755); err != nil {
		return err
	}
	tmp, err := os.MkdirTemp(filepath.Dir(destDir), "."+filepath.Base(destDir)+"-*")
	if err != nil {
		return err
	}
	if err := fill(tmp); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	if err := os.Rename(tmp, destDir); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	return nil
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked by Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Retrying retries a Fetcher with exponential backoff. Only transient
// failures are retried; errors marked Permanent and context cancellation
// are returned immediately.
type Retrying struct {
	Fetcher  Fetcher
	Attempts int
	Backoff  time.Duration

	// Sleep waits between attempts. Defaults to a context aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Retrying) Fetch(ctx context.Context, source, ref, destDir string) error {
	attempts := max(r.Attempts, 1)
	wait := r.Sleep
	if wait == nil {
		wait = sleep
	}
	delay := r.Backoff
	var err error
	for i := 1; i <= attempts; i++ {
		err = r.Fetcher.Fetch(ctx, source, ref, destDir)
		if err == nil || IsPermanent(err) || ctx.Err() != nil || i == attempts {
			break
		}
		ctxlog.FromContext(ctx).Warn("fetch failed, retrying",
			"source", source, "ref", ref, "attempt", i, "delay", delay, "err", err)
		if werr := wait(ctx, delay); werr != nil {
			return werr
		}
		delay *= 2
	}
	return err
}

// Router picks the archive fetcher for http(s) archive URLs and git for
// everything else.
type Router struct {
	Git     Fetcher
	Archive Fetcher
}

// IsArchive reports whether source names a supported archive.
func IsArchive(source string) bool {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		return false
	}
	for _, ext := range []string{".tar.gz", ".tgz", ".tar.xz", ".txz"} {
		if strings.HasSuffix(source, ext) {
			return true
		}
	}
	return false
}

func (r *Router) Fetch(ctx context.Context, source, ref, destDir string) error {
	if IsArchive(source) {
		return r.Archive.Fetch(ctx, source, ref, destDir)
	}
	return r.Git.Fetch(ctx, source, ref, destDir)
}

// New returns the default fetcher: git or archive, with retries.
func New(attempts int, backoff time.Duration) Fetcher {
	return &Retrying{
		Fetcher:  &Router{Git: NewGit(), Archive: NewArchive(nil)},
		Attempts: attempts,
		Backoff:  backoff,
	}
}
