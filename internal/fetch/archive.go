package fetch

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
)

// Archive downloads a release tarball and unpacks it, dropping the
// top-level directory that release archives carry.
type Archive struct {
	httpClient *http.Client
}

// NewArchive creates an archive fetcher. A nil client gets a default one.
func NewArchive(client *http.Client) *Archive {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Archive{httpClient: client}
}

// Fetch downloads url into destDir. ref is informational: the version is
// already part of the URL.
func (a *Archive) Fetch(ctx context.Context, url, ref, destDir string) error {
	if exists(destDir) {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Permanent(err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("GET %s: %s", url, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return Permanent(err)
		}
		return err
	}

	r, err := decompress(url, resp.Body)
	if err != nil {
		return err
	}
	return stage(destDir, func(dir string) error {
		return untar(r, dir)
	})
}

func decompress(name string, r io.Reader) (io.Reader, error) {
	switch {
	case strings.HasSuffix(name, ".tar.xz"), strings.HasSuffix(name, ".txz"):
		return xz.NewReader(r)
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return gzip.NewReader(r)
	}
	return nil, Permanent(fmt.Errorf("unsupported archive %s", name))
}

// stripTop removes the first path element. It returns "" for the top-level
// directory itself.
func stripTop(name string) string {
	name = path.Clean(strings.TrimPrefix(name, "./"))
	_, rest, ok := strings.Cut(name, "/")
	if !ok {
		return ""
	}
	return rest
}

// untar unpacks r below dir. Writes go through an os.Root so that no
// entry, symlinked parent included, lands outside dir.
func untar(r io.Reader, dir string) error {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return err
	}
	defer root.Close()

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		rel := stripTop(hdr.Name)
		if rel == "" {
			continue
		}
		if !filepath.IsLocal(rel) {
			return Permanent(fmt.Errorf("archive entry %q escapes destination", hdr.Name))
		}
		name := filepath.FromSlash(rel)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := root.MkdirAll(name, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(root, name, tr, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			link := filepath.FromSlash(hdr.Linkname)
			if filepath.IsAbs(link) || !filepath.IsLocal(filepath.Join(filepath.Dir(name), link)) {
				return Permanent(fmt.Errorf("archive symlink %q -> %q escapes destination", hdr.Name, hdr.Linkname))
			}
			if err := mkdirParent(root, name); err != nil {
				return err
			}
			if err := root.Symlink(link, name); err != nil {
				return err
			}
		}
	}
}

func writeFile(root *os.Root, name string, r io.Reader, perm os.FileMode) error {
	if err := mkdirParent(root, name); err != nil {
		return err
	}
	f, err := root.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm|0o200)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func mkdirParent(root *os.Root, name string) error {
	if dir := filepath.Dir(name); dir != "." {
		return root.MkdirAll(dir, 0o755)
	}
	return nil
}
