// Package env derives the on-disk workspace layout. Every path is a pure
// function of the workspace root, the architecture and the library name, so
// a re-run finds what a previous run left and concurrent units never share
// a directory.
//
//	<root>/
//	  source/<lib>/                      # fetched once, shared by all archs
//	  build/<arch>/<lib>/                # adapter build trees
//	  build/<arch>/meson-cross.ini
//	  install/<arch>/<lib>/{include,lib,lib/pkgconfig}/
//	  .archbuild.lock
package env

import (
	"os"
	"path/filepath"

	"github.com/goplus/archbuild/pkgs/arch"
)

// Layout is the workspace rooted at Root. An empty Root means paths relative
// to the working directory.
type Layout struct {
	Root string
}

// WorkDir returns the current working directory, the default workspace.
func WorkDir() (string, error) {
	return os.Getwd()
}

func (l Layout) SourceDir(lib string) string {
	return filepath.Join(l.Root, "source", lib)
}

// ArchBuildDir holds per-architecture files shared by libraries.
func (l Layout) ArchBuildDir(id arch.ID) string {
	return filepath.Join(l.Root, "build", string(id))
}

func (l Layout) BuildDir(id arch.ID, lib string) string {
	return filepath.Join(l.Root, "build", string(id), lib)
}

func (l Layout) InstallDir(id arch.ID, lib string) string {
	return filepath.Join(l.Root, "install", string(id), lib)
}

// LockFile guards the workspace against concurrent runs.
func (l Layout) LockFile() string {
	return filepath.Join(l.Root, ".archbuild.lock")
}

// Clean removes the build and install trees. Sources are kept unless
// sources is set.
func (l Layout) Clean(sources bool) error {
	dirs := []string{"build", "install"}
	if sources {
		dirs = append(dirs, "source")
	}
	for _, d := range dirs {
		if err := os.RemoveAll(filepath.Join(l.Root, d)); err != nil {
			return err
		}
	}
	return nil
}
