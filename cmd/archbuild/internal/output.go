package internal

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goplus/archbuild/internal/env"
	"github.com/goplus/archbuild/pkgs/arch"
)

// writeOutput writes the consumer install of every ABI below dest/<abi>/.
// If dest ends with ".zip", a zip archive is created instead.
func writeOutput(l env.Layout, ids []arch.ID, dest string) error {
	return outputResult(consumerInstalls(l, ids), dest)
}

func outputResult(dirs map[string]string, dest string) error {
	if strings.HasSuffix(dest, ".zip") {
		return zipDirs(dirs, dest)
	}
	for abi, src := range dirs {
		if err := os.CopyFS(filepath.Join(dest, abi), os.DirFS(src)); err != nil {
			return err
		}
	}
	return nil
}

// zipDirs creates a zip archive at dest holding each directory of dirs
// under its key.
func zipDirs(dirs map[string]string, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if err := writeZip(f, dirs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeZip writes dirs to out, each below its prefix. The archive is only
// complete once the central directory is written by Close.
func writeZip(out io.Writer, dirs map[string]string) error {
	w := zip.NewWriter(out)

	prefixes := make([]string, 0, len(dirs))
	for p := range dirs {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	for _, prefix := range prefixes {
		srcDir := dirs[prefix]
		err := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(srcDir, path)
			if err != nil {
				return err
			}
			header, err := zip.FileInfoHeader(info)
			if err != nil {
				return err
			}
			header.Name = filepath.ToSlash(filepath.Join(prefix, rel))
			header.Method = zip.Deflate

			writer, err := w.CreateHeader(header)
			if err != nil {
				return err
			}
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()
			_, err = io.Copy(writer, file)
			return err
		})
		if err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
