// Command archbuild cross-compiles native dependency libraries and FFmpeg
// for every Android ABI.
package main

import (
	"os"

	"github.com/goplus/archbuild/cmd/archbuild/internal"
)

func main() {
	os.Exit(internal.Execute())
}
