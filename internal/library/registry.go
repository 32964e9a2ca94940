package library

import (
	"path/filepath"

	"github.com/goplus/archbuild/internal/license"
	"github.com/goplus/archbuild/pkgs/arch"
	"github.com/goplus/archbuild/pkgs/buildsys"
	"github.com/goplus/archbuild/pkgs/buildsys/autotools"
	"github.com/goplus/archbuild/pkgs/buildsys/rawcopy"
)

// FFmpeg is the consumer project.
var FFmpeg = &Spec{
	Name:           "ffmpeg",
	Kind:           buildsys.Autotools,
	Source:         "https://github.com/FFmpeg/FFmpeg.git",
	Ref:            "n{version}",
	DefaultVersion: "8.0.1",
}

// Default is the library list used when none is configured. libuavs3d and
// libdavs2 are registered but left out: their upstream builds do not
// cross-compile for every ABI yet.
var Default = []string{"libaom", "amf", "avisynth", "chromaprint", "libcodec2", "libdav1d"}

var registry = Table{
	"libaom": {
		Name:           "libaom",
		Kind:           buildsys.CMake,
		Source:         "https://aomedia.googlesource.com/aom",
		Ref:            "v{version}",
		DefaultVersion: "3.13.1",
		Feature:        "--enable-libaom",
		Args: func(t *arch.Target) []string {
			return []string{
				"-DENABLE_EXAMPLES=OFF",
				"-DENABLE_TESTS=OFF",
				"-DENABLE_TOOLS=OFF",
				"-DENABLE_DOCS=OFF",
				"-DAOM_TARGET_CPU=" + t.ID.AOMTarget(),
			}
		},
	},
	"amf": {
		Name:           "amf",
		Kind:           buildsys.Copy,
		Source:         "https://github.com/GPUOpen-LibrariesAndSDKs/AMF.git",
		Ref:            "v{version}",
		DefaultVersion: "1.5.0",
		Feature:        "--enable-amf",
		Copy: rawcopy.Options{
			From: filepath.Join("amf", "public", "include"),
			To:   "AMF",
		},
	},
	"avisynth": {
		Name:           "avisynth",
		Kind:           buildsys.CMake,
		Source:         "https://github.com/AviSynth/AviSynthPlus.git",
		Ref:            "v{version}",
		DefaultVersion: "3.7.5",
		Feature:        "--enable-avisynth",
		Args: func(*arch.Target) []string {
			// FFmpeg loads AviSynth at runtime; only the headers are needed.
			return []string{"-DHEADERS_ONLY=ON"}
		},
	},
	"chromaprint": {
		Name:           "chromaprint",
		Kind:           buildsys.CMake,
		Source:         "https://github.com/acoustid/chromaprint.git",
		Ref:            "v{version}",
		DefaultVersion: "1.6.0",
		Feature:        "--enable-chromaprint",
		Args: func(*arch.Target) []string {
			return []string{"-DBUILD_TOOLS=OFF", "-DBUILD_TESTS=OFF", "-DFFT_LIB=kissfft"}
		},
	},
	"libcodec2": {
		Name:           "libcodec2",
		Kind:           buildsys.CMake,
		Source:         "https://github.com/drowe67/codec2.git",
		Ref:            "{version}",
		DefaultVersion: "1.2.0",
		Feature:        "--enable-libcodec2",
		Args: func(*arch.Target) []string {
			return []string{"-DUNITTEST=OFF", "-DLPCNET=OFF"}
		},
	},
	"libdav1d": {
		Name:           "libdav1d",
		Kind:           buildsys.Meson,
		Source:         "https://code.videolan.org/videolan/dav1d/-/archive/{version}/dav1d-{version}.tar.gz",
		Ref:            "{version}",
		DefaultVersion: "1.5.3",
		Feature:        "--enable-libdav1d",
		Args: func(t *arch.Target) []string {
			args := []string{"-Denable_tools=false", "-Denable_tests=false", "-Denable_examples=false"}
			if t.ID == arch.X86 {
				args = append(args, "-Denable_asm=false")
			}
			return args
		},
	},
	"libuavs3d": {
		Name:           "libuavs3d",
		Kind:           buildsys.CMake,
		Source:         "https://github.com/uavs3/uavs3d.git",
		Ref:            "v{version}",
		DefaultVersion: "1.2",
		Feature:        "--enable-libuavs3d",
		Args: func(*arch.Target) []string {
			return []string{"-DCOMPILE_10BIT=0"}
		},
	},
	"libdavs2": {
		Name:           "libdavs2",
		Kind:           buildsys.Autotools,
		Source:         "https://github.com/pkuvcl/davs2.git",
		Ref:            "{version}",
		DefaultVersion: "1.7",
		Feature:        "--enable-libdavs2",
		License:        license.GPL,
		Args: func(t *arch.Target) []string {
			args := []string{"--disable-cli"}
			if t.ID.Is32Bit() {
				args = append(args, "--disable-asm")
			}
			return args
		},
		Autotools: autotools.Options{
			ConfigureDir: filepath.Join("build", "linux"),
			StaticArgs:   []string{"--enable-pic", "--enable-static"},
			SharedArgs:   []string{"--enable-pic", "--enable-shared"},
		},
	},
}
