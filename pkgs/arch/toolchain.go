package arch

import (
	"path/filepath"
)

// Toolchain locates the NDK binaries for every architecture.
type Toolchain struct {
	NDK  string // NDK root, e.g. ~/Library/Android/sdk/ndk/29.0.14206865
	Host string // prebuilt host tag, e.g. darwin-x86_64
	API  string // minimum Android API level
}

// Prebuilt returns the LLVM prebuilt directory for the host.
func (tc Toolchain) Prebuilt() string {
	return filepath.Join(tc.NDK, "toolchains", "llvm", "prebuilt", tc.Host)
}

// Bin returns the path of a tool in the prebuilt bin directory.
func (tc Toolchain) Bin(name string) string {
	return filepath.Join(tc.Prebuilt(), "bin", name)
}

func (tc Toolchain) Sysroot() string {
	return filepath.Join(tc.Prebuilt(), "sysroot")
}

// CMakeToolchainFile returns the NDK's android.toolchain.cmake.
func (tc Toolchain) CMakeToolchainFile() string {
	return filepath.Join(tc.NDK, "build", "cmake", "android.toolchain.cmake")
}

// CompilerPrefix returns the clang driver prefix, e.g. aarch64-linux-android28.
func (tc Toolchain) CompilerPrefix(id ID) string {
	return table[id].clangPrefix + tc.API
}

func (tc Toolchain) CC(id ID) string  { return tc.Bin(tc.CompilerPrefix(id) + "-clang") }
func (tc Toolchain) CXX(id ID) string { return tc.Bin(tc.CompilerPrefix(id) + "-clang++") }

func (tc Toolchain) AR() string     { return tc.Bin("llvm-ar") }
func (tc Toolchain) NM() string     { return tc.Bin("llvm-nm") }
func (tc Toolchain) Ranlib() string { return tc.Bin("llvm-ranlib") }
func (tc Toolchain) Strip() string  { return tc.Bin("llvm-strip") }
func (tc Toolchain) Yasm() string   { return tc.Bin("yasm") }
