package arch

import (
	"fmt"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testToolchain() Toolchain {
	return Toolchain{NDK: "/ndk", Host: "linux-x86_64", API: "28"}
}

func isPrefix(prev, next []string) bool {
	return len(prev) <= len(next) && slices.Equal(prev, next[:len(prev)])
}

func TestRegisterInstallAppendOnly(t *testing.T) {
	target := NewTarget(testToolchain(), ARM64)
	prev := target.Snapshot()
	for i := 0; i < 10; i++ {
		root := filepath.Join("install", "arm64", fmt.Sprintf("L%d", i))
		target.RegisterInstall(Install{
			IncludeDir:   filepath.Join(root, "include"),
			LibDir:       filepath.Join(root, "lib"),
			PkgConfigDir: filepath.Join(root, "lib", "pkgconfig"),
		})
		next := target.Snapshot()
		if !isPrefix(prev.CFlags, next.CFlags) || len(next.CFlags) != i+1 {
			t.Fatalf("step %d: cflags %v do not extend %v", i, next.CFlags, prev.CFlags)
		}
		if !isPrefix(prev.LDFlags, next.LDFlags) || len(next.LDFlags) != i+1 {
			t.Fatalf("step %d: ldflags %v do not extend %v", i, next.LDFlags, prev.LDFlags)
		}
		if !isPrefix(prev.PkgConfigPath, next.PkgConfigPath) || len(next.PkgConfigPath) != i+1 {
			t.Fatalf("step %d: pkg-config path %v does not extend %v", i, next.PkgConfigPath, prev.PkgConfigPath)
		}
		prev = next
	}
}

func TestRegisterInstallIsolation(t *testing.T) {
	tc := testToolchain()
	targets := NewTargets(tc, []ID{ARM64, X86_64})
	a, b := targets[0], targets[1]

	a.RegisterInstall(Install{IncludeDir: "install/arm64/L1/include", LibDir: "install/arm64/L1/lib"})

	got := b.Snapshot()
	if len(got.CFlags) != 0 || len(got.LDFlags) != 0 || len(got.PkgConfigPath) != 0 {
		t.Fatalf("x86_64 snapshot = %+v, want empty", got)
	}
	if want := []string{"-Iinstall/arm64/L1/include"}; !cmp.Equal(a.Snapshot().CFlags, want) {
		t.Fatalf("arm64 cflags = %v, want %v", a.Snapshot().CFlags, want)
	}
}

func TestRegisterInstallDeduplicates(t *testing.T) {
	target := NewTarget(testToolchain(), X86_64)
	l1 := Install{IncludeDir: "install/x86_64/L1/include", LibDir: "install/x86_64/L1/lib", PkgConfigDir: "install/x86_64/L1/lib/pkgconfig"}
	l2 := Install{IncludeDir: "install/x86_64/L2/include", LibDir: "install/x86_64/L2/lib"}

	target.RegisterInstall(l1)
	target.RegisterInstall(l2)
	first := target.Snapshot()
	target.RegisterInstall(l1)
	target.RegisterInstall(l2)

	if diff := cmp.Diff(first, target.Snapshot()); diff != "" {
		t.Fatalf("re-registration changed snapshot (-want +got):\n%s", diff)
	}
}

func TestRegisterInstallSkipsEmpty(t *testing.T) {
	target := NewTarget(testToolchain(), ARM32)
	target.RegisterInstall(Install{IncludeDir: "install/arm32/amf/include"})
	got := target.Snapshot()
	want := Snapshot{CFlags: []string{"-Iinstall/arm32/amf/include"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	target := NewTarget(testToolchain(), ARM64)
	target.RegisterInstall(Install{IncludeDir: "a"})
	snap := target.Snapshot()
	snap.CFlags[0] = "mutated"
	if got := target.Snapshot().CFlags[0]; got != "-Ia" {
		t.Fatalf("snapshot aliases target state: got %q", got)
	}
}

func TestRegisterInstallConcurrent(t *testing.T) {
	target := NewTarget(testToolchain(), ARM64)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target.RegisterInstall(Install{IncludeDir: fmt.Sprintf("inc%d", i)})
			_ = target.Snapshot()
		}(i)
	}
	wg.Wait()
	if got := len(target.Snapshot().CFlags); got != 32 {
		t.Fatalf("got %d cflags, want 32", got)
	}
}

func TestNewTarget(t *testing.T) {
	tc := testToolchain()
	x86 := NewTarget(tc, X86)
	if want := "/ndk/toolchains/llvm/prebuilt/linux-x86_64/bin/i686-linux-android28-clang"; x86.CC != want {
		t.Errorf("CC = %q, want %q", x86.CC, want)
	}
	if want := "/ndk/toolchains/llvm/prebuilt/linux-x86_64/bin/i686-linux-android28-clang++"; x86.CXX != want {
		t.Errorf("CXX = %q, want %q", x86.CXX, want)
	}
	if len(x86.ConfigureFlags) != 2 || x86.ConfigureFlags[0] != "--disable-asm" {
		t.Errorf("ConfigureFlags = %v", x86.ConfigureFlags)
	}
	arm := NewTarget(tc, ARM32)
	if arm.CompilerPrefix != "armv7a-linux-androideabi28" {
		t.Errorf("CompilerPrefix = %q", arm.CompilerPrefix)
	}
	if len(arm.ConfigureFlags) != 0 {
		t.Errorf("arm32 ConfigureFlags = %v, want none", arm.ConfigureFlags)
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{"arm64", ARM64, false},
		{"aarch64", ARM64, false},
		{"arm64-v8a", ARM64, false},
		{"arm", ARM32, false},
		{"armeabi-v7a", ARM32, false},
		{"X86", X86, false},
		{"i686", X86, false},
		{"x86_64", X86_64, false},
		{"mips", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("ParseID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseIDsRejectsDuplicates(t *testing.T) {
	if _, err := ParseIDs([]string{"arm64", "aarch64"}); err == nil {
		t.Fatal("expected duplicate error")
	}
	ids, err := ParseIDs([]string{"x86_64", "arm"})
	if err != nil {
		t.Fatal(err)
	}
	if want := []ID{X86_64, ARM32}; !cmp.Equal(ids, want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
}
