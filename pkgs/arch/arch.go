// Package arch models the hardware variants a build targets and the flag
// state each of them accumulates while dependencies are installed.
package arch

import (
	"fmt"
	"strings"
)

// ID identifies one target architecture.
type ID string

const (
	ARM32  ID = "arm32"
	ARM64  ID = "arm64"
	X86    ID = "x86"
	X86_64 ID = "x86_64"
)

// All lists every supported architecture in canonical order.
var All = []ID{ARM32, ARM64, X86, X86_64}

type names struct {
	androidABI  string
	ffmpegArch  string
	aomTarget   string
	triple      string
	clangPrefix string
	crossPrefix string
	cpuFamily   string
	cpu         string
}

var table = map[ID]names{
	ARM32: {
		androidABI:  "armeabi-v7a",
		ffmpegArch:  "arm",
		aomTarget:   "armv7",
		triple:      "arm-linux-androideabi",
		clangPrefix: "armv7a-linux-androideabi",
		crossPrefix: "arm-linux-androideabi-",
		cpuFamily:   "arm",
		cpu:         "armv7",
	},
	ARM64: {
		androidABI:  "arm64-v8a",
		ffmpegArch:  "aarch64",
		aomTarget:   "arm64",
		triple:      "aarch64-linux-android",
		clangPrefix: "aarch64-linux-android",
		crossPrefix: "aarch64-linux-android-",
		cpuFamily:   "aarch64",
		cpu:         "armv8",
	},
	X86: {
		androidABI:  "x86",
		ffmpegArch:  "x86",
		aomTarget:   "x86",
		triple:      "i686-linux-android",
		clangPrefix: "i686-linux-android",
		crossPrefix: "i686-linux-android-",
		cpuFamily:   "x86",
		cpu:         "i686",
	},
	X86_64: {
		androidABI:  "x86_64",
		ffmpegArch:  "x86_64",
		aomTarget:   "x86_64",
		triple:      "x86_64-linux-android",
		clangPrefix: "x86_64-linux-android",
		crossPrefix: "x86_64-linux-android-",
		cpuFamily:   "x86_64",
		cpu:         "x86_64",
	},
}

var aliases = map[string]ID{
	"arm":         ARM32,
	"armv7":       ARM32,
	"armeabi-v7a": ARM32,
	"aarch64":     ARM64,
	"arm64-v8a":   ARM64,
	"i686":        X86,
	"amd64":       X86_64,
}

// ParseID parses an architecture identifier. Besides the canonical names it
// accepts the Android ABI and FFmpeg spellings.
func ParseID(s string) (ID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if _, ok := table[ID(s)]; ok {
		return ID(s), nil
	}
	if id, ok := aliases[s]; ok {
		return id, nil
	}
	return "", fmt.Errorf("unknown architecture %q", s)
}

// ParseIDs parses a list of identifiers, rejecting duplicates.
func ParseIDs(list []string) ([]ID, error) {
	seen := make(map[ID]bool, len(list))
	ids := make([]ID, 0, len(list))
	for _, s := range list {
		id, err := ParseID(s)
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate architecture %q", id)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

func (id ID) String() string { return string(id) }

// AndroidABI returns the NDK ABI name (armeabi-v7a, arm64-v8a, x86, x86_64).
func (id ID) AndroidABI() string { return table[id].androidABI }

// FFmpegArch returns the value for FFmpeg's --arch switch.
func (id ID) FFmpegArch() string { return table[id].ffmpegArch }

// AOMTarget returns libaom's AOM_TARGET_CPU value.
func (id ID) AOMTarget() string { return table[id].aomTarget }

// Triple returns the GNU host triple used by autoconf's --host.
func (id ID) Triple() string { return table[id].triple }

// CrossPrefix returns the binutils prefix FFmpeg expects in --cross-prefix.
func (id ID) CrossPrefix() string { return table[id].crossPrefix }

// MesonCPUFamily returns the host_machine cpu_family for meson cross files.
func (id ID) MesonCPUFamily() string { return table[id].cpuFamily }

// MesonCPU returns the host_machine cpu for meson cross files.
func (id ID) MesonCPU() string { return table[id].cpu }

// Is32Bit reports whether the architecture uses 32-bit pointers.
func (id ID) Is32Bit() bool { return id == ARM32 || id == X86 }
