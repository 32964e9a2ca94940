// Package config assembles the immutable run configuration from defaults,
// an optional YAML or HCL file, environment variables and flags, in
// increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	"github.com/goplus/archbuild/internal/library"
	"github.com/goplus/archbuild/pkgs/arch"
)

// DefaultNDKVersion is the NDK release looked up under the SDK directory.
const DefaultNDKVersion = "29.0.14206865"

var buildTypes = []string{"Release", "Debug", "RelWithDebInfo", "MinSizeRel"}

// Config is the snapshot consumed by the orchestrator. It is not modified
// after Load returns.
type Config struct {
	NDKPath    string `yaml:"ndk_path" hcl:"ndk_path,optional"`
	NDKVersion string `yaml:"ndk_version" hcl:"ndk_version,optional"`
	NDKHost    string `yaml:"ndk_host" hcl:"ndk_host,optional"`
	API        string `yaml:"api" hcl:"api,optional"`

	Archs     []string `yaml:"archs" hcl:"archs,optional"`
	Libraries []string `yaml:"libraries" hcl:"libraries,optional"`
	// Versions maps a library name (or "ffmpeg") to its version.
	Versions map[string]string `yaml:"versions" hcl:"versions,optional"`

	Static        bool   `yaml:"static" hcl:"static,optional"`
	BuildType     string `yaml:"build_type" hcl:"build_type,optional"`
	Jobs          int    `yaml:"jobs" hcl:"jobs,optional"`
	Parallel      int    `yaml:"parallel" hcl:"parallel,optional"` // 0: one process per arch
	AcceptLicense bool   `yaml:"accept_license" hcl:"accept_license,optional"`

	WorkDir string `yaml:"work_dir" hcl:"work_dir,optional"`

	FetchAttempts int    `yaml:"fetch_attempts" hcl:"fetch_attempts,optional"`
	FetchBackoff  string `yaml:"fetch_backoff" hcl:"fetch_backoff,optional"`

	Verbose   bool   `yaml:"verbose" hcl:"verbose,optional"`
	LogLevel  string `yaml:"log_level" hcl:"log_level,optional"`
	LogFormat string `yaml:"log_format" hcl:"log_format,optional"`
}

func defaultNDKHost() string {
	if runtime.GOOS == "darwin" {
		return "darwin-x86_64"
	}
	return runtime.GOOS + "-x86_64"
}

// LatestNDK selects the newest NDK installed in the SDK.
const LatestNDK = "latest"

// sdkNDKDir returns the directory holding the side by side NDK installs.
func sdkNDKDir(getenv func(string) string) string {
	for _, key := range []string{"ANDROID_HOME", "ANDROID_SDK_ROOT"} {
		if sdk := getenv(key); sdk != "" {
			return filepath.Join(sdk, "ndk")
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Android", "sdk", "ndk")
	}
	return filepath.Join(home, "Android", "Sdk", "ndk")
}

func defaultNDKPath(getenv func(string) string, version string) (string, error) {
	dir := sdkNDKDir(getenv)
	if dir == "" {
		return "", nil
	}
	if version != LatestNDK {
		return filepath.Join(dir, version), nil
	}
	v, err := latestNDK(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, v), nil
}

// latestNDK returns the highest version directory in dir.
func latestNDK(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("look up installed NDKs: %w", err)
	}
	var best string
	for _, e := range entries {
		if !e.IsDir() || !semver.IsValid("v"+e.Name()) {
			continue
		}
		if best == "" || semver.Compare("v"+e.Name(), "v"+best) > 0 {
			best = e.Name()
		}
	}
	if best == "" {
		return "", fmt.Errorf("no NDK installed in %s", dir)
	}
	return best, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	versions := map[string]string{library.FFmpeg.Name: library.FFmpeg.DefaultVersion}
	for _, name := range library.Names() {
		s, _ := library.Lookup(name)
		versions[name] = s.DefaultVersion
	}
	archs := make([]string, len(arch.All))
	for i, id := range arch.All {
		archs[i] = id.String()
	}
	return &Config{
		NDKVersion:    DefaultNDKVersion,
		NDKHost:       defaultNDKHost(),
		API:           "28",
		Archs:         archs,
		Libraries:     slices.Clone(library.Default),
		Versions:      versions,
		Static:        true,
		BuildType:     "Release",
		Jobs:          runtime.NumCPU(),
		FetchAttempts: 3,
		FetchBackoff:  "2s",
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Version returns the configured version of a library or the consumer.
func (c *Config) Version(name string) string {
	return c.Versions[name]
}

// Backoff returns the initial fetch retry delay.
func (c *Config) Backoff() time.Duration {
	d, err := time.ParseDuration(c.FetchBackoff)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// ArchIDs parses Archs.
func (c *Config) ArchIDs() ([]arch.ID, error) {
	return arch.ParseIDs(c.Archs)
}

// Toolchain returns the NDK toolchain description.
func (c *Config) Toolchain() arch.Toolchain {
	return arch.Toolchain{NDK: c.NDKPath, Host: c.NDKHost, API: c.API}
}

// Validate checks the configuration. Unknown library names are reported
// by the orchestrator, not here, so that they map to their own exit code.
func (c *Config) Validate() error {
	if _, err := c.ArchIDs(); err != nil {
		return err
	}
	if len(c.Archs) == 0 {
		return fmt.Errorf("no architectures configured")
	}
	if c.NDKPath == "" {
		return fmt.Errorf("NDK path is not set")
	}
	if _, err := strconv.Atoi(c.API); err != nil {
		return fmt.Errorf("invalid Android API level %q", c.API)
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be positive, got %d", c.Jobs)
	}
	if c.Parallel < 0 {
		return fmt.Errorf("parallel must not be negative, got %d", c.Parallel)
	}
	if !slices.Contains(buildTypes, c.BuildType) {
		return fmt.Errorf("invalid build type %q (want one of %s)", c.BuildType, strings.Join(buildTypes, ", "))
	}
	if c.FetchAttempts < 1 {
		return fmt.Errorf("fetch attempts must be positive, got %d", c.FetchAttempts)
	}
	if _, err := time.ParseDuration(c.FetchBackoff); err != nil {
		return fmt.Errorf("invalid fetch backoff: %w", err)
	}
	for name, v := range c.Versions {
		if !semver.IsValid("v" + v) {
			return fmt.Errorf("invalid version %q for %s", v, name)
		}
	}
	return nil
}

// ParseBool accepts true, 1, on, yes and y (any case) as true; everything
// else is false.
func ParseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "on", "yes", "y":
		return true
	}
	return false
}
