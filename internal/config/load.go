package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"gopkg.in/yaml.v3"
)

// Options controls Load.
type Options struct {
	// File is an optional .yaml, .yml or .hcl configuration file.
	File string
	// Getenv looks up environment variables. Defaults to os.Getenv.
	Getenv func(string) string
	// Override applies command line flags last.
	Override func(*Config)
}

// Load builds and validates a Config.
func Load(opts Options) (*Config, error) {
	cfg := Default()
	defaults := maps.Clone(cfg.Versions)

	if opts.File != "" {
		if err := decodeFile(opts.File, cfg); err != nil {
			return nil, err
		}
		// a file listing a few versions keeps the defaults of the others
		for name, v := range defaults {
			if _, ok := cfg.Versions[name]; !ok {
				if cfg.Versions == nil {
					cfg.Versions = make(map[string]string)
				}
				cfg.Versions[name] = v
			}
		}
	}

	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	if opts.Override != nil {
		opts.Override(cfg)
	}
	if cfg.WorkDir != "" {
		// adapters run inside build directories, so every path handed to
		// them must be absolute
		dir, err := filepath.Abs(cfg.WorkDir)
		if err != nil {
			return nil, fmt.Errorf("resolve work dir: %w", err)
		}
		cfg.WorkDir = dir
	}
	if cfg.NDKPath == "" {
		path, err := defaultNDKPath(getenv, cfg.NDKVersion)
		if err != nil {
			return nil, err
		}
		cfg.NDKPath = path
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	case ".hcl":
		parser := hclparse.NewParser()
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return fmt.Errorf("parse %s: %w", path, diags)
		}
		if diags := gohcl.DecodeBody(file.Body, nil, cfg); diags.HasErrors() {
			return fmt.Errorf("decode %s: %w", path, diags)
		}
		return nil
	}
	return fmt.Errorf("unsupported config file %s: want .yaml, .yml or .hcl", path)
}

// versionEnv returns the environment variable holding name's version,
// e.g. LIBAOM_VERSION.
func versionEnv(name string) string {
	return strings.ToUpper(name) + "_VERSION"
}

// versionEnvAliases lists older variable names still honored when the
// canonical one is unset.
var versionEnvAliases = map[string][]string{
	"libuavs3d": {"LIBUAVS3_VERSION"},
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		out = append(out, f)
	}
	return out
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	str("ANDROID_NDK_VERSION", &cfg.NDKVersion)
	str("ANDROID_NDK_PATH", &cfg.NDKPath)
	str("ANDROID_NDK_HOST", &cfg.NDKHost)
	str("ANDROID_API", &cfg.API)
	str("EXTERNAL_LIB_BUILD_TYPE", &cfg.BuildType)
	str("ARCHBUILD_WORK_DIR", &cfg.WorkDir)

	if v := getenv("STATIC_BUILD"); v != "" {
		cfg.Static = ParseBool(v)
	}
	if v := getenv("ARCHBUILD_ACCEPT_LICENSE"); v != "" {
		cfg.AcceptLicense = ParseBool(v)
	}
	if v := getenv("ARCHBUILD_JOBS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ARCHBUILD_JOBS: %w", err)
		}
		cfg.Jobs = n
	}
	if v := getenv("ARCHBUILD_PARALLEL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ARCHBUILD_PARALLEL: %w", err)
		}
		cfg.Parallel = n
	}
	if v := getenv("ARCHBUILD_ARCHS"); v != "" {
		cfg.Archs = splitList(v)
	}
	if v := getenv("ARCHBUILD_LIBRARIES"); v != "" {
		cfg.Libraries = splitList(v)
	}
	for name := range cfg.Versions {
		for _, key := range append([]string{versionEnv(name)}, versionEnvAliases[name]...) {
			if v := getenv(key); v != "" {
				cfg.Versions[name] = v
				break
			}
		}
	}
	return nil
}
