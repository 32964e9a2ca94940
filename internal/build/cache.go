package build

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// An install directory that finished successfully carries a stamp:
//
//	install/<arch>/<lib>/
//	  .archbuild.json    # stamp: what was built and when
//	  include/
//	  lib/
//	  ...
const stampFile = ".archbuild.json"

// stamp identifies a completed install. A unit whose stamp matches the
// current configuration is not rebuilt.
type stamp struct {
	Library   string    `json:"library"`
	Version   string    `json:"version"`
	BuildType string    `json:"build_type"`
	Static    bool      `json:"static"`
	BuildTime time.Time `json:"build_time"`
}

func (s *stamp) matches(o *stamp) bool {
	return s.Library == o.Library && s.Version == o.Version &&
		s.BuildType == o.BuildType && s.Static == o.Static
}

func loadStamp(installDir string) (*stamp, error) {
	data, err := os.ReadFile(filepath.Join(installDir, stampFile))
	if err != nil {
		return nil, err
	}
	var s stamp
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func saveStamp(installDir string, s *stamp) error {
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(installDir, stampFile), data, 0o644)
}
