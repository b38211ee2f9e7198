// Package buildcfg loads the builder's own settings: tool locations, artifact
// paths, default image sizes, and logging. These are build-host concerns and
// deliberately separate from the configuration modules that describe the
// target system.
package buildcfg

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "IMAGEFORGE_"

// Settings is the immutable builder configuration. Load layers defaults,
// an optional YAML file, and IMAGEFORGE_* environment variables.
type Settings struct {
	Target      string `koanf:"target"`
	Profile     string `koanf:"profile"`
	OutputDir   string `koanf:"output_dir"`
	ProfileDir  string `koanf:"profile_dir"`
	CacheIndex  string `koanf:"cache_index"`
	ArtifactDir string `koanf:"artifact_dir"`
	DiskSizeMB  int64  `koanf:"disk_size_mb"`
	BootSizeMB  int64  `koanf:"boot_size_mb"`
	Generation  uint32 `koanf:"generation"`
	LogLevel    string `koanf:"log_level"`
	LogFormat   string `koanf:"log_format"`
	BuildTime   string `koanf:"build_time"`
}

// Defaults returns the built-in settings.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"target":       "x86_64-unknown-redox",
		"profile":      "default",
		"output_dir":   "out",
		"profile_dir":  "profiles",
		"cache_index":  "cache/packages.json",
		"artifact_dir": "artifacts",
		"disk_size_mb": int64(512),
		"boot_size_mb": int64(200),
		"generation":   uint32(1),
		"log_level":    "info",
		"log_format":   "text",
	}
}

// Load reads settings with precedence env > file > defaults. An empty
// configPath skips the file layer; a named but missing file is an error.
func Load(configPath string) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("unmarshalling settings: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) validate() error {
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", s.LogLevel)
	}
	switch s.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q", s.LogFormat)
	}
	if s.DiskSizeMB <= 0 || s.BootSizeMB <= 0 {
		return fmt.Errorf("image sizes must be positive")
	}
	return nil
}

// BuildTimestamp returns the fixed build timestamp: the configured build_time
// when set, otherwise the current time truncated to the second. The value is
// fixed once per invocation so every generated artifact agrees on it.
func (s *Settings) BuildTimestamp() (time.Time, error) {
	if s.BuildTime == "" {
		return time.Now().UTC().Truncate(time.Second), nil
	}
	ts, err := time.Parse(time.RFC3339, s.BuildTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid build_time: %w", err)
	}
	return ts.UTC(), nil
}
