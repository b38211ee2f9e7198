package buildcfg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "x86_64-unknown-redox", s.Target)
	assert.Equal(t, int64(512), s.DiskSizeMB)
	assert.Equal(t, int64(200), s.BootSizeMB)
	assert.Equal(t, "info", s.LogLevel)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imageforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("disk_size_mb: 1024\nlog_level: debug\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), s.DiskSizeMB)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, int64(200), s.BootSizeMB)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "imageforge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profile: server\n"), 0o644))
	t.Setenv("IMAGEFORGE_PROFILE", "desktop")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "desktop", s.Profile)
}

func TestLoadMissingNamedFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadLevel(t *testing.T) {
	t.Setenv("IMAGEFORGE_LOG_LEVEL", "loud")
	_, err := Load("")
	assert.Error(t, err)
}

func TestBuildTimestampFixed(t *testing.T) {
	s := &Settings{BuildTime: "2026-01-15T12:00:00Z"}
	ts, err := s.BuildTimestamp()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC), ts)

	s.BuildTime = "not-a-time"
	_, err = s.BuildTimestamp()
	assert.Error(t, err)
}
