package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/imageforge/internal/buildcfg"
	"github.com/vk/imageforge/internal/image"
)

type nopToolchain struct {
	fatCount  int
	rootCount int
	gptCount  int
}

func (n *nopToolchain) FormatFAT(context.Context, string, string, string) error {
	n.fatCount++
	return nil
}

func (n *nopToolchain) FormatRootFS(context.Context, string, string) error {
	n.rootCount++
	return nil
}

func (n *nopToolchain) WriteGPT(context.Context, string, []image.Partition) error {
	n.gptCount++
	return nil
}

func testSettings(t *testing.T) *buildcfg.Settings {
	t.Helper()
	root := t.TempDir()

	artifactDir := filepath.Join(root, "artifacts")
	require.NoError(t, os.MkdirAll(artifactDir, 0o755))
	for _, name := range []string{"bootloader", "kernel", "initfs"} {
		require.NoError(t, os.WriteFile(filepath.Join(artifactDir, name), []byte("elf"), 0o755))
	}

	storeDir := filepath.Join(root, "store", "abc-ion-1.0", "bin")
	require.NoError(t, os.MkdirAll(storeDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(storeDir, "ion"), []byte("elf"), 0o755))

	index := filepath.Join(root, "packages.json")
	indexJSON := `{
		"ion":    {"storePath": "` + filepath.Join(root, "store", "abc-ion-1.0") + `", "version": "1.0", "binaries": ["ion"]},
		"uutils": {"storePath": "` + filepath.Join(root, "store", "abc-ion-1.0") + `", "version": "0.4"}
	}`
	require.NoError(t, os.WriteFile(index, []byte(indexJSON), 0o644))

	return &buildcfg.Settings{
		Target:      "x86_64-unknown-redox",
		Profile:     "default",
		OutputDir:   filepath.Join(root, "out"),
		CacheIndex:  index,
		ArtifactDir: artifactDir,
		DiskSizeMB:  512,
		BootSizeMB:  200,
		Generation:  1,
		LogLevel:    "error",
		LogFormat:   "text",
		BuildTime:   "2026-01-15T12:00:00Z",
	}
}

func newTestApp(t *testing.T, settings *buildcfg.Settings) (*App, *nopToolchain) {
	t.Helper()
	tc := &nopToolchain{}
	a, err := NewApp(os.Stderr, settings, WithToolchain(tc))
	require.NoError(t, err)
	return a, tc
}

func TestBuildPipeline(t *testing.T) {
	a, tc := newTestApp(t, testSettings(t))

	result, err := a.Build(context.Background(), "default")
	require.NoError(t, err)

	assert.FileExists(t, result.BootImage)
	assert.FileExists(t, result.RootImage)
	assert.FileExists(t, result.DiskImage)

	info, err := os.Stat(result.DiskImage)
	require.NoError(t, err)
	assert.Equal(t, int64(512<<20), info.Size())

	assert.Equal(t, 1, tc.fatCount)
	assert.Equal(t, 1, tc.rootCount)
	assert.Equal(t, 1, tc.gptCount)

	require.NotNil(t, result.Manifest)
	assert.Equal(t, uint32(1), result.Manifest.Generation.ID)
	assert.Equal(t, "2026-01-15T12:00:00Z", result.Manifest.Generation.Timestamp)
	assert.Len(t, result.Manifest.Packages, 2)
}

func TestBuildSizingErrorBeforeArtifacts(t *testing.T) {
	settings := testSettings(t)
	settings.DiskSizeMB = 200

	a, tc := newTestApp(t, settings)
	_, err := a.Build(context.Background(), "default")

	var sizeErr *image.SizingError
	require.ErrorAs(t, err, &sizeErr)
	assert.Zero(t, tc.fatCount)
	assert.Zero(t, tc.rootCount)
	assert.NoDirExists(t, filepath.Join(settings.OutputDir, "default"))
}

func TestBuildUnknownProfile(t *testing.T) {
	a, _ := newTestApp(t, testSettings(t))
	_, err := a.Build(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nonexistent")
	assert.Contains(t, err.Error(), "default")
}

func TestBuildMissingArtifact(t *testing.T) {
	settings := testSettings(t)
	require.NoError(t, os.Remove(filepath.Join(settings.ArtifactDir, "kernel")))

	a, _ := newTestApp(t, settings)
	_, err := a.Build(context.Background(), "default")

	var missing *image.MissingArtifactError
	require.ErrorAs(t, err, &missing)
}

func TestRealizationCache(t *testing.T) {
	a, _ := newTestApp(t, testSettings(t))

	r1, err := a.Realize("default")
	require.NoError(t, err)
	r2, err := a.Realize("default")
	require.NoError(t, err)
	assert.Same(t, r1, r2)
}

func TestProfileFilesLoaded(t *testing.T) {
	settings := testSettings(t)
	settings.ProfileDir = filepath.Join(t.TempDir(), "profiles")
	require.NoError(t, os.MkdirAll(settings.ProfileDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(settings.ProfileDir, "site.hcl"), []byte(`
profile "site" {
  extends = "default"
  module "system" {
    hostname = "site-box"
  }
}
`), 0o644))

	a, _ := newTestApp(t, settings)
	assert.Contains(t, a.ProfileNames(), "site")

	r, err := a.Realize("site")
	require.NoError(t, err)
	hostname, err := r.String("system", "hostname")
	require.NoError(t, err)
	assert.Equal(t, "site-box", hostname)
}

func TestRebuild(t *testing.T) {
	a, _ := newTestApp(t, testSettings(t))

	resp, result, err := a.Rebuild(context.Background(),
		[]byte(`{"requestId": "rebuild-9", "config": {"hostname": "renamed"}}`))
	require.NoError(t, err)
	require.Equal(t, "success", resp.Status)
	assert.Equal(t, "renamed", result.Manifest.System.Hostname)
	assert.Equal(t, uint32(2), result.Manifest.Generation.ID)
}
