package pkgset

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleIndex = `{
  "ion":    {"storePath": "/store/abc-ion-1.0",    "version": "1.0"},
  "uutils": {"storePath": "/store/def-uutils-0.4", "version": "0.4", "binaries": ["ls", "cat"]},
  "netutils": {"storePath": "/store/ghi-netutils-0.2", "version": "0.2"}
}`

func loadSample(t *testing.T) Index {
	t.Helper()
	idx, err := ParseIndex([]byte(sampleIndex))
	require.NoError(t, err)
	return idx
}

func TestResolve(t *testing.T) {
	pkgs, err := loadSample(t).Resolve([]string{"ion", "uutils"})
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	assert.Equal(t, "/store/abc-ion-1.0", pkgs[0].StorePath)
	assert.Equal(t, "0.4", pkgs[1].Version)
}

func TestResolveAlias(t *testing.T) {
	pkgs, err := loadSample(t).Resolve([]string{"coreutils", "bash"})
	require.NoError(t, err)
	assert.Equal(t, "uutils", pkgs[0].Name)
	assert.Equal(t, "ion", pkgs[1].Name)
}

func TestResolveUnknownPackage(t *testing.T) {
	_, err := loadSample(t).Resolve([]string{"ion", "netutil"})
	var unknown *UnknownPackageError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "netutil", unknown.Name)
	assert.Contains(t, unknown.Alternatives, "netutils")
}

func TestResolveUnknownFallsBackToFullNamespace(t *testing.T) {
	_, err := loadSample(t).Resolve([]string{"zzz"})
	var unknown *UnknownPackageError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"ion", "netutils", "uutils"}, unknown.Alternatives)
}

func TestLoadIndexMissingFileDegrades(t *testing.T) {
	idx, err := LoadIndex(context.Background(), filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Empty(t, idx)

	_, err = idx.Resolve([]string{"ion"})
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "bin", "ion"), []byte("elf"), 0o755))

	out := filepath.Join(t.TempDir(), "ion-1.0.tar.zst")
	record, err := Export(context.Background(), "ion", src, out)
	require.NoError(t, err)
	assert.Equal(t, "ion", record.Name)
	assert.Len(t, record.SHA256, 64)
	assert.Positive(t, record.Size)
	assert.FileExists(t, out+".json")

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	zr, err := zstd.NewReader(f)
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	assert.ElementsMatch(t, []string{"bin", "bin/ion"}, names)
}
