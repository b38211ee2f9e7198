package image

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/imageforge/internal/activation"
)

// fakeToolchain records calls instead of shelling out.
type fakeToolchain struct {
	fatCalls    []string
	rootCalls   []string
	gptParts    []Partition
	stagedFiles map[string][]string
}

func newFakeToolchain() *fakeToolchain {
	return &fakeToolchain{stagedFiles: make(map[string][]string)}
}

func (f *fakeToolchain) FormatFAT(_ context.Context, path, label, srcDir string) error {
	f.fatCalls = append(f.fatCalls, path)
	f.stagedFiles[path] = listNames(srcDir)
	return nil
}

func (f *fakeToolchain) FormatRootFS(_ context.Context, path, srcDir string) error {
	f.rootCalls = append(f.rootCalls, path)
	f.stagedFiles[path] = listNames(srcDir)
	return nil
}

func (f *fakeToolchain) WriteGPT(_ context.Context, _ string, parts []Partition) error {
	f.gptParts = parts
	return nil
}

func listNames(dir string) []string {
	entries, _ := os.ReadDir(dir)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func writeArtifacts(t *testing.T) BootArtifacts {
	t.Helper()
	dir := t.TempDir()
	art := BootArtifacts{
		Bootloader: filepath.Join(dir, "bootloader.efi"),
		Kernel:     filepath.Join(dir, "kernel"),
		Initfs:     filepath.Join(dir, "initfs"),
	}
	for _, p := range []string{art.Bootloader, art.Kernel, art.Initfs} {
		require.NoError(t, os.WriteFile(p, []byte("elf"), 0o755))
	}
	return art
}

func TestSizingArithmetic(t *testing.T) {
	s := NewSizing(512, 200)
	assert.Equal(t, int64(308), s.RootMB())
	assert.NoError(t, s.Validate())
}

func TestSizingErrorWhenDiskTooSmall(t *testing.T) {
	s := NewSizing(200, 200)
	err := s.Validate()
	var sizeErr *SizingError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, int64(-4), sizeErr.RootMB)
}

func TestSizingBoundary(t *testing.T) {
	// 268 = 200 boot + 4 overhead + 64 minimum root.
	assert.NoError(t, NewSizing(268, 200).Validate())
	assert.Error(t, NewSizing(267, 200).Validate())
}

func TestSizingDefaults(t *testing.T) {
	s := NewSizing(512, 0)
	assert.Equal(t, int64(DefaultBootMB), s.BootMB)
}

func TestBuildBootMissingArtifact(t *testing.T) {
	art := writeArtifacts(t)
	art.Kernel = filepath.Join(t.TempDir(), "absent")
	out := filepath.Join(t.TempDir(), "boot.img")

	err := BuildBoot(context.Background(), newFakeToolchain(), art, 8, out)
	var missing *MissingArtifactError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "kernel", missing.Name)
	assert.NoFileExists(t, out)
}

func TestBuildBoot(t *testing.T) {
	tc := newFakeToolchain()
	out := filepath.Join(t.TempDir(), "boot.img")

	require.NoError(t, BuildBoot(context.Background(), tc, writeArtifacts(t), 8, out))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, int64(8*mib), info.Size())

	require.Len(t, tc.fatCalls, 1)
	staged := tc.stagedFiles[tc.fatCalls[0]]
	assert.ElementsMatch(t, []string{"bootloader", "kernel", "initfs", "boot"}, staged)
}

func TestBuildRoot(t *testing.T) {
	tree := activation.NewTree()
	tree.AddFile("etc/hostname", []byte("redox\n"), 0o644)

	tc := newFakeToolchain()
	out := filepath.Join(t.TempDir(), "root.img")
	require.NoError(t, BuildRoot(context.Background(), tc, tree, writeArtifacts(t), 64, out))

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, int64(64*mib), info.Size())

	require.Len(t, tc.rootCalls, 1)
	assert.Contains(t, tc.stagedFiles[tc.rootCalls[0]], "etc")
	assert.Contains(t, tc.stagedFiles[tc.rootCalls[0]], "boot")
}

func TestBuildRootRejectsTinyImage(t *testing.T) {
	err := BuildRoot(context.Background(), newFakeToolchain(), activation.NewTree(),
		writeArtifacts(t), 16, filepath.Join(t.TempDir(), "root.img"))
	var sizeErr *SizingError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, int64(16), sizeErr.RootMB)
}

func TestComposeDiskSizingErrorBeforeOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "disk.img")
	err := ComposeDisk(context.Background(), newFakeToolchain(), NewSizing(200, 200), "x", "y", out)
	var sizeErr *SizingError
	require.ErrorAs(t, err, &sizeErr)
	assert.NoFileExists(t, out)
}

func TestComposeDisk(t *testing.T) {
	dir := t.TempDir()
	bootImg := filepath.Join(dir, "boot.img")
	rootImg := filepath.Join(dir, "root.img")
	require.NoError(t, os.WriteFile(bootImg, []byte("BOOTIMG"), 0o644))
	require.NoError(t, os.WriteFile(rootImg, []byte("ROOTIMG"), 0o644))

	tc := newFakeToolchain()
	out := filepath.Join(dir, "disk.img")
	s := NewSizing(512, 200)
	require.NoError(t, ComposeDisk(context.Background(), tc, s, bootImg, rootImg, out))

	require.Len(t, tc.gptParts, 2)
	assert.Equal(t, PartESP, tc.gptParts[0].Type)
	assert.Equal(t, int64(200), tc.gptParts[0].SizeMB)
	assert.True(t, tc.gptParts[0].Boot)
	assert.Equal(t, int64(0), tc.gptParts[1].SizeMB)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()

	info, err := f.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(512*mib), info.Size())

	buf := make([]byte, 7)
	_, err = f.ReadAt(buf, BootPartOffsetMB*mib)
	require.NoError(t, err)
	assert.Equal(t, "BOOTIMG", string(buf))

	_, err = f.ReadAt(buf, (BootPartOffsetMB+200)*mib)
	require.NoError(t, err)
	assert.Equal(t, "ROOTIMG", string(buf))
}
