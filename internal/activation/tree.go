// Package activation compiles a realized configuration into a deterministic
// in-memory filesystem tree and materializes it to disk. The tree is the
// single source of truth for what ends up inside the root image: directories,
// symlinks, generated files, boot scripts, the user database, and package
// binaries.
package activation

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileEntry is one generated file in the tree.
type FileEntry struct {
	Content []byte
	Mode    fs.FileMode
}

// FilesystemTree is the in-memory model of the root filesystem. Paths are
// slash-separated and relative to the filesystem root, without a leading
// slash. Binaries map a target path to a source path on the build host; the
// copy happens at materialization.
type FilesystemTree struct {
	Dirs     []string
	Symlinks map[string]string
	Files    map[string]FileEntry
	Binaries map[string]string
}

// NewTree returns an empty tree with all maps allocated.
func NewTree() *FilesystemTree {
	return &FilesystemTree{
		Symlinks: make(map[string]string),
		Files:    make(map[string]FileEntry),
		Binaries: make(map[string]string),
	}
}

// AddDir records a directory, deduplicating repeats.
func (t *FilesystemTree) AddDir(path string) {
	path = cleanPath(path)
	if path == "" {
		return
	}
	for _, d := range t.Dirs {
		if d == path {
			return
		}
	}
	t.Dirs = append(t.Dirs, path)
}

// AddFile records a generated file. A later add at the same path replaces the
// earlier one.
func (t *FilesystemTree) AddFile(path string, content []byte, mode fs.FileMode) {
	t.Files[cleanPath(path)] = FileEntry{Content: content, Mode: mode}
}

// FilePaths returns all generated file paths, sorted.
func (t *FilesystemTree) FilePaths() []string {
	paths := make([]string, 0, len(t.Files))
	for p := range t.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Has reports whether path exists in the tree as a file, binary or symlink.
func (t *FilesystemTree) Has(path string) bool {
	path = cleanPath(path)
	if _, ok := t.Files[path]; ok {
		return true
	}
	if _, ok := t.Binaries[path]; ok {
		return true
	}
	_, ok := t.Symlinks[path]
	return ok
}

// Materialize writes the tree under root. Directories first, then files and
// binary copies, symlinks last.
func (t *FilesystemTree) Materialize(root string) error {
	for _, dir := range t.sortedDirs() {
		if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	for _, path := range t.FilePaths() {
		entry := t.Files[path]
		dst := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("creating parent of %s: %w", path, err)
		}
		if err := os.WriteFile(dst, entry.Content, entry.Mode); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}

	for _, path := range sortedKeys(t.Binaries) {
		if err := copyBinary(t.Binaries[path], filepath.Join(root, filepath.FromSlash(path))); err != nil {
			return fmt.Errorf("copying binary %s: %w", path, err)
		}
	}

	for _, path := range sortedKeys(t.Symlinks) {
		dst := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("creating parent of %s: %w", path, err)
		}
		if err := os.Symlink(t.Symlinks[path], dst); err != nil && !os.IsExist(err) {
			return fmt.Errorf("linking %s: %w", path, err)
		}
	}
	return nil
}

func (t *FilesystemTree) sortedDirs() []string {
	dirs := make([]string, len(t.Dirs))
	copy(dirs, t.Dirs)
	sort.Strings(dirs)
	return dirs
}

func copyBinary(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func cleanPath(p string) string {
	return strings.Trim(filepath.ToSlash(filepath.Clean("/"+p)), "/")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
