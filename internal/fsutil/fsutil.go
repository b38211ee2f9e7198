// Package fsutil provides file system helpers shared by the loaders and the
// image builders.
package fsutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FindFilesByExtension recursively searches the given root path for all files
// ending with the specified extension. It returns a slice of their full paths.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return files, nil
}

// Allocate creates path as a zero-filled file of exactly size bytes,
// truncating any existing content. Formatters require the file to exist at
// its final size before they run.
func Allocate(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return fmt.Errorf("sizing %s to %d bytes: %w", path, size, err)
	}
	return f.Close()
}

// CopyRange copies the whole of src into dst starting at offset. dst must
// already be large enough.
func CopyRange(dst, src string, offset int64) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	if _, err := out.Seek(offset, io.SeekStart); err != nil {
		out.Close()
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s into %s at %d: %w", src, dst, offset, err)
	}
	return out.Close()
}

// WithWorkDir runs fn with a private scratch directory next to target, then
// atomically renames the artifact fn produced (workdir/name) into place. On
// any failure the work dir is removed and target is left untouched.
func WithWorkDir(target string, fn func(workDir, artifact string) error) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	workDir, err := os.MkdirTemp(dir, ".work-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)

	artifact := filepath.Join(workDir, filepath.Base(target))
	if err := fn(workDir, artifact); err != nil {
		return err
	}
	return os.Rename(artifact, target)
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
