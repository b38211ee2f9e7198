package pkgset

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/vk/imageforge/internal/ctxlog"
	"github.com/vk/imageforge/internal/fsutil"
)

// ArchiveRecord is the metadata emitted next to an exported archive. The
// cache builder ingests the pair.
type ArchiveRecord struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Export packs srcDir into a zstd-compressed tar at outPath and writes the
// metadata record at outPath + ".json". The archive appears atomically.
func Export(ctx context.Context, name, srcDir, outPath string) (*ArchiveRecord, error) {
	log := ctxlog.FromContext(ctx)
	log.Info("exporting package archive", "name", name, "src", srcDir, "out", outPath)

	err := fsutil.WithWorkDir(outPath, func(workDir, artifact string) error {
		return writeArchive(srcDir, artifact)
	})
	if err != nil {
		return nil, err
	}

	record, err := recordFor(name, outPath)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(outPath+".json", append(data, '\n'), 0o644); err != nil {
		return nil, err
	}
	return record, nil
}

func writeArchive(srcDir, outPath string) error {
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(zw)

	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(tw, in)
		return err
	})
	if err != nil {
		return fmt.Errorf("archiving %s: %w", srcDir, err)
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

func recordFor(name, path string) (*ArchiveRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return nil, err
	}
	return &ArchiveRecord{Name: name, Size: size, SHA256: hex.EncodeToString(h.Sum(nil))}, nil
}
