package image

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/imageforge/internal/ctxlog"
	"github.com/vk/imageforge/internal/fsutil"
)

// BootArtifacts are the host paths of the binaries staged into the boot
// partition.
type BootArtifacts struct {
	Bootloader string
	Kernel     string
	Initfs     string
}

// check returns a MissingArtifactError for the first absent binary.
func (a BootArtifacts) check() error {
	for _, bin := range []struct{ name, path string }{
		{"bootloader", a.Bootloader},
		{"kernel", a.Kernel},
		{"initfs", a.Initfs},
	} {
		if !fsutil.FileExists(bin.path) {
			return &MissingArtifactError{Name: bin.name, Path: bin.path}
		}
	}
	return nil
}

// BuildBoot produces the raw FAT boot partition image at outPath: the
// bootloader, kernel, early-boot ramdisk, and the boot pointer file the
// loader reads to find the kernel. All inputs are verified before any byte
// is written; the image appears atomically or not at all.
func BuildBoot(ctx context.Context, tc Toolchain, art BootArtifacts, sizeMB int64, outPath string) error {
	log := ctxlog.FromContext(ctx)
	if err := art.check(); err != nil {
		return err
	}
	if sizeMB == 0 {
		sizeMB = DefaultBootMB
	}
	log.Info("building boot image", "path", outPath, "size_mb", sizeMB)

	return fsutil.WithWorkDir(outPath, func(workDir, artifact string) error {
		stage := filepath.Join(workDir, "stage")
		if err := os.MkdirAll(stage, 0o755); err != nil {
			return err
		}
		for _, cp := range []struct{ src, dst string }{
			{art.Bootloader, "bootloader"},
			{art.Kernel, "kernel"},
			{art.Initfs, "initfs"},
		} {
			if err := copyFile(cp.src, filepath.Join(stage, cp.dst)); err != nil {
				return fmt.Errorf("staging %s: %w", cp.dst, err)
			}
		}
		if err := os.WriteFile(filepath.Join(stage, "boot"), []byte("kernel\ninitfs\n"), 0o644); err != nil {
			return err
		}

		if err := fsutil.Allocate(artifact, sizeMB*mib); err != nil {
			return err
		}
		return tc.FormatFAT(ctx, artifact, "BOOT", stage)
	})
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o755)
}
