package image

import (
	"context"

	"github.com/vk/imageforge/internal/ctxlog"
	"github.com/vk/imageforge/internal/fsutil"
)

// ComposeDisk assembles the final disk image at outPath from the boot and
// root partition images: a fresh two-partition GPT with the boot partition
// at the fixed 1 MiB offset and the root partition immediately after,
// running to the end of the disk. Sizing is validated before any byte is
// written.
func ComposeDisk(ctx context.Context, tc Toolchain, s Sizing, bootImg, rootImg, outPath string) error {
	log := ctxlog.FromContext(ctx)
	if err := s.Validate(); err != nil {
		return err
	}
	for _, in := range []struct{ name, path string }{
		{"boot image", bootImg},
		{"root image", rootImg},
	} {
		if !fsutil.FileExists(in.path) {
			return &MissingArtifactError{Name: in.name, Path: in.path}
		}
	}
	log.Info("composing disk image", "path", outPath,
		"total_mb", s.TotalMB, "boot_mb", s.BootMB, "root_mb", s.RootMB())

	return fsutil.WithWorkDir(outPath, func(workDir, artifact string) error {
		if err := fsutil.Allocate(artifact, s.TotalMB*mib); err != nil {
			return err
		}

		parts := []Partition{
			{Name: "BOOT", Type: PartESP, SizeMB: s.BootMB, Boot: true},
			{Name: "ROOT", Type: PartRootFS, SizeMB: 0},
		}
		if err := tc.WriteGPT(ctx, artifact, parts); err != nil {
			return err
		}

		if err := fsutil.CopyRange(artifact, bootImg, BootPartOffsetMB*mib); err != nil {
			return err
		}
		return fsutil.CopyRange(artifact, rootImg, (BootPartOffsetMB+s.BootMB)*mib)
	})
}
