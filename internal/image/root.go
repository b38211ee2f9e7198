package image

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/imageforge/internal/activation"
	"github.com/vk/imageforge/internal/ctxlog"
	"github.com/vk/imageforge/internal/fsutil"
)

// BuildRoot produces the root filesystem image at outPath from the compiled
// activation tree. The zero-filled image file is allocated at its exact final
// size before formatting, since the formatter requires a pre-existing file;
// the kernel and ramdisk are also staged under /boot inside the tree so the
// running system can inspect what it booted from.
func BuildRoot(ctx context.Context, tc Toolchain, tree *activation.FilesystemTree, art BootArtifacts, sizeMB int64, outPath string) error {
	log := ctxlog.FromContext(ctx)
	if err := art.check(); err != nil {
		return err
	}
	if sizeMB < MinRootMB {
		return &SizingError{Sizing: Sizing{MinRootMB: MinRootMB}, RootMB: sizeMB}
	}
	log.Info("building root image", "path", outPath, "size_mb", sizeMB, "files", len(tree.Files))

	return fsutil.WithWorkDir(outPath, func(workDir, artifact string) error {
		if err := fsutil.Allocate(artifact, sizeMB*mib); err != nil {
			return err
		}

		stage := filepath.Join(workDir, "stage")
		if err := tree.Materialize(stage); err != nil {
			return fmt.Errorf("materializing filesystem tree: %w", err)
		}

		bootDir := filepath.Join(stage, "boot")
		if err := os.MkdirAll(bootDir, 0o755); err != nil {
			return err
		}
		for _, cp := range []struct{ src, dst string }{
			{art.Kernel, "kernel"},
			{art.Initfs, "initfs"},
		} {
			if err := copyFile(cp.src, filepath.Join(bootDir, cp.dst)); err != nil {
				return fmt.Errorf("staging /boot/%s: %w", cp.dst, err)
			}
		}

		// Format and populate happen in one step.
		return tc.FormatRootFS(ctx, artifact, stage)
	})
}
