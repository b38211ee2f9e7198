package app

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/vk/imageforge/internal/activation"
	"github.com/vk/imageforge/internal/ctxlog"
	"github.com/vk/imageforge/internal/image"
	"github.com/vk/imageforge/internal/manifest"
	"github.com/vk/imageforge/internal/pkgset"
	"github.com/vk/imageforge/internal/profile"
)

// BuildResult records where the pipeline put its artifacts.
type BuildResult struct {
	Profile   string
	BootImage string
	RootImage string
	DiskImage string
	Manifest  *manifest.Manifest
	Realized  *profile.Realized
}

// Build runs the full pipeline for one profile: realize, activate, build the
// boot and root partition images concurrently, then compose the disk.
// Configuration errors abort before any artifact construction starts; an
// artifact error aborts only its own stage, and completed sibling artifacts
// remain valid on disk.
func (a *App) Build(ctx context.Context, profileName string) (*BuildResult, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	log := a.logger

	realized, err := a.Realize(profileName)
	if err != nil {
		return nil, err
	}
	if profileName == "" {
		profileName = a.settings.Profile
	}

	ts, err := a.settings.BuildTimestamp()
	if err != nil {
		return nil, err
	}

	sizing, err := a.sizing(realized)
	if err != nil {
		return nil, err
	}
	if err := sizing.Validate(); err != nil {
		return nil, err
	}

	pkgs, err := a.resolvePackages(ctx, realized)
	if err != nil {
		return nil, err
	}

	tree, err := activation.Compile(ctx, activation.Input{
		Realized:  realized,
		Packages:  stagedPackages(pkgs),
		Timestamp: ts,
	})
	if err != nil {
		return nil, err
	}

	m, err := manifest.Build(manifest.BuildInput{
		Realized:    realized,
		Tree:        tree,
		Packages:    pkgs,
		ProfileName: profileName,
		Target:      a.settings.Target,
		Generation:  a.settings.Generation,
		Timestamp:   ts,
	})
	if err != nil {
		return nil, err
	}
	encoded, err := m.Encode()
	if err != nil {
		return nil, err
	}
	tree.AddFile(manifest.TreePath, encoded, 0o644)

	outDir := filepath.Join(a.settings.OutputDir, profileName)
	result := &BuildResult{
		Profile:   profileName,
		BootImage: filepath.Join(outDir, "boot.img"),
		RootImage: filepath.Join(outDir, "root.img"),
		DiskImage: filepath.Join(outDir, "disk.img"),
		Manifest:  m,
		Realized:  realized,
	}
	art := a.artifacts()

	log.Info("building images", "profile", profileName,
		"total_mb", sizing.TotalMB, "boot_mb", sizing.BootMB, "root_mb", sizing.RootMB())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return image.BuildBoot(gctx, a.toolchain, art, sizing.BootMB, result.BootImage)
	})
	g.Go(func() error {
		return image.BuildRoot(gctx, a.toolchain, tree, art, sizing.RootMB(), result.RootImage)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := image.ComposeDisk(ctx, a.toolchain, sizing, result.BootImage, result.RootImage, result.DiskImage); err != nil {
		return nil, err
	}

	log.Info("build complete", "disk", result.DiskImage, "generation", m.Generation.ID)
	return result, nil
}

// sizing derives the disk layout. Profile overrides on the boot module win
// over the builder settings; the settings fill in when the profile says
// nothing.
func (a *App) sizing(realized *profile.Realized) (image.Sizing, error) {
	totalMB := a.settings.DiskSizeMB
	if realized.Tree.IsSet("boot", "diskSizeMB") {
		v, err := realized.Int("boot", "diskSizeMB")
		if err != nil {
			return image.Sizing{}, err
		}
		totalMB = v
	}
	bootMB := a.settings.BootSizeMB
	if realized.Tree.IsSet("boot", "espSizeMB") {
		v, err := realized.Int("boot", "espSizeMB")
		if err != nil {
			return image.Sizing{}, err
		}
		bootMB = v
	}
	return image.NewSizing(totalMB, bootMB), nil
}

// resolvePackages resolves the configured package list against the cache
// index. A missing or empty index degrades to an unresolved build with a
// warning instead of failing it.
func (a *App) resolvePackages(ctx context.Context, realized *profile.Realized) ([]pkgset.Package, error) {
	names, err := realized.StringList("packages", "list")
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}

	index, err := pkgset.LoadIndex(ctx, a.settings.CacheIndex)
	if err != nil {
		return nil, err
	}
	if len(index) == 0 {
		a.logger.Warn("empty package index, packages will not be staged", "index", a.settings.CacheIndex)
		return nil, nil
	}

	pkgs, err := index.Resolve(names)
	if err != nil {
		return nil, fmt.Errorf("resolving package list: %w", err)
	}
	return pkgs, nil
}

func stagedPackages(pkgs []pkgset.Package) []activation.Package {
	out := make([]activation.Package, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, activation.Package{Name: p.Name, Binaries: p.BinaryPaths()})
	}
	return out
}

func (a *App) artifacts() image.BootArtifacts {
	return image.BootArtifacts{
		Bootloader: filepath.Join(a.settings.ArtifactDir, "bootloader"),
		Kernel:     filepath.Join(a.settings.ArtifactDir, "kernel"),
		Initfs:     filepath.Join(a.settings.ArtifactDir, "initfs"),
	}
}
