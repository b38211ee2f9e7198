// Package image builds the bootable disk image: a FAT boot partition image,
// a root filesystem image, and the composed two-partition GPT disk. External
// formatting and partitioning tools are reached through the Toolchain
// interface so tests can run without them.
package image

import "fmt"

const (
	// DefaultBootMB is the boot partition size when the configuration does
	// not override it.
	DefaultBootMB = 200
	// DefaultOverheadMB accounts for the partition table and alignment gaps.
	DefaultOverheadMB = 4
	// MinRootMB is the smallest root filesystem worth formatting.
	MinRootMB = 64

	// BootPartOffsetMB is the fixed byte offset of the first partition.
	BootPartOffsetMB = 1

	mib = 1 << 20
)

// Sizing is the pure size arithmetic for one disk layout, in megabytes.
type Sizing struct {
	TotalMB    int64
	BootMB     int64
	OverheadMB int64
	MinRootMB  int64
}

// NewSizing fills the defaulted fields.
func NewSizing(totalMB, bootMB int64) Sizing {
	s := Sizing{TotalMB: totalMB, BootMB: bootMB, OverheadMB: DefaultOverheadMB, MinRootMB: MinRootMB}
	if s.BootMB == 0 {
		s.BootMB = DefaultBootMB
	}
	return s
}

// RootMB is the root partition size: total minus boot minus overhead.
func (s Sizing) RootMB() int64 {
	return s.TotalMB - s.BootMB - s.OverheadMB
}

// Validate checks the layout before anything touches disk.
func (s Sizing) Validate() error {
	if root := s.RootMB(); root < s.MinRootMB {
		return &SizingError{Sizing: s, RootMB: root}
	}
	return nil
}

// SizingError reports a root filesystem too small to be viable. It is raised
// before any byte of output is written. Sizing.TotalMB is zero when only the
// root size was checked.
type SizingError struct {
	Sizing Sizing
	RootMB int64
}

func (e *SizingError) Error() string {
	if e.Sizing.TotalMB == 0 {
		return fmt.Sprintf("root filesystem of %d MB below the %d MB minimum", e.RootMB, e.Sizing.MinRootMB)
	}
	return fmt.Sprintf("disk of %d MB leaves %d MB for the root filesystem after %d MB boot and %d MB overhead; need at least %d MB",
		e.Sizing.TotalMB, e.RootMB, e.Sizing.BootMB, e.Sizing.OverheadMB, e.Sizing.MinRootMB)
}

// MissingArtifactError reports a required input binary absent from the build
// host, detected before any output is produced.
type MissingArtifactError struct {
	Name string
	Path string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("required artifact %q not found at %s", e.Name, e.Path)
}
