package image

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/vk/imageforge/internal/ctxlog"
)

// PartType selects the GPT type code for a partition.
type PartType int

const (
	PartESP PartType = iota
	PartRootFS
)

// Partition describes one GPT entry. SizeMB zero means "to end of disk".
type Partition struct {
	Name   string
	Type   PartType
	SizeMB int64
	Boot   bool
}

// Toolchain abstracts the external formatting and partitioning tools. The
// real implementation shells out; tests inject a fake that records calls.
type Toolchain interface {
	// FormatFAT formats path, which must already exist at its final size,
	// as a FAT filesystem and copies srcDir's contents into it.
	FormatFAT(ctx context.Context, path, label, srcDir string) error
	// FormatRootFS formats path in place and populates it from srcDir in
	// one step.
	FormatRootFS(ctx context.Context, path, srcDir string) error
	// WriteGPT writes a fresh GPT onto disk with the given partitions, the
	// first starting at the fixed 1 MiB offset.
	WriteGPT(ctx context.Context, disk string, parts []Partition) error
}

var gptTypeCodes = map[PartType]string{
	PartESP:    "ef00",
	PartRootFS: "8300",
}

// ExecToolchain runs the real tools. Zero value uses the conventional tool
// names from PATH.
type ExecToolchain struct {
	MkFAT  string // default mkfs.vfat
	MCopy  string // default mcopy
	MkFS   string // default redoxfs-mkfs
	SGDisk string // default sgdisk
}

var _ Toolchain = ExecToolchain{}

func (t ExecToolchain) FormatFAT(ctx context.Context, path, label, srcDir string) error {
	mkfat := t.MkFAT
	if mkfat == "" {
		mkfat = "mkfs.vfat"
	}
	if err := runTool(ctx, mkfat, "-n", label, path); err != nil {
		return err
	}
	mcopy := t.MCopy
	if mcopy == "" {
		mcopy = "mcopy"
	}
	return runTool(ctx, mcopy, "-s", "-i", path, srcDir+"/.", "::")
}

func (t ExecToolchain) FormatRootFS(ctx context.Context, path, srcDir string) error {
	mkfs := t.MkFS
	if mkfs == "" {
		mkfs = "redoxfs-mkfs"
	}
	return runTool(ctx, mkfs, path, srcDir)
}

func (t ExecToolchain) WriteGPT(ctx context.Context, disk string, parts []Partition) error {
	sgdisk := t.SGDisk
	if sgdisk == "" {
		sgdisk = "sgdisk"
	}
	// --clear with --mbrtogpt erases any existing gpt and mbr records.
	args := []string{"--clear", "--mbrtogpt"}
	for i, p := range parts {
		var size string
		if p.SizeMB > 0 {
			size = fmt.Sprintf("+%dM", p.SizeMB)
		}
		args = append(args, fmt.Sprintf("--new=%d::%s", i+1, size))
		args = append(args, fmt.Sprintf("--typecode=%d:%s", i+1, gptTypeCodes[p.Type]))
		if p.Name != "" {
			args = append(args, fmt.Sprintf("--change-name=%d:%s", i+1, p.Name))
		}
	}
	args = append(args, disk)
	return runTool(ctx, sgdisk, args...)
}

func runTool(ctx context.Context, name string, args ...string) error {
	log := ctxlog.FromContext(ctx)
	log.Debug("running tool", "cmd", name, "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w\n%s", name, strings.Join(args, " "), err, out)
	}
	return nil
}
