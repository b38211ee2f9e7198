package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vk/imageforge/internal/activation"
	"github.com/vk/imageforge/internal/hardware"
	"github.com/vk/imageforge/internal/module"
	"github.com/vk/imageforge/internal/pkgset"
	"github.com/vk/imageforge/internal/profile"
)

// coreDaemons always run regardless of configuration.
var coreDaemons = []string{"init", "logd"}

// BuildInput carries everything needed to assemble a manifest.
type BuildInput struct {
	Realized    *profile.Realized
	Tree        *activation.FilesystemTree
	Packages    []pkgset.Package
	ProfileName string
	Target      string
	Generation  uint32
	Description string
	Timestamp   time.Time
}

// Build assembles the manifest for one realized build. The file inventory
// covers the generated files of the activation tree; package binaries are
// accounted for by the package list, not hashed individually.
func Build(in BuildInput) (*Manifest, error) {
	m := &Manifest{
		ManifestVersion: Version,
		Files:           make(map[string]FileInfo),
	}

	r := in.Realized
	var err error
	if m.System, err = systemInfo(r, in); err != nil {
		return nil, err
	}
	m.Generation = GenerationInfo{
		ID:          in.Generation,
		BuildHash:   r.InputHash(),
		Description: in.Description,
		Timestamp:   in.Timestamp.UTC().Format(time.RFC3339),
	}
	if m.Configuration, err = configuration(r); err != nil {
		return nil, err
	}
	if m.Drivers, err = drivers(r, m.Configuration.Hardware); err != nil {
		return nil, err
	}
	if err := accounts(r, m); err != nil {
		return nil, err
	}

	for _, p := range in.Packages {
		m.Packages = append(m.Packages, Package{Name: p.Name, Version: p.Version, StorePath: p.StorePath})
	}

	m.Services = services(in.Tree)

	for _, path := range in.Tree.FilePaths() {
		entry := in.Tree.Files[path]
		sum := sha256.Sum256(entry.Content)
		m.Files[path] = FileInfo{
			SHA256: hex.EncodeToString(sum[:]),
			Size:   uint64(len(entry.Content)),
			Mode:   fmt.Sprintf("%04o", entry.Mode.Perm()),
		}
	}

	return m, nil
}

func systemInfo(r *profile.Realized, in BuildInput) (SystemInfo, error) {
	var info SystemInfo
	var err error
	if info.Version, err = r.String("system", "version"); err != nil {
		return info, err
	}
	if info.Hostname, err = r.String("system", "hostname"); err != nil {
		return info, err
	}
	if info.Timezone, err = r.String("system", "timezone"); err != nil {
		return info, err
	}
	info.Target = in.Target
	info.Profile = in.ProfileName
	return info, nil
}

func configuration(r *profile.Realized) (Configuration, error) {
	var cfg Configuration

	read := func(dst *int64, path, name string) error {
		v, err := r.Int(path, name)
		if err == nil {
			*dst = v
		}
		return err
	}
	if err := read(&cfg.Boot.DiskSizeMB, "boot", "diskSizeMB"); err != nil {
		return cfg, err
	}
	if err := read(&cfg.Boot.ESPSizeMB, "boot", "espSizeMB"); err != nil {
		return cfg, err
	}

	var err error
	if cfg.Hardware.StorageDrivers, err = r.StringList("storage", "drivers"); err != nil {
		return cfg, err
	}
	if cfg.Hardware.NetworkDrivers, err = r.StringList("networking", "drivers"); err != nil {
		return cfg, err
	}
	if cfg.Hardware.GraphicsDrivers, err = r.StringList("graphics", "drivers"); err != nil {
		return cfg, err
	}
	if cfg.Hardware.AudioDrivers, err = r.StringList("audio", "drivers"); err != nil {
		return cfg, err
	}
	if cfg.Hardware.USBEnabled, err = r.Bool("usb", "enable"); err != nil {
		return cfg, err
	}

	if cfg.Networking.Enabled, err = r.Bool("networking", "enable"); err != nil {
		return cfg, err
	}
	if cfg.Networking.Mode, err = r.String("networking", "mode"); err != nil {
		return cfg, err
	}
	if cfg.Networking.DNS, err = r.StringList("networking", "dns"); err != nil {
		return cfg, err
	}

	if cfg.Graphics.Enabled, err = r.Bool("graphics", "enable"); err != nil {
		return cfg, err
	}
	if cfg.Graphics.Resolution, err = r.String("graphics", "resolution"); err != nil {
		return cfg, err
	}

	if cfg.Security.ProtectKernelSchemes, err = r.Bool("security", "protectKernelSchemes"); err != nil {
		return cfg, err
	}
	if cfg.Security.RequirePasswords, err = r.Bool("security", "requirePasswords"); err != nil {
		return cfg, err
	}
	if cfg.Security.AllowRemoteRoot, err = r.Bool("security", "allowRemoteRoot"); err != nil {
		return cfg, err
	}

	if cfg.Logging.LogLevel, err = r.String("logging", "logLevel"); err != nil {
		return cfg, err
	}
	if cfg.Logging.KernelLogLevel, err = r.String("logging", "kernelLogLevel"); err != nil {
		return cfg, err
	}
	if cfg.Logging.LogToFile, err = r.Bool("logging", "logToFile"); err != nil {
		return cfg, err
	}
	if cfg.Logging.MaxLogSizeMB, err = r.Int("logging", "maxLogSizeMB"); err != nil {
		return cfg, err
	}

	if cfg.Power.ACPIEnabled, err = r.Bool("power", "acpiEnable"); err != nil {
		return cfg, err
	}
	if cfg.Power.PowerAction, err = r.String("power", "powerAction"); err != nil {
		return cfg, err
	}
	if cfg.Power.RebootOnPanic, err = r.Bool("power", "rebootOnPanic"); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// drivers splits the resolved driver union into the manifest's views: the
// full set, the block drivers needed before the root mounts, and the core
// daemons.
func drivers(r *profile.Realized, hw HardwareConfig) (Drivers, error) {
	out, err := r.Output("hardware")
	if err != nil {
		return Drivers{}, err
	}
	res := hardware.ResultFromCty(out)

	initfs := make([]string, len(hw.StorageDrivers))
	copy(initfs, hw.StorageDrivers)
	sort.Strings(initfs)

	core := append([]string{}, coreDaemons...)
	core = append(core, res.ExtraDaemons...)
	sort.Strings(core)

	return Drivers{All: res.AllDrivers, Initfs: initfs, Core: core}, nil
}

func accounts(r *profile.Realized, m *Manifest) error {
	out, err := r.Output("users")
	if err != nil {
		return err
	}

	m.Users = make(map[string]User)
	for name, val := range out.GetAttr("users").AsValueMap() {
		uid, _ := val.GetAttr("uid").AsBigFloat().Int64()
		gid, _ := val.GetAttr("gid").AsBigFloat().Int64()
		m.Users[name] = User{
			UID:   uint32(uid),
			GID:   uint32(gid),
			Home:  val.GetAttr("home").AsString(),
			Shell: val.GetAttr("shell").AsString(),
		}
	}

	m.Groups = make(map[string]Group)
	for name, val := range out.GetAttr("groups").AsValueMap() {
		gid, _ := val.GetAttr("gid").AsBigFloat().Int64()
		m.Groups[name] = Group{
			GID:     uint32(gid),
			Members: module.StringSlice(val.GetAttr("members")),
		}
	}
	return nil
}

func services(tree *activation.FilesystemTree) Services {
	var scripts []string
	for _, path := range tree.FilePaths() {
		if strings.HasPrefix(path, "etc/init.d/") || strings.HasPrefix(path, "etc/early.d/") {
			scripts = append(scripts, path)
		}
	}
	return Services{InitScripts: scripts, StartupScript: ""}
}
