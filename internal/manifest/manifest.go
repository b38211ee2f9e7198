// Package manifest defines the system manifest embedded into every built
// image at etc/imageforge/manifest.json. The manifest is the machine-readable
// record of what a generation contains; the on-target tooling reads it for
// info display and rebuild merging.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
)

// Version is the current manifest schema version.
const Version = 1

// TreePath is where the manifest lives inside the image.
const TreePath = "etc/imageforge/manifest.json"

type Manifest struct {
	ManifestVersion int                 `json:"manifestVersion"`
	System          SystemInfo          `json:"system"`
	Generation      GenerationInfo      `json:"generation"`
	Configuration   Configuration       `json:"configuration"`
	Packages        []Package           `json:"packages"`
	Drivers         Drivers             `json:"drivers"`
	Users           map[string]User     `json:"users"`
	Groups          map[string]Group    `json:"groups"`
	Services        Services            `json:"services"`
	Files           map[string]FileInfo `json:"files"`
}

type SystemInfo struct {
	Version  string `json:"version"`
	Target   string `json:"target"`
	Profile  string `json:"profile"`
	Hostname string `json:"hostname"`
	Timezone string `json:"timezone"`
}

type GenerationInfo struct {
	ID          uint32 `json:"id"`
	BuildHash   string `json:"buildHash"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
}

type Configuration struct {
	Boot       BootConfig       `json:"boot"`
	Hardware   HardwareConfig   `json:"hardware"`
	Networking NetworkingConfig `json:"networking"`
	Graphics   GraphicsConfig   `json:"graphics"`
	Security   SecurityConfig   `json:"security"`
	Logging    LoggingConfig    `json:"logging"`
	Power      PowerConfig      `json:"power"`
}

type BootConfig struct {
	DiskSizeMB int64 `json:"diskSizeMB"`
	ESPSizeMB  int64 `json:"espSizeMB"`
}

type HardwareConfig struct {
	StorageDrivers  []string `json:"storageDrivers"`
	NetworkDrivers  []string `json:"networkDrivers"`
	GraphicsDrivers []string `json:"graphicsDrivers"`
	AudioDrivers    []string `json:"audioDrivers"`
	USBEnabled      bool     `json:"usbEnabled"`
}

type NetworkingConfig struct {
	Enabled bool     `json:"enabled"`
	Mode    string   `json:"mode"`
	DNS     []string `json:"dns"`
}

type GraphicsConfig struct {
	Enabled    bool   `json:"enabled"`
	Resolution string `json:"resolution"`
}

type SecurityConfig struct {
	ProtectKernelSchemes bool `json:"protectKernelSchemes"`
	RequirePasswords     bool `json:"requirePasswords"`
	AllowRemoteRoot      bool `json:"allowRemoteRoot"`
}

type LoggingConfig struct {
	LogLevel       string `json:"logLevel"`
	KernelLogLevel string `json:"kernelLogLevel"`
	LogToFile      bool   `json:"logToFile"`
	MaxLogSizeMB   int64  `json:"maxLogSizeMB"`
}

type PowerConfig struct {
	ACPIEnabled   bool   `json:"acpiEnabled"`
	PowerAction   string `json:"powerAction"`
	RebootOnPanic bool   `json:"rebootOnPanic"`
}

type Package struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	StorePath string `json:"storePath,omitempty"`
}

type Drivers struct {
	All    []string `json:"all"`
	Initfs []string `json:"initfs"`
	Core   []string `json:"core"`
}

type User struct {
	UID   uint32 `json:"uid"`
	GID   uint32 `json:"gid"`
	Home  string `json:"home"`
	Shell string `json:"shell"`
}

type Group struct {
	GID     uint32   `json:"gid"`
	Members []string `json:"members"`
}

type Services struct {
	InitScripts   []string `json:"initScripts"`
	StartupScript string   `json:"startupScript"`
}

// FileInfo is one entry of the generated-file inventory.
type FileInfo struct {
	SHA256 string `json:"sha256"`
	Size   uint64 `json:"size"`
	Mode   string `json:"mode"`
}

// Encode renders the manifest as indented JSON with a trailing newline.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Load reads and decodes a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return Decode(data)
}

// Decode parses a manifest document.
func Decode(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.ManifestVersion > Version {
		return nil, fmt.Errorf("manifest version %d newer than supported %d", m.ManifestVersion, Version)
	}
	return &m, nil
}
