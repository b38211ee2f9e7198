// Package hardware maps enabled driver choices to the low-level
// device-routing table consumed by the PCI daemon, plus the auxiliary
// services implied by feature flags. It is pure computation over the
// realized hardware configuration; the driver registry itself is static.
package hardware

import (
	"sort"
)

// Match is a PCI match rule: either vendor/device or class/subclass.
type Match struct {
	Vendor   string
	Device   string
	Class    string
	Subclass string
}

// Entry associates one match rule with a display name in the registry.
type Entry struct {
	Match   Match
	Display string
}

// Route is one row of the device-routing table: when a device matches, the
// command is spawned to drive it.
type Route struct {
	Match   Match
	Command string
	Display string
}

// USBDriver is the fixed driver staged whenever USB support is enabled.
const USBDriver = "xhci"

// registry maps driver identifiers to their PCI match rules. Drivers absent
// from this table (non-PCI drivers like vesa) still ship in the image but
// contribute no routing rows.
var registry = map[string][]Entry{
	"virtio-blk": {
		{Match: Match{Vendor: "1af4", Device: "1001"}, Display: "VirtIO Block Device (legacy)"},
		{Match: Match{Vendor: "1af4", Device: "1042"}, Display: "VirtIO Block Device"},
	},
	"ahci": {
		{Match: Match{Class: "01", Subclass: "06"}, Display: "AHCI SATA Controller"},
	},
	"nvme": {
		{Match: Match{Class: "01", Subclass: "08"}, Display: "NVMe Controller"},
	},
	"ide": {
		{Match: Match{Class: "01", Subclass: "01"}, Display: "IDE Controller"},
	},
	"virtio-net": {
		{Match: Match{Vendor: "1af4", Device: "1000"}, Display: "VirtIO Network Device (legacy)"},
		{Match: Match{Vendor: "1af4", Device: "1041"}, Display: "VirtIO Network Device"},
	},
	"e1000": {
		{Match: Match{Vendor: "8086", Device: "100e"}, Display: "Intel E1000 Ethernet"},
	},
	"rtl8168": {
		{Match: Match{Vendor: "10ec", Device: "8168"}, Display: "Realtek RTL8168 Ethernet"},
	},
	"virtio-gpu": {
		{Match: Match{Vendor: "1af4", Device: "1050"}, Display: "VirtIO GPU"},
	},
	"bga": {
		{Match: Match{Vendor: "1234", Device: "1111"}, Display: "Bochs Graphics Adapter"},
	},
	"intel-hda": {
		{Match: Match{Class: "04", Subclass: "03"}, Display: "Intel HD Audio"},
	},
	"ac97": {
		{Match: Match{Vendor: "8086", Device: "2415"}, Display: "AC'97 Audio"},
	},
	USBDriver: {
		{Match: Match{Class: "0c", Subclass: "03"}, Display: "xHCI USB Controller"},
	},
}

// Known reports whether the registry has match rules for the driver.
func Known(driver string) bool {
	_, ok := registry[driver]
	return ok
}

// Input is the slice of realized configuration the resolver consumes.
type Input struct {
	StorageDrivers  []string
	NetworkDrivers  []string
	GraphicsDrivers []string
	AudioDrivers    []string
	GraphicsEnabled bool
	AudioEnabled    bool
	USBEnabled      bool
}

// Result is the resolver's computed output.
type Result struct {
	// AllDrivers is the deduplicated, sorted set of driver binaries to stage
	// into the image.
	AllDrivers []string
	// RoutingTable holds one row per match rule of each enabled driver.
	// Disabling a driver removes its rows even if another enabled driver
	// shares a vendor ID.
	RoutingTable []Route
	// ExtraDaemons are non-PCI auxiliary services implied by feature flags.
	ExtraDaemons []string
}

// Resolve computes the enabled driver set and its routing table. The result
// depends only on set membership, never on the order drivers were listed.
func Resolve(in Input) Result {
	enabled := make(map[string]bool)
	add := func(drivers []string) {
		for _, d := range drivers {
			enabled[d] = true
		}
	}

	add(in.StorageDrivers)
	add(in.NetworkDrivers)
	if in.GraphicsEnabled {
		add(in.GraphicsDrivers)
	}
	if in.AudioEnabled {
		add(in.AudioDrivers)
	}
	if in.USBEnabled {
		enabled[USBDriver] = true
	}

	all := make([]string, 0, len(enabled))
	for d := range enabled {
		all = append(all, d)
	}
	sort.Strings(all)

	var routes []Route
	for _, driver := range all {
		for _, entry := range registry[driver] {
			routes = append(routes, Route{
				Match:   entry.Match,
				Command: "/bin/" + driver + "d",
				Display: entry.Display,
			})
		}
	}

	var daemons []string
	if in.GraphicsEnabled {
		daemons = append(daemons, "displayd", "inputd")
	}
	if in.AudioEnabled {
		daemons = append(daemons, "audiod")
	}
	sort.Strings(daemons)

	return Result{AllDrivers: all, RoutingTable: routes, ExtraDaemons: daemons}
}
