package manifest

import (
	"fmt"
	"sort"
)

// Delta is the difference between two manifests, as shown by the info
// command and bridge dry runs.
type Delta struct {
	GenerationFrom uint32
	GenerationTo   uint32

	PackagesAdded   []string
	PackagesRemoved []string
	DriversAdded    []string
	DriversRemoved  []string
	UsersAdded      []string
	UsersRemoved    []string
	ConfigChanges   []string
}

// Empty reports whether the two manifests describe the same system.
func (d *Delta) Empty() bool {
	return len(d.PackagesAdded) == 0 && len(d.PackagesRemoved) == 0 &&
		len(d.DriversAdded) == 0 && len(d.DriversRemoved) == 0 &&
		len(d.UsersAdded) == 0 && len(d.UsersRemoved) == 0 &&
		len(d.ConfigChanges) == 0
}

// Diff compares two manifests.
func Diff(before, after *Manifest) *Delta {
	d := &Delta{
		GenerationFrom: before.Generation.ID,
		GenerationTo:   after.Generation.ID,
	}

	d.PackagesAdded, d.PackagesRemoved = setDiff(packageNames(before), packageNames(after))
	d.DriversAdded, d.DriversRemoved = setDiff(before.Drivers.All, after.Drivers.All)
	d.UsersAdded, d.UsersRemoved = setDiff(userNames(before), userNames(after))
	d.ConfigChanges = configChanges(before, after)
	return d
}

func configChanges(before, after *Manifest) []string {
	var changes []string
	record := func(field string, a, b any) {
		if a != b {
			changes = append(changes, fmt.Sprintf("%s: %v -> %v", field, a, b))
		}
	}

	record("system.hostname", before.System.Hostname, after.System.Hostname)
	record("system.timezone", before.System.Timezone, after.System.Timezone)
	record("boot.diskSizeMB", before.Configuration.Boot.DiskSizeMB, after.Configuration.Boot.DiskSizeMB)
	record("boot.espSizeMB", before.Configuration.Boot.ESPSizeMB, after.Configuration.Boot.ESPSizeMB)
	record("networking.enabled", before.Configuration.Networking.Enabled, after.Configuration.Networking.Enabled)
	record("networking.mode", before.Configuration.Networking.Mode, after.Configuration.Networking.Mode)
	record("graphics.enabled", before.Configuration.Graphics.Enabled, after.Configuration.Graphics.Enabled)
	record("graphics.resolution", before.Configuration.Graphics.Resolution, after.Configuration.Graphics.Resolution)
	record("security.protectKernelSchemes", before.Configuration.Security.ProtectKernelSchemes, after.Configuration.Security.ProtectKernelSchemes)
	record("security.requirePasswords", before.Configuration.Security.RequirePasswords, after.Configuration.Security.RequirePasswords)
	record("security.allowRemoteRoot", before.Configuration.Security.AllowRemoteRoot, after.Configuration.Security.AllowRemoteRoot)
	record("logging.logLevel", before.Configuration.Logging.LogLevel, after.Configuration.Logging.LogLevel)
	record("power.powerAction", before.Configuration.Power.PowerAction, after.Configuration.Power.PowerAction)
	return changes
}

func packageNames(m *Manifest) []string {
	names := make([]string, 0, len(m.Packages))
	for _, p := range m.Packages {
		names = append(names, p.Name)
	}
	return names
}

func userNames(m *Manifest) []string {
	names := make([]string, 0, len(m.Users))
	for n := range m.Users {
		names = append(names, n)
	}
	return names
}

// setDiff returns (added, removed) between two name sets, sorted.
func setDiff(before, after []string) (added, removed []string) {
	b := make(map[string]bool, len(before))
	for _, n := range before {
		b[n] = true
	}
	a := make(map[string]bool, len(after))
	for _, n := range after {
		a[n] = true
	}

	for n := range a {
		if !b[n] {
			added = append(added, n)
		}
	}
	for n := range b {
		if !a[n] {
			removed = append(removed, n)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
