package manifest

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/imageforge/internal/activation"
	"github.com/vk/imageforge/internal/module"
	"github.com/vk/imageforge/internal/pkgset"
	"github.com/vk/imageforge/internal/profile"
	"github.com/vk/imageforge/internal/sysmod"
)

var buildTime = time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

func buildManifest(t *testing.T, overrides module.Overrides) *Manifest {
	t.Helper()
	r, err := profile.Realize(sysmod.NewSet(), []*profile.Profile{{Name: "default", Patch: overrides}})
	require.NoError(t, err)
	tree, err := activation.Compile(context.Background(), activation.Input{
		Realized:  r,
		Timestamp: buildTime,
	})
	require.NoError(t, err)

	m, err := Build(BuildInput{
		Realized:    r,
		Tree:        tree,
		Packages:    []pkgset.Package{{Name: "ion", Version: "1.0", StorePath: "/store/abc-ion-1.0"}},
		ProfileName: "default",
		Target:      "x86_64-unknown-redox",
		Generation:  3,
		Timestamp:   buildTime,
	})
	require.NoError(t, err)
	return m
}

func TestBuildManifest(t *testing.T) {
	m := buildManifest(t, nil)

	assert.Equal(t, Version, m.ManifestVersion)
	assert.Equal(t, "redox", m.System.Hostname)
	assert.Equal(t, "x86_64-unknown-redox", m.System.Target)
	assert.Equal(t, uint32(3), m.Generation.ID)
	assert.Equal(t, "2026-01-15T12:00:00Z", m.Generation.Timestamp)
	assert.Len(t, m.Generation.BuildHash, 64)

	assert.Equal(t, int64(512), m.Configuration.Boot.DiskSizeMB)
	assert.Equal(t, "dhcp", m.Configuration.Networking.Mode)
	assert.False(t, m.Configuration.Graphics.Enabled)

	assert.Contains(t, m.Drivers.All, "virtio-blk")
	assert.Equal(t, []string{"virtio-blk"}, m.Drivers.Initfs)
	assert.Contains(t, m.Drivers.Core, "init")
	assert.Contains(t, m.Drivers.Core, "logd")

	require.Contains(t, m.Users, "root")
	assert.Equal(t, uint32(0), m.Users["root"].UID)
	assert.Equal(t, "/bin/ion", m.Users["root"].Shell)

	require.Len(t, m.Packages, 1)
	assert.Equal(t, "ion", m.Packages[0].Name)

	assert.Contains(t, m.Services.InitScripts, "etc/early.d/10_pcid")
	assert.Contains(t, m.Services.InitScripts, "etc/init.d/20_net_dhcp")
}

func TestFileInventory(t *testing.T) {
	m := buildManifest(t, nil)

	info, ok := m.Files["etc/hostname"]
	require.True(t, ok)
	assert.Len(t, info.SHA256, 64)
	assert.Equal(t, uint64(6), info.Size)
	assert.Equal(t, "0644", info.Mode)

	script, ok := m.Files["etc/init.d/20_net_dhcp"]
	require.True(t, ok)
	assert.Equal(t, "0755", script.Mode)
}

func TestManifestJSONSchema(t *testing.T) {
	m := buildManifest(t, nil)
	data, err := m.Encode()
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"manifestVersion", "system", "generation", "configuration",
		"packages", "drivers", "users", "groups", "services", "files"} {
		assert.Contains(t, raw, key)
	}
	assert.Contains(t, string(data), `"diskSizeMB"`)
	assert.Contains(t, string(data), `"maxLogSizeMB"`)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, m.Generation, decoded.Generation)
	assert.Equal(t, m.Configuration, decoded.Configuration)
}

func TestDecodeRejectsNewerVersion(t *testing.T) {
	_, err := Decode([]byte(`{"manifestVersion": 99}`))
	assert.Error(t, err)
}

func TestDiff(t *testing.T) {
	before := buildManifest(t, nil)
	after := buildManifest(t, module.Overrides{
		"system":   {"hostname": cty.StringVal("webserver")},
		"graphics": {"enable": cty.True},
	})
	after.Generation.ID = 4
	after.Packages = append(after.Packages, Package{Name: "orbital", Version: "0.1"})

	d := Diff(before, after)
	assert.False(t, d.Empty())
	assert.Equal(t, []string{"orbital"}, d.PackagesAdded)
	assert.Empty(t, d.PackagesRemoved)
	assert.Contains(t, d.DriversAdded, "virtio-gpu")
	assert.Contains(t, d.ConfigChanges, "system.hostname: redox -> webserver")
	assert.Contains(t, d.ConfigChanges, "graphics.enabled: false -> true")
	assert.Equal(t, uint32(3), d.GenerationFrom)
	assert.Equal(t, uint32(4), d.GenerationTo)
}

func TestDiffIdentical(t *testing.T) {
	a := buildManifest(t, nil)
	b := buildManifest(t, nil)
	assert.True(t, Diff(a, b).Empty())
}
