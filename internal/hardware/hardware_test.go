package hardware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func routeCommands(routes []Route) []string {
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		out = append(out, r.Command)
	}
	return out
}

func TestResolveUnion(t *testing.T) {
	res := Resolve(Input{
		StorageDrivers:  []string{"virtio-blk", "ahci"},
		NetworkDrivers:  []string{"virtio-net"},
		GraphicsDrivers: []string{"virtio-gpu"},
		GraphicsEnabled: true,
	})

	assert.Equal(t, []string{"ahci", "virtio-blk", "virtio-gpu", "virtio-net"}, res.AllDrivers)
	assert.Contains(t, routeCommands(res.RoutingTable), "/bin/virtio-gpud")
	assert.Equal(t, []string{"displayd", "inputd"}, res.ExtraDaemons)
}

func TestGraphicsDisabledExcludesDrivers(t *testing.T) {
	res := Resolve(Input{
		StorageDrivers:  []string{"virtio-blk"},
		GraphicsDrivers: []string{"virtio-gpu"},
		GraphicsEnabled: false,
	})

	assert.NotContains(t, res.AllDrivers, "virtio-gpu")
	assert.NotContains(t, routeCommands(res.RoutingTable), "/bin/virtio-gpud")
	assert.Empty(t, res.ExtraDaemons)
}

func TestDisabledDriverRowsRemovedDespiteSharedVendor(t *testing.T) {
	// virtio-blk and virtio-gpu share vendor 1af4. Only the enabled
	// driver's rows survive.
	res := Resolve(Input{
		StorageDrivers: []string{"virtio-blk"},
	})

	for _, route := range res.RoutingTable {
		assert.NotEqual(t, "/bin/virtio-gpud", route.Command)
	}
	assert.Contains(t, routeCommands(res.RoutingTable), "/bin/virtio-blkd")
}

func TestOrderIndependence(t *testing.T) {
	a := Resolve(Input{StorageDrivers: []string{"ahci", "nvme", "virtio-blk"}})
	b := Resolve(Input{StorageDrivers: []string{"virtio-blk", "ahci", "nvme"}})
	assert.Equal(t, a, b)
}

func TestDeduplication(t *testing.T) {
	res := Resolve(Input{
		StorageDrivers: []string{"virtio-blk"},
		NetworkDrivers: []string{"virtio-net", "virtio-net"},
	})
	assert.Equal(t, []string{"virtio-blk", "virtio-net"}, res.AllDrivers)
}

func TestUSBFixedDriver(t *testing.T) {
	res := Resolve(Input{USBEnabled: true})
	assert.Equal(t, []string{USBDriver}, res.AllDrivers)
	require.Len(t, res.RoutingTable, 1)
	assert.Equal(t, "0c", res.RoutingTable[0].Match.Class)
}

func TestAudioDaemon(t *testing.T) {
	res := Resolve(Input{AudioDrivers: []string{"ac97"}, AudioEnabled: true})
	assert.Equal(t, []string{"audiod"}, res.ExtraDaemons)
	assert.Contains(t, res.AllDrivers, "ac97")
}

func TestNonPCIDriverHasNoRows(t *testing.T) {
	res := Resolve(Input{GraphicsDrivers: []string{"vesa"}, GraphicsEnabled: true})
	assert.Contains(t, res.AllDrivers, "vesa")
	assert.Empty(t, res.RoutingTable)
	assert.False(t, Known("vesa"))
}

func TestCtyRoundTrip(t *testing.T) {
	res := Resolve(Input{
		StorageDrivers:  []string{"virtio-blk"},
		GraphicsDrivers: []string{"virtio-gpu"},
		GraphicsEnabled: true,
	})

	decoded := ResultFromCty(res.ToCty())
	assert.Equal(t, res.AllDrivers, decoded.AllDrivers)
	assert.Equal(t, res.ExtraDaemons, decoded.ExtraDaemons)
	assert.Equal(t, res.RoutingTable, decoded.RoutingTable)
}
