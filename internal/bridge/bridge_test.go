package bridge

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/imageforge/internal/pkgset"
	"github.com/vk/imageforge/internal/profile"
	"github.com/vk/imageforge/internal/sysmod"
)

func testBridge(t *testing.T) *Bridge {
	t.Helper()
	idx, err := pkgset.ParseIndex([]byte(`{
		"ion":     {"storePath": "/store/abc-ion-1.0", "version": "1.0", "binaries": ["ion"]},
		"uutils":  {"storePath": "/store/def-uutils-0.4", "version": "0.4"},
		"orbital": {"storePath": "/store/ghi-orbital-0.2", "version": "0.2", "binaries": ["orbital"]}
	}`))
	require.NoError(t, err)
	return &Bridge{
		Set:        sysmod.NewSet(),
		Base:       []*profile.Profile{sysmod.BaseProfile()},
		Index:      idx,
		Target:     "x86_64-unknown-redox",
		Generation: 1,
		Timestamp:  time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestParseRequestAssignsID(t *testing.T) {
	req, err := ParseRequest([]byte(`{"config": {"hostname": "box"}}`))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(req.RequestID, "rebuild-"))
	require.NotNil(t, req.Config.Hostname)
	assert.Equal(t, "box", *req.Config.Hostname)
}

func TestParseRequestKeepsID(t *testing.T) {
	req, err := ParseRequest([]byte(`{"requestId": "rebuild-42", "config": {}}`))
	require.NoError(t, err)
	assert.Equal(t, "rebuild-42", req.RequestID)
}

func TestRebuildHostname(t *testing.T) {
	req, err := ParseRequest([]byte(`{"requestId": "rebuild-1", "config": {"hostname": "webserver"}}`))
	require.NoError(t, err)

	resp, result := testBridge(t).Rebuild(context.Background(), req)
	require.Equal(t, "success", resp.Status)
	require.NotNil(t, result)

	assert.Equal(t, "webserver", result.Manifest.System.Hostname)
	assert.Equal(t, uint32(2), result.Manifest.Generation.ID)
	assert.Equal(t, "webserver\n", string(result.Tree.Files["etc/hostname"].Content))
}

func TestRebuildNetworkingPassThrough(t *testing.T) {
	req, err := ParseRequest([]byte(`{
		"requestId": "rebuild-2",
		"config": {
			"networking": {
				"mode": "static",
				"interfaces": {"eth0": {"address": "10.1.2.3", "gateway": "10.1.2.1"}}
			}
		}
	}`))
	require.NoError(t, err)

	resp, result := testBridge(t).Rebuild(context.Background(), req)
	require.Equal(t, "success", resp.Status)

	script := string(result.Tree.Files["etc/init.d/20_net_static"].Content)
	assert.Contains(t, script, "10.1.2.3")
	assert.Contains(t, script, "10.1.2.1")
	assert.Equal(t, "static", result.Manifest.Configuration.Networking.Mode)
}

func TestRebuildAppendsPackagesToBase(t *testing.T) {
	req, err := ParseRequest([]byte(`{"requestId": "rebuild-3", "config": {"packages": ["orbital"], "hostname": "host2"}}`))
	require.NoError(t, err)

	resp, result := testBridge(t).Rebuild(context.Background(), req)
	require.Equal(t, "success", resp.Status)

	// The base profile's packages survive; requested ones are appended.
	names, err := result.Realized.StringList("packages", "list")
	require.NoError(t, err)
	assert.Equal(t, []string{"ion", "uutils", "orbital"}, names)
	assert.Equal(t, "host2", result.Manifest.System.Hostname)

	require.Len(t, result.Packages, 3)
	assert.Equal(t, "orbital", result.Packages[2].Name)
	assert.Equal(t, "/store/ghi-orbital-0.2", result.Packages[2].StorePath)
}

func TestRebuildDeduplicatesPackages(t *testing.T) {
	// coreutils is an alias for uutils, which the base profile already lists.
	req, err := ParseRequest([]byte(`{"requestId": "rebuild-8", "config": {"packages": ["coreutils", "ion", "orbital"]}}`))
	require.NoError(t, err)

	resp, result := testBridge(t).Rebuild(context.Background(), req)
	require.Equal(t, "success", resp.Status)

	names, err := result.Realized.StringList("packages", "list")
	require.NoError(t, err)
	assert.Equal(t, []string{"ion", "uutils", "orbital"}, names)
}

func TestRebuildStagesPackageBinaries(t *testing.T) {
	req, err := ParseRequest([]byte(`{"requestId": "rebuild-9", "config": {"packages": ["orbital"]}}`))
	require.NoError(t, err)

	resp, result := testBridge(t).Rebuild(context.Background(), req)
	require.Equal(t, "success", resp.Status)

	assert.Equal(t, "/store/abc-ion-1.0/bin/ion", result.Tree.Binaries["bin/ion"])
	assert.Equal(t, "/store/ghi-orbital-0.2/bin/orbital", result.Tree.Binaries["usr/bin/orbital"])
	assert.True(t, result.Tree.Has("bin/sh"))
}

func TestRebuildUnknownPackage(t *testing.T) {
	req, err := ParseRequest([]byte(`{"requestId": "rebuild-4", "config": {"packages": ["emacs"]}}`))
	require.NoError(t, err)

	resp, result := testBridge(t).Rebuild(context.Background(), req)
	assert.Equal(t, "error", resp.Status)
	assert.Nil(t, result)
	assert.Contains(t, resp.Error, "emacs")
	assert.Contains(t, resp.Error, "ion")
	assert.Equal(t, "rebuild-4", resp.RequestID)
}

func TestRebuildRejectsUnknownOption(t *testing.T) {
	req, err := ParseRequest([]byte(`{"requestId": "rebuild-5", "config": {"networking": {"bogus": true}}}`))
	require.NoError(t, err)

	resp, result := testBridge(t).Rebuild(context.Background(), req)
	assert.Equal(t, "error", resp.Status)
	assert.Nil(t, result)
	assert.Contains(t, resp.Error, "bogus")
}

func TestRebuildUsersPassThrough(t *testing.T) {
	req, err := ParseRequest([]byte(`{
		"requestId": "rebuild-6",
		"config": {"users": {"alice": {"uid": 1001, "gid": 1001}}}
	}`))
	require.NoError(t, err)

	resp, result := testBridge(t).Rebuild(context.Background(), req)
	require.Equal(t, "success", resp.Status)
	require.Contains(t, result.Manifest.Users, "alice")
	assert.Equal(t, uint32(1001), result.Manifest.Users["alice"].UID)
}

func TestResponseEnvelopeJSON(t *testing.T) {
	req, err := ParseRequest([]byte(`{"requestId": "rebuild-7", "config": {}}`))
	require.NoError(t, err)

	resp, _ := testBridge(t).Rebuild(context.Background(), req)
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "status")
	assert.Contains(t, raw, "requestId")
	assert.Contains(t, raw, "manifest")
	assert.NotContains(t, raw, "error")
}
