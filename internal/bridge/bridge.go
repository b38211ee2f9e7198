// Package bridge implements the rebuild request protocol: a JSON request
// describing configuration changes is translated into module overrides, the
// base profile is extended, and realization plus activation re-run. The
// bridge produces configuration and the activation tree only; it never
// builds images or touches a machine.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/vk/imageforge/internal/activation"
	"github.com/vk/imageforge/internal/ctxlog"
	"github.com/vk/imageforge/internal/manifest"
	"github.com/vk/imageforge/internal/module"
	"github.com/vk/imageforge/internal/pkgset"
	"github.com/vk/imageforge/internal/profile"
)

// Request is the rebuild request envelope.
type Request struct {
	RequestID string        `json:"requestId"`
	Config    RebuildConfig `json:"config"`
}

// RebuildConfig is the flat configuration change set. Only present fields
// override the base profile; the object-valued fields pass through to their
// module paths verbatim.
type RebuildConfig struct {
	Hostname   *string         `json:"hostname,omitempty"`
	Timezone   *string         `json:"timezone,omitempty"`
	Packages   []string        `json:"packages,omitempty"`
	Networking json.RawMessage `json:"networking,omitempty"`
	Graphics   json.RawMessage `json:"graphics,omitempty"`
	Security   json.RawMessage `json:"security,omitempty"`
	Logging    json.RawMessage `json:"logging,omitempty"`
	Power      json.RawMessage `json:"power,omitempty"`
	Programs   json.RawMessage `json:"programs,omitempty"`
	Users      json.RawMessage `json:"users,omitempty"`
}

// Response is the rebuild response envelope.
type Response struct {
	Status      string             `json:"status"`
	RequestID   string             `json:"requestId"`
	Manifest    *manifest.Manifest `json:"manifest,omitempty"`
	Error       string             `json:"error,omitempty"`
	BuildTimeMs int64              `json:"buildTimeMs,omitempty"`
}

// Result carries the full rebuild output for callers that need more than the
// wire response.
type Result struct {
	Realized *profile.Realized
	Tree     *activation.FilesystemTree
	Packages []pkgset.Package
	Manifest *manifest.Manifest
}

// NewRequestID generates a fresh rebuild request id.
func NewRequestID() string {
	return "rebuild-" + uuid.NewString()
}

// ParseRequest decodes a request document, assigning a request id when the
// sender omitted one.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parsing rebuild request: %w", err)
	}
	if req.RequestID == "" {
		req.RequestID = NewRequestID()
	}
	return &req, nil
}

// Bridge binds the module set, the base profiles, and the package index the
// rebuild requests resolve against.
type Bridge struct {
	Set        *module.Set
	Base       []*profile.Profile
	Index      pkgset.Index
	Target     string
	Generation uint32
	Timestamp  time.Time
}

// Rebuild serves one request. The response is always non-nil; the result is
// nil when the rebuild failed.
func (b *Bridge) Rebuild(ctx context.Context, req *Request) (*Response, *Result) {
	log := ctxlog.FromContext(ctx)
	start := time.Now()

	result, err := b.rebuild(ctx, req)
	if err != nil {
		log.Error("rebuild failed", "request_id", req.RequestID, "error", err)
		return &Response{Status: "error", RequestID: req.RequestID, Error: err.Error()}, nil
	}

	return &Response{
		Status:      "success",
		RequestID:   req.RequestID,
		Manifest:    result.Manifest,
		BuildTimeMs: time.Since(start).Milliseconds(),
	}, result
}

func (b *Bridge) rebuild(ctx context.Context, req *Request) (*Result, error) {
	overrides, err := Translate(req.Config)
	if err != nil {
		return nil, err
	}

	if len(req.Config.Packages) > 0 {
		merged, err := b.mergePackages(req.Config.Packages)
		if err != nil {
			return nil, err
		}
		names := make([]cty.Value, 0, len(merged))
		for _, name := range merged {
			names = append(names, cty.StringVal(name))
		}
		overrides.Apply(module.Overrides{"packages": {"list": cty.ListVal(names)}})
	}

	base := make([]*profile.Profile, len(b.Base))
	copy(base, b.Base)
	profiles := append(base, &profile.Profile{Name: "rebuild:" + req.RequestID, Patch: overrides})

	realized, err := profile.Realize(b.Set, profiles)
	if err != nil {
		return nil, err
	}
	pkgs, err := b.resolvePackages(ctx, realized)
	if err != nil {
		return nil, err
	}

	tree, err := activation.Compile(ctx, activation.Input{
		Realized:  realized,
		Packages:  stagedPackages(pkgs),
		Timestamp: b.Timestamp,
	})
	if err != nil {
		return nil, err
	}

	m, err := manifest.Build(manifest.BuildInput{
		Realized:    realized,
		Tree:        tree,
		Packages:    pkgs,
		ProfileName: baseProfileName(b.Base),
		Target:      b.Target,
		Generation:  b.Generation + 1,
		Description: "rebuild " + req.RequestID,
		Timestamp:   b.Timestamp,
	})
	if err != nil {
		return nil, err
	}

	return &Result{Realized: realized, Tree: tree, Packages: pkgs, Manifest: m}, nil
}

// mergePackages resolves the requested names against the index, then appends
// them to the base profile's package list, deduplicating by canonical name.
// A request adds packages to the system; it never drops what the base
// profile installs.
func (b *Bridge) mergePackages(requested []string) ([]string, error) {
	resolved, err := b.Index.Resolve(requested)
	if err != nil {
		return nil, err
	}
	baseRealized, err := profile.Realize(b.Set, b.Base)
	if err != nil {
		return nil, err
	}
	baseNames, err := baseRealized.StringList("packages", "list")
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var merged []string
	add := func(name string) {
		canon := pkgset.Canonical(name)
		if !seen[canon] {
			seen[canon] = true
			merged = append(merged, canon)
		}
	}
	for _, name := range baseNames {
		add(name)
	}
	for _, p := range resolved {
		add(p.Name)
	}
	return merged, nil
}

// resolvePackages resolves the realized package list for staging and the
// manifest. An empty index degrades to an unstaged rebuild with a warning;
// explicitly requested packages were already hard-checked in mergePackages.
func (b *Bridge) resolvePackages(ctx context.Context, realized *profile.Realized) ([]pkgset.Package, error) {
	names, err := realized.StringList("packages", "list")
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	if len(b.Index) == 0 {
		ctxlog.FromContext(ctx).Warn("empty package index, rebuild packages will not be staged")
		return nil, nil
	}
	return b.Index.Resolve(names)
}

func stagedPackages(pkgs []pkgset.Package) []activation.Package {
	out := make([]activation.Package, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, activation.Package{Name: p.Name, Binaries: p.BinaryPaths()})
	}
	return out
}

func baseProfileName(base []*profile.Profile) string {
	if len(base) == 0 {
		return "default"
	}
	return base[len(base)-1].Name
}

// Translate converts the flat request config into module overrides. Each
// pass-through object forwards its keys as option overrides on the matching
// module path.
func Translate(cfg RebuildConfig) (module.Overrides, error) {
	overrides := make(module.Overrides)

	if cfg.Hostname != nil {
		overrides.Apply(module.Overrides{"system": {"hostname": cty.StringVal(*cfg.Hostname)}})
	}
	if cfg.Timezone != nil {
		overrides.Apply(module.Overrides{"system": {"timezone": cty.StringVal(*cfg.Timezone)}})
	}

	for path, raw := range map[string]json.RawMessage{
		"networking": cfg.Networking,
		"graphics":   cfg.Graphics,
		"security":   cfg.Security,
		"logging":    cfg.Logging,
		"power":      cfg.Power,
		"programs":   cfg.Programs,
	} {
		if len(raw) == 0 {
			continue
		}
		opts, err := decodeOptions(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", path, err)
		}
		overrides.Apply(module.Overrides{path: opts})
	}

	if len(cfg.Users) > 0 {
		val, err := decodeValue(cfg.Users)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", "users", err)
		}
		overrides.Apply(module.Overrides{"users": {"users": val}})
	}

	return overrides, nil
}

// decodeOptions turns a JSON object into per-option cty values.
func decodeOptions(raw json.RawMessage) (map[string]cty.Value, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	opts := make(map[string]cty.Value, len(fields))
	for name, fieldRaw := range fields {
		val, err := decodeValue(fieldRaw)
		if err != nil {
			return nil, fmt.Errorf("option %q: %w", name, err)
		}
		opts[name] = val
	}
	return opts, nil
}

// decodeValue decodes arbitrary JSON into a cty value of its implied type.
func decodeValue(raw json.RawMessage) (cty.Value, error) {
	ty, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return cty.NilVal, err
	}
	return ctyjson.Unmarshal(raw, ty)
}
