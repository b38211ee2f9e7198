// Package hclload parses profile definition files. A profile file declares
// named profiles, each a set of module blocks whose attributes become option
// overrides:
//
//	profile "desktop" {
//	  extends = "default"
//	  module "graphics" {
//	    enable = true
//	  }
//	}
package hclload

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/imageforge/internal/ctxlog"
	"github.com/vk/imageforge/internal/fsutil"
	"github.com/vk/imageforge/internal/module"
	"github.com/vk/imageforge/internal/profile"
)

// ProfileDef is one parsed profile block, before extends-resolution.
type ProfileDef struct {
	Name    string
	Extends string
	Patch   module.Overrides
}

var rootSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "profile", LabelNames: []string{"name"}},
	},
}

var profileSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "extends"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "module", LabelNames: []string{"path"}},
	},
}

// LoadDir parses every .hcl file under dir and resolves profile inheritance
// against the given base profiles.
func LoadDir(ctx context.Context, dir string, base map[string]*profile.Profile) (map[string]*profile.Profile, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.FindFilesByExtension(dir, ".hcl")
	if err != nil {
		return nil, err
	}
	logger.Debug("discovered profile files", "dir", dir, "count", len(files))

	parser := hclparse.NewParser()
	var defs []ProfileDef
	for _, path := range files {
		hclFile, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse profile file %s: %w", path, diags)
		}
		fileDefs, err := decodeFile(hclFile.Body)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		defs = append(defs, fileDefs...)
	}

	return ResolveProfiles(defs, base)
}

// ParseProfiles decodes profile definitions from a single in-memory source,
// used by tests and by the info command's dry-run mode.
func ParseProfiles(src []byte, filename string) ([]ProfileDef, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, diags)
	}
	return decodeFile(hclFile.Body)
}

func decodeFile(body hcl.Body) ([]ProfileDef, error) {
	content, diags := body.Content(rootSchema)
	if diags.HasErrors() {
		return nil, diags
	}

	var defs []ProfileDef
	for _, block := range content.Blocks {
		def, err := decodeProfile(block)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func decodeProfile(block *hcl.Block) (ProfileDef, error) {
	def := ProfileDef{Name: block.Labels[0], Patch: make(module.Overrides)}

	content, diags := block.Body.Content(profileSchema)
	if diags.HasErrors() {
		return def, diags
	}

	if attr, ok := content.Attributes["extends"]; ok {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return def, diags
		}
		if val.Type() != cty.String {
			return def, fmt.Errorf("profile %q: extends must be a string", def.Name)
		}
		def.Extends = val.AsString()
	}

	for _, mod := range content.Blocks {
		path := mod.Labels[0]
		attrs, diags := mod.Body.JustAttributes()
		if diags.HasErrors() {
			return def, diags
		}
		opts := make(map[string]cty.Value, len(attrs))
		for name, attr := range attrs {
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				return def, fmt.Errorf("profile %q, module %q, option %q: %w", def.Name, path, name, diags)
			}
			opts[name] = val
		}
		if existing, ok := def.Patch[path]; ok {
			for name, val := range opts {
				existing[name] = val
			}
		} else {
			def.Patch[path] = opts
		}
	}
	return def, nil
}

// ResolveProfiles layers each definition over its extends parent. Parents may
// come from the base map or from earlier definitions in the same load.
func ResolveProfiles(defs []ProfileDef, base map[string]*profile.Profile) (map[string]*profile.Profile, error) {
	out := make(map[string]*profile.Profile, len(base)+len(defs))
	for name, p := range base {
		out[name] = p
	}

	pending := append([]ProfileDef{}, defs...)
	for len(pending) > 0 {
		progressed := false
		var next []ProfileDef
		for _, def := range pending {
			if def.Extends == "" {
				out[def.Name] = &profile.Profile{Name: def.Name, Patch: def.Patch.Clone()}
				progressed = true
				continue
			}
			parent, ok := out[def.Extends]
			if !ok {
				next = append(next, def)
				continue
			}
			out[def.Name] = parent.Extend(def.Name, def.Patch)
			progressed = true
		}
		if !progressed {
			return nil, fmt.Errorf("profile %q extends unknown profile %q", next[0].Name, next[0].Extends)
		}
		pending = next
	}
	return out, nil
}
