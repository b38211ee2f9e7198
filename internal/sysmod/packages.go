package sysmod

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/imageforge/internal/module"
	"github.com/vk/imageforge/internal/typesys"
)

// packagesModule declares the package selection installed into the image.
// Resolution against the package cache happens at build time, not here.
func packagesModule() *module.Module {
	return &module.Module{
		Path: "packages",
		Options: map[string]*module.Option{
			"list": {
				Type:        typesys.ListOf(typesys.String()),
				Default:     cty.ListVal([]cty.Value{cty.StringVal("ion"), cty.StringVal("uutils")}),
				Description: "package names, resolved through the alias table",
			},
		},
	}
}

// programsModule renders per-program settings maps into etc/<name>.conf
// key=value files.
func programsModule() *module.Module {
	return &module.Module{
		Path: "programs",
		Options: map[string]*module.Option{
			"settings": {
				Type:        typesys.MapOf(typesys.MapOf(typesys.String())),
				Default:     cty.MapValEmpty(cty.Map(cty.String)),
				Description: "program name to key/value settings",
			},
		},
		Impl: func(c *module.EvalContext) (cty.Value, error) {
			settings, err := c.Option("settings")
			if err != nil {
				return cty.NilVal, err
			}
			if settings.IsNull() || settings.LengthInt() == 0 {
				return cty.EmptyObjectVal, nil
			}

			files := map[string]cty.Value{}
			byProgram := settings.AsValueMap()
			for _, program := range sortedKeys(byProgram) {
				kv := byProgram[program].AsValueMap()
				content := ""
				for _, key := range sortedKeys(kv) {
					content += key + "=" + kv[key].AsString() + "\n"
				}
				files["etc/"+program+".conf"] = fileVal(content, "644")
			}
			return cty.ObjectVal(map[string]cty.Value{
				"files": filesVal(files),
			}), nil
		},
	}
}

// servicesModule lets a profile append extra boot scripts without defining a
// module of its own.
func servicesModule() *module.Module {
	scriptType := typesys.Struct(map[string]*typesys.Type{
		"name":    typesys.String(),
		"stage":   typesys.Enum(StageEarly, StageRoot),
		"content": typesys.String(),
	}, "name", "content")

	return &module.Module{
		Path: "services",
		Options: map[string]*module.Option{
			"extraScripts": {
				Type:        typesys.ListOf(scriptType),
				Default:     cty.ListValEmpty(cty.DynamicPseudoType),
				Description: "additional init scripts, stage defaults to root",
			},
		},
		Impl: func(c *module.EvalContext) (cty.Value, error) {
			extra, err := c.Option("extraScripts")
			if err != nil {
				return cty.NilVal, err
			}
			if extra.IsNull() || extra.LengthInt() == 0 {
				return cty.EmptyObjectVal, nil
			}

			var scripts []cty.Value
			for it := extra.ElementIterator(); it.Next(); {
				_, el := it.Element()
				attrs := el.AsValueMap()
				stage := StageRoot
				if v, ok := attrs["stage"]; ok && !v.IsNull() {
					stage = v.AsString()
				}
				scripts = append(scripts, scriptVal(attrs["name"].AsString(), stage, attrs["content"].AsString()))
			}
			return cty.ObjectVal(map[string]cty.Value{
				"scripts": scriptsVal(scripts),
			}), nil
		},
	}
}
