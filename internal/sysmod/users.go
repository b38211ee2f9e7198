package sysmod

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/imageforge/internal/module"
	"github.com/vk/imageforge/internal/typesys"
)

// usersModule declares user and group accounts. It normalizes the account
// maps into fully-populated objects; activation encodes them into etc/passwd
// and etc/group.
func usersModule() *module.Module {
	userType := typesys.Struct(map[string]*typesys.Type{
		"uid":        typesys.Int(),
		"gid":        typesys.Int(),
		"password":   typesys.String(),
		"realname":   typesys.String(),
		"home":       typesys.String(),
		"shell":      typesys.String(),
		"createHome": typesys.Bool(),
	}, "uid", "gid")

	groupType := typesys.Struct(map[string]*typesys.Type{
		"gid":     typesys.Int(),
		"members": typesys.ListOf(typesys.String()),
	}, "gid")

	defaultUsers := cty.ObjectVal(map[string]cty.Value{
		"root": cty.ObjectVal(map[string]cty.Value{
			"uid":   cty.NumberIntVal(0),
			"gid":   cty.NumberIntVal(0),
			"home":  cty.StringVal("/root"),
			"shell": cty.StringVal("/bin/ion"),
		}),
		"user": cty.ObjectVal(map[string]cty.Value{
			"uid":   cty.NumberIntVal(1000),
			"gid":   cty.NumberIntVal(1000),
			"home":  cty.StringVal("/home/user"),
			"shell": cty.StringVal("/bin/ion"),
		}),
	})

	defaultGroups := cty.ObjectVal(map[string]cty.Value{
		"root": cty.ObjectVal(map[string]cty.Value{
			"gid":     cty.NumberIntVal(0),
			"members": cty.ListVal([]cty.Value{cty.StringVal("root")}),
		}),
		"user": cty.ObjectVal(map[string]cty.Value{
			"gid":     cty.NumberIntVal(1000),
			"members": cty.ListVal([]cty.Value{cty.StringVal("user")}),
		}),
	})

	return &module.Module{
		Path: "users",
		Options: map[string]*module.Option{
			"users": {
				Type:        typesys.MapOf(userType),
				Default:     defaultUsers,
				Description: "accounts keyed by login name",
			},
			"groups": {
				Type:        typesys.MapOf(groupType),
				Default:     defaultGroups,
				Description: "groups keyed by group name",
			},
		},
		Impl: func(c *module.EvalContext) (cty.Value, error) {
			users, err := c.Option("users")
			if err != nil {
				return cty.NilVal, err
			}
			groups, err := c.Option("groups")
			if err != nil {
				return cty.NilVal, err
			}

			byName := users.AsValueMap()
			normalized := make(map[string]cty.Value, len(byName))
			var homeDirs []cty.Value
			for _, name := range sortedKeys(byName) {
				user := normalizeUser(name, byName[name])
				normalized[name] = user
				if user.GetAttr("createHome").True() {
					homeDirs = append(homeDirs, user.GetAttr("home"))
				}
			}

			out := map[string]cty.Value{
				"users":  cty.ObjectVal(normalized),
				"groups": normalizeGroups(groups),
			}
			if len(homeDirs) > 0 {
				out["dirs"] = cty.ListVal(homeDirs)
			}
			return cty.ObjectVal(out), nil
		},
	}
}

// normalizeUser fills unset account fields with their conventional defaults.
// realname falls back to the login name.
func normalizeUser(name string, val cty.Value) cty.Value {
	attrs := val.AsValueMap()
	out := map[string]cty.Value{
		"uid":        attrs["uid"],
		"gid":        attrs["gid"],
		"password":   cty.StringVal(""),
		"realname":   cty.StringVal(name),
		"home":       cty.StringVal("/home/" + name),
		"shell":      cty.StringVal("/bin/ion"),
		"createHome": cty.True,
	}
	for field, v := range attrs {
		if !v.IsNull() {
			out[field] = v
		}
	}
	return cty.ObjectVal(out)
}

func normalizeGroups(groups cty.Value) cty.Value {
	byName := groups.AsValueMap()
	out := make(map[string]cty.Value, len(byName))
	for _, name := range sortedKeys(byName) {
		attrs := byName[name].AsValueMap()
		members := attrs["members"]
		if v, ok := attrs["members"]; !ok || v.IsNull() {
			members = cty.ListValEmpty(cty.String)
		}
		out[name] = cty.ObjectVal(map[string]cty.Value{
			"gid":     attrs["gid"],
			"members": members,
		})
	}
	if len(out) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(out)
}
