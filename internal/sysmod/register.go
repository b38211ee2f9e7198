package sysmod

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/imageforge/internal/module"
	"github.com/vk/imageforge/internal/profile"
)

func builtins() []*module.Module {
	return []*module.Module{
		systemModule(),
		bootModule(),
		hardwareModule(),
		storageModule(),
		networkingModule(),
		graphicsModule(),
		audioModule(),
		usbModule(),
		securityModule(),
		loggingModule(),
		powerModule(),
		packagesModule(),
		usersModule(),
		programsModule(),
		servicesModule(),
	}
}

// RegisterAll installs every built-in module into the set.
func RegisterAll(set *module.Set) error {
	for _, m := range builtins() {
		if err := set.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// NewSet returns a set preloaded with all built-in modules.
func NewSet() *module.Set {
	set := module.NewSet()
	for _, m := range builtins() {
		set.MustRegister(m)
	}
	return set
}

// BaseProfile is the profile every realization starts from. It carries no
// overrides, so the module defaults apply unchanged.
func BaseProfile() *profile.Profile {
	return &profile.Profile{Name: "default", Patch: module.Overrides{}}
}

// DesktopProfile enables the graphical stack on top of the defaults.
func DesktopProfile() *profile.Profile {
	return &profile.Profile{
		Name: "desktop",
		Patch: module.Overrides{
			"graphics": {"enable": cty.True},
			"audio":    {"enable": cty.True},
			"usb":      {"enable": cty.True},
			"packages": {"list": cty.ListVal([]cty.Value{
				cty.StringVal("ion"),
				cty.StringVal("uutils"),
				cty.StringVal("orbital"),
				cty.StringVal("orbterm"),
			})},
		},
	}
}

// ServerProfile trims the image down for headless use.
func ServerProfile() *profile.Profile {
	return &profile.Profile{
		Name: "server",
		Patch: module.Overrides{
			"graphics": {"enable": cty.False},
			"security": {"requirePasswords": cty.True},
			"logging":  {"logLevel": cty.StringVal("warn")},
		},
	}
}

// BuiltinProfiles maps profile names usable from the command line.
func BuiltinProfiles() map[string]*profile.Profile {
	return map[string]*profile.Profile{
		"default": BaseProfile(),
		"desktop": DesktopProfile(),
		"server":  ServerProfile(),
	}
}
