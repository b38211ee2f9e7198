package sysmod

import (
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/imageforge/internal/hardware"
	"github.com/vk/imageforge/internal/module"
	"github.com/vk/imageforge/internal/typesys"
)

// storageModule declares the storage driver choice.
func storageModule() *module.Module {
	return &module.Module{
		Path: "storage",
		Options: map[string]*module.Option{
			"drivers": {
				Type:        typesys.ListOf(typesys.String()),
				Default:     cty.ListVal([]cty.Value{cty.StringVal("virtio-blk")}),
				Description: "block device drivers staged into the image",
			},
		},
	}
}

// usbModule declares the USB feature flag. Enabling it stages the fixed
// xHCI driver.
func usbModule() *module.Module {
	return &module.Module{
		Path: "usb",
		Options: map[string]*module.Option{
			"enable": {Type: typesys.Bool(), Default: cty.False},
		},
	}
}

// hardwareModule is the driver registry resolver: it computes the enabled
// driver union, the PCI routing table, and the auxiliary daemon list, and
// contributes the PCI daemon's routing configuration plus the early-boot
// script that starts it.
func hardwareModule() *module.Module {
	return &module.Module{
		Path:   "hardware",
		Inputs: []string{},
		Impl: func(c *module.EvalContext) (cty.Value, error) {
			in := hardware.Input{}

			var err error
			if in.StorageDrivers, err = peekStringList(c, "storage", "drivers"); err != nil {
				return cty.NilVal, err
			}
			if in.NetworkDrivers, err = peekStringList(c, "networking", "drivers"); err != nil {
				return cty.NilVal, err
			}
			if in.GraphicsEnabled, err = peekBool(c, "graphics", "enable"); err != nil {
				return cty.NilVal, err
			}
			if in.GraphicsEnabled {
				if in.GraphicsDrivers, err = peekStringList(c, "graphics", "drivers"); err != nil {
					return cty.NilVal, err
				}
			}
			if in.AudioEnabled, err = peekBool(c, "audio", "enable"); err != nil {
				return cty.NilVal, err
			}
			if in.AudioEnabled {
				if in.AudioDrivers, err = peekStringList(c, "audio", "drivers"); err != nil {
					return cty.NilVal, err
				}
			}
			if in.USBEnabled, err = peekBool(c, "usb", "enable"); err != nil {
				return cty.NilVal, err
			}

			res := hardware.Resolve(in)
			out := res.ToCty().AsValueMap()

			out["files"] = filesVal(map[string]cty.Value{
				"etc/pcid/config.toml": fileVal(renderRoutingTable(res), "644"),
			})
			out["scripts"] = scriptsVal([]cty.Value{
				scriptVal("10_pcid", StageEarly, "#!/bin/ion\npcid /etc/pcid/config.toml\n"),
			})

			return cty.ObjectVal(out), nil
		},
	}
}

// renderRoutingTable writes the routing table in the PCI daemon's TOML
// match-rule format.
func renderRoutingTable(res hardware.Result) string {
	var b strings.Builder
	for _, route := range res.RoutingTable {
		b.WriteString("[[drivers]]\n")
		fmt.Fprintf(&b, "name = %q\n", route.Display)
		if route.Match.Vendor != "" {
			fmt.Fprintf(&b, "vendor = %q\n", route.Match.Vendor)
			fmt.Fprintf(&b, "device = %q\n", route.Match.Device)
		} else {
			fmt.Fprintf(&b, "class = %q\n", route.Match.Class)
			fmt.Fprintf(&b, "subclass = %q\n", route.Match.Subclass)
		}
		fmt.Fprintf(&b, "command = %q\n", route.Command)
		b.WriteString("\n")
	}
	return b.String()
}

func peekStringList(c *module.EvalContext, path, name string) ([]string, error) {
	val, err := c.Peek(path, name)
	if err != nil {
		return nil, err
	}
	return module.StringSlice(val), nil
}

func peekBool(c *module.EvalContext, path, name string) (bool, error) {
	val, err := c.Peek(path, name)
	if err != nil {
		return false, err
	}
	return val.True(), nil
}
