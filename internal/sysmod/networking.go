package sysmod

import (
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/imageforge/internal/module"
	"github.com/vk/imageforge/internal/typesys"
)

// networkingModule declares the network configuration surface and generates
// the boot script that brings interfaces up.
func networkingModule() *module.Module {
	ifaceType := typesys.Struct(map[string]*typesys.Type{
		"address": typesys.String(),
		"netmask": typesys.String(),
		"gateway": typesys.String(),
	}, "address")

	return &module.Module{
		Path: "networking",
		Options: map[string]*module.Option{
			"enable": {Type: typesys.Bool(), Default: cty.True},
			"mode": {
				Type:        typesys.Enum("dhcp", "static", "none"),
				Default:     cty.StringVal("dhcp"),
				Description: "address assignment mode",
			},
			"dns": {
				Type:    typesys.ListOf(typesys.String()),
				Default: cty.ListVal([]cty.Value{cty.StringVal("1.1.1.1")}),
			},
			"drivers": {
				Type:    typesys.ListOf(typesys.String()),
				Default: cty.ListVal([]cty.Value{cty.StringVal("virtio-net")}),
			},
			"interfaces": {
				Type:        typesys.MapOf(ifaceType),
				Default:     cty.MapValEmpty(cty.DynamicPseudoType),
				Description: "per-interface static addressing, keyed by interface name",
			},
		},
		Impl: func(c *module.EvalContext) (cty.Value, error) {
			enabled, err := c.Bool("enable")
			if err != nil {
				return cty.NilVal, err
			}
			if !enabled {
				return cty.EmptyObjectVal, nil
			}

			mode, err := c.String("mode")
			if err != nil {
				return cty.NilVal, err
			}
			dns, err := c.StringList("dns")
			if err != nil {
				return cty.NilVal, err
			}

			files := map[string]cty.Value{
				"etc/net/dns": fileVal(strings.Join(dns, "\n")+"\n", "644"),
			}

			var scripts []cty.Value
			switch mode {
			case "dhcp":
				scripts = append(scripts, scriptVal("20_net_dhcp", StageRoot,
					"#!/bin/ion\nnetcfg-setup auto\n"))
			case "static":
				ifaces, err := c.Option("interfaces")
				if err != nil {
					return cty.NilVal, err
				}
				script, err := renderStaticScript(ifaces)
				if err != nil {
					return cty.NilVal, err
				}
				scripts = append(scripts, scriptVal("20_net_static", StageRoot, script))
			case "none":
				// Nothing to start.
			}

			return cty.ObjectVal(map[string]cty.Value{
				"files":   filesVal(files),
				"scripts": scriptsVal(scripts),
			}), nil
		},
	}
}

// renderStaticScript emits one netcfg-setup invocation per interface, in
// sorted interface-name order.
func renderStaticScript(ifaces cty.Value) (string, error) {
	var b strings.Builder
	b.WriteString("#!/bin/ion\n")

	if ifaces.IsNull() || ifaces.LengthInt() == 0 {
		return b.String(), nil
	}

	byName := ifaces.AsValueMap()
	for _, name := range sortedKeys(byName) {
		attrs := byName[name].AsValueMap()
		address := attrs["address"].AsString()

		fmt.Fprintf(&b, "netcfg-setup static --interface %s --address %s", name, address)
		if gw, ok := attrs["gateway"]; ok && !gw.IsNull() {
			fmt.Fprintf(&b, " --gateway %s", gw.AsString())
		}
		if nm, ok := attrs["netmask"]; ok && !nm.IsNull() {
			fmt.Fprintf(&b, " --netmask %s", nm.AsString())
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}
