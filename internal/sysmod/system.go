package sysmod

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/imageforge/internal/module"
	"github.com/vk/imageforge/internal/typesys"
)

// systemModule holds the system identity options and emits the hostname and
// timezone files.
func systemModule() *module.Module {
	return &module.Module{
		Path: "system",
		Options: map[string]*module.Option{
			"hostname": {
				Type:        typesys.String(),
				Default:     cty.StringVal("redox"),
				Description: "system hostname, written to etc/hostname",
			},
			"timezone": {
				Type:        typesys.String(),
				Default:     cty.StringVal("UTC"),
				Description: "IANA timezone name",
			},
			"version": {
				Type:        typesys.String(),
				Default:     cty.StringVal("0.5.0"),
				Description: "system version recorded in the manifest",
			},
		},
		Impl: func(c *module.EvalContext) (cty.Value, error) {
			hostname, err := c.String("hostname")
			if err != nil {
				return cty.NilVal, err
			}
			timezone, err := c.String("timezone")
			if err != nil {
				return cty.NilVal, err
			}
			return cty.ObjectVal(map[string]cty.Value{
				"files": filesVal(map[string]cty.Value{
					"etc/hostname": fileVal(hostname+"\n", "644"),
					"etc/timezone": fileVal(timezone+"\n", "644"),
				}),
			}), nil
		},
	}
}

// bootModule holds the image sizing options consumed by the partition and
// disk builders.
func bootModule() *module.Module {
	return &module.Module{
		Path: "boot",
		Options: map[string]*module.Option{
			"diskSizeMB": {
				Type:        typesys.Int(),
				Default:     cty.NumberIntVal(512),
				Description: "total disk image size in megabytes",
			},
			"espSizeMB": {
				Type:        typesys.Int(),
				Default:     cty.NumberIntVal(200),
				Description: "boot partition size in megabytes",
			},
		},
	}
}
