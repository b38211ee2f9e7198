package sysmod

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/imageforge/internal/module"
	"github.com/vk/imageforge/internal/typesys"
)

func graphicsModule() *module.Module {
	return &module.Module{
		Path: "graphics",
		Options: map[string]*module.Option{
			"enable": {Type: typesys.Bool(), Default: cty.False},
			"drivers": {
				Type:    typesys.ListOf(typesys.String()),
				Default: cty.ListVal([]cty.Value{cty.StringVal("virtio-gpu")}),
			},
			"resolution": {
				Type:        typesys.String(),
				Default:     cty.StringVal("1024x768"),
				Description: "display mode requested at boot, WIDTHxHEIGHT",
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
			resolution, err := c.String("resolution")
			if err != nil {
				return cty.NilVal, err
			}
			return cty.ObjectVal(map[string]cty.Value{
				"files": filesVal(map[string]cty.Value{
					"etc/graphics.conf": fileVal("resolution="+resolution+"\n", "644"),
				}),
			}), nil
		},
	}
}

func audioModule() *module.Module {
	return &module.Module{
		Path: "audio",
		Options: map[string]*module.Option{
			"enable": {Type: typesys.Bool(), Default: cty.False},
			"drivers": {
				Type:    typesys.ListOf(typesys.String()),
				Default: cty.ListVal([]cty.Value{cty.StringVal("ac97")}),
			},
		},
	}
}

func securityModule() *module.Module {
	return &module.Module{
		Path: "security",
		Options: map[string]*module.Option{
			"protectKernelSchemes": {Type: typesys.Bool(), Default: cty.True},
			"requirePasswords":     {Type: typesys.Bool(), Default: cty.False},
			"allowRemoteRoot":      {Type: typesys.Bool(), Default: cty.False},
		},
		Impl: func(c *module.EvalContext) (cty.Value, error) {
			protect, err := c.Bool("protectKernelSchemes")
			if err != nil {
				return cty.NilVal, err
			}
			require, err := c.Bool("requirePasswords")
			if err != nil {
				return cty.NilVal, err
			}
			remote, err := c.Bool("allowRemoteRoot")
			if err != nil {
				return cty.NilVal, err
			}
			content := fmt.Sprintf("protect_kernel_schemes=%t\nrequire_passwords=%t\nallow_remote_root=%t\n",
				protect, require, remote)
			return cty.ObjectVal(map[string]cty.Value{
				"files": filesVal(map[string]cty.Value{
					"etc/security.conf": fileVal(content, "600"),
				}),
			}), nil
		},
	}
}

func loggingModule() *module.Module {
	levels := typesys.Enum("trace", "debug", "info", "warn", "error")
	return &module.Module{
		Path: "logging",
		Options: map[string]*module.Option{
			"logLevel":       {Type: levels, Default: cty.StringVal("info")},
			"kernelLogLevel": {Type: levels, Default: cty.StringVal("warn")},
			"logToFile":      {Type: typesys.Bool(), Default: cty.True},
			"maxLogSizeMB":   {Type: typesys.Int(), Default: cty.NumberIntVal(16)},
		},
		Impl: func(c *module.EvalContext) (cty.Value, error) {
			level, err := c.String("logLevel")
			if err != nil {
				return cty.NilVal, err
			}
			kernelLevel, err := c.String("kernelLogLevel")
			if err != nil {
				return cty.NilVal, err
			}
			toFile, err := c.Bool("logToFile")
			if err != nil {
				return cty.NilVal, err
			}
			maxSize, err := c.Int("maxLogSizeMB")
			if err != nil {
				return cty.NilVal, err
			}

			content := fmt.Sprintf("level=%s\nkernel_level=%s\nlog_to_file=%t\nmax_size_mb=%d\n",
				level, kernelLevel, toFile, maxSize)
			out := map[string]cty.Value{
				"files": filesVal(map[string]cty.Value{
					"etc/logd.conf": fileVal(content, "644"),
				}),
			}
			if toFile {
				out["scripts"] = scriptsVal([]cty.Value{
					scriptVal("05_logd", StageRoot, "#!/bin/ion\nlogd /etc/logd.conf\n"),
				})
				out["dirs"] = cty.ListVal([]cty.Value{cty.StringVal("var/log")})
			}
			return cty.ObjectVal(out), nil
		},
	}
}

func powerModule() *module.Module {
	return &module.Module{
		Path: "power",
		Options: map[string]*module.Option{
			"acpiEnable": {Type: typesys.Bool(), Default: cty.True},
			"powerAction": {
				Type:        typesys.Enum("shutdown", "reboot", "hibernate"),
				Default:     cty.StringVal("shutdown"),
				Description: "action taken when the power button is pressed",
			},
			"rebootOnPanic": {Type: typesys.Bool(), Default: cty.False},
		},
		Impl: func(c *module.EvalContext) (cty.Value, error) {
			acpi, err := c.Bool("acpiEnable")
			if err != nil {
				return cty.NilVal, err
			}
			action, err := c.String("powerAction")
			if err != nil {
				return cty.NilVal, err
			}
			rebootOnPanic, err := c.Bool("rebootOnPanic")
			if err != nil {
				return cty.NilVal, err
			}
			content := fmt.Sprintf("acpi=%t\npower_action=%s\nreboot_on_panic=%t\n",
				acpi, action, rebootOnPanic)
			return cty.ObjectVal(map[string]cty.Value{
				"files": filesVal(map[string]cty.Value{
					"etc/power.conf": fileVal(content, "644"),
				}),
			}), nil
		},
	}
}
