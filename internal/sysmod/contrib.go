package sysmod

import (
	"sort"

	"github.com/zclconf/go-cty/cty"
)

// Script stages. Early scripts run from the ramdisk before the root
// filesystem is mounted; root scripts run from /etc/init.d afterwards.
// Execution order within a stage is filename-lexicographic, so script names
// carry numeric prefixes.
const (
	StageEarly = "early"
	StageRoot  = "root"
)

// fileVal builds one generated-file contribution value.
func fileVal(content, mode string) cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"content": cty.StringVal(content),
		"mode":    cty.StringVal(mode),
	})
}

// filesVal builds the "files" attribute from path -> file value.
func filesVal(files map[string]cty.Value) cty.Value {
	if len(files) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(files)
}

// scriptVal builds one boot-script contribution value.
func scriptVal(name, stage, content string) cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"name":    cty.StringVal(name),
		"stage":   cty.StringVal(stage),
		"content": cty.StringVal(content),
	})
}

// scriptsVal builds the "scripts" attribute.
func scriptsVal(scripts []cty.Value) cty.Value {
	if len(scripts) == 0 {
		return cty.EmptyTupleVal
	}
	return cty.TupleVal(scripts)
}

// stringListVal renders a slice as a cty list of strings.
func stringListVal(vals []string) cty.Value {
	if len(vals) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	out := make([]cty.Value, 0, len(vals))
	for _, v := range vals {
		out = append(out, cty.StringVal(v))
	}
	return cty.ListVal(out)
}

// sortedKeys returns the map's keys in sorted order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
