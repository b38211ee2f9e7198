package module

import (
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/imageforge/internal/dag"
	"github.com/vk/imageforge/internal/typesys"
)

// Overrides maps module path -> option name -> value. Values replace the
// declared default wholesale; lists and mappings are never merged.
type Overrides map[string]map[string]cty.Value

// Clone returns a deep copy of the override map.
func (o Overrides) Clone() Overrides {
	out := make(Overrides, len(o))
	for path, opts := range o {
		c := make(map[string]cty.Value, len(opts))
		for name, val := range opts {
			c[name] = val
		}
		out[path] = c
	}
	return out
}

// Apply layers patch on top of o, later wins per option. o is modified.
func (o Overrides) Apply(patch Overrides) {
	for path, opts := range patch {
		dst, ok := o[path]
		if !ok {
			dst = make(map[string]cty.Value, len(opts))
			o[path] = dst
		}
		for name, val := range opts {
			dst[name] = val
		}
	}
}

// Tree is an instantiated module set: overrides layered over defaults, with
// module outputs resolved lazily and memoized. A Tree is immutable once
// instantiated; Override produces a new Tree.
type Tree struct {
	set       *Set
	overrides Overrides
	graph     *dag.Graph

	outputs   map[string]cty.Value
	resolving map[string]bool
}

// Instantiate validates module wiring and override paths, builds the
// dependency graph, and rejects cycles before anything resolves.
func Instantiate(set *Set, overrides Overrides) (*Tree, error) {
	graph := dag.New()
	for _, path := range set.Paths() {
		graph.AddNode(path)
	}
	for _, path := range set.Paths() {
		m := set.modules[path]
		for _, input := range m.Inputs {
			if _, ok := set.modules[input]; !ok {
				return nil, &UnknownModulePathError{Path: input, Known: set.Paths()}
			}
			if err := graph.AddEdge(input, path); err != nil {
				return nil, fmt.Errorf("wiring module %q: %w", path, err)
			}
		}
	}
	if err := graph.DetectCycles(); err != nil {
		return nil, fmt.Errorf("module dependency graph: %w", err)
	}

	if overrides == nil {
		overrides = make(Overrides)
	}
	for path, opts := range overrides {
		m, ok := set.modules[path]
		if !ok {
			return nil, &UnknownModulePathError{Path: path, Known: set.Paths()}
		}
		for name := range opts {
			if _, ok := m.Options[name]; !ok {
				return nil, &UnknownOptionError{Module: path, Option: name, Known: optionNames(m)}
			}
		}
	}

	return &Tree{
		set:       set,
		overrides: overrides.Clone(),
		graph:     graph,
		outputs:   make(map[string]cty.Value),
		resolving: make(map[string]bool),
	}, nil
}

// Override recomputes the tree with patch layered on top of the current
// overrides. Used to derive variant profiles from a base.
func (t *Tree) Override(patch Overrides) (*Tree, error) {
	merged := t.overrides.Clone()
	merged.Apply(patch)
	return Instantiate(t.set, merged)
}

// Overrides returns a copy of the tree's effective override set.
func (t *Tree) Overrides() Overrides { return t.overrides.Clone() }

// ImplPaths returns the sorted paths of modules carrying an implementation.
// Consumers that collect module outputs iterate this, so collection order is
// deterministic.
func (t *Tree) ImplPaths() []string {
	paths := make([]string, 0, len(t.set.modules))
	for p, m := range t.set.modules {
		if m.Impl != nil {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}

// Option reads one option value: override if present, otherwise the declared
// default (or default-function). The value is validated against the option's
// declared type here, at consumption — never earlier.
func (t *Tree) Option(path, name string) (cty.Value, error) {
	m, err := t.set.Lookup(path)
	if err != nil {
		return cty.NilVal, err
	}
	opt, ok := m.Options[name]
	if !ok {
		return cty.NilVal, &UnknownOptionError{Module: path, Option: name, Known: optionNames(m)}
	}

	val, err := t.rawOption(m, opt, name)
	if err != nil {
		return cty.NilVal, err
	}

	if err := typesys.Validate(val, opt.Type); err != nil {
		if tm, ok := err.(*typesys.TypeMismatchError); ok {
			tm.Path = path + "." + name
		}
		return cty.NilVal, err
	}
	return val, nil
}

// IsSet reports whether an override exists for the option, without reading
// (and therefore without validating) the value.
func (t *Tree) IsSet(path, name string) bool {
	opts, ok := t.overrides[path]
	if !ok {
		return false
	}
	_, ok = opts[name]
	return ok
}

// Output resolves a module's implementation output, memoized on first
// access. Modules without an implementation have no output.
func (t *Tree) Output(path string) (cty.Value, error) {
	m, err := t.set.Lookup(path)
	if err != nil {
		return cty.NilVal, err
	}
	if m.Impl == nil {
		return cty.NilVal, fmt.Errorf("module %q has no implementation output", path)
	}

	if out, ok := t.outputs[path]; ok {
		return out, nil
	}
	// Static cycle detection covers declared inputs; this guard catches a
	// default-function or implementation reaching back into a module that is
	// mid-resolution, which would otherwise recurse forever.
	if t.resolving[path] {
		return cty.NilVal, fmt.Errorf("dynamic resolution cycle involving module %q", path)
	}
	t.resolving[path] = true
	defer delete(t.resolving, path)

	out, err := m.Impl(&EvalContext{tree: t, mod: m})
	if err != nil {
		return cty.NilVal, fmt.Errorf("module %q: %w", path, err)
	}
	t.outputs[path] = out
	return out, nil
}

func (t *Tree) rawOption(m *Module, opt *Option, name string) (cty.Value, error) {
	if opts, ok := t.overrides[m.Path]; ok {
		if val, ok := opts[name]; ok {
			return val, nil
		}
	}
	if opt.DefaultFunc != nil {
		return opt.DefaultFunc(&EvalContext{tree: t, mod: m})
	}
	if opt.Default != cty.NilVal {
		return opt.Default, nil
	}
	return cty.NilVal, fmt.Errorf("option %q of module %q has no value and no default", name, m.Path)
}

func optionNames(m *Module) []string {
	names := make([]string, 0, len(m.Options))
	for n := range m.Options {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// EvalContext is handed to module implementations and option
// default-functions. It scopes reads to the module being evaluated.
type EvalContext struct {
	tree *Tree
	mod  *Module
}

// Option reads one of the evaluating module's own options.
func (c *EvalContext) Option(name string) (cty.Value, error) {
	return c.tree.Option(c.mod.Path, name)
}

// Peek reads another module's option. Cross-module computed defaults use
// this; it resolves no implementation.
func (c *EvalContext) Peek(path, name string) (cty.Value, error) {
	return c.tree.Option(path, name)
}

// Input resolves the output of a module declared in Inputs. Reading an
// undeclared input is a wiring bug: the dependency graph (and its cycle
// check) only knows about declared edges.
func (c *EvalContext) Input(path string) (cty.Value, error) {
	for _, in := range c.mod.Inputs {
		if in == path {
			return c.tree.Output(path)
		}
	}
	return cty.NilVal, fmt.Errorf("module %q reads undeclared input %q (declared: %s)",
		c.mod.Path, path, fmt.Sprint(c.mod.Inputs))
}

// Bool reads an option and returns it as a Go bool.
func (c *EvalContext) Bool(name string) (bool, error) {
	val, err := c.Option(name)
	if err != nil {
		return false, err
	}
	return val.True(), nil
}

// String reads an option and returns it as a Go string.
func (c *EvalContext) String(name string) (string, error) {
	val, err := c.Option(name)
	if err != nil {
		return "", err
	}
	return val.AsString(), nil
}

// Int reads an option and returns it as a Go int64.
func (c *EvalContext) Int(name string) (int64, error) {
	val, err := c.Option(name)
	if err != nil {
		return 0, err
	}
	i, _ := val.AsBigFloat().Int64()
	return i, nil
}

// StringList reads a list-of-string option into a Go slice.
func (c *EvalContext) StringList(name string) ([]string, error) {
	val, err := c.Option(name)
	if err != nil {
		return nil, err
	}
	return StringSlice(val), nil
}

// StringSlice converts a cty list/tuple of strings to a Go slice.
func StringSlice(val cty.Value) []string {
	if val == cty.NilVal || val.IsNull() {
		return nil
	}
	out := make([]string, 0, val.LengthInt())
	for it := val.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		out = append(out, elem.AsString())
	}
	return out
}
