// Package module implements the typed option/module system. A module
// declares local options, references to other modules' outputs, and an
// optional implementation producing an output value. A set of modules plus
// initial overrides instantiates into a tree whose values are resolved on
// demand and memoized.
package module

import (
	"fmt"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/imageforge/internal/typesys"
)

// Option declares one typed configuration knob on a module. Exactly one type
// per option. A value is validated when it is read, never when it is set; an
// option that is never consumed by the build is never validated.
type Option struct {
	Type        *typesys.Type
	Default     cty.Value
	DefaultFunc func(*EvalContext) (cty.Value, error)
	Description string
}

// Module is a named unit of configuration.
type Module struct {
	// Path identifies the module, e.g. "hardware" or "networking".
	Path string
	// Options are the module's locally declared options.
	Options map[string]*Option
	// Inputs lists the paths of other modules whose outputs Impl reads.
	Inputs []string
	// Impl computes the module's output value. Modules without an Impl are
	// pure option bags and have no output.
	Impl func(*EvalContext) (cty.Value, error)
}

// Set is a registry of modules keyed by path.
type Set struct {
	modules map[string]*Module
}

// NewSet creates an empty module set.
func NewSet() *Set {
	return &Set{modules: make(map[string]*Module)}
}

// Register adds a module to the set. Registering the same path twice is a
// programming error and fails loudly.
func (s *Set) Register(m *Module) error {
	if m.Path == "" {
		return fmt.Errorf("module with empty path")
	}
	if _, ok := s.modules[m.Path]; ok {
		return fmt.Errorf("module %q registered twice", m.Path)
	}
	if m.Options == nil {
		m.Options = make(map[string]*Option)
	}
	s.modules[m.Path] = m
	return nil
}

// MustRegister is Register for static module tables.
func (s *Set) MustRegister(m *Module) {
	if err := s.Register(m); err != nil {
		panic(err)
	}
}

// Lookup returns the module at path, or an UnknownModulePathError.
func (s *Set) Lookup(path string) (*Module, error) {
	m, ok := s.modules[path]
	if !ok {
		return nil, &UnknownModulePathError{Path: path, Known: s.Paths()}
	}
	return m, nil
}

// Paths returns all registered module paths, sorted.
func (s *Set) Paths() []string {
	paths := make([]string, 0, len(s.modules))
	for p := range s.modules {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// UnknownModulePathError reports a reference to a module path that does not
// exist in the set. Raised at tree construction, before anything resolves.
type UnknownModulePathError struct {
	Path  string
	Known []string
}

func (e *UnknownModulePathError) Error() string {
	return fmt.Sprintf("unknown module path %q (known: %s)", e.Path, strings.Join(e.Known, ", "))
}

// UnknownOptionError reports an override naming an option the module does
// not declare.
type UnknownOptionError struct {
	Module string
	Option string
	Known  []string
}

func (e *UnknownOptionError) Error() string {
	return fmt.Sprintf("module %q has no option %q (known: %s)", e.Module, e.Option, strings.Join(e.Known, ", "))
}
