// Package profile implements named configuration patches and their ordered
// composition into a realized configuration. Profiles compose by
// left-fold: later profiles win per module path and option, with whole-value
// replacement — there is no structural merge of nested mappings or lists. A
// profile that wants to extend a parent's list must read and re-concatenate
// it explicitly.
package profile

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/vk/imageforge/internal/module"
)

// Profile is a named partial configuration patch.
type Profile struct {
	Name  string
	Patch module.Overrides
}

// Extend returns a new profile layering patch over p's patch, later wins.
func (p *Profile) Extend(name string, patch module.Overrides) *Profile {
	merged := p.Patch.Clone()
	merged.Apply(patch)
	return &Profile{Name: name, Patch: merged}
}

// Realized is the fully merged configuration for one build: a pure function
// of (module set, ordered profile list). Identical ordered profile lists
// always realize to identical configuration.
type Realized struct {
	Tree     *module.Tree
	Profiles []string
	hash     string
}

// Realize left-folds the ordered profile list over module defaults and
// instantiates the module tree. Configuration-level errors (unknown module
// paths, unknown options, dependency cycles) surface here, before any
// artifact construction starts.
func Realize(set *module.Set, profiles []*Profile) (*Realized, error) {
	overrides := make(module.Overrides)
	names := make([]string, 0, len(profiles))
	for _, p := range profiles {
		overrides.Apply(p.Patch)
		names = append(names, p.Name)
	}

	tree, err := module.Instantiate(set, overrides)
	if err != nil {
		return nil, err
	}

	hash, err := Hash(profiles)
	if err != nil {
		return nil, fmt.Errorf("hashing profile list: %w", err)
	}

	return &Realized{Tree: tree, Profiles: names, hash: hash}, nil
}

// InputHash returns the SHA-256 of the canonical serialization of the
// ordered profile list. Two builds with the same hash realize identically,
// which makes the hash a safe cache key.
func (r *Realized) InputHash() string { return r.hash }

// Option reads a realized option value, validating it on consumption.
func (r *Realized) Option(path, name string) (cty.Value, error) {
	return r.Tree.Option(path, name)
}

// Output resolves a module's implementation output.
func (r *Realized) Output(path string) (cty.Value, error) {
	return r.Tree.Output(path)
}

// Bool reads an option as a Go bool.
func (r *Realized) Bool(path, name string) (bool, error) {
	val, err := r.Tree.Option(path, name)
	if err != nil {
		return false, err
	}
	return val.True(), nil
}

// String reads an option as a Go string.
func (r *Realized) String(path, name string) (string, error) {
	val, err := r.Tree.Option(path, name)
	if err != nil {
		return "", err
	}
	return val.AsString(), nil
}

// Int reads an option as a Go int64.
func (r *Realized) Int(path, name string) (int64, error) {
	val, err := r.Tree.Option(path, name)
	if err != nil {
		return 0, err
	}
	i, _ := val.AsBigFloat().Int64()
	return i, nil
}

// StringList reads a list option as a Go string slice.
func (r *Realized) StringList(path, name string) ([]string, error) {
	val, err := r.Tree.Option(path, name)
	if err != nil {
		return nil, err
	}
	return module.StringSlice(val), nil
}

// Hash returns the SHA-256 of the canonical serialization of an ordered
// profile list: profile names in order, then per profile the sorted
// (path, option, JSON value) triples. Realize records it as the input hash.
func Hash(profiles []*Profile) (string, error) {
	h := sha256.New()
	for _, p := range profiles {
		fmt.Fprintf(h, "profile %s\n", p.Name)

		paths := make([]string, 0, len(p.Patch))
		for path := range p.Patch {
			paths = append(paths, path)
		}
		sort.Strings(paths)

		for _, path := range paths {
			opts := p.Patch[path]
			names := make([]string, 0, len(opts))
			for name := range opts {
				names = append(names, name)
			}
			sort.Strings(names)

			for _, name := range names {
				val := opts[name]
				raw, err := ctyjson.Marshal(val, val.Type())
				if err != nil {
					return "", fmt.Errorf("%s.%s: %w", path, name, err)
				}
				fmt.Fprintf(h, "%s.%s=%s\n", path, name, raw)
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
