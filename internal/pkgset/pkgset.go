// Package pkgset resolves package names against the binary cache index and
// exports package directories as compressed archives for the cache builder.
package pkgset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/vk/imageforge/internal/ctxlog"
)

// aliases maps historical or cross-platform package names to their canonical
// names in the cache namespace.
var aliases = map[string]string{
	"coreutils":  "uutils",
	"bash":       "ion",
	"sh":         "ion",
	"ion-shell":  "ion",
	"redox-base": "base",
}

// Entry is one record of the packages.json cache index.
type Entry struct {
	StorePath string   `json:"storePath"`
	Version   string   `json:"version"`
	Binaries  []string `json:"binaries,omitempty"`
}

// Package is a resolved package selection.
type Package struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	StorePath string   `json:"storePath"`
	Binaries  []string `json:"binaries,omitempty"`
}

// BinaryPaths maps each executable name to its path inside the store.
func (p Package) BinaryPaths() map[string]string {
	if len(p.Binaries) == 0 {
		return nil
	}
	out := make(map[string]string, len(p.Binaries))
	for _, name := range p.Binaries {
		out[name] = p.StorePath + "/bin/" + name
	}
	return out
}

// Index is the name -> entry cache index.
type Index map[string]Entry

// ParseIndex decodes a packages.json document.
func ParseIndex(data []byte) (Index, error) {
	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parsing package index: %w", err)
	}
	return idx, nil
}

// LoadIndex reads the cache index from disk. A missing index file degrades
// to an empty index with a warning; names then resolve to nothing and the
// caller decides whether that is fatal.
func LoadIndex(ctx context.Context, path string) (Index, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		ctxlog.FromContext(ctx).Warn("package index not found, names will not resolve", "path", path)
		return Index{}, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseIndex(data)
}

// Names returns the sorted canonical package names in the index.
func (idx Index) Names() []string {
	names := make([]string, 0, len(idx))
	for n := range idx {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Canonical maps a requested name through the alias table.
func Canonical(name string) string {
	if canon, ok := aliases[name]; ok {
		return canon
	}
	return name
}

// Resolve maps requested names to packages, in request order, applying the
// alias table first. An unresolvable name fails the whole resolution with an
// UnknownPackageError.
func (idx Index) Resolve(names []string) ([]Package, error) {
	pkgs := make([]Package, 0, len(names))
	for _, name := range names {
		canon := Canonical(name)
		entry, ok := idx[canon]
		if !ok {
			return nil, &UnknownPackageError{Name: name, Alternatives: idx.alternatives(canon)}
		}
		pkgs = append(pkgs, Package{
			Name:      canon,
			Version:   entry.Version,
			StorePath: entry.StorePath,
			Binaries:  entry.Binaries,
		})
	}
	return pkgs, nil
}

// alternatives suggests known names resembling the miss; falls back to the
// whole namespace when nothing resembles it.
func (idx Index) alternatives(name string) []string {
	var near []string
	for _, known := range idx.Names() {
		if strings.Contains(known, name) || strings.Contains(name, known) {
			near = append(near, known)
		}
	}
	if len(near) > 0 {
		return near
	}
	return idx.Names()
}

// UnknownPackageError reports a package name absent from the cache index.
type UnknownPackageError struct {
	Name         string
	Alternatives []string
}

func (e *UnknownPackageError) Error() string {
	if len(e.Alternatives) == 0 {
		return fmt.Sprintf("unknown package %q (index is empty)", e.Name)
	}
	return fmt.Sprintf("unknown package %q (known: %s)", e.Name, strings.Join(e.Alternatives, ", "))
}
