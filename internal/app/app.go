// Package app wires the build pipeline together: profile realization, the
// activation compiler, the package resolver, and the image builders, behind
// one App facade the CLI drives.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vk/imageforge/internal/buildcfg"
	"github.com/vk/imageforge/internal/ctxlog"
	"github.com/vk/imageforge/internal/hclload"
	"github.com/vk/imageforge/internal/image"
	"github.com/vk/imageforge/internal/module"
	"github.com/vk/imageforge/internal/profile"
	"github.com/vk/imageforge/internal/sysmod"
)

// realizationCacheSize bounds the realization cache; rebuild servers realize
// many variants of the same base.
const realizationCacheSize = 32

// App encapsulates the builder's dependencies, configuration, and lifecycle.
type App struct {
	outW      io.Writer
	logger    *slog.Logger
	settings  *buildcfg.Settings
	set       *module.Set
	profiles  map[string]*profile.Profile
	toolchain image.Toolchain
	cache     *lru.Cache[string, *profile.Realized]
}

// Option customizes App construction.
type Option func(*App)

// WithToolchain injects a toolchain, replacing the default exec one.
func WithToolchain(tc image.Toolchain) Option {
	return func(a *App) { a.toolchain = tc }
}

// NewApp builds a fully initialized App: isolated logger, the built-in
// module set, and the built-in profiles merged with any profile files found
// under the configured profile directory.
func NewApp(outW io.Writer, settings *buildcfg.Settings, opts ...Option) (*App, error) {
	logger := newLogger(settings.LogLevel, settings.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("logger configured")

	profiles := sysmod.BuiltinProfiles()
	if settings.ProfileDir != "" {
		if _, err := os.Stat(settings.ProfileDir); err == nil {
			loaded, err := hclload.LoadDir(ctx, settings.ProfileDir, profiles)
			if err != nil {
				return nil, fmt.Errorf("loading profiles: %w", err)
			}
			profiles = loaded
			logger.Debug("profile files loaded", "dir", settings.ProfileDir, "count", len(profiles))
		}
	}

	cache, err := lru.New[string, *profile.Realized](realizationCacheSize)
	if err != nil {
		return nil, err
	}

	a := &App{
		outW:      outW,
		logger:    logger,
		settings:  settings,
		set:       sysmod.NewSet(),
		profiles:  profiles,
		toolchain: image.ExecToolchain{},
		cache:     cache,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Context returns a base context carrying the app logger.
func (a *App) Context() context.Context {
	return ctxlog.WithLogger(context.Background(), a.logger)
}

// Logger exposes the app logger for the CLI layer.
func (a *App) Logger() *slog.Logger { return a.logger }

// Settings exposes the loaded settings.
func (a *App) Settings() *buildcfg.Settings { return a.settings }

// ProfileNames lists the available profiles, sorted.
func (a *App) ProfileNames() []string {
	names := make([]string, 0, len(a.profiles))
	for n := range a.profiles {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// profileChain resolves the ordered profile list for a build: the base
// profile first, then the named profile when it differs.
func (a *App) profileChain(name string) ([]*profile.Profile, error) {
	if name == "" {
		name = a.settings.Profile
	}
	p, ok := a.profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (available: %s)", name, strings.Join(a.ProfileNames(), ", "))
	}
	if name == "default" {
		return []*profile.Profile{p}, nil
	}
	base, ok := a.profiles["default"]
	if !ok {
		return []*profile.Profile{p}, nil
	}
	return []*profile.Profile{base, p}, nil
}

// Realize produces the merged configuration for a profile, cached by the
// input hash of the ordered profile list. Identical ordered lists realize
// identically, which is what makes the cache sound.
func (a *App) Realize(name string) (*profile.Realized, error) {
	chain, err := a.profileChain(name)
	if err != nil {
		return nil, err
	}

	key, err := profile.Hash(chain)
	if err != nil {
		return nil, err
	}
	if r, ok := a.cache.Get(key); ok {
		a.logger.Debug("realization cache hit", "hash", key)
		return r, nil
	}

	r, err := profile.Realize(a.set, chain)
	if err != nil {
		return nil, err
	}
	a.cache.Add(key, r)
	return r, nil
}
