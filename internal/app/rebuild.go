package app

import (
	"context"

	"github.com/vk/imageforge/internal/bridge"
	"github.com/vk/imageforge/internal/ctxlog"
	"github.com/vk/imageforge/internal/pkgset"
)

// Rebuild serves one bridge request against the configured base profile.
// Images are never built here; the caller gets the realized configuration,
// activation tree, and next-generation manifest.
func (a *App) Rebuild(ctx context.Context, requestData []byte) (*bridge.Response, *bridge.Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)

	req, err := bridge.ParseRequest(requestData)
	if err != nil {
		return nil, nil, err
	}

	base, err := a.profileChain(a.settings.Profile)
	if err != nil {
		return nil, nil, err
	}
	index, err := pkgset.LoadIndex(ctx, a.settings.CacheIndex)
	if err != nil {
		return nil, nil, err
	}
	ts, err := a.settings.BuildTimestamp()
	if err != nil {
		return nil, nil, err
	}

	b := &bridge.Bridge{
		Set:        a.set,
		Base:       base,
		Index:      index,
		Target:     a.settings.Target,
		Generation: a.settings.Generation,
		Timestamp:  ts,
	}

	resp, result := b.Rebuild(ctx, req)
	return resp, result, nil
}
