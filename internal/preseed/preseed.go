package preseed

import (
	"context"
	"fmt"

	"github.com/lyubomir-popov/maas/internal/domain"
)

// GetPreseed selects the preseed kind from the machine's lifecycle state
// and renders it.
func (e *Engine) GetPreseed(ctx context.Context, m *domain.Machine) (string, error) {
	ptype, err := TypeFor(m)
	if err != nil {
		return "", err
	}
	if ptype == TypeEnlist {
		// Machines still enlisting have no usable identity; they get
		// the same anonymous preseed as unknown hardware, pointed at
		// their rack.
		return e.renderEnlist(ctx, e.BaseURLFor(m))
	}
	return e.RenderPreseed(ctx, m, ptype)
}

// GetEnlistPreseed renders the anonymous enlistment preseed. rackURL,
// when non-empty, overrides the region URL as the callback base so
// enlisting machines talk to their local rack controller.
func (e *Engine) GetEnlistPreseed(ctx context.Context, rackURL string) (string, error) {
	base := e.ServerURL
	if rackURL != "" {
		base = rackURL
	}
	return e.renderEnlist(ctx, base)
}

func (e *Engine) renderEnlist(ctx context.Context, baseURL string) (string, error) {
	cfg, err := e.Store.ConfigSnapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to snapshot config: %w", err)
	}
	template, err := e.Loader.Load(nil, string(TypeEnlist), cfg.CommissioningOSystem, cfg.CommissioningSeries)
	if err != nil {
		return "", err
	}
	tctx, err := e.GlobalContext(ctx, cfg.CommissioningOSystem, cfg.CommissioningSeries, baseURL)
	if err != nil {
		return "", err
	}
	return e.Loader.Render(template, nil, cfg.CommissioningOSystem, cfg.CommissioningSeries, tctx)
}

// RenderPreseed renders the named preseed kind for a machine: template
// resolution through the specificity ladder, then substitution with the
// merged global and per-machine contexts.
func (e *Engine) RenderPreseed(ctx context.Context, m *domain.Machine, ptype Type) (string, error) {
	osystem, release, err := e.targetOS(ctx, m, ptype)
	if err != nil {
		return "", err
	}
	template, err := e.Loader.Load(m, string(ptype), osystem, release)
	if err != nil {
		return "", err
	}
	tctx, err := e.GlobalContext(ctx, osystem, release, e.BaseURLFor(m))
	if err != nil {
		return "", err
	}
	nodeCtx, err := e.NodeContext(ctx, m, ptype)
	if err != nil {
		return "", err
	}
	for key, value := range nodeCtx {
		tctx[key] = value
	}
	return e.Loader.Render(template, m, osystem, release, tctx)
}

// targetOS picks the OS and series the preseed is rendered for.
// Commissioning always runs the operator-configured ephemeral
// environment regardless of what the machine will eventually deploy.
func (e *Engine) targetOS(ctx context.Context, m *domain.Machine, ptype Type) (string, string, error) {
	if ptype == TypeCommissioning || m.OSystem == "" {
		cfg, err := e.Store.ConfigSnapshot(ctx)
		if err != nil {
			return "", "", fmt.Errorf("failed to snapshot config: %w", err)
		}
		return cfg.CommissioningOSystem, cfg.CommissioningSeries, nil
	}
	return m.OSystem, m.DistroSeries, nil
}
