package router

import (
	"fmt"

	"github.com/pario-ai/skirmish/pkg/config"
	"github.com/pario-ai/skirmish/pkg/errs"
	"github.com/pario-ai/skirmish/pkg/models"
)

// Route represents a resolved provider and model to try.
type Route struct {
	Provider config.ProviderConfig
	Model    string
}

// Router resolves a tier to an ordered provider+model fallback chain.
type Router struct {
	cfg config.ReasoningConfig
}

// New creates a Router from the reasoning configuration.
func New(cfg config.ReasoningConfig) *Router {
	return &Router{cfg: cfg}
}

// Validate checks that every route target names a configured provider.
func (r *Router) Validate() error {
	if len(r.cfg.Providers) == 0 {
		return fmt.Errorf("no reasoning providers configured: %w", errs.ErrConfiguration)
	}
	known := make(map[string]bool, len(r.cfg.Providers))
	for _, p := range r.cfg.Providers {
		known[p.Name] = true
	}
	for _, route := range r.cfg.Routes {
		for _, t := range route.Targets {
			if !known[t.Provider] {
				return fmt.Errorf("route %q: unknown provider %q: %w", route.Tier, t.Provider, errs.ErrConfiguration)
			}
		}
	}
	return nil
}

// Resolve returns an ordered list of routes for the tier. If the tier has a
// configured route its targets are returned, with model filling any target
// that names none. Otherwise the first provider is used with model.
func (r *Router) Resolve(tier models.Tier, model string) ([]Route, error) {
	if len(r.cfg.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured: %w", errs.ErrConfiguration)
	}

	providerIndex := make(map[string]config.ProviderConfig, len(r.cfg.Providers))
	for _, p := range r.cfg.Providers {
		providerIndex[p.Name] = p
	}

	for _, route := range r.cfg.Routes {
		if route.Tier != tier {
			continue
		}
		var routes []Route
		for _, target := range route.Targets {
			provider, ok := providerIndex[target.Provider]
			if !ok {
				continue // skip unknown providers
			}
			m := target.Model
			if m == "" {
				m = model
			}
			routes = append(routes, Route{Provider: provider, Model: m})
		}
		if len(routes) == 0 {
			return nil, fmt.Errorf("route %q: all providers unknown: %w", tier, errs.ErrConfiguration)
		}
		return routes, nil
	}

	return []Route{{Provider: r.cfg.Providers[0], Model: model}}, nil
}
