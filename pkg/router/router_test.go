package router

import (
	"errors"
	"testing"

	"github.com/pario-ai/skirmish/pkg/config"
	"github.com/pario-ai/skirmish/pkg/errs"
	"github.com/pario-ai/skirmish/pkg/models"
)

func twoProviders() config.ReasoningConfig {
	return config.ReasoningConfig{
		Providers: []config.ProviderConfig{
			{Name: "primary", URL: "https://reasoning-a.internal", APIKey: "k1"},
			{Name: "backup", URL: "https://reasoning-b.internal", APIKey: "k2"},
		},
		Routes: []config.RouteConfig{
			{
				Tier: models.TierEconomy,
				Targets: []config.RouteTarget{
					{Provider: "primary", Model: "small"},
					{Provider: "backup", Model: "small-b"},
				},
			},
		},
	}
}

func TestResolveNoRoutes(t *testing.T) {
	r := New(config.ReasoningConfig{
		Providers: []config.ProviderConfig{{Name: "primary", URL: "https://reasoning-a.internal"}},
	})
	routes, err := r.Resolve(models.TierStandard, "large")
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 {
		t.Fatalf("expected 1 route, got %d", len(routes))
	}
	if routes[0].Provider.Name != "primary" || routes[0].Model != "large" {
		t.Errorf("unexpected route: %+v", routes[0])
	}
}

func TestResolveTierChain(t *testing.T) {
	r := New(twoProviders())
	routes, err := r.Resolve(models.TierEconomy, "large")
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(routes))
	}
	if routes[0].Model != "small" || routes[0].Provider.Name != "primary" {
		t.Errorf("unexpected first route: %+v", routes[0])
	}
	if routes[1].Model != "small-b" || routes[1].Provider.Name != "backup" {
		t.Errorf("unexpected second route: %+v", routes[1])
	}

	// Standard has no route and falls back to the first provider.
	routes, err = r.Resolve(models.TierStandard, "large")
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 1 || routes[0].Model != "large" {
		t.Errorf("unexpected standard routes: %+v", routes)
	}
}

func TestResolveNoProviders(t *testing.T) {
	_, err := New(config.ReasoningConfig{}).Resolve(models.TierStandard, "large")
	if !errors.Is(err, errs.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestResolveAllUnknown(t *testing.T) {
	cfg := twoProviders()
	cfg.Routes[0].Targets = []config.RouteTarget{{Provider: "ghost"}}
	r := New(cfg)
	if _, err := r.Resolve(models.TierEconomy, "large"); err == nil {
		t.Error("expected error when every target is unknown")
	}
	if err := r.Validate(); !errors.Is(err, errs.ErrConfiguration) {
		t.Errorf("expected Validate to reject unknown provider, got %v", err)
	}
}

func TestResolveEmptyTargetModel(t *testing.T) {
	cfg := twoProviders()
	cfg.Routes[0].Targets = []config.RouteTarget{{Provider: "backup"}}
	routes, err := New(cfg).Resolve(models.TierEconomy, "large")
	if err != nil {
		t.Fatal(err)
	}
	if routes[0].Model != "large" {
		t.Errorf("expected requested model, got %s", routes[0].Model)
	}
}
