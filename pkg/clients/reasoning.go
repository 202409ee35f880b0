package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pario-ai/skirmish/pkg/config"
	"github.com/pario-ai/skirmish/pkg/models"
	"github.com/pario-ai/skirmish/pkg/router"
	"github.com/pario-ai/skirmish/pkg/schema"
)

// ReasoningClient generates turns, falling back along the tier's provider
// chain when a provider fails.
type ReasoningClient struct {
	router *router.Router
	bases  map[string]*Base
	logger *zap.Logger
}

// NewReasoningClient creates a client with one breaker per provider.
func NewReasoningClient(cfg config.ReasoningConfig, logger *zap.Logger) *ReasoningClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	bases := make(map[string]*Base, len(cfg.Providers))
	for _, p := range cfg.Providers {
		bases[p.Name] = NewBase(BaseConfig{
			Service: "reasoning-" + p.Name,
			Timeout: cfg.Timeout,
			Logger:  logger,
		})
	}
	return &ReasoningClient{router: router.New(cfg), bases: bases, logger: logger.Named("reasoning")}
}

// Generate produces the next turn. The response is schema-checked, so a
// returned response always has text and numeric usage.
func (c *ReasoningClient) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerateResponse, error) {
	routes, err := c.router.Resolve(req.Tier, req.Model)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, route := range routes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req.Model = route.Model
		body, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("marshal generate request: %w", err)
		}

		url := strings.TrimRight(route.Provider.URL, "/") + "/v1/generate"
		data, err := c.bases[route.Provider.Name].Do(ctx, http.MethodPost, url, bearer(route.Provider.APIKey), body)
		if err != nil {
			if Retryable(err) {
				c.logger.Warn("reasoning provider failed, trying next",
					zap.String("provider", route.Provider.Name), zap.Error(err))
				lastErr = err
				continue
			}
			return nil, err
		}

		var resp models.GenerateResponse
		if err := schema.Decode(schema.GenerateResponse, data, &resp); err != nil {
			return nil, fmt.Errorf("%s: %w", route.Provider.Name, err)
		}
		if resp.Provider == "" {
			resp.Provider = route.Provider.Name
		}
		if resp.Model == "" {
			resp.Model = route.Model
		}
		return &resp, nil
	}
	return nil, fmt.Errorf("all reasoning providers failed: %w", lastErr)
}
