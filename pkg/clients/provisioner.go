package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/pario-ai/skirmish/pkg/config"
	"github.com/pario-ai/skirmish/pkg/models"
)

// ProvisionerClient manages external conversational agents.
type ProvisionerClient struct {
	base   *Base
	url    string
	apiKey string
}

// NewProvisionerClient creates a provisioner client.
func NewProvisionerClient(cfg config.ServiceConfig, logger *zap.Logger) *ProvisionerClient {
	return &ProvisionerClient{
		base: NewBase(BaseConfig{
			Service:    "provisioner",
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			Logger:     logger,
		}),
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
	}
}

func (c *ProvisionerClient) agentURL(id string) string {
	return c.url + "/v1/agents/" + url.PathEscape(id)
}

// Create provisions an agent for cfg and returns its id.
func (c *ProvisionerClient) Create(ctx context.Context, cfg models.CacheableConfig) (string, error) {
	body, err := json.Marshal(map[string]any{"config": cfg})
	if err != nil {
		return "", fmt.Errorf("marshal agent config: %w", err)
	}
	data, err := c.base.Do(ctx, http.MethodPost, c.url+"/v1/agents", bearer(c.apiKey), body)
	if err != nil {
		return "", err
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("decode agent: %w", err)
	}
	if resp.ID == "" {
		return "", errors.New("provisioner returned no agent id")
	}
	return resp.ID, nil
}

// Exists reports whether the agent is still live. 404 means false.
func (c *ProvisionerClient) Exists(ctx context.Context, id string) (bool, error) {
	_, err := c.base.Do(ctx, http.MethodGet, c.agentURL(id), bearer(c.apiKey), nil)
	if IsStatus(err, http.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Patch pushes per-call fields onto the agent. 404 means false.
func (c *ProvisionerClient) Patch(ctx context.Context, id string, dyn models.DynamicFields) (bool, error) {
	body, err := json.Marshal(dyn)
	if err != nil {
		return false, fmt.Errorf("marshal dynamic fields: %w", err)
	}
	_, err = c.base.Do(ctx, http.MethodPatch, c.agentURL(id), bearer(c.apiKey), body)
	if IsStatus(err, http.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
