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
	"github.com/pario-ai/skirmish/pkg/schema"
)

// RefereeClient scores finished transcripts.
type RefereeClient struct {
	base   *Base
	url    string
	apiKey string
}

// NewRefereeClient creates a referee client.
func NewRefereeClient(cfg config.ServiceConfig, logger *zap.Logger) *RefereeClient {
	return &RefereeClient{
		base: NewBase(BaseConfig{
			Service:    "referee",
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
			Logger:     logger,
		}),
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
	}
}

// Score sends the transcript and returns the referee's raw verdict.
func (c *RefereeClient) Score(ctx context.Context, req models.ScoreRequest) (*models.RawScore, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal score request: %w", err)
	}
	data, err := c.base.Do(ctx, http.MethodPost, c.url+"/v1/score", bearer(c.apiKey), body)
	if err != nil {
		return nil, err
	}
	var raw models.RawScore
	if err := schema.Decode(schema.Score, data, &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}
