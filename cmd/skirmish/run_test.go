package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pario-ai/skirmish/pkg/config"
	"github.com/pario-ai/skirmish/pkg/errs"
	"github.com/pario-ai/skirmish/pkg/models"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.WorkItems = []models.WorkItem{
		{ID: "skeptic", Persona: models.CacheableConfig{Persona: "skeptic"}},
		{ID: "friendly", Persona: models.CacheableConfig{Persona: "friendly"}},
		{ID: "busy", Persona: models.CacheableConfig{Persona: "busy"}},
	}
	return cfg
}

func TestSelectItems(t *testing.T) {
	cfg := testConfig()

	all, err := selectItems(cfg, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("expected all 3 items, got %d", len(all))
	}

	picked, err := selectItems(cfg, []string{"busy", " skeptic"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(picked) != 2 || picked[0].ID != "busy" || picked[1].ID != "skeptic" {
		t.Errorf("unexpected selection %+v", picked)
	}

	cycled, err := selectItems(cfg, nil, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(cycled) != 7 || cycled[3].ID != "skeptic" || cycled[6].ID != "skeptic" {
		t.Errorf("expected items to cycle, got %d items", len(cycled))
	}

	truncated, _ := selectItems(cfg, nil, 2)
	if len(truncated) != 2 {
		t.Errorf("expected 2 items, got %d", len(truncated))
	}
}

func TestSelectItemsErrors(t *testing.T) {
	cfg := testConfig()
	if _, err := selectItems(cfg, []string{"nobody"}, 0); !errors.Is(err, errs.ErrConfiguration) {
		t.Errorf("expected configuration error for unknown item, got %v", err)
	}
	if _, err := selectItems(cfg, nil, -1); !errors.Is(err, errs.ErrConfiguration) {
		t.Errorf("expected configuration error for negative batch, got %v", err)
	}
	if _, err := selectItems(config.Default(), nil, 0); !errors.Is(err, errs.ErrConfiguration) {
		t.Errorf("expected configuration error for empty work list, got %v", err)
	}
}

func TestPrintBatch(t *testing.T) {
	now := time.Now()
	res := models.BatchResult{
		Submitted:           10,
		Completed:           1,
		Failed:              1,
		NotAdmitted:         8,
		KillSwitchTriggered: true,
		Results: []models.ItemResult{
			{Index: 0, WorkItemID: "skeptic", StartedAt: now, FinishedAt: now.Add(time.Second), Battle: &models.Battle{
				State:          models.BattleAbortedBudget,
				Turns:          make([]models.Turn, 5),
				CumulativeCost: decimal.RequireFromString("1.1"),
			}},
			{Index: 1, WorkItemID: "busy", StartedAt: now, FinishedAt: now, Err: "upstream unavailable"},
		},
	}

	var buf bytes.Buffer
	if err := printBatch(&buf, res); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"aborted_budget", "$1.1000", "8 not admitted", "Kill switch triggered", "upstream unavailable"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
