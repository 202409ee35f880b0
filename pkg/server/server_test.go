package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pario-ai/skirmish/pkg/archive"
	"github.com/pario-ai/skirmish/pkg/models"
)

type staticBudget struct{ st models.BudgetStatus }

func (s staticBudget) Status(context.Context) models.BudgetStatus { return s.st }

type staticCache struct{ stats models.CacheStats }

func (s staticCache) Stats(context.Context) (models.CacheStats, error) { return s.stats, nil }

func setupServer(t *testing.T) *Server {
	t.Helper()
	a, err := archive.New(models.ArchiveConfig{DBPath: filepath.Join(t.TempDir(), "archive.db")})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })

	now := time.Now().UTC()
	b := &models.Battle{
		ID:             "b-001",
		WorkItemID:     "skeptic",
		Environment:    "prod",
		Turns:          []models.Turn{{Index: 0, Role: models.RoleA, Speaker: "Sam", Text: "Hello"}},
		CumulativeCost: decimal.RequireFromString("0.05"),
		State:          models.BattleCompleted,
		Score:          &models.Score{Total: 71.5},
		StartedAt:      now,
		FinishedAt:     now,
	}
	if err := a.Save(context.Background(), b); err != nil {
		t.Fatal(err)
	}

	return New(":0", Deps{
		Budget: staticBudget{st: models.BudgetStatus{
			Environment: "prod",
			Spend:       decimal.RequireFromString("4.5"),
			Cap:         decimal.NewFromInt(15),
			State:       models.BudgetThrottled,
			Throttled:   true,
		}},
		Cache:   staticCache{stats: models.CacheStats{Entries: 3, Hits: 10, Misses: 2}},
		Battles: a,
	})
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := get(t, setupServer(t), "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestBudget(t *testing.T) {
	w := get(t, setupServer(t), "/v1/budget")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var st models.BudgetStatus
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.State != models.BudgetThrottled || !st.Spend.Equal(decimal.RequireFromString("4.5")) {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestCacheStats(t *testing.T) {
	w := get(t, setupServer(t), "/v1/cache/stats")
	var stats models.CacheStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Hits != 10 || stats.Entries != 3 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestBattles(t *testing.T) {
	s := setupServer(t)

	w := get(t, s, "/v1/battles?work_item=skeptic")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body)
	}
	var list []battleSummary
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Turns != 1 || list[0].CumulativeCost != "0.050000" {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[0].ScoreTotal == nil || *list[0].ScoreTotal != 71.5 {
		t.Errorf("expected score total 71.5")
	}

	w = get(t, s, "/v1/battles?state=aborted_budget")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("expected empty list, got %s", w.Body)
	}

	w = get(t, s, "/v1/battles?limit=abc")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestBattleDetail(t *testing.T) {
	s := setupServer(t)

	w := get(t, s, "/v1/battles/b-001")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var b models.Battle
	if err := json.NewDecoder(w.Body).Decode(&b); err != nil {
		t.Fatal(err)
	}
	if len(b.Turns) != 1 || b.Turns[0].Text != "Hello" {
		t.Errorf("transcript missing: %+v", b.Turns)
	}

	w = get(t, s, "/v1/battles/missing")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestMetrics(t *testing.T) {
	w := get(t, setupServer(t), "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "go_goroutines") {
		t.Error("expected default Go collectors in metrics output")
	}
}

func TestUnconfiguredEndpoints(t *testing.T) {
	s := New(":0", Deps{})
	for _, path := range []string{"/v1/budget", "/v1/cache/stats", "/v1/battles", "/v1/battles/x"} {
		if w := get(t, s, path); w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %d", path, w.Code)
		}
	}
}

func TestListenAndServeShutdown(t *testing.T) {
	s := New("127.0.0.1:0", Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected shutdown error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
