package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pario-ai/skirmish/pkg/models"
)

func tempCfg(t *testing.T) models.ArchiveConfig {
	t.Helper()
	return models.ArchiveConfig{
		DBPath:        filepath.Join(t.TempDir(), "archive_test.db"),
		RetentionDays: 30,
	}
}

func mustNew(t *testing.T, cfg models.ArchiveConfig) *Archive {
	t.Helper()
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func sampleBattle(id string) *models.Battle {
	now := time.Now().UTC()
	return &models.Battle{
		ID:          id,
		WorkItemID:  "skeptic",
		Environment: "prod",
		RoleA:       models.RoleConfig{Name: "Sam"},
		RoleB:       models.RoleConfig{Name: "Pat", Agent: models.CacheableConfig{Persona: "skeptic"}},
		Turns: []models.Turn{
			{Index: 0, Role: models.RoleA, Speaker: "Sam", Text: "Hi there", Cost: decimal.RequireFromString("0.02")},
			{Index: 1, Role: models.RoleB, Speaker: "Pat", Text: "Not interested", Cost: decimal.RequireFromString("0.03")},
		},
		CumulativeCost: decimal.RequireFromString("0.05"),
		State:          models.BattleCompleted,
		Score:          &models.Score{Outcome: "failure", Total: 42},
		StartedAt:      now,
		FinishedAt:     now.Add(time.Minute),
	}
}

func TestSaveAndGet(t *testing.T) {
	a := mustNew(t, tempCfg(t))
	ctx := context.Background()

	if err := a.Save(ctx, sampleBattle("b-001")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	b, err := a.Get(ctx, "b-001")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(b.Turns) != 2 || b.Turns[1].Text != "Not interested" {
		t.Errorf("transcript not preserved: %+v", b.Turns)
	}
	if !b.CumulativeCost.Equal(decimal.RequireFromString("0.05")) {
		t.Errorf("expected cost 0.05, got %s", b.CumulativeCost)
	}
	if b.Score == nil || b.Score.Total != 42 {
		t.Errorf("score not preserved: %+v", b.Score)
	}
}

func TestGetMissing(t *testing.T) {
	a := mustNew(t, tempCfg(t))
	_, err := a.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveReplaces(t *testing.T) {
	a := mustNew(t, tempCfg(t))
	ctx := context.Background()

	b := sampleBattle("b-001")
	b.State = models.BattleInProgress
	_ = a.Save(ctx, b)
	b.State = models.BattleAbortedBudget
	_ = a.Save(ctx, b)

	got, err := a.List(ctx, models.ArchiveQueryOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].State != models.BattleAbortedBudget {
		t.Fatalf("expected one aborted battle, got %+v", got)
	}
}

func TestListFilters(t *testing.T) {
	a := mustNew(t, tempCfg(t))
	ctx := context.Background()

	b1 := sampleBattle("b-001")
	b2 := sampleBattle("b-002")
	b2.WorkItemID = "friendly"
	b2.State = models.BattleAbortedError
	b2.StartedAt = b1.StartedAt.Add(time.Second)
	_ = a.Save(ctx, b1)
	_ = a.Save(ctx, b2)

	all, err := a.List(ctx, models.ArchiveQueryOpts{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 || all[0].ID != "b-002" {
		t.Fatalf("expected newest first, got %d battles", len(all))
	}

	byItem, _ := a.List(ctx, models.ArchiveQueryOpts{WorkItemID: "skeptic"})
	if len(byItem) != 1 || byItem[0].ID != "b-001" {
		t.Errorf("work item filter: %+v", byItem)
	}
	byState, _ := a.List(ctx, models.ArchiveQueryOpts{State: models.BattleAbortedError})
	if len(byState) != 1 || byState[0].ID != "b-002" {
		t.Errorf("state filter: %+v", byState)
	}
	limited, _ := a.List(ctx, models.ArchiveQueryOpts{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("expected limit 1, got %d", len(limited))
	}
	future, _ := a.List(ctx, models.ArchiveQueryOpts{Since: time.Now().Add(time.Hour)})
	if len(future) != 0 {
		t.Errorf("expected nothing since the future, got %d", len(future))
	}
}

func TestStats(t *testing.T) {
	a := mustNew(t, tempCfg(t))
	ctx := context.Background()

	_ = a.Save(ctx, sampleBattle("b-001"))
	_ = a.Save(ctx, sampleBattle("b-002"))

	stats, err := a.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected one state/day group, got %+v", stats)
	}
	if stats[0].Count != 2 || stats[0].State != models.BattleCompleted {
		t.Errorf("unexpected stat %+v", stats[0])
	}
	if stats[0].Day != time.Now().UTC().Format("2006-01-02") {
		t.Errorf("expected today, got %s", stats[0].Day)
	}
}

func TestCleanup(t *testing.T) {
	cfg := tempCfg(t)
	cfg.RetentionDays = 1
	a := mustNew(t, cfg)
	ctx := context.Background()

	old := sampleBattle("b-old")
	old.StartedAt = time.Now().AddDate(0, 0, -3)
	old.FinishedAt = old.StartedAt.Add(time.Minute)
	_ = a.Save(ctx, old)
	_ = a.Save(ctx, sampleBattle("b-new"))

	deleted, err := a.Cleanup(ctx)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted, got %d", deleted)
	}
	if _, err := a.Get(ctx, "b-new"); err != nil {
		t.Errorf("recent battle removed: %v", err)
	}
}

func TestNilArchiveSafe(t *testing.T) {
	var a *Archive
	if err := a.Save(context.Background(), sampleBattle("b-001")); err != nil {
		t.Errorf("nil archive should be safe: %v", err)
	}
}

func TestNewInvalidPath(t *testing.T) {
	_, err := New(models.ArchiveConfig{
		DBPath: filepath.Join(os.TempDir(), "nonexistent", "deep", "path", "archive.db"),
	})
	if err == nil {
		t.Error("expected error for invalid path")
	}
}
