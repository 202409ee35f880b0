// Package server exposes budget, cache and battle status over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pario-ai/skirmish/pkg/archive"
	"github.com/pario-ai/skirmish/pkg/models"
)

// BudgetReporter reports the current budget status.
type BudgetReporter interface {
	Status(ctx context.Context) models.BudgetStatus
}

// CacheReporter reports resource cache statistics.
type CacheReporter interface {
	Stats(ctx context.Context) (models.CacheStats, error)
}

// BattleStore reads archived battles.
type BattleStore interface {
	Get(ctx context.Context, id string) (*models.Battle, error)
	List(ctx context.Context, opts models.ArchiveQueryOpts) ([]models.Battle, error)
}

// Deps are the read-only views the server renders. Cache and Battles may be
// nil, in which case their endpoints answer 404.
type Deps struct {
	Budget  BudgetReporter
	Cache   CacheReporter
	Battles BattleStore
	Logger  *zap.Logger
}

// Server is the skirmish status server.
type Server struct {
	listen string
	deps   Deps
	logger *zap.Logger
	mux    *http.ServeMux
}

// New creates a Server listening on listen.
func New(listen string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{
		listen: listen,
		deps:   deps,
		logger: deps.Logger.Named("server"),
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /v1/budget", s.handleBudget)
	s.mux.HandleFunc("GET /v1/cache/stats", s.handleCacheStats)
	s.mux.HandleFunc("GET /v1/battles", s.handleBattles)
	s.mux.HandleFunc("GET /v1/battles/{id}", s.handleBattle)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", zap.String("addr", s.listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	if s.deps.Budget == nil {
		writeJSONError(w, http.StatusNotFound, "budget governor not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Budget.Status(r.Context()))
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cache == nil {
		writeJSONError(w, http.StatusNotFound, "resource cache not configured")
		return
	}
	stats, err := s.deps.Cache.Stats(r.Context())
	if err != nil {
		s.logger.Error("cache stats failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "cache stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// battleSummary is the list view of a battle, without the transcript.
type battleSummary struct {
	ID             string             `json:"id"`
	WorkItemID     string             `json:"work_item_id,omitempty"`
	Environment    string             `json:"environment"`
	State          models.BattleState `json:"state"`
	Turns          int                `json:"turns"`
	CumulativeCost string             `json:"cumulative_cost"`
	ScoreTotal     *float64           `json:"score_total,omitempty"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     time.Time          `json:"finished_at"`
}

func summarize(b models.Battle) battleSummary {
	sum := battleSummary{
		ID:             b.ID,
		WorkItemID:     b.WorkItemID,
		Environment:    b.Environment,
		State:          b.State,
		Turns:          len(b.Turns),
		CumulativeCost: b.CumulativeCost.StringFixed(6),
		StartedAt:      b.StartedAt,
		FinishedAt:     b.FinishedAt,
	}
	if b.Score != nil {
		total := b.Score.Total
		sum.ScoreTotal = &total
	}
	return sum
}

func (s *Server) handleBattles(w http.ResponseWriter, r *http.Request) {
	if s.deps.Battles == nil {
		writeJSONError(w, http.StatusNotFound, "battle archive not configured")
		return
	}
	opts, err := parseQuery(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	battles, err := s.deps.Battles.List(r.Context(), opts)
	if err != nil {
		s.logger.Error("list battles failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "battle archive unavailable")
		return
	}
	out := make([]battleSummary, 0, len(battles))
	for _, b := range battles {
		out = append(out, summarize(b))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleBattle(w http.ResponseWriter, r *http.Request) {
	if s.deps.Battles == nil {
		writeJSONError(w, http.StatusNotFound, "battle archive not configured")
		return
	}
	b, err := s.deps.Battles.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, archive.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "battle not found")
		return
	}
	if err != nil {
		s.logger.Error("get battle failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "battle archive unavailable")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func parseQuery(r *http.Request) (models.ArchiveQueryOpts, error) {
	q := r.URL.Query()
	opts := models.ArchiveQueryOpts{
		WorkItemID:  q.Get("work_item"),
		State:       models.BattleState(q.Get("state")),
		Environment: q.Get("environment"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, fmt.Errorf("invalid limit %q", v)
		}
		opts.Limit = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return opts, fmt.Errorf("invalid since %q: want RFC3339", v)
		}
		opts.Since = t
	}
	return opts, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"skirmish_error","code":%d}}`, message, code)
}
