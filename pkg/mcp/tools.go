package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pario-ai/skirmish/pkg/archive"
	"github.com/pario-ai/skirmish/pkg/budget"
	"github.com/pario-ai/skirmish/pkg/models"
)

// toolHandler handles one tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

type tool struct {
	def    ToolDefinition
	handle toolHandler
}

func objectSchema(required []string, props map[string]any) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func stringProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

var tools = []tool{
	{
		def: ToolDefinition{
			Name:        "skirmish_budget",
			Description: "Show today's spend against the daily cap and the governor state (NORMAL, THROTTLED, EXCEEDED).",
			InputSchema: objectSchema(nil, map[string]any{}),
		},
		handle: handleBudget,
	},
	{
		def: ToolDefinition{
			Name:        "skirmish_spend",
			Description: "Show recorded spend grouped by provider, resource kind and tier.",
			InputSchema: objectSchema(nil, map[string]any{
				"since": stringProp("Start date in YYYY-MM-DD format (optional, defaults to today UTC)"),
			}),
		},
		handle: handleSpend,
	},
	{
		def: ToolDefinition{
			Name:        "skirmish_cache_stats",
			Description: "Show resource cache statistics (entries, hits, misses, evictions, verification failures).",
			InputSchema: objectSchema(nil, map[string]any{}),
		},
		handle: handleCacheStats,
	},
	{
		def: ToolDefinition{
			Name:        "skirmish_battles",
			Description: "List recent battles with state, turn count, cost and score.",
			InputSchema: objectSchema(nil, map[string]any{
				"work_item": stringProp("Filter by work item id (optional)"),
				"state":     stringProp("Filter by state: completed, aborted_budget or aborted_error (optional)"),
				"since":     stringProp("Start date in YYYY-MM-DD format (optional)"),
			}),
		},
		handle: handleBattles,
	},
	{
		def: ToolDefinition{
			Name:        "skirmish_battle_detail",
			Description: "Show one battle's transcript, per-turn cost and referee score.",
			InputSchema: objectSchema([]string{"battle_id"}, map[string]any{
				"battle_id": stringProp("The battle ID to inspect"),
			}),
		},
		handle: handleBattleDetail,
	},
}

func toolDefinitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, t.def)
	}
	return defs
}

func toolByName(name string) (tool, bool) {
	for _, t := range tools {
		if t.def.Name == name {
			return t, true
		}
	}
	return tool{}, false
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func parseDay(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", s, time.UTC)
}

func handleBudget(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Budget == nil {
		return textResult("Budget governor is not configured.")
	}
	return textResult(formatBudgetStatus(s.deps.Budget.Status(ctx)))
}

type spendArgs struct {
	Since string `json:"since"`
}

func handleSpend(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.deps.Spend == nil {
		return textResult("Cost ledger is not configured.")
	}
	var args spendArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	since := budget.DayStart(s.now())
	if args.Since != "" {
		t, err := parseDay(args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		since = t
	}
	rows, err := s.deps.Spend.Summary(ctx, since, s.deps.Environment)
	if err != nil {
		return errorResult("Error fetching spend: " + err.Error())
	}
	return textResult(formatSpend(rows))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.deps.Cache == nil {
		return textResult("Resource cache is not configured.")
	}
	stats, err := s.deps.Cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

type battlesArgs struct {
	WorkItem string `json:"work_item"`
	State    string `json:"state"`
	Since    string `json:"since"`
}

func handleBattles(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.deps.Battles == nil {
		return textResult("Battle archive is not configured.")
	}
	var args battlesArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult("Invalid arguments: " + err.Error())
	}
	opts := models.ArchiveQueryOpts{
		WorkItemID: args.WorkItem,
		State:      models.BattleState(args.State),
		Limit:      50,
	}
	if args.Since != "" {
		t, err := parseDay(args.Since)
		if err != nil {
			return errorResult("Invalid since date (use YYYY-MM-DD): " + err.Error())
		}
		opts.Since = t
	}
	battles, err := s.deps.Battles.List(ctx, opts)
	if err != nil {
		return errorResult("Error listing battles: " + err.Error())
	}
	return textResult(formatBattles(battles))
}

type battleDetailArgs struct {
	BattleID string `json:"battle_id"`
}

func handleBattleDetail(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.deps.Battles == nil {
		return textResult("Battle archive is not configured.")
	}
	var args battleDetailArgs
	_ = decodeArgs(raw, &args)
	if args.BattleID == "" {
		return errorResult("battle_id is required")
	}
	b, err := s.deps.Battles.Get(ctx, args.BattleID)
	if errors.Is(err, archive.ErrNotFound) {
		return errorResult("Battle not found: " + args.BattleID)
	}
	if err != nil {
		return errorResult("Error fetching battle: " + err.Error())
	}
	return textResult(formatBattleDetail(b))
}
