package mcp

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/pario-ai/skirmish/pkg/models"
)

// formatBudgetStatus formats the governor status as text.
func formatBudgetStatus(st models.BudgetStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Budget (%s, since %s)\n", st.Environment, st.Since.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "  State:     %s\n", st.State)
	if st.Unknown {
		b.WriteString("  Spend:     unknown (ledger unreachable)\n")
		return b.String()
	}
	fmt.Fprintf(&b, "  Spend:     $%s\n", st.Spend.StringFixed(2))
	fmt.Fprintf(&b, "  Cap:       $%s\n", st.Cap.StringFixed(2))
	fmt.Fprintf(&b, "  Throttle:  $%s\n", st.ThrottleAt.StringFixed(2))
	fmt.Fprintf(&b, "  Remaining: $%s\n", st.Remaining.StringFixed(2))
	fmt.Fprintf(&b, "  Used:      %.1f%%\n", st.PercentUsed)
	return b.String()
}

// formatSpend formats spend summaries as a text table.
func formatSpend(rows []models.SpendSummary) string {
	if len(rows) == 0 {
		return "No spend recorded."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-16s %-11s %-9s %8s %12s %12s %10s %12s\n",
		"Provider", "Kind", "Tier", "Entries", "Input", "Output", "Seconds", "Cost")
	b.WriteString(strings.Repeat("-", 97) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-16s %-11s %-9s %8d %12s %12s %10.1f %12s\n",
			r.Provider, r.Kind, r.Tier, r.Entries,
			humanize.Comma(r.InputTokens), humanize.Comma(r.OutputTokens),
			r.Seconds, "$"+r.Cost.StringFixed(4))
	}
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return fmt.Sprintf("Resource Cache Statistics\n"+
		"  Entries:         %d\n"+
		"  Hits:            %d\n"+
		"  Misses:          %d\n"+
		"  Hit Rate:        %.1f%%\n"+
		"  Evictions:       %d\n"+
		"  Verify Failures: %d\n",
		stats.Entries, stats.Hits, stats.Misses, hitRate, stats.Evictions, stats.VerifyFailures)
}

// formatBattles formats archived battles as a text table.
func formatBattles(battles []models.Battle) string {
	if len(battles) == 0 {
		return "No battles found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-38s %-16s %-15s %5s %10s %6s  %s\n",
		"Battle ID", "Work Item", "State", "Turns", "Cost", "Score", "Started")
	b.WriteString(strings.Repeat("-", 115) + "\n")
	for _, bt := range battles {
		score := "-"
		if bt.Score != nil {
			score = fmt.Sprintf("%.1f", bt.Score.Total)
		}
		fmt.Fprintf(&b, "%-38s %-16s %-15s %5d %10s %6s  %s\n",
			bt.ID, bt.WorkItemID, bt.State, len(bt.Turns),
			"$"+bt.CumulativeCost.StringFixed(4), score, humanize.Time(bt.StartedAt))
	}
	return b.String()
}

// formatBattleDetail formats one battle's transcript and score.
func formatBattleDetail(bt *models.Battle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Battle %s (%s)\n", bt.ID, bt.State)
	fmt.Fprintf(&b, "  %s vs %s, %d turns, $%s\n", bt.RoleA.Name, bt.RoleB.Name, len(bt.Turns), bt.CumulativeCost.StringFixed(4))
	if bt.Error != "" {
		fmt.Fprintf(&b, "  Error: %s\n", bt.Error)
	}
	b.WriteString("\n")
	for _, t := range bt.Turns {
		fmt.Fprintf(&b, "[%2d] %s (%s, $%s): %s\n", t.Index, t.Speaker, t.Tier, t.Cost.StringFixed(4), t.Text)
	}
	b.WriteString("\n")
	switch {
	case bt.Score != nil:
		s := bt.Score
		fmt.Fprintf(&b, "Score %.1f, outcome %s\n", s.Total, s.Outcome)
		fmt.Fprintf(&b, "  rapport %.1f  discovery %.1f  objections %.1f  closing %.1f  compliance %.1f  naturalness %.1f\n",
			s.Rapport, s.Discovery, s.ObjectionHandling, s.Closing, s.Compliance, s.Naturalness)
		if s.Summary != "" {
			fmt.Fprintf(&b, "  %s\n", s.Summary)
		}
	case bt.ScoreError != "":
		fmt.Fprintf(&b, "Not scored: %s\n", bt.ScoreError)
	default:
		b.WriteString("Not scored.\n")
	}
	return b.String()
}
