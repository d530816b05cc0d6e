// Package stores provides typed accessors over the key-value repository:
// per-category goal lists and the finance sub-ledger. Malformed or missing
// values are recovered as empty collections, never surfaced as fatal
// errors.
package stores

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/Kazutech1/northstar/internal/core"
)

// equalFold compares goal texts the way the reconciliation engine does:
// case-insensitively, ignoring surrounding whitespace.
func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Persisted key schema. Each key has exactly one owning subsystem.
const (
	// TasksKey holds the canonical merged task ledger.
	TasksKey = "@tasks"
	// LegacyTasksKey is the pre-rename ledger key, migrated into
	// TasksKey once and then removed.
	LegacyTasksKey = "tasks"
	// MoneyGoalsKey holds the savings goals of the finance ledger.
	MoneyGoalsKey = "@money_goals"
	// MainSavingsKey holds the main savings balance as a numeric string.
	MainSavingsKey = "@money_main_savings"

	// Visit streak keys.
	LastVisitKey    = "lastVisit"
	StreakKey       = "streak"
	VisitHistoryKey = "visitHistory"
)

// GoalsKey returns the storage key of one category's goal list, e.g.
// "@health_goals".
func GoalsKey(slug string) string {
	return "@" + slug + "_goals"
}

// DecodeGoals parses a stored goal list. Malformed JSON yields an empty
// list: a corrupt key must degrade to an empty collection, not an error.
func DecodeGoals(raw, key string) []core.Goal {
	if raw == "" {
		return nil
	}
	var goals []core.Goal
	if err := json.Unmarshal([]byte(raw), &goals); err != nil {
		slog.Warn("Discarding malformed goal list", "key", key, "error", err)
		return nil
	}
	return goals
}

// DecodeTasks parses a stored task ledger with the same recovery policy.
func DecodeTasks(raw, key string) []core.Task {
	if raw == "" {
		return nil
	}
	var tasks []core.Task
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		slog.Warn("Discarding malformed task ledger", "key", key, "error", err)
		return nil
	}
	return tasks
}

// DecodeSavingsGoals parses the stored savings goal list.
func DecodeSavingsGoals(raw, key string) []core.SavingsGoal {
	if raw == "" {
		return nil
	}
	var goals []core.SavingsGoal
	if err := json.Unmarshal([]byte(raw), &goals); err != nil {
		slog.Warn("Discarding malformed savings goals", "key", key, "error", err)
		return nil
	}
	return goals
}
