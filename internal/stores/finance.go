package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Kazutech1/northstar/internal/core"
	"github.com/Kazutech1/northstar/internal/storage"
)

// FinanceLedger owns the finance sub-ledger: savings goals under
// "@money_goals" and the main savings balance under "@money_main_savings".
type FinanceLedger struct {
	repo storage.Repository
}

func NewFinanceLedger(repo storage.Repository) *FinanceLedger {
	return &FinanceLedger{repo: repo}
}

// SavingsGoals returns all savings goals; missing or malformed data reads
// as an empty list.
func (l *FinanceLedger) SavingsGoals(ctx context.Context) ([]core.SavingsGoal, error) {
	raw, err := l.repo.Get(ctx, MoneyGoalsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load savings goals: %w", err)
	}
	return DecodeSavingsGoals(raw, MoneyGoalsKey), nil
}

func (l *FinanceLedger) saveSavingsGoals(ctx context.Context, goals []core.SavingsGoal) error {
	if goals == nil {
		goals = []core.SavingsGoal{}
	}
	raw, err := json.Marshal(goals)
	if err != nil {
		return fmt.Errorf("encode savings goals: %w", err)
	}
	if err := l.repo.Set(ctx, MoneyGoalsKey, string(raw)); err != nil {
		return fmt.Errorf("save savings goals: %w", err)
	}
	return nil
}

// AddSavingsGoal creates a savings goal. When target is zero the default
// target is twice the initial amount.
func (l *FinanceLedger) AddSavingsGoal(ctx context.Context, name string, amount, target int64, now time.Time) (core.SavingsGoal, error) {
	if target == 0 {
		target = amount * 2
	}
	goal := core.SavingsGoal{
		ID:            now.UnixMilli(),
		Name:          name,
		CurrentAmount: amount,
		TargetAmount:  target,
		CreatedAt:     now,
	}
	if err := goal.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	goal.MarkCompletion(now)

	goals, err := l.SavingsGoals(ctx)
	if err != nil {
		return core.SavingsGoal{}, err
	}
	// Clock ids can collide on same-millisecond adds.
	for containsSavingsID(goals, goal.ID) {
		goal.ID++
	}
	goals = append(goals, goal)
	if err := l.saveSavingsGoals(ctx, goals); err != nil {
		return core.SavingsGoal{}, err
	}

	slog.InfoContext(ctx, "Savings goal added",
		"id", goal.ID, "name", goal.Name, "target", goal.TargetAmount)
	return goal, nil
}

func containsSavingsID(goals []core.SavingsGoal, id int64) bool {
	for _, g := range goals {
		if g.ID == id {
			return true
		}
	}
	return false
}

// AddToSavings credits a savings goal, stamping CompletedAt on the first
// crossing of the target.
func (l *FinanceLedger) AddToSavings(ctx context.Context, id, amount int64, now time.Time) (core.SavingsGoal, error) {
	if amount <= 0 {
		return core.SavingsGoal{}, core.ErrInvalidAmount
	}
	goals, err := l.SavingsGoals(ctx)
	if err != nil {
		return core.SavingsGoal{}, err
	}

	for i := range goals {
		if goals[i].ID != id {
			continue
		}
		goals[i].CurrentAmount += amount
		goals[i].MarkCompletion(now)
		if err := l.saveSavingsGoals(ctx, goals); err != nil {
			return core.SavingsGoal{}, err
		}
		return goals[i], nil
	}
	return core.SavingsGoal{}, ErrGoalNotFound
}

// Upsert replaces the savings goal with a matching id or appends,
// re-checking the completion stamp either way.
func (l *FinanceLedger) Upsert(ctx context.Context, goal core.SavingsGoal, now time.Time) error {
	if err := goal.Validate(); err != nil {
		return err
	}
	goal.MarkCompletion(now)

	goals, err := l.SavingsGoals(ctx)
	if err != nil {
		return err
	}
	replaced := false
	for i := range goals {
		if goals[i].ID == goal.ID {
			// The stamp is monotonic: keep the original crossing time.
			if goals[i].CompletedAt != nil {
				goal.CompletedAt = goals[i].CompletedAt
			}
			goals[i] = goal
			replaced = true
			break
		}
	}
	if !replaced {
		goals = append(goals, goal)
	}
	return l.saveSavingsGoals(ctx, goals)
}

// DeleteSavingsGoal removes a savings goal by id.
func (l *FinanceLedger) DeleteSavingsGoal(ctx context.Context, id int64) error {
	goals, err := l.SavingsGoals(ctx)
	if err != nil {
		return err
	}
	kept := goals[:0]
	found := false
	for _, g := range goals {
		if g.ID == id {
			found = true
			continue
		}
		kept = append(kept, g)
	}
	if !found {
		return ErrGoalNotFound
	}
	return l.saveSavingsGoals(ctx, kept)
}

// MainSavings returns the main savings balance. Missing or non-numeric
// values read as zero.
func (l *FinanceLedger) MainSavings(ctx context.Context) (int64, error) {
	raw, err := l.repo.Get(ctx, MainSavingsKey)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load main savings: %w", err)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("Discarding malformed main savings value", "key", MainSavingsKey, "value", raw)
		return 0, nil
	}
	return value, nil
}

// AddToMainSavings credits the main savings balance and returns the new
// total.
func (l *FinanceLedger) AddToMainSavings(ctx context.Context, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, core.ErrInvalidAmount
	}
	current, err := l.MainSavings(ctx)
	if err != nil {
		return 0, err
	}
	total := current + amount
	if err := l.repo.Set(ctx, MainSavingsKey, strconv.FormatInt(total, 10)); err != nil {
		return 0, fmt.Errorf("save main savings: %w", err)
	}
	return total, nil
}
