// Package services implements the reconciliation, streak and aggregation
// engines that derive consistent views from the key-value stores.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Kazutech1/northstar/internal/core"
	"github.com/Kazutech1/northstar/internal/storage"
	"github.com/Kazutech1/northstar/internal/stores"
)

// ReconciliationEngine merges the per-category goal stores and the
// finance ledger into the canonical task ledger, and routes direct ledger
// edits back into their owning collections.
//
// There is no cross-key atomicity: a pass that races a concurrent edit
// may clobber it, and the next pass re-derives and self-heals. The merge
// itself is a pure function of the store contents.
type ReconciliationEngine struct {
	repo    storage.Repository
	finance *stores.FinanceLedger
	goals   []*stores.CategoryGoalStore

	now func() time.Time
}

func NewReconciliationEngine(repo storage.Repository) *ReconciliationEngine {
	cats := core.GoalCategories()
	goalStores := make([]*stores.CategoryGoalStore, len(cats))
	for i, c := range cats {
		goalStores[i] = stores.NewCategoryGoalStore(repo, c)
	}
	return &ReconciliationEngine{
		repo:    repo,
		finance: stores.NewFinanceLedger(repo),
		goals:   goalStores,
		now:     time.Now,
	}
}

// GoalStore returns the store owning the given category, or nil for
// categories without one (financial).
func (e *ReconciliationEngine) GoalStore(key core.CategoryKey) *stores.CategoryGoalStore {
	for _, s := range e.goals {
		if s.Category().Key == key {
			return s
		}
	}
	return nil
}

// Finance returns the finance ledger accessor.
func (e *ReconciliationEngine) Finance() *stores.FinanceLedger {
	return e.finance
}

// ledger is one merge pass's working set: a map keyed by task id with
// stable first-insertion order, so repeated passes over identical input
// serialize identically.
type ledger struct {
	order []int64
	byID  map[int64]core.Task
}

func newLedger() *ledger {
	return &ledger{byID: make(map[int64]core.Task)}
}

// put inserts a task; a task with a seen id replaces the earlier one
// (last occurrence wins) without changing its position.
func (l *ledger) put(t core.Task) {
	if _, seen := l.byID[t.ID]; !seen {
		l.order = append(l.order, t.ID)
	}
	l.byID[t.ID] = t
}

// putIfAbsent inserts only when the id has not been seen.
func (l *ledger) putIfAbsent(t core.Task) {
	if _, seen := l.byID[t.ID]; seen {
		return
	}
	l.put(t)
}

func (l *ledger) tasks() []core.Task {
	out := make([]core.Task, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.byID[id])
	}
	return out
}

// LoadAndSync rebuilds the canonical task ledger from every category
// store and the finance ledger, persists it to "@tasks", and clears the
// legacy consolidated key. The merged array is returned.
func (e *ReconciliationEngine) LoadAndSync(ctx context.Context) ([]core.Task, error) {
	prev, err := e.loadLedgerTasks(ctx, stores.TasksKey)
	if err != nil {
		return nil, err
	}
	legacy, err := e.loadLedgerTasks(ctx, stores.LegacyTasksKey)
	if err != nil {
		return nil, err
	}

	// Category stores and the finance ledger are independent keys; load
	// them concurrently.
	goalLists := make([][]core.Goal, len(e.goals))
	var savings []core.SavingsGoal

	g, gctx := errgroup.WithContext(ctx)
	for i, store := range e.goals {
		g.Go(func() error {
			list, err := store.Load(gctx)
			if err != nil {
				return err
			}
			goalLists[i] = list
			return nil
		})
	}
	g.Go(func() error {
		list, err := e.finance.SavingsGoals(gctx)
		if err != nil {
			return err
		}
		savings = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load source collections: %w", err)
	}

	merged := newLedger()

	// Category stores first: map goals to tasks, overlaying ledger state
	// from the previous snapshot (matched case-insensitively on goal
	// text and category, since goals carry no cross-reference id).
	for i, store := range e.goals {
		category := store.Category().Key
		for _, goal := range goalLists[i] {
			task := core.TaskFromGoal(goal, category)
			if twin, ok := findTwin(prev, task.Goal, category); ok {
				task.MindDump = twin.MindDump
				if twin.Completed {
					task.Completed = true
				}
				if task.CompletedAt == nil {
					task.CompletedAt = twin.CompletedAt
				}
			}
			merged.put(task)
		}
	}

	// Finance ledger: savings goals project to financial tasks with the
	// monetary fields populated.
	for _, sg := range savings {
		merged.put(core.TaskFromSavingsGoal(sg))
	}

	// Carry over previous-ledger tasks that have no source collection:
	// mind dumps without a category twin, plus expenses and earnings.
	// Stale savings projections are skipped; they were just rebuilt.
	for _, t := range prev {
		t = normalizeTask(t)
		if t.Kind == core.KindSavings {
			continue
		}
		if t.Kind == core.KindGoal {
			if _, ok := findTwinInLedger(merged, t.Goal, t.Category); ok {
				continue
			}
		}
		merged.putIfAbsent(t)
	}

	// Legacy consolidated key last, then the one-time rename completes
	// by deleting it.
	for _, t := range legacy {
		merged.put(normalizeTask(t))
	}

	tasks := merged.tasks()
	if err := e.persistLedger(ctx, tasks); err != nil {
		return nil, err
	}
	if len(legacy) > 0 {
		if err := e.repo.Remove(ctx, stores.LegacyTasksKey); err != nil {
			slog.WarnContext(ctx, "Failed clearing legacy tasks key", "error", err)
		}
	}

	slog.InfoContext(ctx, "Task ledger reconciled",
		"tasks", len(tasks), "savings_goals", len(savings), "migrated_legacy", len(legacy))
	return tasks, nil
}

// SaveGoalOrTask routes a direct edit to its owning collection, mirrors
// it into the ledger, and re-derives the merged view so the two never
// diverge for more than one pass.
func (e *ReconciliationEngine) SaveGoalOrTask(ctx context.Context, task core.Task) ([]core.Task, error) {
	now := e.now()
	if task.ID == 0 {
		task.ID = now.UnixMilli()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.Kind == "" {
		task.Kind = core.KindGoal
	}
	if !task.Category.IsValid() {
		task.Category, task.Kind = core.NormalizeCategoryTag(string(task.Category), task.Text())
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}

	switch task.Kind {
	case core.KindGoal:
		// Fan the edit out to the owning category store, unless the
		// category has none (financial mind dumps stay ledger-only).
		if store := e.GoalStore(task.Category); store != nil {
			goal := core.Goal{
				ID:          task.ID,
				Text:        task.Text(),
				Completed:   task.Completed,
				CreatedAt:   task.CreatedAt,
				CompletedAt: task.CompletedAt,
			}
			if err := store.Upsert(ctx, goal); err != nil {
				return nil, fmt.Errorf("fan out to %s store: %w", task.Category, err)
			}
		}
	case core.KindSavings:
		sg := core.SavingsGoal{
			ID:            task.ID,
			Name:          task.Text(),
			CurrentAmount: task.Amount,
			TargetAmount:  task.TargetAmount,
			CreatedAt:     task.CreatedAt,
			CompletedAt:   task.CompletedAt,
		}
		if err := e.finance.Upsert(ctx, sg, now); err != nil {
			return nil, fmt.Errorf("fan out to finance ledger: %w", err)
		}
	case core.KindExpense, core.KindEarning:
		// Finance entries live directly in the ledger.
	}

	if err := e.upsertLedgerTask(ctx, task); err != nil {
		return nil, err
	}
	return e.LoadAndSync(ctx)
}

// DeleteGoal removes an id from every collection that may own it, then
// re-derives the merged view.
func (e *ReconciliationEngine) DeleteGoal(ctx context.Context, id int64) ([]core.Task, error) {
	found := false
	for _, store := range e.goals {
		err := store.Delete(ctx, id)
		if err == nil {
			found = true
			continue
		}
		if !errors.Is(err, stores.ErrGoalNotFound) {
			return nil, fmt.Errorf("delete from %s store: %w", store.Category().Slug, err)
		}
	}
	err := e.finance.DeleteSavingsGoal(ctx, id)
	if err == nil {
		found = true
	} else if !errors.Is(err, stores.ErrGoalNotFound) {
		return nil, fmt.Errorf("delete from finance ledger: %w", err)
	}

	prev, err := e.loadLedgerTasks(ctx, stores.TasksKey)
	if err != nil {
		return nil, err
	}
	kept := prev[:0]
	for _, t := range prev {
		if t.ID == id {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	if err := e.persistLedger(ctx, kept); err != nil {
		return nil, err
	}

	if !found {
		return nil, stores.ErrGoalNotFound
	}
	return e.LoadAndSync(ctx)
}

// Tasks returns the current ledger without re-deriving it.
func (e *ReconciliationEngine) Tasks(ctx context.Context) ([]core.Task, error) {
	return e.loadLedgerTasks(ctx, stores.TasksKey)
}

func (e *ReconciliationEngine) loadLedgerTasks(ctx context.Context, key string) ([]core.Task, error) {
	raw, err := e.repo.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return stores.DecodeTasks(raw, key), nil
}

func (e *ReconciliationEngine) persistLedger(ctx context.Context, tasks []core.Task) error {
	if tasks == nil {
		tasks = []core.Task{}
	}
	raw, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("encode task ledger: %w", err)
	}
	if err := e.repo.Set(ctx, stores.TasksKey, string(raw)); err != nil {
		return fmt.Errorf("persist task ledger: %w", err)
	}
	return nil
}

func (e *ReconciliationEngine) upsertLedgerTask(ctx context.Context, task core.Task) error {
	tasks, err := e.loadLedgerTasks(ctx, stores.TasksKey)
	if err != nil {
		return err
	}
	replaced := false
	for i := range tasks {
		if tasks[i].ID == task.ID {
			tasks[i] = task
			replaced = true
			break
		}
	}
	if !replaced && task.Kind == core.KindGoal {
		for i := range tasks {
			if normalizeTask(tasks[i]).Kind != core.KindGoal {
				continue
			}
			if matchText(tasks[i].Goal, task.Goal) && tasks[i].Category == task.Category {
				tasks[i] = task
				replaced = true
				break
			}
		}
	}
	if !replaced {
		tasks = append(tasks, task)
	}
	return e.persistLedger(ctx, tasks)
}

// findTwin locates a previous-ledger task matching the given goal text
// and category case-insensitively. O(n·m) over merge input; flagged as a
// fragile heuristic but preserved.
func findTwin(tasks []core.Task, text string, category core.CategoryKey) (core.Task, bool) {
	for _, t := range tasks {
		nt := normalizeTask(t)
		if nt.Kind != core.KindGoal {
			continue
		}
		if nt.Category == category && matchText(nt.Goal, text) {
			return nt, true
		}
	}
	return core.Task{}, false
}

func findTwinInLedger(l *ledger, text string, category core.CategoryKey) (core.Task, bool) {
	for _, id := range l.order {
		t := l.byID[id]
		if t.Kind != core.KindGoal {
			continue
		}
		if t.Category == category && matchText(t.Goal, text) {
			return t, true
		}
	}
	return core.Task{}, false
}

func matchText(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// normalizeTask coerces records written by older versions: legacy money
// tags become financial expenses/earnings, missing kinds become goals,
// and any leftover category string is inferred from the text.
func normalizeTask(t core.Task) core.Task {
	if t.Kind == "" || !t.Category.IsValid() {
		category, kind := core.NormalizeCategoryTag(string(t.Category), t.Text())
		if !t.Category.IsValid() {
			t.Category = category
		}
		if t.Kind == "" {
			t.Kind = kind
		}
	}
	return t
}
