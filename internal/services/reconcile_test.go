package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Kazutech1/northstar/internal/core"
	"github.com/Kazutech1/northstar/internal/storage"
	"github.com/Kazutech1/northstar/internal/stores"
)

func testEngine(repo storage.Repository, now time.Time) *ReconciliationEngine {
	e := NewReconciliationEngine(repo)
	e.now = func() time.Time { return now }
	return e
}

func mustSetJSON(t *testing.T, repo storage.Repository, key string, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s fixture: %v", key, err)
	}
	if err := repo.Set(context.Background(), key, string(raw)); err != nil {
		t.Fatalf("seed %s: %v", key, err)
	}
}

// Scenario: a completed goal in the previous ledger keeps its completion
// through a merge even though the category store knows nothing about it.
func TestLoadAndSyncCrossReferencesCompletion(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	now := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	completedAt := now.Add(-time.Hour)

	mustSetJSON(t, repo, stores.GoalsKey("health"), []core.Goal{
		{ID: 1, Text: "Run a 10k", CreatedAt: now.Add(-48 * time.Hour)},
	})
	mustSetJSON(t, repo, stores.TasksKey, []core.Task{
		{
			ID: 99, Goal: "run a 10K", Completed: true, CompletedAt: &completedAt,
			Category: core.BodyHealth, Kind: core.KindGoal, CreatedAt: now.Add(-48 * time.Hour),
		},
	})

	tasks, err := testEngine(repo, now).LoadAndSync(ctx)
	if err != nil {
		t.Fatalf("LoadAndSync() error = %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("LoadAndSync() = %d tasks, want 1", len(tasks))
	}
	got := tasks[0]
	if got.ID != 1 {
		t.Errorf("merged task id = %d, want the category store's 1", got.ID)
	}
	if !got.Completed {
		t.Error("merged task lost the ledger completion")
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(completedAt) {
		t.Errorf("merged CompletedAt = %v, want %v", got.CompletedAt, completedAt)
	}
}

// Scenario A: N category goals plus M savings goals merge into exactly
// N+M tasks with no duplicate ids.
func TestLoadAndSyncMergeCompleteness(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	now := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	mustSetJSON(t, repo, stores.GoalsKey("health"), []core.Goal{
		{ID: 1, Text: "Run a 10k", CreatedAt: now},
		{ID: 2, Text: "Sleep 8 hours", CreatedAt: now},
	})
	mustSetJSON(t, repo, stores.GoalsKey("career"), []core.Goal{
		{ID: 3, Text: "Ship the launch", CreatedAt: now},
	})
	mustSetJSON(t, repo, stores.MoneyGoalsKey, []core.SavingsGoal{
		{ID: 4, Name: "Emergency Fund", CurrentAmount: 100, TargetAmount: 1000, CreatedAt: now},
		{ID: 5, Name: "Vacation", CurrentAmount: 900, TargetAmount: 900, CreatedAt: now},
	})

	tasks, err := testEngine(repo, now).LoadAndSync(ctx)
	if err != nil {
		t.Fatalf("LoadAndSync() error = %v", err)
	}
	if len(tasks) != 5 {
		t.Fatalf("LoadAndSync() = %d tasks, want 5", len(tasks))
	}
	seen := make(map[int64]bool)
	for _, task := range tasks {
		if seen[task.ID] {
			t.Errorf("duplicate id %d in merged ledger", task.ID)
		}
		seen[task.ID] = true
	}
	var vacation core.Task
	for _, task := range tasks {
		if task.ID == 5 {
			vacation = task
		}
	}
	if vacation.Kind != core.KindSavings || !vacation.Completed {
		t.Errorf("savings projection = %+v, want completed savings task", vacation)
	}
	if vacation.Amount != 900 || vacation.TargetAmount != 900 {
		t.Errorf("savings amounts = (%d, %d), want (900, 900)", vacation.Amount, vacation.TargetAmount)
	}
}

// Running the merge twice over unchanged stores must persist
// byte-identical ledgers.
func TestLoadAndSyncIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	now := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	mustSetJSON(t, repo, stores.GoalsKey("mind"), []core.Goal{
		{ID: 1, Text: "Read two books", CreatedAt: now},
	})
	mustSetJSON(t, repo, stores.MoneyGoalsKey, []core.SavingsGoal{
		{ID: 2, Name: "New Car", CurrentAmount: 100, TargetAmount: 1000, CreatedAt: now},
	})
	mustSetJSON(t, repo, stores.TasksKey, []core.Task{
		{ID: 3, MindDump: "brain dump entry", Goal: "", Category: core.MindFocus, Kind: core.KindGoal, CreatedAt: now},
		{ID: 4, Goal: "Dinner out", Category: core.Financial, Kind: core.KindExpense, Amount: 40, CreatedAt: now},
	})

	engine := testEngine(repo, now)
	if _, err := engine.LoadAndSync(ctx); err != nil {
		t.Fatalf("first LoadAndSync() error = %v", err)
	}
	first, err := repo.Get(ctx, stores.TasksKey)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", stores.TasksKey, err)
	}

	if _, err := engine.LoadAndSync(ctx); err != nil {
		t.Fatalf("second LoadAndSync() error = %v", err)
	}
	second, err := repo.Get(ctx, stores.TasksKey)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", stores.TasksKey, err)
	}
	if first != second {
		t.Errorf("merge not idempotent:\nfirst:  %s\nsecond: %s", first, second)
	}
}

// The pre-rename "tasks" key is folded in once, normalizing legacy money
// tags, then deleted.
func TestLoadAndSyncMigratesLegacyKey(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	now := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	mustSetJSON(t, repo, stores.LegacyTasksKey, []core.Task{
		{ID: 1, Goal: "Coffee beans", Category: "money_expense", Amount: 15, CreatedAt: now},
		{ID: 2, Goal: "Freelance invoice", Category: "money_earning", Amount: 500, CreatedAt: now},
		{ID: 3, Goal: "Improve my fitness routine", Category: "unknown-tag", CreatedAt: now},
	})

	tasks, err := testEngine(repo, now).LoadAndSync(ctx)
	if err != nil {
		t.Fatalf("LoadAndSync() error = %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("LoadAndSync() = %d tasks, want 3", len(tasks))
	}

	byID := make(map[int64]core.Task, len(tasks))
	for _, task := range tasks {
		byID[task.ID] = task
	}
	if got := byID[1]; got.Category != core.Financial || got.Kind != core.KindExpense {
		t.Errorf("legacy expense normalized to (%s, %s)", got.Category, got.Kind)
	}
	if got := byID[2]; got.Category != core.Financial || got.Kind != core.KindEarning {
		t.Errorf("legacy earning normalized to (%s, %s)", got.Category, got.Kind)
	}
	if got := byID[3]; got.Category != core.BodyHealth || got.Kind != core.KindGoal {
		t.Errorf("unknown tag inferred to (%s, %s), want (body&health, goal)", got.Category, got.Kind)
	}

	if _, err := repo.Get(ctx, stores.LegacyTasksKey); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("legacy key still present after migration, Get() error = %v", err)
	}
}

// Tasks with the same id across sources collapse to one entry, last
// enumeration wins.
func TestLoadAndSyncDeduplicatesByID(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	now := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

	mustSetJSON(t, repo, stores.GoalsKey("legacy"), []core.Goal{
		{ID: 7, Text: "Mentor a junior", CreatedAt: now},
	})
	mustSetJSON(t, repo, stores.LegacyTasksKey, []core.Task{
		{ID: 7, Goal: "Mentor two juniors", Category: core.Legacy, Kind: core.KindGoal, CreatedAt: now},
	})

	tasks, err := testEngine(repo, now).LoadAndSync(ctx)
	if err != nil {
		t.Fatalf("LoadAndSync() error = %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("LoadAndSync() = %d tasks, want 1", len(tasks))
	}
	if tasks[0].Goal != "Mentor two juniors" {
		t.Errorf("dedup kept %q, want the later occurrence", tasks[0].Goal)
	}
}

func TestSaveGoalOrTaskFansOutToCategoryStore(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	now := time.Date(2025, 7, 2, 9, 0, 0, 0, time.UTC)
	engine := testEngine(repo, now)

	tasks, err := engine.SaveGoalOrTask(ctx, core.Task{
		Goal:     "Call my parents weekly",
		Category: core.Relationships,
		Kind:     core.KindGoal,
	})
	if err != nil {
		t.Fatalf("SaveGoalOrTask() error = %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("SaveGoalOrTask() = %d tasks, want 1", len(tasks))
	}
	if tasks[0].ID != now.UnixMilli() {
		t.Errorf("assigned id = %d, want %d", tasks[0].ID, now.UnixMilli())
	}

	goals, err := engine.GoalStore(core.Relationships).Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(goals) != 1 || goals[0].Text != "Call my parents weekly" {
		t.Errorf("category store after fan-out = %+v", goals)
	}
}

// Un-completing a goal through the engine must stick: the direct store
// and the ledger converge in the same pass.
func TestSaveGoalOrTaskConvergesOnUncomplete(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	now := time.Date(2025, 7, 2, 9, 0, 0, 0, time.UTC)
	engine := testEngine(repo, now)

	saved, err := engine.SaveGoalOrTask(ctx, core.Task{
		Goal: "Meditate daily", Category: core.MindFocus, Kind: core.KindGoal,
	})
	if err != nil {
		t.Fatalf("SaveGoalOrTask() error = %v", err)
	}

	done := saved[0]
	done.Completed = true
	at := now.Add(time.Hour)
	done.CompletedAt = &at
	if _, err := engine.SaveGoalOrTask(ctx, done); err != nil {
		t.Fatalf("SaveGoalOrTask(complete) error = %v", err)
	}

	undone := done
	undone.Completed = false
	undone.CompletedAt = nil
	tasks, err := engine.SaveGoalOrTask(ctx, undone)
	if err != nil {
		t.Fatalf("SaveGoalOrTask(uncomplete) error = %v", err)
	}
	if len(tasks) != 1 || tasks[0].Completed {
		t.Errorf("ledger after uncomplete = %+v, want incomplete", tasks)
	}
}

func TestSaveGoalOrTaskInfersMissingCategory(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	now := time.Date(2025, 7, 2, 9, 0, 0, 0, time.UTC)
	engine := testEngine(repo, now)

	tasks, err := engine.SaveGoalOrTask(ctx, core.Task{Goal: "Save for a rainy day"})
	if err != nil {
		t.Fatalf("SaveGoalOrTask() error = %v", err)
	}
	if tasks[0].Category != core.Financial {
		t.Errorf("inferred category = %s, want financial", tasks[0].Category)
	}
}

func TestDeleteGoalRemovesEverywhere(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	now := time.Date(2025, 7, 3, 9, 0, 0, 0, time.UTC)
	engine := testEngine(repo, now)

	saved, err := engine.SaveGoalOrTask(ctx, core.Task{
		Goal: "Plan the reunion", Category: core.Relationships, Kind: core.KindGoal,
	})
	if err != nil {
		t.Fatalf("SaveGoalOrTask() error = %v", err)
	}

	tasks, err := engine.DeleteGoal(ctx, saved[0].ID)
	if err != nil {
		t.Fatalf("DeleteGoal() error = %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("ledger after delete = %d tasks, want 0", len(tasks))
	}
	goals, err := engine.GoalStore(core.Relationships).Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(goals) != 0 {
		t.Errorf("category store after delete = %d goals, want 0", len(goals))
	}

	if _, err := engine.DeleteGoal(ctx, 424242); !errors.Is(err, stores.ErrGoalNotFound) {
		t.Errorf("DeleteGoal(unknown) error = %v, want ErrGoalNotFound", err)
	}
}

// A corrupt category key degrades to an empty collection; the merge
// carries on with the healthy sources.
func TestLoadAndSyncSurvivesMalformedStore(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	now := time.Date(2025, 7, 3, 9, 0, 0, 0, time.UTC)

	if err := repo.Set(ctx, stores.GoalsKey("health"), `{not json`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	mustSetJSON(t, repo, stores.GoalsKey("career"), []core.Goal{
		{ID: 1, Text: "Negotiate the raise", CreatedAt: now},
	})

	tasks, err := testEngine(repo, now).LoadAndSync(ctx)
	if err != nil {
		t.Fatalf("LoadAndSync() error = %v", err)
	}
	if len(tasks) != 1 || tasks[0].Category != core.Career {
		t.Errorf("LoadAndSync() = %+v, want the single career task", tasks)
	}
}
