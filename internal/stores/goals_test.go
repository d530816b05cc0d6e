package stores

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Kazutech1/northstar/internal/core"
	"github.com/Kazutech1/northstar/internal/storage"
)

func healthStore(repo storage.Repository) *CategoryGoalStore {
	info, _ := core.CategoryBySlug("health")
	return NewCategoryGoalStore(repo, info)
}

func TestCategoryGoalStoreAddToggleDelete(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	store := healthStore(repo)
	now := time.Date(2025, 6, 10, 7, 0, 0, 0, time.UTC)

	goal, err := store.Add(ctx, "Exercise 4x per week", now)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if goal.ID != now.UnixMilli() {
		t.Errorf("Add() id = %d, want creation-time millis %d", goal.ID, now.UnixMilli())
	}

	toggled, err := store.Toggle(ctx, goal.ID, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if !toggled.Completed || toggled.CompletedAt == nil {
		t.Errorf("Toggle() = %+v, want completed with stamp", toggled)
	}

	// Toggling back clears the stamp.
	toggled, err = store.Toggle(ctx, goal.ID, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if toggled.Completed || toggled.CompletedAt != nil {
		t.Errorf("Toggle() back = %+v, want incomplete without stamp", toggled)
	}

	if _, err := store.Toggle(ctx, 999, now); !errors.Is(err, ErrGoalNotFound) {
		t.Errorf("Toggle() unknown id error = %v, want ErrGoalNotFound", err)
	}

	if err := store.Delete(ctx, goal.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	goals, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(goals) != 0 {
		t.Errorf("Load() after delete returned %d goals", len(goals))
	}
	if err := store.Delete(ctx, goal.ID); !errors.Is(err, ErrGoalNotFound) {
		t.Errorf("Delete() absent id error = %v, want ErrGoalNotFound", err)
	}
}

func TestCategoryGoalStoreMalformedReadsAsEmpty(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	store := healthStore(repo)

	if err := repo.Set(ctx, GoalsKey("health"), `{not json`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	goals, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() of malformed value error = %v, want recovery", err)
	}
	if len(goals) != 0 {
		t.Errorf("Load() of malformed value = %d goals, want 0", len(goals))
	}
}

func TestCategoryGoalStoreUpsert(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	store := healthStore(repo)
	now := time.Date(2025, 6, 10, 7, 0, 0, 0, time.UTC)

	seed, err := store.Add(ctx, "Drink 8 glasses of water daily", now)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	tests := []struct {
		name      string
		goal      core.Goal
		wantCount int
	}{
		{
			name:      "match by id replaces",
			goal:      core.Goal{ID: seed.ID, Text: "Drink 10 glasses of water daily", CreatedAt: now},
			wantCount: 1,
		},
		{
			name:      "match by text replaces",
			goal:      core.Goal{ID: 42, Text: "drink 10 GLASSES of water daily", Completed: true, CreatedAt: now},
			wantCount: 1,
		},
		{
			name:      "no match appends",
			goal:      core.Goal{ID: 43, Text: "Take daily vitamins", CreatedAt: now},
			wantCount: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Upsert(ctx, tt.goal); err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}
			goals, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(goals) != tt.wantCount {
				t.Errorf("Load() = %d goals, want %d", len(goals), tt.wantCount)
			}
		})
	}
}
