package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Kazutech1/northstar/internal/core"
	"github.com/Kazutech1/northstar/internal/storage"
)

// ErrGoalNotFound is returned when an id does not exist in the addressed
// collection.
var ErrGoalNotFound = errors.New("goal not found")

// CategoryGoalStore owns one category's goal list under "@{slug}_goals".
// All writes go through read-modify-write of the whole list.
type CategoryGoalStore struct {
	repo     storage.Repository
	category core.CategoryInfo
}

func NewCategoryGoalStore(repo storage.Repository, category core.CategoryInfo) *CategoryGoalStore {
	return &CategoryGoalStore{repo: repo, category: category}
}

// Category returns the category this store owns.
func (s *CategoryGoalStore) Category() core.CategoryInfo {
	return s.category
}

func (s *CategoryGoalStore) key() string {
	return GoalsKey(s.category.Slug)
}

// Load returns the category's goals. A missing or malformed key reads as
// an empty list.
func (s *CategoryGoalStore) Load(ctx context.Context) ([]core.Goal, error) {
	raw, err := s.repo.Get(ctx, s.key())
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s goals: %w", s.category.Slug, err)
	}
	return DecodeGoals(raw, s.key()), nil
}

// Save replaces the whole goal list.
func (s *CategoryGoalStore) Save(ctx context.Context, goals []core.Goal) error {
	if goals == nil {
		goals = []core.Goal{}
	}
	raw, err := json.Marshal(goals)
	if err != nil {
		return fmt.Errorf("encode %s goals: %w", s.category.Slug, err)
	}
	if err := s.repo.Set(ctx, s.key(), string(raw)); err != nil {
		return fmt.Errorf("save %s goals: %w", s.category.Slug, err)
	}
	return nil
}

// Add appends a new goal with a creation-time id.
func (s *CategoryGoalStore) Add(ctx context.Context, text string, now time.Time) (core.Goal, error) {
	goal := core.Goal{
		ID:        now.UnixMilli(),
		Text:      text,
		CreatedAt: now,
	}
	if err := goal.Validate(); err != nil {
		return core.Goal{}, err
	}

	goals, err := s.Load(ctx)
	if err != nil {
		return core.Goal{}, err
	}
	// Clock ids can collide on same-millisecond adds.
	for containsGoalID(goals, goal.ID) {
		goal.ID++
	}
	goals = append(goals, goal)
	if err := s.Save(ctx, goals); err != nil {
		return core.Goal{}, err
	}

	slog.InfoContext(ctx, "Goal added",
		"category", s.category.Key, "id", goal.ID, "text", goal.Text)
	return goal, nil
}

// Toggle flips a goal's completion, stamping or clearing CompletedAt.
func (s *CategoryGoalStore) Toggle(ctx context.Context, id int64, now time.Time) (core.Goal, error) {
	goals, err := s.Load(ctx)
	if err != nil {
		return core.Goal{}, err
	}

	for i := range goals {
		if goals[i].ID != id {
			continue
		}
		goals[i].Completed = !goals[i].Completed
		if goals[i].Completed {
			at := now
			goals[i].CompletedAt = &at
		} else {
			goals[i].CompletedAt = nil
		}
		if err := s.Save(ctx, goals); err != nil {
			return core.Goal{}, err
		}
		return goals[i], nil
	}
	return core.Goal{}, ErrGoalNotFound
}

// Upsert replaces the goal with a matching id, or one matching the text
// case-insensitively when the id is unknown, or appends. Used by the
// ledger-to-store fan-out.
func (s *CategoryGoalStore) Upsert(ctx context.Context, goal core.Goal) error {
	if err := goal.Validate(); err != nil {
		return err
	}
	goals, err := s.Load(ctx)
	if err != nil {
		return err
	}

	idx := -1
	for i := range goals {
		if goals[i].ID == goal.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		for i := range goals {
			if equalFold(goals[i].Text, goal.Text) {
				idx = i
				break
			}
		}
	}

	if idx >= 0 {
		goals[idx] = goal
	} else {
		goals = append(goals, goal)
	}
	return s.Save(ctx, goals)
}

func containsGoalID(goals []core.Goal, id int64) bool {
	for _, g := range goals {
		if g.ID == id {
			return true
		}
	}
	return false
}

// Delete removes a goal by id. Reports ErrGoalNotFound when absent.
func (s *CategoryGoalStore) Delete(ctx context.Context, id int64) error {
	goals, err := s.Load(ctx)
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
	return s.Save(ctx, kept)
}
