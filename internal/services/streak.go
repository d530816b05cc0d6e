package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/Kazutech1/northstar/internal/storage"
	"github.com/Kazutech1/northstar/internal/stores"
)

// dateLayout is the calendar-date encoding used in "lastVisit" and
// "visitHistory".
const dateLayout = "2006-01-02"

// VisitStreak is the derived streak state returned to callers.
type VisitStreak struct {
	Current   int      `json:"current"`
	Longest   int      `json:"longest"`
	LastVisit string   `json:"lastVisit,omitempty"`
	History   []string `json:"history"`
}

// VisitStreakTracker maintains the consecutive-day visit streak over the
// "lastVisit", "streak" and "visitHistory" keys. Dates are calendar days
// in the configured timezone; the three keys are written sequentially,
// without cross-key atomicity.
type VisitStreakTracker struct {
	repo storage.Repository
	loc  *time.Location

	now func() time.Time
}

func NewVisitStreakTracker(repo storage.Repository, loc *time.Location) *VisitStreakTracker {
	if loc == nil {
		loc = time.Local
	}
	return &VisitStreakTracker{repo: repo, loc: loc, now: time.Now}
}

// RecordVisit runs one streak transition for the current calendar day and
// returns the resulting state. Repeated calls on the same day are
// idempotent.
//
// A visit the day after the last one extends the streak; any longer gap
// (or a first-ever visit) resets the current streak to 1. The history
// keeps the earlier days either way, so the longest streak survives gaps.
func (t *VisitStreakTracker) RecordVisit(ctx context.Context) (VisitStreak, error) {
	today := t.now().In(t.loc).Format(dateLayout)

	lastVisit, streak, history, err := t.load(ctx)
	if err != nil {
		return VisitStreak{}, err
	}

	if lastVisit != today {
		if isYesterday(lastVisit, today, t.loc) {
			streak++
		} else {
			streak = 1
		}
		history = appendDay(history, today)

		if err := t.repo.Set(ctx, stores.LastVisitKey, today); err != nil {
			return VisitStreak{}, fmt.Errorf("save last visit: %w", err)
		}
		if err := t.repo.Set(ctx, stores.StreakKey, strconv.Itoa(streak)); err != nil {
			return VisitStreak{}, fmt.Errorf("save streak: %w", err)
		}
		raw, err := json.Marshal(history)
		if err != nil {
			return VisitStreak{}, fmt.Errorf("encode visit history: %w", err)
		}
		if err := t.repo.Set(ctx, stores.VisitHistoryKey, string(raw)); err != nil {
			return VisitStreak{}, fmt.Errorf("save visit history: %w", err)
		}

		slog.InfoContext(ctx, "Visit recorded", "day", today, "streak", streak)
	}

	return VisitStreak{
		Current:   streak,
		Longest:   longestStreak(history, streak, t.loc),
		LastVisit: today,
		History:   history,
	}, nil
}

// Streak returns the stored streak state without recording a visit.
func (t *VisitStreakTracker) Streak(ctx context.Context) (VisitStreak, error) {
	lastVisit, streak, history, err := t.load(ctx)
	if err != nil {
		return VisitStreak{}, err
	}
	return VisitStreak{
		Current:   streak,
		Longest:   longestStreak(history, streak, t.loc),
		LastVisit: lastVisit,
		History:   history,
	}, nil
}

func (t *VisitStreakTracker) load(ctx context.Context) (lastVisit string, streak int, history []string, err error) {
	values, err := t.repo.MultiGet(ctx, []string{
		stores.LastVisitKey, stores.StreakKey, stores.VisitHistoryKey,
	})
	if err != nil {
		return "", 0, nil, fmt.Errorf("load streak state: %w", err)
	}

	lastVisit = values[stores.LastVisitKey]

	if rawStreak := values[stores.StreakKey]; rawStreak != "" {
		streak, err = strconv.Atoi(rawStreak)
		if err != nil {
			slog.Warn("Discarding malformed streak value", "key", stores.StreakKey, "value", rawStreak)
			streak = 0
		}
		err = nil
	}

	if rawHistory := values[stores.VisitHistoryKey]; rawHistory != "" {
		if err := json.Unmarshal([]byte(rawHistory), &history); err != nil {
			slog.Warn("Discarding malformed visit history", "key", stores.VisitHistoryKey, "error", err)
			history = nil
		}
	}
	return lastVisit, streak, history, nil
}

func appendDay(history []string, day string) []string {
	for _, h := range history {
		if h == day {
			return history
		}
	}
	return append(history, day)
}

func isYesterday(lastVisit, today string, loc *time.Location) bool {
	last, err := time.ParseInLocation(dateLayout, lastVisit, loc)
	if err != nil {
		return false
	}
	return last.AddDate(0, 0, 1).Format(dateLayout) == today
}

// longestStreak scans the sorted, deduplicated history for the maximal
// run of consecutive days. The current streak is the floor: an empty or
// unparsable history reports the live counter.
func longestStreak(history []string, current int, loc *time.Location) int {
	days := make([]time.Time, 0, len(history))
	seen := make(map[string]struct{}, len(history))
	for _, h := range history {
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		day, err := time.ParseInLocation(dateLayout, h, loc)
		if err != nil {
			slog.Warn("Skipping malformed visit date", "value", h)
			continue
		}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	longest := current
	run := 0
	for i, day := range days {
		if i > 0 && days[i-1].AddDate(0, 0, 1).Equal(day) {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}
