package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Kazutech1/northstar/internal/core"
	"github.com/Kazutech1/northstar/internal/storage"
	"github.com/Kazutech1/northstar/internal/stores"
)

// DailyBucket sums one calendar day's finance events in whole currency
// units. Days without events sum to zero.
type DailyBucket struct {
	Day      int   `json:"day"`
	Earnings int64 `json:"earnings"`
	Expenses int64 `json:"expenses"`
	Savings  int64 `json:"savings"`
}

// WeekBucket is one week-within-month partition: up to seven daily
// buckets, truncated at the month boundary.
type WeekBucket struct {
	Week      int           `json:"week"`
	WeekRange string        `json:"weekRange"`
	Days      []DailyBucket `json:"days"`
}

// CategoryStats summarizes goal progress for one category.
type CategoryStats struct {
	Category        core.CategoryKey `json:"category"`
	Total           int              `json:"total"`
	Completed       int              `json:"completed"`
	WeeklyCompleted int              `json:"weeklyCompleted"`
	CompletionRate  int              `json:"completionRate"`
}

// AggregationEngine buckets finance events into weekly reports and
// computes per-category completion statistics, reading the task ledger
// and the finance ledger as-is.
type AggregationEngine struct {
	repo    storage.Repository
	finance *stores.FinanceLedger
	loc     *time.Location

	now func() time.Time
}

func NewAggregationEngine(repo storage.Repository, loc *time.Location) *AggregationEngine {
	if loc == nil {
		loc = time.Local
	}
	return &AggregationEngine{
		repo:    repo,
		finance: stores.NewFinanceLedger(repo),
		loc:     loc,
		now:     time.Now,
	}
}

// WeeklyBuckets partitions the given month into weeks starting at day 1,
// each spanning up to seven days, and sums that month's earnings,
// expenses and savings per calendar day.
func (a *AggregationEngine) WeeklyBuckets(ctx context.Context, year int, month time.Month) ([]WeekBucket, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("invalid month %d", month)
	}

	tasks, err := a.ledgerTasks(ctx)
	if err != nil {
		return nil, err
	}
	savings, err := a.finance.SavingsGoals(ctx)
	if err != nil {
		return nil, err
	}

	daysInMonth := time.Date(year, month+1, 0, 0, 0, 0, 0, a.loc).Day()
	earnings := make([]int64, daysInMonth+1)
	expenses := make([]int64, daysInMonth+1)
	saved := make([]int64, daysInMonth+1)

	for _, t := range tasks {
		day, ok := a.dayInMonth(t.CreatedAt, year, month)
		if !ok {
			continue
		}
		switch t.Kind {
		case core.KindEarning:
			earnings[day] += t.Amount
		case core.KindExpense:
			expenses[day] += t.Amount
		}
	}
	for _, sg := range savings {
		day, ok := a.dayInMonth(sg.CreatedAt, year, month)
		if !ok {
			continue
		}
		saved[day] += sg.CurrentAmount
	}

	var weeks []WeekBucket
	for start := 1; start <= daysInMonth; start += 7 {
		end := start + 6
		if end > daysInMonth {
			end = daysInMonth
		}
		week := WeekBucket{
			Week:      len(weeks) + 1,
			WeekRange: a.weekRange(year, month, start, end),
		}
		for day := start; day <= end; day++ {
			week.Days = append(week.Days, DailyBucket{
				Day:      day,
				Earnings: earnings[day],
				Expenses: expenses[day],
				Savings:  saved[day],
			})
		}
		weeks = append(weeks, week)
	}
	return weeks, nil
}

// CategoryStats counts the ledger's goal-bearing tasks for one category.
// WeeklyCompleted covers completions within the trailing seven days, and
// the completion rate is a whole percentage, zero when the category is
// empty.
func (a *AggregationEngine) CategoryStats(ctx context.Context, category core.CategoryKey) (CategoryStats, error) {
	if !category.IsValid() {
		return CategoryStats{}, core.ErrInvalidCategory
	}
	tasks, err := a.ledgerTasks(ctx)
	if err != nil {
		return CategoryStats{}, err
	}

	now := a.now().In(a.loc)
	weekAgo := now.AddDate(0, 0, -7)

	stats := CategoryStats{Category: category}
	for _, t := range tasks {
		if t.Category != category {
			continue
		}
		if t.Kind != core.KindGoal && t.Kind != core.KindSavings {
			continue
		}
		stats.Total++
		if t.Completed {
			stats.Completed++
		}
		if t.CompletedAt != nil && t.CompletedAt.After(weekAgo) && !t.CompletedAt.After(now) {
			stats.WeeklyCompleted++
		}
	}
	if stats.Total > 0 {
		stats.CompletionRate = int(math.Round(float64(stats.Completed) / float64(stats.Total) * 100))
	}
	return stats, nil
}

// Expenses and Earnings project the ledger's finance entries into their
// reporting shapes.
func (a *AggregationEngine) Expenses(ctx context.Context) ([]core.Expense, error) {
	tasks, err := a.ledgerTasks(ctx)
	if err != nil {
		return nil, err
	}
	var out []core.Expense
	for _, t := range tasks {
		if t.Kind == core.KindExpense {
			out = append(out, core.ExpenseFromTask(t))
		}
	}
	return out, nil
}

func (a *AggregationEngine) Earnings(ctx context.Context) ([]core.Earning, error) {
	tasks, err := a.ledgerTasks(ctx)
	if err != nil {
		return nil, err
	}
	var out []core.Earning
	for _, t := range tasks {
		if t.Kind == core.KindEarning {
			out = append(out, core.EarningFromTask(t))
		}
	}
	return out, nil
}

func (a *AggregationEngine) ledgerTasks(ctx context.Context) ([]core.Task, error) {
	raw, err := a.repo.Get(ctx, stores.TasksKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load task ledger: %w", err)
	}
	return stores.DecodeTasks(raw, stores.TasksKey), nil
}

func (a *AggregationEngine) dayInMonth(at time.Time, year int, month time.Month) (int, bool) {
	local := at.In(a.loc)
	if local.Year() != year || local.Month() != month {
		return 0, false
	}
	return local.Day(), true
}

// weekRange renders the human label for a week's first and last included
// day, e.g. "Jan 2 - Jan 8".
func (a *AggregationEngine) weekRange(year int, month time.Month, start, end int) string {
	first := time.Date(year, month, start, 0, 0, 0, 0, a.loc)
	last := time.Date(year, month, end, 0, 0, 0, 0, a.loc)
	return first.Format("Jan 2") + " - " + last.Format("Jan 2")
}
