package core

import (
	"errors"
	"strings"
	"time"
)

// TaskKind distinguishes how a ledger task entered the system.
type TaskKind string

const (
	// KindGoal is a plain goal or mind-dump task.
	KindGoal TaskKind = "goal"
	// KindSavings is a task projected from a savings goal.
	KindSavings TaskKind = "savings"
	// KindExpense and KindEarning are finance entries recorded in the ledger.
	KindExpense TaskKind = "expense"
	KindEarning TaskKind = "earning"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidTarget   = errors.New("invalid target amount")
	ErrEmptyText       = errors.New("empty text")
	ErrInvalidCategory = errors.New("invalid category")
	ErrCompletedBefore = errors.New("completed before created")
	ErrUnknownTaskKind = errors.New("unknown task kind")
)

// NewID returns a millisecond clock value used as a collection-local id,
// matching the id scheme of records already in storage. Uniqueness is
// assumed within a session.
func NewID() int64 {
	return time.Now().UnixMilli()
}

// Goal is a category-scoped goal record as stored in "@{slug}_goals".
type Goal struct {
	ID          int64      `json:"id"`
	Text        string     `json:"text"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func (g Goal) Validate() error {
	if len(strings.TrimSpace(g.Text)) == 0 {
		return ErrEmptyText
	}
	if g.CompletedAt != nil && g.CompletedAt.Before(g.CreatedAt) {
		return ErrCompletedBefore
	}
	return nil
}

// Task is the canonical merged record held in "@tasks". It is a superset
// of Goal: free-text mind dump plus optional monetary fields for
// finance-derived entries.
type Task struct {
	ID           int64       `json:"id"`
	MindDump     string      `json:"mindDump,omitempty"`
	Goal         string      `json:"goal"`
	Completed    bool        `json:"completed"`
	CompletedAt  *time.Time  `json:"completedAt,omitempty"`
	Category     CategoryKey `json:"category"`
	Kind         TaskKind    `json:"kind"`
	Amount       int64       `json:"amount,omitempty"`
	TargetAmount int64       `json:"targetAmount,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
}

func (t Task) Validate() error {
	if len(strings.TrimSpace(t.Goal)) == 0 && len(strings.TrimSpace(t.MindDump)) == 0 {
		return ErrEmptyText
	}
	if !t.Category.IsValid() {
		return ErrInvalidCategory
	}
	switch t.Kind {
	case KindGoal, KindSavings:
		if t.Amount < 0 || t.TargetAmount < 0 {
			return ErrInvalidAmount
		}
	case KindExpense, KindEarning:
		if t.Amount <= 0 {
			return ErrInvalidAmount
		}
	default:
		return ErrUnknownTaskKind
	}
	if t.CompletedAt != nil && t.CompletedAt.Before(t.CreatedAt) {
		return ErrCompletedBefore
	}
	return nil
}

// Text returns the display text of the task, preferring the goal line.
func (t Task) Text() string {
	if t.Goal != "" {
		return t.Goal
	}
	return t.MindDump
}

// SavingsGoal is a named saving target in the "@money_goals" ledger.
// Amounts are whole currency units.
type SavingsGoal struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	CurrentAmount int64      `json:"currentAmount"`
	TargetAmount  int64      `json:"targetAmount"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// Completed holds exactly when the current amount has reached the target.
func (s SavingsGoal) Completed() bool {
	return s.CurrentAmount >= s.TargetAmount
}

func (s SavingsGoal) Validate() error {
	if len(strings.TrimSpace(s.Name)) == 0 {
		return ErrEmptyText
	}
	if s.CurrentAmount < 0 {
		return ErrInvalidAmount
	}
	if s.TargetAmount <= 0 {
		return ErrInvalidTarget
	}
	if s.CompletedAt != nil && s.CompletedAt.Before(s.CreatedAt) {
		return ErrCompletedBefore
	}
	return nil
}

// MarkCompletion stamps CompletedAt the instant the target is first
// reached. Once set it is never cleared, even if the goal later dips
// below target.
func (s *SavingsGoal) MarkCompletion(now time.Time) {
	if s.Completed() && s.CompletedAt == nil {
		at := now
		s.CompletedAt = &at
	}
}

// Expense and Earning are finance entries projected from ledger tasks.
// Category holds the emoji tag the original entry carried.
type Expense struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	Date        time.Time `json:"date"`
	Category    string    `json:"category"`
}

type Earning struct {
	ID          int64     `json:"id"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	Date        time.Time `json:"date"`
	Category    string    `json:"category"`
}

// TaskFromGoal maps a category goal into the canonical task shape.
// Completion fields are whatever the goal itself carries; the
// reconciliation engine overlays ledger state on top.
func TaskFromGoal(g Goal, category CategoryKey) Task {
	return Task{
		ID:          g.ID,
		Goal:        g.Text,
		Completed:   g.Completed,
		CompletedAt: g.CompletedAt,
		Category:    category,
		Kind:        KindGoal,
		CreatedAt:   g.CreatedAt,
	}
}

// TaskFromSavingsGoal maps a savings goal into the canonical task shape,
// with the monetary fields populated and completion derived from the
// savings invariant.
func TaskFromSavingsGoal(s SavingsGoal) Task {
	return Task{
		ID:           s.ID,
		Goal:         s.Name,
		Completed:    s.Completed(),
		CompletedAt:  s.CompletedAt,
		Category:     Financial,
		Kind:         KindSavings,
		Amount:       s.CurrentAmount,
		TargetAmount: s.TargetAmount,
		CreatedAt:    s.CreatedAt,
	}
}

// ExpenseFromTask and EarningFromTask project finance tasks back into the
// finance view shapes used by the aggregation engine.
func ExpenseFromTask(t Task) Expense {
	return Expense{
		ID:          t.ID,
		Description: t.Text(),
		Amount:      t.Amount,
		Date:        t.CreatedAt,
		Category:    "💳",
	}
}

func EarningFromTask(t Task) Earning {
	return Earning{
		ID:          t.ID,
		Description: t.Text(),
		Amount:      t.Amount,
		Date:        t.CreatedAt,
		Category:    "💰",
	}
}
