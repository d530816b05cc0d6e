package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Kazutech1/northstar/internal/core"
	applog "github.com/Kazutech1/northstar/internal/log"
	"github.com/Kazutech1/northstar/internal/stores"
)

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.engine.LoadAndSync(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Reconciliation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "reconciliation failed")
		return
	}
	s.invalidateAnalytics()
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.engine.Tasks(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Task ledger read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed loading tasks")
		return
	}
	if tasks == nil {
		tasks = []core.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleSaveTask(w http.ResponseWriter, r *http.Request) {
	var task core.Task
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	task.Goal = sanitizeInput(task.Goal)
	task.MindDump = sanitizeInput(task.MindDump)

	tasks, err := s.engine.SaveGoalOrTask(r.Context(), task)
	if err != nil {
		writeDomainError(w, r, "Task save failed", err)
		return
	}
	s.invalidateAnalytics()
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	tasks, err := s.engine.DeleteGoal(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, "Task delete failed", err)
		return
	}
	s.invalidateAnalytics()
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	store, ok := s.goalStoreBySlug(r.PathValue("slug"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown goal category")
		return
	}

	goals, err := store.Load(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Goal list read failed", "error", err, "category", store.Category().Key)
		writeError(w, http.StatusInternalServerError, "failed loading goals")
		return
	}
	if goals == nil {
		goals = []core.Goal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"category": store.Category().Key,
		"goals":    goals,
	})
}

func (s *Server) handleAddGoal(w http.ResponseWriter, r *http.Request) {
	store, ok := s.goalStoreBySlug(r.PathValue("slug"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown goal category")
		return
	}

	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	goal, err := store.Add(r.Context(), sanitizeInput(req.Text), time.Now())
	if err != nil {
		writeDomainError(w, r, "Goal add failed", err)
		return
	}
	s.invalidateAnalytics()
	writeJSON(w, http.StatusCreated, goal)
}

func (s *Server) handleAddSavingsGoal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Amount int64  `json:"amount"`
		Target int64  `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	goal, err := s.engine.Finance().AddSavingsGoal(r.Context(), sanitizeInput(req.Name), req.Amount, req.Target, time.Now())
	if err != nil {
		writeDomainError(w, r, "Savings goal add failed", err)
		return
	}
	s.invalidateAnalytics()
	writeJSON(w, http.StatusCreated, goal)
}

func (s *Server) handleAddToSavings(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid savings goal id")
		return
	}

	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	goal, err := s.engine.Finance().AddToSavings(r.Context(), id, req.Amount, time.Now())
	if err != nil {
		writeDomainError(w, r, "Savings credit failed", err)
		return
	}
	s.invalidateAnalytics()
	writeJSON(w, http.StatusOK, goal)
}

func (s *Server) handleMainSavings(w http.ResponseWriter, r *http.Request) {
	total, err := s.engine.Finance().MainSavings(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Main savings read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed loading main savings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"total": total})
}

func (s *Server) handleAddToMainSavings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	total, err := s.engine.Finance().AddToMainSavings(r.Context(), req.Amount)
	if err != nil {
		writeDomainError(w, r, "Main savings credit failed", err)
		return
	}
	s.invalidateAnalytics()
	writeJSON(w, http.StatusOK, map[string]int64{"total": total})
}

func (s *Server) handleWeeklyBuckets(w http.ResponseWriter, r *http.Request) {
	year, month := parseYearMonth(r)
	cacheKey := fmt.Sprintf("%d-%d", year, month)

	if weeks, ok := s.bucketsCache.Get(cacheKey); ok {
		writeJSON(w, http.StatusOK, map[string]any{"year": year, "month": month, "weeks": weeks})
		return
	}

	weeks, err := s.aggregator.WeeklyBuckets(r.Context(), year, time.Month(month))
	if err != nil {
		writeDomainError(w, r, "Weekly aggregation failed", err)
		return
	}
	s.bucketsCache.Set(cacheKey, weeks)
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "month": month, "weeks": weeks})
}

func (s *Server) handleCategoryStats(w http.ResponseWriter, r *http.Request) {
	category := core.CategoryKey(r.PathValue("key"))
	if !category.IsValid() {
		writeError(w, http.StatusNotFound, "unknown category")
		return
	}

	if stats, ok := s.statsCache.Get(string(category)); ok {
		writeJSON(w, http.StatusOK, stats)
		return
	}

	stats, err := s.aggregator.CategoryStats(r.Context(), category)
	if err != nil {
		writeDomainError(w, r, "Category stats failed", err)
		return
	}
	s.statsCache.Set(string(category), stats)
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStreak(w http.ResponseWriter, r *http.Request) {
	streak, err := s.streak.Streak(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Streak read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed loading streak")
		return
	}
	writeJSON(w, http.StatusOK, streak)
}

func (s *Server) handleVisit(w http.ResponseWriter, r *http.Request) {
	streak, err := s.streak.RecordVisit(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Visit record failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed recording visit")
		return
	}
	writeJSON(w, http.StatusOK, streak)
}

func (s *Server) goalStoreBySlug(slug string) (*stores.CategoryGoalStore, bool) {
	info, ok := core.CategoryBySlug(slug)
	if !ok {
		return nil, false
	}
	store := s.engine.GoalStore(info.Key)
	if store == nil {
		// Financial goals are savings goals, addressed via /savings.
		return nil, false
	}
	return store, true
}

// writeDomainError maps service errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var status int
	switch {
	case errors.Is(err, stores.ErrGoalNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrEmptyText),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidTarget),
		errors.Is(err, core.ErrInvalidCategory),
		errors.Is(err, core.ErrCompletedBefore),
		errors.Is(err, core.ErrUnknownTaskKind):
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusInternalServerError
	}

	logger := applog.FromContext(r.Context())
	if status == http.StatusInternalServerError {
		op := applog.OpUpdate
		switch r.Method {
		case http.MethodGet:
			op = applog.OpRead
		case http.MethodPost:
			op = applog.OpCreate
		case http.MethodDelete:
			op = applog.OpDelete
		}
		applog.NewStructuredLogger(logger).LogError(r.Context(), msg, err,
			applog.ComponentHTTP, op, applog.NewFields())
		writeError(w, status, "internal error")
		return
	}
	logger.WarnContext(r.Context(), msg, "error", err)
	writeError(w, status, err.Error())
}
