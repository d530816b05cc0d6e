package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestSQLite(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "northstar.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestSQLite(t)

	if _, err := repo.Get(ctx, "lastVisit"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() on fresh db error = %v, want ErrNotFound", err)
	}

	if err := repo.Set(ctx, "lastVisit", "2025-09-01"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := repo.Set(ctx, "lastVisit", "2025-09-02"); err != nil {
		t.Fatalf("Set() upsert error = %v", err)
	}
	got, err := repo.Get(ctx, "lastVisit")
	if err != nil || got != "2025-09-02" {
		t.Fatalf("Get() = (%q, %v), want (2025-09-02, nil)", got, err)
	}

	if err := repo.Set(ctx, "streak", "3"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	values, err := repo.MultiGet(ctx, []string{"lastVisit", "streak", "visitHistory"})
	if err != nil {
		t.Fatalf("MultiGet() error = %v", err)
	}
	if len(values) != 2 || values["streak"] != "3" {
		t.Errorf("MultiGet() = %v", values)
	}

	if err := repo.Remove(ctx, "streak"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := repo.Get(ctx, "streak"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Remove() error = %v, want ErrNotFound", err)
	}
}
