package db

import (
	"context"
	"testing"

	"github.com/ldi/tend/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}
	return db
}

func TestOpenAndInit(t *testing.T) {
	db := openTestDB(t)

	// Re-running migrations must be idempotent.
	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("Second Init failed: %v", err)
	}
}

func TestOnChangeHook(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	calls := 0
	db.SetOnChange(func(ctx context.Context) { calls++ })

	if err := db.CreateTask(ctx, &models.Task{Title: "hook me"}); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 onChange call after create, got %d", calls)
	}

	db.DisableOnChange()
	if err := db.CreateTask(ctx, &models.Task{Title: "silent"}); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected no onChange call while disabled, got %d", calls)
	}

	db.EnableOnChange()
	if err := db.CreateTask(ctx, &models.Task{Title: "loud again"}); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 onChange calls after re-enable, got %d", calls)
	}
}
