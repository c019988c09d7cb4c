package persistence

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/skobkin/cncbridge/internal/connectors"
)

func TestClearJournal_RemovesEntriesAndResetsIDs(t *testing.T) {
	ctx := context.Background()
	db, err := Open(ctx, filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewJournalRepo(db)
	for i := 0; i < 3; i++ {
		if _, err := repo.Insert(ctx, connectors.MessageRecord{Direction: connectors.DirectionOut, Name: "list", At: time.Now()}); err != nil {
			t.Fatalf("seed journal: %v", err)
		}
	}

	if err := ClearJournal(ctx, db); err != nil {
		t.Fatalf("clear journal: %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal;`).Scan(&count); err != nil {
		t.Fatalf("count journal: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected journal to be empty after clear, got %d rows", count)
	}

	id, err := repo.Insert(ctx, connectors.MessageRecord{Direction: connectors.DirectionIn, Name: "serialport:list", At: time.Now()})
	if err != nil {
		t.Fatalf("insert after clear: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected ids to restart at 1, got %d", id)
	}
}

func TestClearJournal_NilDB(t *testing.T) {
	if err := ClearJournal(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil db")
	}
}
