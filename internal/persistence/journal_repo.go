package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/skobkin/cncbridge/internal/connectors"
)

// JournalEntry is one persisted gateway message.
type JournalEntry struct {
	ID        int64
	Direction connectors.Direction
	Name      string
	Args      []any
	FrameLen  int
	At        time.Time
}

type JournalRepo struct {
	db *sql.DB
}

func NewJournalRepo(db *sql.DB) *JournalRepo {
	return &JournalRepo{db: db}
}

func (r *JournalRepo) Insert(ctx context.Context, rec connectors.MessageRecord) (int64, error) {
	args := rec.Args
	if args == nil {
		args = []any{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return 0, fmt.Errorf("encode journal args: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO journal(direction, name, args_json, frame_len, at)
		VALUES(?, ?, ?, ?, ?)
	`, string(rec.Direction), rec.Name, string(argsJSON), rec.FrameLen, timeToUnixMillis(rec.At))
	if err != nil {
		return 0, fmt.Errorf("insert journal entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get journal entry id: %w", err)
	}

	return id, nil
}

// ListRecent returns up to limit entries, newest first.
func (r *JournalRepo) ListRecent(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, direction, name, args_json, frame_len, at
		FROM journal
		ORDER BY at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []JournalEntry
	for rows.Next() {
		var (
			entry     JournalEntry
			direction string
			argsJSON  string
			at        int64
		)
		if err := rows.Scan(&entry.ID, &direction, &entry.Name, &argsJSON, &entry.FrameLen, &at); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		if err := json.Unmarshal([]byte(argsJSON), &entry.Args); err != nil {
			return nil, fmt.Errorf("decode journal args of entry %d: %w", entry.ID, err)
		}
		entry.Direction = connectors.Direction(direction)
		entry.At = unixMillisToTime(at)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal: %w", err)
	}

	return out, nil
}

// DeleteOlderThan removes entries recorded before cutoff and reports how many were removed.
func (r *JournalRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM journal WHERE at < ?`, timeToUnixMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count pruned journal entries: %w", err)
	}

	return n, nil
}
