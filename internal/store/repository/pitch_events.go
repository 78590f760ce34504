package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fortuna/diamond/internal/feed"
	"github.com/fortuna/diamond/internal/store"
	"github.com/fortuna/diamond/internal/table"
	"github.com/lib/pq"
)

// PitchEventRepository stores flattened pitch event tables.
type PitchEventRepository struct {
	db *store.Database
}

// NewPitchEventRepository creates a pitch event repository.
func NewPitchEventRepository(db *store.Database) *PitchEventRepository {
	return &PitchEventRepository{db: db}
}

// ReplaceGame swaps a game's stored rows for t in one transaction, using
// COPY for the insert. A nil table clears the game. It returns the number of
// rows written.
func (r *PitchEventRepository) ReplaceGame(ctx context.Context, gamePk int64, t *table.Table) (int, error) {
	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin replace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pitch_events WHERE game_id = $1`, gamePk); err != nil {
		return 0, fmt.Errorf("clearing game %d: %w", gamePk, err)
	}

	if t.Len() > 0 {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("pitch_events", t.Columns...))
		if err != nil {
			return 0, fmt.Errorf("prepare copy: %w", err)
		}
		for i, row := range t.Rows {
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				_ = stmt.Close()
				return 0, fmt.Errorf("copy row %d of game %d: %w", i, gamePk, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("flush copy: %w", err)
		}
		if err := stmt.Close(); err != nil {
			return 0, fmt.Errorf("close copy: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit replace: %w", err)
	}
	return t.Len(), nil
}

// WriteEvents stores a game's flattened events, replacing any earlier rows.
// A game with no events is cleared.
func (r *PitchEventRepository) WriteEvents(ctx context.Context, gamePk int64, events []feed.PitchEvent) (int, error) {
	t, err := table.New(events)
	if err != nil && !errors.Is(err, table.ErrNoData) {
		return 0, err
	}
	return r.ReplaceGame(ctx, gamePk, t)
}

// ListByGame returns a game's rows in stored order.
func (r *PitchEventRepository) ListByGame(ctx context.Context, gamePk int64) ([]feed.PitchEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM pitch_events WHERE game_id = $1 ORDER BY row_id`,
		strings.Join(feed.Columns, ", "))

	rows, err := r.db.DB().QueryContext(ctx, query, gamePk)
	if err != nil {
		return nil, fmt.Errorf("querying pitch events: %w", err)
	}
	defer rows.Close()

	events := make([]feed.PitchEvent, 0)
	for rows.Next() {
		var e feed.PitchEvent
		if err := rows.Scan(e.ScanDest()...); err != nil {
			return nil, fmt.Errorf("scanning pitch event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CountByGame returns how many rows are stored for a game.
func (r *PitchEventRepository) CountByGame(ctx context.Context, gamePk int64) (int, error) {
	var n int
	err := r.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM pitch_events WHERE game_id = $1`, gamePk).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting pitch events: %w", err)
	}
	return n, nil
}
