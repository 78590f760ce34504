package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fortuna/diamond/internal/ingest/mlb"
	"github.com/fortuna/diamond/internal/store"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

const gameColumns = `game_pk, game_date, start_time, game_time, away_team, home_team,
	state, venue_id, venue_name, created_at, updated_at`

// GameRepository stores schedule rows.
type GameRepository struct {
	db *store.Database
}

// NewGameRepository creates a new game repository
func NewGameRepository(db *store.Database) *GameRepository {
	return &GameRepository{db: db}
}

// GetByPk finds a game by its Stats API id.
func (r *GameRepository) GetByPk(ctx context.Context, gamePk int64) (*store.Game, error) {
	query := `SELECT ` + gameColumns + ` FROM games WHERE game_pk = $1`

	game, err := scanGame(r.db.DB().QueryRowContext(ctx, query, gamePk))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("game %d: %w", gamePk, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying game: %w", err)
	}
	return game, nil
}

// GetByDate returns the games of one official date, ordered by start time.
func (r *GameRepository) GetByDate(ctx context.Context, date time.Time) ([]*store.Game, error) {
	query := `SELECT ` + gameColumns + `
		FROM games
		WHERE game_date = $1
		ORDER BY start_time NULLS LAST, game_pk`

	rows, err := r.db.DB().QueryContext(ctx, query, date.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("querying games: %w", err)
	}
	defer rows.Close()

	return scanGames(rows)
}

// GetByStates returns the games of one date whose coded state is in states.
func (r *GameRepository) GetByStates(ctx context.Context, date time.Time, states []string) ([]*store.Game, error) {
	query := `SELECT ` + gameColumns + `
		FROM games
		WHERE game_date = $1 AND state = ANY($2)
		ORDER BY start_time NULLS LAST, game_pk`

	rows, err := r.db.DB().QueryContext(ctx, query, date.Format("2006-01-02"), pq.Array(states))
	if err != nil {
		return nil, fmt.Errorf("querying games by state: %w", err)
	}
	defer rows.Close()

	return scanGames(rows)
}

// UpsertSchedule inserts or refreshes schedule rows in one transaction and
// returns how many were written.
func (r *GameRepository) UpsertSchedule(ctx context.Context, games []mlb.ScheduledGame) (int, error) {
	if len(games) == 0 {
		return 0, nil
	}

	tx, err := r.db.DB().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin schedule upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO games (game_pk, game_date, start_time, game_time, away_team, home_team,
			state, venue_id, venue_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (game_pk) DO UPDATE SET
			game_date = EXCLUDED.game_date,
			start_time = EXCLUDED.start_time,
			game_time = EXCLUDED.game_time,
			away_team = EXCLUDED.away_team,
			home_team = EXCLUDED.home_team,
			state = EXCLUDED.state,
			venue_id = EXCLUDED.venue_id,
			venue_name = EXCLUDED.venue_name,
			updated_at = NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare schedule upsert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, g := range games {
		if g.Date == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, scheduleArgs(g)...); err != nil {
			return 0, fmt.Errorf("upserting game %d: %w", g.GamePk, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit schedule upsert: %w", err)
	}
	return written, nil
}

// scheduleArgs maps a schedule row to the upsert parameters, storing absent
// fields as NULL.
func scheduleArgs(g mlb.ScheduledGame) []interface{} {
	return []interface{}{
		g.GamePk,
		g.Date,
		sql.NullTime{Time: g.StartTime, Valid: !g.StartTime.IsZero()},
		nullString(g.Time),
		nullString(g.Away),
		nullString(g.Home),
		nullString(g.State),
		sql.NullInt64{Int64: g.VenueID, Valid: g.VenueID != 0},
		nullString(g.VenueName),
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGame(row rowScanner) (*store.Game, error) {
	game := &store.Game{}
	err := row.Scan(
		&game.GamePk, &game.GameDate, &game.StartTime, &game.GameTime, &game.AwayTeam, &game.HomeTeam,
		&game.State, &game.VenueID, &game.VenueName, &game.CreatedAt, &game.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return game, nil
}

func scanGames(rows *sql.Rows) ([]*store.Game, error) {
	var games []*store.Game
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		games = append(games, game)
	}
	return games, rows.Err()
}
