package store

import (
	"database/sql"
	"time"
)

// Game is a stored schedule row.
type Game struct {
	GamePk    int64
	GameDate  time.Time
	StartTime sql.NullTime
	GameTime  sql.NullString
	AwayTeam  sql.NullString
	HomeTeam  sql.NullString
	State     sql.NullString
	VenueID   sql.NullInt64
	VenueName sql.NullString
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GameView is the JSON shape of a Game.
type GameView struct {
	GamePk    int64      `json:"game_pk"`
	GameDate  string     `json:"game_date"`
	StartTime *time.Time `json:"start_time,omitempty"`
	GameTime  string     `json:"game_time,omitempty"`
	AwayTeam  string     `json:"away_team,omitempty"`
	HomeTeam  string     `json:"home_team,omitempty"`
	State     string     `json:"state,omitempty"`
	VenueID   int64      `json:"venue_id,omitempty"`
	VenueName string     `json:"venue_name,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// View flattens nullable columns for API responses.
func (g *Game) View() GameView {
	v := GameView{
		GamePk:    g.GamePk,
		GameDate:  g.GameDate.Format("2006-01-02"),
		GameTime:  g.GameTime.String,
		AwayTeam:  g.AwayTeam.String,
		HomeTeam:  g.HomeTeam.String,
		State:     g.State.String,
		VenueID:   g.VenueID.Int64,
		VenueName: g.VenueName.String,
		UpdatedAt: g.UpdatedAt,
	}
	if g.StartTime.Valid {
		t := g.StartTime.Time
		v.StartTime = &t
	}
	return v
}
