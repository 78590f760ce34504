package mlb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

const dateLayout = "2006-01-02"

var eastern = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// ScheduleQuery filters schedule requests. Seasons applies to FetchSchedule,
// Start and End to FetchScheduleRange.
type ScheduleQuery struct {
	Seasons   []int
	SportIDs  []int
	GameTypes []string
	Start     time.Time
	End       time.Time
}

func (q ScheduleQuery) withDefaults() ScheduleQuery {
	if len(q.SportIDs) == 0 {
		q.SportIDs = []int{1}
	}
	if len(q.GameTypes) == 0 {
		q.GameTypes = []string{"R"}
	}
	if len(q.Seasons) == 0 {
		q.Seasons = []int{time.Now().In(eastern).Year()}
	}
	return q
}

// Eastern returns the zone schedule times are reported in.
func Eastern() *time.Location {
	return eastern
}

// Today returns the current Eastern calendar date as a UTC midnight, the
// convention schedule dates use.
func Today() time.Time {
	now := time.Now().In(eastern)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// ScheduledGame is one game of a schedule response.
type ScheduledGame struct {
	GamePk    int64     `json:"game_id"`
	StartTime time.Time `json:"start_time"`
	Time      string    `json:"time"`
	Date      string    `json:"date"`
	Away      string    `json:"away"`
	Home      string    `json:"home"`
	State     string    `json:"state"`
	VenueID   int64     `json:"venue_id"`
	VenueName string    `json:"venue_name"`
}

// FetchSchedule fetches the games of whole seasons.
func (c *Client) FetchSchedule(ctx context.Context, q ScheduleQuery) ([]ScheduledGame, error) {
	q = q.withDefaults()
	query := q.filter()
	query.Set("season", joinInts(q.Seasons))
	query.Set("hydrate", "lineup,players")
	return c.fetchSchedule(ctx, c.endpointURL("schedule", query))
}

// FetchScheduleRange fetches the games between two dates, inclusive. A zero
// End means the same day as Start.
func (c *Client) FetchScheduleRange(ctx context.Context, q ScheduleQuery) ([]ScheduledGame, error) {
	if q.Start.IsZero() {
		return nil, fmt.Errorf("schedule range requires a start date")
	}
	if q.End.IsZero() {
		q.End = q.Start
	}
	if q.End.Before(q.Start) {
		return nil, fmt.Errorf("schedule range end %s is before start %s", q.End.Format(dateLayout), q.Start.Format(dateLayout))
	}

	q = q.withDefaults()
	query := q.filter()
	query.Set("startDate", q.Start.Format(dateLayout))
	query.Set("endDate", q.End.Format(dateLayout))
	return c.fetchSchedule(ctx, c.endpointURL("schedule", query))
}

func (q ScheduleQuery) filter() url.Values {
	query := url.Values{}
	query.Set("sportId", joinInts(q.SportIDs))
	query.Set("gameTypes", strings.Join(q.GameTypes, ","))
	return query
}

type scheduleDate struct {
	Games []scheduleGame `json:"games"`
}

type scheduleGame struct {
	GamePk       int64  `json:"gamePk"`
	GameDate     string `json:"gameDate"`
	OfficialDate string `json:"officialDate"`
	Teams        struct {
		Away scheduleTeam `json:"away"`
		Home scheduleTeam `json:"home"`
	} `json:"teams"`
	Status struct {
		CodedGameState string `json:"codedGameState"`
	} `json:"status"`
	Venue struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"venue"`
}

type scheduleTeam struct {
	Team struct {
		Name string `json:"name"`
	} `json:"team"`
}

func (c *Client) fetchSchedule(ctx context.Context, target string) ([]ScheduledGame, error) {
	obj, err := c.fetchObject(ctx, target, "dates")
	if err != nil {
		return nil, err
	}

	var dates []scheduleDate
	if err := json.Unmarshal(obj["dates"], &dates); err != nil {
		return nil, &DataShapeError{URL: target, Key: "dates"}
	}

	games := flattenSchedule(dates)
	if len(games) == 0 {
		return nil, ErrNoGames
	}

	c.logger.WithField("games", len(games)).Debug("[mlb-client] schedule fetched")
	return games, nil
}

// flattenSchedule turns the per-date game lists into one list, keeping the
// first occurrence of each game and ordering by official date.
func flattenSchedule(dates []scheduleDate) []ScheduledGame {
	seen := make(map[int64]bool)
	var games []ScheduledGame
	for _, d := range dates {
		for _, g := range d.Games {
			if g.GamePk == 0 || seen[g.GamePk] {
				continue
			}
			seen[g.GamePk] = true

			sg := ScheduledGame{
				GamePk:    g.GamePk,
				Date:      g.OfficialDate,
				Away:      g.Teams.Away.Team.Name,
				Home:      g.Teams.Home.Team.Name,
				State:     g.Status.CodedGameState,
				VenueID:   g.Venue.ID,
				VenueName: g.Venue.Name,
			}
			if t, err := time.Parse(time.RFC3339, g.GameDate); err == nil {
				sg.StartTime = t.UTC()
				sg.Time = t.In(eastern).Format("03:04 PM")
			}
			games = append(games, sg)
		}
	}

	sort.SliceStable(games, func(i, j int) bool {
		return games[i].Date < games[j].Date
	})
	return games
}

// GamePks returns the ids of the games whose state is in states. An empty
// states list matches every game.
func GamePks(games []ScheduledGame, states ...string) []int64 {
	want := make(map[string]bool, len(states))
	for _, s := range states {
		want[s] = true
	}

	ids := make([]int64, 0, len(games))
	for _, g := range games {
		if len(want) == 0 || want[g.State] {
			ids = append(ids, g.GamePk)
		}
	}
	return ids
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
