// Package feed flattens MLB live game feeds into one row per pitch or
// count-driven event.
package feed

import "fmt"

// Kind classifies a play event.
type Kind int

const (
	// KindSkipped covers administrative events (substitutions, mound visits)
	// that carry no pitch or outcome data.
	KindSkipped Kind = iota
	// KindPitch is a pitch or any event with an umpire call.
	KindPitch
	// KindWalk is a count reaching four balls with no discrete pitch, as in
	// an automatic intentional walk.
	KindWalk
)

func (k Kind) String() string {
	switch k {
	case KindPitch:
		return "pitch"
	case KindWalk:
		return "walk"
	default:
		return "skipped"
	}
}

var (
	swingCodes = map[string]bool{"X": true, "F": true, "S": true, "D": true, "E": true, "T": true, "W": true}
	whiffCodes = map[string]bool{"S": true, "T": true, "W": true}
)

// Stats counts how a document's play events were classified.
type Stats struct {
	Plays   int
	Pitches int
	Walks   int
	Skipped int
}

// Classify applies the first matching rule: pitch/call, then walk-by-count,
// otherwise skipped.
func Classify(event Node) Kind {
	if isPitch, _ := event.Get("isPitch").Bool().Get(); isPitch || event.Get("details").Has("call") {
		return KindPitch
	}
	if balls, ok := event.Get("count", "balls").Int().Get(); ok && balls == 4 {
		return KindWalk
	}
	return KindSkipped
}

// Flatten turns one game document into its flat event rows, in play order and
// then event order. Missing leaves become missing values; only a document
// without the plays container (or with containers of the wrong shape) fails.
func Flatten(doc interface{}) ([]PitchEvent, error) {
	events, _, err := FlattenWithStats(doc)
	return events, err
}

// FlattenWithStats is Flatten plus classification counts.
func FlattenWithStats(doc interface{}) ([]PitchEvent, Stats, error) {
	var stats Stats

	root := NewNode(doc)
	if !root.IsObject() {
		return nil, stats, &StructuralError{Path: "$", Reason: "document is not an object"}
	}

	plays := root.Get("liveData", "plays")
	if !plays.IsObject() {
		return nil, stats, &StructuralError{Path: "liveData.plays", Reason: "plays container missing"}
	}

	allPlays := plays.Get("allPlays")
	if allPlays.Exists() && !allPlays.IsArray() {
		return nil, stats, &StructuralError{Path: "liveData.plays.allPlays", Reason: "not an array"}
	}

	g := game{
		id:    root.Get("gamePk").Int(),
		date:  root.Get("gameData", "datetime", "officialDate").String(),
		teams: root.Get("gameData", "teams"),
	}

	events := make([]PitchEvent, 0)
	for i, play := range allPlays.Items() {
		path := fmt.Sprintf("liveData.plays.allPlays[%d]", i)
		if !play.IsObject() {
			return nil, stats, &StructuralError{Path: path, Reason: "play is not an object"}
		}

		rows, err := g.flattenPlay(play, path, &stats)
		if err != nil {
			return nil, stats, err
		}
		events = append(events, rows...)
		stats.Plays++
	}

	return events, stats, nil
}

// game holds the document-level fields copied onto every row.
type game struct {
	id    Value[int64]
	date  Value[string]
	teams Node
}

func (g game) flattenPlay(play Node, path string, stats *Stats) ([]PitchEvent, error) {
	playEvents := play.Get("playEvents")
	if playEvents.Exists() && !playEvents.IsArray() {
		return nil, &StructuralError{Path: path + ".playEvents", Reason: "not an array"}
	}

	items := playEvents.Items()
	rows := make([]PitchEvent, 0, len(items))
	for n, event := range items {
		if !event.IsObject() {
			return nil, &StructuralError{Path: fmt.Sprintf("%s.playEvents[%d]", path, n), Reason: "event is not an object"}
		}

		switch Classify(event) {
		case KindPitch:
			rows = append(rows, g.pitchRecord(play, items, n))
			stats.Pitches++
		case KindWalk:
			rows = append(rows, g.walkRecord(play, items, n))
			stats.Walks++
		default:
			stats.Skipped++
		}
	}

	return rows, nil
}

// baseRecord fills the fields shared by pitch and walk rows: game, matchup,
// teams, count and event identity.
func (g game) baseRecord(play Node, items []Node, n int) PitchEvent {
	event := items[n]
	matchup := play.Get("matchup")
	about := play.Get("about")

	rec := PitchEvent{
		GameID:   g.id,
		GameDate: g.date,

		BatterID:    matchup.Get("batter", "id").Int(),
		BatterName:  matchup.Get("batter", "fullName").String(),
		BatterHand:  matchup.Get("batSide", "code").String(),
		PitcherID:   matchup.Get("pitcher", "id").Int(),
		PitcherName: matchup.Get("pitcher", "fullName").String(),
		PitcherHand: matchup.Get("pitchHand", "code").String(),

		Inning:   about.Get("inning").Int(),
		ABNumber: about.Get("atBatIndex").Int(),

		IndexPlay: event.Get("index").Int(),
		PlayID:    event.Get("playId").String(),
		StartTime: event.Get("startTime").String(),
		EndTime:   event.Get("endTime").String(),
		IsPitch:   event.Get("isPitch").Bool(),
		TypeType:  event.Get("type").String(),
	}

	g.applyTeams(&rec, about)
	applyCount(&rec, items, n)
	return rec
}

func (g game) pitchRecord(play Node, items []Node, n int) PitchEvent {
	rec := g.baseRecord(play, items, n)
	event := items[n]
	details := event.Get("details")

	code := details.Get("code").String()

	rec.PlayDescription = details.Get("description").String()
	rec.PlayCode = code
	rec.InPlay = details.Get("isInPlay").Bool()
	rec.IsStrike = details.Get("isStrike").Bool()
	rec.IsBall = details.Get("isBall").Bool()
	rec.IsReview = details.Get("hasReview").Bool()
	rec.PitchType = details.Get("type", "code").String()
	rec.PitchDescription = details.Get("type", "description").String()
	if c, ok := code.Get(); ok && c != "" {
		rec.IsSwing = Some(swingCodes[c])
		rec.IsWhiff = Some(whiffCodes[c])
	}

	applyPitchData(&rec, event.Get("pitchData"))
	applyHitData(&rec, event.Get("hitData"))

	if n == len(items)-1 {
		applyResult(&rec, play.Get("result"))
	}
	return rec
}

// walkRecord builds the row for a count-driven walk. It never carries pitch,
// hit or details data, and always carries the at-bat result.
func (g game) walkRecord(play Node, items []Node, n int) PitchEvent {
	rec := g.baseRecord(play, items, n)
	applyResult(&rec, play.Get("result"))
	return rec
}

// applyTeams resolves batting and fielding sides from the half-inning flag.
// An absent flag counts as the bottom half; only missing team data leaves the
// team fields missing.
func (g game) applyTeams(rec *PitchEvent, about Node) {
	isTop := about.Get("isTopInning").Bool().Or(false)

	batterSide, pitcherSide := "home", "away"
	if isTop {
		batterSide, pitcherSide = "away", "home"
	}

	rec.BatterTeam = g.teams.Get(batterSide, "abbreviation").String()
	rec.BatterTeamID = g.teams.Get(batterSide, "id").Int()
	rec.PitcherTeam = g.teams.Get(pitcherSide, "abbreviation").String()
	rec.PitcherTeamID = g.teams.Get(pitcherSide, "id").Int()
}

// applyCount sets count-before from the previous event's count-after, whatever
// that event's classification, or from a fresh 0-0 count on the first event.
func applyCount(rec *PitchEvent, items []Node, n int) {
	after := items[n].Get("count")
	rec.StrikesAfter = after.Get("strikes").Int()
	rec.BallsAfter = after.Get("balls").Int()
	rec.OutsAfter = after.Get("outs").Int()

	if n == 0 {
		rec.Strikes = Some[int64](0)
		rec.Balls = Some[int64](0)
		rec.Outs = rec.OutsAfter
		return
	}

	before := items[n-1].Get("count")
	rec.Strikes = before.Get("strikes").Int()
	rec.Balls = before.Get("balls").Int()
	rec.Outs = before.Get("outs").Int()
}

func applyPitchData(rec *PitchEvent, pitch Node) {
	coords := pitch.Get("coordinates")
	breaks := pitch.Get("breaks")

	rec.StartSpeed = pitch.Get("startSpeed").Float()
	rec.EndSpeed = pitch.Get("endSpeed").Float()
	rec.SzTop = pitch.Get("strikeZoneTop").Float()
	rec.SzBot = pitch.Get("strikeZoneBottom").Float()
	rec.X = coords.Get("x").Float()
	rec.Y = coords.Get("y").Float()
	rec.AX = coords.Get("aX").Float()
	rec.AY = coords.Get("aY").Float()
	rec.AZ = coords.Get("aZ").Float()
	rec.PfxX = coords.Get("pfxX").Float()
	rec.PfxZ = coords.Get("pfxZ").Float()
	rec.PX = coords.Get("pX").Float()
	rec.PZ = coords.Get("pZ").Float()
	rec.VX0 = coords.Get("vX0").Float()
	rec.VY0 = coords.Get("vY0").Float()
	rec.VZ0 = coords.Get("vZ0").Float()
	rec.X0 = coords.Get("x0").Float()
	rec.Y0 = coords.Get("y0").Float()
	rec.Z0 = coords.Get("z0").Float()
	rec.Zone = pitch.Get("zone").Int()
	rec.TypeConfidence = pitch.Get("typeConfidence").Float()
	rec.PlateTime = pitch.Get("plateTime").Float()
	rec.Extension = pitch.Get("extension").Float()
	rec.SpinRate = breaks.Get("spinRate").Float()
	rec.SpinDirection = breaks.Get("spinDirection").Float()
	rec.VB = breaks.Get("breakVertical").Float()
	rec.IVB = breaks.Get("breakVerticalInduced").Float()
	rec.HB = breaks.Get("breakHorizontal").Float()
}

func applyHitData(rec *PitchEvent, hit Node) {
	coords := hit.Get("coordinates")

	rec.LaunchSpeed = hit.Get("launchSpeed").Float()
	rec.LaunchAngle = hit.Get("launchAngle").Float()
	rec.LaunchDistance = hit.Get("totalDistance").Float()
	rec.LaunchLocation = hit.Get("location").String()
	rec.Trajectory = hit.Get("trajectory").String()
	rec.Hardness = hit.Get("hardness").String()
	rec.HitX = coords.Get("coordX").Float()
	rec.HitY = coords.Get("coordY").Float()
}

func applyResult(rec *PitchEvent, result Node) {
	rec.TypeAB = result.Get("type").String()
	rec.Event = result.Get("event").String()
	rec.EventType = result.Get("eventType").String()
	rec.RBI = result.Get("rbi").Int()
	rec.AwayScore = result.Get("awayScore").Int()
	rec.HomeScore = result.Get("homeScore").Int()
	rec.IsOut = result.Get("isOut").Bool()
}
