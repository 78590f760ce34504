package feed

// PitchEvent is one flat row produced from a play event. Every field that does
// not apply to the event is left missing rather than zeroed.
type PitchEvent struct {
	GameID   Value[int64]  `json:"game_id"`
	GameDate Value[string] `json:"game_date"`

	// Matchup
	BatterID    Value[int64]  `json:"batter_id"`
	BatterName  Value[string] `json:"batter_name"`
	BatterHand  Value[string] `json:"batter_hand"`
	PitcherID   Value[int64]  `json:"pitcher_id"`
	PitcherName Value[string] `json:"pitcher_name"`
	PitcherHand Value[string] `json:"pitcher_hand"`

	// Teams
	BatterTeam    Value[string] `json:"batter_team"`
	BatterTeamID  Value[int64]  `json:"batter_team_id"`
	PitcherTeam   Value[string] `json:"pitcher_team"`
	PitcherTeamID Value[int64]  `json:"pitcher_team_id"`

	Inning   Value[int64] `json:"inning"`
	ABNumber Value[int64] `json:"ab_number"`

	// Count before and after the event
	Strikes      Value[int64] `json:"strikes"`
	Balls        Value[int64] `json:"balls"`
	Outs         Value[int64] `json:"outs"`
	StrikesAfter Value[int64] `json:"strikes_after"`
	BallsAfter   Value[int64] `json:"balls_after"`
	OutsAfter    Value[int64] `json:"outs_after"`

	// Details
	PlayDescription  Value[string] `json:"play_description"`
	PlayCode         Value[string] `json:"play_code"`
	InPlay           Value[bool]   `json:"in_play"`
	IsStrike         Value[bool]   `json:"is_strike"`
	IsSwing          Value[bool]   `json:"is_swing"`
	IsWhiff          Value[bool]   `json:"is_whiff"`
	IsBall           Value[bool]   `json:"is_ball"`
	IsReview         Value[bool]   `json:"is_review"`
	PitchType        Value[string] `json:"pitch_type"`
	PitchDescription Value[string] `json:"pitch_description"`

	// Pitch measurements
	StartSpeed     Value[float64] `json:"start_speed"`
	EndSpeed       Value[float64] `json:"end_speed"`
	SzTop          Value[float64] `json:"sz_top"`
	SzBot          Value[float64] `json:"sz_bot"`
	X              Value[float64] `json:"x"`
	Y              Value[float64] `json:"y"`
	AX             Value[float64] `json:"ax"`
	AY             Value[float64] `json:"ay"`
	AZ             Value[float64] `json:"az"`
	PfxX           Value[float64] `json:"pfxx"`
	PfxZ           Value[float64] `json:"pfxz"`
	PX             Value[float64] `json:"px"`
	PZ             Value[float64] `json:"pz"`
	VX0            Value[float64] `json:"vx0"`
	VY0            Value[float64] `json:"vy0"`
	VZ0            Value[float64] `json:"vz0"`
	X0             Value[float64] `json:"x0"`
	Y0             Value[float64] `json:"y0"`
	Z0             Value[float64] `json:"z0"`
	Zone           Value[int64]   `json:"zone"`
	TypeConfidence Value[float64] `json:"type_confidence"`
	PlateTime      Value[float64] `json:"plate_time"`
	Extension      Value[float64] `json:"extension"`
	SpinRate       Value[float64] `json:"spin_rate"`
	SpinDirection  Value[float64] `json:"spin_direction"`
	VB             Value[float64] `json:"vb"`
	IVB            Value[float64] `json:"ivb"`
	HB             Value[float64] `json:"hb"`

	// Hit measurements
	LaunchSpeed    Value[float64] `json:"launch_speed"`
	LaunchAngle    Value[float64] `json:"launch_angle"`
	LaunchDistance Value[float64] `json:"launch_distance"`
	LaunchLocation Value[string]  `json:"launch_location"`
	Trajectory     Value[string]  `json:"trajectory"`
	Hardness       Value[string]  `json:"hardness"`
	HitX           Value[float64] `json:"hit_x"`
	HitY           Value[float64] `json:"hit_y"`

	// Event identity
	IndexPlay Value[int64]  `json:"index_play"`
	PlayID    Value[string] `json:"play_id"`
	StartTime Value[string] `json:"start_time"`
	EndTime   Value[string] `json:"end_time"`
	IsPitch   Value[bool]   `json:"is_pitch"`
	TypeType  Value[string] `json:"type_type"`

	// At-bat result, set on the decisive event only
	TypeAB    Value[string] `json:"type_ab"`
	Event     Value[string] `json:"event"`
	EventType Value[string] `json:"event_type"`
	RBI       Value[int64]  `json:"rbi"`
	AwayScore Value[int64]  `json:"away_score"`
	HomeScore Value[int64]  `json:"home_score"`
	IsOut     Value[bool]   `json:"is_out"`
}

// Columns lists the PitchEvent column names in table order.
var Columns = []string{
	"game_id", "game_date",
	"batter_id", "batter_name", "batter_hand", "pitcher_id", "pitcher_name", "pitcher_hand",
	"batter_team", "batter_team_id", "pitcher_team", "pitcher_team_id",
	"inning", "ab_number",
	"strikes", "balls", "outs", "strikes_after", "balls_after", "outs_after",
	"play_description", "play_code", "in_play", "is_strike", "is_swing", "is_whiff",
	"is_ball", "is_review", "pitch_type", "pitch_description",
	"start_speed", "end_speed", "sz_top", "sz_bot", "x", "y", "ax", "ay", "az",
	"pfxx", "pfxz", "px", "pz", "vx0", "vy0", "vz0", "x0", "y0", "z0", "zone",
	"type_confidence", "plate_time", "extension", "spin_rate", "spin_direction",
	"vb", "ivb", "hb",
	"launch_speed", "launch_angle", "launch_distance", "launch_location",
	"trajectory", "hardness", "hit_x", "hit_y",
	"index_play", "play_id", "start_time", "end_time", "is_pitch", "type_type",
	"type_ab", "event", "event_type", "rbi", "away_score", "home_score", "is_out",
}

// Values returns the row in Columns order, with nil for missing fields.
func (e *PitchEvent) Values() []any {
	return []any{
		e.GameID.Any(), e.GameDate.Any(),
		e.BatterID.Any(), e.BatterName.Any(), e.BatterHand.Any(), e.PitcherID.Any(), e.PitcherName.Any(), e.PitcherHand.Any(),
		e.BatterTeam.Any(), e.BatterTeamID.Any(), e.PitcherTeam.Any(), e.PitcherTeamID.Any(),
		e.Inning.Any(), e.ABNumber.Any(),
		e.Strikes.Any(), e.Balls.Any(), e.Outs.Any(), e.StrikesAfter.Any(), e.BallsAfter.Any(), e.OutsAfter.Any(),
		e.PlayDescription.Any(), e.PlayCode.Any(), e.InPlay.Any(), e.IsStrike.Any(), e.IsSwing.Any(), e.IsWhiff.Any(),
		e.IsBall.Any(), e.IsReview.Any(), e.PitchType.Any(), e.PitchDescription.Any(),
		e.StartSpeed.Any(), e.EndSpeed.Any(), e.SzTop.Any(), e.SzBot.Any(), e.X.Any(), e.Y.Any(), e.AX.Any(), e.AY.Any(), e.AZ.Any(),
		e.PfxX.Any(), e.PfxZ.Any(), e.PX.Any(), e.PZ.Any(), e.VX0.Any(), e.VY0.Any(), e.VZ0.Any(), e.X0.Any(), e.Y0.Any(), e.Z0.Any(), e.Zone.Any(),
		e.TypeConfidence.Any(), e.PlateTime.Any(), e.Extension.Any(), e.SpinRate.Any(), e.SpinDirection.Any(),
		e.VB.Any(), e.IVB.Any(), e.HB.Any(),
		e.LaunchSpeed.Any(), e.LaunchAngle.Any(), e.LaunchDistance.Any(), e.LaunchLocation.Any(),
		e.Trajectory.Any(), e.Hardness.Any(), e.HitX.Any(), e.HitY.Any(),
		e.IndexPlay.Any(), e.PlayID.Any(), e.StartTime.Any(), e.EndTime.Any(), e.IsPitch.Any(), e.TypeType.Any(),
		e.TypeAB.Any(), e.Event.Any(), e.EventType.Any(), e.RBI.Any(), e.AwayScore.Any(), e.HomeScore.Any(), e.IsOut.Any(),
	}
}

// ScanDest returns pointers to every field in Columns order, for sql.Rows.Scan.
func (e *PitchEvent) ScanDest() []any {
	return []any{
		&e.GameID, &e.GameDate,
		&e.BatterID, &e.BatterName, &e.BatterHand, &e.PitcherID, &e.PitcherName, &e.PitcherHand,
		&e.BatterTeam, &e.BatterTeamID, &e.PitcherTeam, &e.PitcherTeamID,
		&e.Inning, &e.ABNumber,
		&e.Strikes, &e.Balls, &e.Outs, &e.StrikesAfter, &e.BallsAfter, &e.OutsAfter,
		&e.PlayDescription, &e.PlayCode, &e.InPlay, &e.IsStrike, &e.IsSwing, &e.IsWhiff,
		&e.IsBall, &e.IsReview, &e.PitchType, &e.PitchDescription,
		&e.StartSpeed, &e.EndSpeed, &e.SzTop, &e.SzBot, &e.X, &e.Y, &e.AX, &e.AY, &e.AZ,
		&e.PfxX, &e.PfxZ, &e.PX, &e.PZ, &e.VX0, &e.VY0, &e.VZ0, &e.X0, &e.Y0, &e.Z0, &e.Zone,
		&e.TypeConfidence, &e.PlateTime, &e.Extension, &e.SpinRate, &e.SpinDirection,
		&e.VB, &e.IVB, &e.HB,
		&e.LaunchSpeed, &e.LaunchAngle, &e.LaunchDistance, &e.LaunchLocation,
		&e.Trajectory, &e.Hardness, &e.HitX, &e.HitY,
		&e.IndexPlay, &e.PlayID, &e.StartTime, &e.EndTime, &e.IsPitch, &e.TypeType,
		&e.TypeAB, &e.Event, &e.EventType, &e.RBI, &e.AwayScore, &e.HomeScore, &e.IsOut,
	}
}

// HasResult reports whether the at-bat result block is populated.
func (e *PitchEvent) HasResult() bool {
	return e.TypeAB.Valid || e.Event.Valid || e.EventType.Valid || e.RBI.Valid ||
		e.AwayScore.Valid || e.HomeScore.Valid || e.IsOut.Valid
}
