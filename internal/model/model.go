package model

import "time"

// EventType is the log line type reported by the game server.
// Unknown values are carried through untouched.
type EventType string

const (
	EventMatchStart   EventType = "MATCH START"
	EventMatchEnded   EventType = "MATCH ENDED"
	EventKill         EventType = "KILL"
	EventTeamKill     EventType = "TEAM KILL"
	EventConnected    EventType = "CONNECTED"
	EventDisconnected EventType = "DISCONNECTED"
	EventMessage      EventType = "MESSAGE"
)

// Side is one of the two factions of a match.
type Side string

const (
	SideAllies Side = "allies"
	SideAxis   Side = "axis"
)

// ---- Raw events ----

// Actor is a player referenced by an event. ID is never empty.
type Actor struct {
	ID   string
	Name string
}

// RawEvent is one normalized log line. Optional fields are nil when the
// source record did not carry them.
type RawEvent struct {
	ID           int64
	EventTime    time.Time // UTC
	CreationTime time.Time // UTC, zero if absent
	Type         EventType
	Player1      *Actor
	Player2      *Actor
	Weapon       *string
	Content      string
	Raw          string
	Server       string
	GameKey      *string // set by the segmenter when a game was open
}

// Player1ID returns the first actor's ID or "".
func (e *RawEvent) Player1ID() string {
	if e.Player1 == nil {
		return ""
	}
	return e.Player1.ID
}

// Player2ID returns the second actor's ID or "".
func (e *RawEvent) Player2ID() string {
	if e.Player2 == nil {
		return ""
	}
	return e.Player2.ID
}

// ---- Games ----

// Game is one match on one server.
type Game struct {
	Key         string
	Server      string
	Number      int
	StartTime   time.Time
	EndTime     *time.Time
	Ended       bool
	Seeding     bool
	Map         *string
	Mode        *string
	AlliedScore *int
	AxisScore   *int
	Winner      *Side
	Duration    *int // seconds, set when the game closes
}

// DurationSeconds returns the closed duration, or 0 while the game is open.
func (g *Game) DurationSeconds() int {
	if g.Duration == nil {
		return 0
	}
	return *g.Duration
}

// MapName returns the parsed map or "?".
func (g *Game) MapName() string {
	if g.Map == nil {
		return "?"
	}
	return *g.Map
}

// ModeName returns the parsed mode or "?".
func (g *Game) ModeName() string {
	if g.Mode == nil {
		return "?"
	}
	return *g.Mode
}

// PresenceInterval is a continuous span a player was connected within one game.
type PresenceInterval struct {
	PlayerID   string
	Connect    time.Time
	Disconnect time.Time
}

// Seconds returns the interval length in seconds.
func (p PresenceInterval) Seconds() float64 {
	return p.Disconnect.Sub(p.Connect).Seconds()
}

// ---- Derived stats ----

// Encounter is one entry of a distribution: the other player involved and
// the weapon used. Weapon is empty when the log line carried none.
type Encounter struct {
	Player string `json:"player"`
	Weapon string `json:"weapon,omitempty"`
}

// Distribution maps whole seconds since match start to the encounters at that offset.
type Distribution map[int][]Encounter

// Count returns the total number of encounters.
func (d Distribution) Count() int {
	n := 0
	for _, v := range d {
		n += len(v)
	}
	return n
}

// PlayerGameStats is the per (game, player) statistics record.
type PlayerGameStats struct {
	GameKey  string
	PlayerID string
	Name     string // populated by queries joining the players table

	ConnectedSeconds float64

	Kills      int
	Deaths     int
	TeamKills  int
	TeamDeaths int

	KPM   float64
	DPM   float64
	Ratio float64

	GrowthFactor float64
	Score        float64
	WeightedKPM  float64

	KillDist      Distribution
	DeathDist     Distribution
	TeamKillDist  Distribution
	TeamDeathDist Distribution

	WeaponKills  map[string]int
	WeaponDeaths map[string]int
	Victims      map[string]int
	Nemesis      map[string]int

	// Populated when queried across games (JOIN with games).
	StartTime time.Time
	MapName   string
}

// KDRatio is kills/deaths, or kills when there were no deaths.
func (s *PlayerGameStats) KDRatio() float64 {
	if s.Deaths == 0 {
		return float64(s.Kills)
	}
	return float64(s.Kills) / float64(s.Deaths)
}

// ---- Players ----

// Player is the identity record for a player id, tracking the latest name seen.
type Player struct {
	ID          string
	CurrentName string
	FirstSeen   time.Time
	LastSeen    time.Time
}

// PlayerAggregate holds stats for a single player aggregated across stored games.
type PlayerAggregate struct {
	PlayerID string
	Name     string
	Games    int

	Kills, Deaths         int
	TeamKills, TeamDeaths int
	ConnectedSeconds      float64

	AvgKPM         float64
	AvgDPM         float64
	AvgScore       float64
	AvgWeightedKPM float64
}

// KDRatio is kills/deaths, or kills when there were no deaths.
func (a *PlayerAggregate) KDRatio() float64 {
	if a.Deaths == 0 {
		return float64(a.Kills)
	}
	return float64(a.Kills) / float64(a.Deaths)
}

// OverallKPM is total kills per minute of total connected time.
func (a *PlayerAggregate) OverallKPM() float64 {
	if a.ConnectedSeconds == 0 {
		return 0
	}
	return float64(a.Kills) / (a.ConnectedSeconds / 60)
}

// ProcessedFile marks a source file whose events were committed.
type ProcessedFile struct {
	Name       string
	RunID      string
	IngestedAt time.Time
}
