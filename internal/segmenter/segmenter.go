// Package segmenter partitions a time-ordered event stream into matches.
//
// Each server is either idle or has exactly one open game; the open table is
// keyed by server so a second open game for the same server cannot exist.
// MATCH START opens a game (discarding any stale one), MATCH ENDED closes it,
// and everything observed in between is attached to the open game.
package segmenter

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pable/go-hll-metrics/internal/model"
	"github.com/pable/go-hll-metrics/internal/normalize"
)

const (
	// SeedingPhrase is broadcast by the server while it is being seeded.
	SeedingPhrase = "THANK YOU FOR SEEDING"
	// SeedingThreshold is the number of seeding messages a game may carry
	// before it is flagged; the flag is set once the count exceeds it.
	SeedingThreshold = 3

	matchStartPrefix = "MATCH START "
)

// Closed is a finished game together with its event slice, ordered by
// (event time, id) as the store returns it.
type Closed struct {
	Game   *model.Game
	Events []model.RawEvent
}

// Result collects the transitions observed while feeding one batch.
type Result struct {
	// Events holds every input event, stamped with a game key when one applied.
	Events []model.RawEvent
	// Opened lists games opened during the batch, in order.
	Opened []*model.Game
	// Abandoned lists games that were still open when their server started a new one.
	Abandoned []*model.Game
	// Closed lists games finished during the batch.
	Closed []Closed
	// Active lists games still open at the end of the batch that received events.
	Active []*model.Game
	// Orphans counts events that arrived before the open game's start.
	Orphans int
}

// Touched returns every game whose row changed during the batch: opened,
// abandoned, closed, and still-open games that received events.
func (r *Result) Touched() []*model.Game {
	seen := make(map[string]bool)
	var out []*model.Game
	add := func(g *model.Game) {
		if g == nil || seen[g.Key] {
			return
		}
		seen[g.Key] = true
		out = append(out, g)
	}
	for _, g := range r.Opened {
		add(g)
	}
	for _, g := range r.Abandoned {
		add(g)
	}
	for _, c := range r.Closed {
		add(c.Game)
	}
	for _, g := range r.Active {
		add(g)
	}
	return out
}

type openGame struct {
	game     *model.Game
	events   []model.RawEvent
	seedMsgs int
}

// Segmenter is the per-server state machine. It is not safe for concurrent use.
type Segmenter struct {
	open    map[string]*openGame
	lastNum map[string]int
}

// New returns a segmenter with every server idle.
func New() *Segmenter {
	return &Segmenter{
		open:    make(map[string]*openGame),
		lastNum: make(map[string]int),
	}
}

// SetLastNumber seeds the sequence counter for a server, typically from the
// highest stored game number.
func (s *Segmenter) SetLastNumber(server string, n int) {
	if n > s.lastNum[server] {
		s.lastNum[server] = n
	}
}

// Restore re-opens a game that was still in progress when the previous run
// committed. events must be the game's already-stored slice in time order.
func (s *Segmenter) Restore(g *model.Game, events []model.RawEvent) error {
	if g.Ended {
		return fmt.Errorf("restore %s: game already ended", g.Key)
	}
	if cur, ok := s.open[g.Server]; ok && cur.game.Key != g.Key {
		return fmt.Errorf("restore %s: server %s already has open game %s", g.Key, g.Server, cur.game.Key)
	}
	og := &openGame{game: g, events: append([]model.RawEvent(nil), events...)}
	for i := range og.events {
		if isSeedingMessage(&og.events[i]) {
			og.seedMsgs++
		}
	}
	if og.seedMsgs > SeedingThreshold {
		g.Seeding = true
	}
	s.open[g.Server] = og
	s.SetLastNumber(g.Server, g.Number)
	return nil
}

// Open returns the open game for a server, if any.
func (s *Segmenter) Open(server string) (*model.Game, bool) {
	og, ok := s.open[server]
	if !ok {
		return nil, false
	}
	return og.game, true
}

// OpenGames returns every open game.
func (s *Segmenter) OpenGames() []*model.Game {
	out := make([]*model.Game, 0, len(s.open))
	for _, og := range s.open {
		out = append(out, og.game)
	}
	return out
}

// Feed runs a time-ordered batch through the state machine.
func (s *Segmenter) Feed(events []model.RawEvent) *Result {
	res := &Result{Events: make([]model.RawEvent, 0, len(events))}
	touchedOpen := make(map[string]bool)

	for _, ev := range events {
		ev.GameKey = nil

		switch ev.Type {
		case model.EventMatchStart:
			if stale, ok := s.open[ev.Server]; ok {
				res.Abandoned = append(res.Abandoned, stale.game)
				delete(s.open, ev.Server)
			}
			g := s.startGame(&ev)
			s.open[ev.Server] = &openGame{game: g}
			res.Opened = append(res.Opened, g)
		}

		og, ok := s.open[ev.Server]
		if ok && ev.EventTime.Before(og.game.StartTime) {
			res.Orphans++
			res.Events = append(res.Events, ev)
			continue
		}
		if ok {
			key := og.game.Key
			ev.GameKey = &key
			og.events = append(og.events, ev)
			touchedOpen[ev.Server] = true

			if isSeedingMessage(&ev) {
				og.seedMsgs++
				if og.seedMsgs > SeedingThreshold {
					og.game.Seeding = true
				}
			}

			if ev.Type == model.EventMatchEnded {
				closeGame(og.game, &ev)
				// Batches arrive in order but a game spanning them may not.
				normalize.Sort(og.events)
				res.Closed = append(res.Closed, Closed{Game: og.game, Events: og.events})
				delete(s.open, ev.Server)
				delete(touchedOpen, ev.Server)
			}
		}
		res.Events = append(res.Events, ev)
	}

	for server := range touchedOpen {
		if og, ok := s.open[server]; ok {
			res.Active = append(res.Active, og.game)
		}
	}
	sort.Slice(res.Active, func(i, j int) bool { return res.Active[i].Key < res.Active[j].Key })
	return res
}

func (s *Segmenter) startGame(ev *model.RawEvent) *model.Game {
	n := s.lastNum[ev.Server] + 1
	s.lastNum[ev.Server] = n
	g := &model.Game{
		Key:       GameKey(ev.Server, n),
		Server:    ev.Server,
		Number:    n,
		StartTime: ev.EventTime,
	}
	g.Map, g.Mode = ParseMatchStart(ev.Content)
	return g
}

func closeGame(g *model.Game, ev *model.RawEvent) {
	end := ev.EventTime
	g.EndTime = &end
	g.Ended = true
	d := int(end.Sub(g.StartTime) / time.Second)
	g.Duration = &d
	g.AlliedScore, g.AxisScore = nil, nil
	g.Winner = nil
	if allied, axis, ok := ParseScore(ev.Content); ok {
		g.AlliedScore, g.AxisScore = &allied, &axis
		switch {
		case allied > axis:
			w := model.SideAllies
			g.Winner = &w
		case axis > allied:
			w := model.SideAxis
			g.Winner = &w
		}
	}
}

func isSeedingMessage(ev *model.RawEvent) bool {
	return ev.Type == model.EventMessage && strings.Contains(ev.Content, SeedingPhrase)
}

// GameKey builds the stable identifier of a server's n-th game.
func GameKey(server string, n int) string {
	return server + "_" + strconv.Itoa(n)
}

// ParseMatchStart extracts map and mode from "MATCH START <MAP> <MODE>".
// The mode is the last whitespace-separated token; without whitespace the
// whole remainder is the map and the mode is unknown.
func ParseMatchStart(content string) (mapName, mode *string) {
	if !strings.HasPrefix(content, matchStartPrefix) {
		return nil, nil
	}
	rest := strings.TrimSpace(content[len(matchStartPrefix):])
	if rest == "" {
		return nil, nil
	}
	idx := strings.LastIndexAny(rest, " \t")
	if idx < 0 {
		return &rest, nil
	}
	m := strings.TrimSpace(rest[:idx])
	md := rest[idx+1:]
	return &m, &md
}

// ParseScore extracts "(<allied> - <axis>)" from MATCH ENDED content.
func ParseScore(content string) (allied, axis int, ok bool) {
	open := strings.Index(content, "(")
	if open < 0 {
		return 0, 0, false
	}
	rest := content[open+1:]
	closing := strings.Index(rest, ")")
	if closing < 0 {
		return 0, 0, false
	}
	parts := strings.Split(rest[:closing], " - ")
	if len(parts) != 2 {
		return 0, 0, false
	}
	a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	return a, b, true
}
