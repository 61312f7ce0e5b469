// Package presence reconstructs the time each player spent connected during a game.
package presence

import (
	"errors"
	"sort"
	"time"

	"github.com/pable/go-hll-metrics/internal/model"
)

// WarmUp is skipped at the start of every game: players already present
// when the match starts are credited from start+WarmUp.
const WarmUp = 300 * time.Second

// ErrUnpaired is returned for players whose transitions cannot be paired.
var ErrUnpaired = errors.New("connect/disconnect transitions do not pair")

// Result is the presence of one player in one game.
type Result struct {
	PlayerID  string
	Intervals []model.PresenceInterval
	Seconds   float64
	// Err is non-nil when the player's transitions were invalid; such a
	// player has no intervals and must be excluded from stats.
	Err error
}

// Valid reports whether the player's presence could be reconstructed.
func (r Result) Valid() bool { return r.Err == nil }

type transition struct {
	at        time.Time
	connected bool
}

// Track computes presence for every player referenced by the game's events,
// in any order. The game must be closed. Results are sorted by player id.
func Track(g *model.Game, events []model.RawEvent) []Result {
	if g.EndTime == nil {
		return nil
	}
	end := *g.EndTime

	players := make(map[string][]transition)
	for i := range events {
		ev := &events[i]
		for _, a := range []*model.Actor{ev.Player1, ev.Player2} {
			if a != nil {
				if _, ok := players[a.ID]; !ok {
					players[a.ID] = nil
				}
			}
		}
		if ev.Player1 == nil {
			continue
		}
		switch ev.Type {
		case model.EventConnected:
			players[ev.Player1.ID] = append(players[ev.Player1.ID], transition{at: ev.EventTime, connected: true})
		case model.EventDisconnected:
			players[ev.Player1.ID] = append(players[ev.Player1.ID], transition{at: ev.EventTime, connected: false})
		}
	}

	ids := make([]string, 0, len(players))
	for id := range players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]Result, 0, len(ids))
	for _, id := range ids {
		ts := players[id]
		sort.SliceStable(ts, func(i, j int) bool { return ts[i].at.Before(ts[j].at) })
		out = append(out, forPlayer(id, g.StartTime, end, ts))
	}
	return out
}

// forPlayer builds one player's presence from its ordered transitions.
func forPlayer(id string, start, end time.Time, ts []transition) Result {
	res := Result{PlayerID: id}
	from := start.Add(WarmUp)
	if end.Before(from) {
		from = end
	}

	if len(ts) == 0 {
		res.Intervals = []model.PresenceInterval{{PlayerID: id, Connect: from, Disconnect: end}}
		res.Seconds = end.Sub(from).Seconds()
		return res
	}

	seq := make([]transition, 0, len(ts)+2)
	if !ts[0].connected {
		seq = append(seq, transition{at: from, connected: true})
	}
	seq = append(seq, ts...)
	if seq[len(seq)-1].connected {
		seq = append(seq, transition{at: end, connected: false})
	}

	if len(seq)%2 != 0 {
		res.Err = ErrUnpaired
		return res
	}

	var prevEnd time.Time
	for i := 0; i < len(seq); i += 2 {
		c, d := seq[i], seq[i+1]
		if !c.connected || d.connected {
			return Result{PlayerID: id, Err: ErrUnpaired}
		}
		connect, disconnect := c.at, d.at
		if i > 0 && connect.Before(prevEnd) {
			connect = prevEnd
		}
		if disconnect.Before(connect) {
			disconnect = connect
		}
		res.Intervals = append(res.Intervals, model.PresenceInterval{PlayerID: id, Connect: connect, Disconnect: disconnect})
		res.Seconds += disconnect.Sub(connect).Seconds()
		prevEnd = disconnect
	}
	return res
}
