// Package classify decides which games count toward aggregate statistics.
package classify

import (
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/pable/go-hll-metrics/internal/model"
)

// Reason is why a game is excluded from aggregates by default.
type Reason string

const (
	Incomplete Reason = "incomplete" // never saw MATCH ENDED
	NoScore    Reason = "no_score"   // final score could not be parsed
	Tied       Reason = "tied"       // equal scores, treated as an interrupted game
	Seeding    Reason = "seeding"
)

// Reasons lists every exclusion reason that applies to g, in a fixed order.
func Reasons(g *model.Game) []Reason {
	var out []Reason
	if !g.Ended {
		out = append(out, Incomplete)
	} else if g.AlliedScore == nil || g.AxisScore == nil {
		out = append(out, NoScore)
	} else if *g.AlliedScore == *g.AxisScore {
		out = append(out, Tied)
	}
	if g.Seeding {
		out = append(out, Seeding)
	}
	return out
}

// Label joins reasons for storage and display; "" means the game counts.
func Label(reasons []Reason) string {
	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = string(r)
	}
	return strings.Join(parts, ",")
}

// Policy selects which flagged games are admitted into aggregates.
// The zero value excludes every flagged game.
type Policy struct {
	IncludeSeeding    bool
	IncludeIncomplete bool // admits incomplete, unscored and tied games
}

// Admits reports whether g counts under p.
func (p Policy) Admits(g *model.Game) bool {
	for _, r := range Reasons(g) {
		switch r {
		case Seeding:
			if !p.IncludeSeeding {
				return false
			}
		default:
			if !p.IncludeIncomplete {
				return false
			}
		}
	}
	return true
}

// Where returns the SQL condition equivalent to Admits over the games table
// columns ended, seeding, allied_score and axis_score. prefix qualifies the
// columns (e.g. "g.").
func (p Policy) Where(prefix string) sq.Sqlizer {
	conds := sq.And{}
	if !p.IncludeIncomplete {
		conds = append(conds,
			sq.Eq{prefix + "ended": 1},
			sq.NotEq{prefix + "allied_score": nil},
			sq.NotEq{prefix + "axis_score": nil},
			sq.Expr(prefix+"allied_score <> "+prefix+"axis_score"),
		)
	}
	if !p.IncludeSeeding {
		conds = append(conds, sq.Eq{prefix + "seeding": 0})
	}
	if len(conds) == 0 {
		return sq.Expr("1=1")
	}
	return conds
}
