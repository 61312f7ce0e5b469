// Package distribution builds per-player kill and death timelines for a game.
package distribution

import (
	"github.com/pable/go-hll-metrics/internal/model"
)

// UnknownWeapon is tallied when a kill line carries no weapon.
const UnknownWeapon = "UNKNOWN"

// Player holds the distributions and tallies of one player in one game.
type Player struct {
	Kills      model.Distribution
	Deaths     model.Distribution
	TeamKills  model.Distribution
	TeamDeaths model.Distribution

	WeaponKills  map[string]int
	WeaponDeaths map[string]int
	// Victims counts kills per victim; Nemesis counts deaths per killer.
	Victims map[string]int
	Nemesis map[string]int
}

func newPlayer() *Player {
	return &Player{
		Kills:        model.Distribution{},
		Deaths:       model.Distribution{},
		TeamKills:    model.Distribution{},
		TeamDeaths:   model.Distribution{},
		WeaponKills:  map[string]int{},
		WeaponDeaths: map[string]int{},
		Victims:      map[string]int{},
		Nemesis:      map[string]int{},
	}
}

// Empty returns a Player with every map allocated and no entries.
func Empty() *Player { return newPlayer() }

// Build scans the game's KILL and TEAM KILL events and returns the
// distributions of every player involved, keyed by player id.
func Build(g *model.Game, events []model.RawEvent) map[string]*Player {
	out := make(map[string]*Player)
	get := func(id string) *Player {
		p, ok := out[id]
		if !ok {
			p = newPlayer()
			out[id] = p
		}
		return p
	}

	for i := range events {
		ev := &events[i]
		if ev.Type != model.EventKill && ev.Type != model.EventTeamKill {
			continue
		}
		offset := int(ev.EventTime.Sub(g.StartTime).Seconds())
		weapon := ""
		if ev.Weapon != nil {
			weapon = *ev.Weapon
		}
		killer, victim := ev.Player1ID(), ev.Player2ID()

		if killer != "" {
			p := get(killer)
			enc := model.Encounter{Player: victim, Weapon: weapon}
			if ev.Type == model.EventKill {
				p.Kills[offset] = append(p.Kills[offset], enc)
				p.WeaponKills[weaponName(weapon)]++
				if victim != "" {
					p.Victims[victim]++
				}
			} else {
				p.TeamKills[offset] = append(p.TeamKills[offset], enc)
			}
		}
		if victim != "" {
			p := get(victim)
			enc := model.Encounter{Player: killer, Weapon: weapon}
			if ev.Type == model.EventKill {
				p.Deaths[offset] = append(p.Deaths[offset], enc)
				p.WeaponDeaths[weaponName(weapon)]++
				if killer != "" {
					p.Nemesis[killer]++
				}
			} else {
				p.TeamDeaths[offset] = append(p.TeamDeaths[offset], enc)
			}
		}
	}
	return out
}

func weaponName(w string) string {
	if w == "" {
		return UnknownWeapon
	}
	return w
}
