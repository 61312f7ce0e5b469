package distribution

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pable/go-hll-metrics/internal/model"
)

var start = time.Date(2025, 3, 2, 20, 0, 0, 0, time.UTC)

func kill(typ model.EventType, offset time.Duration, killer, victim, weapon string) model.RawEvent {
	e := model.RawEvent{
		EventTime: start.Add(offset),
		Type:      typ,
		Player1:   &model.Actor{ID: killer},
		Player2:   &model.Actor{ID: victim},
	}
	if weapon != "" {
		e.Weapon = &weapon
	}
	return e
}

func TestBuild(t *testing.T) {
	g := &model.Game{Key: "1_1", StartTime: start}
	events := []model.RawEvent{
		{EventTime: start, Type: model.EventMatchStart},
		kill(model.EventKill, 90500*time.Millisecond, "a", "b", "M1 GARAND"),
		kill(model.EventKill, 90900*time.Millisecond, "a", "c", "M1 GARAND"),
		kill(model.EventKill, 120*time.Second, "b", "a", ""),
		kill(model.EventTeamKill, 200*time.Second, "a", "d", "MK2 GRENADE"),
		{EventTime: start.Add(300 * time.Second), Type: model.EventMessage, Content: "gg"},
	}

	dist := Build(g, events)

	a := dist["a"]
	require.NotNil(t, a)
	require.Equal(t, []model.Encounter{{Player: "b", Weapon: "M1 GARAND"}, {Player: "c", Weapon: "M1 GARAND"}}, a.Kills[90])
	require.Equal(t, 2, a.Kills.Count())
	require.Equal(t, 1, a.Deaths.Count())
	require.Equal(t, []model.Encounter{{Player: "b"}}, a.Deaths[120])
	require.Equal(t, []model.Encounter{{Player: "d", Weapon: "MK2 GRENADE"}}, a.TeamKills[200])
	require.Equal(t, map[string]int{"M1 GARAND": 2}, a.WeaponKills)
	require.Equal(t, map[string]int{UnknownWeapon: 1}, a.WeaponDeaths)
	require.Equal(t, map[string]int{"b": 1, "c": 1}, a.Victims)
	require.Equal(t, map[string]int{"b": 1}, a.Nemesis)

	d := dist["d"]
	require.Equal(t, 1, d.TeamDeaths.Count())
	require.Empty(t, d.Kills)
	require.NotNil(t, d.Kills)
	require.Empty(t, d.WeaponDeaths)
}

func TestBuild_NoKillsYieldsNoPlayers(t *testing.T) {
	g := &model.Game{Key: "1_1", StartTime: start}
	dist := Build(g, []model.RawEvent{{EventTime: start, Type: model.EventConnected, Player1: &model.Actor{ID: "a"}}})
	require.Empty(t, dist)

	e := Empty()
	require.NotNil(t, e.Kills)
	require.NotNil(t, e.Victims)
}

func TestBuild_CountsMatchEvents(t *testing.T) {
	g := &model.Game{Key: "1_1", StartTime: start}
	var events []model.RawEvent
	for i := 0; i < 25; i++ {
		events = append(events, kill(model.EventKill, time.Duration(i)*time.Second, "a", "b", "KAR98K"))
	}
	dist := Build(g, events)
	require.Equal(t, 25, dist["a"].Kills.Count())
	require.Equal(t, 25, dist["b"].Deaths.Count())
	require.Equal(t, 25, dist["a"].WeaponKills["KAR98K"])
}
