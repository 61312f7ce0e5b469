package aggregator

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/pable/go-hll-metrics/internal/distribution"
	"github.com/pable/go-hll-metrics/internal/model"
	"github.com/pable/go-hll-metrics/internal/presence"
)

// Growth-factor exponents. Calibrated on historical games; changing them
// invalidates stored scores (run `reanalyze`).
const (
	GrowthExponent = 0.45
	ScoreExponent  = 0.65
)

// ErrOpenGame is returned when stats are requested for a game that has not ended.
var ErrOpenGame = errors.New("game has not ended")

// Excluded is a player left out of a game's stats.
type Excluded struct {
	PlayerID string
	Name     string
	Err      error
}

// Result is the output of Analyze for one closed game.
type Result struct {
	Stats    []model.PlayerGameStats
	Excluded []Excluded
}

// Analyze computes PlayerGameStats for every player of a closed game.
// Players whose presence could not be reconstructed are reported in
// Result.Excluded and do not take part in the game-wide rankings.
func Analyze(g *model.Game, events []model.RawEvent) (*Result, error) {
	if g == nil {
		return nil, fmt.Errorf("nil Game")
	}
	if !g.Ended || g.EndTime == nil {
		return nil, fmt.Errorf("%s: %w", g.Key, ErrOpenGame)
	}
	duration := float64(g.DurationSeconds())
	names := latestNames(events)

	// ---- Pass 1: presence; split valid players from excluded ones. ----

	res := &Result{}
	var valid []presence.Result
	for _, p := range presence.Track(g, events) {
		if !p.Valid() {
			res.Excluded = append(res.Excluded, Excluded{PlayerID: p.PlayerID, Name: names[p.PlayerID], Err: p.Err})
			continue
		}
		valid = append(valid, p)
	}

	// ---- Pass 2: distributions and per-minute rates. ----

	dists := distribution.Build(g, events)
	stats := make([]model.PlayerGameStats, 0, len(valid))
	for _, p := range valid {
		d, ok := dists[p.PlayerID]
		if !ok {
			d = distribution.Empty()
		}
		s := model.PlayerGameStats{
			GameKey:          g.Key,
			PlayerID:         p.PlayerID,
			Name:             names[p.PlayerID],
			ConnectedSeconds: p.Seconds,
			Kills:            d.Kills.Count(),
			Deaths:           d.Deaths.Count(),
			TeamKills:        d.TeamKills.Count(),
			TeamDeaths:       d.TeamDeaths.Count(),
			KillDist:         d.Kills,
			DeathDist:        d.Deaths,
			TeamKillDist:     d.TeamKills,
			TeamDeathDist:    d.TeamDeaths,
			WeaponKills:      d.WeaponKills,
			WeaponDeaths:     d.WeaponDeaths,
			Victims:          d.Victims,
			Nemesis:          d.Nemesis,
		}
		s.KPM = PerMinute(s.Kills, s.ConnectedSeconds)
		s.DPM = PerMinute(s.Deaths, s.ConnectedSeconds)
		s.Ratio = s.KDRatio()
		s.GrowthFactor = GrowthFactor(s.ConnectedSeconds, duration, s.KPM)
		stats = append(stats, s)
	}

	// ---- Pass 3: game-wide scores (need every player's gf and KPM). ----

	gfs := make(map[string]float64, len(stats))
	kpms := make([]float64, 0, len(stats))
	totalKills := 0
	for _, s := range stats {
		gfs[s.PlayerID] = s.GrowthFactor
		kpms = append(kpms, s.KPM)
		totalKills += s.Kills
	}
	var avgKills float64
	if len(stats) > 0 {
		avgKills = float64(totalKills) / float64(len(stats))
	}

	for i := range stats {
		s := &stats[i]
		s.Score = Score(s.Victims, s.Kills, gfs, s.GrowthFactor)
		s.WeightedKPM = WeightedKPM(RankPercentile(kpms, s.KPM), s.Kills, avgKills, s.KPM)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Kills != stats[j].Kills {
			return stats[i].Kills > stats[j].Kills
		}
		return stats[i].PlayerID < stats[j].PlayerID
	})
	res.Stats = stats
	return res, nil
}

// PerMinute is count per minute of connected time, 0 without connected time.
func PerMinute(count int, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return float64(count) / (seconds / 60)
}

// GrowthFactor scales KPM by the share of the game the player was present for.
func GrowthFactor(seconds, duration, kpm float64) float64 {
	if duration <= 0 {
		return 0
	}
	return math.Pow(seconds/duration, GrowthExponent) * kpm
}

// Score weights a player's growth factor by the mean growth factor of the
// players they killed. Victims without stats contribute 0.
func Score(victims map[string]int, kills int, gfs map[string]float64, gf float64) float64 {
	if kills <= 0 {
		return 0
	}
	var sum float64
	for victim, n := range victims {
		sum += gfs[victim] * float64(n)
	}
	return math.Pow(sum/float64(kills), ScoreExponent) * gf
}

// RankPercentile is the share of kpms strictly below kpm.
func RankPercentile(kpms []float64, kpm float64) float64 {
	if len(kpms) == 0 {
		return 0
	}
	below := 0
	for _, v := range kpms {
		if v < kpm {
			below++
		}
	}
	return float64(below) / float64(len(kpms))
}

// WeightedKPM favours players who both rank high and kill above the game average.
func WeightedKPM(rank float64, kills int, avgKills, kpm float64) float64 {
	if avgKills <= 0 {
		return 0
	}
	return (1 - (rank-1)/100) * (float64(kills) / avgKills) * kpm
}

// latestNames maps player id to the last name observed in the events.
func latestNames(events []model.RawEvent) map[string]string {
	names := make(map[string]string)
	for i := range events {
		for _, a := range []*model.Actor{events[i].Player1, events[i].Player2} {
			if a != nil && a.Name != "" {
				names[a.ID] = a.Name
			}
		}
	}
	return names
}
