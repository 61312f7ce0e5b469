package aggregator

import "github.com/pable/go-hll-metrics/internal/model"

// Summarize folds one player's per-game stats into totals and per-game means.
// Name is taken from the last row that carries one.
func Summarize(stats []model.PlayerGameStats) model.PlayerAggregate {
	var agg model.PlayerAggregate
	if len(stats) == 0 {
		return agg
	}
	for i := range stats {
		s := &stats[i]
		agg.PlayerID = s.PlayerID
		if s.Name != "" {
			agg.Name = s.Name
		}
		agg.Kills += s.Kills
		agg.Deaths += s.Deaths
		agg.TeamKills += s.TeamKills
		agg.TeamDeaths += s.TeamDeaths
		agg.ConnectedSeconds += s.ConnectedSeconds
		agg.AvgKPM += s.KPM
		agg.AvgDPM += s.DPM
		agg.AvgScore += s.Score
		agg.AvgWeightedKPM += s.WeightedKPM
	}
	n := float64(len(stats))
	agg.Games = len(stats)
	agg.AvgKPM /= n
	agg.AvgDPM /= n
	agg.AvgScore /= n
	agg.AvgWeightedKPM /= n
	return agg
}
