package report

import (
	"fmt"

	"github.com/influxdata/tdigest"

	"github.com/pable/go-hll-metrics/internal/model"
)

// Quantiles summarizes the spread of a per-game metric.
type Quantiles struct {
	N             int
	P10, P50, P90 float64
}

func (q Quantiles) String() string {
	if q.N == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f / %.2f / %.2f", q.P10, q.P50, q.P90)
}

// KPMQuantiles estimates KPM quantiles across a player's games.
func KPMQuantiles(stats []model.PlayerGameStats) Quantiles {
	if len(stats) == 0 {
		return Quantiles{}
	}
	td := tdigest.NewWithCompression(100)
	for i := range stats {
		td.Add(stats[i].KPM, 1)
	}
	return Quantiles{
		N:   len(stats),
		P10: td.Quantile(0.10),
		P50: td.Quantile(0.50),
		P90: td.Quantile(0.90),
	}
}
