package report

import (
	"encoding/json"
	"io"

	"github.com/pable/go-hll-metrics/internal/storage"
)

// RollingWindow is the centered window used for smoothed series.
const RollingWindow = 3

// Point is one bucket of a player metric series.
type Point struct {
	Bucket  string   `json:"bucket"`
	Value   float64  `json:"value"`
	Games   int      `json:"games"`
	Rolling *float64 `json:"rolling,omitempty"`
}

// Series is the JSON document handed to the charting side.
type Series struct {
	PlayerID   string  `json:"player_id"`
	Name       string  `json:"name"`
	Metric     string  `json:"metric"`
	Group      string  `json:"group"`
	Multiplier float64 `json:"multiplier"`
	Points     []Point `json:"points"`
}

// SeriesOptions shapes a series after it is read from the store.
type SeriesOptions struct {
	Multiplier float64 // values are scaled by this; 0 means 1
	Rolling    bool
	DropZeroes bool
}

// BuildSeries converts stored buckets into series points.
func BuildSeries(in []storage.SeriesPoint, opts SeriesOptions) []Point {
	mult := opts.Multiplier
	if mult == 0 {
		mult = 1
	}
	out := make([]Point, 0, len(in))
	for _, p := range in {
		if opts.DropZeroes && p.Value == 0 {
			continue
		}
		out = append(out, Point{Bucket: p.Bucket, Value: p.Value * mult, Games: p.Games})
	}
	if opts.Rolling {
		values := make([]float64, len(out))
		for i := range out {
			values[i] = out[i].Value
		}
		for i, r := range RollingMean(values, RollingWindow) {
			out[i].Rolling = r
		}
	}
	return out
}

// RollingMean is the centered moving average over an odd window. Positions
// where the window does not fit are nil.
func RollingMean(values []float64, window int) []*float64 {
	out := make([]*float64, len(values))
	if window < 1 || window%2 == 0 {
		return out
	}
	half := window / 2
	for i := half; i+half < len(values); i++ {
		var sum float64
		for _, v := range values[i-half : i+half+1] {
			sum += v
		}
		mean := sum / float64(window)
		out[i] = &mean
	}
	return out
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}
