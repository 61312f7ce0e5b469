package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pable/go-hll-metrics/internal/report"
	"github.com/pable/go-hll-metrics/internal/storage"
)

var (
	seriesMetric     string
	seriesGroup      string
	seriesRolling    bool
	seriesMultiplier float64
	seriesDropZeroes bool
	seriesFrom       string
	seriesTo         string
	seriesOut        string
)

var seriesCmd = &cobra.Command{
	Use:   "series <player-id>",
	Short: "Export a player's metric over time as JSON",
	Long: `Export the mean of one metric per time bucket over the player's admitted
games, as JSON for charting. Metrics: ` + strings.Join(metricNames(), ", ") + `.`,
	Args: cobra.ExactArgs(1),
	RunE: runSeries,
}

func init() {
	seriesCmd.Flags().StringVar(&seriesMetric, "metric", "kpm", "metric to export")
	seriesCmd.Flags().StringVar(&seriesGroup, "group", "week", "bucket size: game, day, week, month")
	seriesCmd.Flags().BoolVar(&seriesRolling, "rolling", false, "add a centered 3-bucket rolling mean")
	seriesCmd.Flags().Float64Var(&seriesMultiplier, "multiplier", 1, "scale values by this factor")
	seriesCmd.Flags().BoolVar(&seriesDropZeroes, "drop-zeroes", false, "omit buckets whose value is 0")
	seriesCmd.Flags().StringVar(&seriesFrom, "from", "", "only games starting on or after this date (YYYY-MM-DD)")
	seriesCmd.Flags().StringVar(&seriesTo, "to", "", "only games starting before this date (YYYY-MM-DD)")
	seriesCmd.Flags().StringVarP(&seriesOut, "out", "o", "", "write to file instead of stdout")
}

func metricNames() []string {
	names := make([]string, 0, len(storage.SeriesMetrics))
	for n := range storage.SeriesMetrics {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func runSeries(cmd *cobra.Command, args []string) error {
	id := args[0]
	ctx := cmd.Context()

	q, err := playerQuery(id, seriesFrom, seriesTo)
	if err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	points, err := db.MetricSeries(ctx, storage.SeriesQuery{PlayerQuery: q, Metric: seriesMetric, Group: seriesGroup})
	if err != nil {
		return err
	}
	var name string
	switch p, err := db.GetPlayer(ctx, id); {
	case err == nil:
		name = p.CurrentName
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("get player: %w", err)
	}

	doc := report.Series{
		PlayerID:   id,
		Name:       name,
		Metric:     seriesMetric,
		Group:      seriesGroup,
		Multiplier: seriesMultiplier,
		Points: report.BuildSeries(points, report.SeriesOptions{
			Multiplier: seriesMultiplier,
			Rolling:    seriesRolling,
			DropZeroes: seriesDropZeroes,
		}),
	}

	var w io.Writer = os.Stdout
	if seriesOut != "" {
		f, err := os.Create(seriesOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", seriesOut, err)
		}
		defer f.Close()
		w = f
	}
	if err := report.WriteJSON(w, doc); err != nil {
		return fmt.Errorf("write series: %w", err)
	}
	if seriesOut != "" {
		logger.Info("series written", "path", seriesOut, "points", len(doc.Points))
	}
	return nil
}
