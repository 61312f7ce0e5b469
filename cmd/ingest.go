package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pable/go-hll-metrics/internal/ingest"
	"github.com/pable/go-hll-metrics/internal/normalize"
)

var (
	ingestBatchSize   int
	ingestMetricsFile string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Ingest event files (*.json, *.json.gz, *.json.zst) from a directory",
	Long: `Read every event file in <dir> in natural name order, split the events
into games per server and store events, games and per-player stats.

Files already ingested are skipped, and events whose id is already stored are
ignored, so re-running over the same directory is safe. A game that is still
running when the last file ends is resumed by the next run.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "files per transaction (default from config)")
	ingestCmd.Flags().StringVar(&ingestMetricsFile, "metrics-file", "", "write Prometheus textfile metrics here (default from config)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	dir := args[0]
	files, err := normalize.ListFiles(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Fprintf(os.Stdout, "No event files found in %s\n", dir)
		return nil
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	batch := cfg.BatchSize
	if ingestBatchSize > 0 {
		batch = ingestBatchSize
	}
	metricsFile := cfg.MetricsFile
	if ingestMetricsFile != "" {
		metricsFile = ingestMetricsFile
	}

	metrics := ingest.NewMetrics()
	p := ingest.New(db, logger, metrics, ingest.Options{BatchSize: batch})
	sum, runErr := p.Run(cmd.Context(), files)

	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile); err != nil {
			logger.Warn("could not write metrics", "path", metricsFile, "err", err)
		}
	}

	printIngestSummary(sum, runErr)
	if runErr != nil {
		return fmt.Errorf("ingest: %w", runErr)
	}
	return nil
}

func printIngestSummary(sum *ingest.Summary, runErr error) {
	fmt.Fprintln(os.Stdout)
	if runErr != nil {
		cError.Fprintln(os.Stdout, "Ingest stopped early; committed batches are kept.")
	} else {
		cOK.Fprintln(os.Stdout, "Ingest complete.")
	}
	fmt.Fprintf(os.Stdout, "  Run           : %s\n", sum.RunID)
	fmt.Fprintf(os.Stdout, "  Files         : %s ingested, %s skipped\n",
		humanize.Comma(int64(sum.Files)), humanize.Comma(int64(sum.Skipped)))
	fmt.Fprintf(os.Stdout, "  Events stored : %s (%s duplicates, %s before their game)\n",
		humanize.Comma(sum.Events), humanize.Comma(int64(sum.Duplicates)), humanize.Comma(int64(sum.Orphans)))
	fmt.Fprintf(os.Stdout, "  Games         : %d opened, %d closed, %d abandoned\n",
		sum.Opened, sum.Closed, sum.Abandoned)
	if sum.Failed > 0 {
		cWarn.Fprintf(os.Stdout, "  Failed files  : %d (will be retried next run)\n", sum.Failed)
	}
	if sum.Rejected > 0 {
		cWarn.Fprintf(os.Stdout, "  Bad records   : %s\n", humanize.Comma(int64(sum.Rejected)))
	}
	if sum.ExcludedPlayers > 0 {
		cWarn.Fprintf(os.Stdout, "  Players without reconstructable presence: %d\n", sum.ExcludedPlayers)
	}
}
