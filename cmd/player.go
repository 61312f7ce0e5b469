package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pable/go-hll-metrics/internal/aggregator"
	"github.com/pable/go-hll-metrics/internal/report"
	"github.com/pable/go-hll-metrics/internal/storage"
)

var (
	playerFrom  string
	playerTo    string
	playerGames int
)

var playerCmd = &cobra.Command{
	Use:   "player <player-id>",
	Short: "Aggregate a player's stats across stored games",
	Long: `Aggregate a player's per-game stats across every game admitted by the
validity policy. Seeding games and games without a decisive final score are
left out unless --include-seeding / --include-incomplete are set.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlayer,
}

func init() {
	playerCmd.Flags().StringVar(&playerFrom, "from", "", "only games starting on or after this date (YYYY-MM-DD)")
	playerCmd.Flags().StringVar(&playerTo, "to", "", "only games starting before this date (YYYY-MM-DD)")
	playerCmd.Flags().IntVar(&playerGames, "games", 10, "number of most recent games to list")
}

func runPlayer(cmd *cobra.Command, args []string) error {
	id := args[0]
	ctx := cmd.Context()

	q, err := playerQuery(id, playerFrom, playerTo)
	if err != nil {
		return err
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	p, err := db.GetPlayer(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "No player found with id %q\n", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get player: %w", err)
	}
	names, err := db.GetPlayerNames(ctx, id)
	if err != nil {
		return fmt.Errorf("get player names: %w", err)
	}
	stats, err := db.GetPlayerGameStats(ctx, q)
	if err != nil {
		return fmt.Errorf("get player stats: %w", err)
	}

	known := make([]string, len(names))
	for i, n := range names {
		known[i] = n.Name
	}
	cHeader.Fprintf(os.Stdout, "\n%s (%s)\n", p.CurrentName, p.ID)
	fmt.Fprintf(os.Stdout, "  First seen : %s\n", humanize.Time(p.FirstSeen))
	fmt.Fprintf(os.Stdout, "  Last seen  : %s\n", humanize.Time(p.LastSeen))
	if len(known) > 1 {
		fmt.Fprintf(os.Stdout, "  Also known as: %s\n", strings.Join(known, ", "))
	}
	fmt.Fprintln(os.Stdout)

	if len(stats) == 0 {
		fmt.Fprintln(os.Stdout, "No admitted games for this player. Try --include-incomplete or --include-seeding.")
		return nil
	}

	agg := aggregator.Summarize(stats)
	agg.Name = p.CurrentName
	report.PrintPlayerOverview(os.Stdout, agg, report.KPMQuantiles(stats))

	recent := stats
	if playerGames > 0 && len(recent) > playerGames {
		recent = recent[len(recent)-playerGames:]
	}
	fmt.Fprintf(os.Stdout, "\n--- Last %d games ---\n\n", len(recent))
	report.PrintPlayerGames(os.Stdout, recent)
	return nil
}

const dayLayout = "2006-01-02"

// playerQuery builds a storage query from the shared --from/--to flags.
func playerQuery(id, from, to string) (storage.PlayerQuery, error) {
	q := storage.PlayerQuery{PlayerID: id, Policy: policy()}
	if from != "" {
		t, err := time.Parse(dayLayout, from)
		if err != nil {
			return q, fmt.Errorf("invalid --from: %w", err)
		}
		q.From = &t
	}
	if to != "" {
		t, err := time.Parse(dayLayout, to)
		if err != nil {
			return q, fmt.Errorf("invalid --to: %w", err)
		}
		q.To = &t
	}
	return q, nil
}
