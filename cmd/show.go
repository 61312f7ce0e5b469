package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-hll-metrics/internal/report"
	"github.com/pable/go-hll-metrics/internal/storage"
)

var showPlayerID string

var showCmd = &cobra.Command{
	Use:   "show <game-key-prefix>",
	Short: "Show stored game stats by key prefix",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	showCmd.Flags().StringVar(&showPlayerID, "player", "", "highlight player id and show their rivals")
}

func runShow(cmd *cobra.Command, args []string) error {
	prefix := args[0]
	ctx := cmd.Context()

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	g, err := db.GetGameByPrefix(ctx, prefix)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Fprintf(os.Stderr, "No game found with key prefix %q\n", prefix)
		return nil
	}
	if err != nil {
		return fmt.Errorf("query game: %w", err)
	}

	report.PrintGameHeader(os.Stdout, g)
	if !g.Ended {
		fmt.Fprintln(os.Stdout, "Game has not ended; stats are computed once MATCH ENDED is seen.")
		return nil
	}

	stats, err := db.GetGameStats(ctx, g.Key)
	if err != nil {
		return fmt.Errorf("get player stats: %w", err)
	}
	report.PrintPlayerTable(os.Stdout, stats, showPlayerID)
	fmt.Fprintln(os.Stdout)
	report.PrintWeaponTable(os.Stdout, stats, showPlayerID)

	if showPlayerID == "" {
		return nil
	}
	names := make(map[string]string, len(stats))
	for _, s := range stats {
		names[s.PlayerID] = s.Name
	}
	for _, s := range stats {
		if s.PlayerID != showPlayerID {
			continue
		}
		fmt.Fprintln(os.Stdout)
		report.PrintRivalTable(os.Stdout, s.Victims, s.Nemesis, names, 5)
	}
	return nil
}
