package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-hll-metrics/internal/report"
	"github.com/pable/go-hll-metrics/internal/storage"
)

var (
	gamesServer string
	gamesAll    bool
	gamesLimit  uint64
)

var gamesCmd = &cobra.Command{
	Use:   "games",
	Short: "List stored games, newest first",
	Args:  cobra.NoArgs,
	RunE:  runGames,
}

func init() {
	gamesCmd.Flags().StringVar(&gamesServer, "server", "", "only games of this server")
	gamesCmd.Flags().BoolVar(&gamesAll, "all", false, "include games that never ended")
	gamesCmd.Flags().Uint64Var(&gamesLimit, "limit", 50, "maximum number of games (0 = no limit)")
}

func runGames(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	games, err := db.ListGames(cmd.Context(), storage.GameFilter{
		Server:    gamesServer,
		EndedOnly: !gamesAll,
		Limit:     gamesLimit,
	})
	if err != nil {
		return fmt.Errorf("list games: %w", err)
	}
	if len(games) == 0 {
		fmt.Fprintln(os.Stdout, "No games stored yet. Run 'hllmetrics ingest <dir>' to add some.")
		return nil
	}
	report.PrintGamesList(os.Stdout, games)
	return nil
}
