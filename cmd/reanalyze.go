package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pable/go-hll-metrics/internal/aggregator"
	"github.com/pable/go-hll-metrics/internal/model"
	"github.com/pable/go-hll-metrics/internal/storage"
)

var reanalyzePageSize uint64

var reanalyzeCmd = &cobra.Command{
	Use:   "reanalyze",
	Short: "Recompute stats for every ended game from its stored events",
	Long: `Walk every ended game and recompute its per-player stats and exclusion
flags from the stored events. Use after a formula or classification change.`,
	Args: cobra.NoArgs,
	RunE: runReanalyze,
}

func init() {
	reanalyzeCmd.Flags().Uint64Var(&reanalyzePageSize, "page-size", 100, "games fetched per page")
}

func runReanalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	var games, rows, excluded int
	cur := db.EndedGames(reanalyzePageSize)
	for cur.Next(ctx) {
		g := cur.Value()
		events, err := db.GameEvents(ctx, g.Key)
		if err != nil {
			return fmt.Errorf("events of %s: %w", g.Key, err)
		}
		res, err := aggregator.Analyze(&g, events)
		if err != nil {
			return err
		}
		for _, x := range res.Excluded {
			logger.Warn("player excluded from game stats", "game", g.Key, "player", x.PlayerID, "err", x.Err)
		}
		err = db.WithTx(ctx, func(tx *storage.Tx) error {
			if err := tx.UpsertGames(ctx, []*model.Game{&g}); err != nil {
				return err
			}
			return tx.ReplaceGameStats(ctx, g.Key, res.Stats)
		})
		if err != nil {
			return fmt.Errorf("store stats of %s: %w", g.Key, err)
		}
		games++
		rows += len(res.Stats)
		excluded += len(res.Excluded)
		logger.Debug("game reanalyzed", "game", g.Key, "players", len(res.Stats))
	}
	if err := cur.Err(); err != nil {
		return fmt.Errorf("iterate games: %w", err)
	}

	cOK.Fprintf(os.Stdout, "Reanalyzed %d games: %d stats rows, %d players excluded.\n", games, rows, excluded)
	return nil
}
