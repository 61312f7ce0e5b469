package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

// summaryCmd is the cobra command for displaying a high-level database overview.
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show a high-level overview of the database",
	Long: `Display aggregate statistics about everything stored in the database:
game and event counts, date range, map breakdown and most active players.
Map and player sections honour the validity policy flags.`,
	Args: cobra.NoArgs,
	RunE: runSummary,
}

func runSummary(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ov, err := db.GetDBOverview(ctx)
	if err != nil {
		return fmt.Errorf("get overview: %w", err)
	}
	if ov.Games == 0 && ov.Events == 0 {
		fmt.Fprintln(os.Stdout, "No games stored yet. Run 'hllmetrics ingest <dir>' to add some.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "\n=== Database Summary ===\n\n")
	fmt.Fprintf(os.Stdout, "  Games stored  : %s (%s ended, %s open or abandoned)\n",
		humanize.Comma(int64(ov.Games)), humanize.Comma(int64(ov.EndedGames)), humanize.Comma(int64(ov.OpenGames)))
	fmt.Fprintf(os.Stdout, "  Excluded      : %s (%s seeding)\n",
		humanize.Comma(int64(ov.ExcludedGames)), humanize.Comma(int64(ov.SeedingGames)))
	fmt.Fprintf(os.Stdout, "  Date range    : %s -> %s\n", ov.EarliestGame, ov.LatestGame)
	fmt.Fprintf(os.Stdout, "  Servers       : %d\n", ov.Servers)
	fmt.Fprintf(os.Stdout, "  Players seen  : %s\n", humanize.Comma(int64(ov.Players)))
	fmt.Fprintf(os.Stdout, "  Events        : %s (%s outside any game)\n",
		humanize.Comma(int64(ov.Events)), humanize.Comma(int64(ov.Unassigned)))
	fmt.Fprintf(os.Stdout, "  Files         : %s\n", humanize.Comma(int64(ov.Files)))

	maps, err := db.GetMapStats(ctx, policy())
	if err != nil {
		return fmt.Errorf("get map stats: %w", err)
	}
	fmt.Fprintf(os.Stdout, "\n--- Maps ---\n\n")
	mt := tablewriter.NewTable(os.Stdout, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignRight}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignCenter}},
	}))
	mt.Header("MAP", "GAMES", "ALLIES WINS", "AXIS WINS", "ALLIES WIN%", "AVG MIN")
	for _, m := range maps {
		total := m.AlliesWins + m.AxisWins
		alliesPct := 0.0
		if total > 0 {
			alliesPct = 100.0 * float64(m.AlliesWins) / float64(total)
		}
		mt.Append(
			m.MapName,
			fmt.Sprintf("%d", m.Games),
			fmt.Sprintf("%d", m.AlliesWins),
			fmt.Sprintf("%d", m.AxisWins),
			fmt.Sprintf("%.0f%%", alliesPct),
			fmt.Sprintf("%.0f", m.AvgMinutes),
		)
	}
	mt.Render()

	players, err := db.GetTopPlayersByGames(ctx, policy(), 10)
	if err != nil {
		return fmt.Errorf("get top players: %w", err)
	}
	fmt.Fprintf(os.Stdout, "\n--- Most Active Players ---\n\n")
	pt := tablewriter.NewTable(os.Stdout, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignRight}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignCenter}},
	}))
	pt.Header("NAME", "PLAYER ID", "GAMES", "KILLS", "AVG KPM", "AVG SCORE")
	for _, p := range players {
		pt.Append(
			p.Name,
			p.PlayerID,
			fmt.Sprintf("%d", p.Games),
			humanize.Comma(int64(p.Kills)),
			fmt.Sprintf("%.2f", p.AvgKPM),
			fmt.Sprintf("%.3f", p.AvgScore),
		)
	}
	pt.Render()
	return nil
}
