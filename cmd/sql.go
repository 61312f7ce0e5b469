package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
)

var sqlCmd = &cobra.Command{
	Use:   "sql <query>",
	Short: "Run a raw SQL query against the metrics database",
	Long: `Run an arbitrary SQL query against the metrics database and print results as a table.

Schema overview:
  games(game_key, server, number, start_time, end_time, ended, seeding, map, mode,
    allied_score, axis_score, winner, duration, exclusion)
  events(id, event_time, creation_time, type, player1_id, player1_name,
    player2_id, player2_name, weapon, content, raw, server, game_key)
  players(player_id, name, first_seen, last_seen)
  player_names(player_id, name, first_seen)
  game_players(game_key, player_id)
  player_game_stats(game_key, player_id, connected_seconds, kills, deaths,
    team_kills, team_deaths, kpm, dpm, ratio, growth_factor, score, weighted_kpm,
    kill_dist, death_dist, weapon_kills, weapon_deaths, victims, nemesis, ...)
  processed_files(name, run_id, ingested_at)

Timestamps are UTC text (2006-01-02T15:04:05.000000000Z) and sort as strings.
Distributions and histograms are JSON text: use json_extract / json_each.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSQL,
}

func runSQL(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	cols, rows, err := db.QueryRaw(cmd.Context(), query)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("(no rows)")
		return nil
	}

	table := tablewriter.NewTable(os.Stdout, tablewriter.WithConfig(tablewriter.Config{
		Row:    tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignRight}},
		Header: tw.CellConfig{Alignment: tw.CellAlignment{Global: tw.AlignCenter}},
	}))

	colsAny := make([]any, len(cols))
	for i, c := range cols {
		colsAny[i] = c
	}
	table.Header(colsAny...)

	for _, row := range rows {
		rowAny := make([]any, len(row))
		for i, v := range row {
			rowAny[i] = v
		}
		table.Append(rowAny...)
	}
	table.Render()
	fmt.Fprintf(os.Stdout, "\n(%d rows)\n", len(rows))
	return nil
}

