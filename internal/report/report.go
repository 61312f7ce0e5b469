package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/pable/go-hll-metrics/internal/classify"
	"github.com/pable/go-hll-metrics/internal/model"
)

const dateLayout = "2006-01-02 15:04"

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignRight},
		},
		Header: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignCenter},
		},
	}))
}

// FormatDuration renders whole seconds as "1h02m03s" / "12m05s".
func FormatDuration(secs int) string {
	if secs < 0 {
		secs = 0
	}
	h, m, s := secs/3600, secs%3600/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// FormatScore renders the final score as "allied - axis", or "-" when unknown.
func FormatScore(g *model.Game) string {
	if g.AlliedScore == nil || g.AxisScore == nil {
		return "-"
	}
	return fmt.Sprintf("%d - %d", *g.AlliedScore, *g.AxisScore)
}

func winner(g *model.Game) string {
	if g.Winner == nil {
		return "-"
	}
	return string(*g.Winner)
}

func flags(g *model.Game) string {
	label := classify.Label(classify.Reasons(g))
	if label == "" {
		return "-"
	}
	return label
}

// PrintGameHeader prints a one-line summary header for the game.
func PrintGameHeader(w io.Writer, g *model.Game) {
	end := "open"
	if g.EndTime != nil {
		end = g.EndTime.Format(dateLayout)
	}
	fmt.Fprintf(w, "\nGame: %s  |  Map: %s  |  Mode: %s  |  %s -> %s  |  Duration: %s  |  Score: %s  |  Winner: %s\n",
		g.Key, g.MapName(), g.ModeName(), g.StartTime.Format(dateLayout), end,
		FormatDuration(g.DurationSeconds()), FormatScore(g), winner(g))
	if label := classify.Label(classify.Reasons(g)); label != "" {
		fmt.Fprintf(w, "Excluded from aggregates by default: %s\n", label)
	}
	fmt.Fprintln(w)
}

// PrintGamesList prints one row per game.
func PrintGamesList(w io.Writer, games []model.Game) {
	table := newTable(w)
	table.Header("KEY", "START", "MAP", "MODE", "DURATION", "SCORE", "WINNER", "FLAGS")
	for i := range games {
		g := &games[i]
		table.Append(
			g.Key,
			g.StartTime.Format(dateLayout),
			g.MapName(),
			g.ModeName(),
			FormatDuration(g.DurationSeconds()),
			FormatScore(g),
			winner(g),
			flags(g),
		)
	}
	table.Render()
}

// PrintPlayerTable prints the per-player stats of one game.
// If focusID is non-empty, that player's row is marked with ">".
func PrintPlayerTable(w io.Writer, stats []model.PlayerGameStats, focusID string) {
	table := newTable(w)
	table.Header(" ", "NAME", "MIN", "K", "D", "TK", "TD", "K/D", "KPM", "DPM", "GF", "SCORE", "W_KPM")

	for i := range stats {
		s := &stats[i]
		marker := " "
		if focusID != "" && s.PlayerID == focusID {
			marker = ">"
		}
		table.Append(
			marker,
			displayName(s.Name, s.PlayerID),
			fmt.Sprintf("%.0f", s.ConnectedSeconds/60),
			strconv.Itoa(s.Kills),
			strconv.Itoa(s.Deaths),
			strconv.Itoa(s.TeamKills),
			strconv.Itoa(s.TeamDeaths),
			fmt.Sprintf("%.2f", s.Ratio),
			fmt.Sprintf("%.2f", s.KPM),
			fmt.Sprintf("%.2f", s.DPM),
			fmt.Sprintf("%.3f", s.GrowthFactor),
			fmt.Sprintf("%.3f", s.Score),
			fmt.Sprintf("%.2f", s.WeightedKPM),
		)
	}
	table.Render()
}

type weaponRow struct {
	name, weapon  string
	kills, deaths int
}

// PrintWeaponTable prints a per-player weapon breakdown, most kills first.
// If focusID is non-empty, only rows for that player are shown.
func PrintWeaponTable(w io.Writer, stats []model.PlayerGameStats, focusID string) {
	var rows []weaponRow
	for i := range stats {
		s := &stats[i]
		if focusID != "" && s.PlayerID != focusID {
			continue
		}
		name := displayName(s.Name, s.PlayerID)
		seen := make(map[string]bool)
		for weapon, k := range s.WeaponKills {
			seen[weapon] = true
			rows = append(rows, weaponRow{name, weapon, k, s.WeaponDeaths[weapon]})
		}
		for weapon, d := range s.WeaponDeaths {
			if !seen[weapon] {
				rows = append(rows, weaponRow{name, weapon, 0, d})
			}
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].kills != rows[j].kills {
			return rows[i].kills > rows[j].kills
		}
		if rows[i].name != rows[j].name {
			return rows[i].name < rows[j].name
		}
		return rows[i].weapon < rows[j].weapon
	})

	table := newTable(w)
	table.Header("PLAYER", "WEAPON", "K", "D")
	for _, r := range rows {
		table.Append(r.name, r.weapon, strconv.Itoa(r.kills), strconv.Itoa(r.deaths))
	}
	table.Render()
}

// TopCounts returns the n largest entries of m, ties broken by key.
func TopCounts(m map[string]int, n int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	if n > 0 && len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

// PrintRivalTable lists a player's most frequent victims and killers.
// names resolves player ids; unknown ids are printed as is.
func PrintRivalTable(w io.Writer, victims, nemesis map[string]int, names map[string]string, limit int) {
	v := TopCounts(victims, limit)
	k := TopCounts(nemesis, limit)

	table := newTable(w)
	table.Header("VICTIM", "KILLS", "KILLED BY", "DEATHS")
	for i := 0; i < max(len(v), len(k)); i++ {
		row := []string{"", "", "", ""}
		if i < len(v) {
			row[0], row[1] = displayName(names[v[i]], v[i]), strconv.Itoa(victims[v[i]])
		}
		if i < len(k) {
			row[2], row[3] = displayName(names[k[i]], k[i]), strconv.Itoa(nemesis[k[i]])
		}
		table.Append(row[0], row[1], row[2], row[3])
	}
	table.Render()
}

// ---- Cross-game ----

// PrintPlayerOverview prints a player's aggregate over admitted games,
// with KPM quantiles across those games.
func PrintPlayerOverview(w io.Writer, agg model.PlayerAggregate, q Quantiles) {
	table := newTable(w)
	table.Header("NAME", "GAMES", "HOURS", "K", "D", "K/D", "TK", "KPM", "AVG_KPM", "KPM P10/P50/P90", "AVG_SCORE", "AVG_W_KPM")
	table.Append(
		displayName(agg.Name, agg.PlayerID),
		humanize.Comma(int64(agg.Games)),
		fmt.Sprintf("%.1f", agg.ConnectedSeconds/3600),
		humanize.Comma(int64(agg.Kills)),
		humanize.Comma(int64(agg.Deaths)),
		fmt.Sprintf("%.2f", agg.KDRatio()),
		humanize.Comma(int64(agg.TeamKills)),
		fmt.Sprintf("%.2f", agg.OverallKPM()),
		fmt.Sprintf("%.2f", agg.AvgKPM),
		q.String(),
		fmt.Sprintf("%.3f", agg.AvgScore),
		fmt.Sprintf("%.2f", agg.AvgWeightedKPM),
	)
	table.Render()
}

// PrintPlayerGames prints one row per game from a player's cross-game stats,
// as returned by storage.GetPlayerGameStats.
func PrintPlayerGames(w io.Writer, stats []model.PlayerGameStats) {
	table := newTable(w)
	table.Header("DATE", "GAME", "MAP", "MIN", "K", "D", "KPM", "SCORE", "W_KPM")
	for i := range stats {
		s := &stats[i]
		table.Append(
			s.StartTime.Format(dateLayout),
			s.GameKey,
			s.MapName,
			fmt.Sprintf("%.0f", s.ConnectedSeconds/60),
			strconv.Itoa(s.Kills),
			strconv.Itoa(s.Deaths),
			fmt.Sprintf("%.2f", s.KPM),
			fmt.Sprintf("%.3f", s.Score),
			fmt.Sprintf("%.2f", s.WeightedKPM),
		)
	}
	table.Render()
}

func displayName(name, id string) string {
	if name == "" {
		return id
	}
	return name
}
