package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pable/go-hll-metrics/internal/classify"
)

var (
	ErrUnknownMetric = errors.New("unknown metric")
	ErrUnknownGroup  = errors.New("unknown grouping")
)

// DBOverview is a high-level summary of the store.
type DBOverview struct {
	Games         int
	EndedGames    int
	OpenGames     int
	SeedingGames  int
	ExcludedGames int
	Events        int
	Unassigned    int // events stored without a game
	Players       int
	Files         int
	Servers       int
	EarliestGame  string
	LatestGame    string
}

// GetDBOverview returns aggregate counts over the whole store.
func (db *DB) GetDBOverview(ctx context.Context) (DBOverview, error) {
	var ov DBOverview
	var earliest, latest sql.NullString
	err := db.conn.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(1) FROM games),
			(SELECT COUNT(1) FROM games WHERE ended = 1),
			(SELECT COUNT(1) FROM games WHERE ended = 0),
			(SELECT COUNT(1) FROM games WHERE seeding = 1),
			(SELECT COUNT(1) FROM games WHERE exclusion <> ''),
			(SELECT COUNT(1) FROM events),
			(SELECT COUNT(1) FROM events WHERE game_key IS NULL),
			(SELECT COUNT(1) FROM players),
			(SELECT COUNT(1) FROM processed_files),
			(SELECT COUNT(DISTINCT server) FROM games),
			(SELECT MIN(start_time) FROM games),
			(SELECT MAX(start_time) FROM games)`).
		Scan(&ov.Games, &ov.EndedGames, &ov.OpenGames, &ov.SeedingGames, &ov.ExcludedGames,
			&ov.Events, &ov.Unassigned, &ov.Players, &ov.Files, &ov.Servers, &earliest, &latest)
	if err != nil {
		return ov, fmt.Errorf("overview: %w", err)
	}
	ov.EarliestGame = dateOf(earliest)
	ov.LatestGame = dateOf(latest)
	return ov, nil
}

func dateOf(s sql.NullString) string {
	if !s.Valid || len(s.String) < 10 {
		return "-"
	}
	return s.String[:10]
}

// MapStat counts games and wins per map.
type MapStat struct {
	MapName    string
	Games      int
	AlliesWins int
	AxisWins   int
	AvgMinutes float64
}

// GetMapStats returns per-map results over admitted games, most played first.
func (db *DB) GetMapStats(ctx context.Context, policy classify.Policy) ([]MapStat, error) {
	rows, err := db.sb.Select(
		"COALESCE(g.map, '?')",
		"COUNT(1)",
		"SUM(CASE WHEN g.winner = 'allies' THEN 1 ELSE 0 END)",
		"SUM(CASE WHEN g.winner = 'axis' THEN 1 ELSE 0 END)",
		"COALESCE(AVG(g.duration), 0) / 60.0",
	).
		From("games g").
		Where(policy.Where("g.")).
		GroupBy("g.map").
		OrderBy("COUNT(1) DESC", "g.map").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("map stats: %w", err)
	}
	defer rows.Close()

	var out []MapStat
	for rows.Next() {
		var m MapStat
		if err := rows.Scan(&m.MapName, &m.Games, &m.AlliesWins, &m.AxisWins, &m.AvgMinutes); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TopPlayer is one row of the most-active-players list.
type TopPlayer struct {
	PlayerID string
	Name     string
	Games    int
	Kills    int
	AvgKPM   float64
	AvgScore float64
}

// GetTopPlayersByGames returns the players with the most admitted games.
func (db *DB) GetTopPlayersByGames(ctx context.Context, policy classify.Policy, limit uint64) ([]TopPlayer, error) {
	rows, err := db.sb.Select(
		"s.player_id", "COALESCE(p.name, '')", "COUNT(1)", "SUM(s.kills)", "AVG(s.kpm)", "AVG(s.score)",
	).
		From("player_game_stats s").
		Join("games g ON g.game_key = s.game_key").
		LeftJoin("players p ON p.player_id = s.player_id").
		Where(policy.Where("g.")).
		GroupBy("s.player_id").
		OrderBy("COUNT(1) DESC", "SUM(s.kills) DESC", "s.player_id").
		Limit(limit).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("top players: %w", err)
	}
	defer rows.Close()

	var out []TopPlayer
	for rows.Next() {
		var p TopPlayer
		if err := rows.Scan(&p.PlayerID, &p.Name, &p.Games, &p.Kills, &p.AvgKPM, &p.AvgScore); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ---- Series ----

// SeriesMetrics maps the metric names accepted by MetricSeries to stats columns.
var SeriesMetrics = map[string]string{
	"kills":        "s.kills",
	"deaths":       "s.deaths",
	"team_kills":   "s.team_kills",
	"kpm":          "s.kpm",
	"dpm":          "s.dpm",
	"ratio":        "s.ratio",
	"score":        "s.score",
	"weighted_kpm": "s.weighted_kpm",
	"gf":           "s.growth_factor",
	"minutes":      "s.connected_seconds / 60.0",
}

// seriesGroups maps grouping names to a bucket expression over the fixed
// width start_time text.
var seriesGroups = map[string]string{
	"game":  "g.start_time",
	"day":   "substr(g.start_time, 1, 10)",
	"week":  "strftime('%Y-W%W', substr(g.start_time, 1, 10))",
	"month": "substr(g.start_time, 1, 7)",
}

// SeriesPoint is one bucket of a metric series.
type SeriesPoint struct {
	Bucket string
	Value  float64
	Games  int
}

// SeriesQuery selects a metric series for one player.
type SeriesQuery struct {
	PlayerQuery
	Metric string
	Group  string
}

// MetricSeries returns the per-bucket mean of a metric for one player over
// admitted games, ordered by bucket.
func (db *DB) MetricSeries(ctx context.Context, q SeriesQuery) ([]SeriesPoint, error) {
	col, ok := SeriesMetrics[q.Metric]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, q.Metric)
	}
	bucket, ok := seriesGroups[q.Group]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, q.Group)
	}

	rows, err := db.sb.Select(bucket+" AS bucket", "AVG("+col+")", "COUNT(1)").
		From("player_game_stats s").
		Join("games g ON g.game_key = s.game_key").
		Where(q.where()).
		GroupBy("bucket").
		OrderBy("bucket").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("metric series: %w", err)
	}
	defer rows.Close()

	var out []SeriesPoint
	for rows.Next() {
		var p SeriesPoint
		if err := rows.Scan(&p.Bucket, &p.Value, &p.Games); err != nil {
			return nil, err
		}
		if q.Group == "game" {
			if t, err := parseTime(p.Bucket); err == nil {
				p.Bucket = t.Format(time.RFC3339)
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
