package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/pable/go-hll-metrics/internal/classify"
	"github.com/pable/go-hll-metrics/internal/model"
)

var statsColumns = []string{
	"s.game_key", "s.player_id", "COALESCE(p.name, '')", "s.connected_seconds",
	"s.kills", "s.deaths", "s.team_kills", "s.team_deaths",
	"s.kpm", "s.dpm", "s.ratio", "s.growth_factor", "s.score", "s.weighted_kpm",
	"s.kill_dist", "s.death_dist", "s.team_kill_dist", "s.team_death_dist",
	"s.weapon_kills", "s.weapon_deaths", "s.victims", "s.nemesis",
}

// ReplaceGameStats replaces every stats row of a game. Stats are derived
// data, so a recompute drops rows of players that no longer qualify.
func (t *Tx) ReplaceGameStats(ctx context.Context, gameKey string, stats []model.PlayerGameStats) error {
	if _, err := t.sb.Delete("player_game_stats").Where(sq.Eq{"game_key": gameKey}).ExecContext(ctx); err != nil {
		return fmt.Errorf("clear stats %s: %w", gameKey, err)
	}
	if len(stats) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO player_game_stats(
			game_key, player_id, connected_seconds,
			kills, deaths, team_kills, team_deaths,
			kpm, dpm, ratio, growth_factor, score, weighted_kpm,
			kill_dist, death_dist, team_kill_dist, team_death_dist,
			weapon_kills, weapon_deaths, victims, nemesis
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range stats {
		blobs, err := encodeJSON(s.KillDist, s.DeathDist, s.TeamKillDist, s.TeamDeathDist,
			s.WeaponKills, s.WeaponDeaths, s.Victims, s.Nemesis)
		if err != nil {
			return fmt.Errorf("encode stats %s/%s: %w", gameKey, s.PlayerID, err)
		}
		_, err = stmt.ExecContext(ctx,
			gameKey, s.PlayerID, s.ConnectedSeconds,
			s.Kills, s.Deaths, s.TeamKills, s.TeamDeaths,
			s.KPM, s.DPM, s.Ratio, s.GrowthFactor, s.Score, s.WeightedKPM,
			blobs[0], blobs[1], blobs[2], blobs[3],
			blobs[4], blobs[5], blobs[6], blobs[7],
		)
		if err != nil {
			return fmt.Errorf("insert player_game_stats for %s/%s: %w", gameKey, s.PlayerID, err)
		}
	}
	return nil
}

func encodeJSON(vs ...any) ([]string, error) {
	out := make([]string, len(vs))
	for i, v := range vs {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if string(b) == "null" {
			b = []byte("{}")
		}
		out[i] = string(b)
	}
	return out, nil
}

func scanStats(s scanner, extra ...any) (model.PlayerGameStats, error) {
	var st model.PlayerGameStats
	var blobs [8]string
	dest := []any{
		&st.GameKey, &st.PlayerID, &st.Name, &st.ConnectedSeconds,
		&st.Kills, &st.Deaths, &st.TeamKills, &st.TeamDeaths,
		&st.KPM, &st.DPM, &st.Ratio, &st.GrowthFactor, &st.Score, &st.WeightedKPM,
		&blobs[0], &blobs[1], &blobs[2], &blobs[3],
		&blobs[4], &blobs[5], &blobs[6], &blobs[7],
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return st, err
	}
	targets := []any{
		&st.KillDist, &st.DeathDist, &st.TeamKillDist, &st.TeamDeathDist,
		&st.WeaponKills, &st.WeaponDeaths, &st.Victims, &st.Nemesis,
	}
	for i, target := range targets {
		if err := json.Unmarshal([]byte(blobs[i]), target); err != nil {
			return st, fmt.Errorf("decode stats %s/%s: %w", st.GameKey, st.PlayerID, err)
		}
	}
	return st, nil
}

// GetGameStats returns all player stats of a game, ordered by kills DESC.
func (db *DB) GetGameStats(ctx context.Context, gameKey string) ([]model.PlayerGameStats, error) {
	rows, err := db.sb.Select(statsColumns...).
		From("player_game_stats s").
		LeftJoin("players p ON p.player_id = s.player_id").
		Where(sq.Eq{"s.game_key": gameKey}).
		OrderBy("s.kills DESC", "s.player_id").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("game stats %s: %w", gameKey, err)
	}
	defer rows.Close()

	var out []model.PlayerGameStats
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// PlayerQuery selects a player's per-game stats.
type PlayerQuery struct {
	PlayerID string
	Policy   classify.Policy
	From     *time.Time // inclusive, on game start
	To       *time.Time // exclusive
}

func (q PlayerQuery) where() sq.And {
	conds := sq.And{sq.Eq{"s.player_id": q.PlayerID}, q.Policy.Where("g.")}
	if q.From != nil {
		conds = append(conds, sq.GtOrEq{"g.start_time": formatTime(*q.From)})
	}
	if q.To != nil {
		conds = append(conds, sq.Lt{"g.start_time": formatTime(*q.To)})
	}
	return conds
}

// GetPlayerGameStats returns a player's stats across admitted games, oldest first.
// StartTime and MapName are populated from the games table.
func (db *DB) GetPlayerGameStats(ctx context.Context, q PlayerQuery) ([]model.PlayerGameStats, error) {
	rows, err := db.sb.Select(append(statsColumns, "g.start_time", "COALESCE(g.map, '')")...).
		From("player_game_stats s").
		Join("games g ON g.game_key = s.game_key").
		LeftJoin("players p ON p.player_id = s.player_id").
		Where(q.where()).
		OrderBy("g.start_time", "g.game_key").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("player stats %s: %w", q.PlayerID, err)
	}
	defer rows.Close()

	var out []model.PlayerGameStats
	for rows.Next() {
		var start, mapName string
		st, err := scanStats(rows, &start, &mapName)
		if err != nil {
			return nil, err
		}
		st.MapName = mapName
		if st.StartTime, err = parseTime(start); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ---- Cursors ----

// EndedGames iterates over every ended game in key order, pageSize rows at a time.
func (db *DB) EndedGames(pageSize uint64) *Cursor[model.Game] {
	return NewCursor(pageSize, func(ctx context.Context, after string, limit uint64) ([]model.Game, string, error) {
		games, err := db.queryGames(ctx, db.sb.Select(gameColumns...).From("games").
			Where(sq.Eq{"ended": 1}).
			Where(sq.Gt{"game_key": after}).
			OrderBy("game_key").
			Limit(limit))
		if err != nil || len(games) == 0 {
			return nil, "", err
		}
		return games, games[len(games)-1].Key, nil
	})
}
