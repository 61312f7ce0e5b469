package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"

	"github.com/pable/go-hll-metrics/internal/classify"
	"github.com/pable/go-hll-metrics/internal/model"
)

// sqlite's default limit on bound variables is 32766; stay far below it.
const inChunk = 500

type scanner interface {
	Scan(dest ...any) error
}

// ---- Games ----

var gameColumns = []string{
	"game_key", "server", "number", "start_time", "end_time", "ended", "seeding",
	"map", "mode", "allied_score", "axis_score", "winner", "duration",
}

func scanGame(s scanner) (model.Game, error) {
	var (
		g              model.Game
		start          string
		end            sql.NullString
		ended, seeding int
		mapName, mode  sql.NullString
		allied, axis   sql.NullInt64
		winner         sql.NullString
		duration       sql.NullInt64
	)
	if err := s.Scan(&g.Key, &g.Server, &g.Number, &start, &end, &ended, &seeding,
		&mapName, &mode, &allied, &axis, &winner, &duration); err != nil {
		return g, err
	}
	var err error
	if g.StartTime, err = parseTime(start); err != nil {
		return g, err
	}
	if end.Valid {
		t, err := parseTime(end.String)
		if err != nil {
			return g, err
		}
		g.EndTime = &t
	}
	g.Ended = ended != 0
	g.Seeding = seeding != 0
	g.Map = nullString(mapName)
	g.Mode = nullString(mode)
	g.AlliedScore = nullInt(allied)
	g.AxisScore = nullInt(axis)
	g.Duration = nullInt(duration)
	if winner.Valid {
		w := model.Side(winner.String)
		g.Winner = &w
	}
	return g, nil
}

// UpsertGames inserts or updates game rows, recording their exclusion label.
func (t *Tx) UpsertGames(ctx context.Context, games []*model.Game) error {
	for _, g := range games {
		var winner sql.NullString
		if g.Winner != nil {
			winner = sql.NullString{String: string(*g.Winner), Valid: true}
		}
		_, err := t.sb.Insert("games").
			Columns(append(gameColumns, "exclusion")...).
			Values(g.Key, g.Server, g.Number, formatTime(g.StartTime), nullTime(g.EndTime),
				boolInt(g.Ended), boolInt(g.Seeding), g.Map, g.Mode,
				g.AlliedScore, g.AxisScore, winner, g.Duration,
				classify.Label(classify.Reasons(g))).
			Suffix(`ON CONFLICT(game_key) DO UPDATE SET
				end_time = excluded.end_time, ended = excluded.ended, seeding = excluded.seeding,
				map = excluded.map, mode = excluded.mode,
				allied_score = excluded.allied_score, axis_score = excluded.axis_score,
				winner = excluded.winner, duration = excluded.duration,
				exclusion = excluded.exclusion`).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("upsert game %s: %w", g.Key, err)
		}
	}
	return nil
}

// GameFilter narrows ListGames.
type GameFilter struct {
	Server    string
	EndedOnly bool
	Limit     uint64
}

// ListGames returns stored games, newest first.
func (db *DB) ListGames(ctx context.Context, f GameFilter) ([]model.Game, error) {
	q := db.sb.Select(gameColumns...).From("games").OrderBy("start_time DESC", "game_key")
	if f.Server != "" {
		q = q.Where(sq.Eq{"server": f.Server})
	}
	if f.EndedOnly {
		q = q.Where(sq.Eq{"ended": 1})
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return db.queryGames(ctx, q)
}

// OpenGames returns games that have not seen MATCH ENDED, oldest first.
func (db *DB) OpenGames(ctx context.Context) ([]model.Game, error) {
	q := db.sb.Select(gameColumns...).From("games").
		Where(sq.Eq{"ended": 0}).
		OrderBy("start_time", "game_key")
	return db.queryGames(ctx, q)
}

func (db *DB) queryGames(ctx context.Context, q sq.SelectBuilder) ([]model.Game, error) {
	rows, err := q.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query games: %w", err)
	}
	defer rows.Close()

	var out []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GetGameByPrefix finds the first game whose key starts with the given prefix.
// An exact key match wins over a longer key sharing the prefix. It returns
// ErrNotFound when no key matches.
func (db *DB) GetGameByPrefix(ctx context.Context, prefix string) (*model.Game, error) {
	row := db.sb.Select(gameColumns...).From("games").
		Where(sq.Expr("substr(game_key, 1, ?) = ?", utf8.RuneCountInString(prefix), prefix)).
		OrderByClause("game_key = ? DESC", prefix).
		OrderBy("start_time DESC").
		Limit(1).
		QueryRowContext(ctx)
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("game %q: %w", prefix, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// LastGameNumbers returns the highest game number stored per server.
func (db *DB) LastGameNumbers(ctx context.Context) (map[string]int, error) {
	rows, err := db.sb.Select("server", "MAX(number)").From("games").GroupBy("server").QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("last game numbers: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var server string
		var n int
		if err := rows.Scan(&server, &n); err != nil {
			return nil, err
		}
		out[server] = n
	}
	return out, rows.Err()
}

// ---- Events ----

var eventColumns = []string{
	"id", "event_time", "creation_time", "type",
	"player1_id", "player1_name", "player2_id", "player2_name",
	"weapon", "content", "raw", "server", "game_key",
}

// InsertEvents stores events, ignoring ids that are already present.
// It returns the number of rows actually inserted.
func (t *Tx) InsertEvents(ctx context.Context, events []model.RawEvent) (int64, error) {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO events(`+strings.Join(eventColumns, ", ")+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var inserted int64
	for i := range events {
		e := &events[i]
		var p1id, p1name, p2id, p2name sql.NullString
		if e.Player1 != nil {
			p1id = sql.NullString{String: e.Player1.ID, Valid: true}
			p1name = sql.NullString{String: e.Player1.Name, Valid: true}
		}
		if e.Player2 != nil {
			p2id = sql.NullString{String: e.Player2.ID, Valid: true}
			p2name = sql.NullString{String: e.Player2.Name, Valid: true}
		}
		res, err := stmt.ExecContext(ctx,
			e.ID, formatTime(e.EventTime), nullTime(&e.CreationTime), string(e.Type),
			p1id, p1name, p2id, p2name,
			e.Weapon, e.Content, e.Raw, e.Server, e.GameKey,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert event %d: %w", e.ID, err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}
	return inserted, nil
}

func scanEvent(s scanner) (model.RawEvent, error) {
	var (
		e                          model.RawEvent
		eventTime                  string
		creation                   sql.NullString
		typ                        string
		p1id, p1name, p2id, p2name sql.NullString
		weapon, gameKey            sql.NullString
	)
	if err := s.Scan(&e.ID, &eventTime, &creation, &typ, &p1id, &p1name, &p2id, &p2name,
		&weapon, &e.Content, &e.Raw, &e.Server, &gameKey); err != nil {
		return e, err
	}
	var err error
	if e.EventTime, err = parseTime(eventTime); err != nil {
		return e, err
	}
	if creation.Valid {
		if e.CreationTime, err = parseTime(creation.String); err != nil {
			return e, err
		}
	}
	e.Type = model.EventType(typ)
	if p1id.Valid {
		e.Player1 = &model.Actor{ID: p1id.String, Name: p1name.String}
	}
	if p2id.Valid {
		e.Player2 = &model.Actor{ID: p2id.String, Name: p2name.String}
	}
	e.Weapon = nullString(weapon)
	e.GameKey = nullString(gameKey)
	return e, nil
}

// GameEvents returns a game's events in time order.
func (db *DB) GameEvents(ctx context.Context, gameKey string) ([]model.RawEvent, error) {
	rows, err := db.sb.Select(eventColumns...).From("events").
		Where(sq.Eq{"game_key": gameKey}).
		OrderBy("event_time", "id").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("game events %s: %w", gameKey, err)
	}
	defer rows.Close()

	var out []model.RawEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// KnownEventIDs reports which of ids are already stored.
func (db *DB) KnownEventIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	known := make(map[int64]bool)
	for start := 0; start < len(ids); start += inChunk {
		end := min(start+inChunk, len(ids))
		rows, err := db.sb.Select("id").From("events").
			Where(sq.Eq{"id": ids[start:end]}).
			QueryContext(ctx)
		if err != nil {
			return nil, fmt.Errorf("known event ids: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			known[id] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return known, nil
}

// ---- Players ----

// PlayerName is one name a player was seen under.
type PlayerName struct {
	PlayerID  string
	Name      string
	FirstSeen time.Time
}

// UpsertPlayers merges sightings into the players table. The current name is
// the one carried by the latest sighting.
func (t *Tx) UpsertPlayers(ctx context.Context, players []model.Player) error {
	for _, p := range players {
		_, err := t.sb.Insert("players").
			Columns("player_id", "name", "first_seen", "last_seen").
			Values(p.ID, p.CurrentName, formatTime(p.FirstSeen), formatTime(p.LastSeen)).
			Suffix(`ON CONFLICT(player_id) DO UPDATE SET
				name = CASE WHEN excluded.last_seen >= players.last_seen THEN excluded.name ELSE players.name END,
				first_seen = min(players.first_seen, excluded.first_seen),
				last_seen = max(players.last_seen, excluded.last_seen)`).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("upsert player %s: %w", p.ID, err)
		}
	}
	return nil
}

// InsertPlayerNames appends to the name history, keeping the earliest sighting.
func (t *Tx) InsertPlayerNames(ctx context.Context, names []PlayerName) error {
	for _, n := range names {
		_, err := t.sb.Insert("player_names").
			Columns("player_id", "name", "first_seen").
			Values(n.PlayerID, n.Name, formatTime(n.FirstSeen)).
			Suffix(`ON CONFLICT(player_id, name) DO UPDATE SET
				first_seen = min(player_names.first_seen, excluded.first_seen)`).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("insert name %s/%s: %w", n.PlayerID, n.Name, err)
		}
	}
	return nil
}

// InsertGamePlayers records game membership; existing pairs are ignored.
func (t *Tx) InsertGamePlayers(ctx context.Context, gameKey string, playerIDs []string) error {
	for _, id := range playerIDs {
		_, err := t.sb.Insert("game_players").
			Options("OR IGNORE").
			Columns("game_key", "player_id").
			Values(gameKey, id).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("insert game player %s/%s: %w", gameKey, id, err)
		}
	}
	return nil
}

// GetPlayer returns a player by id, or ErrNotFound if unknown.
func (db *DB) GetPlayer(ctx context.Context, id string) (*model.Player, error) {
	var p model.Player
	var first, last string
	err := db.sb.Select("player_id", "name", "first_seen", "last_seen").From("players").
		Where(sq.Eq{"player_id": id}).
		QueryRowContext(ctx).
		Scan(&p.ID, &p.CurrentName, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if p.FirstSeen, err = parseTime(first); err != nil {
		return nil, err
	}
	if p.LastSeen, err = parseTime(last); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPlayerNames returns every name a player used, oldest first.
func (db *DB) GetPlayerNames(ctx context.Context, id string) ([]PlayerName, error) {
	rows, err := db.sb.Select("name", "first_seen").From("player_names").
		Where(sq.Eq{"player_id": id}).
		OrderBy("first_seen", "name").
		QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PlayerName
	for rows.Next() {
		n := PlayerName{PlayerID: id}
		var first string
		if err := rows.Scan(&n.Name, &first); err != nil {
			return nil, err
		}
		if n.FirstSeen, err = parseTime(first); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// ---- Processed files ----

// MarkProcessed records files whose events were committed.
func (t *Tx) MarkProcessed(ctx context.Context, files []model.ProcessedFile) error {
	for _, f := range files {
		_, err := t.sb.Insert("processed_files").
			Options("OR REPLACE").
			Columns("name", "run_id", "ingested_at").
			Values(f.Name, f.RunID, formatTime(f.IngestedAt)).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("mark processed %s: %w", f.Name, err)
		}
	}
	return nil
}

// ProcessedFiles returns the set of already ingested file names.
func (db *DB) ProcessedFiles(ctx context.Context) (map[string]bool, error) {
	rows, err := db.sb.Select("name").From("processed_files").QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("processed files: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

// ---- Raw ----

// QueryRaw runs an arbitrary query and returns column names and stringified rows.
func (db *DB) QueryRaw(ctx context.Context, query string) ([]string, [][]string, error) {
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}
	var out [][]string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			switch x := v.(type) {
			case nil:
				row[i] = "NULL"
			case []byte:
				row[i] = string(x)
			default:
				row[i] = fmt.Sprint(x)
			}
		}
		out = append(out, row)
	}
	return cols, out, rows.Err()
}

// ---- helpers ----

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
