package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

var (
	ErrMigrate = errors.New("schema migration failed")
	// ErrNotFound is returned by single-row lookups that match nothing.
	ErrNotFound = errors.New("not found")
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps a sql.DB for the metrics store.
type DB struct {
	conn *sql.DB
	sb   sq.StatementBuilderType
}

// Open opens (or creates) the SQLite database at the given path and migrates the schema.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	conn.SetMaxOpenConns(1)

	if err := migrateUp(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{
		conn: conn,
		sb:   sq.StatementBuilder.PlaceholderFormat(sq.Question).RunWith(conn),
	}, nil
}

func migrateUp(conn *sql.DB) error {
	driver, err := migratesqlite.WithInstance(conn, &migratesqlite.Config{MigrationsTable: "_migration"})
	if err != nil {
		return errors.Join(err, ErrMigrate)
	}
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Join(err, ErrMigrate)
	}
	// The migrator is not closed: closing it would close conn.
	migrator, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return errors.Join(err, ErrMigrate)
	}
	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Join(err, ErrMigrate)
	}
	return nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Tx is a write transaction. All writes of one ingest batch go through a
// single Tx so the batch commits or rolls back as a unit.
type Tx struct {
	tx *sql.Tx
	sb sq.StatementBuilderType
}

// Begin starts a write transaction.
func (db *DB) Begin(ctx context.Context) (*Tx, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx, sb: sq.StatementBuilder.PlaceholderFormat(sq.Question).RunWith(tx)}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback aborts the transaction. It is safe to call after Commit.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
func (db *DB) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
