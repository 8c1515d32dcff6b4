package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"marketlink-service/internal/catalog/model"
)

// Store: SQLite-хранилище каталога, связей и рекомендаций.
// Ровно одно соединение: база :memory: существует только внутри него.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	external_codes          TEXT NOT NULL DEFAULT '[]',
	barcode                 TEXT NOT NULL DEFAULT '',
	type                    TEXT NOT NULL DEFAULT '',
	gender                  TEXT NOT NULL DEFAULT '',
	season                  TEXT NOT NULL DEFAULT '',
	brand                   TEXT NOT NULL DEFAULT '',
	material                TEXT NOT NULL DEFAULT '',
	fastener                TEXT NOT NULL DEFAULT '',
	color                   TEXT NOT NULL DEFAULT '',
	size_raw                TEXT NOT NULL DEFAULT '',
	stock                   REAL NOT NULL DEFAULT 0,
	last_primary            TEXT NOT NULL DEFAULT '',
	last_secondary          TEXT NOT NULL DEFAULT '',
	last_tertiary           TEXT NOT NULL DEFAULT '',
	recommendations_payload TEXT NOT NULL DEFAULT '[]',
	imported_at             TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_products_barcode ON products(barcode);
CREATE INDEX IF NOT EXISTS idx_products_type_gender ON products(type, gender);

CREATE TABLE IF NOT EXISTS size_map (
	barcode       TEXT PRIMARY KEY,
	external_code TEXT NOT NULL,
	size_label    TEXT NOT NULL DEFAULT '',
	imported_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS listings (
	marketplace TEXT NOT NULL,
	sku         TEXT NOT NULL,
	barcode     TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	imported_at TEXT NOT NULL,
	PRIMARY KEY (marketplace, sku)
);

CREATE TABLE IF NOT EXISTS links (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	barcode          TEXT NOT NULL,
	sku_a            TEXT NOT NULL,
	sku_b            TEXT NOT NULL,
	confidence       REAL NOT NULL,
	title_similarity REAL NOT NULL DEFAULT 0,
	category_match   INTEGER NOT NULL DEFAULT 0,
	source_ts        TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	superseded_at    TEXT
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_links_active ON links(barcode) WHERE superseded_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_links_sku_a ON links(sku_a) WHERE superseded_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_links_sku_b ON links(sku_b) WHERE superseded_at IS NULL;

CREATE TABLE IF NOT EXISTS recommendations (
	source_barcode      TEXT NOT NULL,
	rank                INTEGER NOT NULL,
	recommended_barcode TEXT NOT NULL,
	score               REAL NOT NULL,
	level               TEXT NOT NULL DEFAULT '',
	explanation         TEXT NOT NULL DEFAULT '{}',
	PRIMARY KEY (source_barcode, rank)
);
`

// Open opens (or creates) the database at path and applies the schema.
// path may be ":memory:" or a plain file path; connection options are added
// for files.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*Store, error) {
	dsn := path
	if path != ":memory:" && !strings.Contains(path, "?") {
		dsn = path + "?_timeout=5000&_journal_mode=WAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, storageErr("open "+path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storageErr("ping "+path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, storageErr("migrate", err)
	}

	s := &Store{db: db, log: logger.With().Str("component", "storage").Logger()}
	s.log.Info().Str("path", path).Msg("storage opened")
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

// storageErr tags err as a storage failure while keeping the cause
// inspectable (context.Canceled and friends).
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, model.ErrStorage, err)
}

// inTx runs fn in a transaction; fn's error rolls back.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr(op+": begin", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, model.ErrStorage) {
			return err
		}
		return storageErr(op, err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr(op+": commit", err)
	}
	return nil
}

// fixed width keeps text order == time order
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
