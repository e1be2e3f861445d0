// Package catalog indexes archived captures in a SQL database so replay
// windows can be located without walking the archive tree.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS captures (
  filename       TEXT PRIMARY KEY,
  filepath       TEXT NOT NULL,
  epoch          BIGINT NOT NULL,
  feed_timestamp BIGINT,
  entities       INTEGER NOT NULL,
  bytes          INTEGER NOT NULL,
  module_id      TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS captures_epoch_idx ON captures (epoch)`,
}

// Entry describes one archived capture.
type Entry struct {
	Filename      string
	Filepath      string
	Epoch         int64
	FeedTimestamp *int64
	Entities      int
	Bytes         int
	ModuleID      string
}

type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the catalog database named by dsn and ensures the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	driver, source, err := resolveDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, err
	}
	if driver == driverSQLite {
		// single writer; also keeps :memory: databases on one connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := Ping(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog ping: %w", err)
	}
	s := &Store{db: db, driver: driver}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("catalog schema: %w", err)
		}
	}
	return s, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

func (s *Store) Close() error { return s.db.Close() }

// Record inserts e, replacing any earlier entry with the same filename.
func (s *Store) Record(ctx context.Context, e Entry) error {
	q := s.rebind(`
INSERT INTO captures (filename, filepath, epoch, feed_timestamp, entities, bytes, module_id)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (filename) DO UPDATE SET
  filepath = excluded.filepath,
  epoch = excluded.epoch,
  feed_timestamp = excluded.feed_timestamp,
  entities = excluded.entities,
  bytes = excluded.bytes,
  module_id = excluded.module_id`)
	var feedTS sql.NullInt64
	if e.FeedTimestamp != nil {
		feedTS = sql.NullInt64{Int64: *e.FeedTimestamp, Valid: true}
	}
	if _, err := s.db.ExecContext(ctx, q, e.Filename, e.Filepath, e.Epoch, feedTS, e.Entities, e.Bytes, e.ModuleID); err != nil {
		return fmt.Errorf("record capture %s: %w", e.Filename, err)
	}
	return nil
}

// Range returns entries with start <= epoch <= finish, oldest first.
func (s *Store) Range(ctx context.Context, start, finish int64) ([]Entry, error) {
	q := s.rebind(`
SELECT filename, filepath, epoch, feed_timestamp, entities, bytes, module_id
FROM captures WHERE epoch >= ? AND epoch <= ?
ORDER BY epoch, filename`)
	rows, err := s.db.QueryContext(ctx, q, start, finish)
	if err != nil {
		return nil, fmt.Errorf("query captures: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var feedTS sql.NullInt64
		if err := rows.Scan(&e.Filename, &e.Filepath, &e.Epoch, &feedTS, &e.Entities, &e.Bytes, &e.ModuleID); err != nil {
			return nil, err
		}
		if feedTS.Valid {
			ts := feedTS.Int64
			e.FeedTimestamp = &ts
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// rebind rewrites ? placeholders as $n for Postgres.
func (s *Store) rebind(q string) string {
	if s.driver != driverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
