package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS dispatch_failures (
	id          TEXT PRIMARY KEY,
	method      TEXT NOT NULL,
	seq         BIGINT NOT NULL,
	kind        TEXT NOT NULL,
	attempts    INTEGER NOT NULL,
	message     TEXT NOT NULL,
	recorded_at BIGINT NOT NULL
)`

// Journal keeps dispatch failures in a SQL table so they survive restarts
// and can be queried by operators. Works with sqlite3 and postgres.
type Journal struct {
	db     *sql.DB
	driver string
	log    *slog.Logger
}

func OpenJournal(driver, dsn string, log *slog.Logger) (*Journal, error) {
	switch driver {
	case "sqlite3", "postgres":
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: connect: %w", err)
	}
	if driver == "sqlite3" {
		// sqlite has a single writer
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	return &Journal{db: db, driver: driver, log: log}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// rebind turns ? placeholders into $n for postgres
func (j *Journal) rebind(q string) string {
	if j.driver != "postgres" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (j *Journal) Record(ctx context.Context, f Failure) {
	_, err := j.db.ExecContext(ctx, j.rebind(`
		INSERT INTO dispatch_failures (id, method, seq, kind, attempts, message, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		f.ID, f.Method, int64(f.Seq), f.Kind, f.Attempts, f.Err, f.At.UnixNano(),
	)
	if err != nil {
		j.log.Error("journal write failed", "failure_id", f.ID, "err", err)
	}
}

// Recent returns up to limit failures, newest first. An empty method
// matches all methods.
func (j *Journal) Recent(ctx context.Context, method string, limit int) ([]Failure, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id, method, seq, kind, attempts, message, recorded_at FROM dispatch_failures`
	args := []any{}
	if method != "" {
		q += ` WHERE method = ?`
		args = append(args, method)
	}
	q += ` ORDER BY recorded_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, j.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		var seq, at int64
		if err := rows.Scan(&f.ID, &f.Method, &seq, &f.Kind, &f.Attempts, &f.Err, &at); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		f.Seq = uint64(seq)
		f.At = time.Unix(0, at).UTC()
		out = append(out, f)
	}
	return out, rows.Err()
}
