// Package ledger records every release descriptor tapkeeper has seen so that
// a re-tagged archive is detected across runs.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/open-edge-platform/tapkeeper/internal/utils/digest"
)

const schema = `
CREATE TABLE IF NOT EXISTS releases (
    name       TEXT NOT NULL,
    version    TEXT NOT NULL,
    tag        TEXT NOT NULL,
    url        TEXT NOT NULL,
    sha256     TEXT NOT NULL,
    first_seen TEXT NOT NULL,
    PRIMARY KEY (name, tag)
);
`

// timeLayout sorts lexically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one recorded release.
type Entry struct {
	Name      string
	Version   string
	Tag       string
	URL       string
	SHA256    string
	FirstSeen time.Time
}

// ConflictError reports a release whose checksum differs from the one
// recorded when its tag was first seen.
type ConflictError struct {
	Name     string
	Tag      string
	Recorded string
	Got      string
	Since    time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: checksum %s differs from %s recorded on %s",
		e.Name, e.Tag, digest.Short(e.Got), digest.Short(e.Recorded), e.Since.Format(time.RFC3339))
}

// Ledger is a SQLite backed release history.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the ledger database at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("ledger: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: create schema: %w", err)
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record stores e unless its (name, tag) is already known. It reports
// whether the entry was new. A known tag with a different checksum yields a
// *ConflictError and leaves the first-seen record untouched. Placeholder
// checksums are never recorded. Checksums are stored in lowercase.
func (l *Ledger) Record(ctx context.Context, e Entry) (bool, error) {
	if e.Name == "" || e.Tag == "" {
		return false, fmt.Errorf("ledger: entry needs name and tag")
	}
	e.SHA256 = strings.ToLower(strings.TrimSpace(e.SHA256))
	if !digest.IsSHA256Hex(e.SHA256) {
		return false, fmt.Errorf("ledger: %s %s: %q is not a sha256 digest", e.Name, e.Tag, e.SHA256)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("ledger: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	prev, err := lookup(ctx, tx, e.Name, e.Tag)
	if err != nil {
		return false, err
	}
	if prev != nil {
		if !digest.Equal(prev.SHA256, e.SHA256) {
			return false, &ConflictError{Name: e.Name, Tag: e.Tag, Recorded: prev.SHA256, Got: e.SHA256, Since: prev.FirstSeen}
		}
		return false, nil
	}

	if e.FirstSeen.IsZero() {
		e.FirstSeen = l.now().UTC()
	}
	const q = `INSERT INTO releases (name, version, tag, url, sha256, first_seen) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, e.Name, e.Version, e.Tag, e.URL, e.SHA256, e.FirstSeen.UTC().Format(timeLayout)); err != nil {
		return false, fmt.Errorf("ledger: insert %s %s: %w", e.Name, e.Tag, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("ledger: commit: %w", err)
	}
	return true, nil
}

// Lookup returns the recorded entry for (name, tag), or nil.
func (l *Ledger) Lookup(ctx context.Context, name, tag string) (*Entry, error) {
	return lookup(ctx, l.db, name, tag)
}

// List returns the entries for name ordered by first sighting. An empty name
// lists every package.
func (l *Ledger) List(ctx context.Context, name string) ([]Entry, error) {
	q := `SELECT name, version, tag, url, sha256, first_seen FROM releases`
	var args []interface{}
	if name != "" {
		q += ` WHERE name = ?`
		args = append(args, name)
	}
	q += ` ORDER BY first_seen, rowid`

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: list: %w", err)
	}
	return out, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func lookup(ctx context.Context, q queryer, name, tag string) (*Entry, error) {
	row := q.QueryRowContext(ctx,
		`SELECT name, version, tag, url, sha256, first_seen FROM releases WHERE name = ? AND tag = ?`, name, tag)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	var seen string
	if err := s.Scan(&e.Name, &e.Version, &e.Tag, &e.URL, &e.SHA256, &seen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("ledger: scan: %w", err)
	}
	t, err := time.Parse(timeLayout, seen)
	if err != nil {
		return nil, fmt.Errorf("ledger: bad first_seen %q: %w", seen, err)
	}
	e.FirstSeen = t
	return &e, nil
}
