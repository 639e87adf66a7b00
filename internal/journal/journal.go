// Package journal records every REPL turn of a session in a sqlite
// database inside the compilation directory.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	_ "modernc.org/sqlite"
)

// Turn statuses.
const (
	StatusOK           = "ok"
	StatusNoExec       = "no-exec"
	StatusIOError      = "io-error"
	StatusCompileError = "compile-error"
	StatusExecError    = "exec-error"
)

// Turn is one evaluated program input.
type Turn struct {
	ID         int64
	Module     string
	Input      string
	Status     string
	Message    string
	Generation string
	Elapsed    time.Duration
	Time       time.Time
}

// Failed reports whether the turn was rolled back.
func (t Turn) Failed() bool {
	return t.Status != StatusOK && t.Status != StatusNoExec
}

const schema = `
CREATE TABLE turns (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	module     TEXT    NOT NULL,
	input      TEXT    NOT NULL,
	status     TEXT    NOT NULL,
	message    TEXT    NOT NULL DEFAULT '',
	generation TEXT    NOT NULL DEFAULT '',
	elapsed_ns INTEGER NOT NULL,
	at_ns      INTEGER NOT NULL
)`

// Journal is an open turn journal.
type Journal struct {
	db   *sql.DB
	path string
}

// Open creates a fresh journal at path, replacing any left by an earlier
// session.
func Open(path string) (*Journal, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing old journal: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &Journal{db: db, path: path}, nil
}

// Path is the database file.
func (j *Journal) Path() string { return j.path }

// Record appends t. Its ID is assigned by the database.
func (j *Journal) Record(ctx context.Context, t Turn) (int64, error) {
	if t.Time.IsZero() {
		t.Time = time.Now()
	}
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO turns (module, input, status, message, generation, elapsed_ns, at_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Module, t.Input, t.Status, t.Message, t.Generation, int64(t.Elapsed), t.Time.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("recording turn: %w", err)
	}
	return res.LastInsertId()
}

// Last returns up to n of the most recent turns, oldest first. n <= 0
// returns all of them.
func (j *Journal) Last(ctx context.Context, n int) ([]Turn, error) {
	query := `SELECT id, module, input, status, message, generation, elapsed_ns, at_ns
		FROM turns ORDER BY id DESC`
	var args []any
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			t       Turn
			elapsed int64
			at      int64
		)
		if err := rows.Scan(&t.ID, &t.Module, &t.Input, &t.Status, &t.Message, &t.Generation, &elapsed, &at); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		t.Elapsed = time.Duration(elapsed)
		t.Time = time.Unix(0, at)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading turns: %w", err)
	}

	for i, k := 0, len(turns)-1; i < k; i, k = i+1, k-1 {
		turns[i], turns[k] = turns[k], turns[i]
	}
	return turns, nil
}

// Count returns the number of recorded turns.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting turns: %w", err)
	}
	return n, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Format writes turns as a table, with times relative to now.
func Format(w io.Writer, turns []Turn, now time.Time) {
	if len(turns) == 0 {
		fmt.Fprintln(w, "no turns recorded")
		return
	}
	for _, t := range turns {
		first := t.Input
		if i := strings.IndexByte(first, '\n'); i >= 0 {
			first = first[:i] + " ..."
		}
		fmt.Fprintf(w, "%4d  %-13s %-10s %8s  %-14s %s\n",
			t.ID, t.Status, t.Module, t.Elapsed.Round(time.Millisecond), humanize.RelTime(t.Time, now, "ago", "from now"), first)
		if t.Failed() && t.Message != "" {
			msg := t.Message
			if i := strings.IndexByte(msg, '\n'); i >= 0 {
				msg = msg[:i]
			}
			fmt.Fprintf(w, "      %s\n", msg)
		}
	}
}
