// Package journal persists update run transcripts and an indexed run history
// backing the history and prune commands.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // CGO-free SQLite driver.

	"github.com/macropower/dotup/pkg/updater"
)

const (
	// DefaultKeep is how many transcripts are retained per run kind.
	DefaultKeep = 10

	logsDir = "logs"
	dbFile  = "history.db"

	// stampFormat is the compact RFC 3339 form used in transcript names.
	// Lexical order matches chronological order.
	stampFormat = "20060102T150405Z"

	schema = `
		CREATE TABLE IF NOT EXISTS runs (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			kind     TEXT    NOT NULL,
			started  TEXT    NOT NULL,
			finished TEXT    NOT NULL,
			status   TEXT    NOT NULL,
			updated  INTEGER NOT NULL,
			failed   INTEGER NOT NULL,
			skipped  INTEGER NOT NULL,
			log_path TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_kind    ON runs(kind);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started DESC);
	`
)

// ErrRunNotFound is returned when no indexed run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// Run is one indexed update run.
type Run struct {
	Started  time.Time
	Finished time.Time
	Kind     string
	Status   updater.Status
	LogPath  string
	ID       int64
	Updated  int
	Failed   int
	Skipped  int
}

// Duration returns the wall time the run took.
func (r Run) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Journal stores run transcripts under a state directory and indexes them in
// a SQLite database.
type Journal struct {
	db   *sql.DB
	dir  string
	keep int
}

type JournalOpt func(j *Journal)

// WithKeep sets how many transcripts are retained per run kind.
func WithKeep(n int) JournalOpt {
	return func(j *Journal) {
		if n < 1 {
			n = 1
		}

		j.keep = n
	}
}

// New opens the journal rooted at dir, creating the directory, the logs
// subdirectory, and the history database as needed.
func New(dir string, opts ...JournalOpt) (*Journal, error) {
	j := &Journal{
		dir:  dir,
		keep: DefaultKeep,
	}
	for _, opt := range opts {
		opt(j)
	}

	err := os.MkdirAll(filepath.Join(dir, logsDir), 0o700)
	if err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, dbFile))
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		_, err = db.Exec(pragma)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	_, err = db.Exec(schema)
	if err != nil {
		return nil, fmt.Errorf("migrate history database: %w", err)
	}

	j.db = db

	return j, nil
}

// Close closes the history database.
func (j *Journal) Close() error {
	err := j.db.Close()
	if err != nil {
		return fmt.Errorf("close history database: %w", err)
	}

	return nil
}

// Dir returns the journal's state directory.
func (j *Journal) Dir() string {
	return j.dir
}

// Record writes the transcript for a finished run, indexes it, and applies
// transcript retention for the run's kind.
func (j *Journal) Record(ctx context.Context, kind string, result *updater.RunResult) (*Run, error) {
	logPath, err := j.writeTranscript(kind, result)
	if err != nil {
		return nil, err
	}

	updated, failed, skipped := result.Counts()

	res, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (kind, started, finished, status, updated, failed, skipped, log_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		kind,
		result.Started.UTC().Format(time.RFC3339Nano),
		result.Finished.UTC().Format(time.RFC3339Nano),
		string(result.Status),
		updated,
		failed,
		skipped,
		logPath,
	)
	if err != nil {
		return nil, fmt.Errorf("index run: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("index run: %w", err)
	}

	removed, err := j.pruneKind(kind)
	if err != nil {
		// Retention failure does not invalidate the recorded run.
		slog.Warn("transcript retention failed",
			slog.Any("error", err),
		)
	} else if len(removed) > 0 {
		slog.Debug("pruned transcripts",
			slog.String("kind", kind),
			slog.Int("count", len(removed)),
		)
	}

	return &Run{
		ID:       id,
		Kind:     kind,
		Started:  result.Started,
		Finished: result.Finished,
		Status:   result.Status,
		Updated:  updated,
		Failed:   failed,
		Skipped:  skipped,
		LogPath:  logPath,
	}, nil
}

const selectRun = `SELECT id, kind, started, finished, status, updated, failed, skipped, log_path FROM runs`

// Runs returns the most recent runs, newest first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit < 1 {
		limit = DefaultKeep
	}

	rows, err := j.db.QueryContext(ctx, selectRun+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only rows.

	var runs []Run

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}

		runs = append(runs, *run)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	return runs, nil
}

// Run returns the indexed run with the given ID.
func (j *Journal) Run(ctx context.Context, id int64) (*Run, error) {
	row := j.db.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	return run, nil
}

// Transcript reads the stored transcript for a run. Transcripts removed by
// retention return an error wrapping [io/fs.ErrNotExist].
func (j *Journal) Transcript(run *Run) (string, error) {
	b, err := os.ReadFile(run.LogPath)
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}

	return string(b), nil
}

func scanRun(row interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run               Run
		started, finished string
		status            string
	)

	err := row.Scan(
		&run.ID,
		&run.Kind,
		&started,
		&finished,
		&status,
		&run.Updated,
		&run.Failed,
		&run.Skipped,
		&run.LogPath,
	)
	if err != nil {
		return nil, err //nolint:wrapcheck // Callers branch on sql.ErrNoRows.
	}

	run.Status = updater.Status(status)

	run.Started, err = time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return nil, fmt.Errorf("parse started time: %w", err)
	}

	run.Finished, err = time.Parse(time.RFC3339Nano, finished)
	if err != nil {
		return nil, fmt.Errorf("parse finished time: %w", err)
	}

	return &run, nil
}

// DefaultDir returns the dotup state directory, honoring $XDG_STATE_HOME.
func DefaultDir() string {
	if xdgState, ok := os.LookupEnv("XDG_STATE_HOME"); ok && xdgState != "" {
		return filepath.Join(xdgState, "dotup")
	}

	usrHome, err := os.UserHomeDir()
	if err == nil && usrHome != "" {
		return filepath.Join(usrHome, ".local", "state", "dotup")
	}

	tmpState := filepath.Join(os.TempDir(), "dotup")

	slog.Warn("could not determine user state directory, using temp path for journal",
		slog.String("path", tmpState),
		slog.Any("error", fmt.Errorf("$XDG_STATE_HOME is unset, fall back to home directory: %w", err)),
	)

	return tmpState
}
