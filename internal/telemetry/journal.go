package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"AssistChat/internal/conversation"
)

// Journal records the outcome of every remote call in SQLite. It stores no
// message text and is never read back into a conversation.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenJournal opens (or creates) the journal database at path
func OpenJournal(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createExchangesTable := `
	CREATE TABLE IF NOT EXISTS exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		request_id INTEGER,
		attempt INTEGER,
		outcome TEXT,
		error TEXT,
		duration_ms INTEGER,
		timestamp DATETIME
	);`

	if _, err := db.Exec(createExchangesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create exchanges table: %w", err)
	}

	logger.Info("opened exchange journal", "path", path)
	return &Journal{db: db, logger: logger}, nil
}

// Record implements conversation.Recorder
func (j *Journal) Record(ctx context.Context, ex conversation.Exchange) error {
	outcome := "success"
	if !ex.OK {
		outcome = "failure"
	}

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO exchanges (session_id, request_id, attempt, outcome, error, duration_ms, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)",
		ex.SessionID, int64(ex.RequestID), ex.Attempt, outcome, ex.Error, ex.Duration.Milliseconds(), ex.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}
	return nil
}

// Summary counts exchanges for one session
type Summary struct {
	Total    int
	Failures int
	Retries  int
	Slowest  time.Duration
}

// Summarize aggregates the journal rows of a session
func (j *Journal) Summarize(ctx context.Context, sessionID string) (Summary, error) {
	var s Summary
	var slowest int64
	err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN outcome = 'failure' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN attempt > 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(MAX(duration_ms), 0)
		FROM exchanges WHERE session_id = ?`, sessionID).
		Scan(&s.Total, &s.Failures, &s.Retries, &slowest)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to summarize exchanges: %w", err)
	}
	s.Slowest = time.Duration(slowest) * time.Millisecond
	return s, nil
}

// Close closes the database
func (j *Journal) Close() error {
	return j.db.Close()
}
