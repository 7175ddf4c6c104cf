package writers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/waftester/intelcore/pkg/finding"
	"github.com/waftester/intelcore/pkg/jsonutil"
	"github.com/waftester/intelcore/pkg/output/dispatcher"
	"github.com/waftester/intelcore/pkg/output/events"
	_ "modernc.org/sqlite"
)

// Compile-time interface check.
var _ dispatcher.Writer = (*SQLiteJournal)(nil)

// ErrJournalClosed is returned by writes after Close.
var ErrJournalClosed = errors.New("writers: journal closed")

// SQLiteJournal persists every bus event to a SQLite database so a session can
// be inspected or replayed after the process exits.
type SQLiteJournal struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	closed bool
	logger *slog.Logger
}

// JournalEntry is one persisted event.
type JournalEntry struct {
	Seq       int64
	Type      events.EventType
	Target    string
	Timestamp time.Time
	Body      []byte
}

// OpenSQLiteJournal opens or creates the journal database at path.
func OpenSQLiteJournal(path string, logger *slog.Logger) (*SQLiteJournal, error) {
	if path == "" {
		return nil, fmt.Errorf("writers: journal path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("writers: create journal directory: %w", err)
		}
	}

	// Pragmas in the DSN so every pool connection is configured.
	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(5000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("writers: open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	j := &SQLiteJournal{db: db, path: path, logger: logger}
	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("writers: journal schema: %w", err)
	}
	logger.Debug("journal opened", slog.String("path", path))
	return j, nil
}

func (j *SQLiteJournal) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		target TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		body TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
	CREATE INDEX IF NOT EXISTS idx_events_target ON events(target);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (j *SQLiteJournal) Path() string { return j.path }

// Write inserts event.
func (j *SQLiteJournal) Write(event events.Event) error {
	body, err := jsonutil.Marshal(event)
	if err != nil {
		return fmt.Errorf("writers: encode %s: %w", event.EventType(), err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrJournalClosed
	}
	_, err = j.db.Exec(
		`INSERT INTO events (type, target, timestamp, body) VALUES (?, ?, ?, ?)`,
		string(event.EventType()), event.Target(), event.Timestamp().UnixNano(), string(body),
	)
	return err
}

// Entries returns persisted events in write order. An empty eventType
// returns every event.
func (j *SQLiteJournal) Entries(ctx context.Context, eventType events.EventType) ([]JournalEntry, error) {
	query := `SELECT seq, type, target, timestamp, body FROM events`
	var args []any
	if eventType != "" {
		query += ` WHERE type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY seq`

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil, ErrJournalClosed
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var (
			e     JournalEntry
			typ   string
			nanos int64
			body  string
		)
		if err := rows.Scan(&e.Seq, &typ, &e.Target, &nanos, &body); err != nil {
			return nil, err
		}
		e.Type = events.EventType(typ)
		e.Timestamp = time.Unix(0, nanos).UTC()
		e.Body = []byte(body)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Findings decodes every journaled finding.recorded event, in order.
// Payloads are re-validated so the caller can replay them into a store.
func (j *SQLiteJournal) Findings(ctx context.Context) ([]finding.Finding, error) {
	entries, err := j.Entries(ctx, events.EventTypeFindingRecorded)
	if err != nil {
		return nil, err
	}
	out := make([]finding.Finding, 0, len(entries))
	for _, e := range entries {
		var ev events.FindingRecordedEvent
		if err := jsonutil.Unmarshal(e.Body, &ev); err != nil {
			return nil, fmt.Errorf("writers: journal seq %d: %w", e.Seq, err)
		}
		f, err := finding.New(ev.Finding.Kind, ev.Finding.Source, ev.Finding.Target,
			ev.Finding.Payload, ev.Finding.Confidence)
		if err != nil {
			j.logger.Warn("journal: skipping invalid finding",
				slog.Int64("seq", e.Seq), slog.Any("error", err))
			continue
		}
		f.ID = ev.Finding.ID
		f.Timestamp = ev.Finding.Timestamp
		out = append(out, f)
	}
	return out, nil
}

// Flush is a no-op; each Write commits immediately.
func (j *SQLiteJournal) Flush() error { return nil }

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

// SupportsEvent returns true for all event types.
func (j *SQLiteJournal) SupportsEvent(_ events.EventType) bool { return true }
