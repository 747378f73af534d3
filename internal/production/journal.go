package production

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/comalice/ctlfsm/internal/core"
	"github.com/comalice/ctlfsm/internal/logging"
	"github.com/comalice/ctlfsm/internal/primitives"
)

var _ core.Publisher = (*SQLiteJournal)(nil)

var (
	ErrJournalFull   = errors.New("journal buffer full")
	ErrJournalClosed = errors.New("journal closed")
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS transitions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	machine     TEXT NOT NULL,
	event_id    TEXT NOT NULL,
	event       TEXT NOT NULL,
	from_state  TEXT NOT NULL,
	to_state    TEXT NOT NULL,
	exit_path   TEXT NOT NULL,
	enter_path  TEXT NOT NULL,
	conditions  TEXT,
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS transitions_machine ON transitions (machine, id);
`

const defaultJournalBuffer = 256

type journalOp struct {
	record  core.TransitionRecord
	flushed chan struct{}
}

// SQLiteJournal persists transition records to SQLite. Publish only
// enqueues; a single writer goroutine performs the inserts.
type SQLiteJournal struct {
	db      *sql.DB
	logger  *logging.Logger
	limiter *logging.Limiter
	buffer  int

	mu      sync.RWMutex
	closed  bool
	ops     chan journalOp
	dropped atomic.Uint64
	wg      sync.WaitGroup
}

// JournalOption configures a SQLiteJournal.
type JournalOption func(*SQLiteJournal)

// WithJournalLogger sets the logger for write failures.
func WithJournalLogger(l *logging.Logger) JournalOption {
	return func(j *SQLiteJournal) { j.logger = l }
}

// WithJournalBuffer sets how many records may wait for the writer.
func WithJournalBuffer(n int) JournalOption {
	return func(j *SQLiteJournal) {
		if n > 0 {
			j.buffer = n
		}
	}
}

// OpenJournal opens (or creates) the database at path and starts the
// writer. Use ":memory:" for a throwaway journal.
func OpenJournal(path string, opts ...JournalOption) (*SQLiteJournal, error) {
	j := &SQLiteJournal{buffer: defaultJournalBuffer}
	for _, opt := range opts {
		opt(j)
	}
	j.limiter = logging.NewLimiter(nil)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// one connection, so ":memory:" is a single database
	db.SetMaxOpenConns(1)
	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma: %w", err)
		}
	}
	if _, err := db.Exec(journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	j.db = db
	j.ops = make(chan journalOp, j.buffer)
	j.wg.Add(1)
	go j.write()
	return j, nil
}

// Publish queues record for insertion. Returns ErrJournalFull when the
// writer has fallen behind.
func (j *SQLiteJournal) Publish(ctx context.Context, record core.TransitionRecord) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrJournalClosed
	}
	select {
	case j.ops <- journalOp{record: record}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		j.dropped.Add(1)
		return ErrJournalFull
	}
}

// Dropped returns how many records were rejected on a full buffer.
func (j *SQLiteJournal) Dropped() uint64 { return j.dropped.Load() }

// Flush blocks until every record queued before the call is written.
func (j *SQLiteJournal) Flush(ctx context.Context) error {
	done := make(chan struct{})
	j.mu.RLock()
	if j.closed {
		j.mu.RUnlock()
		return ErrJournalClosed
	}
	select {
	case j.ops <- journalOp{flushed: done}:
	case <-ctx.Done():
		j.mu.RUnlock()
		return ctx.Err()
	}
	j.mu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Records returns the journaled transitions of machine, oldest first.
func (j *SQLiteJournal) Records(ctx context.Context, machine string) ([]core.TransitionRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT machine, event_id, event, from_state, to_state, exit_path, enter_path, conditions, created_at
		 FROM transitions WHERE machine = ? ORDER BY id`, machine)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []core.TransitionRecord
	for rows.Next() {
		var (
			rec                  core.TransitionRecord
			eventID, exit, enter string
			conditions           sql.NullString
			createdAt            string
		)
		if err := rows.Scan(&rec.Machine, &eventID, &rec.Event, &rec.From, &rec.To, &exit, &enter, &conditions, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		if rec.EventID, err = uuid.Parse(eventID); err != nil {
			return nil, fmt.Errorf("parse event id: %w", err)
		}
		if err := json.Unmarshal([]byte(exit), &rec.Exit); err != nil {
			return nil, fmt.Errorf("unmarshal exit path: %w", err)
		}
		if err := json.Unmarshal([]byte(enter), &rec.Enter); err != nil {
			return nil, fmt.Errorf("unmarshal enter path: %w", err)
		}
		if conditions.Valid {
			var infos []primitives.ConditionInfo
			if err := json.Unmarshal([]byte(conditions.String), &infos); err != nil {
				return nil, fmt.Errorf("unmarshal conditions: %w", err)
			}
			rec.Conditions = infos
		}
		if rec.Time, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close drains pending records, stops the writer and closes the database.
func (j *SQLiteJournal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.ops)
	j.mu.Unlock()

	j.wg.Wait()
	return j.db.Close()
}

func (j *SQLiteJournal) write() {
	defer j.wg.Done()
	for op := range j.ops {
		if op.flushed != nil {
			close(op.flushed)
			continue
		}
		if err := j.insert(op.record); err != nil && j.limiter.Allow("journal") {
			j.logger.Err().Str("machine", op.record.Machine).Str("event", op.record.Event).Err(err).Log("journal write failed")
		}
	}
}

func (j *SQLiteJournal) insert(rec core.TransitionRecord) error {
	exit, err := json.Marshal(rec.Exit)
	if err != nil {
		return fmt.Errorf("marshal exit path: %w", err)
	}
	enter, err := json.Marshal(rec.Enter)
	if err != nil {
		return fmt.Errorf("marshal enter path: %w", err)
	}
	var conditions any
	if len(rec.Conditions) > 0 {
		data, err := json.Marshal(rec.Conditions)
		if err != nil {
			return fmt.Errorf("marshal conditions: %w", err)
		}
		conditions = string(data)
	}
	_, err = j.db.Exec(
		`INSERT INTO transitions (machine, event_id, event, from_state, to_state, exit_path, enter_path, conditions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Machine, rec.EventID.String(), rec.Event, rec.From, rec.To,
		string(exit), string(enter), conditions, rec.Time.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}
