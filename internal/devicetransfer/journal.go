package devicetransfer

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/devxfer/devxfer/internal/log"
	"github.com/devxfer/devxfer/internal/migrations"
	"github.com/devxfer/devxfer/internal/sqlite"
)

var (
	ErrSessionExists  = errors.New("session already journaled")
	ErrUnknownSession = errors.New("unknown session")

	errNotJournaled = errors.New("record not journaled")
)

// Direction is the side of a transfer a session plays.
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// Outcome is what happened to one received record.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeMalformed Outcome = "malformed"
)

// SessionInfo is the journaled summary of one session.
type SessionInfo struct {
	ID         string
	Direction  Direction
	Peer       string
	State      string
	Processed  int
	Total      int
	CreatedAt  time.Time
	LastActive time.Time
}

// DeadLetter is a record with a tag this build does not know.
type DeadLetter struct {
	ID        int64
	SessionID string
	Tag       string
	Body      []byte
	CreatedAt time.Time
}

// Journal is a SQLite log of transfer sessions, the outcome of every
// received record and the payloads of unknown records. It lives in its own
// database file, apart from the chat store.
type Journal struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenJournal opens or creates the journal at path.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	j, err := NewJournal(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// NewJournal uses db, bringing its schema up to date.
func NewJournal(db *sql.DB) (*Journal, error) {
	if err := migrations.BootstrapJournal(db); err != nil {
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// BeginSession records a new session in the preparing state.
func (j *Journal) BeginSession(id string, direction Direction, peer string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		"INSERT INTO sessions (id, direction, peer, state) VALUES (?, ?, ?, ?)",
		id, string(direction), peer, Preparing().String(),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("%w: %s", ErrSessionExists, id)
		}
		return fmt.Errorf("failed to begin session: %w", err)
	}
	return nil
}

// SetPeer records the remote address once known.
func (j *Journal) SetPeer(id, peer string) error {
	return j.update("UPDATE sessions SET peer = ?, last_active = CURRENT_TIMESTAMP WHERE id = ?", peer, id)
}

// UpdateState records the latest state of a session.
func (j *Journal) UpdateState(id string, state TransferState) error {
	if state.Kind() == StateTransporting {
		return j.update(
			"UPDATE sessions SET state = ?, processed = ?, total = ?, last_active = CURRENT_TIMESTAMP WHERE id = ?",
			StateTransporting.String(), state.Processed(), state.Total(), id,
		)
	}
	return j.update("UPDATE sessions SET state = ?, last_active = CURRENT_TIMESTAMP WHERE id = ?", state.String(), id)
}

func (j *Journal) update(query string, args ...any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	result, err := j.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUnknownSession
	}
	return nil
}

// RecordOutcome logs what happened to one received record.
func (j *Journal) RecordOutcome(sessionID string, recordType MessageType, recordID string, outcome Outcome) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		"INSERT OR REPLACE INTO records (session_id, record_type, record_id, outcome) VALUES (?, ?, ?, ?)",
		sessionID, string(recordType), recordID, string(outcome),
	)
	if err != nil {
		return fmt.Errorf("failed to log record outcome: %w", err)
	}
	return nil
}

// outcomeOf returns the logged outcome of a record.
func (j *Journal) outcomeOf(sessionID string, recordType MessageType, recordID string) (Outcome, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	var outcome string
	err := j.db.QueryRow(
		"SELECT outcome FROM records WHERE session_id = ? AND record_type = ? AND record_id = ?",
		sessionID, string(recordType), recordID,
	).Scan(&outcome)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errNotJournaled
		}
		return "", fmt.Errorf("failed to get record outcome: %w", err)
	}
	return Outcome(outcome), nil
}

// OutcomeCounts tallies the logged outcomes of a session.
func (j *Journal) OutcomeCounts(sessionID string) (map[Outcome]int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		"SELECT outcome, COUNT(*) FROM records WHERE session_id = ? GROUP BY outcome", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[Outcome]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[Outcome(outcome)] = n
	}
	return counts, rows.Err()
}

// AddDeadLetter stores the payload of an unknown record.
func (j *Journal) AddDeadLetter(sessionID, tag string, body []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if body == nil {
		body = []byte{}
	}
	_, err := j.db.Exec(
		"INSERT INTO dead_letters (session_id, type_tag, body) VALUES (?, ?, ?)",
		sessionID, tag, body,
	)
	if err != nil {
		return fmt.Errorf("failed to store dead letter: %w", err)
	}
	return nil
}

// DeadLetters lists the unknown records of a session in arrival order.
func (j *Journal) DeadLetters(sessionID string) ([]DeadLetter, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		"SELECT id, session_id, type_tag, body, created_at FROM dead_letters WHERE session_id = ? ORDER BY id",
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []DeadLetter
	for rows.Next() {
		var d DeadLetter
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Tag, &d.Body, &d.CreatedAt); err != nil {
			return nil, err
		}
		letters = append(letters, d)
	}
	return letters, rows.Err()
}

const sessionColumns = "id, direction, peer, state, processed, total, created_at, last_active"

func scanSession(s interface{ Scan(...any) error }) (SessionInfo, error) {
	var info SessionInfo
	var direction string
	err := s.Scan(&info.ID, &direction, &info.Peer, &info.State, &info.Processed, &info.Total,
		&info.CreatedAt, &info.LastActive)
	info.Direction = Direction(direction)
	return info, err
}

// GetSession gets information about a session.
func (j *Journal) GetSession(id string) (SessionInfo, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	info, err := scanSession(j.db.QueryRow("SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SessionInfo{}, ErrUnknownSession
		}
		return SessionInfo{}, fmt.Errorf("failed to get session: %w", err)
	}
	return info, nil
}

// ListSessions returns every journaled session, newest first.
func (j *Journal) ListSessions() ([]SessionInfo, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query("SELECT " + sessionColumns + " FROM sessions ORDER BY created_at DESC, rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		info, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, info)
	}
	return sessions, rows.Err()
}

// CleanupSession removes all entries for a session.
func (j *Journal) CleanupSession(id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	// Cascade removes records and dead letters.
	result, err := j.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to cleanup session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrUnknownSession
	}
	return nil
}

// CleanupExpired removes sessions idle for longer than maxAge.
func (j *Journal) CleanupExpired(maxAge time.Duration) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge).Format("2006-01-02 15:04:05")
	result, err := j.db.Exec("DELETE FROM sessions WHERE last_active < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}
	n, _ := result.RowsAffected()
	if err := j.checkpoint(); err != nil {
		log.Warn().Err(err).Msg("Failed to checkpoint journal after cleanup")
	}
	return n, nil
}

// Close checkpoints and closes the journal.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.checkpoint(); err != nil {
		log.Warn().Err(err).Msg("Failed to checkpoint journal before closing")
	}
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("failed to close journal database: %w", err)
	}
	return nil
}

func (j *Journal) checkpoint() error {
	if _, err := j.db.Exec("PRAGMA wal_checkpoint(FULL)"); err != nil {
		return fmt.Errorf("failed to checkpoint WAL: %w", err)
	}
	return nil
}
