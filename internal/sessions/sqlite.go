package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, registers as "sqlite"

	"github.com/meridianbank/agentcore/internal/model"
)

// SQLiteStore is the on-disk Store implementation (a supplemented
// feature over MemoryStore's process-lifetime-only persistence): a
// session survives an agent restart, at the cost of one round-trip
// through encoding/json per Update.
//
// Write serialization reuses the same Locker MemoryStore uses, rather
// than relying on SQLite's own locking, so Update's "run fn against the
// canonical session, then persist" contract holds even though "canonical"
// here means "freshly read from disk" instead of "held in memory".
//
// Grounded on the teacher's internal/memory/backend/sqlitevec.Backend
// (modernc.org/sqlite, one table, a CREATE TABLE IF NOT EXISTS schema
// migration run at construction).
type SQLiteStore struct {
	db     *sql.DB
	locker *Locker
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at path
// and ensures its schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sessions: open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writes per connection anyway

	store := &SQLiteStore{db: db, locker: NewLocker(DefaultLockTimeout)}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id   TEXT PRIMARY KEY,
			data BLOB NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("sessions: create schema: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create inserts s, failing with ErrAlreadyExists if s.ID is already live.
func (s *SQLiteStore) Create(ctx context.Context, sess *model.Session) error {
	if err := s.locker.Lock(ctx, sess.ID); err != nil {
		return err
	}
	defer s.locker.Unlock(sess.ID)

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("sessions: marshal session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO sessions (id, data) VALUES (?, ?)`, sess.ID, data)
	if err != nil {
		if isUniqueConstraintErr(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("sessions: insert session: %w", err)
	}
	return nil
}

// Get returns the session stored under id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Session, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: select session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("sessions: unmarshal session: %w", err)
	}
	return &sess, nil
}

// Update reads the canonical session under id's write lock, applies fn,
// and writes the result back, matching MemoryStore's "fn sees the live
// session, not a clone" contract even though here "live" means "the last
// row written under this lock".
func (s *SQLiteStore) Update(ctx context.Context, id string, fn func(*model.Session) error) error {
	if err := s.locker.Lock(ctx, id); err != nil {
		return err
	}
	defer s.locker.Unlock(id)

	sess, err := s.getLocked(ctx, id)
	if err != nil {
		return err
	}

	if err := fn(sess); err != nil {
		return err
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("sessions: marshal session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE sessions SET data = ? WHERE id = ?`, data, id)
	if err != nil {
		return fmt.Errorf("sessions: update session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) getLocked(ctx context.Context, id string) (*model.Session, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: select session: %w", err)
	}
	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("sessions: unmarshal session: %w", err)
	}
	return &sess, nil
}

// Delete removes id, idempotently.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := s.locker.Lock(ctx, id); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	s.locker.Unlock(id)
	s.locker.Forget(id)
	if err != nil {
		return fmt.Errorf("sessions: delete session: %w", err)
	}
	return nil
}

func isUniqueConstraintErr(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique")
}

var _ Store = (*SQLiteStore)(nil)
