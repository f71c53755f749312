package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"whiteboard/internal/domain"
)

// LocalStore persists the offline queue, its overflow and board snapshots
// in SQLite.
type LocalStore struct {
	db *DB
}

func NewLocalStore(db *DB) *LocalStore {
	return &LocalStore{db: db}
}

// SaveQueue replaces the stored queue for a session.
func (s *LocalStore) SaveQueue(sessionID string, items []domain.QueuedOperation) error {
	tx, err := s.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("begin queue save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM op_queue WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	for i, item := range items {
		raw, err := json.Marshal(item.Operation)
		if err != nil {
			return fmt.Errorf("encode operation %s: %w", item.ID, err)
		}
		_, err = tx.Exec(
			`INSERT INTO op_queue (id, session_id, position, op_json, queued_at, retries)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			item.ID, sessionID, i, string(raw), item.Timestamp, item.Retries,
		)
		if err != nil {
			return fmt.Errorf("insert queued operation: %w", err)
		}
	}
	return tx.Commit()
}

func (s *LocalStore) LoadQueue(sessionID string) ([]domain.QueuedOperation, error) {
	rows, err := s.db.Conn().Query(
		`SELECT id, op_json, queued_at, retries FROM op_queue
		 WHERE session_id = ? ORDER BY position ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	defer rows.Close()
	return scanQueued(rows, true)
}

func (s *LocalStore) AppendOverflow(sessionID string, item domain.QueuedOperation) error {
	raw, err := json.Marshal(item.Operation)
	if err != nil {
		return fmt.Errorf("encode overflow operation: %w", err)
	}
	_, err = s.db.Conn().Exec(
		`INSERT INTO overflow_ops (id, session_id, op_json, queued_at) VALUES (?, ?, ?, ?)`,
		item.ID, sessionID, string(raw), item.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert overflow operation: %w", err)
	}
	return nil
}

func (s *LocalStore) LoadOverflow(sessionID string) ([]domain.QueuedOperation, error) {
	rows, err := s.db.Conn().Query(
		`SELECT id, op_json, queued_at FROM overflow_ops
		 WHERE session_id = ? ORDER BY seq ASC`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load overflow: %w", err)
	}
	defer rows.Close()
	return scanQueued(rows, false)
}

func (s *LocalStore) ClearOverflow(sessionID string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM overflow_ops WHERE session_id = ?`, sessionID)
	return err
}

func scanQueued(rows *sql.Rows, withRetries bool) ([]domain.QueuedOperation, error) {
	var out []domain.QueuedOperation
	for rows.Next() {
		var (
			item domain.QueuedOperation
			raw  string
			err  error
		)
		if withRetries {
			err = rows.Scan(&item.ID, &raw, &item.Timestamp, &item.Retries)
		} else {
			err = rows.Scan(&item.ID, &raw, &item.Timestamp)
		}
		if err != nil {
			return nil, fmt.Errorf("scan operation: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &item.Operation); err != nil {
			return nil, fmt.Errorf("decode operation %s: %w", item.ID, err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// SaveState upserts the snapshot for a session.
func (s *LocalStore) SaveState(sessionID string, state *domain.BoardState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode board state: %w", err)
	}
	_, err = s.db.Conn().Exec(
		`INSERT INTO board_state (session_id, state_json, version, updated_at)
		 VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(session_id) DO UPDATE SET
			state_json = excluded.state_json,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		sessionID, string(raw), state.Version,
	)
	if err != nil {
		return fmt.Errorf("upsert board state: %w", err)
	}
	return nil
}

// LoadState returns nil, nil when the session has no snapshot.
func (s *LocalStore) LoadState(sessionID string) (*domain.BoardState, error) {
	var raw string
	err := s.db.Conn().QueryRow(
		`SELECT state_json FROM board_state WHERE session_id = ?`, sessionID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load board state: %w", err)
	}
	var state domain.BoardState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode board state: %w", err)
	}
	return &state, nil
}

func (s *LocalStore) ClearState(sessionID string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM board_state WHERE session_id = ?`, sessionID)
	return err
}

// Sessions lists every session with a stored snapshot, most recent first.
func (s *LocalStore) Sessions() ([]string, error) {
	rows, err := s.db.Conn().Query(`SELECT session_id FROM board_state ORDER BY updated_at DESC, session_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
