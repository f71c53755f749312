package storage

import (
	"encoding/json"
	"fmt"

	"whiteboard/internal/domain"
)

const (
	stackUndo = "undo"
	stackRedo = "redo"
)

// HistoryStore keeps the undo and redo stacks of a session so history
// survives a restart.
type HistoryStore struct {
	db       *DB
	maxDepth int
}

// NewHistoryStore keeps at most maxDepth entries per stack. Zero means no
// limit.
func NewHistoryStore(db *DB, maxDepth int) *HistoryStore {
	return &HistoryStore{db: db, maxDepth: maxDepth}
}

// Save replaces both stacks for a session. The oldest entries are pruned
// past the depth limit.
func (s *HistoryStore) Save(sessionID string, undo, redo []*domain.HistoryEntry) error {
	undo, redo = s.prune(undo), s.prune(redo)

	tx, err := s.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("begin history save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM history_entries WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	for stack, entries := range map[string][]*domain.HistoryEntry{stackUndo: undo, stackRedo: redo} {
		for i, e := range entries {
			raw, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encode history entry %s: %w", e.ID, err)
			}
			_, err = tx.Exec(
				`INSERT INTO history_entries (id, session_id, stack, position, entry_json)
				 VALUES (?, ?, ?, ?, ?)`,
				e.ID, sessionID, stack, i, string(raw),
			)
			if err != nil {
				return fmt.Errorf("insert history entry: %w", err)
			}
		}
	}
	return tx.Commit()
}

func (s *HistoryStore) prune(entries []*domain.HistoryEntry) []*domain.HistoryEntry {
	if s.maxDepth > 0 && len(entries) > s.maxDepth {
		return entries[len(entries)-s.maxDepth:]
	}
	return entries
}

// Load returns both stacks in push order. A session without history
// returns two nil slices.
func (s *HistoryStore) Load(sessionID string) (undo, redo []*domain.HistoryEntry, err error) {
	rows, err := s.db.Conn().Query(
		`SELECT stack, entry_json FROM history_entries
		 WHERE session_id = ? ORDER BY stack ASC, position ASC`, sessionID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var stack, raw string
		if err := rows.Scan(&stack, &raw); err != nil {
			return nil, nil, fmt.Errorf("scan history entry: %w", err)
		}
		var e domain.HistoryEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, nil, fmt.Errorf("decode history entry: %w", err)
		}
		if stack == stackUndo {
			undo = append(undo, &e)
		} else {
			redo = append(redo, &e)
		}
	}
	return undo, redo, rows.Err()
}

// Clear removes all history for a session.
func (s *HistoryStore) Clear(sessionID string) error {
	_, err := s.db.Conn().Exec(`DELETE FROM history_entries WHERE session_id = ?`, sessionID)
	return err
}
