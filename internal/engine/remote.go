package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"whiteboard/internal/domain"
)

// ApplyRemoteOperation applies an operation from another participant.
// Creates and updates follow last-write-wins on the component version.
// It reports how many components changed.
func (e *Engine) ApplyRemoteOperation(op domain.BoardOperation) (int, error) {
	if !e.alive() {
		return 0, domain.ErrDestroyed
	}
	switch op.Type {
	case domain.OpCreate, domain.OpUpdate:
		c, err := op.Component()
		if err != nil {
			return 0, fmt.Errorf("%w: decode remote component: %w", domain.ErrValidation, err)
		}
		if c == nil {
			return 0, fmt.Errorf("%w: %s operation without data", domain.ErrValidation, op.Type)
		}
		if c.ID == "" {
			c.ID = op.ComponentID
		}
		if e.Components.ApplyRemote(c) {
			return 1, nil
		}
		return 0, nil
	case domain.OpDelete:
		if op.ComponentID == "" {
			return 0, fmt.Errorf("%w: delete without component id", domain.ErrValidation)
		}
		if e.Components.RemoveRemote(op.ComponentID) {
			return 1, nil
		}
		return 0, nil
	case domain.OpBatch:
		total := 0
		var firstErr error
		for _, sub := range op.Operations {
			n, err := e.ApplyRemoteOperation(sub)
			total += n
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return total, firstErr
	}
	return 0, fmt.Errorf("%w: unknown operation type %q", domain.ErrValidation, op.Type)
}

// ── Remote cursors ──────────────────────────────────────────

// UpdateRemoteCursor records a participant's pointer. A zero LastUpdate is
// stamped with the current time.
func (e *Engine) UpdateRemoteCursor(c domain.RemoteCursor) {
	if c.UserID == "" {
		return
	}
	if c.LastUpdate == 0 {
		c.LastUpdate = e.opts.Now().UnixMilli()
	}
	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return
	}
	e.cursors[c.UserID] = c
	e.mu.Unlock()
	e.emit(Event{Type: CursorUpdated, Cursor: &c})
	e.RequestRender()
}

func (e *Engine) RemoveRemoteCursor(userID string) {
	e.mu.Lock()
	_, ok := e.cursors[userID]
	delete(e.cursors, userID)
	e.mu.Unlock()
	if ok {
		e.emit(Event{Type: CursorRemoved, Cursor: &domain.RemoteCursor{UserID: userID}})
		e.RequestRender()
	}
}

// RemoteCursors lists the known cursors ordered by user id.
func (e *Engine) RemoteCursors() []domain.RemoteCursor {
	e.mu.Lock()
	out := make([]domain.RemoteCursor, 0, len(e.cursors))
	for _, c := range e.cursors {
		out = append(out, c)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// PruneCursors drops cursors not updated within the cursor timeout and
// returns how many were removed.
func (e *Engine) PruneCursors() int {
	cutoff := e.opts.Now().Add(-e.opts.CursorTimeout).UnixMilli()
	var stale []string
	e.mu.Lock()
	for id, c := range e.cursors {
		if c.LastUpdate < cutoff {
			stale = append(stale, id)
		}
	}
	e.mu.Unlock()
	for _, id := range stale {
		e.RemoveRemoteCursor(id)
	}
	return len(stale)
}

func (e *Engine) startPrune() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.stopPrune = cancel
	e.pruneDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(e.opts.PruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.PruneCursors()
			}
		}
	}()
}
