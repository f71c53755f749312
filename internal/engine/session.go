package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"whiteboard/internal/domain"
)

// scheduleSave restarts the autosave debounce.
func (e *Engine) scheduleSave() {
	if e.opts.Persist == nil && e.opts.Local == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	if e.saveTimer != nil {
		e.saveTimer.Stop()
	}
	e.saveTimer = time.AfterFunc(e.opts.SyncDebounce, e.autosave)
}

// SavePending reports whether an autosave is scheduled.
func (e *Engine) SavePending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saveTimer != nil
}

func (e *Engine) autosave() {
	e.mu.Lock()
	e.saveTimer = nil
	dead := e.destroyed
	e.mu.Unlock()
	if dead {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.SaveSession(ctx); err != nil {
		log.Printf("[ENGINE] autosave %s: %v", e.opts.SessionID, err)
	}
}

// State captures the whole board.
func (e *Engine) State() *domain.BoardState {
	return &domain.BoardState{
		SessionID:  e.opts.SessionID,
		Layers:     e.Layers.All(),
		Components: deref(e.Components.All()),
		Viewport:   e.Viewport.Viewport(),
		Version:    int(e.opts.Now().UnixMilli()),
	}
}

// SaveSession writes the current state to the autosave target and reports
// the outcome as a sync-status event.
func (e *Engine) SaveSession(ctx context.Context) error {
	if !e.alive() {
		return domain.ErrDestroyed
	}
	state := e.State()
	var err error
	switch {
	case e.opts.Persist != nil:
		err = e.opts.Persist(ctx, state)
	case e.opts.Local != nil:
		err = e.opts.Local.SaveLocalState(state)
	default:
		return nil
	}
	if err != nil {
		err = fmt.Errorf("save session: %w", err)
		e.emit(Event{Type: SyncStatus, Status: domain.SyncError, Err: err})
		return err
	}
	e.emit(Event{Type: Saved})
	e.emit(Event{Type: SyncStatus, Status: domain.SyncSynced})
	return nil
}

// LoadSession restores the local snapshot, if any, and reports whether one
// was found.
func (e *Engine) LoadSession() (bool, error) {
	if !e.alive() {
		return false, domain.ErrDestroyed
	}
	if e.opts.Local == nil {
		return false, nil
	}
	state, err := e.opts.Local.LoadLocalState()
	if err != nil {
		return false, err
	}
	if state == nil {
		return false, nil
	}
	e.LoadState(state)
	return true, nil
}

// LoadState replaces the board with state. Selection and history are
// reset since they refer to the previous board.
func (e *Engine) LoadState(state *domain.BoardState) {
	if !e.alive() || state == nil {
		return
	}
	e.input.Lock()
	e.Tools.Deactivate()
	e.input.Unlock()

	e.Selection.Clear()
	e.Layers.Load(state.Layers)
	n := e.Components.Load(state.Components)
	if state.Viewport.Zoom > 0 {
		e.Viewport.Restore(state.Viewport)
	}
	e.History.Clear()
	if n < len(state.Components) {
		log.Printf("[ENGINE] loaded %d of %d components for %s", n, len(state.Components), e.opts.SessionID)
	}
	e.emit(Event{Type: LayersChanged, Layers: e.Layers.All()})
	e.RequestRender()
}
