package service

import (
	"context"
	"sync"
)

// ExportedSyncGuard lets the _test package exercise the guard.
type ExportedSyncGuard = syncGuard

// ─────────────────────────────────────────────────────────────
// syncGuard: one sync per session at a time
// ─────────────────────────────────────────────────────────────

// syncGuard keeps a cron tick and a manual sync of the same session from
// overlapping, and lets Close wait for the one in flight.
type syncGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock marks sessionID as syncing. It returns false when a sync for
// that session is already running.
func (g *syncGuard) TryLock(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, busy := g.running[sessionID]; busy {
		return false
	}
	g.running[sessionID] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock releases a session taken by a successful TryLock.
func (g *syncGuard) Unlock(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.running[sessionID]; !busy {
		return
	}
	delete(g.running, sessionID)
	g.wg.Done()
}

func (g *syncGuard) Running(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.running[sessionID]
	return busy
}

// WaitAll blocks until no sync runs or ctx ends.
func (g *syncGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
