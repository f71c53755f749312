package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
)

// Opener builds the service for one session.
type Opener func(ctx context.Context, sessionID string) (*BoardService, error)

// Registry keeps one open BoardService per session and opens boards on
// first use.
type Registry struct {
	open Opener

	mu     sync.Mutex
	boards map[string]*BoardService
	closed bool
}

func NewRegistry(open Opener) *Registry {
	return &Registry{open: open, boards: make(map[string]*BoardService)}
}

// Get returns the open board for sessionID, opening it when needed.
func (r *Registry) Get(ctx context.Context, sessionID string) (*BoardService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("registry closed")
	}
	if b, ok := r.boards[sessionID]; ok {
		return b, nil
	}
	b, err := r.open(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	r.boards[sessionID] = b
	return b, nil
}

// Sessions lists the open boards.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.boards))
	for id := range r.boards {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Release closes one board.
func (r *Registry) Release(sessionID string) error {
	r.mu.Lock()
	b, ok := r.boards[sessionID]
	delete(r.boards, sessionID)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return b.Close()
}

// Close closes every open board and refuses new ones.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	boards := r.boards
	r.boards = make(map[string]*BoardService)
	r.mu.Unlock()

	var errs []error
	for id, b := range boards {
		if err := b.Close(); err != nil {
			log.Printf("[SYNC] close board %s: %v", id, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
