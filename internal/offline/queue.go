package offline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"whiteboard/internal/domain"
	"whiteboard/internal/events"
)

const (
	DefaultMaxQueueSize = 100
	DefaultMaxRetries   = 5
)

type EventType string

const (
	OnlineChanged EventType = "online-status-change"
	QueueChanged  EventType = "queue-change"
	Overflowed    EventType = "queue-overflow"
	ForceSync     EventType = "force-sync-requested"
	SyncStarted   EventType = "sync-start"
	SyncCompleted EventType = "sync-complete"
	SyncFailed    EventType = "sync-error"
	StatusChanged EventType = "sync-status"
)

// OverflowInfo describes one operation that did not fit in the queue.
type OverflowInfo struct {
	QueueSize     int    `json:"queueSize"`
	OverflowCount int    `json:"overflowCount"`
	OperationID   string `json:"operationId"`
}

type Event struct {
	Type     EventType
	Online   bool
	Pending  int
	Status   domain.SyncStatus
	Overflow *OverflowInfo
	Result   *domain.SyncResult
	Err      error
}

type Options struct {
	MaxSize    int
	MaxRetries int
	Now        func() time.Time
}

// Queue is the bounded, durable list of operations waiting to reach the
// sync service. Operations past capacity spill into the overflow store.
// Sync failures never escape as errors; they are reported through Events.
type Queue struct {
	mu            sync.Mutex
	syncMu        sync.Mutex
	sessionID     string
	store         domain.LocalStore
	maxSize       int
	maxRetries    int
	now           func() time.Time
	online        bool
	syncing       bool
	lastErr       error
	items         []domain.QueuedOperation
	overflowCount int

	Events *events.Bus[Event]
}

// New restores the persisted queue for sessionID. A queue that cannot be
// read starts empty.
func New(sessionID string, store domain.LocalStore, opts Options) *Queue {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxQueueSize
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	q := &Queue{
		sessionID:  sessionID,
		store:      store,
		maxSize:    opts.MaxSize,
		maxRetries: opts.MaxRetries,
		now:        opts.Now,
		online:     true,
		Events:     events.NewBus[Event](),
	}
	items, err := store.LoadQueue(sessionID)
	if err != nil {
		log.Printf("[OFFLINE] load queue %s: %v", sessionID, err)
	}
	if len(items) > q.maxSize {
		items = items[:q.maxSize]
	}
	q.items = items
	if overflow, err := store.LoadOverflow(sessionID); err == nil {
		q.overflowCount = len(overflow)
	}
	return q
}

func (q *Queue) SessionID() string { return q.sessionID }

// Queue appends op and persists the queue. An update replaces the pending
// create or update of the same component, so an in-progress edit holds one
// slot. At capacity the operation goes to the overflow store instead and a
// forced sync is requested. It reports whether op joined the queue.
func (q *Queue) Queue(op domain.BoardOperation) bool {
	q.mu.Lock()
	if op = q.coalesceLocked(op); len(q.items) >= q.maxSize {
		q.overflowCount++
		info := OverflowInfo{QueueSize: len(q.items), OverflowCount: q.overflowCount, OperationID: op.ID}
		q.mu.Unlock()
		q.spill(op, &info)
		return false
	}
	q.items = append(q.items, domain.QueuedOperation{
		ID:        uuid.New().String(),
		Operation: op,
		Timestamp: q.now().UnixMilli(),
	})
	snapshot := q.snapshotLocked()
	q.mu.Unlock()

	q.persist(snapshot)
	q.Events.Publish(Event{Type: QueueChanged, Pending: len(snapshot)})
	q.publishStatus()
	return true
}

// coalesceLocked drops the pending create or update that op supersedes and
// returns op with the type the remote must see. The merged item gets a new
// id so a sync already carrying the old one does not remove it.
func (q *Queue) coalesceLocked(op domain.BoardOperation) domain.BoardOperation {
	if op.Type != domain.OpUpdate || op.ComponentID == "" {
		return op
	}
	for i := len(q.items) - 1; i >= 0; i-- {
		prev := q.items[i].Operation
		if prev.ComponentID != op.ComponentID {
			continue
		}
		if prev.Type != domain.OpCreate && prev.Type != domain.OpUpdate {
			return op
		}
		op.Type = prev.Type
		q.items = append(q.items[:i], q.items[i+1:]...)
		return op
	}
	return op
}

func (q *Queue) spill(op domain.BoardOperation, info *OverflowInfo) {
	item := domain.QueuedOperation{ID: uuid.New().String(), Operation: op, Timestamp: q.now().UnixMilli()}
	if info.OperationID == "" {
		info.OperationID = item.ID
	}
	if err := q.store.AppendOverflow(q.sessionID, item); err != nil {
		log.Printf("[OFFLINE] save overflow: %v", err)
	}
	log.Printf("[OFFLINE] queue full (%d), operation %s moved to overflow", info.QueueSize, info.OperationID)
	q.Events.Publish(Event{Type: Overflowed, Overflow: info, Pending: info.QueueSize})
	q.Events.Publish(Event{Type: ForceSync, Pending: info.QueueSize})
}

// Sync submits every queued operation in one call. Items submitted
// successfully are removed; on failure each submitted item's retry count
// grows and items reaching the retry ceiling are dropped.
func (q *Queue) Sync(ctx context.Context, svc domain.SyncService) domain.SyncResult {
	q.syncMu.Lock()
	defer q.syncMu.Unlock()

	q.mu.Lock()
	pending := q.snapshotLocked()
	online := q.online
	q.mu.Unlock()

	if len(pending) == 0 {
		return domain.SyncResult{Success: true}
	}
	if !online {
		return domain.SyncResult{Failed: len(pending), Errors: []error{domain.ErrOffline}}
	}

	q.setSyncing(true)
	q.Events.Publish(Event{Type: SyncStarted, Pending: len(pending)})

	ops := make([]domain.BoardOperation, len(pending))
	for i, item := range pending {
		ops[i] = item.Operation
	}
	err := svc.SubmitOperations(ctx, q.sessionID, ops)

	var result domain.SyncResult
	if err == nil {
		q.remove(pending, nil)
		result = domain.SyncResult{Success: true, Synced: len(pending)}
	} else {
		err = fmt.Errorf("%w: %w", domain.ErrSync, err)
		q.remove(pending, err)
		result = domain.SyncResult{Failed: len(pending), Errors: []error{err}}
	}

	q.setSyncing(false)
	if err != nil {
		log.Printf("[OFFLINE] sync %s: %v", q.sessionID, err)
		q.Events.Publish(Event{Type: SyncFailed, Err: err, Pending: q.Pending()})
	}
	q.Events.Publish(Event{Type: SyncCompleted, Result: &result, Pending: q.Pending()})
	q.publishStatus()
	return result
}

// remove settles a submitted batch. With a nil err the submitted items are
// deleted; otherwise they are retried or dropped at the ceiling. Items
// queued while the batch was in flight are kept untouched.
func (q *Queue) remove(submitted []domain.QueuedOperation, err error) {
	sent := make(map[string]struct{}, len(submitted))
	for _, item := range submitted {
		sent[item.ID] = struct{}{}
	}

	q.mu.Lock()
	kept := q.items[:0]
	for _, item := range q.items {
		if _, ok := sent[item.ID]; ok {
			if err == nil {
				continue
			}
			item.Retries++
			if item.Retries >= q.maxRetries {
				log.Printf("[OFFLINE] dropping operation %s after %d retries", item.ID, item.Retries)
				continue
			}
		}
		kept = append(kept, item)
	}
	q.items = kept
	q.lastErr = err
	snapshot := q.snapshotLocked()
	q.mu.Unlock()

	q.persist(snapshot)
	q.Events.Publish(Event{Type: QueueChanged, Pending: len(snapshot)})
}

// SetOnline records connectivity. It never starts a sync.
func (q *Queue) SetOnline(online bool) {
	q.mu.Lock()
	if q.online == online {
		q.mu.Unlock()
		return
	}
	q.online = online
	q.mu.Unlock()
	q.Events.Publish(Event{Type: OnlineChanged, Online: online})
	q.publishStatus()
}

func (q *Queue) Online() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.online
}

func (q *Queue) setSyncing(v bool) {
	q.mu.Lock()
	q.syncing = v
	q.mu.Unlock()
	q.publishStatus()
}

func (q *Queue) Status() domain.SyncStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case !q.online:
		return domain.SyncOffline
	case q.syncing:
		return domain.SyncSyncing
	case len(q.items) > 0 && q.lastErr != nil:
		return domain.SyncError
	case len(q.items) > 0:
		return domain.SyncPending
	}
	return domain.SyncSynced
}

func (q *Queue) publishStatus() {
	q.Events.Publish(Event{Type: StatusChanged, Status: q.Status(), Pending: q.Pending()})
}

func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a copy of the queued operations in order.
func (q *Queue) Items() []domain.QueuedOperation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshotLocked()
}

// Clear empties the queue without syncing.
func (q *Queue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.lastErr = nil
	q.mu.Unlock()
	q.persist(nil)
	q.Events.Publish(Event{Type: QueueChanged})
	q.publishStatus()
}

// OverflowStatus reports how many operations spilled since the last clear.
func (q *Queue) OverflowStatus() (bool, int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.overflowCount > 0, q.overflowCount
}

// RecoverOverflow returns the spilled operations for this session in the
// order they overflowed.
func (q *Queue) RecoverOverflow() ([]domain.BoardOperation, error) {
	items, err := q.store.LoadOverflow(q.sessionID)
	if err != nil {
		return nil, fmt.Errorf("load overflow: %w", err)
	}
	ops := make([]domain.BoardOperation, len(items))
	for i, item := range items {
		ops[i] = item.Operation
	}
	return ops, nil
}

func (q *Queue) ClearOverflow() error {
	if err := q.store.ClearOverflow(q.sessionID); err != nil {
		return fmt.Errorf("clear overflow: %w", err)
	}
	q.mu.Lock()
	q.overflowCount = 0
	q.mu.Unlock()
	return nil
}

// SaveLocalState stores a full snapshot for fast resume, independent of
// the queue.
func (q *Queue) SaveLocalState(state *domain.BoardState) error {
	if err := q.store.SaveState(q.sessionID, state); err != nil {
		return fmt.Errorf("save local state: %w", err)
	}
	return nil
}

// LoadLocalState returns the stored snapshot or nil when there is none.
func (q *Queue) LoadLocalState() (*domain.BoardState, error) {
	state, err := q.store.LoadState(q.sessionID)
	if err != nil {
		return nil, fmt.Errorf("load local state: %w", err)
	}
	return state, nil
}

func (q *Queue) ClearLocalState() error {
	if err := q.store.ClearState(q.sessionID); err != nil {
		return fmt.Errorf("clear local state: %w", err)
	}
	return nil
}

func (q *Queue) snapshotLocked() []domain.QueuedOperation {
	return append([]domain.QueuedOperation(nil), q.items...)
}

func (q *Queue) persist(items []domain.QueuedOperation) {
	if err := q.store.SaveQueue(q.sessionID, items); err != nil {
		log.Printf("[OFFLINE] save queue: %v", err)
	}
}
