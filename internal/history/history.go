package history

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"whiteboard/internal/domain"
	"whiteboard/internal/events"
)

// DefaultCapacity bounds both stacks.
const DefaultCapacity = 50

type EventType string

const (
	Changed   EventType = "history-change"
	Truncated EventType = "history-truncated"
)

type Event struct {
	Type      EventType
	CanUndo   bool
	CanRedo   bool
	DroppedID string
	Capacity  int
}

// Tracker keeps linear undo/redo history. Entries own deep copies of the
// component states they carry.
type Tracker struct {
	mu         sync.Mutex
	capacity   int
	undo       []*domain.HistoryEntry
	redo       []*domain.HistoryEntry
	batchDepth int
	batchID    string
	prevItems  []domain.BatchItem
	newItems   []domain.BatchItem
	now        func() time.Time

	Events *events.Bus[Event]
}

func New(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Tracker{
		capacity: capacity,
		now:      time.Now,
		Events:   events.NewBus[Event](),
	}
}

// Record adds a single entry, or buffers it when a batch is open.
// prev and next are nil for the side where the component does not exist.
func (t *Tracker) Record(action domain.HistoryAction, componentID string, prev, next *domain.Component) {
	t.mu.Lock()
	if t.batchDepth > 0 {
		t.prevItems = append(t.prevItems, domain.BatchItem{Action: action, ComponentID: componentID, State: prev.Clone()})
		t.newItems = append(t.newItems, domain.BatchItem{Action: action, ComponentID: componentID, State: next.Clone()})
		t.mu.Unlock()
		return
	}
	entry := &domain.HistoryEntry{
		ID:            uuid.New().String(),
		Action:        action,
		ComponentID:   componentID,
		PreviousState: prev.Clone(),
		NewState:      next.Clone(),
		Timestamp:     t.now().UnixMilli(),
	}
	dropped := t.pushLocked(entry)
	t.mu.Unlock()
	t.emit(dropped)
}

// StartBatch opens a batch. Nested calls are counted; only the outermost
// EndBatch closes it.
func (t *Tracker) StartBatch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.batchDepth == 0 {
		t.batchID = uuid.New().String()
		t.prevItems = nil
		t.newItems = nil
	}
	t.batchDepth++
}

// EndBatch closes the batch and records it as one entry. An empty batch is
// discarded and leaves the stacks untouched.
func (t *Tracker) EndBatch() {
	t.mu.Lock()
	if t.batchDepth == 0 {
		t.mu.Unlock()
		return
	}
	t.batchDepth--
	if t.batchDepth > 0 {
		t.mu.Unlock()
		return
	}
	if len(t.newItems) == 0 {
		t.batchID = ""
		t.mu.Unlock()
		return
	}
	entry := &domain.HistoryEntry{
		ID:            uuid.New().String(),
		Action:        domain.ActionBatch,
		PreviousItems: t.prevItems,
		NewItems:      t.newItems,
		Timestamp:     t.now().UnixMilli(),
		BatchID:       t.batchID,
	}
	t.prevItems, t.newItems, t.batchID = nil, nil, ""
	dropped := t.pushLocked(entry)
	t.mu.Unlock()
	t.emit(dropped)
}

// InBatch reports whether a batch is open.
func (t *Tracker) InBatch() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.batchDepth > 0
}

func (t *Tracker) pushLocked(e *domain.HistoryEntry) string {
	t.redo = nil
	t.undo = append(t.undo, e)
	if len(t.undo) > t.capacity {
		dropped := t.undo[0]
		t.undo = t.undo[1:]
		return dropped.ID
	}
	return ""
}

// Undo pops the newest entry, moves it to the redo stack and returns it.
// The caller applies entry.Items(true).
func (t *Tracker) Undo() *domain.HistoryEntry {
	t.mu.Lock()
	if len(t.undo) == 0 {
		t.mu.Unlock()
		return nil
	}
	e := t.undo[len(t.undo)-1]
	t.undo = t.undo[:len(t.undo)-1]
	t.redo = append(t.redo, e)
	if len(t.redo) > t.capacity {
		t.redo = t.redo[1:]
	}
	t.mu.Unlock()
	t.emit("")
	return e
}

// Redo is the inverse of Undo. The caller applies entry.Items(false).
func (t *Tracker) Redo() *domain.HistoryEntry {
	t.mu.Lock()
	if len(t.redo) == 0 {
		t.mu.Unlock()
		return nil
	}
	e := t.redo[len(t.redo)-1]
	t.redo = t.redo[:len(t.redo)-1]
	t.undo = append(t.undo, e)
	t.mu.Unlock()
	t.emit("")
	return e
}

func (t *Tracker) CanUndo() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.undo) > 0
}

func (t *Tracker) CanRedo() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.redo) > 0
}

// Len returns the sizes of the undo and redo stacks.
func (t *Tracker) Len() (undo, redo int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.undo), len(t.redo)
}

func (t *Tracker) Capacity() int { return t.capacity }

// Clear empties both stacks and drops any open batch.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.undo, t.redo = nil, nil
	t.batchDepth = 0
	t.prevItems, t.newItems, t.batchID = nil, nil, ""
	t.mu.Unlock()
	t.emit("")
}

// Stacks returns copies of both stacks, oldest first, for persistence.
func (t *Tracker) Stacks() (undo, redo []*domain.HistoryEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*domain.HistoryEntry(nil), t.undo...), append([]*domain.HistoryEntry(nil), t.redo...)
}

// Restore replaces both stacks, trimming each to capacity from the oldest end.
func (t *Tracker) Restore(undo, redo []*domain.HistoryEntry) {
	t.mu.Lock()
	if n := len(undo) - t.capacity; n > 0 {
		undo = undo[n:]
	}
	if n := len(redo) - t.capacity; n > 0 {
		redo = redo[n:]
	}
	t.undo = append([]*domain.HistoryEntry(nil), undo...)
	t.redo = append([]*domain.HistoryEntry(nil), redo...)
	t.mu.Unlock()
	t.emit("")
}

func (t *Tracker) emit(dropped string) {
	if dropped != "" {
		t.Events.Publish(Event{Type: Truncated, DroppedID: dropped, Capacity: t.capacity})
	}
	t.Events.Publish(Event{Type: Changed, CanUndo: t.CanUndo(), CanRedo: t.CanRedo()})
}
