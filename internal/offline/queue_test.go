package offline

import (
	"context"
	"errors"
	"testing"

	"whiteboard/internal/domain"
)

type fakeSync struct {
	err   error
	calls int
	got   []domain.BoardOperation
}

func (f *fakeSync) SubmitOperations(_ context.Context, _ string, ops []domain.BoardOperation) error {
	f.calls++
	f.got = ops
	return f.err
}

func op(id string) domain.BoardOperation {
	return domain.BoardOperation{ID: id, Type: domain.OpCreate, ComponentID: id}
}

func collect(q *Queue) *[]Event {
	var evs []Event
	q.Events.Subscribe(func(e Event) { evs = append(evs, e) })
	return &evs
}

func count(evs []Event, typ EventType) int {
	n := 0
	for _, e := range evs {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func TestQueue_PersistsAndRestores(t *testing.T) {
	store := NewMemoryStore()
	q := New("s1", store, Options{})
	q.Queue(op("a"))
	q.Queue(op("b"))

	restored := New("s1", store, Options{})
	items := restored.Items()
	if len(items) != 2 || items[0].Operation.ID != "a" || items[1].Operation.ID != "b" {
		t.Fatalf("expected queue a,b restored, got %+v", items)
	}
	if restored.Status() != domain.SyncPending {
		t.Errorf("expected pending status, got %s", restored.Status())
	}
	if other := New("s2", store, Options{}); other.Pending() != 0 {
		t.Errorf("expected queues isolated by session, got %d", other.Pending())
	}
}

func TestQueue_OverflowNeverGrowsQueue(t *testing.T) {
	store := NewMemoryStore()
	q := New("s", store, Options{MaxSize: 3})
	evs := collect(q)

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		q.Queue(op(id))
	}

	if q.Pending() != 3 {
		t.Errorf("expected queue capped at 3, got %d", q.Pending())
	}
	if n := count(*evs, Overflowed); n != 2 {
		t.Errorf("expected one overflow event per excess operation, got %d", n)
	}
	if n := count(*evs, ForceSync); n != 2 {
		t.Errorf("expected 2 force-sync requests, got %d", n)
	}
	var last *OverflowInfo
	for _, e := range *evs {
		if e.Type == Overflowed {
			last = e.Overflow
		}
	}
	if last == nil || last.QueueSize != 3 || last.OverflowCount != 2 || last.OperationID != "e" {
		t.Errorf("unexpected overflow info %+v", last)
	}

	ops, err := q.RecoverOverflow()
	if err != nil {
		t.Fatalf("RecoverOverflow: %v", err)
	}
	if len(ops) != 2 || ops[0].ID != "d" {
		t.Errorf("expected d,e in overflow, got %+v", ops)
	}
	if err := q.ClearOverflow(); err != nil {
		t.Fatalf("ClearOverflow: %v", err)
	}
	if has, n := q.OverflowStatus(); has || n != 0 {
		t.Errorf("expected overflow cleared, got %v %d", has, n)
	}
}

func TestQueue_SyncSuccessClears(t *testing.T) {
	q := New("s", NewMemoryStore(), Options{})
	svc := &fakeSync{}

	if res := q.Sync(context.Background(), svc); !res.Success || svc.calls != 0 {
		t.Errorf("expected empty sync to succeed without calling service, got %+v", res)
	}

	q.Queue(op("a"))
	q.Queue(op("b"))
	res := q.Sync(context.Background(), svc)
	if !res.Success || res.Synced != 2 {
		t.Errorf("expected 2 synced, got %+v", res)
	}
	if len(svc.got) != 2 || svc.got[0].ID != "a" {
		t.Errorf("expected operations submitted in order, got %+v", svc.got)
	}
	if q.Pending() != 0 || q.Status() != domain.SyncSynced {
		t.Errorf("expected empty synced queue, got %d %s", q.Pending(), q.Status())
	}
}

func TestQueue_OfflineShortCircuits(t *testing.T) {
	q := New("s", NewMemoryStore(), Options{})
	evs := collect(q)
	q.Queue(op("a"))
	q.SetOnline(false)
	q.SetOnline(false)

	svc := &fakeSync{}
	res := q.Sync(context.Background(), svc)
	if res.Success || res.Failed != 1 || !errors.Is(res.Errors[0], domain.ErrOffline) {
		t.Errorf("expected offline failure, got %+v", res)
	}
	if svc.calls != 0 {
		t.Error("expected no submission while offline")
	}
	if n := count(*evs, OnlineChanged); n != 1 {
		t.Errorf("expected one online change event, got %d", n)
	}
	if q.Status() != domain.SyncOffline || q.Pending() != 1 {
		t.Errorf("expected offline with 1 pending, got %s %d", q.Status(), q.Pending())
	}
}

func TestQueue_RetryCeilingDrops(t *testing.T) {
	q := New("s", NewMemoryStore(), Options{})
	evs := collect(q)
	svc := &fakeSync{err: errors.New("503")}
	q.Queue(op("a"))

	for i := 1; i < DefaultMaxRetries; i++ {
		res := q.Sync(context.Background(), svc)
		if res.Success || !errors.Is(res.Errors[0], domain.ErrSync) {
			t.Fatalf("expected sync error, got %+v", res)
		}
		if items := q.Items(); len(items) != 1 || items[0].Retries != i {
			t.Fatalf("expected retry count %d, got %+v", i, items)
		}
	}
	if q.Status() != domain.SyncError {
		t.Errorf("expected error status, got %s", q.Status())
	}

	// Late arrival is not charged for the failed batch.
	q.Queue(op("b"))
	svc.err = errors.New("still down")
	q.Sync(context.Background(), svc)
	items := q.Items()
	if len(items) != 1 || items[0].Operation.ID != "b" || items[0].Retries != 1 {
		t.Errorf("expected a dropped at the ceiling and b retried once, got %+v", items)
	}
	if n := count(*evs, SyncFailed); n != DefaultMaxRetries {
		t.Errorf("expected %d sync-error events, got %d", DefaultMaxRetries, n)
	}
}

func TestQueue_LocalState(t *testing.T) {
	q := New("s", NewMemoryStore(), Options{})
	if st, err := q.LoadLocalState(); err != nil || st != nil {
		t.Fatalf("expected no state, got %v %v", st, err)
	}
	state := &domain.BoardState{SessionID: "s", Viewport: domain.Viewport{X: 5, Zoom: 2}}
	if err := q.SaveLocalState(state); err != nil {
		t.Fatalf("SaveLocalState: %v", err)
	}
	got, err := q.LoadLocalState()
	if err != nil || got.Viewport.X != 5 {
		t.Errorf("expected restored viewport, got %+v %v", got, err)
	}
	if err := q.ClearLocalState(); err != nil {
		t.Fatalf("ClearLocalState: %v", err)
	}
	if got, _ := q.LoadLocalState(); got != nil {
		t.Errorf("expected state cleared, got %+v", got)
	}
}

func update(id, component string) domain.BoardOperation {
	return domain.BoardOperation{ID: id, Type: domain.OpUpdate, ComponentID: component}
}

func TestQueue_UpdatesCoalescePerComponent(t *testing.T) {
	q := New("s", NewMemoryStore(), Options{MaxSize: 3})
	evs := collect(q)

	q.Queue(op("stroke"))
	for i := 0; i < 150; i++ {
		q.Queue(update("u", "stroke"))
	}
	q.Queue(update("u2", "other"))
	q.Queue(update("u3", "other"))

	items := q.Items()
	if len(items) != 2 {
		t.Fatalf("expected one slot per component, got %d", len(items))
	}
	if items[0].Operation.Type != domain.OpCreate || items[0].Operation.ComponentID != "stroke" {
		t.Errorf("expected merged create for stroke, got %+v", items[0].Operation)
	}
	if items[1].Operation.ID != "u3" || items[1].Operation.Type != domain.OpUpdate {
		t.Errorf("expected latest update for other, got %+v", items[1].Operation)
	}
	if n := count(*evs, Overflowed); n != 0 {
		t.Errorf("expected no overflow, got %d", n)
	}
}

func TestQueue_UpdateAfterDeleteIsKept(t *testing.T) {
	q := New("s", NewMemoryStore(), Options{})
	q.Queue(domain.BoardOperation{ID: "d", Type: domain.OpDelete, ComponentID: "c"})
	q.Queue(update("u", "c"))
	if q.Pending() != 2 {
		t.Errorf("expected delete and update both queued, got %d", q.Pending())
	}
}
