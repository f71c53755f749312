package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"whiteboard/internal/domain"
	"whiteboard/internal/engine"
	"whiteboard/internal/offline"
	"whiteboard/internal/remote"
	"whiteboard/internal/service"
	"whiteboard/internal/storage"
	"whiteboard/internal/transport"
)

// ─────────────────────────────────────────────────────────────
// SyncGuard tests
// ─────────────────────────────────────────────────────────────

func TestSyncGuard_TryLock(t *testing.T) {
	var g service.ExportedSyncGuard

	if !g.TryLock("board-1") {
		t.Fatal("expected first TryLock to succeed")
	}
	if g.TryLock("board-1") {
		t.Fatal("expected second TryLock for same board to fail")
	}
	if !g.TryLock("board-2") {
		t.Fatal("expected TryLock for different board to succeed")
	}
	if !g.Running("board-1") {
		t.Error("expected board-1 running")
	}
	g.Unlock("board-1")
	g.Unlock("board-1")
	g.Unlock("board-2")

	if !g.TryLock("board-1") {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	g.Unlock("board-1")
}

func TestSyncGuard_WaitAll(t *testing.T) {
	var g service.ExportedSyncGuard
	if !g.TryLock("board-a") {
		t.Fatal("expected lock to succeed")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()
	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("board-a")
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitAll timed out")
	}
}

// ─────────────────────────────────────────────────────────────
// MockEmitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, "board:operation", map[string]string{"id": "op-1"})
	m.Emit(ctx, "sync:status", nil)
	m.Emit(ctx, "board:operation", nil)

	if len(m.All()) != 3 {
		t.Fatalf("expected 3 events, got %d", len(m.All()))
	}
	if m.Events[1].Event != "sync:status" {
		t.Errorf("expected 'sync:status', got %q", m.Events[1].Event)
	}
	if n := m.Count("board:operation"); n != 2 {
		t.Errorf("expected 2 operation events, got %d", n)
	}
}

// ─────────────────────────────────────────────────────────────
// BoardService tests
// ─────────────────────────────────────────────────────────────

func boardOptions(sessionID, userID string) service.BoardOptions {
	return service.BoardOptions{
		Engine: engine.Options{
			SessionID:     sessionID,
			Width:         200,
			Height:        150,
			SyncDebounce:  time.Hour,
			PruneInterval: time.Hour,
		},
		CursorPublish: 5 * time.Millisecond,
		Participant:   service.Participant{UserID: userID, Name: userID, Color: "#ff9800"},
	}
}

func openBoard(t *testing.T, deps service.BoardDeps, opts service.BoardOptions) *service.BoardService {
	t.Helper()
	if deps.Local == nil {
		deps.Local = offline.NewMemoryStore()
	}
	b, err := service.OpenBoard(context.Background(), deps, opts)
	if err != nil {
		t.Fatalf("open board: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func addShape(t *testing.T, b *service.BoardService, x, y float64) *domain.Component {
	t.Helper()
	c, err := b.Engine.AddComponent(domain.ComponentShape, 0, domain.Point{X: x, Y: y},
		&domain.ShapeData{ShapeType: domain.ShapeRectangle, Fill: "#00ff00"}, 40, 30)
	if err != nil {
		t.Fatalf("add shape: %v", err)
	}
	return c
}

func openRemote(t *testing.T) remote.Store {
	t.Helper()
	r, err := remote.Open(context.Background(), remote.Conn{
		Driver: remote.DriverSQLite,
		Host:   filepath.Join(t.TempDir(), "shared.db"),
	})
	if err != nil {
		t.Fatalf("open remote: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestOpenBoard_RequiresLocalStore(t *testing.T) {
	_, err := service.OpenBoard(context.Background(), service.BoardDeps{}, boardOptions("b", "u"))
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestOpenBoard_RejectsBadSchedule(t *testing.T) {
	opts := boardOptions("b", "u")
	opts.SyncSchedule = "every now and then"
	_, err := service.OpenBoard(context.Background(), service.BoardDeps{
		Local:  offline.NewMemoryStore(),
		Remote: openRemote(t),
	}, opts)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestBoardService_SharesOperationsOverHub(t *testing.T) {
	hub := transport.NewHub()
	emitter := &service.MockEmitter{}
	a := openBoard(t, service.BoardDeps{Transport: hub, Emitter: emitter}, boardOptions("b1", "alice"))
	b := openBoard(t, service.BoardDeps{Transport: hub}, boardOptions("b1", "bob"))

	c := addShape(t, a, 10, 10)
	got := b.Engine.Components.Get(c.ID)
	if got == nil {
		t.Fatal("expected bob to receive alice's shape")
	}
	if got.Version != c.Version {
		t.Errorf("expected version %d, got %d", c.Version, got.Version)
	}
	if emitter.Count("board:operation") == 0 {
		t.Error("expected operation forwarded to the emitter")
	}

	// Remote edits are not queued again on the receiving side.
	if b.Queue.Pending() != 0 {
		t.Errorf("expected bob's queue empty, got %d", b.Queue.Pending())
	}

	a.Engine.DeleteComponents([]string{c.ID})
	if b.Engine.Components.Has(c.ID) {
		t.Error("expected delete to reach bob")
	}
}

func TestBoardService_PublishesCursor(t *testing.T) {
	hub := transport.NewHub()
	a := openBoard(t, service.BoardDeps{Transport: hub}, boardOptions("b1", "alice"))
	b := openBoard(t, service.BoardDeps{Transport: hub}, boardOptions("b1", "bob"))

	if err := a.Engine.PointerMove(domain.PointerEvent{X: 30, Y: 40}); err != nil {
		t.Fatalf("pointer move: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(b.Engine.RemoteCursors()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cursors := b.Engine.RemoteCursors()
	if len(cursors) != 1 || cursors[0].UserID != "alice" {
		t.Fatalf("expected alice's cursor at bob, got %+v", cursors)
	}
	if len(a.Engine.RemoteCursors()) != 0 {
		t.Error("expected no self cursor at alice")
	}

	leave, _ := json.Marshal(map[string]string{"type": "leave", "userId": "alice"})
	hub.Publish(service.CursorsChannel("b1"), leave)
	if len(b.Engine.RemoteCursors()) != 0 {
		t.Error("expected leave to remove alice's cursor")
	}
}

func TestBoardService_SyncNowAndRemotePull(t *testing.T) {
	shared := openRemote(t)
	a := openBoard(t, service.BoardDeps{Remote: shared}, boardOptions("b2", "alice"))
	c := addShape(t, a, 0, 0)
	queued := a.Queue.Pending()
	if queued == 0 {
		t.Fatal("expected queued operations")
	}

	res, ran := a.SyncNow(context.Background())
	if !ran || !res.Success || res.Synced != queued {
		t.Fatalf("expected %d synced, got %+v ran=%v", queued, res, ran)
	}
	if a.Queue.Pending() != 0 {
		t.Errorf("expected empty queue after sync, got %d", a.Queue.Pending())
	}

	// A participant without a local snapshot starts from the remote.
	b := openBoard(t, service.BoardDeps{Remote: shared}, boardOptions("b2", "bob"))
	if !b.Engine.Components.Has(c.ID) {
		t.Error("expected backlog applied on open")
	}
}

func TestBoardService_SyncNowWithoutRemote(t *testing.T) {
	a := openBoard(t, service.BoardDeps{}, boardOptions("b3", "alice"))
	if _, ran := a.SyncNow(context.Background()); ran {
		t.Error("expected no sync without a remote store")
	}
}

func TestBoardService_StrokeHoldsOneQueueSlot(t *testing.T) {
	opts := boardOptions("b6", "alice")
	opts.Queue = offline.Options{MaxSize: 10}
	b := openBoard(t, service.BoardDeps{Remote: openRemote(t)}, opts)
	b.Queue.SetOnline(false)

	if err := b.Engine.SetTool(domain.ToolPencil); err != nil {
		t.Fatalf("set tool: %v", err)
	}
	b.Engine.PointerDown(domain.PointerEvent{X: 10, Y: 10})
	for i := 1; i <= 150; i++ {
		b.Engine.PointerMove(domain.PointerEvent{X: 10 + float64(i)*3, Y: 10})
	}
	b.Engine.PointerUp(domain.PointerEvent{X: 460, Y: 10})

	if n := b.Engine.Components.Count(); n != 1 {
		t.Fatalf("expected one stroke, got %d components", n)
	}
	if n := b.Queue.Pending(); n != 1 {
		t.Errorf("expected the stroke to hold one queue slot, got %d", n)
	}
	if overflowed, _ := b.Queue.OverflowStatus(); overflowed {
		t.Error("expected no overflow for a single stroke")
	}
}

func TestBoardService_NoQueueWithoutRemote(t *testing.T) {
	b := openBoard(t, service.BoardDeps{}, boardOptions("b7", "alice"))
	addShape(t, b, 0, 0)
	addShape(t, b, 50, 50)
	if n := b.Queue.Pending(); n != 0 {
		t.Errorf("expected nothing queued without a remote, got %d", n)
	}
}

func TestBoardService_ResumesFromLocalStorage(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "board.db"), dir)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	deps := service.BoardDeps{
		Local:   storage.NewLocalStore(db),
		History: storage.NewHistoryStore(db, 50),
	}

	first, err := service.OpenBoard(context.Background(), deps, boardOptions("b4", "alice"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	c := addShape(t, first, 5, 5)
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	again := openBoard(t, deps, boardOptions("b4", "alice"))
	if !again.Engine.Components.Has(c.ID) {
		t.Fatal("expected shape restored from the local snapshot")
	}
	if !again.Engine.CanUndo() {
		t.Fatal("expected undo history restored")
	}
	if !again.Engine.Undo() || again.Engine.Components.Has(c.ID) {
		t.Error("expected restored undo to remove the shape")
	}
}

func TestRegistry_OpensOnce(t *testing.T) {
	opened := 0
	reg := service.NewRegistry(func(ctx context.Context, id string) (*service.BoardService, error) {
		opened++
		return service.OpenBoard(ctx, service.BoardDeps{Local: offline.NewMemoryStore()}, boardOptions(id, "host"))
	})
	defer reg.Close()

	ctx := context.Background()
	first, err := reg.Get(ctx, "x")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second, _ := reg.Get(ctx, "x")
	if first != second || opened != 1 {
		t.Errorf("expected one open board, opened %d", opened)
	}
	reg.Get(ctx, "a")
	if got := reg.Sessions(); len(got) != 2 || got[0] != "a" {
		t.Errorf("expected [a x], got %v", got)
	}
	if err := reg.Release("x"); err != nil {
		t.Errorf("release: %v", err)
	}
	if !first.Engine.Destroyed() {
		t.Error("expected released board destroyed")
	}
	reg.Close()
	if _, err := reg.Get(ctx, "y"); err == nil {
		t.Error("expected error after close")
	}
}
