package storage

import (
	"path/filepath"
	"testing"

	"whiteboard/internal/domain"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := New(filepath.Join(dir, "board.db"), filepath.Join(dir, "assets"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func queued(id string, retries int) domain.QueuedOperation {
	return domain.QueuedOperation{
		ID:        id,
		Operation: domain.BoardOperation{ID: "op-" + id, Type: domain.OpDelete, ComponentID: id},
		Timestamp: 42,
		Retries:   retries,
	}
}

func TestNew_MigratesTwice(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "board.db")
	for i := 0; i < 2; i++ {
		db, err := New(path, dir)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		db.Close()
	}
}

func TestLocalStore_Queue(t *testing.T) {
	s := NewLocalStore(newTestDB(t))

	if err := s.SaveQueue("s1", []domain.QueuedOperation{queued("a", 0), queued("b", 3)}); err != nil {
		t.Fatalf("SaveQueue: %v", err)
	}
	if err := s.SaveQueue("s2", []domain.QueuedOperation{queued("z", 0)}); err != nil {
		t.Fatalf("SaveQueue: %v", err)
	}
	// Replacing drops items no longer present.
	if err := s.SaveQueue("s1", []domain.QueuedOperation{queued("b", 4)}); err != nil {
		t.Fatalf("SaveQueue: %v", err)
	}

	items, err := s.LoadQueue("s1")
	if err != nil {
		t.Fatalf("LoadQueue: %v", err)
	}
	if len(items) != 1 || items[0].ID != "b" || items[0].Retries != 4 {
		t.Fatalf("expected [b retries=4], got %+v", items)
	}
	if op := items[0].Operation; op.Type != domain.OpDelete || op.ComponentID != "b" {
		t.Errorf("expected operation decoded, got %+v", op)
	}
	if other, _ := s.LoadQueue("s2"); len(other) != 1 {
		t.Errorf("expected s2 untouched, got %d", len(other))
	}
}

func TestLocalStore_Overflow(t *testing.T) {
	s := NewLocalStore(newTestDB(t))
	for _, id := range []string{"x", "y"} {
		if err := s.AppendOverflow("s", queued(id, 0)); err != nil {
			t.Fatalf("AppendOverflow: %v", err)
		}
	}
	items, err := s.LoadOverflow("s")
	if err != nil {
		t.Fatalf("LoadOverflow: %v", err)
	}
	if len(items) != 2 || items[0].ID != "x" || items[1].ID != "y" {
		t.Errorf("expected x,y in order, got %+v", items)
	}
	if err := s.ClearOverflow("s"); err != nil {
		t.Fatalf("ClearOverflow: %v", err)
	}
	if items, _ := s.LoadOverflow("s"); len(items) != 0 {
		t.Errorf("expected overflow cleared, got %d", len(items))
	}
}

func TestLocalStore_State(t *testing.T) {
	s := NewLocalStore(newTestDB(t))

	if st, err := s.LoadState("s"); err != nil || st != nil {
		t.Fatalf("expected no state, got %+v %v", st, err)
	}

	state := &domain.BoardState{
		SessionID: "s",
		Layers:    []domain.Layer{{ID: 1, Name: "Layer 1", Visible: true, Opacity: 1}},
		Components: []domain.Component{{
			ID: "c1", Type: domain.ComponentSticky, LayerID: 1, X: 10, Y: 20, Visible: true,
			Data: &domain.StickyData{Text: "hello", Color: "#fff740"},
		}},
		Viewport: domain.Viewport{X: 3, Y: 4, Zoom: 1.5},
		Version:  2,
	}
	if err := s.SaveState("s", state); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	state.Version = 3
	if err := s.SaveState("s", state); err != nil {
		t.Fatalf("SaveState again: %v", err)
	}

	got, err := s.LoadState("s")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if got.Version != 3 || got.Viewport.Zoom != 1.5 || len(got.Components) != 1 {
		t.Fatalf("unexpected state %+v", got)
	}
	sticky, ok := got.Components[0].Data.(*domain.StickyData)
	if !ok || sticky.Text != "hello" {
		t.Errorf("expected sticky data decoded, got %#v", got.Components[0].Data)
	}

	sessions, err := s.Sessions()
	if err != nil || len(sessions) != 1 || sessions[0] != "s" {
		t.Errorf("expected [s], got %v %v", sessions, err)
	}

	if err := s.ClearState("s"); err != nil {
		t.Fatalf("ClearState: %v", err)
	}
	if st, _ := s.LoadState("s"); st != nil {
		t.Errorf("expected state cleared, got %+v", st)
	}
}

func TestHistoryStore_SaveLoadPrune(t *testing.T) {
	s := NewHistoryStore(newTestDB(t), 2)

	entry := func(id string) *domain.HistoryEntry {
		return &domain.HistoryEntry{
			ID: id, Action: domain.ActionCreate, ComponentID: "c-" + id,
			NewState: &domain.Component{ID: "c-" + id, Type: domain.ComponentShape, Data: &domain.ShapeData{ShapeType: domain.ShapeEllipse}},
		}
	}
	undo := []*domain.HistoryEntry{entry("1"), entry("2"), entry("3")}
	redo := []*domain.HistoryEntry{entry("r")}
	if err := s.Save("s", undo, redo); err != nil {
		t.Fatalf("Save: %v", err)
	}

	gotUndo, gotRedo, err := s.Load("s")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(gotUndo) != 2 || gotUndo[0].ID != "2" || gotUndo[1].ID != "3" {
		t.Errorf("expected oldest entry pruned, got %d entries", len(gotUndo))
	}
	if len(gotRedo) != 1 || gotRedo[0].NewState.Data.(*domain.ShapeData).ShapeType != domain.ShapeEllipse {
		t.Errorf("expected redo entry with shape data, got %+v", gotRedo)
	}

	if err := s.Clear("s"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if u, r, _ := s.Load("s"); u != nil || r != nil {
		t.Errorf("expected empty history, got %d/%d", len(u), len(r))
	}
}
