package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"sync"
	"testing"
	"time"

	"whiteboard/internal/domain"
)

// manualScheduler holds frame requests until flush is called.
type manualScheduler struct {
	mu  sync.Mutex
	fns []func()
}

func (s *manualScheduler) Request(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.fns)
	s.fns = append(s.fns, fn)
	return func() {
		s.mu.Lock()
		if i < len(s.fns) {
			s.fns[i] = nil
		}
		s.mu.Unlock()
	}
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, fn := range s.fns {
		if fn != nil {
			n++
		}
	}
	return n
}

func (s *manualScheduler) flush() {
	s.mu.Lock()
	fns := s.fns
	s.fns = nil
	s.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			fn()
		}
	}
}

type opSink struct {
	mu  sync.Mutex
	ops []domain.BoardOperation
}

func (s *opSink) Queue(op domain.BoardOperation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
	return true
}

func (s *opSink) all() []domain.BoardOperation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.BoardOperation(nil), s.ops...)
}

type stateSink struct {
	mu     sync.Mutex
	saves  int
	last   *domain.BoardState
	notify chan struct{}
}

func (s *stateSink) SaveLocalState(state *domain.BoardState) error {
	s.mu.Lock()
	s.saves++
	s.last = state
	s.mu.Unlock()
	if s.notify != nil {
		s.notify <- struct{}{}
	}
	return nil
}

func (s *stateSink) LoadLocalState() (*domain.BoardState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, nil
}

func (s *stateSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type harness struct {
	e     *Engine
	sched *manualScheduler
	sink  *opSink
	now   time.Time
	mu    sync.Mutex
}

func newHarness(t *testing.T, mod func(*Options)) *harness {
	t.Helper()
	h := &harness{sched: &manualScheduler{}, sink: &opSink{}, now: time.Unix(5000, 0)}
	opts := Options{
		SessionID:     "board-1",
		Width:         400,
		Height:        300,
		Scheduler:     h.sched,
		Queue:         h.sink,
		PruneInterval: time.Hour,
		Now:           h.clock,
	}
	if mod != nil {
		mod(&opts)
	}
	e, err := New(opts)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(e.Destroy)
	h.e = e
	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	h.now = h.now.Add(d)
	h.mu.Unlock()
}

func (h *harness) shape(t *testing.T, x, y float64) *domain.Component {
	t.Helper()
	c, err := h.e.AddComponent(domain.ComponentShape, 0, domain.Point{X: x, Y: y},
		&domain.ShapeData{ShapeType: domain.ShapeRectangle, Fill: "#ff0000"}, 50, 40)
	if err != nil {
		t.Fatalf("add component: %v", err)
	}
	return c
}

func TestNew_RejectsEmptySurface(t *testing.T) {
	_, err := New(Options{Width: 0, Height: 300})
	if !errors.Is(err, domain.ErrConstruction) {
		t.Errorf("expected ErrConstruction, got %v", err)
	}
}

// ── Rendering ───────────────────────────────────────────────

func TestRender_CoalescesRequests(t *testing.T) {
	h := newHarness(t, nil)
	renders := 0
	h.e.Events.Subscribe(func(ev Event) {
		if ev.Type == Rendered {
			renders++
		}
	})

	for i := 0; i < 5; i++ {
		h.shape(t, float64(i*60), 10)
	}
	h.e.RequestRender()

	if got := h.sched.pending(); got != 1 {
		t.Fatalf("expected 1 pending frame, got %d", got)
	}
	if !h.e.RenderPending() {
		t.Error("expected render pending")
	}
	h.sched.flush()
	if renders != 1 {
		t.Errorf("expected 1 render, got %d", renders)
	}
	if h.e.RenderPending() {
		t.Error("expected no render pending after paint")
	}

	h.e.RequestRender()
	if got := h.sched.pending(); got != 1 {
		t.Errorf("expected a new frame after paint, got %d", got)
	}
}

func TestRender_PaintsComponents(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Render = domain.RenderOptions{ShowSelection: true}
	})
	h.shape(t, 10, 10)
	if errs := h.e.RenderNow(); len(errs) != 0 {
		t.Fatalf("expected no render errors, got %v", errs)
	}
	img := h.e.Snapshot()
	r, g, b, _ := img.At(30, 30).RGBA()
	if r>>8 < 200 || g>>8 > 60 || b>>8 > 60 {
		t.Errorf("expected red fill at (30,30), got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}

// ── History ─────────────────────────────────────────────────

func TestDeleteSelected_UndoRestoresBatch(t *testing.T) {
	h := newHarness(t, nil)
	for i := 0; i < 3; i++ {
		h.shape(t, float64(i*100), 0)
	}
	h.e.SelectAll()
	if n := h.e.DeleteSelected(); n != 3 {
		t.Fatalf("expected 3 deleted, got %d", n)
	}
	if h.e.Components.Count() != 0 {
		t.Fatalf("expected empty board, got %d", h.e.Components.Count())
	}
	if len(h.e.SelectedIDs()) != 0 {
		t.Error("expected selection cleared")
	}

	if !h.e.Undo() {
		t.Fatal("expected undo")
	}
	if h.e.Components.Count() != 3 {
		t.Errorf("expected 3 restored, got %d", h.e.Components.Count())
	}
	if !h.e.Redo() {
		t.Fatal("expected redo")
	}
	if h.e.Components.Count() != 0 {
		t.Errorf("expected 0 after redo, got %d", h.e.Components.Count())
	}
}

func TestUndo_RecreatesMissingComponent(t *testing.T) {
	h := newHarness(t, nil)
	c := h.shape(t, 0, 0)
	x := 250.0
	if _, err := h.e.UpdateComponent(c.ID, domain.ComponentPatch{X: &x}); err != nil {
		t.Fatalf("update: %v", err)
	}
	// Removed outside history, as a remote delete would.
	h.e.Components.Delete(c.ID)

	h.e.Undo()
	got := h.e.Components.Get(c.ID)
	if got == nil {
		t.Fatal("expected component re-created with the same id")
	}
	if got.X != 0 {
		t.Errorf("expected x 0, got %v", got.X)
	}
}

func TestUndo_EmptyHistory(t *testing.T) {
	h := newHarness(t, nil)
	if h.e.Undo() || h.e.Redo() {
		t.Error("expected nothing to undo or redo")
	}
}

func TestDuplicateSelected(t *testing.T) {
	h := newHarness(t, nil)
	a := h.shape(t, 0, 0)
	h.shape(t, 100, 0)
	h.e.SelectAll()

	copies := h.e.DuplicateSelected()
	if len(copies) != 2 {
		t.Fatalf("expected 2 copies, got %d", len(copies))
	}
	if h.e.Components.Count() != 4 {
		t.Errorf("expected 4 components, got %d", h.e.Components.Count())
	}
	sel := h.e.SelectedIDs()
	if len(sel) != 2 || sel[0] == a.ID {
		t.Errorf("expected the copies selected, got %v", sel)
	}

	h.e.Undo()
	if h.e.Components.Count() != 2 {
		t.Errorf("expected 2 after undo, got %d", h.e.Components.Count())
	}
}

func TestKeyDown_Shortcuts(t *testing.T) {
	h := newHarness(t, nil)
	h.shape(t, 0, 0)

	if !h.e.KeyDown(domain.KeyEvent{Key: "z", Ctrl: true}) {
		t.Fatal("expected ctrl+z handled")
	}
	if h.e.Components.Count() != 0 {
		t.Errorf("expected undo, got %d components", h.e.Components.Count())
	}
	h.e.KeyDown(domain.KeyEvent{Key: "Z", Meta: true, Shift: true})
	if h.e.Components.Count() != 1 {
		t.Errorf("expected redo, got %d components", h.e.Components.Count())
	}
	if h.e.KeyDown(domain.KeyEvent{Key: "q"}) {
		t.Error("expected plain key unhandled")
	}
}

// ── Layers ──────────────────────────────────────────────────

func TestDeleteLayer_RemovesComponents(t *testing.T) {
	h := newHarness(t, nil)
	first := h.e.Layers.ActiveID()
	l, err := h.e.CreateLayer("notes")
	if err != nil {
		t.Fatalf("create layer: %v", err)
	}
	if _, err := h.e.AddComponent(domain.ComponentSticky, l.ID, domain.Point{}, &domain.StickyData{Text: "x"}, 0, 0); err != nil {
		t.Fatalf("add sticky: %v", err)
	}
	keep := h.shape(t, 0, 0)

	if !h.e.DeleteLayer(l.ID) {
		t.Fatal("expected layer deleted")
	}
	if h.e.Components.Count() != 1 || !h.e.Components.Has(keep.ID) {
		t.Errorf("expected only the first layer's component left, got %d", h.e.Components.Count())
	}
	if h.e.DeleteLayer(first) {
		t.Error("expected the last layer to be kept")
	}
}

func TestMergeLayers(t *testing.T) {
	h := newHarness(t, nil)
	first := h.e.Layers.ActiveID()
	l, _ := h.e.CreateLayer("top")
	c, _ := h.e.AddComponent(domain.ComponentSticky, l.ID, domain.Point{}, &domain.StickyData{}, 0, 0)

	if _, ok := h.e.MergeLayers(l.ID, first); !ok {
		t.Fatal("expected merge")
	}
	if got := h.e.Components.Get(c.ID); got == nil || got.LayerID != first {
		t.Errorf("expected component on layer %d, got %+v", first, got)
	}
	if h.e.Layers.Has(l.ID) {
		t.Error("expected source layer removed")
	}
}

// ── Operations and remote ───────────────────────────────────

func TestLocalEdits_QueueOperations(t *testing.T) {
	h := newHarness(t, nil)
	c := h.shape(t, 0, 0)
	h.e.DeleteComponents([]string{c.ID})

	ops := h.sink.all()
	if len(ops) < 3 {
		t.Fatalf("expected create, update and delete, got %d ops", len(ops))
	}
	if ops[0].Type != domain.OpCreate || ops[0].ComponentID != c.ID {
		t.Errorf("expected create for %s, got %s %s", c.ID, ops[0].Type, ops[0].ComponentID)
	}
	last := ops[len(ops)-1]
	if last.Type != domain.OpDelete || len(last.Data) != 0 {
		t.Errorf("expected bare delete, got %s with %d bytes", last.Type, len(last.Data))
	}
}

func TestApplyRemoteOperation_LastWriteWins(t *testing.T) {
	h := newHarness(t, nil)
	c := h.shape(t, 0, 0)
	queued := len(h.sink.all())

	stale := c.Clone()
	stale.X = 999
	stale.Version = 1
	raw, _ := json.Marshal(stale)
	n, err := h.e.ApplyRemoteOperation(domain.BoardOperation{Type: domain.OpUpdate, ComponentID: c.ID, Data: raw})
	if err != nil || n != 0 {
		t.Fatalf("expected stale update ignored, got %d %v", n, err)
	}

	fresh := c.Clone()
	fresh.X = 500
	fresh.Version = c.Version + 5
	raw, _ = json.Marshal(fresh)
	batch := domain.BoardOperation{Type: domain.OpBatch, Operations: []domain.BoardOperation{
		{Type: domain.OpUpdate, ComponentID: c.ID, Data: raw},
		{Type: domain.OpDelete, ComponentID: "missing"},
	}}
	if n, err := h.e.ApplyRemoteOperation(batch); err != nil || n != 1 {
		t.Fatalf("expected 1 applied, got %d %v", n, err)
	}
	if got := h.e.Components.Get(c.ID); got.X != 500 {
		t.Errorf("expected x 500, got %v", got.X)
	}
	if len(h.sink.all()) != queued {
		t.Error("expected remote edits not to be queued")
	}

	if _, err := h.e.ApplyRemoteOperation(domain.BoardOperation{Type: "rename"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestRemoteCursors_Prune(t *testing.T) {
	h := newHarness(t, nil)
	var removed []string
	h.e.Events.Subscribe(func(ev Event) {
		if ev.Type == CursorRemoved {
			removed = append(removed, ev.Cursor.UserID)
		}
	})

	h.e.UpdateRemoteCursor(domain.RemoteCursor{UserID: "u2", X: 1})
	h.e.UpdateRemoteCursor(domain.RemoteCursor{UserID: "u1", X: 2})
	h.advance(4 * time.Second)
	h.e.UpdateRemoteCursor(domain.RemoteCursor{UserID: "u1", X: 3})
	h.advance(2 * time.Second)

	if n := h.e.PruneCursors(); n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
	list := h.e.RemoteCursors()
	if len(list) != 1 || list[0].UserID != "u1" || list[0].X != 3 {
		t.Errorf("expected u1 at x 3, got %+v", list)
	}
	if len(removed) != 1 || removed[0] != "u2" {
		t.Errorf("expected u2 removed, got %v", removed)
	}
}

// ── Export ──────────────────────────────────────────────────

func TestExport_Formats(t *testing.T) {
	h := newHarness(t, nil)
	h.shape(t, 10, 10)
	h.shape(t, 300, 200)

	png, err := h.e.Export(domain.ExportPNG, domain.ExportOptions{Scale: 2})
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("expected png signature")
	}

	jpg, err := h.e.Export(domain.ExportJPG, domain.ExportOptions{Viewport: true, Quality: 80})
	if err != nil {
		t.Fatalf("jpg: %v", err)
	}
	if len(jpg) < 2 || jpg[0] != 0xFF || jpg[1] != 0xD8 {
		t.Error("expected jpeg signature")
	}

	raw, err := h.e.Export(domain.ExportJSON, domain.ExportOptions{})
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var doc struct {
		Layers     []domain.Layer     `json:"layers"`
		Components []domain.Component `json:"components"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(doc.Layers) != 1 || len(doc.Components) != 2 {
		t.Errorf("expected 1 layer and 2 components, got %d and %d", len(doc.Layers), len(doc.Components))
	}

	if _, err := h.e.Export(domain.ExportSVG, domain.ExportOptions{}); !errors.Is(err, domain.ErrNotImplemented) {
		t.Errorf("expected ErrNotImplemented, got %v", err)
	}
	if _, err := h.e.Export("bmp", domain.ExportOptions{}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestExport_ClampsOversizedBoard(t *testing.T) {
	h := newHarness(t, nil)
	h.shape(t, 0, 0)
	h.shape(t, 1e7, 0)

	raw, err := h.e.Export(domain.ExportPNG, domain.ExportOptions{Scale: 2})
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if cfg.Width > MaxExportSide || cfg.Height > MaxExportSide {
		t.Errorf("expected sides within %d, got %dx%d", MaxExportSide, cfg.Width, cfg.Height)
	}
	if cfg.Width != MaxExportSide {
		t.Errorf("expected width %d, got %d", MaxExportSide, cfg.Width)
	}
}

func TestExport_ConcurrentWithRender(t *testing.T) {
	h := newHarness(t, nil)
	for i := 0; i < 4; i++ {
		_, err := h.e.AddComponent(domain.ComponentText, 0, domain.Point{X: float64(i * 80), Y: 20},
			&domain.TextData{Text: "hello", FontSize: 16, FontFamily: "sans-serif", Color: "#000000"}, 70, 30)
		if err != nil {
			t.Fatalf("add text: %v", err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for _, err := range h.e.RenderNow() {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := h.e.Export(domain.ExportPNG, domain.ExportOptions{}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("expected no error, got %v", err)
	}
}

// ── Session ─────────────────────────────────────────────────

func TestAutosave_Debounced(t *testing.T) {
	store := &stateSink{notify: make(chan struct{}, 4)}
	h := newHarness(t, func(o *Options) {
		o.Local = store
		o.SyncDebounce = 30 * time.Millisecond
	})
	for i := 0; i < 3; i++ {
		h.shape(t, float64(i*10), 0)
	}
	if !h.e.SavePending() {
		t.Fatal("expected save pending")
	}

	select {
	case <-store.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("autosave never ran")
	}
	time.Sleep(100 * time.Millisecond)
	if store.count() != 1 {
		t.Errorf("expected 1 save, got %d", store.count())
	}
	if got := len(store.last.Components); got != 3 {
		t.Errorf("expected 3 components saved, got %d", got)
	}
}

func TestLoadSession_RestoresBoard(t *testing.T) {
	store := &stateSink{}
	src := newHarness(t, func(o *Options) { o.Local = store })
	src.shape(t, 0, 0)
	src.e.Viewport.Zoom(2, nil)
	if err := src.e.SaveSession(context.Background()); err != nil {
		t.Fatalf("save: %v", err)
	}

	dst := newHarness(t, func(o *Options) { o.Local = store })
	ok, err := dst.e.LoadSession()
	if err != nil || !ok {
		t.Fatalf("expected session loaded, got %v %v", ok, err)
	}
	if dst.e.Components.Count() != 1 {
		t.Errorf("expected 1 component, got %d", dst.e.Components.Count())
	}
	if z := dst.e.Viewport.Viewport().Zoom; z != 2 {
		t.Errorf("expected zoom 2, got %v", z)
	}
	if dst.e.CanUndo() {
		t.Error("expected history cleared after load")
	}
}

// ── Teardown ────────────────────────────────────────────────

func TestDestroy_FlushesAndStops(t *testing.T) {
	store := &stateSink{}
	h := newHarness(t, func(o *Options) {
		o.Local = store
		o.SyncDebounce = time.Hour
	})
	if err := h.e.SetTool(domain.ToolPencil); err != nil {
		t.Fatalf("set tool: %v", err)
	}
	h.e.PointerDown(domain.PointerEvent{X: 10, Y: 10})
	h.e.PointerMove(domain.PointerEvent{X: 40, Y: 40})
	h.e.PointerMove(domain.PointerEvent{X: 80, Y: 60})
	if !h.e.SavePending() || !h.e.RenderPending() {
		t.Fatal("expected save and frame pending while drawing")
	}

	h.e.Destroy()
	h.e.Destroy()

	if !h.e.Destroyed() {
		t.Error("expected destroyed")
	}
	if undo, _ := h.e.History.Len(); undo != 1 {
		t.Errorf("expected the open stroke recorded, got %d entries", undo)
	}
	ops := h.sink.all()
	if len(ops) == 0 || ops[len(ops)-1].Type != domain.OpUpdate {
		t.Error("expected the final stroke update queued")
	}
	if h.e.SavePending() || h.e.RenderPending() {
		t.Error("expected timers cancelled")
	}
	if h.e.Events.Len() != 0 {
		t.Errorf("expected no listeners, got %d", h.e.Events.Len())
	}
	if err := h.e.PointerDown(domain.PointerEvent{}); !errors.Is(err, domain.ErrDestroyed) {
		t.Errorf("expected ErrDestroyed, got %v", err)
	}
	h.e.RequestRender()
	if h.sched.pending() != 0 {
		t.Error("expected no frames after destroy")
	}
	if store.count() != 0 {
		t.Errorf("expected no save after destroy, got %d", store.count())
	}
}
