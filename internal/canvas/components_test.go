package canvas

import (
	"errors"
	"testing"

	"whiteboard/internal/domain"
)

func newStores(t *testing.T) (*LayerStore, *ComponentStore) {
	t.Helper()
	layers := NewLayerStore(DefaultMaxLayers)
	return layers, NewComponentStore(layers)
}

func rect(t *testing.T, s *ComponentStore, layerID int, x, y, w, h float64) *domain.Component {
	t.Helper()
	c, err := s.Create(domain.ComponentShape, layerID, domain.Point{X: x, Y: y}, &domain.ShapeData{ShapeType: domain.ShapeRectangle})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return s.Update(c.ID, domain.ComponentPatch{Width: &w, Height: &h})
}

func TestComponentStore_CreateDefaults(t *testing.T) {
	layers, s := newStores(t)
	lid := layers.ActiveID()

	c, err := s.Create(domain.ComponentSticky, lid, domain.Point{X: 5, Y: 6}, &domain.StickyData{Text: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w, h := c.Size()
	if w != 100 || h != 100 {
		t.Errorf("expected 100x100, got %vx%v", w, h)
	}
	if c.Version != 1 || !c.Visible || c.ScaleX != 1 || c.ID == "" {
		t.Errorf("unexpected defaults %+v", c)
	}

	stroke, _ := s.Create(domain.ComponentStroke, lid, domain.Point{}, &domain.StrokeData{})
	if stroke.Width != nil || stroke.Height != nil {
		t.Errorf("expected stroke without size, got %v/%v", stroke.Width, stroke.Height)
	}

	l, _ := layers.Get(lid)
	if l.ComponentCount != 2 {
		t.Errorf("expected layer count 2, got %d", l.ComponentCount)
	}
}

func TestComponentStore_CreateOnMissingLayer(t *testing.T) {
	_, s := newStores(t)
	_, err := s.Create(domain.ComponentText, 42, domain.Point{}, &domain.TextData{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	_, err = s.Create(domain.ComponentText, 1, domain.Point{}, &domain.StickyData{})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation for mismatched data, got %v", err)
	}
}

func TestComponentStore_UpdateBumpsVersionByOne(t *testing.T) {
	_, s := newStores(t)
	c := rect(t, s, 1, 0, 0, 10, 10)
	if c.Version != 2 {
		t.Fatalf("expected version 2, got %d", c.Version)
	}
	for i := 0; i < 3; i++ {
		c = s.Update(c.ID, domain.MoveTo(float64(i), 0))
	}
	if c.Version != 5 {
		t.Errorf("expected version 5, got %d", c.Version)
	}
	if s.Update("missing", domain.MoveTo(1, 1)) != nil {
		t.Error("expected nil for missing component")
	}
	bad := 99
	if s.Update(c.ID, domain.ComponentPatch{LayerID: &bad}) != nil {
		t.Error("expected nil for missing layer")
	}
}

func TestComponentStore_UpdateReindexesLayer(t *testing.T) {
	layers, s := newStores(t)
	l2, _ := layers.Create("L2", "")
	c := rect(t, s, 1, 0, 0, 10, 10)

	moved := s.MoveToLayer([]string{c.ID}, l2.ID)
	if len(moved) != 1 || moved[0].LayerID != l2.ID {
		t.Fatalf("unexpected move result %+v", moved)
	}
	if len(s.ByLayer(1)) != 0 || len(s.ByLayer(l2.ID)) != 1 {
		t.Errorf("layer index not updated")
	}
	l1, _ := layers.Get(1)
	got2, _ := layers.Get(l2.ID)
	if l1.ComponentCount != 0 || got2.ComponentCount != 1 {
		t.Errorf("expected counts 0/1, got %d/%d", l1.ComponentCount, got2.ComponentCount)
	}
}

func TestComponentStore_InViewport(t *testing.T) {
	_, s := newStores(t)
	inside := rect(t, s, 1, 100, 100, 50, 50)
	outside := rect(t, s, 1, 5000, 5000, 50, 50)
	inBuffer := rect(t, s, 1, -90, -90, 10, 10)
	hidden := rect(t, s, 1, 200, 200, 50, 50)
	off := false
	s.Update(hidden.ID, domain.ComponentPatch{Visible: &off})

	vp := domain.Viewport{X: 0, Y: 0, Zoom: 1, Width: 800, Height: 600}
	got := map[string]bool{}
	for _, c := range s.InViewport(vp, DefaultViewportBuffer) {
		got[c.ID] = true
	}
	if !got[inside.ID] {
		t.Error("expected component fully inside to be included")
	}
	if !got[inBuffer.ID] {
		t.Error("expected component inside the buffer to be included")
	}
	if got[outside.ID] {
		t.Error("expected component fully outside to be excluded")
	}
	if got[hidden.ID] {
		t.Error("expected hidden component to be excluded")
	}

	got = map[string]bool{}
	for _, c := range s.InViewport(vp, 0) {
		got[c.ID] = true
	}
	if got[inBuffer.ID] {
		t.Error("expected component outside the unbuffered rect to be excluded")
	}
}

func TestComponentStore_InViewportHonorsZoom(t *testing.T) {
	_, s := newStores(t)
	far := rect(t, s, 1, 1500, 0, 10, 10)
	vp := domain.Viewport{Zoom: 1, Width: 800, Height: 600}
	if len(s.InViewport(vp, 0)) != 0 {
		t.Fatal("expected nothing at zoom 1")
	}
	vp.Zoom = 0.5
	got := s.InViewport(vp, 0)
	if len(got) != 1 || got[0].ID != far.ID {
		t.Errorf("expected far component at zoom 0.5, got %v", got)
	}
}

func TestComponentStore_DuplicateDeepCopies(t *testing.T) {
	_, s := newStores(t)
	orig, _ := s.Create(domain.ComponentStroke, 1, domain.Point{X: 10, Y: 10}, &domain.StrokeData{
		Points: []domain.Point{{X: 10, Y: 10}, {X: 20, Y: 30}},
		Color:  "#111111",
	})

	dups := s.Duplicate([]string{orig.ID})
	if len(dups) != 1 {
		t.Fatalf("expected 1 duplicate, got %d", len(dups))
	}
	dup := dups[0]
	if dup.ID == orig.ID {
		t.Error("expected a fresh id")
	}
	if dup.X != orig.X+DuplicateOffset || dup.Y != orig.Y+DuplicateOffset {
		t.Errorf("expected offset position, got (%v,%v)", dup.X, dup.Y)
	}
	dupData := dup.Data.(*domain.StrokeData)
	if dupData.Color != "#111111" || len(dupData.Points) != 2 {
		t.Errorf("unexpected duplicate data %+v", dupData)
	}

	dupData.Points[0].X = -1
	s.Update(dup.ID, domain.ComponentPatch{Data: dupData})
	if s.Get(orig.ID).Data.(*domain.StrokeData).Points[0].X != 10 {
		t.Error("mutating the duplicate changed the original")
	}
}

func TestComponentStore_AtPointTopmostFirst(t *testing.T) {
	layers, s := newStores(t)
	l2, _ := layers.Create("L2", "")
	top := rect(t, s, l2.ID, 0, 0, 100, 100)
	older := rect(t, s, 1, 0, 0, 100, 100)
	newer := rect(t, s, 1, 50, 50, 100, 100)

	hits := s.AtPoint(60, 60)
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	want := []string{top.ID, newer.ID, older.ID}
	for i, id := range want {
		if hits[i].ID != id {
			t.Errorf("hit %d: expected %s, got %s", i, id, hits[i].ID)
		}
	}
	if got := s.AtPoint(500, 500); len(got) != 0 {
		t.Errorf("expected no hits, got %d", len(got))
	}
}

func TestComponentStore_AtPointFollowsLayerOrder(t *testing.T) {
	layers, s := newStores(t)
	l2, _ := layers.Create("L2", "")
	upper := rect(t, s, l2.ID, 0, 0, 100, 100)
	lower := rect(t, s, 1, 0, 0, 100, 100)

	if hits := s.AtPoint(10, 10); len(hits) != 2 || hits[0].ID != upper.ID {
		t.Fatalf("expected %s on top before reorder, got %v", upper.ID, hits)
	}
	layers.Reorder([]int{l2.ID, 1})
	hits := s.AtPoint(10, 10)
	if len(hits) != 2 || hits[0].ID != lower.ID {
		t.Errorf("expected %s on top after reorder, got %v", lower.ID, hits)
	}
}

func TestComponentStore_InRect(t *testing.T) {
	_, s := newStores(t)
	rect(t, s, 1, 0, 0, 10, 10)
	rect(t, s, 1, 100, 100, 10, 10)
	if got := s.InRect(domain.Bounds{X: -5, Y: -5, Width: 20, Height: 20}); len(got) != 1 {
		t.Errorf("expected 1 hit, got %d", len(got))
	}
}

func TestComponentStore_DeleteAndBatch(t *testing.T) {
	_, s := newStores(t)
	a := rect(t, s, 1, 0, 0, 10, 10)
	b := rect(t, s, 1, 0, 0, 10, 10)

	var deleted []string
	s.Events.Subscribe(func(ev ComponentEvent) {
		if ev.Type == ComponentDeleted {
			deleted = append(deleted, ev.ID)
		}
	})
	if n := s.BatchDelete([]string{a.ID, b.ID, "nope"}); n != 2 {
		t.Errorf("expected 2 deletes, got %d", n)
	}
	if s.Delete(a.ID) {
		t.Error("expected second delete to report false")
	}
	if len(deleted) != 2 || s.Count() != 0 {
		t.Errorf("unexpected state: deleted=%v count=%d", deleted, s.Count())
	}
}

func TestComponentStore_ApplyRemoteLastWriteWins(t *testing.T) {
	_, s := newStores(t)
	c := rect(t, s, 1, 0, 0, 10, 10)

	stale := c.Clone()
	stale.X = 999
	if s.ApplyRemote(stale) {
		t.Error("expected equal version to be rejected")
	}

	newer := c.Clone()
	newer.X = 42
	newer.Version = c.Version + 3
	var remote bool
	s.Events.Subscribe(func(ev ComponentEvent) { remote = ev.Remote })
	if !s.ApplyRemote(newer) {
		t.Fatal("expected newer version to be accepted")
	}
	got := s.Get(c.ID)
	if got.X != 42 || got.Version != newer.Version {
		t.Errorf("unexpected stored component %+v", got)
	}
	if !remote {
		t.Error("expected event flagged as remote")
	}
}

func TestComponentStore_LoadSkipsOrphans(t *testing.T) {
	layers, s := newStores(t)
	comps := []domain.Component{
		{ID: "a", Type: domain.ComponentText, LayerID: 1, Data: &domain.TextData{Text: "x"}, Visible: true, Version: 4},
		{ID: "b", Type: domain.ComponentText, LayerID: 77, Data: &domain.TextData{}, Visible: true},
	}
	if n := s.Load(comps); n != 1 {
		t.Errorf("expected 1 loaded, got %d", n)
	}
	if s.Get("a").Version != 4 {
		t.Error("expected version preserved on load")
	}
	l, _ := layers.Get(1)
	if l.ComponentCount != 1 {
		t.Errorf("expected count 1, got %d", l.ComponentCount)
	}

	s.Clear()
	l, _ = layers.Get(1)
	if s.Count() != 0 || l.ComponentCount != 0 {
		t.Errorf("expected empty store, got count=%d layer=%d", s.Count(), l.ComponentCount)
	}
}

// Create a second layer with a shape, clear the default layer, then remove
// layers until only one is left.
func TestLayerDeletionScenario(t *testing.T) {
	layers, s := newStores(t)
	defaultID := layers.ActiveID()
	shape := rect(t, s, defaultID, 0, 0, 20, 20)

	l2, err := layers.Create("L2", domain.LayerTypeContent)
	if err != nil {
		t.Fatalf("create layer: %v", err)
	}
	onL2 := rect(t, s, l2.ID, 10, 10, 50, 50)
	if !s.Delete(shape.ID) {
		t.Fatal("expected delete of default layer shape")
	}

	if !layers.Delete(defaultID) {
		t.Fatal("expected default layer delete while L2 exists")
	}
	if layers.Delete(l2.ID) {
		t.Error("expected delete of the only remaining layer to fail")
	}
	if layers.Count() != 1 || s.Count() != 1 || s.Get(onL2.ID) == nil {
		t.Errorf("expected counts unchanged: layers=%d components=%d", layers.Count(), s.Count())
	}
}
