package canvas

import (
	"errors"
	"testing"

	"whiteboard/internal/domain"
)

func TestLayerStore_StartsWithDefaultLayer(t *testing.T) {
	s := NewLayerStore(10)
	layers := s.All()
	if len(layers) != 1 {
		t.Fatalf("expected 1 layer, got %d", len(layers))
	}
	if layers[0].Name != "Layer 1" || layers[0].Order != 0 || !layers[0].Visible {
		t.Errorf("unexpected default layer %+v", layers[0])
	}
	if s.ActiveID() != layers[0].ID {
		t.Errorf("expected default layer to be active")
	}
}

func TestLayerStore_CreateRejectsBeyondMax(t *testing.T) {
	s := NewLayerStore(3)
	for i := 0; i < 2; i++ {
		if _, err := s.Create("L", domain.LayerTypeContent); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	_, err := s.Create("overflow", domain.LayerTypeContent)
	if !errors.Is(err, domain.ErrCapacity) {
		t.Errorf("expected ErrCapacity, got %v", err)
	}
	var capErr *domain.CapacityError
	if !errors.As(err, &capErr) || capErr.Limit != 3 {
		t.Errorf("expected CapacityError with limit 3, got %v", err)
	}
	if s.Count() != 3 {
		t.Errorf("expected 3 layers, got %d", s.Count())
	}
}

func TestLayerStore_DeleteKeepsOrderContiguous(t *testing.T) {
	s := NewLayerStore(10)
	l2, _ := s.Create("L2", "")
	l3, _ := s.Create("L3", "")
	first := s.All()[0]
	s.SetActive(first.ID)

	if !s.Delete(first.ID) {
		t.Fatal("expected delete to succeed")
	}
	layers := s.All()
	if len(layers) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(layers))
	}
	for i, l := range layers {
		if l.Order != i {
			t.Errorf("layer %d: expected order %d, got %d", l.ID, i, l.Order)
		}
	}
	if layers[0].ID != l2.ID || layers[1].ID != l3.ID {
		t.Errorf("unexpected order %+v", layers)
	}
	if s.ActiveID() != l2.ID {
		t.Errorf("expected active layer %d, got %d", l2.ID, s.ActiveID())
	}
}

func TestLayerStore_IDsAreNotReused(t *testing.T) {
	s := NewLayerStore(10)
	l2, _ := s.Create("L2", "")
	s.Delete(l2.ID)
	l3, _ := s.Create("L3", "")
	if l3.ID <= l2.ID {
		t.Errorf("expected id greater than %d, got %d", l2.ID, l3.ID)
	}
}

func TestLayerStore_LastLayerCannotBeDeleted(t *testing.T) {
	s := NewLayerStore(10)
	only := s.All()[0]
	if s.Delete(only.ID) {
		t.Error("expected delete of last layer to fail")
	}
	if s.Delete(999) {
		t.Error("expected delete of unknown layer to fail")
	}
	if s.Count() != 1 {
		t.Errorf("expected 1 layer, got %d", s.Count())
	}
}

func TestLayerStore_ReorderAndSwap(t *testing.T) {
	s := NewLayerStore(10)
	a := s.All()[0]
	b, _ := s.Create("B", "")
	c, _ := s.Create("C", "")

	s.Reorder([]int{c.ID, a.ID})
	got := s.All()
	want := []int{c.ID, a.ID, b.ID}
	for i, l := range got {
		if l.ID != want[i] || l.Order != i {
			t.Errorf("position %d: expected layer %d, got %d (order %d)", i, want[i], l.ID, l.Order)
		}
	}

	s.MoveDown(c.ID)
	if got := s.All(); got[0].ID != a.ID || got[1].ID != c.ID {
		t.Errorf("MoveDown: unexpected order %v", got)
	}
	s.MoveUp(c.ID)
	if got := s.All(); got[0].ID != c.ID {
		t.Errorf("MoveUp: unexpected order %v", got)
	}
}

func TestLayerStore_MergeFoldsCounts(t *testing.T) {
	s := NewLayerStore(10)
	a := s.All()[0]
	b, _ := s.Create("B", "")
	s.AdjustCount(a.ID, 2)
	s.AdjustCount(b.ID, 3)

	target, ok := s.Merge(b.ID, a.ID)
	if !ok {
		t.Fatal("expected merge to succeed")
	}
	if target.ComponentCount != 5 {
		t.Errorf("expected 5 components, got %d", target.ComponentCount)
	}
	if s.Has(b.ID) {
		t.Error("expected source layer to be deleted")
	}
	if _, ok := s.Merge(a.ID, a.ID); ok {
		t.Error("expected self merge to fail")
	}
}

func TestLayerStore_TogglesAndOpacity(t *testing.T) {
	s := NewLayerStore(10)
	id := s.All()[0].ID

	if s.ToggleVisibility(id) {
		t.Error("expected layer to become hidden")
	}
	if !s.ToggleLock(id) {
		t.Error("expected layer to become locked")
	}
	s.SetOpacity(id, 1.7)
	l, _ := s.Get(id)
	if l.Opacity != 1 {
		t.Errorf("expected opacity clamped to 1, got %v", l.Opacity)
	}
	s.SetOpacity(id, -3)
	l, _ = s.Get(id)
	if l.Opacity != 0 {
		t.Errorf("expected opacity clamped to 0, got %v", l.Opacity)
	}
}

func TestLayerStore_EmitsEvents(t *testing.T) {
	s := NewLayerStore(10)
	var got []LayerEventType
	s.Events.Subscribe(func(ev LayerEvent) { got = append(got, ev.Type) })

	l, _ := s.Create("B", "")
	s.Rename(l.ID, "Renamed")
	s.Delete(l.ID)

	want := []LayerEventType{LayerAdded, LayerUpdated, LayerRemoved, LayerReordered}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestLayerStore_LoadRecomputesOrder(t *testing.T) {
	s := NewLayerStore(10)
	s.Load([]domain.Layer{
		{ID: 7, Name: "top", Order: 4, Visible: true, ComponentCount: 9},
		{ID: 3, Name: "bottom", Order: 1, Visible: true},
	})
	layers := s.All()
	if layers[0].ID != 3 || layers[1].ID != 7 || layers[1].Order != 1 {
		t.Errorf("unexpected layers %+v", layers)
	}
	if layers[1].ComponentCount != 0 {
		t.Errorf("expected counts reset, got %d", layers[1].ComponentCount)
	}
	next, _ := s.Create("new", "")
	if next.ID != 8 {
		t.Errorf("expected next id 8, got %d", next.ID)
	}
}
