package canvas

import (
	"sort"
	"sync"

	"whiteboard/internal/domain"
	"whiteboard/internal/events"
)

const (
	DefaultMaxLayers    = 10
	defaultLayerOpacity = 1.0
)

type LayerEventType string

const (
	LayerAdded        LayerEventType = "layer-added"
	LayerRemoved      LayerEventType = "layer-removed"
	LayerUpdated      LayerEventType = "layer-updated"
	LayerReordered    LayerEventType = "layer-reordered"
	ActiveLayerChange LayerEventType = "active-layer-change"
)

type LayerEvent struct {
	Type    LayerEventType
	LayerID int
	Layer   *domain.Layer
	Layers  []domain.Layer
}

// LayerStore owns the layer list. Ids are dense and never reused within a
// session; Order is kept contiguous from 0.
type LayerStore struct {
	mu        sync.RWMutex
	layers    map[int]*domain.Layer
	active    int
	nextID    int
	maxLayers int

	Events *events.Bus[LayerEvent]
}

// NewLayerStore returns a store holding a single content layer.
func NewLayerStore(maxLayers int) *LayerStore {
	if maxLayers <= 0 {
		maxLayers = DefaultMaxLayers
	}
	s := &LayerStore{
		layers:    make(map[int]*domain.Layer),
		nextID:    1,
		maxLayers: maxLayers,
		Events:    events.NewBus[LayerEvent](),
	}
	s.createLocked("Layer 1", domain.LayerTypeContent)
	return s
}

func (s *LayerStore) createLocked(name string, typ domain.LayerType) *domain.Layer {
	l := &domain.Layer{
		ID:      s.nextID,
		Name:    name,
		Type:    typ,
		Order:   len(s.layers),
		Visible: true,
		Opacity: defaultLayerOpacity,
	}
	s.nextID++
	s.layers[l.ID] = l
	if s.active == 0 {
		s.active = l.ID
	}
	return l
}

// Create adds a layer on top. It fails with a CapacityError when the store
// already holds the maximum number of layers.
func (s *LayerStore) Create(name string, typ domain.LayerType) (*domain.Layer, error) {
	if typ == "" {
		typ = domain.LayerTypeContent
	}
	s.mu.Lock()
	if len(s.layers) >= s.maxLayers {
		s.mu.Unlock()
		return nil, &domain.CapacityError{Resource: "layers", Limit: s.maxLayers}
	}
	hadActive := s.active != 0
	l := s.createLocked(name, typ)
	cp := *l
	s.mu.Unlock()

	if !hadActive {
		s.Events.Publish(LayerEvent{Type: ActiveLayerChange, LayerID: cp.ID})
	}
	s.Events.Publish(LayerEvent{Type: LayerAdded, LayerID: cp.ID, Layer: &cp})
	return &cp, nil
}

// Delete removes a layer. The last remaining layer cannot be deleted.
func (s *LayerStore) Delete(id int) bool {
	s.mu.Lock()
	if _, ok := s.layers[id]; !ok || len(s.layers) <= 1 {
		s.mu.Unlock()
		return false
	}
	delete(s.layers, id)
	remaining := s.sortedLocked()
	for i, l := range remaining {
		l.Order = i
	}
	activeChanged := false
	if s.active == id {
		s.active = remaining[0].ID
		activeChanged = true
	}
	active := s.active
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if activeChanged {
		s.Events.Publish(LayerEvent{Type: ActiveLayerChange, LayerID: active})
	}
	s.Events.Publish(LayerEvent{Type: LayerRemoved, LayerID: id})
	s.Events.Publish(LayerEvent{Type: LayerReordered, Layers: snapshot})
	return true
}

// Reorder assigns Order by position in ids. Unknown ids are ignored and
// layers missing from ids keep their relative order after the listed ones.
func (s *LayerStore) Reorder(ids []int) {
	s.mu.Lock()
	seen := make(map[int]bool, len(ids))
	next := 0
	for _, id := range ids {
		if l, ok := s.layers[id]; ok && !seen[id] {
			l.Order = next
			seen[id] = true
			next++
		}
	}
	rest := make([]*domain.Layer, 0)
	for _, l := range s.layers {
		if !seen[l.ID] {
			rest = append(rest, l)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Order < rest[j].Order })
	for _, l := range rest {
		l.Order = next
		next++
	}
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.Events.Publish(LayerEvent{Type: LayerReordered, Layers: snapshot})
}

// MoveUp swaps the layer with the one painted below it (towards order 0).
func (s *LayerStore) MoveUp(id int) { s.swap(id, -1) }

// MoveDown swaps the layer with the one painted above it.
func (s *LayerStore) MoveDown(id int) { s.swap(id, 1) }

func (s *LayerStore) swap(id, dir int) {
	s.mu.Lock()
	sorted := s.sortedLocked()
	idx := -1
	for i, l := range sorted {
		if l.ID == id {
			idx = i
		}
	}
	j := idx + dir
	if idx < 0 || j < 0 || j >= len(sorted) {
		s.mu.Unlock()
		return
	}
	sorted[idx].Order, sorted[j].Order = sorted[j].Order, sorted[idx].Order
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.Events.Publish(LayerEvent{Type: LayerReordered, Layers: snapshot})
}

// Merge folds the source layer's component count into target and deletes
// the source. Moving the components themselves is the caller's job.
func (s *LayerStore) Merge(sourceID, targetID int) (*domain.Layer, bool) {
	if sourceID == targetID {
		return nil, false
	}
	s.mu.Lock()
	source, ok1 := s.layers[sourceID]
	target, ok2 := s.layers[targetID]
	if !ok1 || !ok2 {
		s.mu.Unlock()
		return nil, false
	}
	target.ComponentCount += source.ComponentCount
	source.ComponentCount = 0
	s.mu.Unlock()

	if !s.Delete(sourceID) {
		return nil, false
	}
	l, _ := s.Get(targetID)
	s.Events.Publish(LayerEvent{Type: LayerUpdated, LayerID: targetID, Layer: &l})
	return &l, true
}

// ToggleVisibility flips visibility and returns the new value.
func (s *LayerStore) ToggleVisibility(id int) bool {
	var v bool
	s.update(id, func(l *domain.Layer) { l.Visible = !l.Visible; v = l.Visible })
	return v
}

// ToggleLock flips the lock flag and returns the new value.
func (s *LayerStore) ToggleLock(id int) bool {
	var v bool
	s.update(id, func(l *domain.Layer) { l.Locked = !l.Locked; v = l.Locked })
	return v
}

// SetOpacity clamps opacity into [0,1].
func (s *LayerStore) SetOpacity(id int, opacity float64) {
	if opacity < 0 {
		opacity = 0
	}
	if opacity > 1 {
		opacity = 1
	}
	s.update(id, func(l *domain.Layer) { l.Opacity = opacity })
}

func (s *LayerStore) Rename(id int, name string) {
	s.update(id, func(l *domain.Layer) { l.Name = name })
}

func (s *LayerStore) SetColor(id int, color string) {
	s.update(id, func(l *domain.Layer) { l.Color = color })
}

func (s *LayerStore) update(id int, fn func(*domain.Layer)) bool {
	s.mu.Lock()
	l, ok := s.layers[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	fn(l)
	cp := *l
	s.mu.Unlock()
	s.Events.Publish(LayerEvent{Type: LayerUpdated, LayerID: id, Layer: &cp})
	return true
}

// AdjustCount changes the component counter of a layer, never below zero.
func (s *LayerStore) AdjustCount(id, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.layers[id]; ok {
		l.ComponentCount += delta
		if l.ComponentCount < 0 {
			l.ComponentCount = 0
		}
	}
}

func (s *LayerStore) Has(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.layers[id]
	return ok
}

// IsLocked reports whether the layer exists and is locked.
func (s *LayerStore) IsLocked(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[id]
	return ok && l.Locked
}

// IsVisible reports whether the layer exists and is visible.
func (s *LayerStore) IsVisible(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[id]
	return ok && l.Visible
}

func (s *LayerStore) Get(id int) (domain.Layer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[id]
	if !ok {
		return domain.Layer{}, false
	}
	return *l, true
}

// OrderOf returns the draw position of a layer.
func (s *LayerStore) OrderOf(id int) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[id]
	if !ok {
		return 0, false
	}
	return l.Order, true
}

// All returns copies of the layers sorted by Order.
func (s *LayerStore) All() []domain.Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *LayerStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.layers)
}

func (s *LayerStore) Active() (domain.Layer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[s.active]
	if !ok {
		return domain.Layer{}, false
	}
	return *l, true
}

func (s *LayerStore) ActiveID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *LayerStore) SetActive(id int) {
	s.mu.Lock()
	if _, ok := s.layers[id]; !ok {
		s.mu.Unlock()
		return
	}
	s.active = id
	s.mu.Unlock()
	s.Events.Publish(LayerEvent{Type: ActiveLayerChange, LayerID: id})
}

// Load replaces every layer. Counters are reset; the component store
// recomputes them when components are loaded. An empty list keeps the store
// valid by recreating the default layer.
func (s *LayerStore) Load(layers []domain.Layer) {
	s.mu.Lock()
	s.layers = make(map[int]*domain.Layer, len(layers))
	s.active = 0
	s.nextID = 1
	for _, in := range layers {
		l := in
		l.ComponentCount = 0
		s.layers[l.ID] = &l
		if l.ID >= s.nextID {
			s.nextID = l.ID + 1
		}
	}
	if len(s.layers) == 0 {
		s.createLocked("Layer 1", domain.LayerTypeContent)
	}
	sorted := s.sortedLocked()
	for i, l := range sorted {
		l.Order = i
	}
	s.active = sorted[0].ID
	active := s.active
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	s.Events.Publish(LayerEvent{Type: ActiveLayerChange, LayerID: active})
	s.Events.Publish(LayerEvent{Type: LayerReordered, Layers: snapshot})
}

// Clear resets the store to a single default layer.
func (s *LayerStore) Clear() {
	s.Load(nil)
}

func (s *LayerStore) sortedLocked() []*domain.Layer {
	out := make([]*domain.Layer, 0, len(s.layers))
	for _, l := range s.layers {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *LayerStore) snapshotLocked() []domain.Layer {
	sorted := s.sortedLocked()
	out := make([]domain.Layer, len(sorted))
	for i, l := range sorted {
		out[i] = *l
	}
	return out
}
