package canvas

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"whiteboard/internal/domain"
	"whiteboard/internal/events"
)

const (
	// DuplicateOffset is the world-space shift applied to duplicated components.
	DuplicateOffset = 20.0
	// DefaultViewportBuffer widens viewport queries on every side.
	DefaultViewportBuffer = 100.0
)

type ComponentEventType string

const (
	ComponentCreated  ComponentEventType = "component-created"
	ComponentUpdated  ComponentEventType = "component-updated"
	ComponentDeleted  ComponentEventType = "component-deleted"
	ComponentsLoaded  ComponentEventType = "components-loaded"
	ComponentsCleared ComponentEventType = "components-cleared"
)

// ComponentEvent describes one store mutation. Component and Previous are
// copies owned by the receiver. Remote marks changes applied from another
// participant.
type ComponentEvent struct {
	Type      ComponentEventType
	ID        string
	Component *domain.Component
	Previous  *domain.Component
	Remote    bool
}

// LayerIndex is the part of the layer store the component store needs.
type LayerIndex interface {
	Has(id int) bool
	AdjustCount(id, delta int)
}

// layerOrderer is implemented by layer indexes that know the draw order.
type layerOrderer interface {
	OrderOf(id int) (int, bool)
}

// layerRank is the paint position of a layer: its Order when known,
// otherwise its id.
func (s *ComponentStore) layerRank(id int) int {
	if ord, ok := s.layers.(layerOrderer); ok {
		if order, ok := ord.OrderOf(id); ok {
			return order
		}
	}
	return id
}

type entry struct {
	c   *domain.Component
	seq int64
}

// ComponentStore is the sole owner of component data. Every read returns a
// copy; every write goes through a method that bumps Version.
type ComponentStore struct {
	mu      sync.RWMutex
	layers  LayerIndex
	items   map[string]*entry
	byLayer map[int]map[string]struct{}
	index   *SpatialIndex
	seq     int64
	newID   func() string

	Events *events.Bus[ComponentEvent]
}

func NewComponentStore(layers LayerIndex) *ComponentStore {
	return &ComponentStore{
		layers:  layers,
		items:   make(map[string]*entry),
		byLayer: make(map[int]map[string]struct{}),
		index:   NewSpatialIndex(DefaultCellSize),
		newID:   func() string { return uuid.New().String() },
		Events:  events.NewBus[ComponentEvent](),
	}
}

// CreateSpec describes a component to create in a batch.
type CreateSpec struct {
	Type     domain.ComponentType
	LayerID  int
	Position domain.Point
	Data     domain.ComponentData
}

// Create adds a new component at position on layerID.
func (s *ComponentStore) Create(typ domain.ComponentType, layerID int, pos domain.Point, data domain.ComponentData) (*domain.Component, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: %s component without data", domain.ErrValidation, typ)
	}
	if data.Kind() != typ {
		return nil, fmt.Errorf("%w: %s data for %s component", domain.ErrValidation, data.Kind(), typ)
	}
	c := &domain.Component{
		Type:    typ,
		LayerID: layerID,
		X:       pos.X,
		Y:       pos.Y,
		ScaleX:  1,
		ScaleY:  1,
		Data:    data.Clone(),
		Visible: true,
		Version: 1,
	}
	if typ.HasDefaultSize() {
		c.SetSize(domain.DefaultComponentSize, domain.DefaultComponentSize)
	}
	return s.Insert(c)
}

// Insert stores a fully built component. An empty ID gets a fresh one and a
// zero Version becomes 1. Inserting an existing ID is a validation error.
func (s *ComponentStore) Insert(c *domain.Component) (*domain.Component, error) {
	if !s.layers.Has(c.LayerID) {
		return nil, fmt.Errorf("%w: layer %d does not exist", domain.ErrValidation, c.LayerID)
	}
	if c.Data == nil {
		return nil, fmt.Errorf("%w: component without data", domain.ErrValidation)
	}
	cp := c.Clone()
	if cp.ID == "" {
		cp.ID = s.newID()
	}
	if cp.Version == 0 {
		cp.Version = 1
	}

	s.mu.Lock()
	if _, exists := s.items[cp.ID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: component %s already exists", domain.ErrValidation, cp.ID)
	}
	s.putLocked(cp)
	s.mu.Unlock()

	s.layers.AdjustCount(cp.LayerID, 1)
	s.Events.Publish(ComponentEvent{Type: ComponentCreated, ID: cp.ID, Component: cp.Clone()})
	return cp.Clone(), nil
}

func (s *ComponentStore) putLocked(c *domain.Component) {
	s.seq++
	s.items[c.ID] = &entry{c: c, seq: s.seq}
	s.addToLayerLocked(c.LayerID, c.ID)
	s.index.Insert(c.ID, c.Bounds())
}

func (s *ComponentStore) addToLayerLocked(layerID int, id string) {
	set := s.byLayer[layerID]
	if set == nil {
		set = make(map[string]struct{})
		s.byLayer[layerID] = set
	}
	set[id] = struct{}{}
}

func (s *ComponentStore) removeFromLayerLocked(layerID int, id string) {
	if set := s.byLayer[layerID]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(s.byLayer, layerID)
		}
	}
}

// Update applies patch and bumps Version by one. It returns nil when the
// component does not exist or the patch targets a missing layer.
func (s *ComponentStore) Update(id string, patch domain.ComponentPatch) *domain.Component {
	if patch.LayerID != nil && !s.layers.Has(*patch.LayerID) {
		return nil
	}
	if patch.Data != nil {
		s.mu.RLock()
		e, ok := s.items[id]
		mismatch := ok && patch.Data.Kind() != e.c.Type
		s.mu.RUnlock()
		if mismatch {
			return nil
		}
	}

	s.mu.Lock()
	e, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	prev := e.c.Clone()
	patch.Apply(e.c)
	e.c.Version = prev.Version + 1
	if e.c.LayerID != prev.LayerID {
		s.removeFromLayerLocked(prev.LayerID, id)
		s.addToLayerLocked(e.c.LayerID, id)
	}
	s.index.Insert(id, e.c.Bounds())
	updated := e.c.Clone()
	s.mu.Unlock()

	if updated.LayerID != prev.LayerID {
		s.layers.AdjustCount(prev.LayerID, -1)
		s.layers.AdjustCount(updated.LayerID, 1)
	}
	s.Events.Publish(ComponentEvent{Type: ComponentUpdated, ID: id, Component: updated.Clone(), Previous: prev})
	return updated
}

// Translate moves a component and any point payload it carries.
func (s *ComponentStore) Translate(id string, dx, dy float64) *domain.Component {
	c := s.Get(id)
	if c == nil {
		return nil
	}
	c.Translate(dx, dy)
	return s.Update(id, domain.ComponentPatch{X: &c.X, Y: &c.Y, Data: c.Data})
}

// Delete removes a component and reports whether it existed.
func (s *ComponentStore) Delete(id string) bool {
	return s.delete(id, false)
}

func (s *ComponentStore) delete(id string, remote bool) bool {
	s.mu.Lock()
	e, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.items, id)
	s.removeFromLayerLocked(e.c.LayerID, id)
	s.index.Remove(id)
	s.mu.Unlock()

	s.layers.AdjustCount(e.c.LayerID, -1)
	s.Events.Publish(ComponentEvent{Type: ComponentDeleted, ID: id, Previous: e.c, Remote: remote})
	return true
}

// BatchCreate creates each spec in order and skips invalid ones.
func (s *ComponentStore) BatchCreate(specs []CreateSpec) []*domain.Component {
	out := make([]*domain.Component, 0, len(specs))
	for _, spec := range specs {
		c, err := s.Create(spec.Type, spec.LayerID, spec.Position, spec.Data)
		if err != nil {
			continue
		}
		out = append(out, c)
	}
	return out
}

// UpdateSpec pairs a component id with a patch.
type UpdateSpec struct {
	ID    string
	Patch domain.ComponentPatch
}

func (s *ComponentStore) BatchUpdate(specs []UpdateSpec) []*domain.Component {
	out := make([]*domain.Component, 0, len(specs))
	for _, spec := range specs {
		if c := s.Update(spec.ID, spec.Patch); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// BatchDelete returns the number of components removed.
func (s *ComponentStore) BatchDelete(ids []string) int {
	n := 0
	for _, id := range ids {
		if s.Delete(id) {
			n++
		}
	}
	return n
}

// MoveToLayer reassigns every listed component to layerID.
func (s *ComponentStore) MoveToLayer(ids []string, layerID int) []*domain.Component {
	if !s.layers.Has(layerID) {
		return nil
	}
	specs := make([]UpdateSpec, 0, len(ids))
	for _, id := range ids {
		lid := layerID
		specs = append(specs, UpdateSpec{ID: id, Patch: domain.ComponentPatch{LayerID: &lid}})
	}
	return s.BatchUpdate(specs)
}

// Duplicate copies the listed components with fresh ids, shifted by
// DuplicateOffset. Data is deep-copied.
func (s *ComponentStore) Duplicate(ids []string) []*domain.Component {
	out := make([]*domain.Component, 0, len(ids))
	for _, id := range ids {
		src := s.Get(id)
		if src == nil {
			continue
		}
		cp := src.Clone()
		cp.ID = ""
		cp.Version = 1
		cp.Translate(DuplicateOffset, DuplicateOffset)
		created, err := s.Insert(cp)
		if err != nil {
			continue
		}
		out = append(out, created)
	}
	return out
}

// InViewport returns visible components whose bounds intersect the viewport
// rectangle widened by buffer world units on every side.
func (s *ComponentStore) InViewport(vp domain.Viewport, buffer float64) []*domain.Component {
	rect := vp.WorldRect().Expand(buffer)

	s.mu.RLock()
	defer s.mu.RUnlock()
	hits := s.index.Query(rect)
	out := make([]*entry, 0, len(hits))
	for id := range hits {
		if e := s.items[id]; e != nil && e.c.Visible {
			out = append(out, e)
		}
	}
	return clonesBySeq(out)
}

// AtPoint returns the components containing (x, y), topmost first. Topmost
// follows paint order: higher layer id first, then most recently inserted.
func (s *ComponentStore) AtPoint(x, y float64) []*domain.Component {
	p := domain.Point{X: x, Y: y}
	s.mu.RLock()
	defer s.mu.RUnlock()
	hits := s.index.Query(domain.Bounds{X: x, Y: y})
	found := make([]*entry, 0, len(hits))
	for id := range hits {
		e := s.items[id]
		if e != nil && e.c.Visible && e.c.Bounds().ContainsPoint(p) {
			found = append(found, e)
		}
	}
	rank := make(map[int]int)
	for _, e := range found {
		if _, ok := rank[e.c.LayerID]; !ok {
			rank[e.c.LayerID] = s.layerRank(e.c.LayerID)
		}
	}
	sort.Slice(found, func(i, j int) bool {
		ri, rj := rank[found[i].c.LayerID], rank[found[j].c.LayerID]
		if ri != rj {
			return ri > rj
		}
		return found[i].seq > found[j].seq
	})
	out := make([]*domain.Component, len(found))
	for i, e := range found {
		out[i] = e.c.Clone()
	}
	return out
}

// InRect returns every component intersecting b, in no particular order.
func (s *ComponentStore) InRect(b domain.Bounds) []*domain.Component {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hits := s.index.Query(b)
	out := make([]*domain.Component, 0, len(hits))
	for id := range hits {
		if e := s.items[id]; e != nil {
			out = append(out, e.c.Clone())
		}
	}
	return out
}

// ByLayer returns the components of one layer in insertion order.
func (s *ComponentStore) ByLayer(layerID int) []*domain.Component {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.byLayer[layerID]
	out := make([]*entry, 0, len(set))
	for id := range set {
		out = append(out, s.items[id])
	}
	return clonesBySeq(out)
}

// IDsByLayer returns the ids on a layer without copying components.
func (s *ComponentStore) IDsByLayer(layerID int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byLayer[layerID]))
	for id := range s.byLayer[layerID] {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return s.items[out[i]].seq < s.items[out[j]].seq })
	return out
}

func (s *ComponentStore) Get(id string) *domain.Component {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.items[id]; ok {
		return e.c.Clone()
	}
	return nil
}

func (s *ComponentStore) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok
}

// All returns every component in insertion order.
func (s *ComponentStore) All() []*domain.Component {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*entry, 0, len(s.items))
	for _, e := range s.items {
		out = append(out, e)
	}
	return clonesBySeq(out)
}

func (s *ComponentStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Load replaces the store contents with comps. Components referencing a
// missing layer are skipped.
func (s *ComponentStore) Load(comps []domain.Component) int {
	s.mu.Lock()
	s.resetLocked()
	loaded := make([]*domain.Component, 0, len(comps))
	for i := range comps {
		c := comps[i].Clone()
		if c.ID == "" || c.Data == nil || !s.layers.Has(c.LayerID) {
			continue
		}
		if _, dup := s.items[c.ID]; dup {
			continue
		}
		if c.Version == 0 {
			c.Version = 1
		}
		s.putLocked(c)
		loaded = append(loaded, c)
	}
	s.mu.Unlock()

	for _, c := range loaded {
		s.layers.AdjustCount(c.LayerID, 1)
	}
	s.Events.Publish(ComponentEvent{Type: ComponentsLoaded})
	return len(loaded)
}

// Clear removes every component.
func (s *ComponentStore) Clear() {
	s.mu.Lock()
	counts := make(map[int]int)
	for _, e := range s.items {
		counts[e.c.LayerID]++
	}
	s.resetLocked()
	s.mu.Unlock()

	for layerID, n := range counts {
		s.layers.AdjustCount(layerID, -n)
	}
	s.Events.Publish(ComponentEvent{Type: ComponentsCleared})
}

func (s *ComponentStore) resetLocked() {
	s.items = make(map[string]*entry)
	s.byLayer = make(map[int]map[string]struct{})
	s.index.Clear()
}

// ApplyRemote stores a component received from another participant using
// last-write-wins: it is accepted only when its Version is newer than the
// local copy.
func (s *ComponentStore) ApplyRemote(c *domain.Component) bool {
	if c == nil || c.ID == "" || c.Data == nil || !s.layers.Has(c.LayerID) {
		return false
	}
	in := c.Clone()

	s.mu.Lock()
	e, exists := s.items[in.ID]
	if exists && in.Version <= e.c.Version {
		s.mu.Unlock()
		return false
	}
	var prev *domain.Component
	if exists {
		prev = e.c
		s.removeFromLayerLocked(prev.LayerID, in.ID)
		e.c = in
		s.addToLayerLocked(in.LayerID, in.ID)
		s.index.Insert(in.ID, in.Bounds())
	} else {
		s.putLocked(in)
	}
	s.mu.Unlock()

	evType := ComponentCreated
	if exists {
		evType = ComponentUpdated
		if prev.LayerID != in.LayerID {
			s.layers.AdjustCount(prev.LayerID, -1)
			s.layers.AdjustCount(in.LayerID, 1)
		}
	} else {
		s.layers.AdjustCount(in.LayerID, 1)
	}
	s.Events.Publish(ComponentEvent{Type: evType, ID: in.ID, Component: in.Clone(), Previous: prev, Remote: true})
	return true
}

// RemoveRemote deletes a component on behalf of another participant.
func (s *ComponentStore) RemoveRemote(id string) bool {
	return s.delete(id, true)
}

func clonesBySeq(es []*entry) []*domain.Component {
	sort.Slice(es, func(i, j int) bool { return es[i].seq < es[j].seq })
	out := make([]*domain.Component, len(es))
	for i, e := range es {
		out[i] = e.c.Clone()
	}
	return out
}
