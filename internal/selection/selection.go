package selection

import (
	"sort"
	"sync"

	"github.com/samber/lo"

	"whiteboard/internal/domain"
	"whiteboard/internal/events"
)

type EventType string

const (
	Changed    EventType = "selection-change"
	BoxChanged EventType = "selection-box-change"
)

type Event struct {
	Type EventType
	IDs  []string
	Box  *domain.Bounds
}

// Source resolves ids to components. The component store satisfies it.
type Source interface {
	Get(id string) *domain.Component
	All() []*domain.Component
	ByLayer(layerID int) []*domain.Component
	InRect(b domain.Bounds) []*domain.Component
}

// Tracker holds the selected ids and an optional rubber-band box. It never
// stores components, only ids resolved through a Source on demand.
type Tracker struct {
	mu       sync.RWMutex
	src      Source
	ids      map[string]int
	seq      int
	box      *domain.Bounds
	boxStart *domain.Point

	Events *events.Bus[Event]
}

func New(src Source) *Tracker {
	return &Tracker{
		src:    src,
		ids:    make(map[string]int),
		Events: events.NewBus[Event](),
	}
}

// Select replaces the selection with id, or adds id when add is set.
func (t *Tracker) Select(id string, add bool) {
	t.mu.Lock()
	if !add {
		t.ids = make(map[string]int)
	}
	t.addLocked(id)
	t.mu.Unlock()
	t.emitChanged()
}

// SelectMany replaces the selection with ids.
func (t *Tracker) SelectMany(ids []string) {
	t.mu.Lock()
	t.ids = make(map[string]int, len(ids))
	for _, id := range ids {
		t.addLocked(id)
	}
	t.mu.Unlock()
	t.emitChanged()
}

func (t *Tracker) addLocked(id string) {
	if _, ok := t.ids[id]; ok {
		return
	}
	t.seq++
	t.ids[id] = t.seq
}

func (t *Tracker) Deselect(id string) {
	t.mu.Lock()
	_, ok := t.ids[id]
	delete(t.ids, id)
	t.mu.Unlock()
	if ok {
		t.emitChanged()
	}
}

func (t *Tracker) Toggle(id string) {
	t.mu.Lock()
	if _, ok := t.ids[id]; ok {
		delete(t.ids, id)
	} else {
		t.addLocked(id)
	}
	t.mu.Unlock()
	t.emitChanged()
}

func (t *Tracker) Clear() {
	t.mu.Lock()
	if len(t.ids) == 0 {
		t.mu.Unlock()
		return
	}
	t.ids = make(map[string]int)
	t.mu.Unlock()
	t.emitChanged()
}

func selectable(c *domain.Component, _ int) bool { return !c.Locked && c.Visible }

func componentID(c *domain.Component, _ int) string { return c.ID }

// SelectAll selects every unlocked, visible component.
func (t *Tracker) SelectAll() {
	t.SelectMany(lo.Map(lo.Filter(t.src.All(), selectable), componentID))
}

// SelectAllInLayer selects the unlocked, visible components of one layer.
func (t *Tracker) SelectAllInLayer(layerID int) {
	t.SelectMany(lo.Map(lo.Filter(t.src.ByLayer(layerID), selectable), componentID))
}

// Invert selects every unlocked, visible component not currently selected.
func (t *Tracker) Invert() {
	t.mu.RLock()
	current := make(map[string]bool, len(t.ids))
	for id := range t.ids {
		current[id] = true
	}
	t.mu.RUnlock()

	next := lo.Filter(t.src.All(), func(c *domain.Component, i int) bool {
		return selectable(c, i) && !current[c.ID]
	})
	t.SelectMany(lo.Map(next, componentID))
}

// Expand grows the selection to every unlocked, visible component sharing a
// layer with the current selection, plus extraLayers.
func (t *Tracker) Expand(extraLayers ...int) {
	layerIDs := lo.Uniq(append(lo.Map(t.Components(), func(c *domain.Component, _ int) int {
		return c.LayerID
	}), extraLayers...))
	sort.Ints(layerIDs)

	var ids []string
	for _, lid := range layerIDs {
		ids = append(ids, lo.Map(lo.Filter(t.src.ByLayer(lid), selectable), componentID)...)
	}
	t.SelectMany(ids)
}

// IDs returns the selected ids in selection order.
func (t *Tracker) IDs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := lo.Keys(t.ids)
	sort.Slice(out, func(i, j int) bool { return t.ids[out[i]] < t.ids[out[j]] })
	return out
}

// Components resolves the selection, skipping ids that no longer exist.
func (t *Tracker) Components() []*domain.Component {
	out := make([]*domain.Component, 0)
	for _, id := range t.IDs() {
		if c := t.src.Get(id); c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Bounds returns the union box of the selected components.
func (t *Tracker) Bounds() (domain.Bounds, bool) {
	comps := t.Components()
	if len(comps) == 0 {
		return domain.Bounds{}, false
	}
	b := comps[0].Bounds()
	for _, c := range comps[1:] {
		b = b.Union(c.Bounds())
	}
	return b, true
}

func (t *Tracker) IsSelected(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.ids[id]
	return ok
}

func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ids)
}

// Prune drops ids that no longer resolve.
func (t *Tracker) Prune() {
	t.mu.Lock()
	changed := false
	for id := range t.ids {
		if t.src.Get(id) == nil {
			delete(t.ids, id)
			changed = true
		}
	}
	t.mu.Unlock()
	if changed {
		t.emitChanged()
	}
}

// ── Rubber band ─────────────────────────────────────────────

func (t *Tracker) StartBox(p domain.Point) {
	t.mu.Lock()
	start := p
	t.boxStart = &start
	t.box = &domain.Bounds{X: p.X, Y: p.Y}
	box := *t.box
	t.mu.Unlock()
	t.Events.Publish(Event{Type: BoxChanged, Box: &box})
}

// UpdateBox normalizes the drag from the start point to p.
func (t *Tracker) UpdateBox(p domain.Point) {
	t.mu.Lock()
	if t.boxStart == nil {
		t.mu.Unlock()
		return
	}
	b := domain.BoundsFromPoints(*t.boxStart, p)
	t.box = &b
	t.mu.Unlock()
	t.Events.Publish(Event{Type: BoxChanged, Box: &b})
}

// EndBox replaces the selection with the unlocked components intersecting the
// box and returns their ids.
func (t *Tracker) EndBox() []string {
	t.mu.Lock()
	if t.box == nil {
		t.mu.Unlock()
		return nil
	}
	box := *t.box
	t.box = nil
	t.boxStart = nil
	t.mu.Unlock()

	hits := lo.Filter(t.src.InRect(box), func(c *domain.Component, _ int) bool { return !c.Locked })
	sort.Slice(hits, func(i, j int) bool { return hits[i].ID < hits[j].ID })
	ids := lo.Map(hits, componentID)

	t.Events.Publish(Event{Type: BoxChanged})
	t.SelectMany(ids)
	return ids
}

func (t *Tracker) CancelBox() {
	t.mu.Lock()
	t.box = nil
	t.boxStart = nil
	t.mu.Unlock()
	t.Events.Publish(Event{Type: BoxChanged})
}

func (t *Tracker) Box() (domain.Bounds, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.box == nil {
		return domain.Bounds{}, false
	}
	return *t.box, true
}

func (t *Tracker) emitChanged() {
	t.Events.Publish(Event{Type: Changed, IDs: t.IDs()})
}
