package tools

import (
	"time"

	"whiteboard/internal/domain"
)

// Tool is one interaction mode. Pointer handlers receive the raw screen
// event and the matching world point.
type Tool interface {
	Kind() domain.ToolKind
	Activate(cfg domain.ToolConfig)
	// Configure swaps the style without resetting interaction state.
	Configure(cfg domain.ToolConfig)
	// Deactivate must finish any in-progress interaction.
	Deactivate()
	PointerDown(ev domain.PointerEvent, world domain.Point)
	PointerMove(ev domain.PointerEvent, world domain.Point)
	PointerUp(ev domain.PointerEvent, world domain.Point)
	// KeyDown and KeyUp report whether the tool consumed the key.
	KeyDown(ev domain.KeyEvent) bool
	KeyUp(ev domain.KeyEvent) bool
}

// Store is the component store surface tools mutate.
type Store interface {
	Create(typ domain.ComponentType, layerID int, pos domain.Point, data domain.ComponentData) (*domain.Component, error)
	Update(id string, patch domain.ComponentPatch) *domain.Component
	Translate(id string, dx, dy float64) *domain.Component
	Delete(id string) bool
	Get(id string) *domain.Component
	AtPoint(x, y float64) []*domain.Component
	InRect(b domain.Bounds) []*domain.Component
}

type Layers interface {
	Active() (domain.Layer, bool)
	IsLocked(id int) bool
}

type Selection interface {
	Select(id string, add bool)
	Deselect(id string)
	IsSelected(id string) bool
	IDs() []string
	Clear()
	SelectAll()
	StartBox(p domain.Point)
	UpdateBox(p domain.Point)
	EndBox() []string
	CancelBox()
}

// Recorder receives committed mutations for undo.
type Recorder interface {
	Record(action domain.HistoryAction, componentID string, prev, next *domain.Component)
	StartBatch()
	EndBatch()
}

// Panner drives viewport drags for the pan tool.
type Panner interface {
	BeginDrag(ev domain.PointerEvent)
	PointerMove(ev domain.PointerEvent) bool
	PointerUp(ev domain.PointerEvent) bool
}

// Env bundles the collaborators tools work against. Optional fields may be
// nil.
type Env struct {
	Store     Store
	Layers    Layers
	Selection Selection
	History   Recorder
	Viewport  Panner

	// Zoom reports the current zoom so pixel thresholds can be converted
	// to world units.
	Zoom func() float64
	// ImageSize resolves the natural size of an image source.
	ImageSize func(src string) (w, h float64, ok bool)
	// Laser receives transient pointer trails.
	Laser func(Trail)
	Now   func() time.Time
}

func (e *Env) zoom() float64 {
	if e.Zoom == nil {
		return 1
	}
	if z := e.Zoom(); z > 0 {
		return z
	}
	return 1
}

func (e *Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// drawLayer returns the active layer id when it accepts new content.
func (e *Env) drawLayer() (int, bool) {
	l, ok := e.Layers.Active()
	if !ok || l.Locked {
		return 0, false
	}
	return l.ID, true
}

// editable reports whether c may be changed by direct manipulation.
func (e *Env) editable(c *domain.Component) bool {
	return c != nil && !c.Locked && c.Visible && !e.Layers.IsLocked(c.LayerID)
}

// topmost returns the first editable hit under p that satisfies keep.
func (e *Env) topmost(p domain.Point, keep func(*domain.Component) bool) *domain.Component {
	for _, c := range e.Store.AtPoint(p.X, p.Y) {
		if e.editable(c) && (keep == nil || keep(c)) {
			return c
		}
	}
	return nil
}

func (e *Env) record(action domain.HistoryAction, id string, prev, next *domain.Component) {
	if e.History != nil {
		e.History.Record(action, id, prev, next)
	}
}

func (e *Env) batch(fn func()) {
	if e.History == nil {
		fn()
		return
	}
	e.History.StartBatch()
	defer e.History.EndBatch()
	fn()
}

// base gives tools the shared config plumbing and no-op key handlers.
type base struct {
	cfg domain.ToolConfig
}

func (b *base) Configure(cfg domain.ToolConfig) { b.cfg = cfg }
func (b *base) KeyDown(domain.KeyEvent) bool { return false }
func (b *base) KeyUp(domain.KeyEvent) bool { return false }

func isModifier(ev domain.PointerEvent) bool {
	return ev.Shift || ev.Ctrl || ev.Meta
}
