package viewport

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/r2"

	"whiteboard/internal/domain"
	"whiteboard/internal/events"
)

const (
	DefaultMinZoom  = 0.1
	DefaultMaxZoom  = 5.0
	DefaultZoomStep = 0.1
	DefaultPadding  = 50.0
	wheelFactor     = 0.001
)

type Config struct {
	MinZoom   float64 `yaml:"min_zoom"`
	MaxZoom   float64 `yaml:"max_zoom"`
	ZoomStep  float64 `yaml:"zoom_step"`
	WheelZoom bool    `yaml:"wheel_zoom"`
	PinchZoom bool    `yaml:"pinch_zoom"`
}

func DefaultConfig() Config {
	return Config{
		MinZoom:   DefaultMinZoom,
		MaxZoom:   DefaultMaxZoom,
		ZoomStep:  DefaultZoomStep,
		WheelZoom: true,
		PinchZoom: true,
	}
}

type EventType string

const (
	Changed  EventType = "viewport-change"
	PanStart EventType = "pan-start"
	PanEnd   EventType = "pan-end"
)

type Event struct {
	Type     EventType
	Viewport domain.Viewport
}

// Controller owns the pan/zoom state and the gesture state machines that
// drive it. World = origin + screen/zoom.
type Controller struct {
	mu  sync.Mutex
	cfg Config
	vp  domain.Viewport

	panning     bool
	lastPointer r2.Vec

	touchPan        bool
	pinchStartDist  float64
	pinchStartZoom  float64
	lastTouchCenter r2.Vec

	Events *events.Bus[Event]
}

func New(cfg Config, width, height float64) *Controller {
	if cfg.MinZoom <= 0 {
		cfg.MinZoom = DefaultMinZoom
	}
	if cfg.MaxZoom < cfg.MinZoom {
		cfg.MaxZoom = DefaultMaxZoom
	}
	if cfg.ZoomStep <= 0 {
		cfg.ZoomStep = DefaultZoomStep
	}
	return &Controller{
		cfg:    cfg,
		vp:     domain.Viewport{Zoom: 1, Width: width, Height: height},
		Events: events.NewBus[Event](),
	}
}

func (c *Controller) clamp(z float64) float64 {
	return math.Max(c.cfg.MinZoom, math.Min(c.cfg.MaxZoom, z))
}

func (c *Controller) Viewport() domain.Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.vp
}

// ViewportPatch is a partial viewport update.
type ViewportPatch struct {
	X, Y, Zoom, Width, Height *float64
}

// Set applies the non-nil fields, clamping zoom.
func (c *Controller) Set(p ViewportPatch) {
	c.mu.Lock()
	if p.X != nil {
		c.vp.X = *p.X
	}
	if p.Y != nil {
		c.vp.Y = *p.Y
	}
	if p.Zoom != nil {
		c.vp.Zoom = c.clamp(*p.Zoom)
	}
	if p.Width != nil {
		c.vp.Width = *p.Width
	}
	if p.Height != nil {
		c.vp.Height = *p.Height
	}
	c.mu.Unlock()
	c.emit(Changed)
}

// Restore replaces the whole viewport, e.g. from a snapshot. Screen size is
// kept when the stored one is empty.
func (c *Controller) Restore(vp domain.Viewport) {
	c.mu.Lock()
	c.vp.X, c.vp.Y = vp.X, vp.Y
	c.vp.Zoom = c.clamp(vp.Zoom)
	if vp.Width > 0 && vp.Height > 0 {
		c.vp.Width, c.vp.Height = vp.Width, vp.Height
	}
	c.mu.Unlock()
	c.emit(Changed)
}

func (c *Controller) SetSize(width, height float64) {
	c.Set(ViewportPatch{Width: &width, Height: &height})
}

// Pan moves the origin by a screen-space delta.
func (c *Controller) Pan(dx, dy float64) {
	c.mu.Lock()
	c.vp.X += dx / c.vp.Zoom
	c.vp.Y += dy / c.vp.Zoom
	c.mu.Unlock()
	c.emit(Changed)
}

// PanTo centers the viewport on a world point.
func (c *Controller) PanTo(x, y float64) {
	c.mu.Lock()
	c.vp.X = x - c.vp.Width/(2*c.vp.Zoom)
	c.vp.Y = y - c.vp.Height/(2*c.vp.Zoom)
	c.mu.Unlock()
	c.emit(Changed)
}

// Zoom sets the zoom level, keeping the world point under center (screen
// coordinates, default the viewport center) fixed on screen.
func (c *Controller) Zoom(level float64, center *domain.Point) {
	c.mu.Lock()
	z := c.clamp(level)
	if z == c.vp.Zoom {
		c.mu.Unlock()
		return
	}
	anchor := r2.Vec{X: c.vp.Width / 2, Y: c.vp.Height / 2}
	if center != nil {
		anchor = r2.Vec{X: center.X, Y: center.Y}
	}
	before := c.toWorldLocked(anchor)
	c.vp.Zoom = z
	after := c.toWorldLocked(anchor)
	shift := r2.Sub(before, after)
	c.vp.X += shift.X
	c.vp.Y += shift.Y
	c.mu.Unlock()
	c.emit(Changed)
}

func (c *Controller) ZoomIn(center *domain.Point) {
	c.Zoom(c.Viewport().Zoom+c.cfg.ZoomStep, center)
}

func (c *Controller) ZoomOut(center *domain.Point) {
	c.Zoom(c.Viewport().Zoom-c.cfg.ZoomStep, center)
}

// FitToBounds zooms and centers so b plus padding fills the screen.
func (c *Controller) FitToBounds(b domain.Bounds, padding float64) {
	c.mu.Lock()
	cw := b.Width + padding*2
	ch := b.Height + padding*2
	if cw <= 0 || ch <= 0 || c.vp.Width <= 0 || c.vp.Height <= 0 {
		c.mu.Unlock()
		return
	}
	z := c.clamp(math.Min(c.vp.Width/cw, c.vp.Height/ch))
	c.vp.Zoom = z
	c.vp.X = b.X - padding + (cw-c.vp.Width/z)/2
	c.vp.Y = b.Y - padding + (ch-c.vp.Height/z)/2
	c.mu.Unlock()
	c.emit(Changed)
}

// FitToContent fits the union box of comps, or resets when there are none.
func (c *Controller) FitToContent(comps []*domain.Component, padding float64) {
	if len(comps) == 0 {
		c.Reset()
		return
	}
	b := comps[0].Bounds()
	for _, comp := range comps[1:] {
		b = b.Union(comp.Bounds())
	}
	c.FitToBounds(b, padding)
}

// Reset returns to the identity view.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.vp.X, c.vp.Y, c.vp.Zoom = 0, 0, 1
	c.mu.Unlock()
	c.emit(Changed)
}

func (c *Controller) toWorldLocked(s r2.Vec) r2.Vec {
	return r2.Add(r2.Vec{X: c.vp.X, Y: c.vp.Y}, r2.Scale(1/c.vp.Zoom, s))
}

func (c *Controller) ScreenToCanvas(p domain.Point) domain.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.toWorldLocked(r2.Vec{X: p.X, Y: p.Y})
	return domain.Point{X: w.X, Y: w.Y}
}

func (c *Controller) CanvasToScreen(p domain.Point) domain.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := r2.Scale(c.vp.Zoom, r2.Sub(r2.Vec{X: p.X, Y: p.Y}, r2.Vec{X: c.vp.X, Y: c.vp.Y}))
	return domain.Point{X: s.X, Y: s.Y}
}

// VisibleBounds is the world rectangle currently on screen.
func (c *Controller) VisibleBounds() domain.Bounds {
	return c.Viewport().WorldRect()
}

func (c *Controller) IsBoundsVisible(b domain.Bounds) bool {
	return c.VisibleBounds().Intersects(b)
}

func (c *Controller) emit(t EventType) {
	c.Events.Publish(Event{Type: t, Viewport: c.Viewport()})
}
