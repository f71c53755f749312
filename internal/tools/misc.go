package tools

import (
	"log"
	"math"
	"time"

	"whiteboard/internal/domain"
)

// ── Pan ─────────────────────────────────────────────────────

// Pan moves the viewport with any button.
type Pan struct {
	base
	env *Env
}

func NewPan(env *Env) *Pan { return &Pan{env: env} }

func (t *Pan) Kind() domain.ToolKind { return domain.ToolPan }

func (t *Pan) Activate(cfg domain.ToolConfig) { t.cfg = cfg }

func (t *Pan) Deactivate() {
	t.env.Viewport.PointerUp(domain.PointerEvent{})
}

func (t *Pan) PointerDown(ev domain.PointerEvent, _ domain.Point) {
	t.env.Viewport.BeginDrag(ev)
}

func (t *Pan) PointerMove(ev domain.PointerEvent, _ domain.Point) {
	t.env.Viewport.PointerMove(ev)
}

func (t *Pan) PointerUp(ev domain.PointerEvent, _ domain.Point) {
	t.env.Viewport.PointerMove(ev)
	t.env.Viewport.PointerUp(ev)
}

// ── Image ───────────────────────────────────────────────────

const (
	MinImageSize      = 50.0
	MaxImageDimension = 4096.0
)

// Image places the configured image source. Dragging sizes it while
// keeping the aspect ratio.
type Image struct {
	base
	env *Env

	id     string
	anchor domain.Point
	aspect float64
}

func NewImage(env *Env) *Image { return &Image{env: env} }

func (t *Image) Kind() domain.ToolKind { return domain.ToolImage }

func (t *Image) Activate(cfg domain.ToolConfig) {
	t.cfg = cfg
	t.id = ""
}

func (t *Image) Deactivate() { t.finish() }

func (t *Image) PointerDown(_ domain.PointerEvent, world domain.Point) {
	if t.id != "" {
		t.finish()
	}
	src := t.cfg.ImageSrc
	if src == "" {
		return
	}
	layerID, ok := t.env.drawLayer()
	if !ok {
		return
	}
	w, h := domain.DefaultComponentSize, domain.DefaultComponentSize
	if t.env.ImageSize != nil {
		if iw, ih, ok := t.env.ImageSize(src); ok && iw > 0 && ih > 0 {
			if iw > MaxImageDimension || ih > MaxImageDimension {
				log.Printf("[TOOLS] image %s too large (%.0fx%.0f)", src, iw, ih)
				return
			}
			w, h = iw, ih
		}
	}
	data := &domain.ImageData{Src: src, OriginalWidth: w, OriginalHeight: h}
	c, err := t.env.Store.Create(domain.ComponentImage, layerID, world, data)
	if err != nil {
		log.Printf("[TOOLS] place image: %v", err)
		return
	}
	t.id = c.ID
	t.anchor = world
	t.aspect = w / h
	t.env.Store.Update(t.id, domain.ComponentPatch{Width: &w, Height: &h})
}

func (t *Image) PointerMove(_ domain.PointerEvent, world domain.Point) {
	if t.id == "" {
		return
	}
	w := math.Max(MinImageSize, math.Abs(world.X-t.anchor.X))
	h := math.Max(MinImageSize, w/t.aspect)
	t.env.Store.Update(t.id, domain.ComponentPatch{Width: &w, Height: &h})
}

func (t *Image) PointerUp(domain.PointerEvent, domain.Point) { t.finish() }

func (t *Image) finish() {
	if t.id == "" {
		return
	}
	if c := t.env.Store.Get(t.id); c != nil {
		t.env.record(domain.ActionCreate, t.id, nil, c)
	}
	t.id = ""
}

// ── Laser ───────────────────────────────────────────────────

// LaserFade is how long a laser point stays visible.
const LaserFade = time.Second

// TrailPoint is a laser sample with its capture time in milliseconds.
type TrailPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	T int64   `json:"t"`
}

// Trail is the visible part of a laser gesture. It is never stored on the
// board. Active is false on the final trail of a gesture.
type Trail struct {
	Color  string       `json:"color"`
	Points []TrailPoint `json:"points"`
	Active bool         `json:"active"`
}

// Laser points at things without drawing.
type Laser struct {
	base
	env *Env

	active bool
	points []TrailPoint
}

func NewLaser(env *Env) *Laser { return &Laser{env: env} }

func (t *Laser) Kind() domain.ToolKind { return domain.ToolLaser }

func (t *Laser) Activate(cfg domain.ToolConfig) {
	t.cfg = cfg
	t.active = false
	t.points = nil
}

func (t *Laser) Deactivate() {
	if t.active {
		t.active = false
		t.points = nil
		t.emit()
	}
}

func (t *Laser) PointerDown(_ domain.PointerEvent, world domain.Point) {
	t.active = true
	t.points = nil
	t.add(world)
}

func (t *Laser) PointerMove(_ domain.PointerEvent, world domain.Point) {
	if t.active {
		t.add(world)
	}
}

func (t *Laser) PointerUp(domain.PointerEvent, domain.Point) {
	t.Deactivate()
}

func (t *Laser) add(p domain.Point) {
	now := t.env.now()
	t.points = append(t.points, TrailPoint{X: p.X, Y: p.Y, T: now.UnixMilli()})
	cutoff := now.Add(-LaserFade).UnixMilli()
	i := 0
	for i < len(t.points) && t.points[i].T < cutoff {
		i++
	}
	t.points = t.points[i:]
	t.emit()
}

func (t *Laser) emit() {
	if t.env.Laser == nil {
		return
	}
	pts := append([]TrailPoint(nil), t.points...)
	t.env.Laser(Trail{Color: t.cfg.Color, Points: pts, Active: t.active})
}
