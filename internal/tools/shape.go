package tools

import (
	"log"
	"math"

	"whiteboard/internal/domain"
)

// Shape drags out a shape from an anchor corner. Holding Shift keeps the
// sides equal.
type Shape struct {
	base
	env *Env

	id     string
	anchor domain.Point
	moved  bool
}

func NewShape(env *Env) *Shape { return &Shape{env: env} }

func (t *Shape) Kind() domain.ToolKind { return domain.ToolShape }

func (t *Shape) Activate(cfg domain.ToolConfig) {
	t.cfg = cfg
	t.id = ""
}

func (t *Shape) Deactivate() { t.finish() }

func (t *Shape) PointerDown(_ domain.PointerEvent, world domain.Point) {
	if t.id != "" {
		t.finish()
	}
	layerID, ok := t.env.drawLayer()
	if !ok {
		return
	}
	shapeType := t.cfg.ShapeType
	if shapeType == "" {
		shapeType = domain.ShapeRectangle
	}
	data := &domain.ShapeData{
		ShapeType:   shapeType,
		Stroke:      t.cfg.Color,
		StrokeWidth: t.cfg.Thickness,
		Opacity:     t.cfg.Opacity,
	}
	c, err := t.env.Store.Create(domain.ComponentShape, layerID, world, data)
	if err != nil {
		log.Printf("[TOOLS] start shape: %v", err)
		return
	}
	t.id = c.ID
	t.anchor = world
	t.moved = false
	zero := 0.0
	t.env.Store.Update(t.id, domain.ComponentPatch{Width: &zero, Height: &zero})
}

// dragBox computes the shape box from the anchor to p. Negative deltas move
// the origin so the size stays positive.
func dragBox(anchor, p domain.Point, square bool) domain.Bounds {
	dx, dy := p.X-anchor.X, p.Y-anchor.Y
	if square {
		side := math.Max(math.Abs(dx), math.Abs(dy))
		dx = math.Copysign(side, dx)
		dy = math.Copysign(side, dy)
	}
	b := domain.Bounds{X: anchor.X, Y: anchor.Y, Width: math.Abs(dx), Height: math.Abs(dy)}
	if dx < 0 {
		b.X = anchor.X + dx
	}
	if dy < 0 {
		b.Y = anchor.Y + dy
	}
	return b
}

func (t *Shape) PointerMove(ev domain.PointerEvent, world domain.Point) {
	if t.id == "" {
		return
	}
	t.moved = true
	b := dragBox(t.anchor, world, ev.Shift)
	t.env.Store.Update(t.id, boxPatch(b, nil))
}

func (t *Shape) PointerUp(ev domain.PointerEvent, world domain.Point) {
	if t.id == "" {
		return
	}
	if t.moved {
		t.env.Store.Update(t.id, boxPatch(dragBox(t.anchor, world, ev.Shift), nil))
	}
	t.finish()
}

func (t *Shape) finish() {
	if t.id == "" {
		return
	}
	c := t.env.Store.Get(t.id)
	if c != nil {
		if w, h := c.Size(); w < 1 && h < 1 {
			// A click without a drag places a default sized shape.
			size := domain.DefaultComponentSize
			c = t.env.Store.Update(t.id, domain.ComponentPatch{Width: &size, Height: &size})
		}
	}
	if c != nil {
		t.env.record(domain.ActionCreate, t.id, nil, c)
	}
	t.id = ""
}
