package tools

import (
	"log"
	"math"

	"whiteboard/internal/domain"
)

// MinPointDistance is the screen distance, in pixels, a pointer must travel
// before another stroke point is recorded.
const MinPointDistance = 2.0

// Freehand draws pencil, marker and highlighter strokes. Points are stored
// in world coordinates and the component box tracks their bounds.
type Freehand struct {
	base
	env  *Env
	kind domain.ToolKind

	id     string
	stroke *domain.StrokeData
}

func NewFreehand(env *Env, kind domain.ToolKind) *Freehand {
	return &Freehand{env: env, kind: kind}
}

func (t *Freehand) Kind() domain.ToolKind { return t.kind }

func (t *Freehand) Activate(cfg domain.ToolConfig) {
	t.cfg = cfg
	t.id = ""
	t.stroke = nil
}

func (t *Freehand) Deactivate() { t.finish() }

// style derives the stroke look from the config. Marker and highlighter
// widen the line and force their own opacity.
func (t *Freehand) style() (domain.StrokeTool, float64, float64) {
	thickness := t.cfg.Thickness
	if thickness <= 0 {
		thickness = 2
	}
	switch t.kind {
	case domain.ToolMarker:
		return domain.StrokeMarker, thickness * 2, 0.8
	case domain.ToolHighlighter:
		return domain.StrokeHighlighter, thickness * 4, 0.3
	}
	opacity := t.cfg.Opacity
	if opacity <= 0 {
		opacity = 1
	}
	return domain.StrokePencil, thickness, opacity
}

func (t *Freehand) PointerDown(_ domain.PointerEvent, world domain.Point) {
	if t.id != "" {
		t.finish()
	}
	layerID, ok := t.env.drawLayer()
	if !ok {
		return
	}
	tool, thickness, opacity := t.style()
	data := &domain.StrokeData{
		Points:    []domain.Point{world},
		Color:     t.cfg.Color,
		Thickness: thickness,
		Opacity:   opacity,
		Tool:      tool,
	}
	c, err := t.env.Store.Create(domain.ComponentStroke, layerID, world, data)
	if err != nil {
		log.Printf("[TOOLS] start stroke: %v", err)
		return
	}
	t.id = c.ID
	t.stroke = data
	t.sync()
}

func (t *Freehand) PointerMove(_ domain.PointerEvent, world domain.Point) {
	if t.id == "" {
		return
	}
	last := t.stroke.Points[len(t.stroke.Points)-1]
	if math.Hypot(world.X-last.X, world.Y-last.Y)*t.env.zoom() < MinPointDistance {
		return
	}
	t.stroke.Points = append(t.stroke.Points, world)
	t.sync()
}

func (t *Freehand) PointerUp(_ domain.PointerEvent, world domain.Point) {
	if t.id == "" {
		return
	}
	last := t.stroke.Points[len(t.stroke.Points)-1]
	if last != world {
		t.stroke.Points = append(t.stroke.Points, world)
	}
	t.finish()
}

// sync republishes the point list and the box that encloses it.
func (t *Freehand) sync() *domain.Component {
	b := pointsBounds(t.stroke.Points, t.stroke.Thickness/2)
	return t.env.Store.Update(t.id, boxPatch(b, t.stroke))
}

// finish reduces the point list, commits the stroke and records it.
func (t *Freehand) finish() {
	if t.id == "" {
		return
	}
	pts := t.stroke.Points
	if len(pts) == 1 {
		// A click leaves a dot.
		pts = append(pts, pts[0])
	}
	if len(pts) > simplifyMinPoints {
		pts = reducePoints(pts, simplifyEpsilon)
	}
	t.stroke.Points = pts
	if final := t.sync(); final != nil {
		t.env.record(domain.ActionCreate, t.id, nil, final)
	}
	t.id = ""
	t.stroke = nil
}
