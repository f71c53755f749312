package tools

import (
	"log"
	"math"

	"whiteboard/internal/domain"
)

// Connector draws a line between two points, binding each end to the
// component it lands on. Bound ends snap to the component center.
type Connector struct {
	base
	env *Env

	id   string
	data *domain.ConnectorData
}

func NewConnector(env *Env) *Connector { return &Connector{env: env} }

func (t *Connector) Kind() domain.ToolKind { return domain.ToolConnector }

func (t *Connector) Activate(cfg domain.ToolConfig) {
	t.cfg = cfg
	t.id = ""
	t.data = nil
}

func (t *Connector) Deactivate() { t.finish() }

// target is the component a connector end at p attaches to.
func (t *Connector) target(p domain.Point) *domain.Component {
	return t.env.topmost(p, func(c *domain.Component) bool {
		return c.ID != t.id && c.Type != domain.ComponentConnector
	})
}

func (t *Connector) PointerDown(_ domain.PointerEvent, world domain.Point) {
	if t.id != "" {
		t.finish()
	}
	layerID, ok := t.env.drawLayer()
	if !ok {
		return
	}
	pathType := t.cfg.ConnectorType
	if pathType == "" {
		pathType = domain.PathStraight
	}
	start := world
	data := &domain.ConnectorData{
		PathType:  pathType,
		EndArrow:  true,
		Color:     t.cfg.Color,
		Thickness: t.cfg.Thickness,
	}
	if hit := t.target(world); hit != nil {
		data.StartComponentID = hit.ID
		start = hit.Bounds().Center()
	}
	data.StartPoint, data.EndPoint = start, start

	c, err := t.env.Store.Create(domain.ComponentConnector, layerID, start, data)
	if err != nil {
		log.Printf("[TOOLS] start connector: %v", err)
		return
	}
	t.id = c.ID
	t.data = data
	t.sync()
}

func (t *Connector) PointerMove(_ domain.PointerEvent, world domain.Point) {
	if t.id == "" {
		return
	}
	t.data.EndPoint = world
	t.data.EndComponentID = ""
	if hit := t.target(world); hit != nil {
		t.data.EndComponentID = hit.ID
	}
	t.sync()
}

func (t *Connector) PointerUp(ev domain.PointerEvent, world domain.Point) {
	if t.id == "" {
		return
	}
	t.PointerMove(ev, world)
	if t.data.EndComponentID != "" {
		if c := t.env.Store.Get(t.data.EndComponentID); c != nil {
			t.data.EndPoint = c.Bounds().Center()
		}
	}
	t.finish()
}

// KeyDown cycles the path kind with Tab while a connector is being drawn.
func (t *Connector) KeyDown(ev domain.KeyEvent) bool {
	if ev.Key != "Tab" || t.id == "" {
		return false
	}
	t.data.PathType = t.data.PathType.Next()
	t.sync()
	return true
}

func (t *Connector) sync() *domain.Component {
	b := domain.BoundsFromPoints(t.data.StartPoint, t.data.EndPoint)
	return t.env.Store.Update(t.id, boxPatch(b, t.data))
}

func (t *Connector) finish() {
	if t.id == "" {
		return
	}
	s, e := t.data.StartPoint, t.data.EndPoint
	if math.Hypot(e.X-s.X, e.Y-s.Y) < 1 {
		// Nothing was drawn.
		t.env.Store.Delete(t.id)
	} else if final := t.sync(); final != nil {
		t.env.record(domain.ActionCreate, t.id, nil, final)
	}
	t.id = ""
	t.data = nil
}
