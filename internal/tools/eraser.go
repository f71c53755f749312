package tools

import (
	"whiteboard/internal/domain"
)

// Eraser deletes every editable component it passes over. Each drag erases
// a component at most once and is undone as one step.
type Eraser struct {
	base
	env *Env

	active  bool
	visited map[string]struct{}
}

func NewEraser(env *Env) *Eraser { return &Eraser{env: env} }

func (t *Eraser) Kind() domain.ToolKind { return domain.ToolEraser }

func (t *Eraser) Activate(cfg domain.ToolConfig) {
	t.cfg = cfg
	t.active = false
	t.visited = nil
}

func (t *Eraser) Deactivate() { t.end() }

func (t *Eraser) PointerDown(_ domain.PointerEvent, world domain.Point) {
	if t.active {
		t.end()
	}
	t.active = true
	t.visited = make(map[string]struct{})
	if t.env.History != nil {
		t.env.History.StartBatch()
	}
	t.erase(world)
}

func (t *Eraser) PointerMove(_ domain.PointerEvent, world domain.Point) {
	if t.active {
		t.erase(world)
	}
}

func (t *Eraser) PointerUp(_ domain.PointerEvent, world domain.Point) {
	if t.active {
		t.erase(world)
	}
	t.end()
}

// erase removes components under the eraser tip, a square as wide as the
// configured thickness in screen pixels.
func (t *Eraser) erase(p domain.Point) {
	half := t.cfg.Thickness / 2 / t.env.zoom()
	hits := t.env.Store.InRect(domain.Bounds{X: p.X - half, Y: p.Y - half, Width: 2 * half, Height: 2 * half})
	for _, c := range hits {
		if _, seen := t.visited[c.ID]; seen {
			continue
		}
		t.visited[c.ID] = struct{}{}
		if !t.env.editable(c) {
			continue
		}
		if t.env.Store.Delete(c.ID) {
			t.env.record(domain.ActionDelete, c.ID, c, nil)
		}
	}
}

func (t *Eraser) end() {
	if !t.active {
		return
	}
	t.active = false
	t.visited = nil
	if t.env.History != nil {
		t.env.History.EndBatch()
	}
}
