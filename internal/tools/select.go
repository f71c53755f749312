package tools

import (
	"whiteboard/internal/domain"
)

const (
	NudgeStep      = 1.0
	NudgeStepLarge = 10.0
)

type selectMode int

const (
	selectIdle selectMode = iota
	selectDrag
	selectBox
)

// Select picks, drags, nudges and deletes components.
type Select struct {
	base
	env *Env

	mode   selectMode
	last   domain.Point
	before map[string]*domain.Component
	moved  bool
}

func NewSelect(env *Env) *Select { return &Select{env: env} }

func (t *Select) Kind() domain.ToolKind { return domain.ToolSelect }

func (t *Select) Activate(cfg domain.ToolConfig) {
	t.cfg = cfg
	t.reset()
}

func (t *Select) Deactivate() {
	switch t.mode {
	case selectDrag:
		t.commitDrag()
	case selectBox:
		t.env.Selection.CancelBox()
	}
	t.reset()
}

func (t *Select) reset() {
	t.mode = selectIdle
	t.before = nil
	t.moved = false
}

func (t *Select) PointerDown(ev domain.PointerEvent, world domain.Point) {
	sel := t.env.Selection
	hit := t.env.topmost(world, nil)
	if hit == nil {
		if !isModifier(ev) {
			sel.Clear()
		}
		sel.StartBox(world)
		t.mode = selectBox
		return
	}

	switch {
	case !sel.IsSelected(hit.ID):
		sel.Select(hit.ID, isModifier(ev))
	case isModifier(ev):
		sel.Deselect(hit.ID)
		return
	}
	t.mode = selectDrag
	t.last = world
	t.moved = false
	t.before = t.snapshot()
}

// snapshot copies every editable selected component.
func (t *Select) snapshot() map[string]*domain.Component {
	out := make(map[string]*domain.Component)
	for _, id := range t.env.Selection.IDs() {
		if c := t.env.Store.Get(id); t.env.editable(c) {
			out[id] = c
		}
	}
	return out
}

func (t *Select) PointerMove(_ domain.PointerEvent, world domain.Point) {
	switch t.mode {
	case selectDrag:
		dx, dy := world.X-t.last.X, world.Y-t.last.Y
		if dx == 0 && dy == 0 {
			return
		}
		for _, id := range t.env.Selection.IDs() {
			if _, ok := t.before[id]; ok {
				t.env.Store.Translate(id, dx, dy)
			}
		}
		t.last = world
		t.moved = true
	case selectBox:
		t.env.Selection.UpdateBox(world)
	}
}

func (t *Select) PointerUp(ev domain.PointerEvent, world domain.Point) {
	switch t.mode {
	case selectDrag:
		t.PointerMove(ev, world)
		t.commitDrag()
	case selectBox:
		t.env.Selection.UpdateBox(world)
		t.env.Selection.EndBox()
	}
	t.reset()
}

func (t *Select) commitDrag() {
	if !t.moved {
		return
	}
	t.recordMoves(t.before)
}

// recordMoves records one move per component, grouped when there are
// several.
func (t *Select) recordMoves(before map[string]*domain.Component) {
	ids := make([]string, 0, len(before))
	for _, id := range t.env.Selection.IDs() {
		if _, ok := before[id]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}
	t.env.batch(func() {
		for _, id := range ids {
			if after := t.env.Store.Get(id); after != nil {
				t.env.record(domain.ActionMove, id, before[id], after)
			}
		}
	})
}

func (t *Select) KeyDown(ev domain.KeyEvent) bool {
	switch ev.Key {
	case "ArrowLeft", "ArrowRight", "ArrowUp", "ArrowDown":
		t.nudge(ev)
		return true
	case "Delete", "Backspace":
		t.deleteSelected()
		return true
	case "Escape":
		if t.mode == selectBox {
			t.env.Selection.CancelBox()
			t.reset()
		}
		t.env.Selection.Clear()
		return true
	case "a", "A":
		if ev.Ctrl || ev.Meta {
			t.env.Selection.SelectAll()
			return true
		}
	}
	return false
}

func (t *Select) nudge(ev domain.KeyEvent) {
	step := NudgeStep
	if ev.Shift {
		step = NudgeStepLarge
	}
	var dx, dy float64
	switch ev.Key {
	case "ArrowLeft":
		dx = -step
	case "ArrowRight":
		dx = step
	case "ArrowUp":
		dy = -step
	case "ArrowDown":
		dy = step
	}
	before := t.snapshot()
	for id := range before {
		t.env.Store.Translate(id, dx, dy)
	}
	t.recordMoves(before)
}

func (t *Select) deleteSelected() {
	before := t.snapshot()
	if len(before) == 0 {
		return
	}
	ids := t.env.Selection.IDs()
	t.env.batch(func() {
		for _, id := range ids {
			prev, ok := before[id]
			if !ok {
				continue
			}
			if t.env.Store.Delete(id) {
				t.env.record(domain.ActionDelete, id, prev, nil)
			}
		}
	})
	t.env.Selection.Clear()
}
