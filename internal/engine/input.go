package engine

import (
	"strings"

	"whiteboard/internal/domain"
)

// PointerDown routes a screen-space press to the viewport when it starts a
// pan gesture, otherwise to the active tool in world coordinates.
func (e *Engine) PointerDown(ev domain.PointerEvent) error {
	if !e.alive() {
		return domain.ErrDestroyed
	}
	e.input.Lock()
	defer e.input.Unlock()
	if e.Viewport.PointerDown(ev) {
		return nil
	}
	e.Tools.PointerDown(ev, e.Viewport.ScreenToCanvas(ev.Screen()))
	return nil
}

func (e *Engine) PointerMove(ev domain.PointerEvent) error {
	if !e.alive() {
		return domain.ErrDestroyed
	}
	world := e.Viewport.ScreenToCanvas(ev.Screen())
	e.emit(Event{Type: LocalCursor, Point: &world})

	e.input.Lock()
	defer e.input.Unlock()
	if e.Viewport.PointerMove(ev) {
		return nil
	}
	e.Tools.PointerMove(ev, world)
	return nil
}

func (e *Engine) PointerUp(ev domain.PointerEvent) error {
	if !e.alive() {
		return domain.ErrDestroyed
	}
	e.input.Lock()
	defer e.input.Unlock()
	if e.Viewport.PointerUp(ev) {
		return nil
	}
	e.Tools.PointerUp(ev, e.Viewport.ScreenToCanvas(ev.Screen()))
	return nil
}

// KeyDown offers the key to the active tool first. Keys the tool does not
// consume fall through to the board shortcuts: undo, redo and duplicate.
// It reports whether the key was handled.
func (e *Engine) KeyDown(ev domain.KeyEvent) bool {
	if !e.alive() {
		return false
	}
	e.input.Lock()
	handled := e.Tools.KeyDown(ev)
	e.input.Unlock()
	if handled {
		return true
	}
	if !ev.Ctrl && !ev.Meta {
		return false
	}
	switch strings.ToLower(ev.Key) {
	case "z":
		if ev.Shift {
			e.Redo()
		} else {
			e.Undo()
		}
		return true
	case "y":
		e.Redo()
		return true
	case "d":
		e.DuplicateSelected()
		return true
	case "a":
		e.SelectAll()
		return true
	}
	return false
}

func (e *Engine) KeyUp(ev domain.KeyEvent) bool {
	if !e.alive() {
		return false
	}
	e.input.Lock()
	defer e.input.Unlock()
	return e.Tools.KeyUp(ev)
}

// Wheel zooms around the pointer.
func (e *Engine) Wheel(deltaY float64, at domain.Point) {
	if !e.alive() {
		return
	}
	e.Viewport.Wheel(deltaY, at)
}

func (e *Engine) TouchStart(touches []domain.Point) {
	if e.alive() {
		e.Viewport.TouchStart(touches)
	}
}

func (e *Engine) TouchMove(touches []domain.Point) {
	if e.alive() {
		e.Viewport.TouchMove(touches)
	}
}

func (e *Engine) TouchEnd(remaining []domain.Point) {
	if e.alive() {
		e.Viewport.TouchEnd(remaining)
	}
}
