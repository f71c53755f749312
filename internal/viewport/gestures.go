package viewport

import (
	"gonum.org/v1/gonum/spatial/r2"

	"whiteboard/internal/domain"
)

// IsPanGesture reports whether a pointer-down starts a viewport drag:
// middle button, or left button with Alt held.
func IsPanGesture(ev domain.PointerEvent) bool {
	return ev.Button == domain.ButtonMiddle || (ev.Button == domain.ButtonLeft && ev.Alt)
}

// PointerDown starts a drag-pan when the event is a pan gesture and reports
// whether the controller consumed it.
func (c *Controller) PointerDown(ev domain.PointerEvent) bool {
	if !IsPanGesture(ev) {
		return false
	}
	c.BeginDrag(ev)
	return true
}

// BeginDrag starts a drag-pan regardless of button, as the pan tool does.
func (c *Controller) BeginDrag(ev domain.PointerEvent) {
	c.mu.Lock()
	c.panning = true
	c.lastPointer = r2.Vec{X: ev.X, Y: ev.Y}
	c.mu.Unlock()
	c.emit(PanStart)
}

// PointerMove pans by the pointer delta while a drag is active.
func (c *Controller) PointerMove(ev domain.PointerEvent) bool {
	c.mu.Lock()
	if !c.panning {
		c.mu.Unlock()
		return false
	}
	cur := r2.Vec{X: ev.X, Y: ev.Y}
	d := r2.Sub(cur, c.lastPointer)
	c.lastPointer = cur
	c.mu.Unlock()

	c.Pan(-d.X, -d.Y)
	return true
}

func (c *Controller) PointerUp(domain.PointerEvent) bool {
	c.mu.Lock()
	was := c.panning
	c.panning = false
	c.mu.Unlock()
	if was {
		c.emit(PanEnd)
	}
	return was
}

// IsPanning reports whether a drag-pan is in progress.
func (c *Controller) IsPanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.panning
}

// Wheel zooms anchored at the pointer position.
func (c *Controller) Wheel(deltaY float64, at domain.Point) {
	if !c.cfg.WheelZoom {
		return
	}
	c.Zoom(c.Viewport().Zoom-deltaY*wheelFactor, &at)
}

// TouchStart begins a one-finger pan or a two-finger pinch.
func (c *Controller) TouchStart(touches []domain.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch len(touches) {
	case 1:
		c.touchPan = true
		c.pinchStartDist = 0
		c.lastTouchCenter = r2.Vec{X: touches[0].X, Y: touches[0].Y}
	case 2:
		c.touchPan = false
		if !c.cfg.PinchZoom {
			return
		}
		a, b := r2.Vec{X: touches[0].X, Y: touches[0].Y}, r2.Vec{X: touches[1].X, Y: touches[1].Y}
		c.pinchStartDist = r2.Norm(r2.Sub(a, b))
		c.pinchStartZoom = c.vp.Zoom
	}
}

// TouchMove pans with one finger, or zooms by the ratio of the current
// finger distance to the distance at gesture start, anchored at the midpoint.
func (c *Controller) TouchMove(touches []domain.Point) {
	c.mu.Lock()
	switch {
	case len(touches) == 2 && c.pinchStartDist > 0:
		a, b := r2.Vec{X: touches[0].X, Y: touches[0].Y}, r2.Vec{X: touches[1].X, Y: touches[1].Y}
		dist := r2.Norm(r2.Sub(a, b))
		level := c.pinchStartZoom * (dist / c.pinchStartDist)
		mid := r2.Scale(0.5, r2.Add(a, b))
		c.mu.Unlock()
		c.Zoom(level, &domain.Point{X: mid.X, Y: mid.Y})
	case len(touches) == 1 && c.touchPan:
		cur := r2.Vec{X: touches[0].X, Y: touches[0].Y}
		d := r2.Sub(cur, c.lastTouchCenter)
		c.lastTouchCenter = cur
		c.mu.Unlock()
		c.Pan(-d.X, -d.Y)
	default:
		c.mu.Unlock()
	}
}

// TouchEnd resets gesture state when fewer than two fingers remain.
func (c *Controller) TouchEnd(remaining []domain.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(remaining) < 2 {
		c.pinchStartDist = 0
		c.pinchStartZoom = 0
	}
	if len(remaining) == 1 {
		c.touchPan = true
		c.lastTouchCenter = r2.Vec{X: remaining[0].X, Y: remaining[0].Y}
	} else if len(remaining) == 0 {
		c.touchPan = false
	}
}
