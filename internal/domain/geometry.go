package domain

import "math"

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bounds is an axis-aligned box in world space.
type Bounds struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type Viewport struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Zoom   float64 `json:"zoom"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Intersects reports whether a and b overlap. Touching edges count as overlap.
func (a Bounds) Intersects(b Bounds) bool {
	return !(a.X+a.Width < b.X ||
		a.X > b.X+b.Width ||
		a.Y+a.Height < b.Y ||
		a.Y > b.Y+b.Height)
}

func (a Bounds) ContainsPoint(p Point) bool {
	return p.X >= a.X && p.X <= a.X+a.Width && p.Y >= a.Y && p.Y <= a.Y+a.Height
}

// Expand grows the box by d on every side.
func (a Bounds) Expand(d float64) Bounds {
	return Bounds{X: a.X - d, Y: a.Y - d, Width: a.Width + 2*d, Height: a.Height + 2*d}
}

func (a Bounds) Center() Point {
	return Point{X: a.X + a.Width/2, Y: a.Y + a.Height/2}
}

// Union returns the smallest box containing both a and b.
func (a Bounds) Union(b Bounds) Bounds {
	minX := math.Min(a.X, b.X)
	minY := math.Min(a.Y, b.Y)
	maxX := math.Max(a.X+a.Width, b.X+b.Width)
	maxY := math.Max(a.Y+a.Height, b.Y+b.Height)
	return Bounds{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// BoundsFromPoints builds a normalized box from two corners.
func BoundsFromPoints(a, b Point) Bounds {
	return Bounds{
		X:      math.Min(a.X, b.X),
		Y:      math.Min(a.Y, b.Y),
		Width:  math.Abs(b.X - a.X),
		Height: math.Abs(b.Y - a.Y),
	}
}

// WorldRect is the world-space rectangle covered by the viewport.
func (v Viewport) WorldRect() Bounds {
	zoom := v.Zoom
	if zoom == 0 {
		zoom = 1
	}
	return Bounds{X: v.X, Y: v.Y, Width: v.Width / zoom, Height: v.Height / zoom}
}
