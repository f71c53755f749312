package tools

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"whiteboard/internal/domain"
)

const (
	// simplifyMinPoints is the point count above which finished strokes are
	// reduced.
	simplifyMinPoints = 10
	simplifyEpsilon   = 1.0
)

// reducePoints applies Ramer-Douglas-Peucker reduction with tolerance eps.
// The first and last points are always kept.
func reducePoints(pts []domain.Point, eps float64) []domain.Point {
	if len(pts) <= 2 {
		return pts
	}
	start, end := pts[0], pts[len(pts)-1]
	maxDist, maxIdx := 0.0, 0
	for i := 1; i < len(pts)-1; i++ {
		if d := segmentDistance(pts[i], start, end); d > maxDist {
			maxDist, maxIdx = d, i
		}
	}
	if maxDist <= eps {
		return []domain.Point{start, end}
	}
	left := reducePoints(pts[:maxIdx+1], eps)
	right := reducePoints(pts[maxIdx:], eps)
	out := make([]domain.Point, 0, len(left)+len(right)-1)
	out = append(out, left[:len(left)-1]...)
	return append(out, right...)
}

// segmentDistance is the distance from p to the segment a-b.
func segmentDistance(p, a, b domain.Point) float64 {
	pv, av, bv := r2.Vec{X: p.X, Y: p.Y}, r2.Vec{X: a.X, Y: a.Y}, r2.Vec{X: b.X, Y: b.Y}
	ab := r2.Sub(bv, av)
	lenSq := r2.Norm2(ab)
	if lenSq == 0 {
		return r2.Norm(r2.Sub(pv, av))
	}
	t := math.Max(0, math.Min(1, r2.Dot(r2.Sub(pv, av), ab)/lenSq))
	return r2.Norm(r2.Sub(pv, r2.Add(av, r2.Scale(t, ab))))
}

// pointsBounds is the box around pts grown by pad on every side.
func pointsBounds(pts []domain.Point, pad float64) domain.Bounds {
	if len(pts) == 0 {
		return domain.Bounds{}
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX = math.Min(minX, p.X)
		minY = math.Min(minY, p.Y)
		maxX = math.Max(maxX, p.X)
		maxY = math.Max(maxY, p.Y)
	}
	return domain.Bounds{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}.Expand(pad)
}

// boxPatch writes b as the component position and size.
func boxPatch(b domain.Bounds, data domain.ComponentData) domain.ComponentPatch {
	return domain.ComponentPatch{
		X: &b.X, Y: &b.Y, Width: &b.Width, Height: &b.Height, Data: data,
	}
}
