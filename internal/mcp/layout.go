package mcpserver

import (
	"math"

	"whiteboard/internal/domain"
)

const (
	GridSize = 20.0 // matches the default board grid
	Padding  = 40.0 // 2 grid cells between components
	MaxRowW  = 1600.0
)

// LayoutEngine places agent-created components so they don't overlap
// what is already on the board.
type LayoutEngine struct {
	gridSize float64
	padding  float64
	maxRowW  float64
}

func NewLayoutEngine() *LayoutEngine {
	return &LayoutEngine{
		gridSize: GridSize,
		padding:  Padding,
		maxRowW:  MaxRowW,
	}
}

// snap rounds v to the nearest grid point.
func (le *LayoutEngine) snap(v float64) float64 {
	return math.Round(v/le.gridSize) * le.gridSize
}

// NextPosition finds the first free grid position for a box of size
// (newW, newH), scanning rows top to bottom and columns left to right from
// the top-left of the existing content.
func (le *LayoutEngine) NextPosition(existing []domain.Bounds, newW, newH float64) (float64, float64) {
	if len(existing) == 0 {
		return 0, 0
	}

	padded := make([]domain.Bounds, len(existing))
	origin := existing[0]
	for i, b := range existing {
		padded[i] = b.Expand(le.padding)
		origin = origin.Union(b)
	}
	startX, startY := le.snap(origin.X), le.snap(origin.Y)
	limitY := origin.Y + origin.Height + newH + le.padding*2

	candidate := domain.Bounds{Width: newW, Height: newH}
	for y := startY; y < limitY; y += le.gridSize {
		for x := startX; x < startX+le.maxRowW; x += le.gridSize {
			candidate.X, candidate.Y = x, y
			overlaps := false
			for _, occ := range padded {
				if candidate.Intersects(occ) {
					overlaps = true
					break
				}
			}
			if !overlaps {
				return candidate.X, candidate.Y
			}
		}
	}

	// Fallback: below all existing content.
	return startX, le.snap(origin.Y + origin.Height + le.padding)
}

// ArrangeGroup lays boxes out in rows starting from (startX, startY) and
// returns their new positions in the same order.
func (le *LayoutEngine) ArrangeGroup(boxes []domain.Bounds, startX, startY float64) []domain.Bounds {
	out := make([]domain.Bounds, len(boxes))
	x := le.snap(startX)
	y := le.snap(startY)
	rowHeight := 0.0

	for i, b := range boxes {
		if x > le.snap(startX) && x+b.Width > le.snap(startX)+le.maxRowW {
			x = le.snap(startX)
			y += le.snap(rowHeight + le.padding)
			rowHeight = 0
		}
		out[i] = domain.Bounds{X: x, Y: y, Width: b.Width, Height: b.Height}
		if b.Height > rowHeight {
			rowHeight = b.Height
		}
		x += le.snap(b.Width + le.padding)
	}
	return out
}
