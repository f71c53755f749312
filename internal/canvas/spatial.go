package canvas

import (
	"math"

	"whiteboard/internal/domain"
)

// DefaultCellSize is the edge length of one grid cell in world units.
const DefaultCellSize = 500.0

type cellKey struct{ col, row int }

// SpatialIndex is a uniform-grid index from world boxes to ids. Each id is
// registered in every cell its box touches, so a query costs the number of
// cells covered plus the candidates found there.
type SpatialIndex struct {
	cellSize float64
	grid     map[cellKey]map[string]struct{}
	boxes    map[string]domain.Bounds
}

func NewSpatialIndex(cellSize float64) *SpatialIndex {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &SpatialIndex{
		cellSize: cellSize,
		grid:     make(map[cellKey]map[string]struct{}),
		boxes:    make(map[string]domain.Bounds),
	}
}

func (s *SpatialIndex) cellRange(b domain.Bounds) (minCol, maxCol, minRow, maxRow int) {
	minCol = int(math.Floor(b.X / s.cellSize))
	maxCol = int(math.Floor((b.X + b.Width) / s.cellSize))
	minRow = int(math.Floor(b.Y / s.cellSize))
	maxRow = int(math.Floor((b.Y + b.Height) / s.cellSize))
	return
}

// Insert registers id with box b, replacing any previous entry.
func (s *SpatialIndex) Insert(id string, b domain.Bounds) {
	if _, ok := s.boxes[id]; ok {
		s.Remove(id)
	}
	s.boxes[id] = b
	minCol, maxCol, minRow, maxRow := s.cellRange(b)
	for col := minCol; col <= maxCol; col++ {
		for row := minRow; row <= maxRow; row++ {
			k := cellKey{col, row}
			cell := s.grid[k]
			if cell == nil {
				cell = make(map[string]struct{})
				s.grid[k] = cell
			}
			cell[id] = struct{}{}
		}
	}
}

func (s *SpatialIndex) Remove(id string) {
	b, ok := s.boxes[id]
	if !ok {
		return
	}
	minCol, maxCol, minRow, maxRow := s.cellRange(b)
	for col := minCol; col <= maxCol; col++ {
		for row := minRow; row <= maxRow; row++ {
			k := cellKey{col, row}
			if cell := s.grid[k]; cell != nil {
				delete(cell, id)
				if len(cell) == 0 {
					delete(s.grid, k)
				}
			}
		}
	}
	delete(s.boxes, id)
}

// Query returns the ids whose box intersects b. Candidates from the grid are
// refined with an exact bounds test.
func (s *SpatialIndex) Query(b domain.Bounds) map[string]struct{} {
	out := make(map[string]struct{})
	minCol, maxCol, minRow, maxRow := s.cellRange(b)

	// Far zoomed out the range can cover more cells than there are boxes.
	if cells := float64(maxCol-minCol+1) * float64(maxRow-minRow+1); cells > float64(len(s.boxes)) {
		for id, box := range s.boxes {
			if box.Intersects(b) {
				out[id] = struct{}{}
			}
		}
		return out
	}

	for col := minCol; col <= maxCol; col++ {
		for row := minRow; row <= maxRow; row++ {
			for id := range s.grid[cellKey{col, row}] {
				if _, seen := out[id]; seen {
					continue
				}
				if s.boxes[id].Intersects(b) {
					out[id] = struct{}{}
				}
			}
		}
	}
	return out
}

// BoundsOf returns the indexed box for id.
func (s *SpatialIndex) BoundsOf(id string) (domain.Bounds, bool) {
	b, ok := s.boxes[id]
	return b, ok
}

func (s *SpatialIndex) Len() int { return len(s.boxes) }

// Cells returns the number of non-empty grid cells.
func (s *SpatialIndex) Cells() int { return len(s.grid) }

func (s *SpatialIndex) Clear() {
	s.grid = make(map[cellKey]map[string]struct{})
	s.boxes = make(map[string]domain.Bounds)
}
