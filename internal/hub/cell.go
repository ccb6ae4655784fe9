package hub

import (
	"fmt"

	"crossway/internal/domain"
)

// CellID returns the viewport cell containing p for a grid of the given size.
// Cells are floor-divided so negative coordinates get their own cells.
func CellID(p domain.Point, size int) string {
	return cellID(size, floorDiv(p.X, size), floorDiv(p.Y, size))
}

// ParseCellID extracts size, x, y from a cell ID string. Only the canonical
// form produced by CellID is accepted.
func ParseCellID(id string) (size, x, y int, ok bool) {
	if _, err := fmt.Sscanf(id, "%d/%d/%d", &size, &x, &y); err != nil || size <= 0 || id != cellID(size, x, y) {
		return 0, 0, 0, false
	}
	return size, x, y, true
}

// CellBounds returns the rectangle covered by a cell
func CellBounds(size, x, y int) domain.Rect {
	return domain.Rect{
		MinX: x * size,
		MinY: y * size,
		MaxX: (x+1)*size - 1,
		MaxY: (y+1)*size - 1,
	}
}

// Grid is the set of cells of one size that overlap the field bounds. The
// field is fixed, so the set is computed once.
type Grid struct {
	size  int
	cells []string
}

func NewGrid(size int) *Grid {
	if size <= 0 {
		size = 100
	}
	g := &Grid{size: size}
	b := domain.Bounds
	for x := floorDiv(b.MinX, size); x <= floorDiv(b.MaxX, size); x++ {
		for y := floorDiv(b.MinY, size); y <= floorDiv(b.MaxY, size); y++ {
			g.cells = append(g.cells, cellID(size, x, y))
		}
	}
	return g
}

func (g *Grid) Size() int { return g.size }

// Len is the number of cells covering the field.
func (g *Grid) Len() int { return len(g.cells) }

func (g *Grid) CellID(p domain.Point) string {
	return CellID(p, g.size)
}

// All returns every cell of the field.
func (g *Grid) All() []string {
	return append([]string(nil), g.cells...)
}

// Valid reports whether id is well formed, uses this grid's size and
// overlaps the field.
func (g *Grid) Valid(id string) bool {
	size, x, y, ok := ParseCellID(id)
	if !ok || size != g.size {
		return false
	}
	_, overlaps := CellBounds(size, x, y).Intersect(domain.Bounds)
	return overlaps
}

// Filter keeps the valid cells of ids, without duplicates. The result never
// exceeds Len.
func (g *Grid) Filter(ids []string) []string {
	seen := make(map[string]struct{}, min(len(ids), len(g.cells)))
	var out []string
	for _, id := range ids {
		if len(out) == len(g.cells) {
			break
		}
		if _, dup := seen[id]; dup || !g.Valid(id) {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// CellsInRect returns the field cells that intersect r. Parts of r outside
// the field are ignored.
func (g *Grid) CellsInRect(r domain.Rect) []string {
	clipped, ok := r.Intersect(domain.Bounds)
	if !ok {
		return nil
	}
	var cells []string
	for x := floorDiv(clipped.MinX, g.size); x <= floorDiv(clipped.MaxX, g.size); x++ {
		for y := floorDiv(clipped.MinY, g.size); y <= floorDiv(clipped.MaxY, g.size); y++ {
			cells = append(cells, cellID(g.size, x, y))
		}
	}
	return cells
}

func cellID(size, x, y int) string {
	return fmt.Sprintf("%d/%d/%d", size, x, y)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
