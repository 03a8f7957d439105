package inventory

// Footprint is the width x height an item occupies in a grid.
type Footprint struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rotated returns the footprint turned by 90 degrees.
func (f Footprint) Rotated() Footprint {
	return Footprint{Width: f.Height, Height: f.Width}
}

// Oriented returns the footprint for the given rotation.
func (f Footprint) Oriented(r Rotation) Footprint {
	if r == Vertical {
		return f.Rotated()
	}
	return f
}

// Grid is the occupancy map of one spatial container.
type Grid struct {
	Width  int
	Height int
	cells  []bool
}

// NewGrid returns an empty grid.
func NewGrid(width, height int) *Grid {
	return &Grid{Width: width, Height: height, cells: make([]bool, width*height)}
}

func (g *Grid) inBounds(x, y int, f Footprint) bool {
	return x >= 0 && y >= 0 && f.Width > 0 && f.Height > 0 &&
		x+f.Width <= g.Width && y+f.Height <= g.Height
}

// Fits reports whether f placed at (x, y) stays inside the grid and
// covers only free cells.
func (g *Grid) Fits(x, y int, f Footprint) bool {
	if !g.inBounds(x, y, f) {
		return false
	}
	for dy := 0; dy < f.Height; dy++ {
		row := (y + dy) * g.Width
		for dx := 0; dx < f.Width; dx++ {
			if g.cells[row+x+dx] {
				return false
			}
		}
	}
	return true
}

// Occupy marks the cells covered by f at (x, y). Cells outside the grid
// are ignored.
func (g *Grid) Occupy(x, y int, f Footprint) {
	for dy := 0; dy < f.Height; dy++ {
		cy := y + dy
		if cy < 0 || cy >= g.Height {
			continue
		}
		for dx := 0; dx < f.Width; dx++ {
			cx := x + dx
			if cx < 0 || cx >= g.Width {
				continue
			}
			g.cells[cy*g.Width+cx] = true
		}
	}
}

// Clone copies the grid.
func (g *Grid) Clone() *Grid {
	out := &Grid{Width: g.Width, Height: g.Height, cells: make([]bool, len(g.cells))}
	copy(out.cells, g.cells)
	return out
}

// FindFreeSlot returns the first position where f fits. Origins are scanned
// row-major from (0,0); at each origin the unrotated orientation is tried
// before the rotated one. Clients remember placements, so the order must not
// change.
func FindFreeSlot(g *Grid, f Footprint) (Location, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return Location{}, ErrNoSpace
	}
	rotatable := f.Width != f.Height
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			if g.Fits(x, y, f) {
				return Location{X: x, Y: y, R: Horizontal}, nil
			}
			if rotatable && g.Fits(x, y, f.Rotated()) {
				return Location{X: x, Y: y, R: Vertical}, nil
			}
		}
	}
	return Location{}, ErrNoSpace
}
