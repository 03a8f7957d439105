package inventory

// GridSpec is a named spatial area inside a container template.
type GridSpec struct {
	Name string
	Size Footprint
}

// Template is the part of an item catalog entry the tree needs.
type Template struct {
	ID        string
	Size      Footprint
	Stackable bool
	Grids     []GridSpec
	Slots     []string
}

func (t Template) grid(name string) (GridSpec, bool) {
	for _, g := range t.Grids {
		if g.Name == name {
			return g, true
		}
	}
	return GridSpec{}, false
}

func (t Template) hasSlot(name string) bool {
	for _, s := range t.Slots {
		if s == name {
			return true
		}
	}
	return false
}

// Templates resolves template ids to footprint and container data.
type Templates interface {
	Template(id string) (Template, bool)
}
