package inventory

import (
	"fmt"
	"sort"
	"strconv"
)

// Tree is the item forest of one character. Records live in an arena keyed
// by id; parent links are ids resolved through the arena, so reparenting and
// cascade removal never chase owning pointers.
//
// A Tree is not safe for concurrent use. Callers serialize access per
// character.
type Tree struct {
	templates Templates
	stashID   string
	items     map[string]*Item
	children  map[string]map[string]struct{}
	virtual   map[string]int
	newID     func() string
}

// Option configures a Tree.
type Option func(*Tree)

// WithIDGenerator replaces the identity generator used for new records.
func WithIDGenerator(fn func() string) Option {
	return func(t *Tree) { t.newID = fn }
}

// VirtualContainer is a container without an item record, such as the
// holder of a hideout area's slots. Its slots are named "0" to Slots-1.
type VirtualContainer struct {
	ID    string
	Slots int
}

// WithVirtualContainers registers containers that have no item record.
func WithVirtualContainers(vcs ...VirtualContainer) Option {
	return func(t *Tree) {
		for _, vc := range vcs {
			t.virtual[vc.ID] = vc.Slots
		}
	}
}

// New builds a tree from persisted records and validates it: the stash must
// exist as a root spatial container, every parent must resolve, the parent
// chain must be acyclic, and no two placements may overlap.
func New(templates Templates, stashID string, items []Item, opts ...Option) (*Tree, error) {
	t := &Tree{
		templates: templates,
		stashID:   stashID,
		items:     make(map[string]*Item, len(items)),
		children:  make(map[string]map[string]struct{}),
		virtual:   make(map[string]int),
		newID:     NewItemID,
	}
	for _, o := range opts {
		o(t)
	}
	for _, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("%w: item without id", ErrCorrupt)
		}
		if _, dup := t.items[it.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrCorrupt, it.ID)
		}
		c := it.Clone()
		t.items[c.ID] = &c
	}
	for _, it := range t.items {
		t.attach(it)
	}
	if err := t.validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) validate() error {
	stash, ok := t.items[t.stashID]
	if !ok || !stash.IsRoot() {
		return fmt.Errorf("%w: stash %q missing or not a root", ErrCorrupt, t.stashID)
	}
	stashTpl, err := t.template(stash)
	if err != nil {
		return err
	}
	if len(stashTpl.Grids) == 0 {
		return fmt.Errorf("%w: stash template %s has no grid", ErrCorrupt, stash.TemplateID)
	}

	ids := t.sortedIDs()
	for _, id := range ids {
		it := t.items[id]
		if _, err := t.template(it); err != nil {
			return err
		}
		if it.IsRoot() {
			continue
		}
		if _, ok := t.items[it.ParentID]; !ok && !t.IsVirtual(it.ParentID) {
			return fmt.Errorf("%w: item %s has unknown parent %s", ErrCorrupt, id, it.ParentID)
		}
		if t.hasCycle(id) {
			return fmt.Errorf("%w: parent cycle through %s", ErrCorrupt, id)
		}
	}

	grids := make(map[ContainerRef]*Grid)
	named := make(map[ContainerRef]string)
	for _, id := range ids {
		it := t.items[id]
		if it.IsRoot() {
			continue
		}
		ref := ContainerRef{ParentID: it.ParentID, SlotID: it.SlotID}
		tgt, err := t.resolve(ref)
		if err != nil {
			return fmt.Errorf("%w: item %s: %v", ErrCorrupt, id, err)
		}
		if !tgt.spatial {
			if other, taken := named[ref]; taken {
				return fmt.Errorf("%w: items %s and %s share slot %s", ErrCorrupt, other, id, ref.SlotID)
			}
			named[ref] = id
			continue
		}
		if it.Location == nil {
			return fmt.Errorf("%w: item %s in grid %s has no location", ErrCorrupt, id, ref.SlotID)
		}
		g, ok := grids[ref]
		if !ok {
			g = NewGrid(tgt.size.Width, tgt.size.Height)
			grids[ref] = g
		}
		fp, _ := t.footprint(it)
		if !g.Fits(it.Location.X, it.Location.Y, fp) {
			return fmt.Errorf("%w: item %s overlaps or leaves grid %s", ErrCorrupt, id, ref.SlotID)
		}
		g.Occupy(it.Location.X, it.Location.Y, fp)
	}
	return nil
}

// hasCycle walks up from id and reports whether an ancestor repeats.
func (t *Tree) hasCycle(id string) bool {
	seen := map[string]bool{}
	for cur := id; cur != ""; {
		if seen[cur] {
			return true
		}
		seen[cur] = true
		it, ok := t.items[cur]
		if !ok {
			return false
		}
		cur = it.ParentID
	}
	return false
}

// StashID returns the id of the root stash container.
func (t *Tree) StashID() string { return t.stashID }

// StashRef addresses the stash's main grid.
func (t *Tree) StashRef() ContainerRef {
	ref := ContainerRef{ParentID: t.stashID}
	if tpl, err := t.template(t.items[t.stashID]); err == nil && len(tpl.Grids) > 0 {
		ref.SlotID = tpl.Grids[0].Name
	}
	return ref
}

// RegisterVirtual adds or resizes a container that has no item record.
func (t *Tree) RegisterVirtual(vc VirtualContainer) { t.virtual[vc.ID] = vc.Slots }

// IsVirtual reports whether id is a registered virtual container.
func (t *Tree) IsVirtual(id string) bool {
	_, ok := t.virtual[id]
	return ok
}

// held reports whether it sits directly in a virtual container. Held items
// only leave through UnslotItem.
func (t *Tree) held(it *Item) bool { return t.IsVirtual(it.ParentID) }

// Len returns the number of records.
func (t *Tree) Len() int { return len(t.items) }

// Get returns a copy of the record with the given id.
func (t *Tree) Get(id string) (Item, error) {
	it, ok := t.items[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return it.Clone(), nil
}

// Items returns copies of all records ordered by id.
func (t *Tree) Items() []Item {
	out := make([]Item, 0, len(t.items))
	for _, id := range t.sortedIDs() {
		out = append(out, t.items[id].Clone())
	}
	return out
}

// Children returns copies of the direct children of id ordered by id.
func (t *Tree) Children(id string) []Item {
	kids := t.children[id]
	ids := make([]string, 0, len(kids))
	for k := range kids {
		ids = append(ids, k)
	}
	sort.Strings(ids)
	out := make([]Item, 0, len(ids))
	for _, k := range ids {
		out = append(out, t.items[k].Clone())
	}
	return out
}

// Subtree returns id followed by all of its descendants in breadth-first
// order.
func (t *Tree) Subtree(id string) ([]string, error) {
	if _, ok := t.items[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t.subtree(id)
}

func (t *Tree) subtree(id string) ([]string, error) {
	out := []string{id}
	seen := map[string]bool{id: true}
	for i := 0; i < len(out); i++ {
		kids := make([]string, 0, len(t.children[out[i]]))
		for k := range t.children[out[i]] {
			kids = append(kids, k)
		}
		sort.Strings(kids)
		for _, k := range kids {
			if seen[k] {
				return nil, fmt.Errorf("%w: cycle at %s", ErrCorrupt, k)
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	return out, nil
}

// isWithin reports whether id equals ancestor or sits below it.
func (t *Tree) isWithin(id, ancestor string) bool {
	seen := map[string]bool{}
	for cur := id; cur != "" && !seen[cur]; {
		if cur == ancestor {
			return true
		}
		seen[cur] = true
		it, ok := t.items[cur]
		if !ok {
			return false
		}
		cur = it.ParentID
	}
	return false
}

func (t *Tree) sortedIDs() []string {
	ids := make([]string, 0, len(t.items))
	for id := range t.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *Tree) attach(it *Item) {
	if it.IsRoot() {
		return
	}
	kids, ok := t.children[it.ParentID]
	if !ok {
		kids = make(map[string]struct{})
		t.children[it.ParentID] = kids
	}
	kids[it.ID] = struct{}{}
}

func (t *Tree) detach(it *Item) {
	if kids, ok := t.children[it.ParentID]; ok {
		delete(kids, it.ID)
		if len(kids) == 0 {
			delete(t.children, it.ParentID)
		}
	}
}

func (t *Tree) template(it *Item) (Template, error) {
	if it == nil {
		return Template{}, fmt.Errorf("%w: nil item", ErrNotFound)
	}
	tpl, ok := t.templates.Template(it.TemplateID)
	if !ok {
		return Template{}, fmt.Errorf("%w: %s (item %s)", ErrUnknownTemplate, it.TemplateID, it.ID)
	}
	return tpl, nil
}

func (t *Tree) footprint(it *Item) (Footprint, error) {
	tpl, err := t.template(it)
	if err != nil {
		return Footprint{}, err
	}
	if it.Location == nil {
		return tpl.Size, nil
	}
	return tpl.Size.Oriented(it.Location.R), nil
}

type target struct {
	spatial bool
	virtual bool
	size    Footprint
}

func (t *Tree) resolve(ref ContainerRef) (target, error) {
	if ref.SlotID == "" {
		return target{}, fmt.Errorf("%w: empty slot on %s", ErrInvalidContainer, ref.ParentID)
	}
	if n, ok := t.virtual[ref.ParentID]; ok {
		i, err := strconv.Atoi(ref.SlotID)
		if err != nil || i < 0 || i >= n || strconv.Itoa(i) != ref.SlotID {
			return target{}, fmt.Errorf("%w: %s has no slot %s", ErrInvalidContainer, ref.ParentID, ref.SlotID)
		}
		return target{virtual: true}, nil
	}
	parent, ok := t.items[ref.ParentID]
	if !ok {
		return target{}, fmt.Errorf("%w: unknown container %s", ErrInvalidContainer, ref.ParentID)
	}
	tpl, err := t.template(parent)
	if err != nil {
		return target{}, err
	}
	if g, ok := tpl.grid(ref.SlotID); ok {
		return target{spatial: true, size: g.Size}, nil
	}
	if tpl.hasSlot(ref.SlotID) {
		return target{}, nil
	}
	return target{}, fmt.Errorf("%w: %s has no slot %s", ErrInvalidContainer, ref.ParentID, ref.SlotID)
}

// gridFor builds the occupancy of a spatial container from its children,
// skipping the item with id exclude.
func (t *Tree) gridFor(ref ContainerRef, size Footprint, exclude string) *Grid {
	g := NewGrid(size.Width, size.Height)
	for id := range t.children[ref.ParentID] {
		if id == exclude {
			continue
		}
		child := t.items[id]
		if child.SlotID != ref.SlotID || child.Location == nil {
			continue
		}
		fp, err := t.footprint(child)
		if err != nil {
			continue
		}
		g.Occupy(child.Location.X, child.Location.Y, fp)
	}
	return g
}

// occupant returns the id of the item in a named slot, ignoring exclude.
func (t *Tree) occupant(ref ContainerRef, exclude string) string {
	for id := range t.children[ref.ParentID] {
		if id != exclude && t.items[id].SlotID == ref.SlotID {
			return id
		}
	}
	return ""
}

// place validates a placement of it into ref and returns the location to
// store (nil for named slots). A nil loc on a spatial target is resolved
// with FindFreeSlot.
func (t *Tree) place(it *Item, ref ContainerRef, loc *Location, exclude string) (*Location, error) {
	tgt, err := t.resolve(ref)
	if err != nil {
		return nil, err
	}
	if !tgt.spatial {
		if other := t.occupant(ref, exclude); other != "" {
			return nil, fmt.Errorf("%w: %s holds %s", ErrCollision, ref.SlotID, other)
		}
		return nil, nil
	}
	tpl, err := t.template(it)
	if err != nil {
		return nil, err
	}
	g := t.gridFor(ref, tgt.size, exclude)
	if loc == nil {
		free, err := FindFreeSlot(g, tpl.Size)
		if err != nil {
			return nil, err
		}
		return &free, nil
	}
	fp := tpl.Size.Oriented(loc.R)
	if !g.inBounds(loc.X, loc.Y, fp) {
		return nil, fmt.Errorf("%w: (%d,%d) outside %s", ErrInvalidTarget, loc.X, loc.Y, ref.SlotID)
	}
	if !g.Fits(loc.X, loc.Y, fp) {
		return nil, fmt.Errorf("%w: (%d,%d) in %s", ErrCollision, loc.X, loc.Y, ref.SlotID)
	}
	out := *loc
	return &out, nil
}
