package inventory

import (
	"fmt"
)

// AddItem places a new record into the container addressed by ref. Spatial
// containers pick the first free position; named slots must be empty.
func (t *Tree) AddItem(ref ContainerRef, it Item, cs *ChangeSet) (Item, error) {
	added, err := t.AddItems(ref, []Item{it}, cs)
	if err != nil {
		return Item{}, err
	}
	return added[0], nil
}

// AddItems places several new records into one container. Either every
// record is placed or none is.
func (t *Tree) AddItems(ref ContainerRef, items []Item, cs *ChangeSet) ([]Item, error) {
	tgt, err := t.resolve(ref)
	if err != nil {
		return nil, err
	}
	if tgt.virtual {
		return nil, fmt.Errorf("%w: %s only takes slotted items", ErrInvalidTarget, ref.ParentID)
	}
	var g *Grid
	if tgt.spatial {
		g = t.gridFor(ref, tgt.size, "")
	} else {
		if other := t.occupant(ref, ""); other != "" {
			return nil, fmt.Errorf("%w: %s holds %s", ErrSlotOccupied, ref.SlotID, other)
		}
		if len(items) > 1 {
			return nil, fmt.Errorf("%w: %d items for one slot", ErrSlotOccupied, len(items))
		}
	}

	prepared := make([]Item, 0, len(items))
	fresh := make(map[string]bool, len(items))
	for _, in := range items {
		it := in.Clone()
		if it.ID == "" {
			it.ID = t.newID()
		}
		if _, exists := t.items[it.ID]; exists || fresh[it.ID] {
			return nil, fmt.Errorf("%w: id %s already in use", ErrInvalidTarget, it.ID)
		}
		fresh[it.ID] = true
		tpl, ok := t.templates.Template(it.TemplateID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, it.TemplateID)
		}
		if tpl.Stackable {
			if it.StackCount < 1 {
				it.StackCount = 1
			}
		} else {
			if it.StackCount > 1 {
				return nil, fmt.Errorf("%w: %s is not stackable", ErrCountOutOfRange, it.TemplateID)
			}
			it.StackCount = 0
		}
		it.ParentID = ref.ParentID
		it.SlotID = ref.SlotID
		it.Location = nil
		if g != nil {
			loc, err := FindFreeSlot(g, tpl.Size)
			if err != nil {
				return nil, fmt.Errorf("%w: %s in %s", err, it.TemplateID, ref.SlotID)
			}
			g.Occupy(loc.X, loc.Y, tpl.Size.Oriented(loc.R))
			it.Location = &loc
		}
		prepared = append(prepared, it)
	}

	out := make([]Item, 0, len(prepared))
	for i := range prepared {
		rec := prepared[i]
		t.items[rec.ID] = &rec
		t.attach(&rec)
		cs.Added(rec)
		out = append(out, rec.Clone())
	}
	return out, nil
}

// RemoveRequest asks for count units of an item. A zero count removes the
// whole record.
type RemoveRequest struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// RemoveItem takes count units of a stack, or the whole record when count is
// zero. Removing a record removes its descendants as well. It returns the
// quantity removed.
func (t *Tree) RemoveItem(id string, count int, cs *ChangeSet) (int, error) {
	removed, err := t.RemoveItems([]RemoveRequest{{ID: id, Count: count}}, cs)
	if err != nil {
		return 0, err
	}
	return removed, nil
}

type removal struct {
	id    string
	count int
	whole bool
}

// RemoveItems validates every request before removing anything. Requests
// for the same id are summed. It returns the total quantity removed.
func (t *Tree) RemoveItems(reqs []RemoveRequest, cs *ChangeSet) (int, error) {
	plan, err := t.planRemoval(reqs)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, r := range plan {
		total += r.count
		if r.whole {
			t.removeSubtree(r.id, cs)
			continue
		}
		it := t.items[r.id]
		it.StackCount = it.Count() - r.count
		cs.Modified(*it)
	}
	return total, nil
}

// CanRemove reports whether RemoveItems would succeed for reqs.
func (t *Tree) CanRemove(reqs []RemoveRequest) error {
	_, err := t.planRemoval(reqs)
	return err
}

func (t *Tree) planRemoval(reqs []RemoveRequest) ([]removal, error) {
	var plan []removal
	index := make(map[string]int)
	for _, r := range reqs {
		it, ok := t.items[r.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, r.ID)
		}
		if it.IsRoot() {
			return nil, fmt.Errorf("%w: %s is a root container", ErrInvalidTarget, r.ID)
		}
		if t.held(it) {
			return nil, fmt.Errorf("%w: %s", ErrSlotted, r.ID)
		}
		if r.Count < 0 {
			return nil, fmt.Errorf("%w: %d", ErrCountOutOfRange, r.Count)
		}
		n := r.Count
		if n == 0 {
			n = it.Count()
		}
		i, seen := index[r.ID]
		if !seen {
			i = len(plan)
			index[r.ID] = i
			plan = append(plan, removal{id: r.ID})
		}
		plan[i].count += n
	}

	for i := range plan {
		it := t.items[plan[i].id]
		tpl, err := t.template(it)
		if err != nil {
			return nil, err
		}
		have := it.Count()
		if plan[i].count > have || (!tpl.Stackable && plan[i].count != 1) {
			return nil, fmt.Errorf("%w: %s has %d, asked %d", ErrInsufficientCount, it.ID, have, plan[i].count)
		}
		plan[i].whole = plan[i].count == have
	}

	// A request inside a subtree that another request deletes would fail
	// half way through.
	for _, a := range plan {
		if !a.whole {
			continue
		}
		for _, b := range plan {
			if a.id != b.id && t.isWithin(b.id, a.id) {
				return nil, fmt.Errorf("%w: %s is inside removed %s", ErrInvalidTarget, b.id, a.id)
			}
		}
	}
	return plan, nil
}

func (t *Tree) removeSubtree(id string, cs *ChangeSet) {
	ids, err := t.subtree(id)
	if err != nil {
		// Corrupt links: drop only what is reachable without looping.
		ids = []string{id}
	}
	for _, rid := range ids {
		it, ok := t.items[rid]
		if !ok {
			continue
		}
		t.detach(it)
		delete(t.items, rid)
		delete(t.children, rid)
		cs.Removed(rid)
	}
}

// MoveItem reparents an item to ref. For spatial targets loc gives the new
// position; a nil loc picks the first free one. Nothing changes on error.
// Items held in virtual containers, and virtual targets, are refused.
func (t *Tree) MoveItem(id string, ref ContainerRef, loc *Location, cs *ChangeSet) error {
	it, ok := t.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.held(it) {
		return fmt.Errorf("%w: %s", ErrSlotted, id)
	}
	if t.IsVirtual(ref.ParentID) {
		return fmt.Errorf("%w: %s only takes slotted items", ErrInvalidTarget, ref.ParentID)
	}
	return t.move(it, ref, loc, cs)
}

// SlotItem moves an item that is not yet held into a slot of a virtual
// container.
func (t *Tree) SlotItem(id string, ref ContainerRef, cs *ChangeSet) error {
	it, ok := t.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !t.IsVirtual(ref.ParentID) {
		return fmt.Errorf("%w: %s is not a virtual container", ErrInvalidContainer, ref.ParentID)
	}
	if t.held(it) {
		return fmt.Errorf("%w: %s", ErrSlotted, id)
	}
	return t.move(it, ref, nil, cs)
}

// UnslotItem moves an item out of the virtual container slot from into ref.
func (t *Tree) UnslotItem(id string, from, ref ContainerRef, loc *Location, cs *ChangeSet) error {
	it, ok := t.items[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if it.ParentID != from.ParentID || it.SlotID != from.SlotID || !t.IsVirtual(from.ParentID) {
		return fmt.Errorf("%w: %s is not in %s slot %s", ErrInvalidTarget, id, from.ParentID, from.SlotID)
	}
	if t.IsVirtual(ref.ParentID) {
		return fmt.Errorf("%w: %s only takes slotted items", ErrInvalidTarget, ref.ParentID)
	}
	return t.move(it, ref, loc, cs)
}

func (t *Tree) move(it *Item, ref ContainerRef, loc *Location, cs *ChangeSet) error {
	id := it.ID
	if it.IsRoot() {
		return fmt.Errorf("%w: %s is a root container", ErrInvalidTarget, id)
	}
	if t.isWithin(ref.ParentID, id) {
		return fmt.Errorf("%w: %s cannot contain itself", ErrInvalidTarget, id)
	}
	newLoc, err := t.place(it, ref, loc, id)
	if err != nil {
		if isContainerErr(err) {
			return fmt.Errorf("%w: %w", ErrInvalidTarget, err)
		}
		return err
	}
	t.detach(it)
	it.ParentID = ref.ParentID
	it.SlotID = ref.SlotID
	it.Location = newLoc
	t.attach(it)
	cs.Modified(*it)
	return nil
}

// SplitItem moves count units of a stack into a new record at ref. The new
// record gets a fresh identity.
func (t *Tree) SplitItem(id string, count int, ref ContainerRef, loc *Location, cs *ChangeSet) (Item, error) {
	it, ok := t.items[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	tpl, err := t.template(it)
	if err != nil {
		return Item{}, err
	}
	if !tpl.Stackable {
		return Item{}, fmt.Errorf("%w: %s", ErrNotStackable, it.TemplateID)
	}
	if t.held(it) {
		return Item{}, fmt.Errorf("%w: %s", ErrSlotted, id)
	}
	if t.IsVirtual(ref.ParentID) {
		return Item{}, fmt.Errorf("%w: %s only takes slotted items", ErrInvalidTarget, ref.ParentID)
	}
	have := it.Count()
	if count <= 0 || count >= have {
		return Item{}, fmt.Errorf("%w: split %d of %d", ErrCountOutOfRange, count, have)
	}
	if t.isWithin(ref.ParentID, id) {
		return Item{}, fmt.Errorf("%w: %s cannot contain its own split", ErrInvalidTarget, id)
	}
	newLoc, err := t.place(it, ref, loc, "")
	if err != nil {
		return Item{}, err
	}

	rec := Item{
		ID:         t.newID(),
		TemplateID: it.TemplateID,
		ParentID:   ref.ParentID,
		SlotID:     ref.SlotID,
		Location:   newLoc,
		StackCount: count,
	}
	if _, clash := t.items[rec.ID]; clash {
		return Item{}, fmt.Errorf("%w: generated id %s already in use", ErrInvalidTarget, rec.ID)
	}
	if it.Attributes != nil {
		rec.Attributes = it.Clone().Attributes
	}

	it.StackCount = have - count
	cs.Modified(*it)
	t.items[rec.ID] = &rec
	t.attach(&rec)
	cs.Added(rec)
	return rec.Clone(), nil
}

// MergeItem adds the source stack onto the destination and deletes the
// source.
func (t *Tree) MergeItem(sourceID, destinationID string, cs *ChangeSet) error {
	src, ok := t.items[sourceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sourceID)
	}
	dst, ok := t.items[destinationID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, destinationID)
	}
	if sourceID == destinationID || src.IsRoot() || t.isWithin(destinationID, sourceID) {
		return fmt.Errorf("%w: cannot merge %s into %s", ErrInvalidTarget, sourceID, destinationID)
	}
	if t.held(src) || t.held(dst) {
		return fmt.Errorf("%w: cannot merge %s into %s", ErrSlotted, sourceID, destinationID)
	}
	if src.TemplateID != dst.TemplateID {
		return fmt.Errorf("%w: %s vs %s", ErrTemplateMismatch, src.TemplateID, dst.TemplateID)
	}
	tpl, err := t.template(dst)
	if err != nil {
		return err
	}
	if !tpl.Stackable {
		return fmt.Errorf("%w: %s", ErrNotStackable, dst.TemplateID)
	}

	dst.StackCount = dst.Count() + src.Count()
	cs.Modified(*dst)
	t.removeSubtree(sourceID, cs)
	return nil
}

// TotalCount sums the stack counts of all records, optionally restricted to
// one template.
func (t *Tree) TotalCount(templateID string) int {
	n := 0
	for _, it := range t.items {
		if templateID == "" || it.TemplateID == templateID {
			n += it.Count()
		}
	}
	return n
}
