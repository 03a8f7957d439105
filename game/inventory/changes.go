package inventory

import "slices"

type changeKind int

const (
	changeAdded changeKind = iota + 1
	changeModified
	changeRemoved
)

type change struct {
	kind changeKind
	item Item
}

// ChangeSet accumulates the item mutations of one request so the caller can
// build a response delta and persist the character. The zero value is ready
// to use.
type ChangeSet struct {
	order   []string
	changes map[string]*change
	hideout bool
}

// NewChangeSet returns an empty ChangeSet.
func NewChangeSet() *ChangeSet { return &ChangeSet{} }

func (cs *ChangeSet) entry(id string) *change {
	if cs.changes == nil {
		cs.changes = make(map[string]*change)
	}
	c, ok := cs.changes[id]
	if !ok {
		c = &change{}
		cs.changes[id] = c
		cs.order = append(cs.order, id)
	}
	return c
}

// Added records a newly created item.
func (cs *ChangeSet) Added(it Item) {
	c := cs.entry(it.ID)
	c.kind = changeAdded
	c.item = it.Clone()
}

// Modified records an item whose fields changed. An item created earlier in
// the same change set stays reported as added.
func (cs *ChangeSet) Modified(it Item) {
	c := cs.entry(it.ID)
	if c.kind != changeAdded {
		c.kind = changeModified
	}
	c.item = it.Clone()
}

// Removed records a deleted item. An item created earlier in the same
// change set is dropped from the delta entirely.
func (cs *ChangeSet) Removed(id string) {
	c := cs.entry(id)
	if c.kind == changeAdded {
		delete(cs.changes, id)
		if i := slices.Index(cs.order, id); i >= 0 {
			cs.order = slices.Delete(cs.order, i, i+1)
		}
		return
	}
	c.kind = changeRemoved
	c.item = Item{ID: id}
}

// MarkHideout flags that hideout state changed.
func (cs *ChangeSet) MarkHideout() { cs.hideout = true }

// HideoutChanged reports whether MarkHideout was called.
func (cs *ChangeSet) HideoutChanged() bool { return cs.hideout }

func (cs *ChangeSet) collect(kind changeKind) []Item {
	out := []Item{}
	for _, id := range cs.order {
		if c := cs.changes[id]; c.kind == kind {
			out = append(out, c.item.Clone())
		}
	}
	return out
}

// ItemsAdded lists created items in the order they were first touched.
func (cs *ChangeSet) ItemsAdded() []Item { return cs.collect(changeAdded) }

// ItemsModified lists changed items.
func (cs *ChangeSet) ItemsModified() []Item { return cs.collect(changeModified) }

// ItemsRemoved lists ids of deleted items.
func (cs *ChangeSet) ItemsRemoved() []string {
	out := []string{}
	for _, it := range cs.collect(changeRemoved) {
		out = append(out, it.ID)
	}
	return out
}

// Empty reports whether nothing was recorded.
func (cs *ChangeSet) Empty() bool {
	return len(cs.changes) == 0 && !cs.hideout
}
