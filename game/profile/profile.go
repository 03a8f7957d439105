package profile

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/IBigIBruce/MTGA-Backend/game/hideout"
	"github.com/IBigIBruce/MTGA-Backend/game/inventory"
)

var (
	ErrCharacterNotFound = errors.New("profile: character not found")
	ErrCharacterBusy     = errors.New("profile: character is locked by another writer")
	ErrBadSnapshot       = errors.New("profile: bad snapshot")
)

// EventChannel is the pub/sub channel that carries a character's change sets.
func EventChannel(charID int64) string {
	return "profile:" + strconv.FormatInt(charID, 10)
}

// Profile is the in-memory state of one character: the header fields, the
// item forest and the hideout. It implements hideout.Character.
type Profile struct {
	CharID       int64
	AccountID    int64
	Name         string
	Side         string
	Level        int
	StashID      string
	EquipmentID  string
	Encyclopedia map[string]bool

	tree    *inventory.Tree
	hideout *hideout.State
}

// Inventory returns the character's item tree.
func (p *Profile) Inventory() *inventory.Tree { return p.tree }

// Hideout returns the character's hideout state.
func (p *Profile) Hideout() *hideout.State { return p.hideout }

// Examine marks the template of an owned item as known and returns it.
func (p *Profile) Examine(itemID string) (string, error) {
	it, err := p.tree.Get(itemID)
	if err != nil {
		return "", err
	}
	if p.Encyclopedia == nil {
		p.Encyclopedia = make(map[string]bool)
	}
	p.Encyclopedia[it.TemplateID] = true
	return it.TemplateID, nil
}

// assemble builds the tree over items and attaches hs. The hideout state is
// synced to the catalog first so its virtual containers are known, and its
// slot stubs are rebuilt from the tree afterwards.
func assemble(p *Profile, cat hideout.Catalog, items []inventory.Item, hs *hideout.State) (*Profile, error) {
	if hs == nil {
		hs = hideout.NewState(cat)
	} else {
		hs.Sync(cat)
	}
	tree, err := inventory.New(cat, p.StashID, items,
		inventory.WithVirtualContainers(hs.VirtualContainers()...))
	if err != nil {
		return nil, fmt.Errorf("profile: character %d: %w", p.CharID, err)
	}
	hs.SyncSlots(tree)
	p.tree = tree
	p.hideout = hs
	return p, nil
}
