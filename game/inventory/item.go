package inventory

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/google/uuid"
)

// Rotation is the orientation of an item placed in a grid.
type Rotation int

const (
	Horizontal Rotation = 0
	Vertical   Rotation = 1
)

// UnmarshalJSON accepts both the numeric form and the legacy
// "Horizontal"/"Vertical" strings some clients still send.
func (r *Rotation) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		switch s {
		case "Horizontal", "":
			*r = Horizontal
		case "Vertical":
			*r = Vertical
		default:
			return fmt.Errorf("inventory: unknown rotation %q", s)
		}
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	if n != 0 && n != 1 {
		return fmt.Errorf("inventory: unknown rotation %d", n)
	}
	*r = Rotation(n)
	return nil
}

// Location is the position of an item inside a container grid.
type Location struct {
	X int      `json:"x"`
	Y int      `json:"y"`
	R Rotation `json:"r"`
}

// Item is one record in a character's item forest.
type Item struct {
	ID         string         `json:"_id"`
	TemplateID string         `json:"_tpl"`
	ParentID   string         `json:"parentId,omitempty"`
	SlotID     string         `json:"slotId,omitempty"`
	Location   *Location      `json:"location,omitempty"`
	StackCount int            `json:"stackCount,omitempty"`
	Attributes map[string]any `json:"upd,omitempty"`
}

// Count returns the stack size, treating an unset count as a single item.
func (it Item) Count() int {
	if it.StackCount <= 0 {
		return 1
	}
	return it.StackCount
}

// IsRoot reports whether the item has no parent container.
func (it Item) IsRoot() bool { return it.ParentID == "" }

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	out := it
	if it.Location != nil {
		loc := *it.Location
		out.Location = &loc
	}
	if it.Attributes != nil {
		out.Attributes = maps.Clone(it.Attributes)
	}
	return out
}

// ContainerRef addresses a slot or grid of a container item.
type ContainerRef struct {
	ParentID string `json:"id"`
	SlotID   string `json:"container"`
}

// NewItemID returns a fresh 24 character hex identity.
func NewItemID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
