package model

import "gorm.io/datatypes"

// InventoryItem is one record of a character's item forest. Spatial items
// carry a location; items in named slots do not.
type InventoryItem struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	CharID     int64          `gorm:"uniqueIndex:idx_char_item;not null" json:"char_id"`
	ItemID     string         `gorm:"uniqueIndex:idx_char_item;size:24;not null" json:"item_id"`
	TemplateID string         `gorm:"size:64;not null" json:"template_id"`
	ParentID   string         `gorm:"index:idx_item_parent;size:32" json:"parent_id"`
	SlotID     string         `gorm:"size:64" json:"slot_id"`
	Spatial    bool           `gorm:"default:false" json:"spatial"`
	X          int            `json:"x"`
	Y          int            `json:"y"`
	R          int            `json:"r"`
	StackCount int            `gorm:"default:0" json:"stack_count"`
	Attributes datatypes.JSON `json:"attributes"`
}
