package model

import (
	"time"

	"gorm.io/datatypes"
)

// Character is the persisted header of a player profile. Items and hideout
// state live in their own tables keyed by CharID.
type Character struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID    int64          `gorm:"index:idx_account;not null" json:"account_id"`
	Name         string         `gorm:"uniqueIndex;size:32;not null" json:"name"`
	Side         string         `gorm:"size:8;default:Usec" json:"side"`
	Level        int            `gorm:"default:1" json:"level"`
	StashID      string         `gorm:"size:24;not null" json:"stash_id"`
	EquipmentID  string         `gorm:"size:24;not null" json:"equipment_id"`
	Encyclopedia datatypes.JSON `json:"encyclopedia"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
