package model

import "gorm.io/datatypes"

// HideoutArea is the persisted state of one area of one character.
type HideoutArea struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	CharID       int64          `gorm:"uniqueIndex:idx_char_area;not null" json:"char_id"`
	AreaType     int            `gorm:"uniqueIndex:idx_char_area;not null" json:"area_type"`
	Level        int            `gorm:"default:0" json:"level"`
	CompleteTime int64          `gorm:"default:0" json:"complete_time"`
	Constructing bool           `gorm:"default:false" json:"constructing"`
	Slots        datatypes.JSON `json:"slots"`
}

// HideoutImprovement is a timed area bonus.
type HideoutImprovement struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	CharID        int64  `gorm:"uniqueIndex:idx_char_improvement;not null" json:"char_id"`
	ImprovementID string `gorm:"uniqueIndex:idx_char_improvement;size:64;not null" json:"improvement_id"`
	AreaType      int    `gorm:"not null" json:"area_type"`
	Completed     bool   `gorm:"default:false" json:"completed"`
	CompleteTime  int64  `json:"complete_time"`
}

// HideoutProduction is the state of one recipe for one character.
type HideoutProduction struct {
	ID             int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	CharID         int64          `gorm:"uniqueIndex:idx_char_recipe;not null" json:"char_id"`
	RecipeID       string         `gorm:"uniqueIndex:idx_char_recipe;size:64;not null" json:"recipe_id"`
	Progress       int64          `json:"progress"`
	InProgress     bool           `gorm:"default:false" json:"in_progress"`
	Products       datatypes.JSON `json:"products"`
	StartTimestamp int64          `json:"start_timestamp"`
	ProductionTime int64          `json:"production_time"`
	SkipTime       int64          `json:"skip_time"`
}
