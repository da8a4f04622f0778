// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// GormTurnRecord is one archived narrative turn of a room.
type GormTurnRecord struct {
	gorm.Model
	RoomID    string         `gorm:"index;not null"`
	Kind      string         `gorm:"not null"`
	Aggregate string         `gorm:"type:text"`
	Narrative string         `gorm:"type:text;not null"`
	Delta     map[string]any `gorm:"type:jsonb;serializer:json"`
	Players   []string       `gorm:"type:jsonb;serializer:json"`
}

func (GormTurnRecord) TableName() string {
	return "turn_records"
}
