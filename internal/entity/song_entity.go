package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Song struct {
	Id           uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserId       uuid.UUID `gorm:"type:uuid;index"`
	Title        string
	Lyrics       string
	Genre        string
	Tempo        int
	KeySignature string
	Duration     int
	Mood         string
	StyleOptions datatypes.JSON `gorm:"type:jsonb"`
	AudioPath    string
	CreatedAt    time.Time
	UpdatedAt    *time.Time
}
