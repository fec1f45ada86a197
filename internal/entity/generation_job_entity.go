package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// GenerationJob is the persisted record of one generation request. The
// in-memory state machine is authoritative while the process lives; this row
// backs history listings and polls that outlive the retention window.
type GenerationJob struct {
	Id            uuid.UUID `gorm:"type:uuid;primaryKey"`
	OwnerId       uuid.UUID `gorm:"type:uuid;index"`
	SongId        uuid.UUID `gorm:"type:uuid;index"`
	Status        string    `gorm:"type:varchar(20);index"`
	Progress      int
	ResultRef     string
	FailureReason string
	Parameters    datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time
	UpdatedAt     *time.Time
}
