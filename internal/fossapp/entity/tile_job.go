package entity

import (
	"time"

	"gorm.io/datatypes"
)

// TileJob one tile drawing generation run. Only the terminal state is
// durable; intermediate phases go out over SSE.
type TileJob struct {
	ID         string         `json:"id" gorm:"primaryKey;size:36"`
	UserID     string         `json:"user_id" gorm:"size:36;not null;index"`
	TileID     string         `json:"tile_id" gorm:"size:64;not null;index"`
	TileName   string         `json:"tile_name" gorm:"size:255"`
	Members    datatypes.JSON `json:"members" gorm:"type:jsonb"`
	Status     string         `json:"status" gorm:"size:16;not null;default:running"`
	Phase      string         `json:"phase" gorm:"size:16;not null"`
	URN        string         `json:"urn" gorm:"column:urn;size:512"`
	ObjectKey  string         `json:"object_key" gorm:"size:512"`
	Error      string         `json:"error" gorm:"type:text"`
	CreatedAt  time.Time      `json:"created_at"`
	FinishedAt *time.Time     `json:"finished_at"`
}

func (TileJob) TableName() string {
	return "projects.tile_jobs"
}

// Tile job status
const (
	TileJobRunning   = "running"
	TileJobSucceeded = "succeeded"
	TileJobFailed    = "failed"
)

// Tile generation phases in order
const (
	TilePhaseQueued      = "queued"
	TilePhaseValidating  = "validating"
	TilePhaseGenerating  = "generating"
	TilePhaseUploading   = "uploading"
	TilePhaseTranslating = "translating"
	TilePhaseComplete    = "complete"
	TilePhaseError       = "error"
)
