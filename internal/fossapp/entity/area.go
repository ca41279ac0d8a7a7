package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectArea physical zone of a project. CurrentVersion points at an
// AreaVersion.VersionNumber of the same area.
type ProjectArea struct {
	ID                  string              `json:"id" gorm:"primaryKey;size:36"`
	ProjectID           string              `json:"project_id" gorm:"size:36;not null;uniqueIndex:idx_area_code_per_project"`
	AreaCode            string              `json:"area_code" gorm:"size:32;not null;uniqueIndex:idx_area_code_per_project"`
	AreaName            string              `json:"area_name" gorm:"size:255;not null"`
	AreaNameEn          string              `json:"area_name_en" gorm:"size:255"`
	AreaType            string              `json:"area_type" gorm:"size:32"`
	FloorLevel          *int                `json:"floor_level"`
	AreaSqm             decimal.NullDecimal `json:"area_sqm" gorm:"type:numeric(10,2)"`
	DisplayOrder        int                 `json:"display_order" gorm:"not null;default:0"`
	CurrentVersion      int                 `json:"current_version" gorm:"not null;default:1"`
	GoogleDriveFolderID *string             `json:"google_drive_folder_id" gorm:"size:128"`
	IsActive            bool                `json:"is_active" gorm:"not null;default:true"`
	Description         string              `json:"description" gorm:"type:text"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`

	Versions []AreaVersion `json:"versions,omitempty" gorm:"foreignKey:AreaID"`
}

func (ProjectArea) TableName() string {
	return "projects.project_areas"
}

// AreaVersion independently versioned snapshot of an area: products and
// the floor plan.
type AreaVersion struct {
	ID                  string    `json:"id" gorm:"primaryKey;size:36"`
	AreaID              string    `json:"area_id" gorm:"size:36;not null;uniqueIndex:idx_area_version_number"`
	VersionNumber       int       `json:"version_number" gorm:"not null;uniqueIndex:idx_area_version_number"`
	VersionName         string    `json:"version_name" gorm:"size:255"`
	Notes               string    `json:"notes" gorm:"type:text"`
	Status              string    `json:"status" gorm:"size:16;not null;default:draft"`
	GoogleDriveFolderID *string   `json:"google_drive_folder_id" gorm:"size:128"`
	FloorPlanURN        *string   `json:"floor_plan_urn" gorm:"column:floor_plan_urn;size:512"`
	FloorPlanFilename   *string   `json:"floor_plan_filename" gorm:"size:255"`
	FloorPlanObjectKey  *string   `json:"floor_plan_object_key" gorm:"size:512"`
	FloorPlanStatus     string    `json:"floor_plan_status" gorm:"size:16;not null;default:none"`
	FloorPlanProgress   string    `json:"floor_plan_progress" gorm:"size:32"`
	CreatedBy           string    `json:"created_by" gorm:"size:36"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`

	Area *ProjectArea `json:"area,omitempty" gorm:"foreignKey:AreaID"`
}

func (AreaVersion) TableName() string {
	return "projects.project_area_versions"
}

// HasFloorPlan reports whether an OSS object is attached
func (v *AreaVersion) HasFloorPlan() bool {
	return v.FloorPlanObjectKey != nil && *v.FloorPlanObjectKey != ""
}

// AreaVersionSummary row of projects.get_area_version_summary
type AreaVersionSummary struct {
	AreaVersionID string          `json:"area_version_id"`
	ProductCount  int64           `json:"product_count"`
	TotalQuantity int64           `json:"total_quantity"`
	TotalValue    decimal.Decimal `json:"total_value"`
}

// Version status
const (
	VersionStatusDraft      = "draft"
	VersionStatusApproved   = "approved"
	VersionStatusSuperseded = "superseded"
)

// Floor plan translation status, mirrors the model derivative manifest
const (
	FloorPlanNone       = "none"
	FloorPlanPending    = "pending"
	FloorPlanInProgress = "inprogress"
	FloorPlanSuccess    = "success"
	FloorPlanFailed     = "failed"
	FloorPlanTimeout    = "timeout"
)
