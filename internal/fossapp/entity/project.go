package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Project lives in the projects schema; Drive folder and OSS bucket are
// filled in after the external resources exist.
type Project struct {
	ID                  string              `json:"id" gorm:"primaryKey;size:36"`
	ProjectCode         string              `json:"project_code" gorm:"size:16;not null;uniqueIndex"`
	Name                string              `json:"name" gorm:"size:255;not null"`
	CustomerID          *string             `json:"customer_id" gorm:"size:36;index"`
	Status              string              `json:"status" gorm:"size:16;not null;default:draft"`
	Priority            string              `json:"priority" gorm:"size:16;not null;default:medium"`
	Description         string              `json:"description" gorm:"type:text"`
	ProjectType         string              `json:"project_type" gorm:"size:64"`
	City                string              `json:"city" gorm:"size:128"`
	EstimatedBudget     decimal.NullDecimal `json:"estimated_budget" gorm:"type:numeric(14,2)"`
	Currency            string              `json:"currency" gorm:"size:3;not null;default:EUR"`
	StartDate           *time.Time          `json:"start_date" gorm:"type:date"`
	ExpectedCompletion  *time.Time          `json:"expected_completion" gorm:"type:date"`
	GoogleDriveFolderID *string             `json:"google_drive_folder_id" gorm:"size:128"`
	OSSBucket           *string             `json:"oss_bucket" gorm:"column:oss_bucket;size:128"`
	IsArchived          bool                `json:"is_archived" gorm:"not null;default:false"`
	CreatedBy           string              `json:"created_by" gorm:"size:36"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`

	Customer *Customer        `json:"customer,omitempty" gorm:"foreignKey:CustomerID"`
	Areas    []ProjectArea    `json:"areas,omitempty" gorm:"foreignKey:ProjectID"`
	Contacts []ProjectContact `json:"contacts,omitempty" gorm:"foreignKey:ProjectID"`
	Phases   []ProjectPhase   `json:"phases,omitempty" gorm:"foreignKey:ProjectID"`
}

func (Project) TableName() string {
	return "projects.projects"
}

// ProjectContact person attached to a project
type ProjectContact struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	ProjectID   string    `json:"project_id" gorm:"size:36;not null;index"`
	ContactType string    `json:"contact_type" gorm:"size:32;not null;default:other"`
	Name        string    `json:"name" gorm:"size:255;not null"`
	Company     string    `json:"company" gorm:"size:255"`
	Email       string    `json:"email" gorm:"size:255"`
	Phone       string    `json:"phone" gorm:"size:64"`
	Role        string    `json:"role" gorm:"size:128"`
	IsPrimary   bool      `json:"is_primary" gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"created_at"`
}

func (ProjectContact) TableName() string {
	return "projects.project_contacts"
}

// ProjectDocument file stored in object storage
type ProjectDocument struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	ProjectID    string    `json:"project_id" gorm:"size:36;not null;index"`
	Title        string    `json:"title" gorm:"size:255;not null"`
	DocumentType string    `json:"document_type" gorm:"size:32;not null;default:other"`
	ObjectKey    string    `json:"object_key" gorm:"size:512;not null"`
	FileName     string    `json:"file_name" gorm:"size:255;not null"`
	FileSize     int64     `json:"file_size"`
	ContentType  string    `json:"content_type" gorm:"size:128"`
	UploadedBy   string    `json:"uploaded_by" gorm:"size:36"`
	CreatedAt    time.Time `json:"created_at"`
}

func (ProjectDocument) TableName() string {
	return "projects.project_documents"
}

// ProjectPhase billing / delivery phase
type ProjectPhase struct {
	ID          string              `json:"id" gorm:"primaryKey;size:36"`
	ProjectID   string              `json:"project_id" gorm:"size:36;not null;uniqueIndex:idx_project_phase_number"`
	PhaseNumber int                 `json:"phase_number" gorm:"not null;uniqueIndex:idx_project_phase_number"`
	PhaseName   string              `json:"phase_name" gorm:"size:255;not null"`
	Status      string              `json:"status" gorm:"size:16;not null;default:pending"`
	StartDate   *time.Time          `json:"start_date" gorm:"type:date"`
	EndDate     *time.Time          `json:"end_date" gorm:"type:date"`
	Budget      decimal.NullDecimal `json:"budget" gorm:"type:numeric(14,2)"`
	CreatedAt   time.Time           `json:"created_at"`
}

func (ProjectPhase) TableName() string {
	return "projects.project_phases"
}

// Project status
const (
	ProjectStatusDraft     = "draft"
	ProjectStatusActive    = "active"
	ProjectStatusOnHold    = "on_hold"
	ProjectStatusCompleted = "completed"
	ProjectStatusCancelled = "cancelled"
	ProjectStatusArchived  = "archived"
)

// Project priority
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Phase status
const (
	PhaseStatusPending    = "pending"
	PhaseStatusInProgress = "in_progress"
	PhaseStatusCompleted  = "completed"
)

// ValidProjectStatus reports whether s is a known project status
func ValidProjectStatus(s string) bool {
	switch s {
	case ProjectStatusDraft, ProjectStatusActive, ProjectStatusOnHold,
		ProjectStatusCompleted, ProjectStatusCancelled, ProjectStatusArchived:
		return true
	}
	return false
}

func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

func ValidPhaseStatus(s string) bool {
	switch s {
	case PhaseStatusPending, PhaseStatusInProgress, PhaseStatusCompleted:
		return true
	}
	return false
}
