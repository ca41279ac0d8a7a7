package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/fosslighting/fossapp/internal/config"
	"github.com/fosslighting/fossapp/internal/fossapp/entity"
	"github.com/fosslighting/fossapp/internal/fossapp/repository"
	"github.com/fosslighting/fossapp/internal/fossapp/sse"
	"github.com/fosslighting/fossapp/internal/shared/aps"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxCodeAttempts project code generation retries on a unique violation
const maxCodeAttempts = 3

var projectCodePattern = regexp.MustCompile(`^\d{4}-\d{3,}$`)

// ProjectService projects, contacts and phases. Postgres is authoritative;
// Drive folders and the OSS bucket follow best-effort.
type ProjectService struct {
	repos   *repository.Repositories
	drive   DriveClient
	aps     APSClient
	objects ObjectStore
	hub     *sse.Hub
	apsCfg  config.APSConfig
	logger  *zap.Logger
}

func NewProjectService(
	repos *repository.Repositories,
	drive DriveClient,
	apsClient APSClient,
	objects ObjectStore,
	hub *sse.Hub,
	apsCfg config.APSConfig,
	logger *zap.Logger,
) *ProjectService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = sse.NewHub(logger)
	}
	return &ProjectService{
		repos:   repos,
		drive:   drive,
		aps:     apsClient,
		objects: objects,
		hub:     hub,
		apsCfg:  apsCfg,
		logger:  logger.Named("project"),
	}
}

// CreateProjectRequest body of POST /projects
type CreateProjectRequest struct {
	Name               string           `json:"name" binding:"required"`
	CustomerID         *string          `json:"customer_id"`
	Status             string           `json:"status"`
	Priority           string           `json:"priority"`
	Description        string           `json:"description"`
	ProjectType        string           `json:"project_type"`
	City               string           `json:"city"`
	EstimatedBudget    *decimal.Decimal `json:"estimated_budget"`
	Currency           string           `json:"currency"`
	StartDate          *time.Time       `json:"start_date"`
	ExpectedCompletion *time.Time       `json:"expected_completion"`
}

// UpdateProjectRequest nil fields are left unchanged
type UpdateProjectRequest struct {
	Name               *string          `json:"name"`
	CustomerID         *string          `json:"customer_id"`
	Priority           *string          `json:"priority"`
	Description        *string          `json:"description"`
	ProjectType        *string          `json:"project_type"`
	City               *string          `json:"city"`
	EstimatedBudget    *decimal.Decimal `json:"estimated_budget"`
	Currency           *string          `json:"currency"`
	StartDate          *time.Time       `json:"start_date"`
	ExpectedCompletion *time.Time       `json:"expected_completion"`
}

// ProjectListResult paginated projects
type ProjectListResult struct {
	Items      []entity.Project `json:"items"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalPages int              `json:"total_pages"`
}

// ============================================================
// Projects
// ============================================================

func (s *ProjectService) ListProjects(ctx context.Context, page, pageSize int, filter repository.ProjectFilter) (*ProjectListResult, error) {
	projects, total, err := s.repos.Project.List(ctx, page, pageSize, filter)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return &ProjectListResult{
		Items:      projects,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

// GetProject accepts the project id or its YYMM-NNN code
func (s *ProjectService) GetProject(ctx context.Context, id string) (*entity.Project, error) {
	if projectCodePattern.MatchString(id) {
		byCode, err := s.repos.Project.FindByCode(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("find project %s: %w", id, err)
		}
		id = byCode.ID
	}
	project, err := s.repos.Project.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}
	return project, nil
}

func validateDates(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return invalidf("expected completion must not be before the start date")
	}
	return nil
}

func validateCurrency(c string) error {
	if len(c) != 3 || strings.ToUpper(c) != c {
		return invalidf("currency must be a three letter ISO code")
	}
	return nil
}

// CreateProject inserts the row with a fresh YYMM-NNN code, builds the
// Drive skeleton and the OSS bucket, then records their ids. The row is
// removed again when Drive or the final update fails.
func (s *ProjectService) CreateProject(ctx context.Context, userID string, req *CreateProjectRequest) (*entity.Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, invalidf("project name is required")
	}
	if req.Priority == "" {
		req.Priority = entity.PriorityMedium
	}
	if !entity.ValidPriority(req.Priority) {
		return nil, invalidf("invalid priority %q", req.Priority)
	}
	if req.Status == "" {
		req.Status = entity.ProjectStatusDraft
	}
	if !entity.ValidProjectStatus(req.Status) || req.Status == entity.ProjectStatusArchived {
		return nil, invalidf("invalid status %q", req.Status)
	}
	if req.Currency == "" {
		req.Currency = "EUR"
	}
	if err := validateCurrency(req.Currency); err != nil {
		return nil, err
	}
	if err := validateDates(req.StartDate, req.ExpectedCompletion); err != nil {
		return nil, err
	}
	if req.EstimatedBudget != nil && req.EstimatedBudget.IsNegative() {
		return nil, invalidf("estimated budget must not be negative")
	}
	if req.CustomerID != nil && *req.CustomerID != "" {
		if _, err := s.repos.Catalog.FindCustomer(ctx, *req.CustomerID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, invalidf("customer %s does not exist", *req.CustomerID)
			}
			return nil, fmt.Errorf("find customer: %w", err)
		}
	} else {
		req.CustomerID = nil
	}

	project := &entity.Project{
		ID:                 uuid.New().String(),
		Name:               name,
		CustomerID:         req.CustomerID,
		Status:             req.Status,
		Priority:           req.Priority,
		Description:        req.Description,
		ProjectType:        req.ProjectType,
		City:               req.City,
		Currency:           req.Currency,
		StartDate:          req.StartDate,
		ExpectedCompletion: req.ExpectedCompletion,
		CreatedBy:          userID,
	}
	if req.EstimatedBudget != nil {
		project.EstimatedBudget = decimal.NewNullDecimal(*req.EstimatedBudget)
	}

	if err := s.insertWithCode(ctx, project); err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}

	if s.drive != nil {
		folders, err := s.drive.CreateProjectSkeleton(ctx, project.ProjectCode)
		if err != nil {
			s.rollbackCreate(project, err)
			return nil, fmt.Errorf("create drive folders: %w", err)
		}
		fields["google_drive_folder_id"] = folders.RootID
	} else {
		s.logger.Warn("drive not configured, project has no folder", zap.String("project_code", project.ProjectCode))
	}

	if bucket := s.createBucket(ctx, project); bucket != "" {
		fields["oss_bucket"] = bucket
	}

	if len(fields) > 0 {
		if err := s.repos.Project.UpdateFields(ctx, project.ID, fields); err != nil {
			s.rollbackCreate(project, err)
			return nil, fmt.Errorf("store external ids: %w", err)
		}
	}

	s.logger.Info("project created",
		zap.String("project_id", project.ID),
		zap.String("project_code", project.ProjectCode),
		zap.String("user_id", userID))
	s.hub.PublishProjectUpdate(project.ID, "created")

	return s.repos.Project.FindByID(ctx, project.ID)
}

func (s *ProjectService) insertWithCode(ctx context.Context, project *entity.Project) error {
	for attempt := 1; ; attempt++ {
		code, err := s.repos.Project.GenerateCode(ctx)
		if err != nil {
			return fmt.Errorf("generate project code: %w", err)
		}
		project.ProjectCode = code

		err = s.repos.Project.Create(ctx, project)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrDuplicate) || attempt >= maxCodeAttempts {
			return fmt.Errorf("create project: %w", err)
		}
		s.logger.Warn("project code taken, retrying", zap.String("code", code), zap.Int("attempt", attempt))
	}
}

// rollbackCreate manual rollback; external resources stay in place
func (s *ProjectService) rollbackCreate(project *entity.Project, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.repos.Project.Delete(ctx, project.ID); err != nil {
		s.logger.Error("rollback of project row failed",
			zap.String("project_id", project.ID), zap.Error(err), zap.NamedError("cause", cause))
		return
	}
	s.logger.Warn("project creation rolled back",
		zap.String("project_id", project.ID), zap.String("project_code", project.ProjectCode), zap.Error(cause))
}

// createBucket best-effort; returns "" when the bucket is unusable
func (s *ProjectService) createBucket(ctx context.Context, project *entity.Project) string {
	if s.aps == nil {
		return ""
	}
	bucket := aps.BucketKey(s.apsCfg.BucketPrefix, project.ID)
	if err := s.aps.EnsureBucket(ctx, bucket, aps.PolicyPersistent); err != nil {
		s.logger.Warn("create oss bucket failed", zap.String("project_id", project.ID), zap.Error(err))
		return ""
	}

	if s.apsCfg.TemplateFile != "" {
		data, err := os.ReadFile(s.apsCfg.TemplateFile)
		if err != nil {
			s.logger.Warn("read floor plan template", zap.String("file", s.apsCfg.TemplateFile), zap.Error(err))
			return bucket
		}
		name := s.apsCfg.TemplateFileName
		if name == "" {
			name = filepath.Base(s.apsCfg.TemplateFile)
		}
		if _, err := s.aps.UploadObject(ctx, bucket, name, data); err != nil {
			s.logger.Warn("upload floor plan template", zap.String("project_id", project.ID), zap.Error(err))
		}
	}
	return bucket
}

func (s *ProjectService) UpdateProject(ctx context.Context, id string, req *UpdateProjectRequest) (*entity.Project, error) {
	project, err := s.repos.Project.FindPlain(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}

	fields := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, invalidf("project name is required")
		}
		fields["name"] = name
	}
	if req.CustomerID != nil {
		if *req.CustomerID == "" {
			fields["customer_id"] = nil
		} else {
			if _, err := s.repos.Catalog.FindCustomer(ctx, *req.CustomerID); err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return nil, invalidf("customer %s does not exist", *req.CustomerID)
				}
				return nil, fmt.Errorf("find customer: %w", err)
			}
			fields["customer_id"] = *req.CustomerID
		}
	}
	if req.Priority != nil {
		if !entity.ValidPriority(*req.Priority) {
			return nil, invalidf("invalid priority %q", *req.Priority)
		}
		fields["priority"] = *req.Priority
	}
	if req.Description != nil {
		fields["description"] = *req.Description
	}
	if req.ProjectType != nil {
		fields["project_type"] = *req.ProjectType
	}
	if req.City != nil {
		fields["city"] = *req.City
	}
	if req.EstimatedBudget != nil {
		if req.EstimatedBudget.IsNegative() {
			return nil, invalidf("estimated budget must not be negative")
		}
		fields["estimated_budget"] = *req.EstimatedBudget
	}
	if req.Currency != nil {
		if err := validateCurrency(*req.Currency); err != nil {
			return nil, err
		}
		fields["currency"] = *req.Currency
	}

	start, end := project.StartDate, project.ExpectedCompletion
	if req.StartDate != nil {
		start = req.StartDate
		fields["start_date"] = *req.StartDate
	}
	if req.ExpectedCompletion != nil {
		end = req.ExpectedCompletion
		fields["expected_completion"] = *req.ExpectedCompletion
	}
	if err := validateDates(start, end); err != nil {
		return nil, err
	}

	if len(fields) > 0 {
		if err := s.repos.Project.UpdateFields(ctx, id, fields); err != nil {
			return nil, fmt.Errorf("update project: %w", err)
		}
	}
	return s.repos.Project.FindByID(ctx, id)
}

func (s *ProjectService) UpdateProjectStatus(ctx context.Context, id, status string) (*entity.Project, error) {
	if !entity.ValidProjectStatus(status) {
		return nil, invalidf("invalid status %q", status)
	}
	fields := map[string]interface{}{"status": status}
	if status == entity.ProjectStatusArchived {
		fields["is_archived"] = true
	}
	if err := s.repos.Project.UpdateFields(ctx, id, fields); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	s.hub.PublishProjectUpdate(id, "status_changed")
	return s.repos.Project.FindByID(ctx, id)
}

// ArchiveProject flags the project and moves its Drive folder into the
// archive folder (best-effort).
func (s *ProjectService) ArchiveProject(ctx context.Context, id string) (*entity.Project, error) {
	project, err := s.repos.Project.FindPlain(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}
	err = s.repos.Project.UpdateFields(ctx, id, map[string]interface{}{
		"is_archived": true,
		"status":      entity.ProjectStatusArchived,
	})
	if err != nil {
		return nil, fmt.Errorf("archive project: %w", err)
	}

	if s.drive != nil && project.GoogleDriveFolderID != nil && *project.GoogleDriveFolderID != "" {
		if err := s.drive.MoveToArchive(ctx, *project.GoogleDriveFolderID); err != nil {
			s.logger.Warn("move drive folder to archive failed",
				zap.String("project_id", id), zap.String("folder_id", *project.GoogleDriveFolderID), zap.Error(err))
		}
	}

	s.hub.PublishProjectUpdate(id, "archived")
	return s.repos.Project.FindByID(ctx, id)
}

// DeleteProject removes every dependent row in one transaction, then
// cleans Drive, the OSS bucket and document blobs best-effort.
func (s *ProjectService) DeleteProject(ctx context.Context, id string) error {
	project, err := s.repos.Project.FindPlain(ctx, id)
	if err != nil {
		return fmt.Errorf("find project: %w", err)
	}
	docs, err := s.repos.Project.ListDocuments(ctx, id)
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		return tx.Project.DeleteCascade(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}

	log := s.logger.With(zap.String("project_id", id), zap.String("project_code", project.ProjectCode))

	if s.drive != nil && project.GoogleDriveFolderID != nil && *project.GoogleDriveFolderID != "" {
		if err := s.drive.Delete(ctx, *project.GoogleDriveFolderID); err != nil {
			log.Warn("delete drive folder failed", zap.Error(err))
		}
	}

	if s.aps != nil && project.OSSBucket != nil && *project.OSSBucket != "" {
		s.deleteBucket(ctx, *project.OSSBucket, log)
	}

	if s.objects != nil {
		for _, doc := range docs {
			if err := s.objects.Remove(ctx, doc.ObjectKey); err != nil {
				log.Warn("delete document blob failed", zap.String("object_key", doc.ObjectKey), zap.Error(err))
			}
		}
	}

	log.Info("project deleted")
	s.hub.PublishProjectUpdate(id, "deleted")
	return nil
}

func (s *ProjectService) deleteBucket(ctx context.Context, bucket string, log *zap.Logger) {
	objects, err := s.aps.ListObjects(ctx, bucket)
	if err != nil {
		log.Warn("list oss objects failed", zap.String("bucket", bucket), zap.Error(err))
	}
	for _, obj := range objects {
		if err := s.aps.DeleteObject(ctx, bucket, obj.ObjectKey); err != nil {
			log.Warn("delete oss object failed", zap.String("bucket", bucket), zap.String("object", obj.ObjectKey), zap.Error(err))
		}
	}
	if err := s.aps.DeleteBucket(ctx, bucket); err != nil {
		log.Warn("delete oss bucket failed", zap.String("bucket", bucket), zap.Error(err))
	}
}

// ============================================================
// Contacts
// ============================================================

type AddContactRequest struct {
	ContactType string `json:"contact_type"`
	Name        string `json:"name" binding:"required"`
	Company     string `json:"company"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Role        string `json:"role"`
	IsPrimary   bool   `json:"is_primary"`
}

func (s *ProjectService) ListContacts(ctx context.Context, projectID string) ([]entity.ProjectContact, error) {
	if _, err := s.repos.Project.FindPlain(ctx, projectID); err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}
	return s.repos.Project.ListContacts(ctx, projectID)
}

func (s *ProjectService) AddContact(ctx context.Context, projectID string, req *AddContactRequest) (*entity.ProjectContact, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, invalidf("contact name is required")
	}
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		return nil, invalidf("invalid email %q", req.Email)
	}
	if _, err := s.repos.Project.FindPlain(ctx, projectID); err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}
	contactType := req.ContactType
	if contactType == "" {
		contactType = "other"
	}
	contact := &entity.ProjectContact{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		ContactType: contactType,
		Name:        strings.TrimSpace(req.Name),
		Company:     req.Company,
		Email:       req.Email,
		Phone:       req.Phone,
		Role:        req.Role,
		IsPrimary:   req.IsPrimary,
	}
	if err := s.repos.Project.CreateContact(ctx, contact); err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	return contact, nil
}

func (s *ProjectService) DeleteContact(ctx context.Context, projectID, contactID string) error {
	return s.repos.Project.DeleteContact(ctx, projectID, contactID)
}

// ============================================================
// Phases
// ============================================================

type AddPhaseRequest struct {
	PhaseName string           `json:"phase_name" binding:"required"`
	StartDate *time.Time       `json:"start_date"`
	EndDate   *time.Time       `json:"end_date"`
	Budget    *decimal.Decimal `json:"budget"`
}

func (s *ProjectService) ListPhases(ctx context.Context, projectID string) ([]entity.ProjectPhase, error) {
	if _, err := s.repos.Project.FindPlain(ctx, projectID); err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}
	return s.repos.Project.ListPhases(ctx, projectID)
}

func (s *ProjectService) AddPhase(ctx context.Context, projectID string, req *AddPhaseRequest) (*entity.ProjectPhase, error) {
	if strings.TrimSpace(req.PhaseName) == "" {
		return nil, invalidf("phase name is required")
	}
	if err := validateDates(req.StartDate, req.EndDate); err != nil {
		return nil, err
	}
	if _, err := s.repos.Project.FindPlain(ctx, projectID); err != nil {
		return nil, fmt.Errorf("find project: %w", err)
	}

	number, err := s.repos.Project.NextPhaseNumber(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("next phase number: %w", err)
	}
	phase := &entity.ProjectPhase{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		PhaseNumber: number,
		PhaseName:   strings.TrimSpace(req.PhaseName),
		Status:      entity.PhaseStatusPending,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	}
	if req.Budget != nil {
		phase.Budget = decimal.NewNullDecimal(*req.Budget)
	}
	if err := s.repos.Project.CreatePhase(ctx, phase); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, duplicate("another phase was added at the same time, please retry")
		}
		return nil, fmt.Errorf("create phase: %w", err)
	}
	return phase, nil
}

func (s *ProjectService) UpdatePhaseStatus(ctx context.Context, projectID, phaseID, status string) (*entity.ProjectPhase, error) {
	if !entity.ValidPhaseStatus(status) {
		return nil, invalidf("invalid phase status %q", status)
	}
	phase, err := s.repos.Project.FindPhase(ctx, projectID, phaseID)
	if err != nil {
		return nil, fmt.Errorf("find phase: %w", err)
	}
	phase.Status = status
	if err := s.repos.Project.UpdatePhase(ctx, phase); err != nil {
		return nil, fmt.Errorf("update phase: %w", err)
	}
	return phase, nil
}
