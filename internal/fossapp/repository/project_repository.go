package repository

import (
	"context"
	"time"

	"github.com/fosslighting/fossapp/internal/fossapp/entity"
	"gorm.io/gorm"
)

// ProjectRepository projects, contacts, documents and phases
type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// ProjectFilter list filters
type ProjectFilter struct {
	Keyword    string
	Status     string
	CustomerID string
	Archived   *bool
}

// FindByID loads a project with customer, areas and versions
func (r *ProjectRepository) FindByID(ctx context.Context, id string) (*entity.Project, error) {
	var project entity.Project
	err := r.db.WithContext(ctx).
		Preload("Customer").
		Preload("Areas", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order ASC, area_code ASC")
		}).
		Preload("Areas.Versions", func(db *gorm.DB) *gorm.DB {
			return db.Order("version_number ASC")
		}).
		Where("id = ?", id).
		First(&project).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &project, nil
}

// FindPlain loads only the project row
func (r *ProjectRepository) FindPlain(ctx context.Context, id string) (*entity.Project, error) {
	var project entity.Project
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&project).Error; err != nil {
		return nil, translateError(err)
	}
	return &project, nil
}

func (r *ProjectRepository) FindByCode(ctx context.Context, code string) (*entity.Project, error) {
	var project entity.Project
	if err := r.db.WithContext(ctx).Where("project_code = ?", code).First(&project).Error; err != nil {
		return nil, translateError(err)
	}
	return &project, nil
}

func (r *ProjectRepository) Create(ctx context.Context, project *entity.Project) error {
	return translateError(r.db.WithContext(ctx).Omit("Customer", "Areas", "Contacts", "Phases").Create(project).Error)
}

// UpdateFields partial column update
func (r *ProjectRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).Model(&entity.Project{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the project row only
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	return translateError(r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.Project{}).Error)
}

// DeleteCascade removes the project and every dependent row. Call inside
// a transaction.
func (r *ProjectRepository) DeleteCascade(ctx context.Context, id string) error {
	db := r.db.WithContext(ctx)

	areaIDs := db.Model(&entity.ProjectArea{}).Select("id").Where("project_id = ?", id)
	versionIDs := db.Model(&entity.AreaVersion{}).Select("id").Where("area_id IN (?)", areaIDs)

	steps := []struct {
		model interface{}
		query string
		args  []interface{}
	}{
		{&entity.ProjectProduct{}, "project_id = ? OR area_version_id IN (?)", []interface{}{id, versionIDs}},
		{&entity.AreaVersion{}, "area_id IN (?)", []interface{}{areaIDs}},
		{&entity.ProjectArea{}, "project_id = ?", []interface{}{id}},
		{&entity.ProjectContact{}, "project_id = ?", []interface{}{id}},
		{&entity.ProjectDocument{}, "project_id = ?", []interface{}{id}},
		{&entity.ProjectPhase{}, "project_id = ?", []interface{}{id}},
	}
	for _, step := range steps {
		if err := db.Where(step.query, step.args...).Delete(step.model).Error; err != nil {
			return translateError(err)
		}
	}

	res := db.Where("id = ?", id).Delete(&entity.Project{})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List paginated projects, newest first
func (r *ProjectRepository) List(ctx context.Context, page, pageSize int, filter ProjectFilter) ([]entity.Project, int64, error) {
	var projects []entity.Project
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Project{})

	if filter.Keyword != "" {
		like := containsPattern(filter.Keyword)
		query = query.Where("name ILIKE ? OR project_code ILIKE ? OR city ILIKE ?", like, like, like)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CustomerID != "" {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.Archived != nil {
		query = query.Where("is_archived = ?", *filter.Archived)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translateError(err)
	}

	err := query.
		Preload("Customer").
		Order("created_at DESC").
		Offset(offsetOf(page, pageSize)).
		Limit(pageSize).
		Find(&projects).Error

	return projects, total, translateError(err)
}

// GenerateCode next YYMM-NNN code from the database function
func (r *ProjectRepository) GenerateCode(ctx context.Context) (string, error) {
	var code string
	err := r.db.WithContext(ctx).Raw("SELECT projects.generate_project_code()").Scan(&code).Error
	if err != nil {
		return "", translateError(err)
	}
	return code, nil
}

// ============================================================
// Contacts
// ============================================================

func (r *ProjectRepository) ListContacts(ctx context.Context, projectID string) ([]entity.ProjectContact, error) {
	var contacts []entity.ProjectContact
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("is_primary DESC, name ASC").
		Find(&contacts).Error
	return contacts, translateError(err)
}

func (r *ProjectRepository) CreateContact(ctx context.Context, contact *entity.ProjectContact) error {
	return translateError(r.db.WithContext(ctx).Create(contact).Error)
}

func (r *ProjectRepository) DeleteContact(ctx context.Context, projectID, contactID string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND project_id = ?", contactID, projectID).
		Delete(&entity.ProjectContact{})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================
// Documents
// ============================================================

func (r *ProjectRepository) ListDocuments(ctx context.Context, projectID string) ([]entity.ProjectDocument, error) {
	var docs []entity.ProjectDocument
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&docs).Error
	return docs, translateError(err)
}

func (r *ProjectRepository) CreateDocument(ctx context.Context, doc *entity.ProjectDocument) error {
	return translateError(r.db.WithContext(ctx).Create(doc).Error)
}

func (r *ProjectRepository) FindDocument(ctx context.Context, projectID, docID string) (*entity.ProjectDocument, error) {
	var doc entity.ProjectDocument
	err := r.db.WithContext(ctx).
		Where("id = ? AND project_id = ?", docID, projectID).
		First(&doc).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &doc, nil
}

func (r *ProjectRepository) DeleteDocument(ctx context.Context, docID string) error {
	return translateError(r.db.WithContext(ctx).Where("id = ?", docID).Delete(&entity.ProjectDocument{}).Error)
}

// ============================================================
// Phases
// ============================================================

func (r *ProjectRepository) ListPhases(ctx context.Context, projectID string) ([]entity.ProjectPhase, error) {
	var phases []entity.ProjectPhase
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("phase_number ASC").
		Find(&phases).Error
	return phases, translateError(err)
}

func (r *ProjectRepository) NextPhaseNumber(ctx context.Context, projectID string) (int, error) {
	var maxNumber int
	err := r.db.WithContext(ctx).
		Model(&entity.ProjectPhase{}).
		Select("COALESCE(MAX(phase_number), 0)").
		Where("project_id = ?", projectID).
		Scan(&maxNumber).Error
	if err != nil {
		return 0, translateError(err)
	}
	return maxNumber + 1, nil
}

func (r *ProjectRepository) CreatePhase(ctx context.Context, phase *entity.ProjectPhase) error {
	return translateError(r.db.WithContext(ctx).Create(phase).Error)
}

func (r *ProjectRepository) FindPhase(ctx context.Context, projectID, phaseID string) (*entity.ProjectPhase, error) {
	var phase entity.ProjectPhase
	err := r.db.WithContext(ctx).
		Where("id = ? AND project_id = ?", phaseID, projectID).
		First(&phase).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &phase, nil
}

func (r *ProjectRepository) UpdatePhase(ctx context.Context, phase *entity.ProjectPhase) error {
	return translateError(r.db.WithContext(ctx).Save(phase).Error)
}
