package repository

import (
	"context"
	"time"

	"github.com/fosslighting/fossapp/internal/fossapp/entity"
	"gorm.io/gorm"
)

// AreaRepository areas and their versions
type AreaRepository struct {
	db *gorm.DB
}

func NewAreaRepository(db *gorm.DB) *AreaRepository {
	return &AreaRepository{db: db}
}

func (r *AreaRepository) ListByProject(ctx context.Context, projectID string) ([]entity.ProjectArea, error) {
	var areas []entity.ProjectArea
	err := r.db.WithContext(ctx).
		Preload("Versions", func(db *gorm.DB) *gorm.DB {
			return db.Order("version_number ASC")
		}).
		Where("project_id = ?", projectID).
		Order("display_order ASC, area_code ASC").
		Find(&areas).Error
	return areas, translateError(err)
}

func (r *AreaRepository) FindByID(ctx context.Context, id string) (*entity.ProjectArea, error) {
	var area entity.ProjectArea
	err := r.db.WithContext(ctx).
		Preload("Versions", func(db *gorm.DB) *gorm.DB {
			return db.Order("version_number ASC")
		}).
		Where("id = ?", id).
		First(&area).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &area, nil
}

func (r *AreaRepository) Create(ctx context.Context, area *entity.ProjectArea) error {
	return translateError(r.db.WithContext(ctx).Omit("Versions").Create(area).Error)
}

func (r *AreaRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).Model(&entity.ProjectArea{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCascade removes products, versions and the area. Call inside a
// transaction.
func (r *AreaRepository) DeleteCascade(ctx context.Context, id string) error {
	db := r.db.WithContext(ctx)
	versionIDs := db.Model(&entity.AreaVersion{}).Select("id").Where("area_id = ?", id)

	if err := db.Where("area_version_id IN (?)", versionIDs).Delete(&entity.ProjectProduct{}).Error; err != nil {
		return translateError(err)
	}
	if err := db.Where("area_id = ?", id).Delete(&entity.AreaVersion{}).Error; err != nil {
		return translateError(err)
	}
	res := db.Where("id = ?", id).Delete(&entity.ProjectArea{})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================
// Versions
// ============================================================

func (r *AreaRepository) ListVersions(ctx context.Context, areaID string) ([]entity.AreaVersion, error) {
	var versions []entity.AreaVersion
	err := r.db.WithContext(ctx).
		Where("area_id = ?", areaID).
		Order("version_number ASC").
		Find(&versions).Error
	return versions, translateError(err)
}

func (r *AreaRepository) FindVersion(ctx context.Context, id string) (*entity.AreaVersion, error) {
	var version entity.AreaVersion
	err := r.db.WithContext(ctx).
		Preload("Area").
		Where("id = ?", id).
		First(&version).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &version, nil
}

func (r *AreaRepository) FindVersionByNumber(ctx context.Context, areaID string, number int) (*entity.AreaVersion, error) {
	var version entity.AreaVersion
	err := r.db.WithContext(ctx).
		Where("area_id = ? AND version_number = ?", areaID, number).
		First(&version).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &version, nil
}

// MaxVersionNumber 0 when the area has no versions
func (r *AreaRepository) MaxVersionNumber(ctx context.Context, areaID string) (int, error) {
	var maxNumber int
	err := r.db.WithContext(ctx).
		Model(&entity.AreaVersion{}).
		Select("COALESCE(MAX(version_number), 0)").
		Where("area_id = ?", areaID).
		Scan(&maxNumber).Error
	return maxNumber, translateError(err)
}

func (r *AreaRepository) CountVersions(ctx context.Context, areaID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.AreaVersion{}).Where("area_id = ?", areaID).Count(&count).Error
	return count, translateError(err)
}

func (r *AreaRepository) CreateVersion(ctx context.Context, version *entity.AreaVersion) error {
	return translateError(r.db.WithContext(ctx).Omit("Area").Create(version).Error)
}

func (r *AreaRepository) UpdateVersionFields(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).Model(&entity.AreaVersion{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteVersion removes a version and its products. Call inside a
// transaction.
func (r *AreaRepository) DeleteVersion(ctx context.Context, id string) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("area_version_id = ?", id).Delete(&entity.ProjectProduct{}).Error; err != nil {
		return translateError(err)
	}
	res := db.Where("id = ?", id).Delete(&entity.AreaVersion{})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCurrentVersion moves the area pointer
func (r *AreaRepository) SetCurrentVersion(ctx context.Context, areaID string, number int) error {
	return r.UpdateFields(ctx, areaID, map[string]interface{}{"current_version": number})
}

// VersionSummary calls projects.get_area_version_summary
func (r *AreaRepository) VersionSummary(ctx context.Context, versionID string) (*entity.AreaVersionSummary, error) {
	var summary entity.AreaVersionSummary
	err := r.db.WithContext(ctx).
		Raw("SELECT * FROM projects.get_area_version_summary(?)", versionID).
		Scan(&summary).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &summary, nil
}

// VersionsWithFloorPlan versions of the given areas that hold an OSS object
func (r *AreaRepository) VersionsWithFloorPlan(ctx context.Context, areaIDs []string) ([]entity.AreaVersion, error) {
	var versions []entity.AreaVersion
	if len(areaIDs) == 0 {
		return versions, nil
	}
	err := r.db.WithContext(ctx).
		Where("area_id IN ? AND floor_plan_object_key IS NOT NULL AND floor_plan_object_key <> ''", areaIDs).
		Find(&versions).Error
	return versions, translateError(err)
}
