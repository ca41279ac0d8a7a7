package repository

import (
	"context"
	"time"

	"github.com/fosslighting/fossapp/internal/fossapp/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProjectProductRepository products specified per area version
type ProjectProductRepository struct {
	db *gorm.DB
}

func NewProjectProductRepository(db *gorm.DB) *ProjectProductRepository {
	return &ProjectProductRepository{db: db}
}

func (r *ProjectProductRepository) ListByVersion(ctx context.Context, versionID string) ([]entity.ProjectProduct, error) {
	var items []entity.ProjectProduct
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("area_version_id = ?", versionID).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	return items, translateError(err)
}

func (r *ProjectProductRepository) ListByProject(ctx context.Context, projectID string) ([]entity.ProjectProduct, error) {
	var items []entity.ProjectProduct
	err := r.db.WithContext(ctx).
		Preload("Product").
		Where("project_id = ?", projectID).
		Order("area_version_id ASC, created_at ASC").
		Find(&items).Error
	return items, translateError(err)
}

func (r *ProjectProductRepository) FindByID(ctx context.Context, id string) (*entity.ProjectProduct, error) {
	var item entity.ProjectProduct
	err := r.db.WithContext(ctx).Preload("Product").Where("id = ?", id).First(&item).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &item, nil
}

func (r *ProjectProductRepository) Create(ctx context.Context, item *entity.ProjectProduct) error {
	return translateError(r.db.WithContext(ctx).Omit("Product").Create(item).Error)
}

func (r *ProjectProductRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	res := r.db.WithContext(ctx).Model(&entity.ProjectProduct{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ProjectProductRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.ProjectProduct{})
	if res.Error != nil {
		return translateError(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CopyVersion clones every product row of one version into another and
// returns the number of copied rows.
func (r *ProjectProductRepository) CopyVersion(ctx context.Context, fromVersionID, toVersionID string) (int, error) {
	var source []entity.ProjectProduct
	if err := r.db.WithContext(ctx).Where("area_version_id = ?", fromVersionID).Find(&source).Error; err != nil {
		return 0, translateError(err)
	}
	if len(source) == 0 {
		return 0, nil
	}

	now := time.Now()
	copies := make([]entity.ProjectProduct, 0, len(source))
	for _, p := range source {
		copies = append(copies, entity.ProjectProduct{
			ID:              uuid.New().String(),
			ProjectID:       p.ProjectID,
			ProductID:       p.ProductID,
			AreaVersionID:   toVersionID,
			Quantity:        p.Quantity,
			UnitPrice:       p.UnitPrice,
			DiscountPercent: p.DiscountPercent,
			Status:          p.Status,
			RoomLocation:    p.RoomLocation,
			MountingHeight:  p.MountingHeight,
			Notes:           p.Notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	if err := r.db.WithContext(ctx).Omit("Product").CreateInBatches(copies, 200).Error; err != nil {
		return 0, translateError(err)
	}
	return len(copies), nil
}

