package repository

import (
	"context"

	"github.com/fosslighting/fossapp/internal/fossapp/entity"
	"gorm.io/gorm"
)

type TileJobRepository struct {
	db *gorm.DB
}

func NewTileJobRepository(db *gorm.DB) *TileJobRepository {
	return &TileJobRepository{db: db}
}

func (r *TileJobRepository) Create(ctx context.Context, job *entity.TileJob) error {
	return translateError(r.db.WithContext(ctx).Create(job).Error)
}

func (r *TileJobRepository) FindForUser(ctx context.Context, userID, id string) (*entity.TileJob, error) {
	var job entity.TileJob
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&job).Error
	if err != nil {
		return nil, translateError(err)
	}
	return &job, nil
}

func (r *TileJobRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	return translateError(r.db.WithContext(ctx).Model(&entity.TileJob{}).Where("id = ?", id).Updates(fields).Error)
}
