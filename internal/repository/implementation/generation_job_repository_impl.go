package implementation

import (
	"context"
	"errors"
	"time"

	"burnt-beats-be/internal/entity"
	"burnt-beats-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GenerationJobRepositoryImpl struct {
	db *gorm.DB
}

func NewGenerationJobRepository(db *gorm.DB) contract.GenerationJobRepository {
	return &GenerationJobRepositoryImpl{db: db}
}

func (r *GenerationJobRepositoryImpl) Create(ctx context.Context, job *entity.GenerationJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *GenerationJobRepositoryImpl) Update(ctx context.Context, job *entity.GenerationJob) error {
	now := time.Now()
	job.UpdatedAt = &now
	return r.db.WithContext(ctx).Save(job).Error
}

func (r *GenerationJobRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*entity.GenerationJob, error) {
	var job entity.GenerationJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return &job, nil
}

func (r *GenerationJobRepositoryImpl) FindAllByOwner(ctx context.Context, ownerId uuid.UUID, limit, offset int) ([]*entity.GenerationJob, error) {
	var jobs []*entity.GenerationJob
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerId).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&jobs).Error
	return jobs, err
}
