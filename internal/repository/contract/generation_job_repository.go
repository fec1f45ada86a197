package contract

import (
	"context"

	"burnt-beats-be/internal/entity"

	"github.com/google/uuid"
)

type GenerationJobRepository interface {
	Create(ctx context.Context, job *entity.GenerationJob) error
	Update(ctx context.Context, job *entity.GenerationJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.GenerationJob, error)
	FindAllByOwner(ctx context.Context, ownerId uuid.UUID, limit, offset int) ([]*entity.GenerationJob, error)
}
