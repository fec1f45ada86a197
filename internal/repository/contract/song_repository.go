package contract

import (
	"context"

	"burnt-beats-be/internal/entity"

	"github.com/google/uuid"
)

type SongRepository interface {
	Create(ctx context.Context, song *entity.Song) error
	Update(ctx context.Context, song *entity.Song) error
	// UpdateLyrics writes only the lyric snapshot, used when a collaboration
	// session flushes its final state back to the row.
	UpdateLyrics(ctx context.Context, id uuid.UUID, lyrics string) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Song, error)
	FindAllByUser(ctx context.Context, userId uuid.UUID) ([]*entity.Song, error)
}
