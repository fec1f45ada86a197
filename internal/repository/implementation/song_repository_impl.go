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

type SongRepositoryImpl struct {
	db *gorm.DB
}

func NewSongRepository(db *gorm.DB) contract.SongRepository {
	return &SongRepositoryImpl{db: db}
}

func (r *SongRepositoryImpl) Create(ctx context.Context, song *entity.Song) error {
	return r.db.WithContext(ctx).Create(song).Error
}

func (r *SongRepositoryImpl) Update(ctx context.Context, song *entity.Song) error {
	now := time.Now()
	song.UpdatedAt = &now
	return r.db.WithContext(ctx).Save(song).Error
}

func (r *SongRepositoryImpl) UpdateLyrics(ctx context.Context, id uuid.UUID, lyrics string) error {
	return r.db.WithContext(ctx).
		Model(&entity.Song{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"lyrics":     lyrics,
			"updated_at": time.Now(),
		}).Error
}

func (r *SongRepositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*entity.Song, error) {
	var song entity.Song
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&song).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return &song, nil
}

func (r *SongRepositoryImpl) FindAllByUser(ctx context.Context, userId uuid.UUID) ([]*entity.Song, error) {
	var songs []*entity.Song
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("created_at DESC").
		Find(&songs).Error
	return songs, err
}
