package dto

import (
	"time"

	"github.com/google/uuid"
)

type CreateSongRequest struct {
	Title        string                 `json:"title" validate:"required"`
	Lyrics       string                 `json:"lyrics"`
	Genre        string                 `json:"genre" validate:"required,oneof=pop rock jazz electronic classical hip-hop country r&b"`
	Tempo        int                    `json:"tempo" validate:"omitempty,min=60,max=200"`
	KeySignature string                 `json:"key"`
	Duration     int                    `json:"duration" validate:"omitempty,min=10,max=300"`
	Mood         string                 `json:"mood"`
	StyleOptions map[string]interface{} `json:"style_options"`
}

type CreateSongResponse struct {
	Id uuid.UUID `json:"id"`
}

type ShowSongResponse struct {
	Id           uuid.UUID              `json:"id"`
	UserId       uuid.UUID              `json:"user_id"`
	Title        string                 `json:"title"`
	Lyrics       string                 `json:"lyrics"`
	Genre        string                 `json:"genre"`
	Tempo        int                    `json:"tempo"`
	KeySignature string                 `json:"key"`
	Duration     int                    `json:"duration"`
	Mood         string                 `json:"mood"`
	StyleOptions map[string]interface{} `json:"style_options,omitempty"`
	AudioPath    string                 `json:"audio_path,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    *time.Time             `json:"updated_at"`
}

type UpdateSongRequest struct {
	Id           uuid.UUID
	Title        string `json:"title" validate:"required"`
	Lyrics       string `json:"lyrics"`
	Genre        string `json:"genre" validate:"required,oneof=pop rock jazz electronic classical hip-hop country r&b"`
	Tempo        int    `json:"tempo" validate:"omitempty,min=60,max=200"`
	KeySignature string `json:"key"`
	Duration     int    `json:"duration" validate:"omitempty,min=10,max=300"`
	Mood         string `json:"mood"`
}

type UpdateSongResponse struct {
	Id uuid.UUID `json:"id"`
}

type ListSongsResponse struct {
	Songs []ShowSongResponse `json:"songs"`
}
