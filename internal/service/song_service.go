package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"burnt-beats-be/internal/dto"
	"burnt-beats-be/internal/entity"
	"burnt-beats-be/internal/repository/contract"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ISongService interface {
	Create(ctx context.Context, userId uuid.UUID, req *dto.CreateSongRequest) (*dto.CreateSongResponse, error)
	Show(ctx context.Context, id uuid.UUID) (*dto.ShowSongResponse, error)
	List(ctx context.Context, userId uuid.UUID) (*dto.ListSongsResponse, error)
	Update(ctx context.Context, userId uuid.UUID, req *dto.UpdateSongRequest) (*dto.UpdateSongResponse, error)

	// Session seeding and teardown for the collaboration registry
	// (collab.StateLoader / collab.StateFlusher).
	LoadResourceState(ctx context.Context, songId uuid.UUID) (string, error)
	SaveResourceState(ctx context.Context, songId uuid.UUID, lyrics string) error
}

type songService struct {
	songRepo contract.SongRepository
}

func NewSongService(songRepo contract.SongRepository) ISongService {
	return &songService{
		songRepo: songRepo,
	}
}

func (s *songService) Create(ctx context.Context, userId uuid.UUID, req *dto.CreateSongRequest) (*dto.CreateSongResponse, error) {
	var styleOptions datatypes.JSON
	if req.StyleOptions != nil {
		raw, err := json.Marshal(req.StyleOptions)
		if err != nil {
			return nil, err
		}
		styleOptions = datatypes.JSON(raw)
	}

	song := entity.Song{
		Id:           uuid.New(),
		UserId:       userId,
		Title:        req.Title,
		Lyrics:       req.Lyrics,
		Genre:        req.Genre,
		Tempo:        defaultInt(req.Tempo, 120),
		KeySignature: defaultString(req.KeySignature, "C"),
		Duration:     defaultInt(req.Duration, 30),
		Mood:         defaultString(req.Mood, "happy"),
		StyleOptions: styleOptions,
		CreatedAt:    time.Now(),
	}

	if err := s.songRepo.Create(ctx, &song); err != nil {
		return nil, err
	}

	return &dto.CreateSongResponse{Id: song.Id}, nil
}

func (s *songService) Show(ctx context.Context, id uuid.UUID) (*dto.ShowSongResponse, error) {
	song, err := s.songRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if song == nil {
		return nil, nil // Not found
	}
	return mapSongResponse(song), nil
}

func (s *songService) List(ctx context.Context, userId uuid.UUID) (*dto.ListSongsResponse, error) {
	songs, err := s.songRepo.FindAllByUser(ctx, userId)
	if err != nil {
		return nil, err
	}

	res := &dto.ListSongsResponse{Songs: make([]dto.ShowSongResponse, 0, len(songs))}
	for _, song := range songs {
		res.Songs = append(res.Songs, *mapSongResponse(song))
	}
	return res, nil
}

func (s *songService) Update(ctx context.Context, userId uuid.UUID, req *dto.UpdateSongRequest) (*dto.UpdateSongResponse, error) {
	song, err := s.songRepo.FindByID(ctx, req.Id)
	if err != nil {
		return nil, err
	}
	if song == nil || song.UserId != userId {
		return nil, nil // Not found (or not owned)
	}

	song.Title = req.Title
	song.Lyrics = req.Lyrics
	song.Genre = req.Genre
	song.Tempo = defaultInt(req.Tempo, song.Tempo)
	song.KeySignature = defaultString(req.KeySignature, song.KeySignature)
	song.Duration = defaultInt(req.Duration, song.Duration)
	song.Mood = defaultString(req.Mood, song.Mood)

	if err := s.songRepo.Update(ctx, song); err != nil {
		return nil, err
	}

	return &dto.UpdateSongResponse{Id: song.Id}, nil
}

func (s *songService) LoadResourceState(ctx context.Context, songId uuid.UUID) (string, error) {
	song, err := s.songRepo.FindByID(ctx, songId)
	if err != nil {
		return "", err
	}
	if song == nil {
		return "", fmt.Errorf("song %s not found", songId)
	}
	return song.Lyrics, nil
}

func (s *songService) SaveResourceState(ctx context.Context, songId uuid.UUID, lyrics string) error {
	return s.songRepo.UpdateLyrics(ctx, songId, lyrics)
}

func mapSongResponse(song *entity.Song) *dto.ShowSongResponse {
	var styleOptions map[string]interface{}
	if len(song.StyleOptions) > 0 {
		_ = json.Unmarshal(song.StyleOptions, &styleOptions)
	}

	return &dto.ShowSongResponse{
		Id:           song.Id,
		UserId:       song.UserId,
		Title:        song.Title,
		Lyrics:       song.Lyrics,
		Genre:        song.Genre,
		Tempo:        song.Tempo,
		KeySignature: song.KeySignature,
		Duration:     song.Duration,
		Mood:         song.Mood,
		StyleOptions: styleOptions,
		AudioPath:    song.AudioPath,
		CreatedAt:    song.CreatedAt,
		UpdatedAt:    song.UpdatedAt,
	}
}

func defaultInt(value, fallback int) int {
	if value == 0 {
		return fallback
	}
	return value
}

func defaultString(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
