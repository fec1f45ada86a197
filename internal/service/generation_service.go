package service

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"burnt-beats-be/internal/admission"
	"burnt-beats-be/internal/dto"
	"burnt-beats-be/internal/entity"
	"burnt-beats-be/internal/jobs"
	"burnt-beats-be/internal/pkg/logger"
	"burnt-beats-be/internal/pkg/serverutils"
	"burnt-beats-be/internal/repository/contract"
	"burnt-beats-be/internal/repository/redisstore"
	"burnt-beats-be/pkg/engine"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// GenerationEngine is the consumed boundary to the external engine. The call
// must return immediately; all outcomes arrive via the report pipeline.
type GenerationEngine interface {
	Invoke(ctx context.Context, jobId uuid.UUID, params engine.Parameters)
}

type IGenerationService interface {
	Submit(ctx context.Context, userId uuid.UUID, req *dto.SubmitGenerationRequest) (*dto.SubmitGenerationResponse, error)
	Status(ctx context.Context, jobId uuid.UUID) (*dto.JobStatusResponse, error)
	Cancel(ctx context.Context, userId uuid.UUID, jobId uuid.UUID) error
	History(ctx context.Context, userId uuid.UUID, limit, offset int) (*dto.JobHistoryResponse, error)
}

type generationService struct {
	songRepo  contract.SongRepository
	jobRepo   contract.GenerationJobRepository
	machine   *jobs.StateMachine
	limiter   *admission.Limiter
	engine    GenerationEngine
	reports   *jobs.ReportPublisher
	snapshots *redisstore.JobSnapshotStore
	logger    logger.ILogger
}

func NewGenerationService(
	songRepo contract.SongRepository,
	jobRepo contract.GenerationJobRepository,
	machine *jobs.StateMachine,
	limiter *admission.Limiter,
	eng GenerationEngine,
	reports *jobs.ReportPublisher,
	snapshots *redisstore.JobSnapshotStore,
	log logger.ILogger,
) IGenerationService {
	return &generationService{
		songRepo:  songRepo,
		jobRepo:   jobRepo,
		machine:   machine,
		limiter:   limiter,
		engine:    eng,
		reports:   reports,
		snapshots: snapshots,
		logger:    log,
	}
}

func (s *generationService) Submit(ctx context.Context, userId uuid.UUID, req *dto.SubmitGenerationRequest) (*dto.SubmitGenerationResponse, error) {
	// Admission first: a rejected caller must not leave any job state behind.
	if err := s.limiter.TryAdmit(userId.String()); err != nil {
		return nil, err
	}

	song, err := s.songRepo.FindByID(ctx, req.SongId)
	if err != nil {
		return nil, err
	}
	if song == nil || song.UserId != userId {
		return nil, nil // Not found (or not owned)
	}

	// The engine rejects lyric-less requests anyway; fail fast here instead
	// of creating a job that is doomed to come back failed.
	if strings.TrimSpace(song.Lyrics) == "" {
		return nil, serverutils.NewApiError(http.StatusBadRequest, "Song has no lyrics to generate from")
	}

	snap := s.machine.Create(userId, song.Id)

	params := engine.Parameters{
		Title:    song.Title,
		Lyrics:   song.Lyrics,
		Genre:    song.Genre,
		Tempo:    song.Tempo,
		Key:      song.KeySignature,
		Duration: song.Duration,
		Mood:     song.Mood,
	}
	if len(song.StyleOptions) > 0 {
		_ = json.Unmarshal(song.StyleOptions, &params.StyleOptions)
	}

	paramsJSON, _ := json.Marshal(params)
	job := &entity.GenerationJob{
		Id:         snap.Id,
		OwnerId:    userId,
		SongId:     song.Id,
		Status:     string(snap.Status),
		Progress:   snap.Progress,
		Parameters: datatypes.JSON(paramsJSON),
		CreatedAt:  snap.CreatedAt,
	}
	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, err
	}

	snap, err = s.machine.Start(snap.Id)
	if err != nil {
		return nil, err
	}

	// The engine outlives this request; detach it from the request context.
	s.engine.Invoke(context.Background(), snap.Id, params)

	s.logger.Info("GenerationService", "Job submitted", map[string]interface{}{
		"job_id": snap.Id, "song_id": song.Id, "owner_id": userId,
	})

	return &dto.SubmitGenerationResponse{
		JobId:  snap.Id,
		Status: string(snap.Status),
	}, nil
}

// Status serves the polling read. It never errors for a job that exists in
// any state; the in-memory machine is authoritative, with the redis snapshot
// and the persisted row as fallbacks after eviction or restart.
func (s *generationService) Status(ctx context.Context, jobId uuid.UUID) (*dto.JobStatusResponse, error) {
	if snap, ok := s.machine.Get(jobId); ok {
		return mapJobStatus(snap), nil
	}

	if s.snapshots != nil {
		snap, err := s.snapshots.Load(ctx, jobId)
		if err != nil {
			s.logger.Warn("GenerationService", "Snapshot store read failed", map[string]interface{}{
				"job_id": jobId, "error": err.Error(),
			})
		} else if snap != nil {
			return mapJobStatus(*snap), nil
		}
	}

	job, err := s.jobRepo.FindByID(ctx, jobId)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, jobs.ErrJobNotFound
	}
	return mapJobRow(job), nil
}

// Cancel models cancellation as the Running -> Failed transition, routed
// through the report pipeline so the bridge remains the only writer.
func (s *generationService) Cancel(ctx context.Context, userId uuid.UUID, jobId uuid.UUID) error {
	snap, ok := s.machine.Get(jobId)
	if !ok {
		return jobs.ErrJobNotFound
	}
	if snap.OwnerId != userId {
		return jobs.ErrJobNotFound
	}
	if snap.Status.Terminal() {
		return jobs.ErrInvalidTransition
	}

	return s.reports.Publish(ctx, jobs.EngineReport{
		Kind:          jobs.ReportKindFailed,
		JobId:         jobId,
		FailureReason: "cancelled by owner",
	})
}

func (s *generationService) History(ctx context.Context, userId uuid.UUID, limit, offset int) (*dto.JobHistoryResponse, error) {
	rows, err := s.jobRepo.FindAllByOwner(ctx, userId, limit, offset)
	if err != nil {
		return nil, err
	}

	res := &dto.JobHistoryResponse{Jobs: make([]dto.JobStatusResponse, 0, len(rows))}
	for _, row := range rows {
		// The live machine view wins over a stale persisted row.
		if snap, ok := s.machine.Get(row.Id); ok {
			res.Jobs = append(res.Jobs, *mapJobStatus(snap))
			continue
		}
		res.Jobs = append(res.Jobs, *mapJobRow(row))
	}
	return res, nil
}

func mapJobStatus(snap jobs.Snapshot) *dto.JobStatusResponse {
	return &dto.JobStatusResponse{
		JobId:         snap.Id,
		Status:        string(snap.Status),
		Progress:      snap.Progress,
		ResultRef:     snap.ResultRef,
		FailureReason: snap.FailureReason,
		CreatedAt:     snap.CreatedAt,
		UpdatedAt:     snap.UpdatedAt,
	}
}

func mapJobRow(job *entity.GenerationJob) *dto.JobStatusResponse {
	updatedAt := job.CreatedAt
	if job.UpdatedAt != nil {
		updatedAt = *job.UpdatedAt
	}
	return &dto.JobStatusResponse{
		JobId:         job.Id,
		Status:        job.Status,
		Progress:      job.Progress,
		ResultRef:     job.ResultRef,
		FailureReason: job.FailureReason,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     updatedAt,
	}
}
