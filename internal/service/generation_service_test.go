package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"burnt-beats-be/internal/admission"
	"burnt-beats-be/internal/dto"
	"burnt-beats-be/internal/entity"
	"burnt-beats-be/internal/jobs"
	"burnt-beats-be/internal/pkg/logger"
	"burnt-beats-be/internal/pkg/serverutils"
	"burnt-beats-be/pkg/engine"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeSongRepo struct {
	songs map[uuid.UUID]*entity.Song
}

func (f *fakeSongRepo) Create(ctx context.Context, song *entity.Song) error {
	f.songs[song.Id] = song
	return nil
}

func (f *fakeSongRepo) Update(ctx context.Context, song *entity.Song) error {
	f.songs[song.Id] = song
	return nil
}

func (f *fakeSongRepo) UpdateLyrics(ctx context.Context, songId uuid.UUID, lyrics string) error {
	if s, ok := f.songs[songId]; ok {
		s.Lyrics = lyrics
	}
	return nil
}

func (f *fakeSongRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.Song, error) {
	return f.songs[id], nil
}

func (f *fakeSongRepo) FindAllByUser(ctx context.Context, userId uuid.UUID) ([]*entity.Song, error) {
	var out []*entity.Song
	for _, s := range f.songs {
		if s.UserId == userId {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeJobRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entity.GenerationJob
}

func (f *fakeJobRepo) Create(ctx context.Context, job *entity.GenerationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[job.Id] = job
	return nil
}

func (f *fakeJobRepo) Update(ctx context.Context, job *entity.GenerationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[job.Id] = job
	return nil
}

func (f *fakeJobRepo) FindByID(ctx context.Context, id uuid.UUID) (*entity.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows[id], nil
}

func (f *fakeJobRepo) FindAllByOwner(ctx context.Context, ownerId uuid.UUID, limit, offset int) ([]*entity.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*entity.GenerationJob
	for _, j := range f.rows {
		if j.OwnerId == ownerId {
			out = append(out, j)
		}
	}
	return out, nil
}

type fakeEngine struct {
	mu      sync.Mutex
	invoked []uuid.UUID
}

func (f *fakeEngine) Invoke(ctx context.Context, jobId uuid.UUID, params engine.Parameters) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invoked = append(f.invoked, jobId)
}

func (f *fakeEngine) invocations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.invoked)
}

type generationFixture struct {
	service  IGenerationService
	machine  *jobs.StateMachine
	songRepo *fakeSongRepo
	jobRepo  *fakeJobRepo
	engine   *fakeEngine
	reports  <-chan jobs.EngineReport
}

func newGenerationFixture(t *testing.T, maxPerWindow int) *generationFixture {
	t.Helper()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { pubSub.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	messages, err := pubSub.Subscribe(ctx, "ENGINE_REPORT_TEST")
	require.NoError(t, err)

	reports := make(chan jobs.EngineReport, 16)
	go func() {
		for msg := range messages {
			var r jobs.EngineReport
			if err := json.Unmarshal(msg.Payload, &r); err == nil {
				reports <- r
			}
			msg.Ack()
		}
	}()

	machine := jobs.NewStateMachine(time.Minute, logger.NopLogger{})
	songRepo := &fakeSongRepo{songs: make(map[uuid.UUID]*entity.Song)}
	jobRepo := &fakeJobRepo{rows: make(map[uuid.UUID]*entity.GenerationJob)}
	eng := &fakeEngine{}

	svc := NewGenerationService(
		songRepo,
		jobRepo,
		machine,
		admission.NewLimiter(time.Minute, maxPerWindow, logger.NopLogger{}),
		eng,
		jobs.NewReportPublisher("ENGINE_REPORT_TEST", pubSub),
		nil,
		logger.NopLogger{},
	)

	return &generationFixture{
		service:  svc,
		machine:  machine,
		songRepo: songRepo,
		jobRepo:  jobRepo,
		engine:   eng,
		reports:  reports,
	}
}

func (f *generationFixture) addSong(owner uuid.UUID) *entity.Song {
	song := &entity.Song{
		Id:       uuid.New(),
		UserId:   owner,
		Title:    "Test Song",
		Lyrics:   "la la la",
		Genre:    "pop",
		Tempo:    120,
		Duration: 30,
	}
	f.songRepo.songs[song.Id] = song
	return song
}

func TestGenerationSubmitStartsJob(t *testing.T) {
	f := newGenerationFixture(t, 10)
	owner := uuid.New()
	song := f.addSong(owner)

	res, err := f.service.Submit(context.Background(), owner, &dto.SubmitGenerationRequest{SongId: song.Id})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, string(jobs.StatusRunning), res.Status)

	snap, ok := f.machine.Get(res.JobId)
	require.True(t, ok)
	require.Equal(t, jobs.StatusRunning, snap.Status)
	require.Equal(t, owner, snap.OwnerId)

	require.Equal(t, 1, f.engine.invocations())

	// The pending row was persisted before the engine was invoked.
	row, err := f.jobRepo.FindByID(context.Background(), res.JobId)
	require.NoError(t, err)
	require.NotNil(t, row)
}

func TestGenerationSubmitRejectsForeignSong(t *testing.T) {
	f := newGenerationFixture(t, 10)
	song := f.addSong(uuid.New())

	res, err := f.service.Submit(context.Background(), uuid.New(), &dto.SubmitGenerationRequest{SongId: song.Id})
	require.NoError(t, err)
	require.Nil(t, res)
	require.Zero(t, f.engine.invocations())
}

func TestGenerationSubmitRejectsEmptyLyrics(t *testing.T) {
	f := newGenerationFixture(t, 10)
	owner := uuid.New()
	song := f.addSong(owner)
	song.Lyrics = "   "

	_, err := f.service.Submit(context.Background(), owner, &dto.SubmitGenerationRequest{SongId: song.Id})
	var apiErr *serverutils.ApiError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, 400, apiErr.StatusCode)

	// No job was created and the engine was never called.
	require.Zero(t, f.engine.invocations())
	f.jobRepo.mu.Lock()
	require.Empty(t, f.jobRepo.rows)
	f.jobRepo.mu.Unlock()
}

func TestGenerationAdmissionLeavesNoTrace(t *testing.T) {
	f := newGenerationFixture(t, 1)
	owner := uuid.New()
	song := f.addSong(owner)

	_, err := f.service.Submit(context.Background(), owner, &dto.SubmitGenerationRequest{SongId: song.Id})
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), owner, &dto.SubmitGenerationRequest{SongId: song.Id})
	var rejected *admission.RejectedError
	require.True(t, errors.As(err, &rejected))
	require.Greater(t, rejected.RetryAfter, time.Duration(0))

	// The rejected attempt created nothing: one job, one engine call.
	require.Equal(t, 1, f.engine.invocations())
	f.jobRepo.mu.Lock()
	defer f.jobRepo.mu.Unlock()
	require.Len(t, f.jobRepo.rows, 1)
}

func TestGenerationCancelRoutesThroughReports(t *testing.T) {
	f := newGenerationFixture(t, 10)
	owner := uuid.New()
	song := f.addSong(owner)

	res, err := f.service.Submit(context.Background(), owner, &dto.SubmitGenerationRequest{SongId: song.Id})
	require.NoError(t, err)

	require.NoError(t, f.service.Cancel(context.Background(), owner, res.JobId))

	select {
	case r := <-f.reports:
		require.Equal(t, jobs.ReportKindFailed, r.Kind)
		require.Equal(t, res.JobId, r.JobId)
		require.Equal(t, "cancelled by owner", r.FailureReason)
	case <-time.After(time.Second):
		t.Fatal("cancel never reached the report pipeline")
	}
}

func TestGenerationCancelChecksOwnership(t *testing.T) {
	f := newGenerationFixture(t, 10)
	owner := uuid.New()
	song := f.addSong(owner)

	res, err := f.service.Submit(context.Background(), owner, &dto.SubmitGenerationRequest{SongId: song.Id})
	require.NoError(t, err)

	err = f.service.Cancel(context.Background(), uuid.New(), res.JobId)
	require.ErrorIs(t, err, jobs.ErrJobNotFound)

	err = f.service.Cancel(context.Background(), owner, uuid.New())
	require.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestGenerationCancelRejectsTerminalJob(t *testing.T) {
	f := newGenerationFixture(t, 10)
	owner := uuid.New()
	song := f.addSong(owner)

	res, err := f.service.Submit(context.Background(), owner, &dto.SubmitGenerationRequest{SongId: song.Id})
	require.NoError(t, err)

	_, err = f.machine.Complete(res.JobId, "/downloads/done.mid")
	require.NoError(t, err)

	err = f.service.Cancel(context.Background(), owner, res.JobId)
	require.ErrorIs(t, err, jobs.ErrInvalidTransition)
}

func TestGenerationStatusFallsBackToPersistedRow(t *testing.T) {
	f := newGenerationFixture(t, 10)
	owner := uuid.New()

	// A job known only to the database, as after a process restart.
	jobId := uuid.New()
	now := time.Now()
	f.jobRepo.rows[jobId] = &entity.GenerationJob{
		Id:        jobId,
		OwnerId:   owner,
		Status:    string(jobs.StatusCompleted),
		Progress:  100,
		ResultRef: "/downloads/old.mid",
		CreatedAt: now,
		UpdatedAt: &now,
	}

	status, err := f.service.Status(context.Background(), jobId)
	require.NoError(t, err)
	require.Equal(t, string(jobs.StatusCompleted), status.Status)
	require.Equal(t, "/downloads/old.mid", status.ResultRef)

	_, err = f.service.Status(context.Background(), uuid.New())
	require.ErrorIs(t, err, jobs.ErrJobNotFound)
}
