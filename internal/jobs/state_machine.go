package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"burnt-beats-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job transition")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Snapshot is the read-only view of a job handed to callers. Both the
// polling endpoint and the live push are built from the same snapshot, so
// the two delivery paths can never diverge.
type Snapshot struct {
	Id            uuid.UUID `json:"id"`
	OwnerId       uuid.UUID `json:"owner_id"`
	SongId        uuid.UUID `json:"song_id"`
	Status        Status    `json:"status"`
	Progress      int       `json:"progress"`
	ResultRef     string    `json:"result_ref,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type record struct {
	mu   sync.Mutex
	snap Snapshot
}

// StateMachine tracks every in-flight job. Transitions are serialized per
// job; jobs that reach a terminal state move to a retention cache where they
// stay readable for polling clients until eviction.
//
// The single guarantee everything here protects: observable status and
// progress never decrease, and terminal state is never revisited.
type StateMachine struct {
	mu      sync.RWMutex
	live    map[uuid.UUID]*record
	retired *cache.Cache
	logger  logger.ILogger
	now     func() time.Time
}

func NewStateMachine(retention time.Duration, log logger.ILogger) *StateMachine {
	return &StateMachine{
		live:    make(map[uuid.UUID]*record),
		retired: cache.New(retention, retention/2),
		logger:  log,
		now:     time.Now,
	}
}

// Create inserts a Pending job and returns its initial snapshot.
func (sm *StateMachine) Create(ownerId, songId uuid.UUID) Snapshot {
	now := sm.now()
	snap := Snapshot{
		Id:        uuid.New(),
		OwnerId:   ownerId,
		SongId:    songId,
		Status:    StatusPending,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	sm.mu.Lock()
	sm.live[snap.Id] = &record{snap: snap}
	sm.mu.Unlock()

	sm.logger.Info("JobStateMachine", "Job created", map[string]interface{}{
		"job_id": snap.Id, "owner_id": ownerId,
	})
	return snap
}

// Start transitions Pending -> Running.
func (sm *StateMachine) Start(id uuid.UUID) (Snapshot, error) {
	return sm.transition(id, func(snap *Snapshot) error {
		if snap.Status != StatusPending {
			return fmt.Errorf("%w: start from %s", ErrInvalidTransition, snap.Status)
		}
		snap.Status = StatusRunning
		return nil
	})
}

// ReportProgress is legal only while Running. A percent at or below the
// current value is absorbed as a no-op so at-least-once engine redelivery is
// idempotent; changed reports whether observable state moved.
func (sm *StateMachine) ReportProgress(id uuid.UUID, percent int) (Snapshot, bool, error) {
	changed := false
	snap, err := sm.transition(id, func(snap *Snapshot) error {
		if snap.Status != StatusRunning {
			return fmt.Errorf("%w: progress report in %s", ErrInvalidTransition, snap.Status)
		}
		if percent > 100 {
			percent = 100
		}
		if percent <= snap.Progress {
			return errNoop
		}
		snap.Progress = percent
		changed = true
		return nil
	})
	if errors.Is(err, errNoop) {
		return snap, false, nil
	}
	return snap, changed, err
}

// Complete transitions Running -> Completed and forces progress to 100.
func (sm *StateMachine) Complete(id uuid.UUID, resultRef string) (Snapshot, error) {
	return sm.transition(id, func(snap *Snapshot) error {
		if snap.Status != StatusRunning {
			return fmt.Errorf("%w: complete from %s", ErrInvalidTransition, snap.Status)
		}
		snap.Status = StatusCompleted
		snap.Progress = 100
		snap.ResultRef = resultRef
		return nil
	})
}

// Fail transitions Running -> Failed, leaving progress at its last value.
func (sm *StateMachine) Fail(id uuid.UUID, reason string) (Snapshot, error) {
	return sm.transition(id, func(snap *Snapshot) error {
		if snap.Status != StatusRunning {
			return fmt.Errorf("%w: fail from %s", ErrInvalidTransition, snap.Status)
		}
		snap.Status = StatusFailed
		snap.FailureReason = reason
		return nil
	})
}

// Get is safe from any state, including terminal jobs still inside the
// retention window.
func (sm *StateMachine) Get(id uuid.UUID) (Snapshot, bool) {
	sm.mu.RLock()
	rec, ok := sm.live[id]
	sm.mu.RUnlock()

	if ok {
		rec.mu.Lock()
		snap := rec.snap
		rec.mu.Unlock()
		return snap, true
	}

	if x, found := sm.retired.Get(id.String()); found {
		return x.(Snapshot), true
	}
	return Snapshot{}, false
}

// errNoop signals an accepted-but-ignored mutation inside transition.
var errNoop = errors.New("noop")

func (sm *StateMachine) transition(id uuid.UUID, mutate func(*Snapshot) error) (Snapshot, error) {
	sm.mu.RLock()
	rec, ok := sm.live[id]
	sm.mu.RUnlock()

	if !ok {
		// A retired job exists but permits no transitions.
		if x, found := sm.retired.Get(id.String()); found {
			snap := x.(Snapshot)
			return snap, fmt.Errorf("%w: job is %s", ErrInvalidTransition, snap.Status)
		}
		return Snapshot{}, ErrJobNotFound
	}

	rec.mu.Lock()
	if err := mutate(&rec.snap); err != nil {
		snap := rec.snap
		rec.mu.Unlock()
		return snap, err
	}
	rec.snap.UpdatedAt = sm.now()
	snap := rec.snap
	rec.mu.Unlock()

	if snap.Status.Terminal() {
		sm.retire(snap)
	}
	return snap, nil
}

// retire moves a terminal job from the live map into the retention cache.
// The cache is written first so concurrent Gets never see a gap.
func (sm *StateMachine) retire(snap Snapshot) {
	sm.retired.Set(snap.Id.String(), snap, cache.DefaultExpiration)

	sm.mu.Lock()
	delete(sm.live, snap.Id)
	sm.mu.Unlock()

	sm.logger.Info("JobStateMachine", "Job retired", map[string]interface{}{
		"job_id": snap.Id, "status": snap.Status, "progress": snap.Progress,
	})
}
