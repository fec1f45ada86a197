package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"burnt-beats-be/internal/dto"
	"burnt-beats-be/internal/entity"
	"burnt-beats-be/internal/pkg/logger"
	"burnt-beats-be/internal/repository/contract"
	"burnt-beats-be/pkg/events"
	pktNats "burnt-beats-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// Pusher delivers a payload to every live connection of one user.
// Implemented by the websocket hub; returns false when no connection is
// attached, in which case the update simply stays resident in the state
// machine for the next poll.
type Pusher interface {
	PushToUser(userId uuid.UUID, data []byte) bool
}

// SnapshotStore persists job snapshots across process restarts.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
}

// Bridge is the single place where engine reports become state machine
// transitions and (best-effort) live pushes. Push and pull stay observably
// equivalent because both read the snapshot the transition returned.
type Bridge struct {
	pubSub         *gochannel.GoChannel
	topicName      string
	machine        *StateMachine
	pusher         Pusher
	snapshots      SnapshotStore
	eventPublisher *pktNats.Publisher
	jobRepo        contract.GenerationJobRepository
	logger         logger.ILogger
}

func NewBridge(
	pubSub *gochannel.GoChannel,
	topicName string,
	machine *StateMachine,
	pusher Pusher,
	snapshots SnapshotStore,
	eventPublisher *pktNats.Publisher,
	jobRepo contract.GenerationJobRepository,
	log logger.ILogger,
) *Bridge {
	return &Bridge{
		pubSub:         pubSub,
		topicName:      topicName,
		machine:        machine,
		pusher:         pusher,
		snapshots:      snapshots,
		eventPublisher: eventPublisher,
		jobRepo:        jobRepo,
		logger:         log,
	}
}

// Run subscribes to the engine report topic and processes reports until the
// context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	messages, err := b.pubSub.Subscribe(ctx, b.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			b.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (b *Bridge) processMessage(ctx context.Context, msg *message.Message) {
	var report EngineReport
	if err := json.Unmarshal(msg.Payload, &report); err != nil {
		b.logger.Error("ProgressBridge", "Failed to unmarshal engine report", map[string]interface{}{"error": err.Error()})
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	var (
		snap    Snapshot
		changed bool
		err     error
	)

	switch report.Kind {
	case ReportKindProgress:
		snap, changed, err = b.machine.ReportProgress(report.JobId, report.Percent)
	case ReportKindCompleted:
		snap, err = b.machine.Complete(report.JobId, report.ResultRef)
		changed = err == nil
	case ReportKindFailed:
		snap, err = b.machine.Fail(report.JobId, report.FailureReason)
		changed = err == nil
	default:
		b.logger.Warn("ProgressBridge", "Unknown engine report kind", map[string]interface{}{"kind": report.Kind})
		msg.Ack()
		return
	}

	if err != nil {
		// Duplicate or late reports after a terminal state are expected under
		// at-least-once delivery; absorb them.
		if errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrJobNotFound) {
			b.logger.Info("ProgressBridge", "Absorbed stale engine report", map[string]interface{}{
				"job_id": report.JobId, "kind": report.Kind, "reason": err.Error(),
			})
			msg.Ack()
			return
		}
		b.logger.Error("ProgressBridge", "Failed to apply engine report", map[string]interface{}{
			"job_id": report.JobId, "error": err.Error(),
		})
		msg.Nack()
		return
	}

	if changed {
		b.pushUpdate(snap)
		b.saveSnapshot(ctx, snap)
	}

	if snap.Status.Terminal() {
		b.persistTerminal(ctx, snap)
		b.publishTerminalEvent(ctx, snap)
	}

	msg.Ack()
}

// pushUpdate delivers the snapshot to the owner's live connections, if any.
// No connection attached is not an error: the poll path serves the same state.
func (b *Bridge) pushUpdate(snap Snapshot) {
	payload := dto.JobUpdateMessage{
		Type:          dto.MsgJobUpdate,
		JobId:         snap.Id,
		Status:        string(snap.Status),
		Progress:      snap.Progress,
		ResultRef:     snap.ResultRef,
		FailureReason: snap.FailureReason,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}

	if b.pusher != nil && !b.pusher.PushToUser(snap.OwnerId, data) {
		b.logger.Debug("ProgressBridge", "Owner not connected, update left for polling", map[string]interface{}{
			"job_id": snap.Id,
		})
	}
}

func (b *Bridge) saveSnapshot(ctx context.Context, snap Snapshot) {
	if b.snapshots == nil {
		return
	}
	if err := b.snapshots.Save(ctx, snap); err != nil {
		b.logger.Warn("ProgressBridge", "Failed to save job snapshot", map[string]interface{}{
			"job_id": snap.Id, "error": err.Error(),
		})
	}
}

func (b *Bridge) persistTerminal(ctx context.Context, snap Snapshot) {
	if b.jobRepo == nil {
		return
	}
	now := time.Now()
	job := &entity.GenerationJob{
		Id:            snap.Id,
		OwnerId:       snap.OwnerId,
		SongId:        snap.SongId,
		Status:        string(snap.Status),
		Progress:      snap.Progress,
		ResultRef:     snap.ResultRef,
		FailureReason: snap.FailureReason,
		CreatedAt:     snap.CreatedAt,
		UpdatedAt:     &now,
	}
	if err := b.jobRepo.Update(ctx, job); err != nil {
		b.logger.Error("ProgressBridge", "Failed to persist terminal job", map[string]interface{}{
			"job_id": snap.Id, "error": err.Error(),
		})
	}
}

func (b *Bridge) publishTerminalEvent(ctx context.Context, snap Snapshot) {
	if b.eventPublisher == nil {
		return
	}

	eventType := "JOB_COMPLETED"
	if snap.Status == StatusFailed {
		eventType = "JOB_FAILED"
	}

	evt := events.BaseEvent{
		Type: eventType,
		Data: map[string]interface{}{
			"job_id":         snap.Id,
			"owner_id":       snap.OwnerId,
			"song_id":        snap.SongId,
			"progress":       snap.Progress,
			"result_ref":     snap.ResultRef,
			"failure_reason": snap.FailureReason,
		},
		OccurredAt: time.Now(),
	}
	if err := b.eventPublisher.Publish(ctx, evt); err != nil {
		b.logger.Warn("ProgressBridge", "Failed to publish terminal event", map[string]interface{}{
			"job_id": snap.Id, "error": err.Error(),
		})
	}
}
