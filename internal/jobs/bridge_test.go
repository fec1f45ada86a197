package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"burnt-beats-be/internal/dto"
	"burnt-beats-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakePusher struct {
	mu     sync.Mutex
	pushed map[uuid.UUID][][]byte
}

func newFakePusher() *fakePusher {
	return &fakePusher{pushed: make(map[uuid.UUID][][]byte)}
}

func (f *fakePusher) PushToUser(userId uuid.UUID, data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed[userId] = append(f.pushed[userId], data)
	return true
}

func (f *fakePusher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, msgs := range f.pushed {
		n += len(msgs)
	}
	return n
}

func (f *fakePusher) messages(userId uuid.UUID) []dto.JobUpdateMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]dto.JobUpdateMessage, 0, len(f.pushed[userId]))
	for _, raw := range f.pushed[userId] {
		var m dto.JobUpdateMessage
		if err := json.Unmarshal(raw, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

type fakeSnapshotStore struct {
	mu    sync.Mutex
	saved []Snapshot
}

func (f *fakeSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, snap)
	return nil
}

func newTestBridge(t *testing.T) (*StateMachine, *ReportPublisher, *fakePusher, *fakeSnapshotStore) {
	t.Helper()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { pubSub.Close() })

	machine := newTestMachine()
	pusher := newFakePusher()
	store := &fakeSnapshotStore{}

	bridge := NewBridge(pubSub, "ENGINE_REPORT_TEST", machine, pusher, store, nil, nil, logger.NopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, bridge.Run(ctx))

	return machine, NewReportPublisher("ENGINE_REPORT_TEST", pubSub), pusher, store
}

func TestBridgeProgressReachesPushAndPoll(t *testing.T) {
	machine, reports, pusher, store := newTestBridge(t)

	owner := uuid.New()
	snap := machine.Create(owner, uuid.New())
	_, err := machine.Start(snap.Id)
	require.NoError(t, err)

	require.NoError(t, reports.Publish(context.Background(), EngineReport{
		Kind: ReportKindProgress, JobId: snap.Id, Percent: 55,
	}))

	require.Eventually(t, func() bool {
		got, ok := machine.Get(snap.Id)
		return ok && got.Progress == 55
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(pusher.messages(owner)) >= 1
	}, time.Second, 5*time.Millisecond)

	msg := pusher.messages(owner)[0]
	require.Equal(t, dto.MsgJobUpdate, msg.Type)
	require.Equal(t, snap.Id, msg.JobId)
	require.Equal(t, 55, msg.Progress)
	require.Equal(t, string(StatusRunning), msg.Status)

	// The push and the poll read the same state.
	polled, ok := machine.Get(snap.Id)
	require.True(t, ok)
	require.Equal(t, msg.Progress, polled.Progress)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.NotEmpty(t, store.saved)
}

func TestBridgeCompletionIsTerminal(t *testing.T) {
	machine, reports, pusher, _ := newTestBridge(t)

	owner := uuid.New()
	snap := machine.Create(owner, uuid.New())
	_, err := machine.Start(snap.Id)
	require.NoError(t, err)

	require.NoError(t, reports.Publish(context.Background(), EngineReport{
		Kind: ReportKindCompleted, JobId: snap.Id, ResultRef: "/downloads/a.mid",
	}))

	require.Eventually(t, func() bool {
		got, ok := machine.Get(snap.Id)
		return ok && got.Status == StatusCompleted
	}, time.Second, 5*time.Millisecond)

	// A late progress report after completion is absorbed silently.
	require.NoError(t, reports.Publish(context.Background(), EngineReport{
		Kind: ReportKindProgress, JobId: snap.Id, Percent: 10,
	}))

	// Give the absorbed report time to flow through, then check nothing moved.
	time.Sleep(50 * time.Millisecond)
	got, ok := machine.Get(snap.Id)
	require.True(t, ok)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, 100, got.Progress)
	require.Equal(t, "/downloads/a.mid", got.ResultRef)

	// Exactly one push for the single applied transition.
	require.Len(t, pusher.messages(owner), 1)
}

func TestBridgeFailureCarriesReason(t *testing.T) {
	machine, reports, pusher, _ := newTestBridge(t)

	owner := uuid.New()
	snap := machine.Create(owner, uuid.New())
	_, err := machine.Start(snap.Id)
	require.NoError(t, err)

	require.NoError(t, reports.Publish(context.Background(), EngineReport{
		Kind: ReportKindFailed, JobId: snap.Id, FailureReason: "cancelled by owner",
	}))

	require.Eventually(t, func() bool {
		msgs := pusher.messages(owner)
		return len(msgs) == 1 && msgs[0].Status == string(StatusFailed)
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, "cancelled by owner", pusher.messages(owner)[0].FailureReason)
}

func TestBridgeIgnoresUnknownJob(t *testing.T) {
	machine, reports, pusher, _ := newTestBridge(t)

	require.NoError(t, reports.Publish(context.Background(), EngineReport{
		Kind: ReportKindProgress, JobId: uuid.New(), Percent: 50,
	}))

	time.Sleep(50 * time.Millisecond)
	require.Zero(t, pusher.total())
	_ = machine
}
