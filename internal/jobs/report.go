package jobs

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
)

const (
	ReportKindProgress  = "progress"
	ReportKindCompleted = "completed"
	ReportKindFailed    = "failed"
)

// EngineReport is one asynchronous callback from the generation engine.
// Zero or more progress reports are followed by exactly one terminal report.
type EngineReport struct {
	Kind          string    `json:"kind"`
	JobId         uuid.UUID `json:"job_id"`
	Percent       int       `json:"percent,omitempty"`
	ResultRef     string    `json:"result_ref,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// ReportPublisher is the write side of the engine report pipeline. The
// engine client publishes here; the Bridge consumes on the other end, which
// keeps ordering and backpressure explicit instead of buried in callbacks.
type ReportPublisher struct {
	topicName string
	publisher message.Publisher
}

func NewReportPublisher(topicName string, publisher message.Publisher) *ReportPublisher {
	return &ReportPublisher{
		topicName: topicName,
		publisher: publisher,
	}
}

func (p *ReportPublisher) Publish(ctx context.Context, report EngineReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	return p.publisher.Publish(p.topicName, msg)
}
