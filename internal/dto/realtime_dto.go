package dto

import (
	"time"

	"github.com/google/uuid"
)

// Websocket message kinds. Every frame carries a "type" discriminant; the
// handler validates and decodes into the matching struct before any core
// component sees it.
const (
	MsgJoin            = "join"
	MsgLeave           = "leave"
	MsgEdit            = "edit"
	MsgProgressRequest = "progress_request"

	MsgSessionState      = "session_state"
	MsgParticipantJoined = "participant_joined"
	MsgParticipantLeft   = "participant_left"
	MsgEditBroadcast     = "edit"
	MsgJobUpdate         = "job_update"
	MsgError             = "error"
)

// RealtimeEnvelope is decoded first to pick the concrete message type.
type RealtimeEnvelope struct {
	Type string `json:"type"`
}

type JoinMessage struct {
	Type        string    `json:"type"`
	SongId      uuid.UUID `json:"song_id" validate:"required"`
	DisplayName string    `json:"display_name"`
}

type LeaveMessage struct {
	Type   string    `json:"type"`
	SongId uuid.UUID `json:"song_id" validate:"required"`
}

type EditMessage struct {
	Type   string    `json:"type"`
	SongId uuid.UUID `json:"song_id" validate:"required"`
	Lyrics string    `json:"lyrics"`
}

type ProgressRequestMessage struct {
	Type  string    `json:"type"`
	JobId uuid.UUID `json:"job_id" validate:"required"`
}

type ParticipantInfo struct {
	ConnectionId uuid.UUID `json:"connection_id"`
	UserId       uuid.UUID `json:"user_id"`
	DisplayName  string    `json:"display_name"`
}

type SessionStateMessage struct {
	Type         string            `json:"type"`
	SongId       uuid.UUID         `json:"song_id"`
	Lyrics       string            `json:"lyrics"`
	Participants []ParticipantInfo `json:"participants"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type ParticipantEventMessage struct {
	Type        string    `json:"type"`
	SongId      uuid.UUID `json:"song_id"`
	UserId      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
}

type EditBroadcastMessage struct {
	Type      string    `json:"type"`
	SongId    uuid.UUID `json:"song_id"`
	Lyrics    string    `json:"lyrics"`
	AuthorId  uuid.UUID `json:"author_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

type JobUpdateMessage struct {
	Type          string    `json:"type"`
	JobId         uuid.UUID `json:"job_id"`
	Status        string    `json:"status"`
	Progress      int       `json:"progress"`
	ResultRef     string    `json:"result_ref,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
