package websocket

import (
	"context"
	"encoding/json"
	"os"

	"burnt-beats-be/internal/collab"
	"burnt-beats-be/internal/config"
	"burnt-beats-be/internal/dto"
	"burnt-beats-be/internal/jobs"
	"burnt-beats-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RealtimeHandler owns the websocket endpoint and routes the tagged message
// union to the collaboration registry and job state machine. Everything past
// this point handles well-typed records only.
type RealtimeHandler struct {
	hub         *Hub
	registry    *collab.Registry
	broadcaster *collab.Broadcaster
	machine     *jobs.StateMachine
	cfg         config.RealtimeConfig
	logger      logger.ILogger
}

func NewRealtimeHandler(
	hub *Hub,
	registry *collab.Registry,
	broadcaster *collab.Broadcaster,
	machine *jobs.StateMachine,
	cfg config.RealtimeConfig,
	log logger.ILogger,
) *RealtimeHandler {
	return &RealtimeHandler{
		hub:         hub,
		registry:    registry,
		broadcaster: broadcaster,
		machine:     machine,
		cfg:         cfg,
		logger:      log,
	}
}

func (h *RealtimeHandler) RegisterRoutes(r fiber.Router) {
	g := r.Group("/realtime/v1")
	g.Use("/ws", h.authenticateUpgrade)
	g.Get("/ws", websocket.New(h.handleConnection))
}

// authenticateUpgrade resolves the caller identity before the protocol
// switch. Browsers cannot set headers on websocket requests, so the token
// comes via query param with the Authorization header as fallback.
func (h *RealtimeHandler) authenticateUpgrade(ctx *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}

	tokenStr := ctx.Query("token")
	if tokenStr == "" {
		authHeader := ctx.Get("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		}
	}
	if tokenStr == "" {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Missing token"})
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.ErrUnauthorized
		}
		return []byte(os.Getenv("JWT_SECRET")), nil
	})
	if err != nil || !token.Valid {
		h.logger.Warn("RealtimeHandler", "Invalid token in WS handshake", map[string]interface{}{"error": err})
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid token"})
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid claims"})
	}
	userIdStr, ok := claims["user_id"].(string)
	if !ok {
		return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Token missing user_id"})
	}

	ctx.Locals("user_id", userIdStr)
	if name, ok := claims["name"].(string); ok {
		ctx.Locals("display_name", name)
	}
	return ctx.Next()
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	userIdStr, _ := conn.Locals("user_id").(string)
	userId, err := uuid.Parse(userIdStr)
	if err != nil {
		conn.Close()
		return
	}
	displayName, _ := conn.Locals("display_name").(string)

	client := NewClient(h.hub, conn, userId, displayName, h.cfg)
	h.hub.Register(client)

	go client.WritePump()
	client.ReadPump(h) // runs in the handler goroutine
}

// Dispatch implements MessageDispatcher. A malformed or panicking message
// only ever takes down its own connection's handling, never the registries.
func (h *RealtimeHandler) Dispatch(client *Client, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("RealtimeHandler", "Panic in message handler", map[string]interface{}{
				"connection_id": client.Id, "panic": r,
			})
		}
	}()

	var envelope dto.RealtimeEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		h.sendError(client, "malformed message")
		return
	}

	switch envelope.Type {
	case dto.MsgJoin:
		h.handleJoin(client, data)
	case dto.MsgLeave:
		h.handleLeave(client, data)
	case dto.MsgEdit:
		h.handleEdit(client, data)
	case dto.MsgProgressRequest:
		h.handleProgressRequest(client, data)
	default:
		h.sendError(client, "unknown message type: "+envelope.Type)
	}
}

func (h *RealtimeHandler) handleJoin(client *Client, data []byte) {
	var msg dto.JoinMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.SongId == uuid.Nil {
		h.sendError(client, "invalid join message")
		return
	}

	displayName := msg.DisplayName
	if displayName == "" {
		displayName = client.DisplayName
	}

	snapshot, err := h.registry.Join(context.Background(), msg.SongId, client.Id, collab.Participant{
		UserId:      client.UserId,
		DisplayName: displayName,
	})
	if err != nil {
		h.logger.Error("RealtimeHandler", "Join failed", map[string]interface{}{
			"song_id": msg.SongId, "error": err.Error(),
		})
		h.sendError(client, "failed to join session")
		return
	}

	h.sendTo(client, dto.SessionStateMessage{
		Type:         dto.MsgSessionState,
		SongId:       snapshot.SongId,
		Lyrics:       snapshot.Lyrics,
		Participants: snapshot.Participants,
		UpdatedAt:    snapshot.UpdatedAt,
	})

	h.broadcaster.Publish(msg.SongId, dto.ParticipantEventMessage{
		Type:        dto.MsgParticipantJoined,
		SongId:      msg.SongId,
		UserId:      client.UserId,
		DisplayName: displayName,
	}, client.Id)
}

func (h *RealtimeHandler) handleLeave(client *Client, data []byte) {
	var msg dto.LeaveMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.SongId == uuid.Nil {
		h.sendError(client, "invalid leave message")
		return
	}

	departed, ok := h.registry.Leave(context.Background(), msg.SongId, client.Id)
	if !ok {
		// Never joined (or already reaped); nothing to announce.
		return
	}

	h.broadcaster.Publish(msg.SongId, dto.ParticipantEventMessage{
		Type:        dto.MsgParticipantLeft,
		SongId:      msg.SongId,
		UserId:      departed.UserId,
		DisplayName: departed.DisplayName,
	}, client.Id)
}

func (h *RealtimeHandler) handleEdit(client *Client, data []byte) {
	var msg dto.EditMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.SongId == uuid.Nil {
		h.sendError(client, "invalid edit message")
		return
	}

	event, err := h.registry.ApplyEdit(msg.SongId, client.Id, msg.Lyrics)
	if err != nil {
		h.sendError(client, err.Error())
		return
	}

	h.broadcaster.Publish(event.SongId, dto.EditBroadcastMessage{
		Type:      dto.MsgEditBroadcast,
		SongId:    event.SongId,
		Lyrics:    event.Lyrics,
		AuthorId:  event.UserId,
		UpdatedAt: event.UpdatedAt,
	}, event.AuthorId)
}

func (h *RealtimeHandler) handleProgressRequest(client *Client, data []byte) {
	var msg dto.ProgressRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.JobId == uuid.Nil {
		h.sendError(client, "invalid progress request")
		return
	}

	snap, ok := h.machine.Get(msg.JobId)
	if !ok {
		h.sendError(client, "job not found")
		return
	}

	h.sendTo(client, dto.JobUpdateMessage{
		Type:          dto.MsgJobUpdate,
		JobId:         snap.Id,
		Status:        string(snap.Status),
		Progress:      snap.Progress,
		ResultRef:     snap.ResultRef,
		FailureReason: snap.FailureReason,
	})
}

func (h *RealtimeHandler) sendTo(client *Client, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.hub.Send(client.Id, data)
}

func (h *RealtimeHandler) sendError(client *Client, message string) {
	h.sendTo(client, dto.ErrorMessage{Type: dto.MsgError, Message: message})
}
