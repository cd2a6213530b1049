package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/studysync/internal/domain"
)

type memberRequest struct {
	UserID string `json:"user_id"`
}

type sendMessageRequest struct {
	SenderID    string             `json:"sender_id"`
	RoomID      string             `json:"room_id,omitempty"`
	ReceiverID  string             `json:"receiver_id,omitempty"`
	Content     string             `json:"content,omitempty"`
	MessageType domain.MessageType `json:"message_type"`
	FileURL     string             `json:"file_url,omitempty"`
	FileName    string             `json:"file_name,omitempty"`
	FileSize    int64              `json:"file_size,omitempty"`
}

type markReadRequest struct {
	MessageID string `json:"message_id"`
}

func (s *Server) handleHealth(c echo.Context) error {
	status := map[string]any{
		"status":     "ok",
		"db_healthy": s.deps.DB.IsHealthy(),
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleJoin(c echo.Context) error {
	var req memberRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	room, err := s.rooms.Join(c.Request().Context(), c.Param("id"), req.UserID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, room)
}

func (s *Server) handleLeave(c echo.Context) error {
	var req memberRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	room, err := s.rooms.Leave(c.Request().Context(), c.Param("id"), req.UserID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, room)
}

func (s *Server) handleRoomHistory(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	msgs, err := s.messaging.RecentRoomMessages(c.Request().Context(), c.Param("id"), limit)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, msgs)
}

func (s *Server) handleSendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	// The scope check happens before routing: picking a branch on one field
	// would silently drop the other and store a message the client never
	// asked for.
	if (req.RoomID == "") == (req.ReceiverID == "") {
		return fail(c, fmt.Errorf("exactly one of room_id and receiver_id must be set: %w", domain.ErrInvalidArgument))
	}

	var file *domain.FileAttrs
	if req.FileURL != "" {
		file = &domain.FileAttrs{URL: req.FileURL, Name: req.FileName, Size: req.FileSize}
	}

	ctx := c.Request().Context()
	var (
		msg *domain.Message
		err error
	)
	if req.RoomID != "" {
		msg, err = s.messaging.SendRoomMessage(ctx, req.RoomID, req.SenderID, req.Content, req.MessageType, file)
	} else {
		msg, err = s.messaging.SendDirectMessage(ctx, req.SenderID, req.ReceiverID, req.Content, req.MessageType, file)
	}
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) handleMarkRead(c echo.Context) error {
	var req markReadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	if err := s.messaging.MarkRead(c.Request().Context(), req.MessageID); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
