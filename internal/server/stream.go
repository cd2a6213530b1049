package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/studysync/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browser clients on other origins are expected; auth is handled
	// upstream of this layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleRoomMessageStream forwards a room's live message feed to a
// websocket client. The subscription is closed when the client goes away;
// events buffered after that are dropped by the subscription layer, not
// written to the dead socket.
func (s *Server) handleRoomMessageStream(c echo.Context) error {
	roomID := c.Param("id")

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	var writeMu sync.Mutex
	sub, err := s.realtime.SubscribeToRoomMessages(c.Request().Context(), roomID, func(msg domain.Message) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(msg); err != nil {
			slog.Debug("Websocket write failed, client likely gone", "room_id", roomID, "error", err)
		}
	})
	if err != nil {
		// The connection is already hijacked; an HTTP error response can no
		// longer reach the client. Report the failure as a close frame.
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscription failed"), deadline)
		conn.Close()
		slog.Warn("Room message stream failed to subscribe", "room_id", roomID, "error", err)
		return nil
	}

	slog.Debug("Room message stream opened", "room_id", roomID, "sub_id", sub.ID)

	// Drain the read side to notice the client disconnecting; we never
	// expect inbound frames on this endpoint.
	go func() {
		defer func() {
			sub.Close()
			conn.Close()
			slog.Debug("Room message stream closed", "room_id", roomID, "sub_id", sub.ID)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	return nil
}
