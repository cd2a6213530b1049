package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/studysync/internal/app"
	"github.com/nfrund/studysync/internal/domain"
	"github.com/nfrund/studysync/internal/messaging"
	"github.com/nfrund/studysync/internal/realtime"
	"github.com/nfrund/studysync/internal/registry"
	"github.com/nfrund/studysync/internal/rooms"
)

// Server is the thin HTTP surface over the collaboration services. Page
// rendering lives elsewhere; this only exposes the operations the page
// layer calls.
type Server struct {
	E    *echo.Echo
	deps *app.Dependencies

	realtime  *realtime.Service
	messaging *messaging.Service
	rooms     *rooms.Coordinator
}

// New creates a server over the wired dependencies.
func New(deps *app.Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	return &Server{
		E:         e,
		deps:      deps,
		realtime:  registry.MustGet(deps.Registry, registry.RealtimeServiceKey),
		messaging: registry.MustGet(deps.Registry, registry.MessagingServiceKey),
		rooms:     registry.MustGet(deps.Registry, registry.RoomCoordinatorKey),
	}
}

// RegisterRoutes registers all application routes.
func (s *Server) RegisterRoutes() {
	s.E.GET("/healthz", s.handleHealth)

	s.E.POST("/rooms/:id/join", s.handleJoin)
	s.E.POST("/rooms/:id/leave", s.handleLeave)
	s.E.GET("/rooms/:id/messages", s.handleRoomHistory)

	s.E.POST("/messages", s.handleSendMessage)
	s.E.POST("/messages/read", s.handleMarkRead)

	s.E.GET("/ws/rooms/:id/messages", s.handleRoomMessageStream)
}

// httpStatus maps the domain error taxonomy onto response codes; failures
// stay distinguishable by kind all the way to the client.
func httpStatus(err error) int {
	var transportErr *domain.TransportError
	var timeoutErr *domain.TimeoutError

	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRoomFull):
		return http.StatusConflict
	case errors.As(err, &timeoutErr):
		return http.StatusGatewayTimeout
	case errors.As(err, &transportErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(c echo.Context, err error) error {
	return c.JSON(httpStatus(err), map[string]string{"error": err.Error()})
}
