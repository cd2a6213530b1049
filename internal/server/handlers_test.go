package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/studysync/internal/domain"
	"github.com/nfrund/studysync/internal/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStore implements messaging.Store and counts writes.
type recordingStore struct {
	inserts atomic.Int32
}

func (s *recordingStore) Insert(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	s.inserts.Add(1)
	stored := *msg
	stored.ID = "messages:generated"
	return &stored, nil
}

func (s *recordingStore) MarkRead(ctx context.Context, messageID string, at time.Time) error {
	return nil
}

func (s *recordingStore) RecentRoomMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	return nil, nil
}

func newMessageTestServer(store messaging.Store) *Server {
	return &Server{
		E:         echo.New(),
		messaging: messaging.NewService(store),
	}
}

func postJSON(t *testing.T, s *Server, path, body string, handler echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := s.E.NewContext(req, rec)
	require.NoError(t, handler(c))
	return rec
}

func TestHandleSendMessageRoomScope(t *testing.T) {
	store := &recordingStore{}
	s := newMessageTestServer(store)

	body := `{"sender_id":"u1","room_id":"r1","message_type":"text","content":"hi"}`
	rec := postJSON(t, s, "/messages", body, s.handleSendMessage)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int32(1), store.inserts.Load())
}

func TestHandleSendMessageDirectScope(t *testing.T) {
	store := &recordingStore{}
	s := newMessageTestServer(store)

	body := `{"sender_id":"u1","receiver_id":"u2","message_type":"text","content":"hi"}`
	rec := postJSON(t, s, "/messages", body, s.handleSendMessage)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int32(1), store.inserts.Load())
}

func TestHandleSendMessageRejectsBothScopes(t *testing.T) {
	store := &recordingStore{}
	s := newMessageTestServer(store)

	// room_id and receiver_id together must be rejected outright, not
	// resolved by silently dropping one of them.
	body := `{"sender_id":"u1","room_id":"r1","receiver_id":"u2","message_type":"text","content":"hi"}`
	rec := postJSON(t, s, "/messages", body, s.handleSendMessage)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, store.inserts.Load(), "a rejected send must not reach the store")
}

func TestHandleSendMessageRejectsMissingScope(t *testing.T) {
	store := &recordingStore{}
	s := newMessageTestServer(store)

	body := `{"sender_id":"u1","message_type":"text","content":"hi"}`
	rec := postJSON(t, s, "/messages", body, s.handleSendMessage)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, store.inserts.Load())
}
