package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nfrund/studysync/internal/domain"
)

// Store is the persistence surface the messaging service writes through.
type Store interface {
	Insert(ctx context.Context, msg *domain.Message) (*domain.Message, error)
	MarkRead(ctx context.Context, messageID string, at time.Time) error
	RecentRoomMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error)
}

// input is the validated shape of a send request. Exactly one of RoomID and
// ReceiverID must be set; that check is explicit because it spans fields.
type input struct {
	SenderID   string             `validate:"required"`
	RoomID     string
	ReceiverID string
	Type       domain.MessageType `validate:"required,oneof=text file image video audio"`
	Content    string
	File       *domain.FileAttrs
}

// Service appends room-scoped or direct messages to the store and marks
// messages read. Delivery to other participants is decoupled: it happens
// through the subscription layer, only for participants already subscribed.
type Service struct {
	store     Store
	validate  *validator.Validate
	logger    *slog.Logger
	opTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithOpTimeout bounds store writes when the caller's context carries no
// deadline. Zero disables the bound.
func WithOpTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.opTimeout = d
	}
}

// NewService creates the messaging service over an explicit store.
func NewService(store Store, opts ...Option) *Service {
	svc := &Service{
		store:    store,
		validate: validator.New(),
		logger:   slog.Default().With("service", "messaging"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// SendRoomMessage appends a message to a study room's stream.
func (s *Service) SendRoomMessage(ctx context.Context, roomID, senderID, content string, msgType domain.MessageType, file *domain.FileAttrs) (*domain.Message, error) {
	return s.send(ctx, input{
		SenderID: senderID,
		RoomID:   roomID,
		Type:     msgType,
		Content:  content,
		File:     file,
	})
}

// SendDirectMessage appends a message to the direct stream between sender
// and receiver.
func (s *Service) SendDirectMessage(ctx context.Context, senderID, receiverID, content string, msgType domain.MessageType, file *domain.FileAttrs) (*domain.Message, error) {
	return s.send(ctx, input{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Type:       msgType,
		Content:    content,
		File:       file,
	})
}

// MarkRead sets is_read and stamps read_at with the current time. Calling it
// on an already-read message is not an error; read_at reflects the most
// recent call.
func (s *Service) MarkRead(ctx context.Context, messageID string) error {
	if messageID == "" {
		return fmt.Errorf("message id is required: %w", domain.ErrInvalidArgument)
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	err := s.store.MarkRead(ctx, messageID, time.Now().UTC())
	return domain.WrapTimeout("mark_read", err)
}

// RecentRoomMessages loads the latest messages of a room, oldest first.
// Initial history load for late joiners lives here, not on the realtime
// path.
func (s *Service) RecentRoomMessages(ctx context.Context, roomID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	msgs, err := s.store.RecentRoomMessages(ctx, roomID, limit)
	if err != nil {
		return nil, domain.WrapTimeout("recent_room_messages", err)
	}
	return msgs, nil
}

func (s *Service) send(ctx context.Context, in input) (*domain.Message, error) {
	if err := s.checkScope(in); err != nil {
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}

	msg := &domain.Message{
		SenderID:    in.SenderID,
		RoomID:      in.RoomID,
		ReceiverID:  in.ReceiverID,
		MessageType: in.Type,
		Content:     in.Content,
		SentAt:      time.Now().UTC(),
	}
	if in.File != nil {
		msg.FileURL = in.File.URL
		msg.FileName = in.File.Name
		msg.FileSize = in.File.Size
	}

	ctx, cancel := s.bound(ctx)
	defer cancel()

	created, err := s.store.Insert(ctx, msg)
	if err != nil {
		return nil, domain.WrapTimeout("send_message", err)
	}

	s.logger.Debug("Message stored",
		"message_id", created.ID, "room_id", created.RoomID,
		"receiver_id", created.ReceiverID, "type", created.MessageType)
	return created, nil
}

// checkScope enforces that a message is scoped to exactly one of a room or a
// direct pair, and that the content matches the declared type. All failures
// happen before any store write.
func (s *Service) checkScope(in input) error {
	if (in.RoomID == "") == (in.ReceiverID == "") {
		return fmt.Errorf("exactly one of roomID and receiverID must be set: %w", domain.ErrInvalidArgument)
	}
	if in.Type == domain.MessageText && in.Content == "" {
		return fmt.Errorf("text messages require content: %w", domain.ErrInvalidArgument)
	}
	if in.Type != domain.MessageText && in.Type != "" && in.File == nil {
		return fmt.Errorf("%s messages require file attributes: %w", in.Type, domain.ErrInvalidArgument)
	}
	return nil
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}
