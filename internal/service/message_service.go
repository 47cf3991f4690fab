package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tradedesk/internal/model"
	"tradedesk/internal/notify"
	"tradedesk/internal/repository"
	"tradedesk/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type messageService struct {
	messageRepo  repository.MessageRepository
	orderRepo    repository.OrderRepository
	artifactRepo repository.ArtifactRepository
	store        storage.ObjectStore
	dispatcher   notify.Dispatcher
	logger       zerolog.Logger
	now          func() time.Time
}

// NewMessageService creates the per-order conversation service.
func NewMessageService(
	messageRepo repository.MessageRepository,
	orderRepo repository.OrderRepository,
	artifactRepo repository.ArtifactRepository,
	store storage.ObjectStore,
	dispatcher notify.Dispatcher,
	logger zerolog.Logger,
) MessageService {
	return &messageService{
		messageRepo:  messageRepo,
		orderRepo:    orderRepo,
		artifactRepo: artifactRepo,
		store:        store,
		dispatcher:   dispatcher,
		logger:       logger.With().Str("service", "message").Logger(),
		now:          time.Now,
	}
}

// Post appends a message to the order's conversation. The inline file,
// if any, is uploaded first so a failed upload never leaves a message
// row pointing at nothing.
func (s *messageService) Post(ctx context.Context, principal uuid.UUID, req *model.PostMessageRequest) (*model.PostMessageResponse, error) {
	if principal == uuid.Nil {
		return nil, model.ErrUnauthenticated
	}
	if req == nil || (strings.TrimSpace(req.Text) == "" && req.File == nil) {
		return nil, model.ErrEmptyMessage
	}

	order, err := s.orderRepo.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to post message: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}

	role := order.RoleOf(principal)
	if role == "" {
		return nil, model.ErrNotParty
	}

	var attachments []model.Attachment
	if req.File != nil {
		url, upErr := s.store.Put(ctx, req.File.Filename, req.File.Mime, req.File.Data)
		if upErr != nil {
			return nil, fmt.Errorf("failed to upload attachment: %w", upErr)
		}
		attachments = append(attachments, model.Attachment{
			URL:  url,
			Name: req.File.Filename,
			Type: req.File.Mime,
		})
	}

	senderName := order.BuyerName
	if role == model.RoleSeller {
		senderName = order.SellerName
	}

	msg := &model.OrderMessage{
		ID:          uuid.New(),
		OrderID:     order.ID,
		SenderID:    principal,
		SenderName:  senderName,
		SenderType:  role,
		Message:     strings.TrimSpace(req.Text),
		Attachments: attachments,
		CreatedAt:   s.now(),
	}

	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to post message: %w", err)
	}

	recipient := order.SellerID
	if role == model.RoleSeller {
		recipient = order.BuyerID
	}
	s.dispatcher.Dispatch([]model.Notification{notifyNewMessage(order, recipient, senderName)})

	return &model.PostMessageResponse{ID: msg.ID, CreatedAt: msg.CreatedAt}, nil
}

// ListByOrder returns the conversation to a party of the order and
// marks the counterparty's messages read as a side effect.
func (s *messageService) ListByOrder(ctx context.Context, principal, orderID uuid.UUID) ([]model.OrderMessage, error) {
	if principal == uuid.Nil {
		return nil, model.ErrUnauthenticated
	}

	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if order.RoleOf(principal) == "" {
		return nil, model.ErrNotParty
	}

	messages, err := s.messageRepo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	// Read receipts are best-effort; the fetch already succeeded.
	if err := s.messageRepo.MarkRead(ctx, orderID, principal); err != nil {
		s.logger.Warn().Err(err).Str("order_id", orderID.String()).Msg("failed to mark messages read")
	}

	return messages, nil
}

// ListByArtifact returns the combined feed over every order under the
// artifact. Only the artifact owner may read it.
func (s *messageService) ListByArtifact(ctx context.Context, principal, artifactID uuid.UUID) ([]model.OrderMessage, error) {
	if principal == uuid.Nil {
		return nil, model.ErrUnauthenticated
	}

	artifact, err := s.artifactRepo.Resolve(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	if artifact == nil {
		return nil, model.ErrArtifactNotFound
	}
	if artifact.OwnerID != principal {
		return nil, model.ErrNotParty
	}

	messages, err := s.messageRepo.ListByArtifact(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	return messages, nil
}

// Delete removes the principal's own message. Stored files are deleted
// best-effort after the row is gone.
func (s *messageService) Delete(ctx context.Context, principal, messageID uuid.UUID) error {
	if principal == uuid.Nil {
		return model.ErrUnauthenticated
	}

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if msg == nil {
		return model.ErrMessageNotFound
	}
	if msg.SenderID != principal {
		return model.ErrSenderOnly
	}

	if err := s.messageRepo.Delete(ctx, messageID); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	for _, att := range msg.Attachments {
		if err := s.store.Delete(ctx, att.URL); err != nil {
			s.logger.Warn().Err(err).Str("url", att.URL).Msg("failed to delete attachment object")
		}
	}
	return nil
}
