package repository

import (
	"context"
	"errors"
	"fmt"

	"tradedesk/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const messageColumns = `
	id, order_id, sender_id, sender_name, sender_type,
	message, attachments, is_read, created_at`

func scanMessage(row pgx.Row) (*model.OrderMessage, error) {
	var m model.OrderMessage
	var senderType string

	err := row.Scan(
		&m.ID, &m.OrderID, &m.SenderID, &m.SenderName, &senderType,
		&m.Message, &m.Attachments, &m.IsRead, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.SenderType = model.PartyRole(senderType)
	return &m, nil
}

// messageRepository implements MessageRepository using PostgreSQL.
type messageRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewMessageRepository creates a new PostgreSQL-backed message repository.
func NewMessageRepository(pool *pgxpool.Pool, logger zerolog.Logger) MessageRepository {
	return &messageRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "message").Logger(),
	}
}

// Create appends one message to the order's conversation.
func (r *messageRepository) Create(ctx context.Context, m *model.OrderMessage) error {
	query := `
		INSERT INTO order_messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.OrderID, m.SenderID, m.SenderName, string(m.SenderType),
		m.Message, m.Attachments, m.IsRead, m.CreatedAt,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", m.OrderID.String()).Msg("failed to create message")
		return fmt.Errorf("failed to create message: %w", err)
	}

	r.logger.Debug().
		Str("message_id", m.ID.String()).
		Str("order_id", m.OrderID.String()).
		Msg("message created")
	return nil
}

// GetByID retrieves a message, or nil when absent.
func (r *messageRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.OrderMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM order_messages WHERE id = $1`

	m, err := scanMessage(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("message_id", id.String()).Msg("failed to query message")
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	return m, nil
}

// ListByOrder returns messages ascending by created_at; insertion id
// breaks ties so the order is total.
func (r *messageRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.OrderMessage, error) {
	query := `SELECT ` + messageColumns + `
		FROM order_messages
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to list messages")
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// MarkRead flags every message on the order not sent by reader.
func (r *messageRepository) MarkRead(ctx context.Context, orderID, readerID uuid.UUID) error {
	query := `
		UPDATE order_messages
		SET is_read = TRUE
		WHERE order_id = $1 AND sender_id <> $2 AND is_read = FALSE
	`

	tag, err := r.pool.Exec(ctx, query, orderID, readerID)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to mark messages read")
		return fmt.Errorf("failed to mark messages read: %w", err)
	}

	if tag.RowsAffected() > 0 {
		r.logger.Debug().
			Str("order_id", orderID.String()).
			Int64("count", tag.RowsAffected()).
			Msg("messages marked read")
	}
	return nil
}

// ListByArtifact returns the descending feed across all orders
// referencing the artifact (the owner's inbox view).
func (r *messageRepository) ListByArtifact(ctx context.Context, artifactID uuid.UUID) ([]model.OrderMessage, error) {
	query := `SELECT ` + qualifiedMessageColumns + `
		FROM order_messages m
		JOIN orders o ON o.id = m.order_id
		WHERE o.offer_id = $1
		ORDER BY m.created_at DESC, m.id DESC`

	rows, err := r.pool.Query(ctx, query, artifactID)
	if err != nil {
		r.logger.Error().Err(err).Str("artifact_id", artifactID.String()).Msg("failed to list artifact messages")
		return nil, fmt.Errorf("failed to list artifact messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

const qualifiedMessageColumns = `
	m.id, m.order_id, m.sender_id, m.sender_name, m.sender_type,
	m.message, m.attachments, m.is_read, m.created_at`

func collectMessages(rows pgx.Rows) ([]model.OrderMessage, error) {
	var msgs []model.OrderMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return msgs, nil
}

// Delete removes the message row.
func (r *messageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM order_messages WHERE id = $1`, id)
	if err != nil {
		r.logger.Error().Err(err).Str("message_id", id.String()).Msg("failed to delete message")
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrMessageNotFound
	}

	r.logger.Debug().Str("message_id", id.String()).Msg("message deleted")
	return nil
}
