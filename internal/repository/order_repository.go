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

// orderColumns is the canonical column list; every order scan uses it
// so the row shape stays in one place.
const orderColumns = `
	id, order_number,
	buyer_id, buyer_name, buyer_phone, buyer_email, buyer_company, buyer_inn,
	seller_id, seller_name, seller_phone, seller_email,
	offer_id, is_request,
	title, unit, quantity, original_quantity, price_per_unit, total_amount, has_vat, vat_amount,
	delivery_type, delivery_address, district, delivery_days, tracking_number, delivery_date,
	counter_price_per_unit, counter_total_amount, counter_offer_message,
	counter_offered_at, counter_offered_by, buyer_accepted_counter,
	status, order_date, completed_date, cancelled_by, cancellation_reason, updated_at,
	buyer_comment, seller_comment, attachments`

// scanOrder reads one row laid out as orderColumns.
func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	var status string
	var counterBy, cancelledBy *string

	err := row.Scan(
		&o.ID, &o.OrderNumber,
		&o.BuyerID, &o.BuyerName, &o.BuyerPhone, &o.BuyerEmail, &o.BuyerCompany, &o.BuyerINN,
		&o.SellerID, &o.SellerName, &o.SellerPhone, &o.SellerEmail,
		&o.OfferID, &o.IsRequest,
		&o.Title, &o.Unit, &o.Quantity, &o.OriginalQuantity, &o.PricePerUnit, &o.TotalAmount, &o.HasVAT, &o.VATAmount,
		&o.DeliveryType, &o.DeliveryAddress, &o.District, &o.DeliveryDays, &o.TrackingNumber, &o.DeliveryDate,
		&o.CounterPricePerUnit, &o.CounterTotalAmount, &o.CounterOfferMessage,
		&o.CounterOfferedAt, &counterBy, &o.BuyerAcceptedCounter,
		&status, &o.OrderDate, &o.CompletedDate, &cancelledBy, &o.CancellationReason, &o.UpdatedAt,
		&o.BuyerComment, &o.SellerComment, &o.Attachments,
	)
	if err != nil {
		return nil, err
	}

	o.Status = model.OrderStatus(status)
	if counterBy != nil {
		role := model.PartyRole(*counterBy)
		o.CounterOfferedBy = &role
	}
	if cancelledBy != nil {
		role := model.PartyRole(*cancelledBy)
		o.CancelledBy = &role
	}
	return &o, nil
}

// roleText converts an optional role to its nullable column value.
func roleText(r *model.PartyRole) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}

// orderRepository implements OrderRepository using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *orderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

// Create inserts a new order within the provided transaction.
func (r *orderRepository) Create(ctx context.Context, tx pgx.Tx, o *model.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
		        $13, $14, $15, $16, $17, $18, $19, $20, $21, $22,
		        $23, $24, $25, $26, $27, $28, $29, $30, $31, $32,
		        $33, $34, $35, $36, $37, $38, $39, $40, $41, $42, $43)
	`

	_, err := tx.Exec(ctx, query,
		o.ID, o.OrderNumber,
		o.BuyerID, o.BuyerName, o.BuyerPhone, o.BuyerEmail, o.BuyerCompany, o.BuyerINN,
		o.SellerID, o.SellerName, o.SellerPhone, o.SellerEmail,
		o.OfferID, o.IsRequest,
		o.Title, o.Unit, o.Quantity, o.OriginalQuantity, o.PricePerUnit, o.TotalAmount, o.HasVAT, o.VATAmount,
		o.DeliveryType, o.DeliveryAddress, o.District, o.DeliveryDays, o.TrackingNumber, o.DeliveryDate,
		o.CounterPricePerUnit, o.CounterTotalAmount, o.CounterOfferMessage,
		o.CounterOfferedAt, roleText(o.CounterOfferedBy), o.BuyerAcceptedCounter,
		string(o.Status), o.OrderDate, o.CompletedDate, roleText(o.CancelledBy), o.CancellationReason, o.UpdatedAt,
		o.BuyerComment, o.SellerComment, o.Attachments,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", o.ID.String()).Msg("failed to create order")
		return fmt.Errorf("failed to create order: %w", err)
	}

	r.logger.Debug().
		Str("order_id", o.ID.String()).
		Str("order_number", o.OrderNumber).
		Msg("order created")
	return nil
}

// GetByID retrieves an order, or nil when absent.
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to query order")
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	return o, nil
}

// GetByIDForUpdate retrieves an order under an exclusive row lock. This
// lock is always taken before any offer-row lock.
func (r *orderRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	o, err := scanOrder(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to lock order row")
		return nil, fmt.Errorf("failed to lock order row: %w", err)
	}
	return o, nil
}

// viewColumns extends orderColumns with the per-reader derived fields.
const viewColumns = `,
	(SELECT COUNT(*) FROM order_messages m
	 WHERE m.order_id = o.id AND m.sender_id <> $1 AND m.is_read = FALSE) AS unread_messages,
	COALESCE(f.quantity - f.sold_quantity - f.reserved_quantity, 0) AS offer_available_quantity,
	COALESCE(f.price_per_unit, 0) AS offer_price_per_unit`

func scanOrderView(row pgx.Row, userID uuid.UUID) (*model.OrderView, error) {
	var v model.OrderView
	var status string
	var counterBy, cancelledBy *string

	err := row.Scan(
		&v.ID, &v.OrderNumber,
		&v.BuyerID, &v.BuyerName, &v.BuyerPhone, &v.BuyerEmail, &v.BuyerCompany, &v.BuyerINN,
		&v.SellerID, &v.SellerName, &v.SellerPhone, &v.SellerEmail,
		&v.OfferID, &v.IsRequest,
		&v.Title, &v.Unit, &v.Quantity, &v.OriginalQuantity, &v.PricePerUnit, &v.TotalAmount, &v.HasVAT, &v.VATAmount,
		&v.DeliveryType, &v.DeliveryAddress, &v.District, &v.DeliveryDays, &v.TrackingNumber, &v.DeliveryDate,
		&v.CounterPricePerUnit, &v.CounterTotalAmount, &v.CounterOfferMessage,
		&v.CounterOfferedAt, &counterBy, &v.BuyerAcceptedCounter,
		&status, &v.OrderDate, &v.CompletedDate, &cancelledBy, &v.CancellationReason, &v.UpdatedAt,
		&v.BuyerComment, &v.SellerComment, &v.Attachments,
		&v.UnreadMessages, &v.OfferAvailableQuantity, &v.OfferPricePerUnit,
	)
	if err != nil {
		return nil, err
	}

	v.Status = model.OrderStatus(status)
	if counterBy != nil {
		role := model.PartyRole(*counterBy)
		v.CounterOfferedBy = &role
	}
	if cancelledBy != nil {
		role := model.PartyRole(*cancelledBy)
		v.CancelledBy = &role
	}
	v.Role = v.RoleOf(userID)
	return &v, nil
}

// prefixedOrderColumns qualifies orderColumns with the "o." alias used
// by the view queries.
func prefixedOrderColumns() string {
	return `
	o.id, o.order_number,
	o.buyer_id, o.buyer_name, o.buyer_phone, o.buyer_email, o.buyer_company, o.buyer_inn,
	o.seller_id, o.seller_name, o.seller_phone, o.seller_email,
	o.offer_id, o.is_request,
	o.title, o.unit, o.quantity, o.original_quantity, o.price_per_unit, o.total_amount, o.has_vat, o.vat_amount,
	o.delivery_type, o.delivery_address, o.district, o.delivery_days, o.tracking_number, o.delivery_date,
	o.counter_price_per_unit, o.counter_total_amount, o.counter_offer_message,
	o.counter_offered_at, o.counter_offered_by, o.buyer_accepted_counter,
	o.status, o.order_date, o.completed_date, o.cancelled_by, o.cancellation_reason, o.updated_at,
	o.buyer_comment, o.seller_comment, o.attachments`
}

// List returns the principal's orders, newest first.
func (r *orderRepository) List(ctx context.Context, userID uuid.UUID, filter model.ListFilter) ([]model.OrderView, error) {
	query := `SELECT ` + prefixedOrderColumns() + viewColumns + `
		FROM orders o
		LEFT JOIN offers f ON f.id = o.offer_id AND NOT o.is_request
		WHERE o.archived = FALSE`

	args := []any{userID}

	switch filter.Type {
	case "purchase":
		query += ` AND o.buyer_id = $1`
	case "sale":
		query += ` AND o.seller_id = $1`
	default:
		query += ` AND (o.buyer_id = $1 OR o.seller_id = $1)`
	}

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND o.status = $%d`, len(args))
	}

	query += ` ORDER BY o.order_date DESC`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", userID.String()).Msg("failed to list orders")
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var views []model.OrderView
	for rows.Next() {
		v, err := scanOrderView(rows, userID)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan order row")
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		views = append(views, *v)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating order rows")
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	return views, nil
}

// GetView returns the single-order variant of List.
func (r *orderRepository) GetView(ctx context.Context, id, userID uuid.UUID) (*model.OrderView, error) {
	query := `SELECT ` + prefixedOrderColumns() + viewColumns + `
		FROM orders o
		LEFT JOIN offers f ON f.id = o.offer_id AND NOT o.is_request
		WHERE o.id = $2`

	v, err := scanOrderView(r.pool.QueryRow(ctx, query, userID, id), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to query order view")
		return nil, fmt.Errorf("failed to query order view: %w", err)
	}
	return v, nil
}

// FindActiveByArtifactAndBuyer returns the buyer's non-cancelled
// response to the artifact, or nil. Backs the one-active-response rule.
func (r *orderRepository) FindActiveByArtifactAndBuyer(ctx context.Context, artifactID, buyerID uuid.UUID) (*model.Order, error) {
	query := `SELECT ` + orderColumns + `
		FROM orders
		WHERE offer_id = $1 AND buyer_id = $2 AND status <> 'cancelled'
		ORDER BY order_date DESC
		LIMIT 1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, artifactID, buyerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("artifact_id", artifactID.String()).Msg("failed to query active response")
		return nil, fmt.Errorf("failed to query active response: %w", err)
	}
	return o, nil
}

// Update persists every mutable column. Party snapshots, reference and
// creation fields are deliberately absent; they are immutable.
func (r *orderRepository) Update(ctx context.Context, tx pgx.Tx, o *model.Order) error {
	query := `
		UPDATE orders SET
			quantity = $2, price_per_unit = $3, total_amount = $4, has_vat = $5, vat_amount = $6,
			delivery_type = $7, delivery_address = $8, district = $9, delivery_days = $10,
			tracking_number = $11, delivery_date = $12,
			counter_price_per_unit = $13, counter_total_amount = $14, counter_offer_message = $15,
			counter_offered_at = $16, counter_offered_by = $17, buyer_accepted_counter = $18,
			status = $19, completed_date = $20, cancelled_by = $21, cancellation_reason = $22,
			updated_at = $23, buyer_comment = $24, seller_comment = $25, attachments = $26
		WHERE id = $1
	`

	tag, err := tx.Exec(ctx, query,
		o.ID,
		o.Quantity, o.PricePerUnit, o.TotalAmount, o.HasVAT, o.VATAmount,
		o.DeliveryType, o.DeliveryAddress, o.District, o.DeliveryDays,
		o.TrackingNumber, o.DeliveryDate,
		o.CounterPricePerUnit, o.CounterTotalAmount, o.CounterOfferMessage,
		o.CounterOfferedAt, roleText(o.CounterOfferedBy), o.BuyerAcceptedCounter,
		string(o.Status), o.CompletedDate, roleText(o.CancelledBy), o.CancellationReason,
		o.UpdatedAt, o.BuyerComment, o.SellerComment, o.Attachments,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", o.ID.String()).Msg("failed to update order")
		return fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}

	r.logger.Debug().
		Str("order_id", o.ID.String()).
		Str("status", string(o.Status)).
		Msg("order updated")
	return nil
}

// RejectSiblings moves every other non-terminal order on the artifact
// to rejected. Runs under the accepting transaction's offer-level lock
// so the sibling set is consistent.
func (r *orderRepository) RejectSiblings(ctx context.Context, tx pgx.Tx, offerID, acceptedID uuid.UUID, reason string) ([]model.Order, error) {
	query := `
		UPDATE orders
		SET status = 'rejected', cancellation_reason = $3, updated_at = NOW()
		WHERE offer_id = $1 AND id <> $2 AND status IN ('new', 'negotiating')
		RETURNING ` + orderColumns

	rows, err := tx.Query(ctx, query, offerID, acceptedID, reason)
	if err != nil {
		r.logger.Error().Err(err).Str("offer_id", offerID.String()).Msg("failed to reject sibling orders")
		return nil, fmt.Errorf("failed to reject sibling orders: %w", err)
	}
	defer rows.Close()

	var displaced []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rejected sibling: %w", err)
		}
		displaced = append(displaced, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rejected siblings: %w", err)
	}

	r.logger.Debug().
		Str("offer_id", offerID.String()).
		Int("count", len(displaced)).
		Msg("sibling orders rejected")
	return displaced, nil
}

// Delete hard-deletes the order; order_messages cascade at the schema level.
func (r *orderRepository) Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	tag, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to delete order")
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrOrderNotFound
	}

	r.logger.Debug().Str("order_id", id.String()).Msg("order deleted")
	return nil
}
