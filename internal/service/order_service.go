package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradedesk/internal/model"
	"tradedesk/internal/notify"
	"tradedesk/internal/ordernum"
	"tradedesk/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// vatRate is the VAT share assumed included in gross totals.
const vatRate = 0.20

// orderService implements OrderService.
type orderService struct {
	orderRepo    repository.OrderRepository
	artifactRepo repository.ArtifactRepository
	userRepo     repository.UserRepository
	numbers      *ordernum.Generator
	dispatcher   notify.Dispatcher
	logger       zerolog.Logger
	now          func() time.Time
}

// NewOrderService creates a new order service.
func NewOrderService(
	orderRepo repository.OrderRepository,
	artifactRepo repository.ArtifactRepository,
	userRepo repository.UserRepository,
	numbers *ordernum.Generator,
	dispatcher notify.Dispatcher,
	logger zerolog.Logger,
) OrderService {
	return &orderService{
		orderRepo:    orderRepo,
		artifactRepo: artifactRepo,
		userRepo:     userRepo,
		numbers:      numbers,
		dispatcher:   dispatcher,
		logger:       logger.With().Str("service", "order").Logger(),
		now:          time.Now,
	}
}

// Create inserts a response to an artifact. Offer-side responses
// reserve inventory in the same transaction; a counter price on
// creation opens the order directly in negotiating.
func (s *orderService) Create(ctx context.Context, principal uuid.UUID, req *model.CreateOrderRequest) (*model.CreateOrderResponse, error) {
	if principal == uuid.Nil {
		return nil, model.ErrUnauthenticated
	}
	if req == nil || req.OfferID == uuid.Nil {
		return nil, model.NewDomainError(model.ErrCodeValidation, "offerId is required")
	}
	if req.Quantity <= 0 {
		return nil, model.ErrInvalidQuantity
	}
	if req.CounterPrice != nil && *req.CounterPrice <= 0 {
		return nil, model.ErrInvalidPrice
	}

	artifact, err := s.artifactRepo.Resolve(ctx, req.OfferID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve artifact: %w", err)
	}
	if artifact == nil {
		return nil, model.ErrArtifactNotFound
	}
	if artifact.OwnerID == principal {
		s.logger.Warn().
			Str("user_id", principal.String()).
			Str("artifact_id", req.OfferID.String()).
			Msg("self-purchase attempt")
		return nil, model.ErrSelfPurchase
	}

	existing, err := s.orderRepo.FindActiveByArtifactAndBuyer(ctx, req.OfferID, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing response: %w", err)
	}
	if existing != nil {
		return nil, &model.DuplicateResponseError{ExistingOrderID: existing.ID}
	}

	buyer, err := s.userRepo.GetByID(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to load buyer: %w", err)
	}
	if buyer == nil {
		return nil, model.ErrUnauthenticated
	}
	seller, err := s.userRepo.GetByID(ctx, artifact.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load seller: %w", err)
	}
	if seller == nil {
		return nil, model.ErrArtifactNotFound
	}

	order := s.buildOrder(req, artifact, buyer, seller)

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	if err = s.orderRepo.Create(ctx, tx, order); err != nil {
		// One retry on a same-second order number collision.
		if isUniqueViolation(err) {
			order.OrderNumber = s.numbers.Next()
			err = s.orderRepo.Create(ctx, tx, order)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create order: %w", err)
		}
	}

	// Reservation at creation is unconditional; free stock is only
	// checked at acceptance. Requests carry no inventory.
	if !order.IsRequest {
		if err = s.artifactRepo.Reserve(ctx, tx, order.OfferID, order.Quantity); err != nil {
			return nil, fmt.Errorf("failed to reserve inventory: %w", err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Str("status", string(order.Status)).
		Bool("is_request", order.IsRequest).
		Msg("order created")

	s.dispatcher.Dispatch([]model.Notification{notifyNewResponse(order)})

	return &model.CreateOrderResponse{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		OrderDate:   order.OrderDate,
		Status:      order.Status,
	}, nil
}

// buildOrder assembles the row, denormalizing the party snapshots.
func (s *orderService) buildOrder(req *model.CreateOrderRequest, artifact *model.Artifact, buyer, seller *model.User) *model.Order {
	now := s.now()
	total := artifact.PricePerUnit * float64(req.Quantity)

	order := &model.Order{
		ID:          uuid.New(),
		OrderNumber: s.numbers.Next(),

		BuyerID:      buyer.ID,
		BuyerName:    buyer.Name,
		BuyerPhone:   buyer.Phone,
		BuyerEmail:   buyer.Email,
		BuyerCompany: buyer.Company,
		BuyerINN:     buyer.INN,

		SellerID:    seller.ID,
		SellerName:  seller.Name,
		SellerPhone: seller.Phone,
		SellerEmail: seller.Email,

		OfferID:   artifact.ID,
		IsRequest: artifact.IsRequest(),

		Title:            artifact.Title,
		Unit:             artifact.Unit,
		Quantity:         req.Quantity,
		OriginalQuantity: req.Quantity,
		PricePerUnit:     artifact.PricePerUnit,
		TotalAmount:      total,
		HasVAT:           req.HasVAT,

		DeliveryType:    req.DeliveryType,
		DeliveryAddress: req.DeliveryAddress,
		District:        req.District,
		DeliveryDays:    req.DeliveryDays,

		Status:    model.StatusNew,
		OrderDate: now,
		UpdatedAt: now,

		BuyerComment: req.BuyerComment,
		Attachments:  req.Attachments,
	}

	if order.HasVAT {
		order.VATAmount = vatIncluded(total)
	}

	if req.CounterPrice != nil {
		price := *req.CounterPrice
		counterTotal := price * float64(req.Quantity)
		role := model.RoleBuyer
		order.Status = model.StatusNegotiating
		order.CounterPricePerUnit = &price
		order.CounterTotalAmount = &counterTotal
		order.CounterOfferedAt = &now
		order.CounterOfferedBy = &role
		if req.CounterMessage != "" {
			msg := req.CounterMessage
			order.CounterOfferMessage = &msg
		}
	}

	return order
}

// vatIncluded extracts the VAT share from a gross amount.
func vatIncluded(gross float64) float64 {
	return gross * vatRate / (1 + vatRate)
}

// isUniqueViolation reports a PostgreSQL unique constraint error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// List returns the principal's orders, newest first.
func (s *orderService) List(ctx context.Context, principal uuid.UUID, filter model.ListFilter) ([]model.OrderView, error) {
	if principal == uuid.Nil {
		return nil, model.ErrUnauthenticated
	}

	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	views, err := s.orderRepo.List(ctx, principal, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return views, nil
}

// Get returns a single order resolved with the principal's role view.
func (s *orderService) Get(ctx context.Context, principal, id uuid.UUID) (*model.OrderView, error) {
	if principal == uuid.Nil {
		return nil, model.ErrUnauthenticated
	}

	view, err := s.orderRepo.GetView(ctx, id, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if view == nil {
		return nil, model.ErrOrderNotFound
	}
	if view.Role == "" {
		return nil, model.ErrNotParty
	}
	return view, nil
}

// CheckResponse reports the principal's active response to the artifact.
func (s *orderService) CheckResponse(ctx context.Context, principal, artifactID uuid.UUID) (*model.Order, error) {
	if principal == uuid.Nil {
		return nil, model.ErrUnauthenticated
	}

	order, err := s.orderRepo.FindActiveByArtifactAndBuyer(ctx, artifactID, principal)
	if err != nil {
		return nil, fmt.Errorf("failed to check response: %w", err)
	}
	return order, nil
}

// Delete hard-deletes an order, releasing any reservation it holds.
// Messages cascade at the schema level.
func (s *orderService) Delete(ctx context.Context, principal, id uuid.UUID) error {
	if principal == uuid.Nil {
		return model.ErrUnauthenticated
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	if order == nil {
		err = model.ErrOrderNotFound
		return err
	}
	if order.RoleOf(principal) == "" {
		err = model.ErrNotParty
		return err
	}
	if order.Status != model.StatusNew && order.Status != model.StatusNegotiating {
		err = model.NewDomainError(model.ErrCodeConflict, "only orders in new or negotiating may be deleted")
		return err
	}

	// The pending reservation must not outlive the order row.
	if !order.IsRequest {
		if err = s.artifactRepo.Release(ctx, tx, order.OfferID, order.Quantity); err != nil {
			return fmt.Errorf("failed to release inventory: %w", err)
		}
	}

	if err = s.orderRepo.Delete(ctx, tx, id); err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}

	s.logger.Info().Str("order_id", id.String()).Msg("order deleted")
	return nil
}
