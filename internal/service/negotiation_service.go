package service

import (
	"context"
	"fmt"
	"time"

	"tradedesk/internal/model"
	"tradedesk/internal/notify"
	"tradedesk/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// sellerCancelPenalty is the multiplicative rating reduction applied to
// a seller who cancels. The unit of the rating field is owned by the
// user profile; only the coefficient is fixed here.
const sellerCancelPenalty = 0.95

// negotiationService implements NegotiationService. Every transition
// runs as one transaction: the order row is locked first, the offer row
// second, and sibling rejection happens under the artifact lock, so
// composite effects are atomic and deadlock-free.
type negotiationService struct {
	orderRepo    repository.OrderRepository
	artifactRepo repository.ArtifactRepository
	userRepo     repository.UserRepository
	dispatcher   notify.Dispatcher
	logger       zerolog.Logger
	now          func() time.Time
}

// NewNegotiationService creates the order state machine service.
func NewNegotiationService(
	orderRepo repository.OrderRepository,
	artifactRepo repository.ArtifactRepository,
	userRepo repository.UserRepository,
	dispatcher notify.Dispatcher,
	logger zerolog.Logger,
) NegotiationService {
	return &negotiationService{
		orderRepo:    orderRepo,
		artifactRepo: artifactRepo,
		userRepo:     userRepo,
		dispatcher:   dispatcher,
		logger:       logger.With().Str("service", "negotiation").Logger(),
		now:          time.Now,
	}
}

// Apply validates and persists one transition. Notifications are
// collected during the transaction and dispatched only after commit.
func (s *negotiationService) Apply(ctx context.Context, principal, orderID uuid.UUID, patch *model.OrderPatch) (*model.Order, error) {
	if principal == uuid.Nil {
		return nil, model.ErrUnauthenticated
	}
	if patch == nil {
		return nil, model.NewDomainError(model.ErrCodeValidation, "empty patch")
	}

	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to apply transition: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	// Order row lock comes first, offer row lock second, always.
	order, err := s.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to apply transition: %w", err)
	}
	if order == nil {
		err = model.ErrOrderNotFound
		return nil, err
	}

	role := order.RoleOf(principal)
	if role == "" {
		err = model.ErrNotParty
		return nil, err
	}

	var batch []model.Notification
	switch {
	case patch.Status != nil:
		batch, err = s.applyStatus(ctx, tx, order, role, patch)
	case patch.AcceptCounter:
		batch, err = s.applyAcceptCounter(ctx, tx, order, role)
	case patch.CounterPrice != nil:
		batch, err = s.applyCounter(ctx, tx, order, role, patch)
	case patch.EditResponse:
		batch, err = s.applyEdit(ctx, tx, order, role, patch)
	case patch.TrackingNumber != nil || patch.DeliveryDate != nil || patch.SellerComment != nil:
		batch, err = s.applyLogistics(order, role, patch)
	default:
		err = model.NewDomainError(model.ErrCodeValidation, "patch contains no recognised fields")
	}
	if err != nil {
		return nil, err
	}

	order.UpdatedAt = s.now()
	if err = s.orderRepo.Update(ctx, tx, order); err != nil {
		return nil, fmt.Errorf("failed to apply transition: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to apply transition: %w", err)
	}

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("status", string(order.Status)).
		Str("actor", string(role)).
		Msg("transition applied")

	s.dispatcher.Dispatch(batch)
	return order, nil
}

// applyStatus handles the {status: ...} patch family.
func (s *negotiationService) applyStatus(ctx context.Context, tx pgx.Tx, order *model.Order, role model.PartyRole, patch *model.OrderPatch) ([]model.Notification, error) {
	target := *patch.Status

	if model.IsTerminal(order.Status) {
		return nil, &model.TerminalStateError{Status: order.Status}
	}

	switch target {
	case model.StatusAccepted:
		return s.accept(ctx, tx, order, role, false)

	case model.StatusCompleted:
		if role != model.RoleBuyer {
			return nil, model.ErrCompleteByBuyer
		}
		if !model.CanTransition(order.Status, model.StatusCompleted) {
			return nil, &model.InvalidTransitionError{From: order.Status, To: model.StatusCompleted}
		}
		now := s.now()
		order.Status = model.StatusCompleted
		order.CompletedDate = &now
		return []model.Notification{notifyOrderCompleted(order)}, nil

	case model.StatusRejected:
		if !model.CanTransition(order.Status, model.StatusRejected) {
			return nil, &model.InvalidTransitionError{From: order.Status, To: model.StatusRejected}
		}
		if err := s.releaseIfOffer(ctx, tx, order); err != nil {
			return nil, err
		}
		order.Status = model.StatusRejected
		order.CancellationReason = patch.CancellationReason
		return []model.Notification{notifyOrderRejected(order, s.counterparty(order, role), patch.CancellationReason)}, nil

	case model.StatusCancelled:
		if order.Status == model.StatusAccepted {
			return nil, model.ErrCancelAccepted
		}
		if !model.CanTransition(order.Status, model.StatusCancelled) {
			return nil, &model.InvalidTransitionError{From: order.Status, To: model.StatusCancelled}
		}
		if err := s.releaseIfOffer(ctx, tx, order); err != nil {
			return nil, err
		}
		order.Status = model.StatusCancelled
		cancelledBy := role
		order.CancelledBy = &cancelledBy
		order.CancellationReason = patch.CancellationReason

		if role == model.RoleSeller {
			if err := s.userRepo.ApplyRatingPenalty(ctx, tx, order.SellerID, sellerCancelPenalty); err != nil {
				return nil, err
			}
		}
		return []model.Notification{notifyOrderCancelled(order, s.counterparty(order, role), patch.CancellationReason)}, nil

	default:
		return nil, model.NewDomainError(model.ErrCodeValidation, fmt.Sprintf("status %q cannot be requested directly", target))
	}
}

// accept moves the order to accepted: free-stock check and ledger
// commit for offer-side, sibling rejection for request-side. When
// viaCounter is set the standing counter has already been adopted.
func (s *negotiationService) accept(ctx context.Context, tx pgx.Tx, order *model.Order, role model.PartyRole, viaCounter bool) ([]model.Notification, error) {
	if model.IsTerminal(order.Status) {
		return nil, &model.TerminalStateError{Status: order.Status}
	}
	if !model.CanTransition(order.Status, model.StatusAccepted) {
		return nil, &model.InvalidTransitionError{From: order.Status, To: model.StatusAccepted}
	}

	if role == model.RoleBuyer && !viaCounter {
		// A buyer cannot accept their own terms; accepting the seller's
		// standing counter is the acceptCounter path.
		if !order.HasStandingCounter() || *order.CounterOfferedBy != model.RoleSeller {
			return nil, model.ErrSellerOnly
		}
		return s.applyAcceptCounterLocked(ctx, tx, order, role)
	}

	var batch []model.Notification

	if order.IsRequest {
		displaced, err := s.rejectSiblings(ctx, tx, order)
		if err != nil {
			return nil, err
		}
		batch = append(batch, displaced...)
	} else {
		if err := s.commitInventory(ctx, tx, order); err != nil {
			return nil, err
		}
	}

	// Quantity is frozen from here on.
	order.Status = model.StatusAccepted

	if viaCounter {
		batch = append(batch, notifyCounterAccepted(order, s.counterparty(order, role)))
	}
	batch = append(batch, notifyOrderAccepted(order))
	return batch, nil
}

// commitInventory checks free stock under the offer lock and moves the
// order's reservation to sold.
func (s *negotiationService) commitInventory(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	offer, err := s.artifactRepo.GetOfferForUpdate(ctx, tx, order.OfferID)
	if err != nil {
		return err
	}
	if offer == nil {
		return model.ErrArtifactNotFound
	}

	// Free stock for this acceptance counts the order's own reservation
	// as available; the reported figure is the raw free quantity.
	freeForAccept := offer.FreeQuantity() + order.Quantity
	if freeForAccept < order.Quantity {
		return &model.InsufficientInventoryError{Available: offer.FreeQuantity(), Requested: order.Quantity}
	}

	return s.artifactRepo.Commit(ctx, tx, order.OfferID, order.Quantity)
}

// rejectSiblings displaces every competing response to the request and
// returns their buyers' notifications.
func (s *negotiationService) rejectSiblings(ctx context.Context, tx pgx.Tx, order *model.Order) ([]model.Notification, error) {
	// The request row lock stands in for the offer lock in the fixed
	// lock order, serializing concurrent acceptances on one artifact.
	if err := s.artifactRepo.LockRequest(ctx, tx, order.OfferID); err != nil {
		return nil, err
	}

	displaced, err := s.orderRepo.RejectSiblings(ctx, tx, order.OfferID, order.ID, model.SiblingRejectionReason)
	if err != nil {
		return nil, err
	}

	batch := make([]model.Notification, 0, len(displaced))
	for i := range displaced {
		sibling := &displaced[i]
		batch = append(batch, notifyOrderRejected(sibling, sibling.BuyerID, model.SiblingRejectionReason))
	}

	if len(displaced) > 0 {
		s.logger.Info().
			Str("request_id", order.OfferID.String()).
			Str("accepted_order_id", order.ID.String()).
			Int("displaced", len(displaced)).
			Msg("sibling responses rejected")
	}
	return batch, nil
}

// applyAcceptCounter handles {acceptCounter: true}.
func (s *negotiationService) applyAcceptCounter(ctx context.Context, tx pgx.Tx, order *model.Order, role model.PartyRole) ([]model.Notification, error) {
	if model.IsTerminal(order.Status) {
		return nil, &model.TerminalStateError{Status: order.Status}
	}
	return s.applyAcceptCounterLocked(ctx, tx, order, role)
}

// applyAcceptCounterLocked adopts the standing counter into the
// authoritative terms, then runs the acceptance effects. The overlay is
// retained for audit.
func (s *negotiationService) applyAcceptCounterLocked(ctx context.Context, tx pgx.Tx, order *model.Order, role model.PartyRole) ([]model.Notification, error) {
	if !order.HasStandingCounter() {
		return nil, model.ErrNoCounter
	}
	if *order.CounterOfferedBy == role {
		return nil, model.ErrOwnCounter
	}

	order.PricePerUnit = *order.CounterPricePerUnit
	if order.CounterTotalAmount != nil {
		order.TotalAmount = *order.CounterTotalAmount
	} else {
		order.TotalAmount = order.PricePerUnit * float64(order.Quantity)
	}
	if order.HasVAT {
		order.VATAmount = vatIncluded(order.TotalAmount)
	}
	if role == model.RoleBuyer {
		order.BuyerAcceptedCounter = true
	}

	return s.accept(ctx, tx, order, role, true)
}

// applyCounter handles a counter proposal from either party.
func (s *negotiationService) applyCounter(ctx context.Context, tx pgx.Tx, order *model.Order, role model.PartyRole, patch *model.OrderPatch) ([]model.Notification, error) {
	if model.IsTerminal(order.Status) {
		return nil, &model.TerminalStateError{Status: order.Status}
	}
	if !model.CanTransition(order.Status, model.StatusNegotiating) {
		return nil, &model.InvalidTransitionError{From: order.Status, To: model.StatusNegotiating}
	}

	price := *patch.CounterPrice
	if price <= 0 {
		return nil, model.ErrInvalidPrice
	}

	if patch.CounterQuantity != nil {
		if err := s.changeQuantity(ctx, tx, order, *patch.CounterQuantity); err != nil {
			return nil, err
		}
	}

	now := s.now()
	counterTotal := price * float64(order.Quantity)
	offeredBy := role
	order.Status = model.StatusNegotiating
	order.CounterPricePerUnit = &price
	order.CounterTotalAmount = &counterTotal
	order.CounterOfferedAt = &now
	order.CounterOfferedBy = &offeredBy
	order.BuyerAcceptedCounter = false
	if patch.CounterMessage != "" {
		msg := patch.CounterMessage
		order.CounterOfferMessage = &msg
	} else {
		order.CounterOfferMessage = nil
	}

	return []model.Notification{notifyCounterOffered(order, s.counterparty(order, role), price)}, nil
}

// applyEdit handles the buyer's pre-acceptance edit of the response.
func (s *negotiationService) applyEdit(ctx context.Context, tx pgx.Tx, order *model.Order, role model.PartyRole, patch *model.OrderPatch) ([]model.Notification, error) {
	if role != model.RoleBuyer {
		return nil, model.ErrBuyerOnly
	}
	if model.IsTerminal(order.Status) {
		return nil, &model.TerminalStateError{Status: order.Status}
	}
	if order.Status != model.StatusNew && order.Status != model.StatusNegotiating {
		return nil, model.NewDomainError(model.ErrCodeConflict, "the response can only be edited before acceptance")
	}

	if patch.PricePerUnit != nil {
		if *patch.PricePerUnit <= 0 {
			return nil, model.ErrInvalidPrice
		}
		order.PricePerUnit = *patch.PricePerUnit
	}
	if patch.Quantity != nil {
		if err := s.changeQuantity(ctx, tx, order, *patch.Quantity); err != nil {
			return nil, err
		}
	}
	if patch.BuyerComment != nil {
		order.BuyerComment = *patch.BuyerComment
	}
	if patch.DeliveryDays != nil {
		order.DeliveryDays = *patch.DeliveryDays
	}
	if patch.Attachments != nil {
		order.Attachments = patch.Attachments
	}

	order.TotalAmount = order.PricePerUnit * float64(order.Quantity)
	if order.HasVAT {
		order.VATAmount = vatIncluded(order.TotalAmount)
	}
	return nil, nil
}

// applyLogistics handles the seller's tracking/delivery metadata patch.
func (s *negotiationService) applyLogistics(order *model.Order, role model.PartyRole, patch *model.OrderPatch) ([]model.Notification, error) {
	if role != model.RoleSeller {
		return nil, model.ErrSellerOnly
	}
	if model.IsTerminal(order.Status) {
		return nil, &model.TerminalStateError{Status: order.Status}
	}

	if patch.TrackingNumber != nil {
		order.TrackingNumber = *patch.TrackingNumber
	}
	if patch.DeliveryDate != nil {
		order.DeliveryDate = patch.DeliveryDate
	}
	if patch.SellerComment != nil {
		order.SellerComment = *patch.SellerComment
	}
	return nil, nil
}

// changeQuantity updates the order quantity, adjusting the offer
// reservation by the delta for offer-side orders.
func (s *negotiationService) changeQuantity(ctx context.Context, tx pgx.Tx, order *model.Order, q int) error {
	if q <= 0 {
		return model.ErrInvalidQuantity
	}
	if q == order.Quantity {
		return nil
	}

	if !order.IsRequest {
		delta := q - order.Quantity
		if delta > 0 {
			if err := s.artifactRepo.Reserve(ctx, tx, order.OfferID, delta); err != nil {
				return err
			}
		} else {
			if err := s.artifactRepo.Release(ctx, tx, order.OfferID, -delta); err != nil {
				return err
			}
		}
	}

	order.Quantity = q
	return nil
}

// releaseIfOffer returns the pending reservation on terminal exits from
// new/negotiating.
func (s *negotiationService) releaseIfOffer(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	if order.IsRequest {
		return nil
	}
	return s.artifactRepo.Release(ctx, tx, order.OfferID, order.Quantity)
}

// counterparty returns the other party's user id.
func (s *negotiationService) counterparty(order *model.Order, role model.PartyRole) uuid.UUID {
	if role == model.RoleBuyer {
		return order.SellerID
	}
	return order.BuyerID
}
