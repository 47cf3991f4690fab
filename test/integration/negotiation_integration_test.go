package integration

import (
	"context"
	"sync"
	"testing"

	"tradedesk/internal/model"
	"tradedesk/internal/ordernum"
	"tradedesk/internal/repository"
	"tradedesk/internal/service"
	"tradedesk/internal/storage"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureDispatcher records dispatched notifications synchronously.
type captureDispatcher struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (d *captureDispatcher) Dispatch(batch []model.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, batch...)
}

func (d *captureDispatcher) byKind(kind model.NotificationKind) []model.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []model.Notification
	for _, n := range d.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type services struct {
	orders       service.OrderService
	negotiations service.NegotiationService
	messages     service.MessageService
	dispatcher   *captureDispatcher
}

func setupServices(t *testing.T, testDB *TestDB) *services {
	t.Helper()

	logger := zerolog.Nop()
	dispatcher := &captureDispatcher{}

	artifactRepo := repository.NewArtifactRepository(testDB.Pool, logger)
	orderRepo := repository.NewOrderRepository(testDB.Pool, logger)
	messageRepo := repository.NewMessageRepository(testDB.Pool, logger)
	userRepo := repository.NewUserRepository(testDB.Pool, logger)

	store := storage.NewLocalStore(t.TempDir(), logger)

	return &services{
		orders:       service.NewOrderService(orderRepo, artifactRepo, userRepo, ordernum.NewGenerator(), dispatcher, logger),
		negotiations: service.NewNegotiationService(orderRepo, artifactRepo, userRepo, dispatcher, logger),
		messages:     service.NewMessageService(messageRepo, orderRepo, artifactRepo, store, dispatcher, logger),
		dispatcher:   dispatcher,
	}
}

func TestOfferLifecycle_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	svcs := setupServices(t, testDB)
	ctx := context.Background()

	seller := seedUser(t, testDB.Pool, "seller")
	buyer := seedUser(t, testDB.Pool, "buyer")
	offerID := seedOffer(t, testDB.Pool, seller, 100, 10, 0, 0)

	// Create: order opens in new with the reservation taken.
	resp, err := svcs.orders.Create(ctx, buyer, &model.CreateOrderRequest{OfferID: offerID, Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, model.StatusNew, resp.Status)

	view, err := svcs.orders.Get(ctx, buyer, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, 300.0, view.TotalAmount)
	assert.Equal(t, model.RoleBuyer, view.Role)

	_, sold, reserved := offerState(t, testDB.Pool, offerID)
	assert.Equal(t, 0, sold)
	assert.Equal(t, 3, reserved)

	// Accept: reservation becomes sold.
	status := model.StatusAccepted
	order, err := svcs.negotiations.Apply(ctx, seller, resp.ID, &model.OrderPatch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, order.Status)

	_, sold, reserved = offerState(t, testDB.Pool, offerID)
	assert.Equal(t, 3, sold)
	assert.Equal(t, 0, reserved)

	// Complete: inventory untouched.
	status = model.StatusCompleted
	order, err = svcs.negotiations.Apply(ctx, buyer, resp.ID, &model.OrderPatch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, order.Status)
	assert.NotNil(t, order.CompletedDate)

	_, sold, reserved = offerState(t, testDB.Pool, offerID)
	assert.Equal(t, 3, sold)
	assert.Equal(t, 0, reserved)

	// Terminal orders admit no further transitions.
	status = model.StatusCancelled
	_, err = svcs.negotiations.Apply(ctx, buyer, resp.ID, &model.OrderPatch{Status: &status})
	var termErr *model.TerminalStateError
	require.ErrorAs(t, err, &termErr)
	assert.Equal(t, model.StatusCompleted, termErr.Status)
}

func TestCounterOfferAcceptedBySeller_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	svcs := setupServices(t, testDB)
	ctx := context.Background()

	seller := seedUser(t, testDB.Pool, "seller")
	buyer := seedUser(t, testDB.Pool, "buyer")
	offerID := seedOffer(t, testDB.Pool, seller, 100, 10, 0, 0)

	counter := 85.0
	resp, err := svcs.orders.Create(ctx, buyer, &model.CreateOrderRequest{
		OfferID:      offerID,
		Quantity:     3,
		CounterPrice: &counter,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusNegotiating, resp.Status)

	view, err := svcs.orders.Get(ctx, buyer, resp.ID)
	require.NoError(t, err)
	require.NotNil(t, view.CounterOfferedBy)
	assert.Equal(t, model.RoleBuyer, *view.CounterOfferedBy)
	require.NotNil(t, view.CounterPricePerUnit)
	assert.Equal(t, 85.0, *view.CounterPricePerUnit)
	require.NotNil(t, view.CounterTotalAmount)
	assert.Equal(t, 255.0, *view.CounterTotalAmount)

	order, err := svcs.negotiations.Apply(ctx, seller, resp.ID, &model.OrderPatch{AcceptCounter: true})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, order.Status)
	assert.Equal(t, 85.0, order.PricePerUnit)
	assert.Equal(t, 255.0, order.TotalAmount)

	_, sold, reserved := offerState(t, testDB.Pool, offerID)
	assert.Equal(t, 3, sold)
	assert.Equal(t, 0, reserved)
}

func TestSiblingRejectionOnRequestAccept_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	svcs := setupServices(t, testDB)
	ctx := context.Background()

	owner := seedUser(t, testDB.Pool, "owner")
	requestID := seedRequest(t, testDB.Pool, owner, 50, 100)

	var orderIDs []uuid.UUID
	for _, name := range []string{"b1", "b2", "b3"} {
		responder := seedUser(t, testDB.Pool, name)
		resp, err := svcs.orders.Create(ctx, responder, &model.CreateOrderRequest{OfferID: requestID, Quantity: 10})
		require.NoError(t, err)
		assert.Equal(t, model.StatusNew, resp.Status)
		orderIDs = append(orderIDs, resp.ID)
	}

	status := model.StatusAccepted
	order, err := svcs.negotiations.Apply(ctx, owner, orderIDs[1], &model.OrderPatch{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, order.Status)

	assert.Equal(t, model.StatusRejected, orderStatus(t, testDB.Pool, orderIDs[0]))
	assert.Equal(t, model.StatusRejected, orderStatus(t, testDB.Pool, orderIDs[2]))

	var reason string
	err = testDB.Pool.QueryRow(ctx,
		`SELECT cancellation_reason FROM orders WHERE id = $1`, orderIDs[0]).Scan(&reason)
	require.NoError(t, err)
	assert.Equal(t, model.SiblingRejectionReason, reason)

	rejected := svcs.dispatcher.byKind(model.KindOrderRejected)
	assert.Len(t, rejected, 2)
}

func TestInsufficientInventoryAtAccept_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	svcs := setupServices(t, testDB)
	ctx := context.Background()

	seller := seedUser(t, testDB.Pool, "seller")
	firstBuyer := seedUser(t, testDB.Pool, "first")
	secondBuyer := seedUser(t, testDB.Pool, "second")

	// Stock of 5 fully reserved by an earlier pending order.
	offerID := seedOffer(t, testDB.Pool, seller, 100, 5, 0, 0)
	_, err := svcs.orders.Create(ctx, firstBuyer, &model.CreateOrderRequest{OfferID: offerID, Quantity: 5})
	require.NoError(t, err)

	// Overbooking at creation is permitted.
	resp, err := svcs.orders.Create(ctx, secondBuyer, &model.CreateOrderRequest{OfferID: offerID, Quantity: 3})
	require.NoError(t, err)

	_, sold, reserved := offerState(t, testDB.Pool, offerID)
	assert.Equal(t, 0, sold)
	assert.Equal(t, 8, reserved)

	// Acceptance is where the stock check bites.
	status := model.StatusAccepted
	_, err = svcs.negotiations.Apply(ctx, seller, resp.ID, &model.OrderPatch{Status: &status})

	var invErr *model.InsufficientInventoryError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, -3, invErr.Available)
	assert.Equal(t, 3, invErr.Requested)

	assert.Equal(t, model.StatusNew, orderStatus(t, testDB.Pool, resp.ID))
	_, sold, reserved = offerState(t, testDB.Pool, offerID)
	assert.Equal(t, 0, sold)
	assert.Equal(t, 8, reserved)
}

func TestDuplicateResponse_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	svcs := setupServices(t, testDB)
	ctx := context.Background()

	owner := seedUser(t, testDB.Pool, "owner")
	responder := seedUser(t, testDB.Pool, "responder")
	requestID := seedRequest(t, testDB.Pool, owner, 50, 100)

	first, err := svcs.orders.Create(ctx, responder, &model.CreateOrderRequest{OfferID: requestID, Quantity: 10})
	require.NoError(t, err)

	_, err = svcs.orders.Create(ctx, responder, &model.CreateOrderRequest{OfferID: requestID, Quantity: 5})
	var dupErr *model.DuplicateResponseError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, first.ID, dupErr.ExistingOrderID)

	// CheckResponse reports the standing order.
	existing, err := svcs.orders.CheckResponse(ctx, responder, requestID)
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, first.ID, existing.ID)
}

func TestSelfPurchaseForbidden_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	svcs := setupServices(t, testDB)
	ctx := context.Background()

	owner := seedUser(t, testDB.Pool, "owner")
	offerID := seedOffer(t, testDB.Pool, owner, 100, 10, 0, 0)

	_, err := svcs.orders.Create(ctx, owner, &model.CreateOrderRequest{OfferID: offerID, Quantity: 1})
	assert.ErrorIs(t, err, model.ErrSelfPurchase)

	var count int
	require.NoError(t, testDB.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestCancelRestoresReservation_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	svcs := setupServices(t, testDB)
	ctx := context.Background()

	seller := seedUser(t, testDB.Pool, "seller")
	buyer := seedUser(t, testDB.Pool, "buyer")
	offerID := seedOffer(t, testDB.Pool, seller, 100, 10, 0, 0)

	resp, err := svcs.orders.Create(ctx, buyer, &model.CreateOrderRequest{OfferID: offerID, Quantity: 4})
	require.NoError(t, err)

	status := model.StatusCancelled
	_, err = svcs.negotiations.Apply(ctx, buyer, resp.ID, &model.OrderPatch{Status: &status})
	require.NoError(t, err)

	_, sold, reserved := offerState(t, testDB.Pool, offerID)
	assert.Equal(t, 0, sold)
	assert.Equal(t, 0, reserved)

	// A cancelled order does not block a fresh response.
	again, err := svcs.orders.Create(ctx, buyer, &model.CreateOrderRequest{OfferID: offerID, Quantity: 2})
	require.NoError(t, err)
	assert.NotEqual(t, resp.ID, again.ID)
	assert.Equal(t, model.StatusCancelled, orderStatus(t, testDB.Pool, resp.ID))
}

func TestSellerCancelPenalty_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	svcs := setupServices(t, testDB)
	ctx := context.Background()

	seller := seedUser(t, testDB.Pool, "seller")
	buyer := seedUser(t, testDB.Pool, "buyer")
	offerID := seedOffer(t, testDB.Pool, seller, 100, 10, 0, 0)

	resp, err := svcs.orders.Create(ctx, buyer, &model.CreateOrderRequest{OfferID: offerID, Quantity: 1})
	require.NoError(t, err)

	status := model.StatusCancelled
	_, err = svcs.negotiations.Apply(ctx, seller, resp.ID, &model.OrderPatch{Status: &status})
	require.NoError(t, err)

	var rating float64
	require.NoError(t, testDB.Pool.QueryRow(ctx, `SELECT rating FROM users WHERE id = $1`, seller).Scan(&rating))
	assert.InDelta(t, 5.0*0.95, rating, 0.0001)
}

func TestConversation_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	svcs := setupServices(t, testDB)
	ctx := context.Background()

	seller := seedUser(t, testDB.Pool, "seller")
	buyer := seedUser(t, testDB.Pool, "buyer")
	offerID := seedOffer(t, testDB.Pool, seller, 100, 10, 0, 0)

	resp, err := svcs.orders.Create(ctx, buyer, &model.CreateOrderRequest{OfferID: offerID, Quantity: 1})
	require.NoError(t, err)

	_, err = svcs.messages.Post(ctx, buyer, &model.PostMessageRequest{OrderID: resp.ID, Text: "Когда отгрузка?"})
	require.NoError(t, err)
	_, err = svcs.messages.Post(ctx, seller, &model.PostMessageRequest{OrderID: resp.ID, Text: "Завтра утром"})
	require.NoError(t, err)

	// Unread counts the counterparty's messages only.
	view, err := svcs.orders.Get(ctx, buyer, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, view.UnreadMessages)

	// Fetching the conversation marks them read.
	msgs, err := svcs.messages.ListByOrder(ctx, buyer, resp.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "Когда отгрузка?", msgs[0].Message)

	view, err = svcs.orders.Get(ctx, buyer, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, view.UnreadMessages)

	// Outsiders see nothing.
	stranger := seedUser(t, testDB.Pool, "stranger")
	_, err = svcs.messages.ListByOrder(ctx, stranger, resp.ID)
	assert.ErrorIs(t, err, model.ErrNotParty)
}

func TestOrderNumberUnique_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	testDB := SetupTestDB(t)
	svcs := setupServices(t, testDB)
	ctx := context.Background()

	seller := seedUser(t, testDB.Pool, "seller")
	offerID := seedOffer(t, testDB.Pool, seller, 100, 100, 0, 0)

	numbers := make(map[string]bool)
	for i := 0; i < 5; i++ {
		buyer := seedUser(t, testDB.Pool, "buyer")
		resp, err := svcs.orders.Create(ctx, buyer, &model.CreateOrderRequest{OfferID: offerID, Quantity: 1})
		require.NoError(t, err)
		assert.False(t, numbers[resp.OrderNumber], "order number %s repeated", resp.OrderNumber)
		numbers[resp.OrderNumber] = true
	}
}
