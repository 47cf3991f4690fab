package service

import (
	"context"
	"time"

	"tradedesk/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// MockOrderRepository is a mock implementation of OrderRepository.
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if tx, ok := args.Get(0).(pgx.Tx); ok {
		return tx, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockOrderRepository) Create(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	args := m.Called(ctx, tx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) List(ctx context.Context, userID uuid.UUID, filter model.ListFilter) ([]model.OrderView, error) {
	args := m.Called(ctx, userID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.OrderView), args.Error(1)
}

func (m *MockOrderRepository) GetView(ctx context.Context, id, userID uuid.UUID) (*model.OrderView, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OrderView), args.Error(1)
}

func (m *MockOrderRepository) FindActiveByArtifactAndBuyer(ctx context.Context, artifactID, buyerID uuid.UUID) (*model.Order, error) {
	args := m.Called(ctx, artifactID, buyerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Order), args.Error(1)
}

func (m *MockOrderRepository) Update(ctx context.Context, tx pgx.Tx, order *model.Order) error {
	args := m.Called(ctx, tx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) RejectSiblings(ctx context.Context, tx pgx.Tx, offerID, acceptedID uuid.UUID, reason string) ([]model.Order, error) {
	args := m.Called(ctx, tx, offerID, acceptedID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Order), args.Error(1)
}

func (m *MockOrderRepository) Delete(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

// MockArtifactRepository is a mock implementation of ArtifactRepository.
type MockArtifactRepository struct {
	mock.Mock
}

func (m *MockArtifactRepository) Resolve(ctx context.Context, id uuid.UUID) (*model.Artifact, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Artifact), args.Error(1)
}

func (m *MockArtifactRepository) GetOfferForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Artifact, error) {
	args := m.Called(ctx, tx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Artifact), args.Error(1)
}

func (m *MockArtifactRepository) LockRequest(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockArtifactRepository) Reserve(ctx context.Context, tx pgx.Tx, offerID uuid.UUID, q int) error {
	args := m.Called(ctx, tx, offerID, q)
	return args.Error(0)
}

func (m *MockArtifactRepository) Commit(ctx context.Context, tx pgx.Tx, offerID uuid.UUID, q int) error {
	args := m.Called(ctx, tx, offerID, q)
	return args.Error(0)
}

func (m *MockArtifactRepository) Release(ctx context.Context, tx pgx.Tx, offerID uuid.UUID, q int) error {
	args := m.Called(ctx, tx, offerID, q)
	return args.Error(0)
}

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) ApplyRatingPenalty(ctx context.Context, tx pgx.Tx, userID uuid.UUID, factor float64) error {
	args := m.Called(ctx, tx, userID, factor)
	return args.Error(0)
}

// MockMessageRepository is a mock implementation of MessageRepository.
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Create(ctx context.Context, msg *model.OrderMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.OrderMessage, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OrderMessage), args.Error(1)
}

func (m *MockMessageRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.OrderMessage, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.OrderMessage), args.Error(1)
}

func (m *MockMessageRepository) MarkRead(ctx context.Context, orderID, readerID uuid.UUID) error {
	args := m.Called(ctx, orderID, readerID)
	return args.Error(0)
}

func (m *MockMessageRepository) ListByArtifact(ctx context.Context, artifactID uuid.UUID) ([]model.OrderMessage, error) {
	args := m.Called(ctx, artifactID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.OrderMessage), args.Error(1)
}

func (m *MockMessageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockObjectStore is a mock implementation of storage.ObjectStore.
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) Put(ctx context.Context, filename, mime string, data []byte) (string, error) {
	args := m.Called(ctx, filename, mime, data)
	return args.String(0), args.Error(1)
}

func (m *MockObjectStore) Delete(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

// CapturingDispatcher records every dispatched batch synchronously so
// tests can assert on post-commit notifications.
type CapturingDispatcher struct {
	Batches [][]model.Notification
}

func (d *CapturingDispatcher) Dispatch(batch []model.Notification) {
	d.Batches = append(d.Batches, batch)
}

// Sent flattens all dispatched batches.
func (d *CapturingDispatcher) Sent() []model.Notification {
	var all []model.Notification
	for _, b := range d.Batches {
		all = append(all, b...)
	}
	return all
}

// Kinds returns the kinds of every dispatched notification in order.
func (d *CapturingDispatcher) Kinds() []model.NotificationKind {
	var kinds []model.NotificationKind
	for _, n := range d.Sent() {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

// MockTx is a minimal mock implementation of pgx.Tx for testing.
type MockTx struct {
	mock.Mock
	committed  bool
	rolledBack bool
}

func (m *MockTx) Commit(ctx context.Context) error {
	args := m.Called(ctx)
	m.committed = true
	return args.Error(0)
}

func (m *MockTx) Rollback(ctx context.Context) error {
	args := m.Called(ctx)
	m.rolledBack = true
	return args.Error(0)
}

// Stub methods to satisfy pgx.Tx interface - these are not used in our tests
func (m *MockTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (m *MockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (m *MockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (m *MockTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (m *MockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (m *MockTx) Exec(ctx context.Context, sql string, arguments ...any) (commandTag pgconn.CommandTag, err error) {
	return
}
func (m *MockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (m *MockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (m *MockTx) Conn() *pgx.Conn                                               { return nil }

// fixedClock pins service time for deterministic assertions.
func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
