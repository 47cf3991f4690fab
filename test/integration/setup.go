package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"tradedesk/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB represents a test database instance.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	ConnStr   string
}

// SetupTestDB creates a PostgreSQL test container, applies the schema
// and returns a connection pool.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("failed to parse connection string: %v", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	applySchema(t, pool)

	t.Cleanup(func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return &TestDB{
		Container: postgresContainer,
		Pool:      pool,
		ConnStr:   connStr,
	}
}

// applySchema runs the initial migration so the integration suite
// exercises the same schema the server boots with.
func applySchema(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	schema, err := os.ReadFile("../../migrations/000001_init.up.sql")
	if err != nil {
		t.Fatalf("failed to read schema migration: %v", err)
	}
	if _, err := pool.Exec(context.Background(), string(schema)); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
}

// seedUser inserts a user row and returns its id.
func seedUser(t *testing.T, pool *pgxpool.Pool, name string) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, name, phone, email, company, inn)
		VALUES ($1, $2, '+79990000000', $3, 'ООО Тест', '7700000000')`,
		id, name, name+"@example.com")
	if err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return id
}

// seedOffer inserts a sell-side listing and returns its id.
func seedOffer(t *testing.T, pool *pgxpool.Pool, ownerID uuid.UUID, price float64, quantity, sold, reserved int) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO offers (id, owner_id, title, unit, price_per_unit, quantity, sold_quantity, reserved_quantity)
		VALUES ($1, $2, 'Цемент М500', 'т', $3, $4, $5, $6)`,
		id, ownerID, price, quantity, sold, reserved)
	if err != nil {
		t.Fatalf("failed to seed offer: %v", err)
	}
	return id
}

// seedRequest inserts a buy-side listing and returns its id.
func seedRequest(t *testing.T, pool *pgxpool.Pool, ownerID uuid.UUID, price float64, quantity int) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO requests (id, owner_id, title, unit, price_per_unit, quantity)
		VALUES ($1, $2, 'Поставка щебня', 'т', $3, $4)`,
		id, ownerID, price, quantity)
	if err != nil {
		t.Fatalf("failed to seed request: %v", err)
	}
	return id
}

// offerState reads back the offer's inventory triple.
func offerState(t *testing.T, pool *pgxpool.Pool, offerID uuid.UUID) (quantity, sold, reserved int) {
	t.Helper()

	err := pool.QueryRow(context.Background(), `
		SELECT quantity, sold_quantity, reserved_quantity FROM offers WHERE id = $1`,
		offerID).Scan(&quantity, &sold, &reserved)
	if err != nil {
		t.Fatalf("failed to read offer state: %v", err)
	}
	return
}

// orderStatus reads back a single order's status.
func orderStatus(t *testing.T, pool *pgxpool.Pool, orderID uuid.UUID) model.OrderStatus {
	t.Helper()

	var status string
	err := pool.QueryRow(context.Background(), `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if err != nil {
		t.Fatalf("failed to read order status: %v", err)
	}
	return model.OrderStatus(status)
}
