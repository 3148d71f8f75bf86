package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okoshkin/go_market/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	creds := &Credentials{
		Host:              host,
		Port:              port.Int(),
		User:              "testuser",
		Password:          "testpass",
		DBName:            "testdb",
		MigrationsDirPath: "./migrations",
	}

	store, err := NewPostgresStore(creds)
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations(creds))

	cleanup := func() {
		store.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return store, cleanup
}

func testOrder(token, vendorID string) *domain.Order {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.Order{
		ID:           uuid.New(),
		OrderNumber:  "MKT-20260829-" + uuid.NewString()[:8],
		UserID:       "u1",
		VendorID:     vendorID,
		SessionToken: token,
		Items: []domain.OrderItem{
			{ProductID: 1, Name: "Kettle", UnitPrice: 120, Quantity: 2},
		},
		Breakdown: domain.PriceBreakdown{Subtotal: 240, DeliveryFee: 100, Total: 340},
		Currency:  "USD",
		StatusHistory: []domain.StatusEvent{
			{Status: domain.OrderStatusPending, At: now, Actor: domain.ActorSystem, Note: "order placed"},
		},
		CreatedAt: now,
	}
}

func TestCreateOrder_RoundTrip(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	order := testOrder(uuid.NewString(), "vendor-a")
	require.NoError(t, store.CreateOrder(ctx, order))

	got, err := store.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, got.OrderNumber)
	assert.Equal(t, order.VendorID, got.VendorID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Kettle", got.Items[0].Name)
	assert.Equal(t, 340.0, got.Breakdown.Total)
	assert.Equal(t, domain.OrderStatusPending, got.Status())
}

func TestCreateOrder_DuplicateSubmissionRejected(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	token := uuid.NewString()
	require.NoError(t, store.CreateOrder(ctx, testOrder(token, "vendor-a")))

	err := store.CreateOrder(ctx, testOrder(token, "vendor-a"))
	assert.ErrorIs(t, err, ErrDuplicateSubmission)

	// a different vendor under the same token is a separate order
	assert.NoError(t, store.CreateOrder(ctx, testOrder(token, "vendor-b")))
}

func TestGetOrderBySubmission(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	token := uuid.NewString()
	order := testOrder(token, "vendor-a")
	require.NoError(t, store.CreateOrder(ctx, order))

	got, err := store.GetOrderBySubmission(ctx, token, "vendor-a")
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = store.GetOrderBySubmission(ctx, token, "vendor-z")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestAppendStatusEvent_LedgerAndStamps(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	order := testOrder(uuid.NewString(), "vendor-a")
	require.NoError(t, store.CreateOrder(ctx, order))

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, store.AppendStatusEvent(ctx, order.ID, domain.StatusEvent{
		Status: domain.OrderStatusConfirmed, At: now, Actor: domain.ActorSystem,
	}))
	require.NoError(t, store.AppendStatusEvent(ctx, order.ID, domain.StatusEvent{
		Status: domain.OrderStatusCancelled, At: now, Actor: domain.ActorCustomer, Note: "cancelled by customer: test",
	}))

	got, err := store.GetOrderByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, got.StatusHistory, 3)
	assert.Equal(t, domain.OrderStatusCancelled, got.Status())
	assert.NotNil(t, got.CancelledAt)
	assert.Nil(t, got.DeliveredAt)
}

func TestListOrders_Filters(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	first := testOrder(uuid.NewString(), "vendor-a")
	second := testOrder(uuid.NewString(), "vendor-b")
	require.NoError(t, store.CreateOrder(ctx, first))
	require.NoError(t, store.CreateOrder(ctx, second))
	require.NoError(t, store.AppendStatusEvent(ctx, second.ID, domain.StatusEvent{
		Status: domain.OrderStatusConfirmed, At: time.Now().UTC(), Actor: domain.ActorSystem,
	}))

	all, err := store.ListOrders(ctx, "u1", domain.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := store.ListOrders(ctx, "u1", domain.OrderFilter{Status: domain.OrderStatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID)

	tomorrow := time.Now().Add(24 * time.Hour)
	none, err := store.ListOrders(ctx, "u1", domain.OrderFilter{From: &tomorrow})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOutbox_WrittenWithOrderAndDrained(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	order := testOrder(uuid.NewString(), "vendor-a")
	require.NoError(t, store.CreateOrder(ctx, order))
	require.NoError(t, store.AppendStatusEvent(ctx, order.ID, domain.StatusEvent{
		Status: domain.OrderStatusConfirmed, At: time.Now().UTC(), Actor: domain.ActorSystem,
	}))

	events, err := store.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "order.created", events[0].EventType)
	assert.Equal(t, "order.status_changed", events[1].EventType)
	assert.Equal(t, order.ID.String(), events[0].AggregateID)

	require.NoError(t, store.MarkEventAsProcessed(ctx, events[0].ID))
	remaining, err := store.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, events[1].ID, remaining[0].ID)
}

func TestPaymentAttempts_RoundTrip(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	order := testOrder(uuid.NewString(), "vendor-a")
	require.NoError(t, store.CreateOrder(ctx, order))

	now := time.Now().UTC().Truncate(time.Millisecond)
	attempt := &domain.PaymentAttempt{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Method:    domain.PaymentMethodCard,
		Amount:    340,
		Currency:  "USD",
		Status:    domain.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateAttempt(ctx, attempt))

	attempt.Status = domain.PaymentStatusAuthorized
	attempt.ProviderRef = "ch_42"
	require.NoError(t, store.UpdateAttempt(ctx, attempt))

	byRef, err := store.GetAttemptByProviderRef(ctx, "ch_42")
	require.NoError(t, err)
	assert.Equal(t, attempt.ID, byRef.ID)
	assert.Equal(t, domain.PaymentStatusAuthorized, byRef.Status)

	list, err := store.ListAttempts(ctx, order.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRefunds_OpenLookup(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	order := testOrder(uuid.NewString(), "vendor-a")
	require.NoError(t, store.CreateOrder(ctx, order))

	_, err := store.GetOpenRefundByOrder(ctx, order.ID)
	assert.ErrorIs(t, err, ErrRefundNotFound)

	now := time.Now().UTC().Truncate(time.Millisecond)
	refund := &domain.RefundRequest{
		ID:        uuid.New(),
		OrderID:   order.ID,
		Reason:    "broken on arrival",
		Status:    domain.RefundStatusRequested,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateRefund(ctx, refund))

	open, err := store.GetOpenRefundByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, refund.ID, open.ID)

	refund.Status = domain.RefundStatusRejected
	require.NoError(t, store.UpdateRefund(ctx, refund))
	_, err = store.GetOpenRefundByOrder(ctx, order.ID)
	assert.ErrorIs(t, err, ErrRefundNotFound)
}

func TestSessions_RoundTripAndStaleReaper(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	session := &domain.CheckoutSession{
		ID:     uuid.New(),
		Token:  uuid.NewString(),
		UserID: "u1",
		State: domain.CheckoutState{
			Step:              domain.StepPayment,
			SelectedAddressID: "addr-1",
		},
		Status: domain.CheckoutStatusInitiated,
		Snapshot: &domain.CartSnapshot{
			Lines: []domain.CartLine{
				{ID: "l1", ProductID: 1, VendorID: "vendor-a", UnitPrice: 120, Quantity: 2, Available: true},
			},
			Subtotal:   240,
			Currency:   "USD",
			CapturedAt: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateSession(ctx, session))

	got, err := store.GetSessionByToken(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.StepPayment, got.State.Step)
	require.NotNil(t, got.Snapshot)
	assert.Equal(t, 240.0, got.Snapshot.Subtotal)

	// fresh SUBMITTING sessions are left alone
	got.Status = domain.CheckoutStatusSubmitting
	require.NoError(t, store.UpdateSession(ctx, got))
	n, err := store.FailStaleSubmitting(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	// anything older than the cutoff is failed
	n, err = store.FailStaleSubmitting(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	failed, err := store.GetSessionByToken(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusFailed, failed.Status)
}
