package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/okoshkin/go_market/internal/domain"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(cred *Credentials) (*PostgresStore, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(10)
	return &PostgresStore{db: db}, nil
}

func (r *PostgresStore) RunMigrations(cred *Credentials) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "market_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", cred.MigrationsDirPath),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}
	return nil
}

func (r *PostgresStore) Close() error {
	return r.db.Close()
}

// ---- orders ----

func (r *PostgresStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("marshal order items: %w", err)
	}
	breakdownJSON, err := json.Marshal(order.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	historyJSON, err := json.Marshal(order.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshal status history: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO orders
	          (id, order_number, user_id, vendor_id, session_token, items, breakdown, currency, status_history, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, insertErr := tx.ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		order.UserID,
		order.VendorID,
		order.SessionToken,
		itemsJSON,
		breakdownJSON,
		order.Currency,
		historyJSON,
		order.CreatedAt,
	)
	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateSubmission
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}

	if err := insertOutboxTx(ctx, tx, order, "order.created"); err != nil {
		return err
	}
	return tx.Commit()
}

const orderColumns = `id, order_number, user_id, vendor_id, session_token, items, breakdown,
	currency, COALESCE(tracking_number, ''), status_history, created_at, cancelled_at, delivered_at`

func (r *PostgresStore) GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (r *PostgresStore) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number)
	return scanOrder(row)
}

func (r *PostgresStore) GetOrderBySubmission(ctx context.Context, sessionToken, vendorID string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE session_token = $1 AND vendor_id = $2`,
		sessionToken, vendorID)
	return scanOrder(row)
}

func (r *PostgresStore) ListOrders(ctx context.Context, userID string, f domain.OrderFilter) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1`
	args := []interface{}{userID}
	if f.From != nil {
		args = append(args, *f.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		// status lives in the ledger, so the status filter is applied here
		if f.Status != "" && order.Status() != f.Status {
			continue
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return orders, nil
}

func (r *PostgresStore) AppendStatusEvent(ctx context.Context, orderID uuid.UUID, ev domain.StatusEvent) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	order, err := scanOrder(tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if err != nil {
		return err
	}

	order.StatusHistory = append(order.StatusHistory, ev)
	historyJSON, err := json.Marshal(order.StatusHistory)
	if err != nil {
		return fmt.Errorf("marshal status history: %w", err)
	}

	var cancelledAt, deliveredAt interface{}
	cancelledAt, deliveredAt = order.CancelledAt, order.DeliveredAt
	switch ev.Status {
	case domain.OrderStatusCancelled:
		cancelledAt = ev.At
	case domain.OrderStatusDelivered:
		deliveredAt = ev.At
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET status_history = $1, cancelled_at = $2, delivered_at = $3 WHERE id = $4`,
		historyJSON, cancelledAt, deliveredAt, orderID)
	if err != nil {
		return fmt.Errorf("update status history: %w", err)
	}

	if err := insertOutboxTx(ctx, tx, order, "order.status_changed"); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *PostgresStore) SetTrackingNumber(ctx context.Context, orderID uuid.UUID, tracking string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET tracking_number = $1 WHERE id = $2`, tracking, orderID)
	if err != nil {
		return fmt.Errorf("set tracking number: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func insertOutboxTx(ctx context.Context, tx *sql.Tx, order *domain.Order, eventType string) error {
	payload := map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"user_id":      order.UserID,
		"vendor_id":    order.VendorID,
		"status":       order.Status(),
		"total":        order.Breakdown.Total,
		"currency":     order.Currency,
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_events (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
		order.ID.String(), eventType, payloadJSON)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var itemsJSON, breakdownJSON, historyJSON []byte
	err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&order.UserID,
		&order.VendorID,
		&order.SessionToken,
		&itemsJSON,
		&breakdownJSON,
		&order.Currency,
		&order.TrackingNumber,
		&historyJSON,
		&order.CreatedAt,
		&order.CancelledAt,
		&order.DeliveredAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	if err := json.Unmarshal(breakdownJSON, &order.Breakdown); err != nil {
		return nil, fmt.Errorf("unmarshal breakdown: %w", err)
	}
	if err := json.Unmarshal(historyJSON, &order.StatusHistory); err != nil {
		return nil, fmt.Errorf("unmarshal status history: %w", err)
	}
	return &order, nil
}

// ---- payment attempts ----

func (r *PostgresStore) CreateAttempt(ctx context.Context, a *domain.PaymentAttempt) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payment_attempts
		 (id, order_id, method, provider_ref, amount, currency, status, failure_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.OrderID, a.Method, a.ProviderRef, a.Amount, a.Currency, a.Status, a.FailureReason,
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment attempt: %w", err)
	}
	return nil
}

func (r *PostgresStore) UpdateAttempt(ctx context.Context, a *domain.PaymentAttempt) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE payment_attempts
		 SET status = $1, provider_ref = $2, failure_reason = $3, updated_at = $4
		 WHERE id = $5`,
		a.Status, a.ProviderRef, a.FailureReason, a.UpdatedAt, a.ID)
	if err != nil {
		return fmt.Errorf("update payment attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

const attemptColumns = `id, order_id, method, COALESCE(provider_ref, ''), amount, currency, status,
	COALESCE(failure_reason, ''), created_at, updated_at`

func (r *PostgresStore) GetAttempt(ctx context.Context, id uuid.UUID) (*domain.PaymentAttempt, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE id = $1`, id)
	return scanAttempt(row)
}

func (r *PostgresStore) GetAttemptByProviderRef(ctx context.Context, ref string) (*domain.PaymentAttempt, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE provider_ref = $1`, ref)
	return scanAttempt(row)
}

func (r *PostgresStore) ListAttempts(ctx context.Context, orderID uuid.UUID) ([]*domain.PaymentAttempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM payment_attempts WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query payment attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*domain.PaymentAttempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return attempts, nil
}

func scanAttempt(row rowScanner) (*domain.PaymentAttempt, error) {
	var a domain.PaymentAttempt
	err := row.Scan(&a.ID, &a.OrderID, &a.Method, &a.ProviderRef, &a.Amount, &a.Currency,
		&a.Status, &a.FailureReason, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan payment attempt: %w", err)
	}
	return &a, nil
}

// ---- refund requests ----

func (r *PostgresStore) CreateRefund(ctx context.Context, rr *domain.RefundRequest) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refund_requests (id, order_id, reason, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rr.ID, rr.OrderID, rr.Reason, rr.Status, rr.CreatedAt, rr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert refund request: %w", err)
	}
	return nil
}

func (r *PostgresStore) UpdateRefund(ctx context.Context, rr *domain.RefundRequest) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refund_requests SET status = $1, updated_at = $2 WHERE id = $3`,
		rr.Status, rr.UpdatedAt, rr.ID)
	if err != nil {
		return fmt.Errorf("update refund request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrRefundNotFound
	}
	return nil
}

func (r *PostgresStore) GetRefund(ctx context.Context, id uuid.UUID) (*domain.RefundRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, order_id, reason, status, created_at, updated_at FROM refund_requests WHERE id = $1`, id)
	return scanRefund(row)
}

func (r *PostgresStore) GetOpenRefundByOrder(ctx context.Context, orderID uuid.UUID) (*domain.RefundRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, order_id, reason, status, created_at, updated_at
		 FROM refund_requests WHERE order_id = $1 AND status IN ('REQUESTED', 'APPROVED')
		 ORDER BY created_at DESC LIMIT 1`, orderID)
	return scanRefund(row)
}

func scanRefund(row rowScanner) (*domain.RefundRequest, error) {
	var rr domain.RefundRequest
	err := row.Scan(&rr.ID, &rr.OrderID, &rr.Reason, &rr.Status, &rr.CreatedAt, &rr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRefundNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan refund request: %w", err)
	}
	return &rr, nil
}

// ---- checkout sessions ----

func (r *PostgresStore) CreateSession(ctx context.Context, s *domain.CheckoutSession) error {
	stateJSON, err := json.Marshal(s.State)
	if err != nil {
		return fmt.Errorf("marshal checkout state: %w", err)
	}
	snapshotJSON, err := marshalNullable(s.Snapshot)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO checkout_sessions (id, token, user_id, state, status, snapshot, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.Token, s.UserID, stateJSON, s.Status, snapshotJSON, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert checkout session: %w", err)
	}
	return nil
}

func (r *PostgresStore) GetSessionByToken(ctx context.Context, token string) (*domain.CheckoutSession, error) {
	var s domain.CheckoutSession
	var stateJSON []byte
	var snapshotJSON []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, token, user_id, state, status, snapshot, created_at, updated_at
		 FROM checkout_sessions WHERE token = $1`, token).
		Scan(&s.ID, &s.Token, &s.UserID, &stateJSON, &s.Status, &snapshotJSON, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query checkout session: %w", err)
	}
	if err := json.Unmarshal(stateJSON, &s.State); err != nil {
		return nil, fmt.Errorf("unmarshal checkout state: %w", err)
	}
	if len(snapshotJSON) > 0 {
		s.Snapshot = &domain.CartSnapshot{}
		if err := json.Unmarshal(snapshotJSON, s.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal cart snapshot: %w", err)
		}
	}
	return &s, nil
}

func (r *PostgresStore) UpdateSession(ctx context.Context, s *domain.CheckoutSession) error {
	stateJSON, err := json.Marshal(s.State)
	if err != nil {
		return fmt.Errorf("marshal checkout state: %w", err)
	}
	snapshotJSON, err := marshalNullable(s.Snapshot)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE checkout_sessions SET state = $1, status = $2, snapshot = $3, updated_at = $4 WHERE id = $5`,
		stateJSON, s.Status, snapshotJSON, s.UpdatedAt, s.ID)
	if err != nil {
		return fmt.Errorf("update checkout session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *PostgresStore) FailStaleSubmitting(ctx context.Context, maxAge time.Duration) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE checkout_sessions SET status = $1, updated_at = NOW()
		 WHERE status = $2 AND updated_at < NOW() - $3::interval`,
		domain.CheckoutStatusFailed, domain.CheckoutStatusSubmitting,
		fmt.Sprintf("%f seconds", maxAge.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("fail stale sessions: %w", err)
	}
	return res.RowsAffected()
}

func marshalNullable(snap *domain.CartSnapshot) ([]byte, error) {
	if snap == nil {
		return nil, nil
	}
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal cart snapshot: %w", err)
	}
	return b, nil
}

// ---- outbox ----

func (r *PostgresStore) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, aggregate_id, event_type, payload, created_at, processed_at
		 FROM outbox_events WHERE processed_at IS NULL ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var ev OutboxEvent
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &ev.EventType, &ev.Payload, &ev.CreatedAt, &ev.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		events = append(events, &ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *PostgresStore) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET processed_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event processed: %w", err)
	}
	return nil
}
