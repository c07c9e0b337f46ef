package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/wldsell/service/metrics"
	"github.com/brojonat/wldsell/service/sell"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrReferenceNotFound       = errors.New("payment reference not found")
	ErrReferenceConsumed       = errors.New("payment reference already consumed")
	ErrReferenceExpired        = errors.New("payment reference expired")
	ErrReferenceNotConfirmed   = errors.New("payment reference not confirmed")
	ErrTransactionUsed         = errors.New("transaction already used for another reference")
	ErrOrderExists             = errors.New("order already recorded for reference")
	ErrOrderNotFound           = errors.New("order not found")
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
)

// Reference statuses.
const (
	ReferenceIssued    = "issued"
	ReferenceConfirmed = "confirmed"
	ReferenceExpired   = "expired"
)

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If m is nil, no query metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Reference is a payment reference issued before a wallet payment.
type Reference struct {
	ID               string
	Status           string
	TransactionID    *string // set once confirmed
	CreatedAt        time.Time
	ExpiresAt        time.Time
	ConfirmedAt      *time.Time
	OrphanReportedAt *time.Time
}

// Order is a recorded sale.
type Order struct {
	ID            int64
	Reference     string
	Username      string
	Email         string
	Amount        decimal.Decimal
	PaymentMethod string
	BankName      string
	FullName      string
	AccountNumber string
	PayPalEmail   string
	WLDPrice      decimal.Decimal
	Commission    decimal.Decimal
	NetAmount     decimal.Decimal
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateOrderParams contains the parameters for recording an order.
type CreateOrderParams struct {
	Reference     string
	Username      string
	Email         string
	Amount        decimal.Decimal
	PaymentMethod string
	BankName      string
	FullName      string
	AccountNumber string
	PayPalEmail   string
	WLDPrice      decimal.Decimal
	Commission    decimal.Decimal
	NetAmount     decimal.Decimal
}

// ListOrdersParams filters and paginates orders. Empty strings match all.
type ListOrdersParams struct {
	Username string
	Status   string
	Limit    int32
	Offset   int32
}

const referenceColumns = `id, status, transaction_id, created_at, expires_at, confirmed_at, orphan_reported_at`

const orderColumns = `id, reference, username, email, amount, payment_method, bank_name, full_name,
	account_number, paypal_email, wld_price, commission, net_amount, status, created_at, updated_at`

// CreateReference stores a fresh reference that expires after ttl.
func (s *Store) CreateReference(ctx context.Context, id string, ttl time.Duration) (*Reference, error) {
	query := `
INSERT INTO payment_references (id, status, created_at, expires_at)
VALUES ($1, 'issued', NOW(), NOW() + make_interval(secs => $2))
RETURNING ` + referenceColumns

	ref, err := scanReference(s.queryRow(ctx, opCreateReference, query, id, ttl.Seconds()))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create reference %s: %w", id, ErrReferenceConsumed)
		}
		return nil, fmt.Errorf("create reference: %w", err)
	}
	return ref, nil
}

// GetReference retrieves a reference by id.
func (s *Store) GetReference(ctx context.Context, id string) (*Reference, error) {
	query := `SELECT ` + referenceColumns + ` FROM payment_references WHERE id = $1`

	ref, err := scanReference(s.queryRow(ctx, opGetReference, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReferenceNotFound
		}
		return nil, fmt.Errorf("get reference: %w", err)
	}
	return ref, nil
}

// ConfirmReference consumes an issued, unexpired reference and binds it to
// transactionID. At most one caller can consume a given reference.
func (s *Store) ConfirmReference(ctx context.Context, id, transactionID string) (*Reference, error) {
	query := `
UPDATE payment_references
SET status = 'confirmed', transaction_id = $2, confirmed_at = NOW()
WHERE id = $1 AND status = 'issued' AND expires_at > NOW()
RETURNING ` + referenceColumns

	ref, err := scanReference(s.queryRow(ctx, opConfirmReference, query, id, transactionID))
	if err == nil {
		return ref, nil
	}
	if isUniqueViolation(err) {
		return nil, ErrTransactionUsed
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("confirm reference: %w", err)
	}

	existing, err := s.GetReference(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case existing.Status == ReferenceConfirmed:
		return nil, ErrReferenceConsumed
	default:
		return nil, ErrReferenceExpired
	}
}

// ExpireReferences marks issued references past their expiry as expired and
// returns how many were updated.
func (s *Store) ExpireReferences(ctx context.Context) (int64, error) {
	const stmt = `
UPDATE payment_references
SET status = 'expired'
WHERE status = 'issued' AND expires_at <= NOW()`

	tag, err := s.exec(ctx, opExpireReferences, stmt)
	if err != nil {
		return 0, fmt.Errorf("expire references: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListOrphanedReferences returns confirmed references older than grace that
// have no order and were not reported yet, oldest first.
func (s *Store) ListOrphanedReferences(ctx context.Context, grace time.Duration, limit int32) ([]*Reference, error) {
	query := `
SELECT ` + referenceColumns + `
FROM payment_references r
WHERE r.status = 'confirmed'
  AND r.orphan_reported_at IS NULL
  AND r.confirmed_at <= NOW() - make_interval(secs => $1)
  AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.reference = r.id)
ORDER BY r.confirmed_at ASC
LIMIT $2`

	rows, err := s.query(ctx, opListOrphans, query, grace.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("list orphaned references: %w", err)
	}
	return collectReferences(rows)
}

// MarkOrphansReported stamps the given references as reported.
func (s *Store) MarkOrphansReported(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const stmt = `
UPDATE payment_references
SET orphan_reported_at = NOW()
WHERE id = ANY($1) AND orphan_reported_at IS NULL`

	tag, err := s.exec(ctx, opMarkOrphans, stmt, ids)
	if err != nil {
		return 0, fmt.Errorf("mark orphans reported: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListReferences lists references, newest first. An empty status matches all.
func (s *Store) ListReferences(ctx context.Context, status string, limit int32) ([]*Reference, error) {
	query := `
SELECT ` + referenceColumns + `
FROM payment_references
WHERE ($1 = '' OR status = $1)
ORDER BY created_at DESC
LIMIT $2`

	rows, err := s.query(ctx, opListReferences, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}
	return collectReferences(rows)
}

// CreateOrder records an order against a confirmed reference. The order is
// always stored as pending, and a reference can back at most one order.
func (s *Store) CreateOrder(ctx context.Context, params CreateOrderParams) (*Order, error) {
	var order *Order
	err := s.WithTx(ctx, func(ctx context.Context) error {
		var status string
		err := s.queryRow(ctx, opLockReference, `SELECT status FROM payment_references WHERE id = $1 FOR UPDATE`, params.Reference).
			Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrReferenceNotFound
			}
			return fmt.Errorf("lock reference: %w", err)
		}
		if status != ReferenceConfirmed {
			return ErrReferenceNotConfirmed
		}

		query := `
INSERT INTO orders (reference, username, email, amount, payment_method, bank_name, full_name,
	account_number, paypal_email, wld_price, commission, net_amount, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + orderColumns

		order, err = scanOrder(s.queryRow(ctx, opCreateOrder, query,
			params.Reference, params.Username, params.Email, params.Amount, params.PaymentMethod,
			params.BankName, params.FullName, params.AccountNumber, params.PayPalEmail,
			params.WLDPrice, params.Commission, params.NetAmount, string(sell.StatusPending),
		))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrOrderExists
			}
			return fmt.Errorf("insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder retrieves an order by id.
func (s *Store) GetOrder(ctx context.Context, id int64) (*Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(s.queryRow(ctx, opGetOrder, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// ListOrders lists orders, newest first.
func (s *Store) ListOrders(ctx context.Context, params ListOrdersParams) ([]*Order, error) {
	query := `
SELECT ` + orderColumns + `
FROM orders
WHERE ($1 = '' OR username = $1)
  AND ($2 = '' OR status = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`

	rows, err := s.query(ctx, opListOrders, query, params.Username, params.Status, params.Limit, params.Offset)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return collectOrders(rows)
}

// UpdateOrderStatus moves a pending order to confirmada or fallida. Any
// other transition returns ErrInvalidStatusTransition.
func (s *Store) UpdateOrderStatus(ctx context.Context, id int64, status string) (*Order, error) {
	if status != string(sell.StatusConfirmed) && status != string(sell.StatusFailed) {
		return nil, fmt.Errorf("%w: cannot move to %q", ErrInvalidStatusTransition, status)
	}

	query := `
UPDATE orders
SET status = $2, updated_at = NOW()
WHERE id = $1 AND status = 'pendiente'
RETURNING ` + orderColumns

	order, err := scanOrder(s.queryRow(ctx, opUpdateOrderStatus, query, id, status))
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	existing, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, existing.Status, status)
}

func scanReference(row pgx.Row) (*Reference, error) {
	var r Reference
	if err := row.Scan(&r.ID, &r.Status, &r.TransactionID, &r.CreatedAt, &r.ExpiresAt, &r.ConfirmedAt, &r.OrphanReportedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func collectReferences(rows pgx.Rows) ([]*Reference, error) {
	defer rows.Close()

	var refs []*Reference
	for rows.Next() {
		r, err := scanReference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reference: %w", err)
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.Reference, &o.Username, &o.Email, &o.Amount, &o.PaymentMethod,
		&o.BankName, &o.FullName, &o.AccountNumber, &o.PayPalEmail,
		&o.WLDPrice, &o.Commission, &o.NetAmount, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]*Order, error) {
	defer rows.Close()

	var orders []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// op labels a query in the db metrics.
type op struct {
	name  string
	table string
}

var (
	opCreateReference   = op{"create_reference", "payment_references"}
	opGetReference      = op{"get_reference", "payment_references"}
	opConfirmReference  = op{"confirm_reference", "payment_references"}
	opExpireReferences  = op{"expire_references", "payment_references"}
	opListOrphans       = op{"list_orphaned_references", "payment_references"}
	opMarkOrphans       = op{"mark_orphans_reported", "payment_references"}
	opListReferences    = op{"list_references", "payment_references"}
	opLockReference     = op{"lock_reference", "payment_references"}
	opCreateOrder       = op{"create_order", "orders"}
	opGetOrder          = op{"get_order", "orders"}
	opListOrders        = op{"list_orders", "orders"}
	opUpdateOrderStatus = op{"update_order_status", "orders"}
)

// observe records one query. A missing row is an answer, not a failure.
func (s *Store) observe(o op, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	if errors.Is(err, pgx.ErrNoRows) {
		err = nil
	}
	s.metrics.RecordDBQuery(o.name, o.table, time.Since(start).Seconds(), err)
}

func (s *Store) exec(ctx context.Context, o op, sql string, args ...any) (pgconn.CommandTag, error) {
	start := time.Now()
	var (
		tag pgconn.CommandTag
		err error
	)
	if tx := txFromContext(ctx); tx != nil {
		tag, err = tx.Exec(ctx, sql, args...)
	} else {
		tag, err = s.pool.Exec(ctx, sql, args...)
	}
	s.observe(o, start, err)
	return tag, err
}

// observedRow records its query once scanned.
type observedRow struct {
	row  pgx.Row
	done func(error)
}

func (r observedRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	r.done(err)
	return err
}

func (s *Store) queryRow(ctx context.Context, o op, sql string, args ...any) pgx.Row {
	start := time.Now()
	var row pgx.Row
	if tx := txFromContext(ctx); tx != nil {
		row = tx.QueryRow(ctx, sql, args...)
	} else {
		row = s.pool.QueryRow(ctx, sql, args...)
	}
	return observedRow{row: row, done: func(err error) { s.observe(o, start, err) }}
}

func (s *Store) query(ctx context.Context, o op, sql string, args ...any) (pgx.Rows, error) {
	start := time.Now()
	var (
		rows pgx.Rows
		err  error
	)
	if tx := txFromContext(ctx); tx != nil {
		rows, err = tx.Query(ctx, sql, args...)
	} else {
		rows, err = s.pool.Query(ctx, sql, args...)
	}
	s.observe(o, start, err)
	return rows, err
}
