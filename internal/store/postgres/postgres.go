package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"gympro/backend/internal/domain"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// counterpartyExpr resolves a member's display name through the outer join;
// it stays empty for dangling or missing member references so callers can
// substitute a placeholder.
const counterpartyExpr = `TRIM(COALESCE(m.first_name, '') || ' ' || COALESCE(m.last_name, ''))`

// posStatusExpr derives an order's invoice status from its billed total and
// the sum of its succeeded payments. Zero-total orders never derive "paid".
const posStatusExpr = `
	CASE
		WHEN COALESCE(pay.paid_total, 0) >= COALESCE(o.total_amount, 0) AND COALESCE(o.total_amount, 0) > 0 THEN 'paid'
		WHEN COALESCE(pay.paid_total, 0) > 0 THEN 'partial'
		ELSE 'open'
	END`

func (s *Store) SearchPOSInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	query := `
		WITH pay AS (
			SELECT
				p.order_id,
				COALESCE(SUM(p.amount) FILTER (WHERE p.status = 'succeeded'), 0) AS paid_total,
				COUNT(DISTINCT p.method) FILTER (WHERE p.status = 'succeeded') AS method_count,
				MIN(p.method) FILTER (WHERE p.status = 'succeeded') AS one_method
			FROM pos_payments p
			GROUP BY p.order_id
		)
		SELECT
			o.order_id::text,
			o.order_date + COALESCE(o.order_time, '00:00:00'::time) AS occurred_at,
			COALESCE(NULLIF(` + counterpartyExpr + `, ''), 'Walk-in') AS counterparty,
			CASE
				WHEN COALESCE(pay.method_count, 0) > 1 THEN 'Mixed'
				WHEN COALESCE(pay.method_count, 0) = 1 THEN pay.one_method
				ELSE '—'
			END AS method,
			COALESCE(o.total_amount, 0) AS total,
			COALESCE(pay.paid_total, 0) AS paid,
			` + posStatusExpr + ` AS status
		FROM pos_orders o
		LEFT JOIN pay ON pay.order_id = o.order_id
		LEFT JOIN members m ON m.member_id = o.member_id
		WHERE ($1 = '' OR o.order_id::text ILIKE $2 OR ` + counterpartyExpr + ` ILIKE $2)
			AND ($3 = '' OR (` + posStatusExpr + `) = $3)
			AND ($4 = '' OR EXISTS (
				SELECT 1 FROM pos_payments pp
				WHERE pp.order_id = o.order_id
					AND pp.status = 'succeeded'
					AND pp.method = $4
			))
		ORDER BY occurred_at DESC
		LIMIT $5
	`

	rows, err := s.db.QueryContext(ctx, query,
		filter.Query, likePattern(filter.Query), filter.Status, filter.Method, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, filter.Limit)
	for rows.Next() {
		var inv domain.Invoice
		if err := rows.Scan(&inv.ID, &inv.Date, &inv.Counterparty, &inv.Method, &inv.Total, &inv.Paid, &inv.Status); err != nil {
			return nil, err
		}
		inv.Type = domain.InvoiceTypePOS
		inv.Date = inv.Date.UTC()
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Store) SearchSubscriptionInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	query := `
		SELECT
			p.payment_id::text,
			p.payment_date::timestamp AS occurred_at,
			COALESCE(NULLIF(` + counterpartyExpr + `, ''), '—') AS counterparty,
			COALESCE(p.method, '—') AS method,
			p.amount AS total,
			CASE WHEN p.status = 'succeeded' THEN p.amount ELSE 0 END AS paid,
			CASE WHEN p.status = 'succeeded' THEN 'paid' ELSE 'open' END AS status
		FROM payments p
		LEFT JOIN subscriptions s ON s.subscription_id = p.subscription_id
		LEFT JOIN members m ON m.member_id = s.member_id
		WHERE ($1 = '' OR p.payment_id::text ILIKE $2 OR ` + counterpartyExpr + ` ILIKE $2)
			AND ($3 = '' OR (CASE WHEN p.status = 'succeeded' THEN 'paid' ELSE 'open' END) = $3)
			AND ($4 = '' OR COALESCE(p.method, '—') = $4)
		ORDER BY occurred_at DESC
		LIMIT $5
	`

	rows, err := s.db.QueryContext(ctx, query,
		filter.Query, likePattern(filter.Query), filter.Status, filter.Method, filter.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, filter.Limit)
	for rows.Next() {
		var inv domain.Invoice
		if err := rows.Scan(&inv.ID, &inv.Date, &inv.Counterparty, &inv.Method, &inv.Total, &inv.Paid, &inv.Status); err != nil {
			return nil, err
		}
		inv.Type = domain.InvoiceTypeSubscription
		inv.Date = inv.Date.UTC()
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Store) PeriodTotals(ctx context.Context, start time.Time, end time.Time) (domain.PeriodTotals, error) {
	var totals domain.PeriodTotals

	// Billed POS revenue: every order in the window counts, paid or not.
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(o.total_amount), 0)
		FROM pos_orders o
		WHERE o.order_date + COALESCE(o.order_time, '00:00:00'::time) BETWEEN $1 AND $2
	`, start, end).Scan(&totals.POSGross)
	if err != nil {
		return totals, err
	}

	// Collected subscription revenue: succeeded payments only.
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(p.amount), 0)
		FROM payments p
		WHERE p.status = 'succeeded'
			AND p.payment_date::timestamp BETWEEN $1 AND $2
	`, start, end).Scan(&totals.SubGross)
	if err != nil {
		return totals, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COALESCE(SUM(pp.amount), 0)
				FROM pos_payments pp
				WHERE pp.status = 'refunded' AND pp.payment_date::timestamp BETWEEN $1 AND $2)
			+
			(SELECT COALESCE(SUM(p.amount), 0)
				FROM payments p
				WHERE p.status = 'refunded' AND p.payment_date::timestamp BETWEEN $1 AND $2)
	`, start, end).Scan(&totals.Refunds)
	if err != nil {
		return totals, err
	}

	methodRows, err := s.db.QueryContext(ctx, `
		SELECT x.method, COALESCE(SUM(x.amount), 0)
		FROM (
			SELECT pp.method, pp.amount
			FROM pos_payments pp
			WHERE pp.status = 'succeeded' AND pp.payment_date::timestamp BETWEEN $1 AND $2
			UNION ALL
			SELECT p.method, p.amount
			FROM payments p
			WHERE p.status = 'succeeded' AND p.payment_date::timestamp BETWEEN $1 AND $2
		) x
		GROUP BY x.method
	`, start, end)
	if err != nil {
		return totals, err
	}
	for methodRows.Next() {
		var method string
		var amount decimal.Decimal
		if err := methodRows.Scan(&method, &amount); err != nil {
			_ = methodRows.Close()
			return totals, err
		}
		switch method {
		case domain.MethodCash:
			totals.Cash = totals.Cash.Add(amount)
		case domain.MethodCard:
			totals.Card = totals.Card.Add(amount)
		case domain.MethodTransfer:
			totals.Transfer = totals.Transfer.Add(amount)
		}
	}
	if err := methodRows.Err(); err != nil {
		_ = methodRows.Close()
		return totals, err
	}
	_ = methodRows.Close()

	// Receipt count: POS orders need at least one succeeded payment in the
	// window; subscription receipts are the succeeded payment rows themselves.
	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(DISTINCT pp.order_id)
				FROM pos_payments pp
				WHERE pp.status = 'succeeded' AND pp.payment_date::timestamp BETWEEN $1 AND $2)
			+
			(SELECT COUNT(*)
				FROM payments p
				WHERE p.status = 'succeeded' AND p.payment_date::timestamp BETWEEN $1 AND $2)
	`, start, end).Scan(&totals.Count)
	if err != nil {
		return totals, err
	}

	return totals, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func likePattern(q string) string {
	return "%" + q + "%"
}
