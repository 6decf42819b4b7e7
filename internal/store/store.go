package store

import (
	"context"
	"errors"
	"time"

	"gympro/backend/internal/domain"
)

var ErrNotFound = errors.New("not found")

// Ledger is the read-only query surface the accounting core depends on.
// Implementations never write; the member, subscription and POS modules own
// the underlying tables. All methods must be safe for concurrent use.
type Ledger interface {
	// SearchPOSInvoices aggregates POS orders and their payments into
	// invoices matching the filter, newest first, capped at filter.Limit.
	SearchPOSInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error)

	// SearchSubscriptionInvoices projects each subscription payment row into
	// an invoice matching the filter, newest first, capped at filter.Limit.
	SearchSubscriptionInvoices(ctx context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error)

	// PeriodTotals sums both revenue sources over the inclusive [start, end]
	// window. An empty window yields zero totals, not an error.
	PeriodTotals(ctx context.Context, start time.Time, end time.Time) (domain.PeriodTotals, error)

	// ListUsers returns the staff accounts used for API authentication.
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
}
