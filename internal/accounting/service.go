// Package accounting turns raw ledger rows into the two read models the API
// serves: the merged invoice list and the periodic Z-Report. The service is
// stateless; every call derives its result from the ledger on the spot.
package accounting

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"gympro/backend/internal/domain"
	"gympro/backend/internal/export"
	"gympro/backend/internal/period"
	"gympro/backend/internal/store"
)

type Service struct {
	ledger store.Ledger
	now    func() time.Time
}

func New(ledger store.Ledger) *Service {
	return &Service{ledger: ledger, now: time.Now}
}

// SearchInvoices queries both revenue sources, merges the results newest
// first, and caps the merged list at the filter limit. Each source is already
// capped at the same limit before the merge, so an extremely lopsided dataset
// can push the older tail of one source out of view. That is accepted: the
// list is a recency view, not an audit export.
func (s *Service) SearchInvoices(ctx context.Context, q, status, method string, limit int) ([]domain.Invoice, error) {
	filter := domain.NewInvoiceFilter(q, status, method, limit)

	posInvoices, err := s.ledger.SearchPOSInvoices(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("search pos invoices: %w", err)
	}
	subInvoices, err := s.ledger.SearchSubscriptionInvoices(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("search subscription invoices: %w", err)
	}

	merged := make([]domain.Invoice, 0, len(posInvoices)+len(subInvoices))
	merged = append(merged, posInvoices...)
	merged = append(merged, subInvoices...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Date.After(merged[j].Date)
	})
	if len(merged) > filter.Limit {
		merged = merged[:filter.Limit]
	}
	return merged, nil
}

// ZReport builds the closing summary for the window containing the anchor.
// Net is floored at zero when refunds exceed gross revenue.
func (s *Service) ZReport(ctx context.Context, kind period.Kind, anchor time.Time) (domain.ZReport, error) {
	win := period.Resolve(kind, anchor)

	totals, err := s.ledger.PeriodTotals(ctx, win.Start, win.End)
	if err != nil {
		return domain.ZReport{}, fmt.Errorf("period totals %s [%s, %s]: %w",
			win.Kind, win.Start.Format("2006-01-02"), win.End.Format("2006-01-02"), err)
	}

	net := totals.POSGross.Add(totals.SubGross).Sub(totals.Refunds)
	if net.IsNegative() {
		net = decimal.Zero
	}

	return domain.ZReport{
		Period:   string(win.Kind),
		Start:    win.Start,
		End:      win.End,
		POSGross: totals.POSGross,
		SubGross: totals.SubGross,
		Refunds:  totals.Refunds,
		Net:      net,
		Cash:     totals.Cash,
		Card:     totals.Card,
		Transfer: totals.Transfer,
		Count:    totals.Count,
	}, nil
}

// ZReportFor is the lenient entry point for HTTP query parameters: unknown
// periods fall back to Daily and unparsable anchors to today.
func (s *Service) ZReportFor(ctx context.Context, periodRaw, anchorRaw string) (domain.ZReport, error) {
	kind := period.ParseKind(periodRaw)
	anchor := period.ParseAnchor(anchorRaw, s.now())
	return s.ZReport(ctx, kind, anchor)
}

// ExportZCSV writes the report for the given window as CSV.
func (s *Service) ExportZCSV(ctx context.Context, periodRaw, anchorRaw string, w io.Writer) error {
	report, err := s.ZReportFor(ctx, periodRaw, anchorRaw)
	if err != nil {
		return err
	}
	return export.WriteCSV(w, report)
}

// ExportZXLSX writes the report for the given window as an XLSX workbook.
func (s *Service) ExportZXLSX(ctx context.Context, periodRaw, anchorRaw string, w io.Writer) error {
	report, err := s.ZReportFor(ctx, periodRaw, anchorRaw)
	if err != nil {
		return err
	}
	return export.WriteXLSX(w, report)
}
