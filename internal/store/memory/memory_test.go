package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gympro/backend/internal/domain"
)

func TestPeriodTotalsWindowIsInclusive(t *testing.T) {
	s := New()
	start := time.Date(2025, time.September, 20, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.September, 20, 23, 59, 59, 0, time.UTC)

	s.AddPOSOrder(domain.POSOrder{OrderID: 1, OrderDate: start, OrderTime: "00:00:00", TotalAmount: decimal.NewFromInt(100)})
	s.AddPOSOrder(domain.POSOrder{OrderID: 2, OrderDate: start, OrderTime: "23:59:59", TotalAmount: decimal.NewFromInt(200)})
	s.AddPOSOrder(domain.POSOrder{OrderID: 3, OrderDate: start.AddDate(0, 0, 1), OrderTime: "00:00:00", TotalAmount: decimal.NewFromInt(400)})

	totals, err := s.PeriodTotals(context.Background(), start, end)
	if err != nil {
		t.Fatalf("PeriodTotals: %v", err)
	}
	if !totals.POSGross.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("pos_gross = %s, want 300 (both window edges included, next day excluded)", totals.POSGross)
	}
}

func TestPeriodTotalsCountsDistinctPaidOrders(t *testing.T) {
	s := New()
	day := time.Date(2025, time.September, 20, 0, 0, 0, 0, time.UTC)

	s.AddPOSOrder(domain.POSOrder{OrderID: 1, OrderDate: day, TotalAmount: decimal.NewFromInt(500)})
	// Two succeeded installments against the same order count once.
	s.AddPOSPayment(domain.POSPayment{POSPaymentID: 1, OrderID: 1, Amount: decimal.NewFromInt(200), PaymentDate: day, Method: domain.MethodCash, Status: domain.PaymentSucceeded})
	s.AddPOSPayment(domain.POSPayment{POSPaymentID: 2, OrderID: 1, Amount: decimal.NewFromInt(300), PaymentDate: day, Method: domain.MethodCash, Status: domain.PaymentSucceeded})

	totals, err := s.PeriodTotals(context.Background(), day, day.Add(24*time.Hour-time.Second))
	if err != nil {
		t.Fatalf("PeriodTotals: %v", err)
	}
	if totals.Count != 1 {
		t.Fatalf("count = %d, want 1", totals.Count)
	}
	if !totals.Cash.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("cash = %s, want 500", totals.Cash)
	}
}

func TestNewSeededProvidesWorkingDataset(t *testing.T) {
	s := NewSeeded()

	users, err := s.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("seeded store has %d users, want 2", len(users))
	}

	invoices, err := s.SearchPOSInvoices(context.Background(), domain.NewInvoiceFilter("", "", "", 0))
	if err != nil {
		t.Fatalf("SearchPOSInvoices: %v", err)
	}
	if len(invoices) == 0 {
		t.Fatal("seeded store returned no POS invoices")
	}
}
