// Package memory implements the ledger over plain in-process rows. It backs
// the test suite as a substitutable fake and serves as the demo dataset when
// the server starts without a DATABASE_URL. It never stands in for a failed
// postgres connection.
package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"gympro/backend/internal/domain"
)

type Store struct {
	mu            sync.RWMutex
	members       map[int64]domain.Member
	subscriptions map[int64]domain.Subscription
	subPayments   []domain.SubscriptionPayment
	posOrders     map[int64]domain.POSOrder
	posPayments   []domain.POSPayment
	users         map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		members:       make(map[int64]domain.Member),
		subscriptions: make(map[int64]domain.Subscription),
		posOrders:     make(map[int64]domain.POSOrder),
		users:         make(map[string]domain.UserAccount),
	}
}

// AddMember loads a member row. Loaders exist because the ledger itself is
// read-only; fixtures and the demo seed are the only writers.
func (s *Store) AddMember(m domain.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.MemberID] = m
}

func (s *Store) AddSubscription(sub domain.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[sub.SubscriptionID] = sub
}

func (s *Store) AddSubscriptionPayment(p domain.SubscriptionPayment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subPayments = append(s.subPayments, p)
}

func (s *Store) AddPOSOrder(o domain.POSOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posOrders[o.OrderID] = o
}

func (s *Store) AddPOSPayment(p domain.POSPayment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posPayments = append(s.posPayments, p)
}

func (s *Store) AddUser(u domain.UserAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Username] = u
}

func (s *Store) SearchPOSInvoices(_ context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type orderPayments struct {
		paid    decimal.Decimal
		methods map[string]struct{}
	}
	byOrder := make(map[int64]*orderPayments)
	for _, p := range s.posPayments {
		if p.Status != domain.PaymentSucceeded {
			continue
		}
		agg := byOrder[p.OrderID]
		if agg == nil {
			agg = &orderPayments{methods: make(map[string]struct{})}
			byOrder[p.OrderID] = agg
		}
		agg.paid = agg.paid.Add(p.Amount)
		agg.methods[p.Method] = struct{}{}
	}

	invoices := make([]domain.Invoice, 0, len(s.posOrders))
	for _, o := range s.posOrders {
		paid := decimal.Zero
		method := domain.MethodNone
		var methods map[string]struct{}
		if agg := byOrder[o.OrderID]; agg != nil {
			paid = agg.paid
			methods = agg.methods
			switch {
			case len(agg.methods) > 1:
				method = domain.MethodMixed
			case len(agg.methods) == 1:
				for m := range agg.methods {
					method = m
				}
			}
		}

		counterparty := "Walk-in"
		if o.MemberID != nil {
			if m, ok := s.members[*o.MemberID]; ok && m.FullName() != "" {
				counterparty = m.FullName()
			}
		}

		status := domain.DeriveStatus(o.TotalAmount, paid)

		if !matchesQuery(filter.Query, strconv.FormatInt(o.OrderID, 10), counterparty) {
			continue
		}
		if filter.Status != "" && status != filter.Status {
			continue
		}
		if filter.Method != "" {
			// The method filter inspects raw succeeded payment rows, so the
			// derived "Mixed" label itself never matches.
			if _, ok := methods[filter.Method]; !ok {
				continue
			}
		}

		invoices = append(invoices, domain.Invoice{
			ID:           strconv.FormatInt(o.OrderID, 10),
			Date:         o.OccurredAt(),
			Type:         domain.InvoiceTypePOS,
			Counterparty: counterparty,
			Method:       method,
			Total:        o.TotalAmount,
			Paid:         paid,
			Status:       status,
		})
	}

	sortNewestFirst(invoices)
	if len(invoices) > filter.Limit {
		invoices = invoices[:filter.Limit]
	}
	return invoices, nil
}

func (s *Store) SearchSubscriptionInvoices(_ context.Context, filter domain.InvoiceFilter) ([]domain.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invoices := make([]domain.Invoice, 0, len(s.subPayments))
	for _, p := range s.subPayments {
		counterparty := domain.MethodNone
		if sub, ok := s.subscriptions[p.SubscriptionID]; ok {
			if m, ok := s.members[sub.MemberID]; ok && m.FullName() != "" {
				counterparty = m.FullName()
			}
		}

		method := p.Method
		if method == "" {
			method = domain.MethodNone
		}

		paid := decimal.Zero
		status := domain.InvoiceStatusOpen
		if p.Status == domain.PaymentSucceeded {
			paid = p.Amount
			status = domain.InvoiceStatusPaid
		}

		if !matchesQuery(filter.Query, strconv.FormatInt(p.PaymentID, 10), counterparty) {
			continue
		}
		if filter.Status != "" && status != filter.Status {
			continue
		}
		if filter.Method != "" && method != filter.Method {
			continue
		}

		invoices = append(invoices, domain.Invoice{
			ID:           strconv.FormatInt(p.PaymentID, 10),
			Date:         p.PaymentDate,
			Type:         domain.InvoiceTypeSubscription,
			Counterparty: counterparty,
			Method:       method,
			Total:        p.Amount,
			Paid:         paid,
			Status:       status,
		})
	}

	sortNewestFirst(invoices)
	if len(invoices) > filter.Limit {
		invoices = invoices[:filter.Limit]
	}
	return invoices, nil
}

func (s *Store) PeriodTotals(_ context.Context, start time.Time, end time.Time) (domain.PeriodTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var totals domain.PeriodTotals

	for _, o := range s.posOrders {
		if within(o.OccurredAt(), start, end) {
			totals.POSGross = totals.POSGross.Add(o.TotalAmount)
		}
	}

	paidOrders := make(map[int64]struct{})
	for _, p := range s.posPayments {
		if !within(p.PaymentDate, start, end) {
			continue
		}
		switch p.Status {
		case domain.PaymentSucceeded:
			addMethodTotal(&totals, p.Method, p.Amount)
			paidOrders[p.OrderID] = struct{}{}
		case domain.PaymentRefunded:
			totals.Refunds = totals.Refunds.Add(p.Amount)
		}
	}

	for _, p := range s.subPayments {
		if !within(p.PaymentDate, start, end) {
			continue
		}
		switch p.Status {
		case domain.PaymentSucceeded:
			totals.SubGross = totals.SubGross.Add(p.Amount)
			addMethodTotal(&totals, p.Method, p.Amount)
			totals.Count++
		case domain.PaymentRefunded:
			totals.Refunds = totals.Refunds.Add(p.Amount)
		}
	}

	totals.Count += int64(len(paidOrders))
	return totals, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

func matchesQuery(q string, id string, counterparty string) bool {
	if q == "" {
		return true
	}
	lowered := strings.ToLower(q)
	return strings.Contains(strings.ToLower(id), lowered) ||
		strings.Contains(strings.ToLower(counterparty), lowered)
}

func within(t time.Time, start time.Time, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

func addMethodTotal(totals *domain.PeriodTotals, method string, amount decimal.Decimal) {
	switch method {
	case domain.MethodCash:
		totals.Cash = totals.Cash.Add(amount)
	case domain.MethodCard:
		totals.Card = totals.Card.Add(amount)
	case domain.MethodTransfer:
		totals.Transfer = totals.Transfer.Add(amount)
	}
}

func sortNewestFirst(invoices []domain.Invoice) {
	sort.SliceStable(invoices, func(i, j int) bool {
		return invoices[i].Date.After(invoices[j].Date)
	})
}

// seedUsers builds the demo staff accounts. Credentials come from
// SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD; unset variables fall back to
// dev defaults with a warning. The postgres ledger is always used in
// production, so these never leave dev mode.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	staffPwd := envOr("SEED_STAFF_PASSWORD", "staff123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_STAFF_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_STAFF_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"staff", staffPwd, "staff"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store preloaded with a small gym dataset anchored on
// today, so reports and searches show data out of the box in dev mode.
func NewSeeded() *Store {
	s := New()
	s.users = seedUsers()

	today := time.Now().UTC().Truncate(24 * time.Hour)
	daysAgo := func(n int) time.Time { return today.AddDate(0, 0, -n) }
	amount := func(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

	for _, m := range []domain.Member{
		{MemberID: 1, FirstName: "Yacine", LastName: "Benali"},
		{MemberID: 2, FirstName: "Amina", LastName: "Cherif"},
		{MemberID: 3, FirstName: "Karim", LastName: "Haddad"},
		{MemberID: 4, FirstName: "Lina", LastName: "Saidi"},
	} {
		s.members[m.MemberID] = m
	}

	for _, sub := range []domain.Subscription{
		{SubscriptionID: 101, MemberID: 1, StartDate: daysAgo(40), EndDate: daysAgo(40).AddDate(0, 3, 0), Status: "active"},
		{SubscriptionID: 102, MemberID: 2, StartDate: daysAgo(20), EndDate: daysAgo(20).AddDate(0, 1, 0), Status: "active"},
		{SubscriptionID: 103, MemberID: 3, StartDate: daysAgo(70), EndDate: daysAgo(10), Status: "expired"},
	} {
		s.subscriptions[sub.SubscriptionID] = sub
	}

	s.subPayments = []domain.SubscriptionPayment{
		{PaymentID: 5001, SubscriptionID: 101, Amount: amount(4500), PaymentDate: daysAgo(40), Method: domain.MethodCard, Status: domain.PaymentSucceeded},
		{PaymentID: 5002, SubscriptionID: 102, Amount: amount(2000), PaymentDate: daysAgo(20), Method: domain.MethodCash, Status: domain.PaymentSucceeded},
		{PaymentID: 5003, SubscriptionID: 103, Amount: amount(4500), PaymentDate: daysAgo(8), Method: domain.MethodTransfer, Status: domain.PaymentRefunded},
		{PaymentID: 5004, SubscriptionID: 102, Amount: amount(2000), PaymentDate: today, Method: domain.MethodCash, Status: domain.PaymentPending},
		{PaymentID: 5005, SubscriptionID: 101, Amount: amount(1500), PaymentDate: today, Method: domain.MethodCard, Status: domain.PaymentSucceeded},
	}

	memberID := func(id int64) *int64 { return &id }
	for _, o := range []domain.POSOrder{
		{OrderID: 9001, MemberID: memberID(1), OrderDate: today, OrderTime: "09:15:00", Status: "closed", TotalAmount: amount(650)},
		{OrderID: 9002, MemberID: nil, OrderDate: today, OrderTime: "11:40:00", Status: "closed", TotalAmount: amount(300)},
		{OrderID: 9003, MemberID: memberID(4), OrderDate: daysAgo(1), OrderTime: "18:05:00", Status: "open", TotalAmount: amount(1200)},
		{OrderID: 9004, MemberID: memberID(2), OrderDate: daysAgo(3), OrderTime: "", Status: "closed", TotalAmount: amount(480)},
	} {
		s.posOrders[o.OrderID] = o
	}

	s.posPayments = []domain.POSPayment{
		{POSPaymentID: 7001, OrderID: 9001, Amount: amount(650), PaymentDate: today, Method: domain.MethodCash, Status: domain.PaymentSucceeded},
		{POSPaymentID: 7002, OrderID: 9002, Amount: amount(300), PaymentDate: today, Method: domain.MethodCard, Status: domain.PaymentSucceeded},
		{POSPaymentID: 7003, OrderID: 9003, Amount: amount(500), PaymentDate: daysAgo(1), Method: domain.MethodCash, Status: domain.PaymentSucceeded},
		{POSPaymentID: 7004, OrderID: 9003, Amount: amount(700), PaymentDate: daysAgo(1), Method: domain.MethodCard, Status: domain.PaymentPending},
		{POSPaymentID: 7005, OrderID: 9004, Amount: amount(480), PaymentDate: daysAgo(3), Method: domain.MethodTransfer, Status: domain.PaymentSucceeded},
		{POSPaymentID: 7006, OrderID: 9004, Amount: amount(480), PaymentDate: daysAgo(2), Method: domain.MethodTransfer, Status: domain.PaymentRefunded},
	}

	return s
}
