package domain

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

const (
	InvoiceTypePOS          = "POS"
	InvoiceTypeSubscription = "Subscription"
)

const (
	InvoiceStatusOpen    = "open"
	InvoiceStatusPartial = "partial"
	InvoiceStatusPaid    = "paid"
)

// Raw payment row statuses as written by the POS and subscription modules.
const (
	PaymentSucceeded = "succeeded"
	PaymentPending   = "pending"
	PaymentFailed    = "failed"
	PaymentRefunded  = "refunded"
)

const (
	MethodCash     = "Cash"
	MethodCard     = "Card"
	MethodTransfer = "Transfer"
	MethodMixed    = "Mixed"
	MethodNone     = "—"
)

// Invoice is a read-only projection of either a whole POS order or a single
// subscription payment into one comparable record. It is derived on every
// query and never persisted.
type Invoice struct {
	ID           string          `json:"id"`
	Date         time.Time       `json:"date"`
	Type         string          `json:"type"`
	Counterparty string          `json:"counterparty"`
	Method       string          `json:"method"`
	Total        decimal.Decimal `json:"total"`
	Paid         decimal.Decimal `json:"paid"`
	Status       string          `json:"status"`
}

// DeriveStatus maps billed/collected amounts to an invoice status. A
// zero-total invoice is never "paid", no matter how much was collected.
func DeriveStatus(total, paid decimal.Decimal) string {
	switch {
	case total.IsPositive() && paid.GreaterThanOrEqual(total):
		return InvoiceStatusPaid
	case paid.IsPositive():
		return InvoiceStatusPartial
	default:
		return InvoiceStatusOpen
	}
}

// InvoiceFilter carries normalized search parameters. Empty Status/Method
// means the respective filter is disabled.
type InvoiceFilter struct {
	Query  string
	Status string
	Method string
	Limit  int
}

const DefaultSearchLimit = 120

// NewInvoiceFilter normalizes raw search parameters: status is lower-cased,
// method is capitalized, and "Any" (in any casing) disables a filter.
func NewInvoiceFilter(q, status, method string, limit int) InvoiceFilter {
	f := InvoiceFilter{Query: strings.TrimSpace(q), Limit: limit}
	if f.Limit < 1 {
		f.Limit = DefaultSearchLimit
	}

	status = strings.ToLower(strings.TrimSpace(status))
	if status != "" && status != "any" {
		f.Status = status
	}

	method = capitalize(strings.TrimSpace(method))
	if method != "" && method != "Any" {
		f.Method = method
	}

	return f
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// ZReport is the periodic closing summary over both revenue sources.
// Invariant: Net == max(0, POSGross + SubGross - Refunds).
type ZReport struct {
	Period   string          `json:"period"`
	Start    time.Time       `json:"start"`
	End      time.Time       `json:"end"`
	POSGross decimal.Decimal `json:"pos_gross"`
	SubGross decimal.Decimal `json:"sub_gross"`
	Refunds  decimal.Decimal `json:"refunds"`
	Net      decimal.Decimal `json:"net"`
	Cash     decimal.Decimal `json:"cash"`
	Card     decimal.Decimal `json:"card"`
	Transfer decimal.Decimal `json:"transfer"`
	Count    int64           `json:"count"`
}

// PeriodTotals are the raw window sums a ledger reports before the service
// applies the net floor. POSGross counts every order billed in the window;
// SubGross counts only succeeded subscription payments; Count excludes POS
// orders without a succeeded payment. These asymmetries are product
// semantics, not bugs.
type PeriodTotals struct {
	POSGross decimal.Decimal
	SubGross decimal.Decimal
	Refunds  decimal.Decimal
	Cash     decimal.Decimal
	Card     decimal.Decimal
	Transfer decimal.Decimal
	Count    int64
}

type Member struct {
	MemberID  int64
	FirstName string
	LastName  string
}

// FullName joins first and last name, trimming the result so a member with
// only whitespace names reads as unknown.
func (m Member) FullName() string {
	return strings.TrimSpace(m.FirstName + " " + m.LastName)
}

type Subscription struct {
	SubscriptionID int64
	MemberID       int64
	StartDate      time.Time
	EndDate        time.Time
	Status         string
}

type SubscriptionPayment struct {
	PaymentID      int64
	SubscriptionID int64
	Amount         decimal.Decimal
	PaymentDate    time.Time
	Method         string
	Status         string
}

type POSOrder struct {
	OrderID     int64
	MemberID    *int64
	OrderDate   time.Time
	OrderTime   string
	Status      string
	TotalAmount decimal.Decimal
}

// OccurredAt combines the order's date and wall-clock time columns into one
// timestamp. A missing or malformed time reads as midnight.
func (o POSOrder) OccurredAt() time.Time {
	clock, err := time.Parse("15:04:05", o.OrderTime)
	if err != nil {
		return time.Date(o.OrderDate.Year(), o.OrderDate.Month(), o.OrderDate.Day(), 0, 0, 0, 0, o.OrderDate.Location())
	}
	return time.Date(o.OrderDate.Year(), o.OrderDate.Month(), o.OrderDate.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, o.OrderDate.Location())
}

type POSPayment struct {
	POSPaymentID int64
	OrderID      int64
	Amount       decimal.Decimal
	PaymentDate  time.Time
	Method       string
	Status       string
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}
