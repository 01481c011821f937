package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Type is the direction of a transaction
type Type string

const (
	Income  Type = "INCOME"
	Expense Type = "EXPENSE"
)

// ParseType accepts exactly "INCOME" or "EXPENSE"
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case Income, Expense:
		return Type(s), true
	}
	return "", false
}

// Transaction represents a persisted financial transaction
type Transaction struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"owner_id"`
	Type        Type            `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description,omitempty"`
	Date        time.Time       `json:"date"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Validate checks the invariants every stored transaction must hold
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.OwnerID) == "" {
		return errors.New("owner is required")
	}
	if _, ok := ParseType(string(t.Type)); !ok {
		return fmt.Errorf("invalid transaction type %q", t.Type)
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", t.Amount)
	}
	if !t.Amount.Equal(t.Amount.Round(2)) {
		return fmt.Errorf("amount %s has more than two decimal places", t.Amount)
	}
	if strings.TrimSpace(t.Category) == "" {
		return errors.New("category is required")
	}
	if t.Date.IsZero() {
		return errors.New("date is required")
	}
	return nil
}

// Filter narrows a query or aggregation. Zero values match everything.
type Filter struct {
	OwnerID  string
	From     *time.Time
	To       *time.Time
	Type     Type
	Category string
}

// Matches reports whether t satisfies every set field of the filter
func (f Filter) Matches(t *Transaction) bool {
	if f.OwnerID != "" && t.OwnerID != f.OwnerID {
		return false
	}
	if f.From != nil && t.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && t.Date.After(*f.To) {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	return true
}

// Page selects one window of a query result. Number is 1-based.
type Page struct {
	Number int
	Size   int
}

// Offset returns the number of items skipped before this page
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// GroupKey selects the dimension an aggregation groups by
type GroupKey string

const (
	GroupByType     GroupKey = "type"
	GroupByCategory GroupKey = "category"
	GroupByMonth    GroupKey = "month"
)

// KeyOf returns the group a transaction falls into
func (g GroupKey) KeyOf(t *Transaction) (string, error) {
	switch g {
	case GroupByType:
		return string(t.Type), nil
	case GroupByCategory:
		return t.Category, nil
	case GroupByMonth:
		return t.Date.UTC().Format("2006-01"), nil
	}
	return "", fmt.Errorf("unknown group key %q", g)
}

// GroupTotal is the sum of amounts for one group
type GroupTotal struct {
	Key   string          `json:"key"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}
