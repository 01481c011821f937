package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ErrInvalidInput is wrapped by every validation failure the service reports
var ErrInvalidInput = errors.New("invalid input")

// CreateInput is a transaction entered directly by a user
type CreateInput struct {
	Type        Type            `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
}

// ListQuery holds the filters and paging of a listing request
type ListQuery struct {
	From     *time.Time
	To       *time.Time
	Type     Type
	Category string
	Page     int
	PageSize int
}

// ListResult is one page of transactions
type ListResult struct {
	Items    []*Transaction `json:"items"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
	Total    int            `json:"total"`
}

// Summary holds totals by type and expense totals by category
type Summary struct {
	ByType     []GroupTotal `json:"byType"`
	ByCategory []GroupTotal `json:"byCategory"`
}

// MonthTrend is the income and expense total of one month
type MonthTrend struct {
	Month   string          `json:"month"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

// Stats summarizes the current calendar month
type Stats struct {
	TotalIncome            decimal.Decimal `json:"totalIncome"`
	TotalExpense           decimal.Decimal `json:"totalExpense"`
	NetSavings             decimal.Decimal `json:"netSavings"`
	SavingsRate            decimal.Decimal `json:"savingsRate"`
	BiggestExpenseCategory string          `json:"biggestExpenseCategory"`
	AverageDailySpending   decimal.Decimal `json:"averageDailySpending"`
}

// Service handles transaction entry and reporting
type Service struct {
	store Store
	clock TimeSource
}

// NewService creates a new Service using the system clock
func NewService(store Store) *Service {
	return NewServiceWithDeps(store, &systemClock{})
}

// NewServiceWithDeps creates a new Service with a custom clock for testing
func NewServiceWithDeps(store Store, clock TimeSource) *Service {
	return &Service{store: store, clock: clock}
}

// Create validates and stores a transaction owned by ownerID
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*Transaction, error) {
	t := Transaction{
		OwnerID:     ownerID,
		Type:        in.Type,
		Amount:      in.Amount,
		Category:    in.Category,
		Description: in.Description,
		Date:        in.Date,
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	created, err := s.store.Create(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("creating transaction: %w", err)
	}
	return created, nil
}

// List returns one page of the owner's transactions
func (s *Service) List(ctx context.Context, ownerID string, q ListQuery) (*ListResult, error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = defaultPageSize
	}
	if q.Page < 1 {
		return nil, fmt.Errorf("%w: page must be at least 1", ErrInvalidInput)
	}
	if q.PageSize < 1 || q.PageSize > maxPageSize {
		return nil, fmt.Errorf("%w: pageSize must be between 1 and %d", ErrInvalidInput, maxPageSize)
	}

	f := Filter{OwnerID: ownerID, From: q.From, To: q.To, Type: q.Type, Category: q.Category}
	items, total, err := s.store.Query(ctx, f, Page{Number: q.Page, Size: q.PageSize})
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return &ListResult{Items: items, Page: q.Page, PageSize: q.PageSize, Total: total}, nil
}

// Summary returns totals by type and expense totals by category
func (s *Service) Summary(ctx context.Context, ownerID string, from, to *time.Time) (*Summary, error) {
	f := Filter{OwnerID: ownerID, From: from, To: to}
	byType, err := s.store.Aggregate(ctx, f, GroupByType)
	if err != nil {
		return nil, fmt.Errorf("summing by type: %w", err)
	}

	f.Type = Expense
	byCategory, err := s.store.Aggregate(ctx, f, GroupByCategory)
	if err != nil {
		return nil, fmt.Errorf("summing by category: %w", err)
	}
	return &Summary{ByType: byType, ByCategory: byCategory}, nil
}

// Trends returns monthly income and expense totals in ascending month order
func (s *Service) Trends(ctx context.Context, ownerID string, from, to *time.Time) ([]MonthTrend, error) {
	months := make(map[string]*MonthTrend)
	for _, typ := range []Type{Income, Expense} {
		groups, err := s.store.Aggregate(ctx, Filter{OwnerID: ownerID, From: from, To: to, Type: typ}, GroupByMonth)
		if err != nil {
			return nil, fmt.Errorf("summing %s by month: %w", typ, err)
		}
		for _, g := range groups {
			m, ok := months[g.Key]
			if !ok {
				m = &MonthTrend{Month: g.Key, Income: decimal.Zero, Expense: decimal.Zero}
				months[g.Key] = m
			}
			if typ == Income {
				m.Income = g.Total
			} else {
				m.Expense = g.Total
			}
		}
	}

	trends := make([]MonthTrend, 0, len(months))
	for _, m := range months {
		trends = append(trends, *m)
	}
	sort.Slice(trends, func(i, j int) bool { return trends[i].Month < trends[j].Month })
	return trends, nil
}

// Stats summarizes the current calendar month for the owner
func (s *Service) Stats(ctx context.Context, ownerID string) (*Stats, error) {
	now := s.clock.Now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	daysInMonth := end.Day()

	byType, err := s.store.Aggregate(ctx, Filter{OwnerID: ownerID, From: &start, To: &end}, GroupByType)
	if err != nil {
		return nil, fmt.Errorf("summing month by type: %w", err)
	}
	income, expense := decimal.Zero, decimal.Zero
	for _, g := range byType {
		switch Type(g.Key) {
		case Income:
			income = g.Total
		case Expense:
			expense = g.Total
		}
	}

	byCategory, err := s.store.Aggregate(ctx, Filter{OwnerID: ownerID, From: &start, To: &end, Type: Expense}, GroupByCategory)
	if err != nil {
		return nil, fmt.Errorf("summing month by category: %w", err)
	}
	biggest := "N/A"
	best := decimal.Zero
	for _, g := range byCategory {
		if g.Total.GreaterThan(best) {
			best = g.Total
			biggest = g.Key
		}
	}

	savings := income.Sub(expense)
	rate := decimal.Zero
	if income.IsPositive() {
		rate = savings.Div(income).Mul(decimal.NewFromInt(100)).Round(2)
	}

	return &Stats{
		TotalIncome:            income,
		TotalExpense:           expense,
		NetSavings:             savings,
		SavingsRate:            rate,
		BiggestExpenseCategory: biggest,
		AverageDailySpending:   expense.Div(decimal.NewFromInt(int64(daysInMonth))).Round(2),
	}, nil
}
