package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	type        TEXT NOT NULL CHECK (type IN ('INCOME', 'EXPENSE')),
	amount      NUMERIC(14, 2) NOT NULL CHECK (amount > 0),
	category    TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	date        TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transactions_owner_date_idx ON transactions (owner_id, date DESC);
`

const insertTransaction = `
	INSERT INTO transactions (id, owner_id, type, amount, category, description, date, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`

// pgxIface is the subset of *pgxpool.Pool the store uses
type pgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements the Store interface using PostgreSQL
type PostgresStore struct {
	pool  pgxIface
	ids   IDGenerator
	clock TimeSource
}

// NewPostgresStore connects to the database at dsn
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return NewPostgresStoreWithDeps(pool, &uuidGenerator{}, &systemClock{}), nil
}

// NewPostgresStoreWithDeps creates a PostgresStore over an existing pool
func NewPostgresStoreWithDeps(pool pgxIface, ids IDGenerator, clock TimeSource) *PostgresStore {
	return &PostgresStore{pool: pool, ids: ids, clock: clock}
}

// Migrate creates the transactions table if it does not exist
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Create saves a single transaction
func (s *PostgresStore) Create(ctx context.Context, t Transaction) (*Transaction, error) {
	created, err := s.CreateBatch(ctx, []Transaction{t})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// CreateBatch inserts every transaction in one database transaction
func (s *PostgresStore) CreateBatch(ctx context.Context, ts []Transaction) ([]*Transaction, error) {
	created, err := stamp(ts, s.ids, s.clock)
	if err != nil {
		return nil, fmt.Errorf("validating transaction: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}

	for _, t := range created {
		_, err := tx.Exec(ctx, insertTransaction,
			t.ID, t.OwnerID, string(t.Type), t.Amount.StringFixed(2),
			t.Category, t.Description, t.Date, t.CreatedAt,
		)
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				return nil, fmt.Errorf("inserting transaction: %w (rollback: %v)", err, rbErr)
			}
			return nil, fmt.Errorf("inserting transaction: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return created, nil
}

// Query returns a page of matching transactions, newest first
func (s *PostgresStore) Query(ctx context.Context, f Filter, p Page) ([]*Transaction, int, error) {
	where, args := whereClause(f)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM transactions"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting transactions: %w", err)
	}

	query := `SELECT id, owner_id, type, amount::text, category, description, date, created_at
		FROM transactions` + where + " ORDER BY date DESC"
	if p.Size > 0 {
		args = append(args, p.Size, p.Offset())
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	items := make([]*Transaction, 0)
	for rows.Next() {
		var (
			t      Transaction
			typ    string
			amount string
		)
		if err := rows.Scan(&t.ID, &t.OwnerID, &typ, &amount, &t.Category, &t.Description, &t.Date, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning transaction: %w", err)
		}
		t.Type = Type(typ)
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, 0, fmt.Errorf("parsing amount %q: %w", amount, err)
		}
		items = append(items, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading transactions: %w", err)
	}
	return items, total, nil
}

// Aggregate sums matching amounts per group, ordered by key
func (s *PostgresStore) Aggregate(ctx context.Context, f Filter, g GroupKey) ([]GroupTotal, error) {
	var column string
	switch g {
	case GroupByType:
		column = "type"
	case GroupByCategory:
		column = "category"
	case GroupByMonth:
		column = "to_char(date AT TIME ZONE 'UTC', 'YYYY-MM')"
	default:
		return nil, fmt.Errorf("unknown group key %q", g)
	}

	where, args := whereClause(f)
	query := fmt.Sprintf(`SELECT %[1]s AS key, SUM(amount)::text, COUNT(*)
		FROM transactions%[2]s GROUP BY %[1]s ORDER BY key`, column, where)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregating transactions: %w", err)
	}
	defer rows.Close()

	groups := make([]GroupTotal, 0)
	for rows.Next() {
		var (
			gt    GroupTotal
			total string
		)
		if err := rows.Scan(&gt.Key, &total, &gt.Count); err != nil {
			return nil, fmt.Errorf("scanning group: %w", err)
		}
		if gt.Total, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parsing total %q: %w", total, err)
		}
		groups = append(groups, gt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading groups: %w", err)
	}
	return groups, nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func whereClause(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.OwnerID != "" {
		add("owner_id = $%d", f.OwnerID)
	}
	if f.From != nil {
		add("date >= $%d", *f.From)
	}
	if f.To != nil {
		add("date <= $%d", *f.To)
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.Category != "" {
		add("category = $%d", f.Category)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
