package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.etcd.io/bbolt"
)

const bucketName = "transactions"

// BoltStore implements the Store interface using BoltDB
type BoltStore struct {
	db    *bbolt.DB
	ids   IDGenerator
	clock TimeSource
}

// NewBoltStore opens (or creates) a BoltDB file at path
func NewBoltStore(path string) (*BoltStore, error) {
	return NewBoltStoreWithDeps(path, &uuidGenerator{}, &systemClock{})
}

// NewBoltStoreWithDeps opens a BoltStore with custom dependencies for testing
func NewBoltStoreWithDeps(path string, ids IDGenerator, clock TimeSource) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db, ids: ids, clock: clock}, nil
}

// Create saves a single transaction
func (b *BoltStore) Create(ctx context.Context, t Transaction) (*Transaction, error) {
	created, err := b.CreateBatch(ctx, []Transaction{t})
	if err != nil {
		return nil, err
	}
	return created[0], nil
}

// CreateBatch saves every transaction inside one bolt write transaction.
// Returning an error from Update rolls the whole batch back.
func (b *BoltStore) CreateBatch(ctx context.Context, ts []Transaction) ([]*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	created, err := stamp(ts, b.ids, b.clock)
	if err != nil {
		return nil, fmt.Errorf("validating transaction: %w", err)
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		for _, t := range created {
			if bucket.Get([]byte(t.ID)) != nil {
				return fmt.Errorf("transaction id already used: %s", t.ID)
			}
			data, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("marshaling transaction: %w", err)
			}
			if err := bucket.Put([]byte(t.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Get retrieves a transaction by ID
func (b *BoltStore) Get(id string) (*Transaction, error) {
	var t *Transaction
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("transaction not found: %s", id)
		}
		return json.Unmarshal(data, &t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Query returns a page of matching transactions sorted by date, newest first
func (b *BoltStore) Query(ctx context.Context, f Filter, p Page) ([]*Transaction, int, error) {
	matched, err := b.scan(ctx, f)
	if err != nil {
		return nil, 0, err
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Date.After(matched[j].Date)
	})

	total := len(matched)
	start := p.Offset()
	if start >= total {
		return []*Transaction{}, total, nil
	}
	end := total
	if p.Size > 0 && start+p.Size < total {
		end = start + p.Size
	}
	return matched[start:end], total, nil
}

// Aggregate sums amounts of matching transactions per group, ordered by key
func (b *BoltStore) Aggregate(ctx context.Context, f Filter, g GroupKey) ([]GroupTotal, error) {
	matched, err := b.scan(ctx, f)
	if err != nil {
		return nil, err
	}
	return sumGroups(matched, g)
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}

func (b *BoltStore) scan(ctx context.Context, f Filter) ([]*Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	matched := make([]*Transaction, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var t Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("unmarshaling transaction: %w", err)
			}
			if f.Matches(&t) {
				matched = append(matched, &t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return matched, nil
}

func sumGroups(ts []*Transaction, g GroupKey) ([]GroupTotal, error) {
	index := make(map[string]int)
	groups := make([]GroupTotal, 0)
	for _, t := range ts {
		key, err := g.KeyOf(t)
		if err != nil {
			return nil, err
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, GroupTotal{Key: key, Total: decimal.Zero})
		}
		groups[i].Total = groups[i].Total.Add(t.Amount)
		groups[i].Count++
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups, nil
}
