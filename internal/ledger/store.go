package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines the interface for transaction persistence
type Store interface {
	// Create persists one transaction and returns it with its assigned ID
	Create(ctx context.Context, t Transaction) (*Transaction, error)

	// CreateBatch persists all transactions or none of them
	CreateBatch(ctx context.Context, ts []Transaction) ([]*Transaction, error)

	// Query returns one page of matching transactions, newest first, and the total match count
	Query(ctx context.Context, f Filter, p Page) ([]*Transaction, int, error)

	// Aggregate sums matching transaction amounts per group
	Aggregate(ctx context.Context, f Filter, g GroupKey) ([]GroupTotal, error)

	// Close releases the underlying connection
	Close() error
}

// IDGenerator generates unique IDs for transactions
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type systemClock struct{}

func (c *systemClock) Now() time.Time {
	return time.Now()
}

// SystemClock returns a TimeSource backed by time.Now
func SystemClock() TimeSource {
	return &systemClock{}
}

// stamp assigns identity and creation time to a batch, validating each record first
func stamp(ts []Transaction, ids IDGenerator, clock TimeSource) ([]*Transaction, error) {
	now := clock.Now().UTC()
	out := make([]*Transaction, 0, len(ts))
	for i := range ts {
		t := ts[i]
		if err := t.Validate(); err != nil {
			return nil, err
		}
		t.ID = ids.Generate()
		t.CreatedAt = now
		out = append(out, &t)
	}
	return out, nil
}
