package ledger

import (
	"context"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
)

func expense(owner, category, amount string, date time.Time) Transaction {
	return Transaction{
		OwnerID:     owner,
		Type:        Expense,
		Amount:      decimal.RequireFromString(amount),
		Category:    category,
		Description: category + " purchase",
		Date:        date,
	}
}

var _ = Describe("BoltStore", func() {
	var (
		ctx   context.Context
		ids   *sequenceIDGenerator
		now   time.Time
		store *BoltStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		ids = &sequenceIDGenerator{}
		now = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)
		var err error
		store, err = NewBoltStoreWithDeps(filepath.Join(GinkgoT().TempDir(), "test.db"), ids, &mockTimeSource{now: now})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if store != nil {
			store.Close()
		}
	})

	Describe("CreateBatch", func() {
		var (
			input   []Transaction
			created []*Transaction
			err     error
		)

		BeforeEach(func() {
			input = []Transaction{
				expense("owner-1", "Dining", "4.50", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)),
				expense("owner-1", "Groceries", "23.10", time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)),
			}
		})

		JustBeforeEach(func() {
			created, err = store.CreateBatch(ctx, input)
		})

		When("every record is valid", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should assign store IDs in input order", func() {
				Expect(created).To(HaveLen(2))
				Expect(created[0].ID).To(Equal("id-1"))
				Expect(created[1].ID).To(Equal("id-2"))
			})

			It("should stamp the creation time", func() {
				Expect(created[0].CreatedAt).To(BeTemporally("==", now))
			})

			It("should round-trip amount, category, type and date", func() {
				saved, getErr := store.Get("id-1")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.Amount.Equal(input[0].Amount)).To(BeTrue())
				Expect(saved.Category).To(Equal(input[0].Category))
				Expect(saved.Type).To(Equal(input[0].Type))
				Expect(saved.Date).To(BeTemporally("==", input[0].Date))
				Expect(saved.OwnerID).To(Equal("owner-1"))
			})
		})

		When("one record is invalid", func() {
			BeforeEach(func() {
				input[1].Amount = decimal.Zero
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ContainSubstring("amount must be positive")))
			})

			It("should persist nothing", func() {
				_, total, qErr := store.Query(ctx, Filter{}, Page{Number: 1, Size: 10})
				Expect(qErr).NotTo(HaveOccurred())
				Expect(total).To(BeZero())
			})
		})

		When("the write fails mid-batch", func() {
			BeforeEach(func() {
				ids.fixed = "same-id"
			})

			It("returns the error", func() {
				Expect(err).To(MatchError(ContainSubstring("already used")))
			})

			It("should roll back the records written before the failure", func() {
				_, getErr := store.Get("same-id")
				Expect(getErr).To(HaveOccurred())
			})
		})
	})

	Describe("Query", func() {
		BeforeEach(func() {
			_, err := store.CreateBatch(ctx, []Transaction{
				expense("owner-1", "Dining", "4.50", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
				expense("owner-1", "Fuel", "40.00", time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)),
				expense("owner-1", "Dining", "12.00", time.Date(2024, 1, 30, 0, 0, 0, 0, time.UTC)),
				expense("owner-2", "Dining", "99.00", time.Date(2024, 1, 25, 0, 0, 0, 0, time.UTC)),
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should only return the owner's transactions, newest first", func() {
			items, total, err := store.Query(ctx, Filter{OwnerID: "owner-1"}, Page{Number: 1, Size: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(3))
			Expect(items[0].Category).To(Equal("Dining"))
			Expect(items[0].Amount.String()).To(Equal("12"))
			Expect(items[2].Amount.String()).To(Equal("4.5"))
		})

		It("should paginate", func() {
			items, total, err := store.Query(ctx, Filter{OwnerID: "owner-1"}, Page{Number: 2, Size: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(3))
			Expect(items).To(HaveLen(1))
		})

		It("should return an empty page past the end", func() {
			items, _, err := store.Query(ctx, Filter{OwnerID: "owner-1"}, Page{Number: 5, Size: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(items).To(BeEmpty())
		})

		It("should filter by date range and category", func() {
			from := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
			items, total, err := store.Query(ctx, Filter{OwnerID: "owner-1", From: &from, Category: "Dining"}, Page{Number: 1, Size: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(Equal(1))
			Expect(items[0].Amount.String()).To(Equal("12"))
		})
	})

	Describe("Aggregate", func() {
		BeforeEach(func() {
			income := expense("owner-1", "Salary", "1000.00", time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))
			income.Type = Income
			_, err := store.CreateBatch(ctx, []Transaction{
				expense("owner-1", "Dining", "4.50", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)),
				expense("owner-1", "Dining", "5.50", time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)),
				expense("owner-1", "Fuel", "40.00", time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)),
				income,
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should sum by category in key order", func() {
			groups, err := store.Aggregate(ctx, Filter{OwnerID: "owner-1", Type: Expense}, GroupByCategory)
			Expect(err).NotTo(HaveOccurred())
			Expect(groups).To(HaveLen(2))
			Expect(groups[0].Key).To(Equal("Dining"))
			Expect(groups[0].Total.String()).To(Equal("10"))
			Expect(groups[0].Count).To(Equal(2))
			Expect(groups[1].Key).To(Equal("Fuel"))
		})

		It("should sum by month", func() {
			groups, err := store.Aggregate(ctx, Filter{OwnerID: "owner-1"}, GroupByMonth)
			Expect(err).NotTo(HaveOccurred())
			Expect(groups).To(HaveLen(2))
			Expect(groups[0].Key).To(Equal("2024-01"))
			Expect(groups[1].Key).To(Equal("2024-02"))
			Expect(groups[1].Total.String()).To(Equal("1040"))
		})

		It("rejects unknown group keys", func() {
			_, err := store.Aggregate(ctx, Filter{}, GroupKey("weekday"))
			Expect(err).To(HaveOccurred())
		})
	})
})
