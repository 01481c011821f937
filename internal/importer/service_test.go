package importer

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/ledger-import/internal/extract"
	"github.com/zombor/ledger-import/internal/ledger"
	"github.com/zombor/ledger-import/internal/parse"
)

var _ = Describe("ParseMode", func() {
	It("accepts names in any case", func() {
		Expect(ParseMode("receipt")).To(Equal(Receipt))
		Expect(ParseMode(" Statement ")).To(Equal(Statement))
	})

	It("rejects unknown names", func() {
		_, err := ParseMode("invoice")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Service", func() {
	var (
		ctx       context.Context
		extractor *mockExtractor
		store     *mockBatcher
		observer  *recordingObserver
		now       time.Time
		service   *Service
		doc       Document
		mode      Mode
		result    *Result
		err       error
	)

	BeforeEach(func() {
		ctx = context.Background()
		extractor = &mockExtractor{text: "Whole Foods Market\n$23.10\nThank you"}
		store = &mockBatcher{}
		observer = &recordingObserver{}
		now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		service = NewServiceWithDeps(extractor, parse.New(parse.DefaultTaxonomy()), store, Config{}, &mockTimeSource{now: now}, observer)
		doc = Document{Data: []byte("image-bytes"), MediaType: "image/jpeg", Filename: "receipt.jpg"}
		mode = Receipt
	})

	JustBeforeEach(func() {
		result, err = service.Import(ctx, "owner-1", doc, mode)
	})

	It("defaults the upload limit to 10 MiB", func() {
		Expect(service.MaxDocumentBytes()).To(Equal(int64(10 << 20)))
	})

	When("a receipt has one amount line", func() {
		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should persist one expense for the owner", func() {
			Expect(result.Imported).To(Equal(1))
			Expect(store.saved).To(HaveLen(1))
			saved := store.saved[0]
			Expect(saved.OwnerID).To(Equal("owner-1"))
			Expect(saved.Type).To(Equal(ledger.Expense))
			Expect(saved.Amount.StringFixed(2)).To(Equal("23.10"))
			Expect(saved.Date).To(Equal(now))
		})

		It("should return the stored items with their IDs", func() {
			Expect(result.Items).To(HaveLen(1))
			Expect(result.Items[0].ID).To(Equal("id-1"))
			Expect(result.ExtractedText).To(BeEmpty())
		})

		It("should report the outcome", func() {
			Expect(observer.seen).To(ConsistOf(observation{mode: Receipt, outcome: OutcomeImported, imported: 1}))
		})
	})

	When("a statement PDF has valid rows", func() {
		BeforeEach(func() {
			mode = Statement
			doc.MediaType = "application/pdf"
			extractor.text = "2024-01-15    Coffee Shop    Dining    -4.50    EXPENSE\n" +
				"2024-01-31    Payroll    Salary    2500.00    INCOME"
		})

		It("should persist every row in order", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Imported).To(Equal(2))
			Expect(store.saved[0].Description).To(Equal("Coffee Shop"))
			Expect(store.saved[0].Amount.StringFixed(2)).To(Equal("4.50"))
			Expect(store.saved[1].Type).To(Equal(ledger.Income))
		})
	})

	When("no file was uploaded", func() {
		BeforeEach(func() {
			doc.Data = nil
		})

		It("returns a validation error", func() {
			var vErr *ValidationError
			Expect(errors.As(err, &vErr)).To(BeTrue())
			Expect(vErr.Kind).To(Equal(NoFile))
			Expect(extractor.calls).To(BeZero())
		})
	})

	When("the document exceeds the limit", func() {
		BeforeEach(func() {
			service = NewServiceWithDeps(extractor, parse.New(nil), store, Config{MaxDocumentBytes: 4}, &mockTimeSource{now: now}, observer)
		})

		It("rejects it before extraction", func() {
			var vErr *ValidationError
			Expect(errors.As(err, &vErr)).To(BeTrue())
			Expect(vErr.Kind).To(Equal(PayloadTooLarge))
			Expect(extractor.calls).To(BeZero())
		})

		It("should report a rejection", func() {
			Expect(observer.seen).To(ConsistOf(observation{mode: Receipt, outcome: OutcomeRejected}))
		})
	})

	When("a statement is not a PDF", func() {
		BeforeEach(func() {
			mode = Statement
		})

		It("returns a wrong media type error", func() {
			var vErr *ValidationError
			Expect(errors.As(err, &vErr)).To(BeTrue())
			Expect(vErr.Kind).To(Equal(WrongMediaType))
			Expect(extractor.calls).To(BeZero())
		})
	})

	When("a receipt is a PDF", func() {
		BeforeEach(func() {
			doc.MediaType = "application/pdf"
		})

		It("should be accepted", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(extractor.mediaType).To(Equal("application/pdf"))
		})
	})

	When("OCR fails", func() {
		BeforeEach(func() {
			extractor.err = &extract.Error{Kind: extract.BackendFailure, Backend: "ocr", Err: errors.New("engine down")}
		})

		It("returns the extraction error with its kind", func() {
			var eErr *extract.Error
			Expect(errors.As(err, &eErr)).To(BeTrue())
			Expect(eErr.Kind).To(Equal(extract.BackendFailure))
		})

		It("should persist nothing", func() {
			Expect(store.calls).To(BeZero())
			Expect(result).To(BeNil())
		})
	})

	When("the extractor returns a plain error", func() {
		BeforeEach(func() {
			extractor.err = errors.New("boom")
		})

		It("wraps it as a backend failure", func() {
			var eErr *extract.Error
			Expect(errors.As(err, &eErr)).To(BeTrue())
			Expect(eErr.Kind).To(Equal(extract.BackendFailure))
		})
	})

	When("extraction yields no text", func() {
		BeforeEach(func() {
			extractor.err = &extract.Error{Kind: extract.EmptyOutput, Backend: "ocr"}
		})

		It("keeps the empty output kind", func() {
			var eErr *extract.Error
			Expect(errors.As(err, &eErr)).To(BeTrue())
			Expect(eErr.Kind).To(Equal(extract.EmptyOutput))
		})
	})

	When("no line carries a transaction", func() {
		BeforeEach(func() {
			extractor.text = "Thank you for shopping"
		})

		It("succeeds with zero imports and echoes the text", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Imported).To(BeZero())
			Expect(result.Items).To(BeEmpty())
			Expect(result.ExtractedText).To(Equal("Thank you for shopping"))
			Expect(store.calls).To(BeZero())
		})

		It("should report an empty import", func() {
			Expect(observer.seen).To(ConsistOf(observation{mode: Receipt, outcome: OutcomeEmpty}))
		})
	})

	When("storage fails", func() {
		BeforeEach(func() {
			store.err = errors.New("disk full")
		})

		It("returns a persistence error", func() {
			var pErr *PersistenceError
			Expect(errors.As(err, &pErr)).To(BeTrue())
			Expect(err).To(MatchError(ContainSubstring("disk full")))
		})

		It("should persist nothing", func() {
			Expect(store.saved).To(BeEmpty())
		})
	})
})
