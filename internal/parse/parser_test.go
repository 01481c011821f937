package parse

import (
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/ledger-import/internal/ledger"
)

var _ = Describe("Parser", func() {
	var (
		parser *Parser
		now    time.Time
	)

	BeforeEach(func() {
		parser = New(nil)
		now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	})

	Describe("Receipt", func() {
		var (
			text       string
			candidates []Candidate
		)

		JustBeforeEach(func() {
			candidates = parser.Receipt(text, now)
		})

		When("one line carries an amount", func() {
			BeforeEach(func() {
				text = "Whole Foods Market\n$23.10\nThank you"
			})

			It("should emit exactly one expense", func() {
				Expect(candidates).To(HaveLen(1))
				Expect(candidates[0].Type).To(Equal(ledger.Expense))
				Expect(candidates[0].Amount.StringFixed(2)).To(Equal("23.10"))
			})

			It("should categorize from the matching line only", func() {
				Expect(candidates[0].Category).To(Equal(Uncategorized))
				Expect(candidates[0].Description).To(Equal("$23.10"))
			})

			It("should date the expense now", func() {
				Expect(candidates[0].Date).To(Equal(now))
			})
		})

		When("several lines carry amounts", func() {
			BeforeEach(func() {
				text = "  Corner Cafe latte $4.50  \r\n\r\nShell gas 30.00\nTotal: $34.50\n"
			})

			It("should keep line order and trim descriptions", func() {
				Expect(candidates).To(HaveLen(3))
				Expect(candidates[0].Description).To(Equal("Corner Cafe latte $4.50"))
				Expect(candidates[0].Category).To(Equal("Dining"))
				Expect(candidates[1].Category).To(Equal("Fuel"))
				Expect(candidates[2].Amount.StringFixed(2)).To(Equal("34.50"))
			})

			It("should never emit more candidates than non-empty lines", func() {
				nonEmpty := 0
				for _, l := range strings.Split(text, "\n") {
					if strings.TrimSpace(l) != "" {
						nonEmpty++
					}
				}
				Expect(len(candidates)).To(BeNumerically("<=", nonEmpty))
				for _, c := range candidates {
					Expect(c.Amount.IsPositive()).To(BeTrue())
				}
			})
		})

		When("the text is empty", func() {
			BeforeEach(func() {
				text = ""
			})

			It("should return nothing", func() {
				Expect(candidates).To(BeEmpty())
			})
		})
	})

	Describe("Statement", func() {
		var (
			text       string
			candidates []Candidate
		)

		JustBeforeEach(func() {
			candidates = parser.Statement(text)
		})

		When("a row is well formed", func() {
			BeforeEach(func() {
				text = "2024-01-15    Coffee Shop    Dining    -4.50    EXPENSE"
			})

			It("should read every column", func() {
				Expect(candidates).To(HaveLen(1))
				c := candidates[0]
				Expect(c.Date).To(Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)))
				Expect(c.Description).To(Equal("Coffee Shop"))
				Expect(c.Category).To(Equal("Dining"))
				Expect(c.Amount.StringFixed(2)).To(Equal("4.50"))
				Expect(c.Type).To(Equal(ledger.Expense))
			})
		})

		When("rows use tabs, pipes and currency symbols", func() {
			BeforeEach(func() {
				text = strings.Join([]string{
					"01/31/2024\tACME Payroll\tSalary\t$2,500.00\tINCOME",
					"Feb 2, 2024 | Metro Card | Transportation | 25.00 | EXPENSE",
				}, "\n")
			})

			It("should read both rows", func() {
				Expect(candidates).To(HaveLen(2))
				Expect(candidates[0].Type).To(Equal(ledger.Income))
				Expect(candidates[0].Amount.StringFixed(2)).To(Equal("2500.00"))
				Expect(candidates[1].Date).To(Equal(time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)))
				Expect(candidates[1].Category).To(Equal("Transportation"))
			})
		})

		When("some rows are malformed", func() {
			BeforeEach(func() {
				text = strings.Join([]string{
					"Date    Description    Category    Amount    Type",
					"2024-01-15    Coffee Shop    Dining    -4.50    EXPENSE",
					"2024-01-16    Too few    columns",
					"2024-01-17    Refund    Shopping    10.00    TRANSFER",
					"2024-01-18    Lowercase    Shopping    10.00    expense",
					"not-a-date    Bad date    Misc    3.00    EXPENSE",
					"2024-01-19    Zero    Misc    0.00    EXPENSE",
					"2024-01-20    Bad amount    Misc    n/a    EXPENSE",
					"2024-01-21    Paycheck    Salary    1000    INCOME",
				}, "\n")
			})

			It("should keep only the valid rows in document order", func() {
				Expect(candidates).To(HaveLen(2))
				Expect(candidates[0].Description).To(Equal("Coffee Shop"))
				Expect(candidates[1].Description).To(Equal("Paycheck"))
				Expect(candidates[1].Type).To(Equal(ledger.Income))
			})
		})

		When("amounts carry fractions of a cent", func() {
			BeforeEach(func() {
				text = strings.Join([]string{
					"2024-01-15    Rounding dust    Misc    0.004    EXPENSE",
					"2024-01-16    Parking    Transportation    4.505    EXPENSE",
				}, "\n")
			})

			It("should round to cents and drop rows that round to zero", func() {
				Expect(candidates).To(HaveLen(1))
				Expect(candidates[0].Description).To(Equal("Parking"))
				Expect(candidates[0].Amount.String()).To(Equal("4.51"))
			})
		})

		When("a row has extra trailing columns", func() {
			BeforeEach(func() {
				text = "2024-01-15    Coffee Shop    Dining    4.50    EXPENSE    1234.56"
			})

			It("should use the first five", func() {
				Expect(candidates).To(HaveLen(1))
				Expect(candidates[0].Amount.StringFixed(2)).To(Equal("4.50"))
			})
		})

		When("the text is empty", func() {
			BeforeEach(func() {
				text = "   \n\n"
			})

			It("should return nothing", func() {
				Expect(candidates).To(BeEmpty())
			})
		})
	})
})
