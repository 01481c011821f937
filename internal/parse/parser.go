package parse

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/ledger-import/internal/ledger"
)

// Candidate is a transaction recovered from text that has not been stored yet
type Candidate struct {
	Amount      decimal.Decimal
	Category    string
	Description string
	Date        time.Time
	Type        ledger.Type
}

var (
	lineBreak      = regexp.MustCompile(`\r?\n`)
	columnBreak    = regexp.MustCompile(`\s{2,}|\t|\s\|\s`)
	nonAmountChars = regexp.MustCompile(`[^0-9.\-]`)
)

// statementColumns is the number of leading columns a statement row must carry:
// date, description, category, amount, type
const statementColumns = 5

// dateLayouts are tried in order when reading a statement date
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	"Jan 2 2006",
}

// Parser turns extracted text into candidate transactions
type Parser struct {
	taxonomy *Taxonomy
}

// New creates a Parser that categorizes receipt lines with taxonomy
func New(taxonomy *Taxonomy) *Parser {
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy()
	}
	return &Parser{taxonomy: taxonomy}
}

// Receipt emits one expense per line that carries an amount, dated now.
// The category is inferred from the matching line itself.
func (p *Parser) Receipt(text string, now time.Time) []Candidate {
	var out []Candidate
	for _, line := range lines(text) {
		amount, ok := Classify(line)
		if !ok {
			continue
		}
		out = append(out, Candidate{
			Amount:      amount,
			Category:    p.taxonomy.Infer(line),
			Description: line,
			Date:        now,
			Type:        ledger.Expense,
		})
	}
	return out
}

// Statement reads rows of date, description, category, amount and type.
// Rows that cannot be read are skipped without affecting the others.
func (p *Parser) Statement(text string) []Candidate {
	var out []Candidate
	for i, line := range lines(text) {
		c, ok := statementRow(line)
		if !ok {
			slog.Debug("skipping statement row", "line", i+1)
			continue
		}
		out = append(out, c)
	}
	return out
}

func statementRow(line string) (Candidate, bool) {
	var cols []string
	for _, tok := range columnBreak.Split(line, -1) {
		if tok = strings.TrimSpace(tok); tok != "" {
			cols = append(cols, tok)
		}
	}
	if len(cols) < statementColumns {
		return Candidate{}, false
	}

	typ, ok := ledger.ParseType(cols[4])
	if !ok {
		return Candidate{}, false
	}

	amount, err := decimal.NewFromString(nonAmountChars.ReplaceAllString(cols[3], ""))
	if err != nil {
		return Candidate{}, false
	}
	amount = amount.Abs().Round(2)
	if !amount.IsPositive() {
		return Candidate{}, false
	}

	date, ok := parseDate(cols[0])
	if !ok {
		return Candidate{}, false
	}

	return Candidate{
		Amount:      amount,
		Category:    cols[2],
		Description: cols[1],
		Date:        date,
		Type:        typ,
	}, true
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func lines(text string) []string {
	var out []string
	for _, l := range lineBreak.Split(text, -1) {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
