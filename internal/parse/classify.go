package parse

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// amountRules are tried in order; the first that matches with a positive value wins
var amountRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)total[:\s]*\$?([0-9]+(?:\.[0-9]{2})?)`),
	regexp.MustCompile(`(?i)amount[:\s]*\$?([0-9]+(?:\.[0-9]{2})?)`),
	regexp.MustCompile(`([0-9]+(?:\.[0-9]{2})?)\s*(?i:usd)`),
	regexp.MustCompile(`\$?([0-9]+(?:\.[0-9]{2})?)`),
}

// Classify extracts a monetary amount from a single line of text.
// It reports false when no rule yields a value greater than zero.
func Classify(line string) (decimal.Decimal, bool) {
	for _, rule := range amountRules {
		m := rule.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		amount, err := decimal.NewFromString(m[1])
		if err != nil || !amount.IsPositive() {
			continue
		}
		return amount, true
	}
	return decimal.Zero, false
}
