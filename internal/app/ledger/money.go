package ledger

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// amountPattern enforces pain.001's sandbox-restricted precision: at most two
// fractional digits, matching Taler's wire amount format rather than
// ISO-20022's natural five.
var amountPattern = regexp.MustCompile(`^-?\d+(\.\d{1,2})?$`)

// parseAmountCents validates and converts a decimal amount string into
// integer minor units, so booking arithmetic never touches floating point.
func parseAmountCents(s string) (int64, error) {
	if !amountPattern.MatchString(s) {
		return 0, fmt.Errorf("amount %q is not a valid decimal with at most 2 fractional digits", s)
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	whole, frac, _ := strings.Cut(s, ".")
	for len(frac) < 2 {
		frac += "0"
	}
	wholeN, err := strconv.ParseInt(whole, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	fracN, err := strconv.ParseInt(frac, 10, 63)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	cents := wholeN*100 + fracN
	if neg {
		cents = -cents
	}
	return cents, nil
}

// formatAmountCents renders minor units back into pain.001/camt's two-decimal
// string form.
func formatAmountCents(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := fmt.Sprintf("%d.%02d", cents/100, cents%100)
	if neg {
		s = "-" + s
	}
	return s
}

// sumCents adds every transaction's signed amount (credit positive, debit
// negative) to acc.
func sumCents(acc int64, direction Direction, amount string) (int64, error) {
	cents, err := parseAmountCents(amount)
	if err != nil {
		return acc, err
	}
	if direction == Debit {
		return acc - cents, nil
	}
	return acc + cents, nil
}

// ParseAmountCents and FormatAmountCents expose this package's decimal-string
// minor-unit conversion to other packages (the withdrawal service sums
// pending amounts the same way booking does), without duplicating the
// parsing rules.
func ParseAmountCents(s string) (int64, error) { return parseAmountCents(s) }
func FormatAmountCents(cents int64) string     { return formatAmountCents(cents) }
