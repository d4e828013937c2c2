package scenario

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kuitang/vaults-e2e/internal/display"
	"github.com/kuitang/vaults-e2e/internal/errs"
)

// expectSorted fails unless values are monotonic in direction want. Fewer
// than two values cannot show an order and are reported as such.
func expectSorted(values []decimal.Decimal, want display.Order) error {
	if len(values) < 2 {
		return errs.Newf(errs.AssertionFailed, "need at least 2 values to check %s order, got %d", want, len(values))
	}
	if display.IsSorted(values, want) {
		return nil
	}
	return errs.Newf(errs.AssertionFailed, "expected %s order, got %s: %s", want, display.Ordering(values), joinDecimals(values))
}

func joinDecimals(values []decimal.Decimal) string {
	const max = 12
	parts := make([]string, 0, len(values))
	for i, v := range values {
		if i == max {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, v.String())
	}
	return strings.Join(parts, ", ")
}

func expectNonEmpty(texts []string, what string) error {
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return errs.Newf(errs.AssertionFailed, "%s: found an empty entry among %d", what, len(texts))
		}
	}
	if len(texts) == 0 {
		return errs.Newf(errs.AssertionFailed, "%s: none shown", what)
	}
	return nil
}

func expectContains(got, want, what string) error {
	if strings.Contains(strings.ToLower(got), strings.ToLower(strings.TrimSpace(want))) {
		return nil
	}
	return errs.Newf(errs.AssertionFailed, "%s: %q does not contain %q", what, got, want)
}
