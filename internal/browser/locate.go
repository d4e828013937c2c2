package browser

import (
	"fmt"
	"strings"
	"time"

	"github.com/kuitang/vaults-e2e/internal/errs"
	"github.com/kuitang/vaults-e2e/internal/selectors"
)

const minProbe = 250 * time.Millisecond

// probeBudget splits total across n candidates, never below minProbe.
func probeBudget(total time.Duration, n int) time.Duration {
	if n <= 1 {
		return total
	}
	per := total / time.Duration(n)
	if per < minProbe {
		return minProbe
	}
	return per
}

// firstMatch tries the chain's candidates in order and returns the index of
// the first one probe accepts. A probe error that is not recoverable, such as
// a closed page, stops the search.
func firstMatch(chain selectors.Chain, probe func(selector string) error) (int, error) {
	if len(chain.Candidates) == 0 {
		return -1, errs.Newf(errs.InvalidArgument, "selector chain %q is empty", chain.Name)
	}
	misses := make([]string, 0, len(chain.Candidates))
	for i, sel := range chain.Candidates {
		err := probe(sel)
		if err == nil {
			return i, nil
		}
		if !errs.Recoverable(err) {
			return -1, err
		}
		misses = append(misses, fmt.Sprintf("%q (%s)", sel, errs.CodeOf(err)))
	}
	return -1, errs.Newf(errs.ElementNotFound, "%s: no candidate matched; tried %s", chain.Name, strings.Join(misses, ", "))
}
