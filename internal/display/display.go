// Package display parses the metrics the vaults UI renders as text: APR
// percentages, TVL and balance amounts, and truncated wallet addresses.
package display

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNoValue is returned for placeholder cells such as "—" or "N/A".
var ErrNoValue = errors.New("display: no value")

var (
	numberRE   = regexp.MustCompile(`[-+]?\d[\d,]*(?:\.\d+)?|[-+]?\.\d+`)
	suffixRE   = regexp.MustCompile(`^\s*([KkMmBbTt])\b`)
	thousand   = decimal.NewFromInt(1_000)
	multiplier = map[string]decimal.Decimal{
		"K": thousand,
		"M": thousand.Pow(decimal.NewFromInt(2)),
		"B": thousand.Pow(decimal.NewFromInt(3)),
		"T": thousand.Pow(decimal.NewFromInt(4)),
	}
	placeholders = map[string]bool{
		"":    true,
		"-":   true,
		"—":   true,
		"–":   true,
		"n/a": true,
		"na":  true,
		"--":  true,
		"tbd": true,
	}
)

// ParseAPR parses "12.34%", "APR 12.34 %" or "1,234.5%" into 12.34, 12.34 and
// 1234.5. Placeholder cells yield ErrNoValue.
func ParseAPR(text string) (decimal.Decimal, error) {
	cleaned := normalizeMinus(strings.TrimSpace(text))
	if isPlaceholder(cleaned) {
		return decimal.Zero, ErrNoValue
	}
	if !strings.Contains(cleaned, "%") {
		return decimal.Zero, fmt.Errorf("display: %q is not a percentage", text)
	}
	num := numberRE.FindString(cleaned)
	if num == "" {
		return decimal.Zero, fmt.Errorf("display: no number in %q", text)
	}
	return parseNumber(num)
}

// ParseAmount parses "$1.2M", "950K", "1,234.56 USDC" or "<$0.01". Magnitude
// suffixes K, M, B and T directly after the number are applied. A leading "<"
// is ignored and the bound is returned. A minus sign ahead of the currency
// symbol, as in "-$1.2M", negates the amount.
func ParseAmount(text string) (decimal.Decimal, error) {
	cleaned := normalizeMinus(strings.TrimSpace(text))
	if isPlaceholder(cleaned) {
		return decimal.Zero, ErrNoValue
	}
	loc := numberRE.FindStringIndex(cleaned)
	if loc == nil {
		return decimal.Zero, fmt.Errorf("display: no number in %q", text)
	}
	value, err := parseNumber(cleaned[loc[0]:loc[1]])
	if err != nil {
		return decimal.Zero, err
	}
	if value.IsPositive() && strings.HasSuffix(strings.TrimRight(cleaned[:loc[0]], currencySymbols), "-") {
		value = value.Neg()
	}
	if m := suffixRE.FindStringSubmatch(cleaned[loc[1]:]); m != nil {
		value = value.Mul(multiplier[strings.ToUpper(m[1])])
	}
	return value, nil
}

func parseNumber(num string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(num, ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("display: parse %q: %w", num, err)
	}
	return d, nil
}

const currencySymbols = "$€£¥ "

// normalizeMinus rewrites the typographic minus sign (U+2212) as "-".
func normalizeMinus(s string) string {
	return strings.ReplaceAll(s, "\u2212", "-")
}

func isPlaceholder(s string) bool {
	return placeholders[strings.ToLower(strings.TrimSpace(s))]
}

// Order describes how a sequence of values is arranged.
type Order int

const (
	Constant Order = iota
	Ascending
	Descending
	Unordered
)

func (o Order) String() string {
	switch o {
	case Constant:
		return "constant"
	case Ascending:
		return "ascending"
	case Descending:
		return "descending"
	default:
		return "unordered"
	}
}

// Ordering classifies values. Equal neighbours are allowed in either
// direction; fewer than two values are Constant.
func Ordering(values []decimal.Decimal) Order {
	up, down := false, false
	for i := 1; i < len(values); i++ {
		switch values[i].Cmp(values[i-1]) {
		case 1:
			up = true
		case -1:
			down = true
		}
	}
	switch {
	case up && down:
		return Unordered
	case up:
		return Ascending
	case down:
		return Descending
	default:
		return Constant
	}
}

// IsSorted reports whether values are monotonic in dir. Constant sequences
// are sorted in every direction.
func IsSorted(values []decimal.Decimal, dir Order) bool {
	got := Ordering(values)
	return got == Constant || got == dir
}

// ParseAll parses every text with parse, skipping placeholder cells. The
// returned skipped count tells callers how many cells had no value.
func ParseAll(texts []string, parse func(string) (decimal.Decimal, error)) (values []decimal.Decimal, skipped int, err error) {
	values = make([]decimal.Decimal, 0, len(texts))
	for _, text := range texts {
		v, perr := parse(text)
		if errors.Is(perr, ErrNoValue) {
			skipped++
			continue
		}
		if perr != nil {
			return nil, skipped, perr
		}
		values = append(values, v)
	}
	return values, skipped, nil
}

// ShortAddress renders addr the way wallet widgets usually truncate it:
// "0x1234…abcd".
func ShortAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// MatchesAddress reports whether shown, as rendered by the UI, refers to addr.
// It accepts the full address in any case and truncated forms using "…" or
// "...".
func MatchesAddress(shown, addr string) bool {
	shown = strings.ToLower(strings.TrimSpace(shown))
	addr = strings.ToLower(strings.TrimSpace(addr))
	if shown == "" || addr == "" {
		return false
	}
	if strings.Contains(shown, addr) {
		return true
	}
	for _, sep := range []string{"…", "..."} {
		head, tail, ok := strings.Cut(shown, sep)
		if !ok {
			continue
		}
		head = lastToken(head)
		tail = firstToken(tail)
		if len(head) >= 4 && len(tail) >= 3 && strings.HasPrefix(addr, head) && strings.HasSuffix(addr, tail) {
			return true
		}
	}
	return false
}

func lastToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[len(fields)-1]
}

func firstToken(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
