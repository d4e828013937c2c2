package display

import (
	"errors"
	"fmt"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParseAPR(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"12.34%":          "12.34",
		"APR 12.34 %":     "12.34",
		"1,234.5%":        "1234.5",
		" 0% ":            "0",
		"-3.2%":           "-3.2",
		"8.1% APR":        "8.1",
		".5%":             "0.5",
		"\u22125.2%":      "-5.2",
		"APR \u22120.75%": "-0.75",
	}
	for in, want := range cases {
		got, err := ParseAPR(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(dec(want)), "ParseAPR(%q) = %s, want %s", in, got, want)
	}

	for _, in := range []string{"—", "-", "\u2212", "N/A", ""} {
		_, err := ParseAPR(in)
		assert.ErrorIs(t, err, ErrNoValue, in)
	}
	_, err := ParseAPR("12.34")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNoValue))
}

func TestParseAmount(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"$1.2M":         "1200000",
		"950K":          "950000",
		"$3.5B":         "3500000000",
		"1,234.56 USDC": "1234.56",
		"<$0.01":        "0.01",
		"$12":           "12",
		"2.5 m":         "2500000",
		"10 MKR":        "10",
		"\u2212$1.2M":   "-1200000",
		"-$950K":        "-950000",
		"- $12":         "-12",
		"\u221240 USDC": "-40",
	}
	for in, want := range cases {
		got, err := ParseAmount(in)
		require.NoError(t, err, in)
		assert.True(t, got.Equal(dec(want)), "ParseAmount(%q) = %s, want %s", in, got, want)
	}
	_, err := ParseAmount("—")
	assert.ErrorIs(t, err, ErrNoValue)
	_, err = ParseAmount("USDC")
	assert.Error(t, err)
}

func TestParseAPR_RoundTripsFormatted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cents := rapid.Int64Range(0, 10_000_000).Draw(t, "cents")
		v := decimal.New(cents, -2)
		text := fmt.Sprintf("%s%%", v.StringFixed(2))
		got, err := ParseAPR(text)
		if err != nil {
			t.Fatalf("ParseAPR(%q): %v", text, err)
		}
		if !got.Equal(v) {
			t.Fatalf("ParseAPR(%q) = %s, want %s", text, got, v)
		}
	})
}

func TestOrdering(t *testing.T) {
	t.Parallel()
	assert.Equal(t, Constant, Ordering(nil))
	assert.Equal(t, Constant, Ordering([]decimal.Decimal{dec("1")}))
	assert.Equal(t, Constant, Ordering([]decimal.Decimal{dec("2"), dec("2")}))
	assert.Equal(t, Descending, Ordering([]decimal.Decimal{dec("9"), dec("9"), dec("3")}))
	assert.Equal(t, Ascending, Ordering([]decimal.Decimal{dec("1"), dec("3"), dec("3")}))
	assert.Equal(t, Unordered, Ordering([]decimal.Decimal{dec("1"), dec("3"), dec("2")}))
	assert.Equal(t, "descending", Descending.String())
}

func TestOrdering_SortedInputsAreSorted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		raw := rapid.SliceOfN(rapid.Int64Range(-1000, 1000), 0, 30).Draw(t, "values")
		sort.Slice(raw, func(i, j int) bool { return raw[i] > raw[j] })
		values := make([]decimal.Decimal, len(raw))
		for i, r := range raw {
			values[i] = decimal.New(r, -1)
		}
		if !IsSorted(values, Descending) {
			t.Fatalf("descending input not recognised: %v", raw)
		}
		if Ordering(values) == Ascending {
			t.Fatalf("descending input classified ascending: %v", raw)
		}
	})
}

func TestParseAll_SkipsPlaceholders(t *testing.T) {
	t.Parallel()
	values, skipped, err := ParseAll([]string{"5%", "—", "3%"}, ParseAPR)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped)
	require.Len(t, values, 2)
	assert.True(t, values[0].Equal(dec("5")))

	_, _, err = ParseAll([]string{"5%", "garbage"}, ParseAPR)
	assert.Error(t, err)
}

func TestAddresses(t *testing.T) {
	t.Parallel()
	addr := "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	assert.Equal(t, "0xf39F…2266", ShortAddress(addr))
	assert.True(t, MatchesAddress("0xf39F…2266", addr))
	assert.True(t, MatchesAddress("Connected: 0xf39f...2266", addr))
	assert.True(t, MatchesAddress(addr, addr))
	assert.True(t, MatchesAddress("0XF39FD6E51AAD88F6F4CE6AB8827279CFFFB92266", addr))
	assert.False(t, MatchesAddress("0xf39F…9999", addr))
	assert.False(t, MatchesAddress("Connect Wallet", addr))
	assert.False(t, MatchesAddress("", addr))
	assert.Equal(t, "0x12", ShortAddress("0x12"))
}
