package fixtureapp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/vaults-e2e/internal/selectors"
)

const testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func postJSON(t *testing.T, url string, v any) (*http.Response, []byte) {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func validInput() VaultInput {
	return VaultInput{Name: "Test Vault", Symbol: "TV1", Asset: "USDC", Strategy: "lending", Fee: "2", MinDeposit: "10"}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, DefaultOptions)
	status, body := get(t, ts.URL+"/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"status":"ok"`)
}

func TestVaultsPage(t *testing.T) {
	_, ts := newTestServer(t, DefaultOptions)
	status, body := get(t, ts.URL+"/vaults")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, len(seedVaults()), strings.Count(body, `data-testid="vault-row"`))
	assert.Contains(t, body, `data-testid="sort-apr" aria-sort="none"`)
	assert.Contains(t, body, "18.75%")
	assert.Contains(t, body, "$12.45M")
	assert.Contains(t, body, "—")
}

func TestRootRedirects(t *testing.T) {
	_, ts := newTestServer(t, DefaultOptions)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.Get(ts.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/vaults", resp.Header.Get("Location"))
}

func TestVaultDetailPage(t *testing.T) {
	_, ts := newTestServer(t, DefaultOptions)
	status, body := get(t, ts.URL+"/vaults/blue-chip-lp")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Blue Chip LP")
	assert.Contains(t, body, `data-vault-address="`+vaultAddress("blue-chip-lp").Hex()+`"`)

	status, body = get(t, ts.URL+"/vaults/missing")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, body, "missing")
}

var testIDRE = regexp.MustCompile(`^\[data-testid='([^']+)'\]`)

// The first candidate of every chain rendered server-side must find its
// element in the fixture HTML.
func TestPagesCarryCatalogTestIDs(t *testing.T) {
	_, ts := newTestServer(t, DefaultOptions)
	cat := selectors.Default()
	pages := map[string][]string{
		"/vaults": {
			selectors.WalletConnect, selectors.WalletAddress, selectors.VaultRow, selectors.VaultName,
			selectors.VaultAPRHeader, selectors.VaultAPRCell, selectors.VaultTVLCell, selectors.CreateOpen,
		},
		"/vaults/stable-yield-usdc": {
			selectors.DetailTitle, selectors.DetailAPR, selectors.DetailTVL, selectors.DetailDepositTab,
			selectors.DetailWithdrawTab, selectors.DetailAmountInput, selectors.DetailMaxButton,
			selectors.DetailSubmit, selectors.DetailToast, selectors.DetailError,
		},
		"/vaults/new": {
			selectors.CreateName, selectors.CreateSymbol, selectors.CreateAsset, selectors.CreateStrategy,
			selectors.CreateFee, selectors.CreateMinDeposit, selectors.CreateSubmit,
		},
		"/positions": {selectors.PositionsEmpty},
	}
	for path, chains := range pages {
		status, body := get(t, ts.URL+path)
		require.Equal(t, http.StatusOK, status, path)
		for _, name := range chains {
			m := testIDRE.FindStringSubmatch(cat.MustGet(name).Candidates[0])
			require.NotNil(t, m, "chain %s should lead with a data-testid", name)
			assert.Contains(t, body, `data-testid="`+m[1]+`"`, "%s on %s", name, path)
		}
	}
}

func TestCreateVaultAPI(t *testing.T) {
	srv, ts := newTestServer(t, DefaultOptions)

	in := validInput()
	in.Creator = testAddress
	resp, body := postJSON(t, ts.URL+"/api/vaults", in)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created vaultJSON
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "test-vault", created.ID)
	_, ok := srv.Store().Vault(created.ID)
	assert.True(t, ok)

	status, page := get(t, ts.URL+"/vaults/"+created.ID)
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, page, "Test Vault")

	// Same name again gets a distinct ID.
	resp, body = postJSON(t, ts.URL+"/api/vaults", validInput())
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var second vaultJSON
	require.NoError(t, json.Unmarshal(body, &second))
	assert.NotEqual(t, created.ID, second.ID)
	assert.True(t, strings.HasPrefix(second.ID, "test-vault-"))
}

func TestCreateVaultValidation(t *testing.T) {
	_, ts := newTestServer(t, DefaultOptions)

	bad := validInput()
	bad.Fee = "150"
	bad.Symbol = "lower"
	resp, body := postJSON(t, ts.URL+"/api/vaults", bad)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out struct {
		Errors FieldErrors `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Contains(t, out.Errors, "fee")
	assert.Contains(t, out.Errors, "symbol")
	assert.NotContains(t, out.Errors, "name")

	r, err := http.Post(ts.URL+"/api/vaults", "text/plain", strings.NewReader("{}"))
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func TestCreateVaultRateLimited(t *testing.T) {
	_, ts := newTestServer(t, Options{WriteRPS: 0.001, WriteBurst: 1})

	resp, _ := postJSON(t, ts.URL+"/api/vaults", validInput())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = postJSON(t, ts.URL+"/api/vaults", validInput())
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	// Reads are never throttled.
	status, _ := get(t, ts.URL+"/api/vaults")
	assert.Equal(t, http.StatusOK, status)
}

func TestPositionsAPI(t *testing.T) {
	_, ts := newTestServer(t, DefaultOptions)

	deposit := PositionChange{VaultID: "dai-savings", Address: testAddress, Amount: "1.5", Kind: "deposit", TxHash: "0xabc"}
	resp, body := postJSON(t, ts.URL+"/api/positions", deposit)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	status, listBody := get(t, ts.URL+"/api/positions?address="+strings.ToLower(testAddress))
	require.Equal(t, http.StatusOK, status)
	var list []Position
	require.NoError(t, json.Unmarshal([]byte(listBody), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "DAI Savings", list[0].VaultName)
	assert.Equal(t, "1.5", list[0].Amount)

	over := deposit
	over.Kind = "withdraw"
	over.Amount = "2"
	resp, body = postJSON(t, ts.URL+"/api/positions", over)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "insufficient")

	over.Amount = "1.5"
	resp, _ = postJSON(t, ts.URL+"/api/positions", over)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, listBody = get(t, ts.URL+"/api/positions?address="+testAddress)
	assert.JSONEq(t, "[]", listBody)
}

func TestStoreApplyRejects(t *testing.T) {
	s := NewStore()
	tests := []PositionChange{
		{VaultID: "dai-savings", Address: "nope", Amount: "1", Kind: "deposit"},
		{VaultID: "dai-savings", Address: testAddress, Amount: "-1", Kind: "deposit"},
		{VaultID: "dai-savings", Address: testAddress, Amount: "abc", Kind: "deposit"},
		{VaultID: "missing", Address: testAddress, Amount: "1", Kind: "deposit"},
		{VaultID: "dai-savings", Address: testAddress, Amount: "1", Kind: "borrow"},
	}
	for _, c := range tests {
		assert.Error(t, s.Apply(c), "%+v", c)
	}
	assert.Empty(t, s.Positions(testAddress))
}

func TestStoreMinDeposit(t *testing.T) {
	s := NewStore()
	in := validInput()
	v, fe := s.Create(in)
	require.Empty(t, fe)

	err := s.Apply(PositionChange{VaultID: v.ID, Address: testAddress, Amount: "5", Kind: "deposit"})
	assert.ErrorContains(t, err, "minimum deposit")
	require.NoError(t, s.Apply(PositionChange{VaultID: v.ID, Address: testAddress, Amount: "10", Kind: "deposit"}))

	got, _ := s.Vault(v.ID)
	assert.True(t, got.TVL.Equal(decimal.NewFromInt(10)))
}

// Deposits and withdrawals never drive a holding negative, and the holding
// always equals deposits minus accepted withdrawals.
func TestStorePositionsBalance(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		s := NewStore()
		want := decimal.Zero
		n := rapid.IntRange(1, 30).Draw(t, "ops")
		for i := 0; i < n; i++ {
			kind := rapid.SampledFrom([]string{"deposit", "withdraw"}).Draw(t, "kind")
			cents := rapid.Int64Range(1, 10_000).Draw(t, "cents")
			amount := decimal.New(cents, -2)
			err := s.Apply(PositionChange{VaultID: "degen-farm", Address: testAddress, Amount: amount.String(), Kind: kind})
			switch {
			case kind == "deposit":
				if err != nil {
					t.Fatalf("deposit %s: %v", amount, err)
				}
				want = want.Add(amount)
			case amount.GreaterThan(want):
				if err == nil {
					t.Fatalf("withdrew %s while holding %s", amount, want)
				}
			default:
				if err != nil {
					t.Fatalf("withdraw %s of %s: %v", amount, want, err)
				}
				want = want.Sub(amount)
			}
		}
		got := decimal.Zero
		for _, p := range s.Positions(testAddress) {
			got = got.Add(decimal.RequireFromString(p.Amount))
		}
		if !got.Equal(want) {
			t.Fatalf("holding %s, want %s", got, want)
		}
	})
}

func TestValidate(t *testing.T) {
	assert.Empty(t, validInput().Validate())

	empty := VaultInput{}.Validate()
	for _, field := range []string{"name", "symbol", "asset", "strategy", "fee", "minDeposit"} {
		assert.Contains(t, empty, field)
	}

	in := validInput()
	in.Name = "ab"
	in.Fee = "-1"
	in.MinDeposit = "-5"
	in.Creator = "0x123"
	fe := in.Validate()
	assert.Len(t, fe, 4)
}

func TestFormatUSD(t *testing.T) {
	tests := map[string]string{
		"950000":     "$950.00K",
		"12450000":   "$12.45M",
		"3200000000": "$3.20B",
		"12.5":       "$12.50",
		"0":          "$0.00",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatUSD(decimal.RequireFromString(in)), in)
	}
}

func TestStartAndShutdown(t *testing.T) {
	run, err := Start("127.0.0.1:0", DefaultOptions)
	require.NoError(t, err)
	status, _ := get(t, run.URL+"/health")
	assert.Equal(t, http.StatusOK, status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, run.Shutdown(ctx))
}
