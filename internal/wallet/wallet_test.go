package wallet

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	acct, err := NewAccount(testKey)
	require.NoError(t, err)
	return NewProvider(acct, Options{ChainID: 1, Balance: big.NewInt(1_000_000)})
}

func TestNewAccount(t *testing.T) {
	t.Parallel()
	acct, err := NewAccount("0x" + testKey)
	require.NoError(t, err)
	assert.Equal(t, testAddress, acct.Hex())

	_, err = NewAccount("nope")
	assert.Error(t, err)
}

func TestHandle_Accounts(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t)

	want := []string{strings.ToLower(testAddress)}

	// The account list is fixed: a page checking eth_accounts on load sees
	// the wallet before it ever asks to connect.
	resp := p.Handle("eth_accounts", nil)
	require.Nil(t, resp.Error)
	assert.Equal(t, want, resp.Result)

	resp = p.Handle("eth_requestAccounts", nil)
	require.Nil(t, resp.Error)
	assert.Equal(t, want, resp.Result)
	require.NotEmpty(t, resp.Events)
	assert.Equal(t, "accountsChanged", resp.Events[0].Name)

	resp = p.Handle("eth_accounts", nil)
	assert.Equal(t, want, resp.Result)
	assert.Equal(t, 1, p.CallCount("eth_requestAccounts"))
	assert.Equal(t, 2, p.CallCount("eth_accounts"))

	p.Reset()
	assert.Equal(t, want, p.Handle("eth_accounts", nil).Result, "reset keeps the account list")
}

func TestHandle_ChainAndBalance(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t)
	assert.Equal(t, "0x1", p.Handle("eth_chainId", nil).Result)
	assert.Equal(t, "1", p.Handle("net_version", nil).Result)
	assert.Equal(t, hexutil.EncodeBig(big.NewInt(1_000_000)), p.Handle("eth_getBalance", []any{testAddress, "latest"}).Result)
	assert.Equal(t, "0x", p.Handle("eth_call", []any{map[string]any{}}).Result)

	resp := p.Handle("wallet_switchEthereumChain", []any{map[string]any{"chainId": "0xa4b1"}})
	require.Nil(t, resp.Error)
	assert.Equal(t, int64(42161), p.ChainID())
	require.Len(t, resp.Events, 1)
	assert.Equal(t, Event{Name: "chainChanged", Data: "0xa4b1"}, resp.Events[0])

	resp = p.Handle("wallet_switchEthereumChain", []any{map[string]any{"chainId": "bogus"}})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestHandle_UnsupportedMethod(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t)
	resp := p.Handle("eth_signTypedData_v4", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeUnsupported, resp.Error.Code)
	calls := p.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, CodeUnsupported, calls[0].Error.Code)
}

func TestPersonalSign_RecoversSigner(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t)
	msg := "Sign in to Vaults"

	resp := p.Handle("personal_sign", []any{hexutil.Encode([]byte(msg)), testAddress})
	require.Nil(t, resp.Error)
	sig, err := hexutil.Decode(resp.Result.(string))
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	sig[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash([]byte(msg)), sig)
	require.NoError(t, err)
	assert.Equal(t, testAddress, crypto.PubkeyToAddress(*pub).Hex())

	resp = p.Handle("personal_sign", []any{msg, "0x0000000000000000000000000000000000000001"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeUnauthorized, resp.Error.Code)
}

func TestSendTransaction_RecordsAndReceipts(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t)
	tx := map[string]any{
		"from":  testAddress,
		"to":    "0x000000000000000000000000000000000000dEaD",
		"value": "0x3e8",
		"data":  "0xd0e30db0",
	}
	first := p.Handle("eth_sendTransaction", []any{tx})
	require.Nil(t, first.Error)
	second := p.Handle("eth_sendTransaction", []any{tx})
	require.Nil(t, second.Error)
	assert.NotEqual(t, first.Result, second.Result, "nonce makes hashes distinct")

	txs := p.Transactions()
	require.Len(t, txs, 2)
	assert.Equal(t, int64(1000), txs[0].Value.Int64())
	assert.Equal(t, []byte{0xd0, 0xe3, 0x0d, 0xb0}, txs[0].Data)
	assert.Equal(t, int64(998_000), p.Balance().Int64())

	receipt := p.Handle("eth_getTransactionReceipt", []any{first.Result})
	require.Nil(t, receipt.Error)
	fields := receipt.Result.(map[string]any)
	assert.Equal(t, "0x1", fields["status"])
	assert.Equal(t, first.Result, fields["transactionHash"])

	assert.Nil(t, p.Handle("eth_getTransactionReceipt", []any{"0x1234"}).Result)

	tooMuch := map[string]any{"to": tx["to"], "value": hexutil.EncodeBig(big.NewInt(10_000_000))}
	resp := p.Handle("eth_sendTransaction", []any{tooMuch})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInsufficient, resp.Error.Code)
}

func TestRejectingMode(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t)
	p.SetRejecting(true)

	for _, method := range []string{"eth_sendTransaction", "personal_sign", "eth_requestAccounts"} {
		resp := p.Handle(method, []any{map[string]any{}, testAddress})
		require.NotNil(t, resp.Error, method)
		assert.Equal(t, CodeUserRejected, resp.Error.Code, method)
	}
	assert.Empty(t, p.Transactions())

	p.Reset()
	assert.Empty(t, p.Calls())
	assert.Nil(t, p.Handle("eth_requestAccounts", nil).Error)
}

func TestHandleJSON_WireFormat(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t)

	var resp struct {
		Result any `json:"result"`
		Error  *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(p.HandleJSON("eth_chainId", []any{})), &resp))
	assert.Equal(t, "0x1", resp.Result)
	assert.Nil(t, resp.Error)

	require.NoError(t, json.Unmarshal([]byte(p.HandleJSON()), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidParams, resp.Error.Code)
}

func TestInitScript(t *testing.T) {
	t.Parallel()
	p := newTestProvider(t)
	script := p.InitScript()
	for _, want := range []string{
		"window.ethereum = provider",
		"removeListener",
		"isMetaMask: true",
		`chainId: "0x1"`,
		`window["` + BindingName + `"]`,
		"eip6963:announceProvider",
	} {
		assert.Contains(t, script, want)
	}
}

func TestSendTransaction_HashesAreUnique(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		acct, err := NewAccount(testKey)
		if err != nil {
			t.Fatal(err)
		}
		p := NewProvider(acct, Options{Balance: new(big.Int).Lsh(big.NewInt(1), 100)})
		n := rapid.IntRange(1, 20).Draw(t, "n")
		seen := map[any]bool{}
		for i := 0; i < n; i++ {
			value := rapid.Uint32().Draw(t, "value")
			resp := p.Handle("eth_sendTransaction", []any{map[string]any{
				"to":    "0x000000000000000000000000000000000000dEaD",
				"value": hexutil.EncodeUint64(uint64(value)),
			}})
			if resp.Error != nil {
				t.Fatalf("send %d: %v", i, resp.Error)
			}
			if seen[resp.Result] {
				t.Fatalf("duplicate hash %v", resp.Result)
			}
			seen[resp.Result] = true
		}
	})
}
