// Package wallet implements the mock Web3 provider injected into the browser.
//
// The page sees a window.ethereum object. Every request it makes is forwarded
// to Provider.Handle through a Playwright binding, so accounts, chain id,
// signatures and sent transactions are all controlled and recorded on the Go
// side.
package wallet

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/kuitang/vaults-e2e/internal/logutil"
	"github.com/kuitang/vaults-e2e/internal/obs"
)

// EIP-1193 and JSON-RPC error codes returned to the page.
const (
	CodeUserRejected  = 4001
	CodeUnauthorized  = 4100
	CodeUnsupported   = 4200
	CodeInvalidParams = -32602
	CodeInternal      = -32603
	CodeInsufficient  = -32000
)

const (
	startBlock     = 19_000_000
	gasPriceWei    = 20_000_000_000
	gasEstimate    = 21_000
	maxLoggedChars = 400
)

var logger = obs.Pkg("wallet")

// RPCError is an EIP-1193 provider error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet rpc error %d: %s", e.Code, e.Message)
}

func rpcErr(code int, format string, args ...any) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Account is a test account backed by a private key.
type Account struct {
	key     *ecdsa.PrivateKey
	Address common.Address
}

// NewAccount parses a hex private key, with or without a 0x prefix.
func NewAccount(hexKey string) (Account, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return Account{}, fmt.Errorf("wallet: parse private key: %w", err)
	}
	return Account{key: key, Address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Hex returns the checksummed address.
func (a Account) Hex() string {
	return a.Address.Hex()
}

// SignText produces an EIP-191 personal_sign signature with V in {27, 28}.
func (a Account) SignText(msg []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(msg), a.key)
	if err != nil {
		return nil, fmt.Errorf("wallet: sign: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// Event is a provider event the page should emit after a request.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Response is the outcome of one request.
type Response struct {
	Result any       `json:"result"`
	Error  *RPCError `json:"error,omitempty"`
	Events []Event   `json:"events,omitempty"`
}

// Call is a recorded request.
type Call struct {
	Method string
	Params []any
	Error  *RPCError
	At     time.Time
}

// Transaction is a recorded eth_sendTransaction.
type Transaction struct {
	Hash  common.Hash
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
	Nonce uint64
	Block uint64
}

// Options configure a Provider.
type Options struct {
	ChainID int64
	Balance *big.Int
}

// Provider answers wallet requests for a single account.
type Provider struct {
	mu        sync.Mutex
	account   Account
	chainID   int64
	balance   *big.Int
	initial   *big.Int
	block     uint64
	rejecting bool
	calls     []Call
	txs       []Transaction
}

// NewProvider creates a provider for account.
func NewProvider(account Account, opts Options) *Provider {
	if opts.ChainID <= 0 {
		opts.ChainID = 1
	}
	balance := new(big.Int)
	if opts.Balance != nil {
		balance.Set(opts.Balance)
	}
	return &Provider{
		account: account,
		chainID: opts.ChainID,
		balance: balance,
		initial: new(big.Int).Set(balance),
		block:   startBlock,
	}
}

// Account returns the provider's account.
func (p *Provider) Account() Account {
	return p.account
}

// ChainID returns the current chain id.
func (p *Provider) ChainID() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.chainID
}

// SetRejecting makes signing and sending requests fail with error 4001, as
// if the user dismissed the wallet prompt.
func (p *Provider) SetRejecting(reject bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejecting = reject
}

// Calls returns a copy of the recorded requests.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns how many times method was requested.
func (p *Provider) CallCount(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Transactions returns a copy of the recorded transactions.
func (p *Provider) Transactions() []Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Transaction, len(p.txs))
	copy(out, p.txs)
	return out
}

// Balance returns the current mock balance in wei.
func (p *Provider) Balance() *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(big.Int).Set(p.balance)
}

// Reset clears recorded calls and transactions and restores the balance.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
	p.txs = nil
	p.rejecting = false
	p.balance = new(big.Int).Set(p.initial)
	p.block = startBlock
}

// Handle answers one request and records it.
func (p *Provider) Handle(method string, params []any) Response {
	p.mu.Lock()
	defer p.mu.Unlock()

	resp := p.dispatch(method, params)
	p.calls = append(p.calls, Call{Method: method, Params: params, Error: resp.Error, At: time.Now()})

	log := logger.With("method", method, "params", logutil.FormatJSONForLog(params, maxLoggedChars))
	if resp.Error != nil {
		log.Info("wallet_request_failed", "code", resp.Error.Code, "message", resp.Error.Message)
	} else {
		log.Debug("wallet_request")
	}
	return resp
}

func (p *Provider) dispatch(method string, params []any) Response {
	addr := strings.ToLower(p.account.Hex())
	switch method {
	case "eth_requestAccounts":
		if p.rejecting {
			return Response{Error: rpcErr(CodeUserRejected, "User rejected the request.")}
		}
		return Response{
			Result: []string{addr},
			Events: []Event{{Name: "accountsChanged", Data: []string{addr}}, {Name: "connect", Data: map[string]string{"chainId": p.chainHex()}}},
		}
	case "eth_accounts":
		return Response{Result: []string{addr}}
	case "eth_chainId":
		return Response{Result: p.chainHex()}
	case "net_version":
		return Response{Result: fmt.Sprintf("%d", p.chainID)}
	case "wallet_switchEthereumChain":
		return p.switchChain(params)
	case "wallet_addEthereumChain", "wallet_watchAsset":
		return Response{Result: nil}
	case "wallet_requestPermissions", "wallet_getPermissions":
		return Response{Result: []map[string]string{{"parentCapability": "eth_accounts"}}}
	case "eth_getBalance":
		return Response{Result: hexutil.EncodeBig(p.balance)}
	case "eth_blockNumber":
		return Response{Result: hexutil.EncodeUint64(p.block)}
	case "eth_gasPrice", "eth_maxPriorityFeePerGas":
		return Response{Result: hexutil.EncodeUint64(gasPriceWei)}
	case "eth_estimateGas":
		return Response{Result: hexutil.EncodeUint64(gasEstimate)}
	case "eth_getTransactionCount":
		return Response{Result: hexutil.EncodeUint64(uint64(len(p.txs)))}
	case "eth_call":
		return Response{Result: "0x"}
	case "personal_sign":
		return p.personalSign(params)
	case "eth_sendTransaction":
		return p.sendTransaction(params)
	case "eth_getTransactionReceipt":
		return p.receipt(params)
	default:
		return Response{Error: rpcErr(CodeUnsupported, "The requested method %q is not supported by this wallet.", method)}
	}
}

func (p *Provider) chainHex() string {
	return hexutil.EncodeUint64(uint64(p.chainID))
}

func (p *Provider) switchChain(params []any) Response {
	arg, ok := firstObject(params)
	if !ok {
		return Response{Error: rpcErr(CodeInvalidParams, "expected [{chainId}]")}
	}
	raw, _ := arg["chainId"].(string)
	id, err := hexutil.DecodeUint64(raw)
	if err != nil || id == 0 {
		return Response{Error: rpcErr(CodeInvalidParams, "invalid chainId %q", raw)}
	}
	if int64(id) == p.chainID {
		return Response{Result: nil}
	}
	p.chainID = int64(id)
	return Response{Result: nil, Events: []Event{{Name: "chainChanged", Data: p.chainHex()}}}
}

func (p *Provider) personalSign(params []any) Response {
	if p.rejecting {
		return Response{Error: rpcErr(CodeUserRejected, "User denied message signature.")}
	}
	if len(params) < 2 {
		return Response{Error: rpcErr(CodeInvalidParams, "expected [message, address]")}
	}
	msg, _ := params[0].(string)
	who, _ := params[1].(string)
	// Some dapps send [address, message]; accept both orders.
	if common.IsHexAddress(msg) && !common.IsHexAddress(who) {
		msg, who = who, msg
	}
	if !strings.EqualFold(who, p.account.Hex()) {
		return Response{Error: rpcErr(CodeUnauthorized, "address %s is not managed by this wallet", who)}
	}
	sig, err := p.account.SignText(decodeMessage(msg))
	if err != nil {
		return Response{Error: rpcErr(CodeInternal, "%v", err)}
	}
	return Response{Result: hexutil.Encode(sig)}
}

// decodeMessage treats 0x-prefixed hex as bytes and anything else as UTF-8.
func decodeMessage(msg string) []byte {
	if strings.HasPrefix(msg, "0x") {
		if b, err := hexutil.Decode(msg); err == nil {
			return b
		}
	}
	return []byte(msg)
}

func (p *Provider) sendTransaction(params []any) Response {
	if p.rejecting {
		return Response{Error: rpcErr(CodeUserRejected, "User denied transaction signature.")}
	}
	arg, ok := firstObject(params)
	if !ok {
		return Response{Error: rpcErr(CodeInvalidParams, "expected [{from, to, value, data}]")}
	}
	from, _ := arg["from"].(string)
	if from != "" && !strings.EqualFold(from, p.account.Hex()) {
		return Response{Error: rpcErr(CodeUnauthorized, "address %s is not managed by this wallet", from)}
	}

	tx := Transaction{From: p.account.Address, Value: new(big.Int), Nonce: uint64(len(p.txs))}
	if to, _ := arg["to"].(string); to != "" {
		if !common.IsHexAddress(to) {
			return Response{Error: rpcErr(CodeInvalidParams, "invalid to address %q", to)}
		}
		tx.To = common.HexToAddress(to)
	}
	if v, _ := arg["value"].(string); v != "" {
		value, err := hexutil.DecodeBig(v)
		if err != nil {
			return Response{Error: rpcErr(CodeInvalidParams, "invalid value %q", v)}
		}
		tx.Value = value
	}
	data, _ := arg["data"].(string)
	if data == "" {
		data, _ = arg["input"].(string)
	}
	if data != "" {
		b, err := hexutil.Decode(data)
		if err != nil {
			return Response{Error: rpcErr(CodeInvalidParams, "invalid data")}
		}
		tx.Data = b
	}
	if tx.Value.Cmp(p.balance) > 0 {
		return Response{Error: rpcErr(CodeInsufficient, "insufficient funds for transfer")}
	}

	var nonce [8]byte
	binary.BigEndian.PutUint64(nonce[:], tx.Nonce)
	tx.Hash = crypto.Keccak256Hash(tx.From.Bytes(), nonce[:], tx.To.Bytes(), tx.Value.Bytes(), tx.Data)

	p.block++
	tx.Block = p.block
	p.balance.Sub(p.balance, tx.Value)
	p.txs = append(p.txs, tx)
	return Response{Result: tx.Hash.Hex()}
}

func (p *Provider) receipt(params []any) Response {
	if len(params) == 0 {
		return Response{Error: rpcErr(CodeInvalidParams, "expected [hash]")}
	}
	raw, _ := params[0].(string)
	hash := common.HexToHash(raw)
	for _, tx := range p.txs {
		if tx.Hash != hash {
			continue
		}
		return Response{Result: map[string]any{
			"transactionHash":   tx.Hash.Hex(),
			"blockNumber":       hexutil.EncodeUint64(tx.Block),
			"blockHash":         crypto.Keccak256Hash(tx.Hash.Bytes()).Hex(),
			"from":              strings.ToLower(tx.From.Hex()),
			"to":                strings.ToLower(tx.To.Hex()),
			"status":            "0x1",
			"gasUsed":           hexutil.EncodeUint64(gasEstimate),
			"cumulativeGasUsed": hexutil.EncodeUint64(gasEstimate),
			"logs":              []any{},
		}}
	}
	return Response{Result: nil}
}

func firstObject(params []any) (map[string]any, bool) {
	if len(params) == 0 {
		return nil, false
	}
	obj, ok := params[0].(map[string]any)
	return obj, ok
}
