package fixtureapp

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Supported form choices.
var (
	Assets     = []string{"USDC", "WETH", "DAI"}
	Strategies = []string{"lending", "staking", "lp"}
)

var (
	symbolRE  = regexp.MustCompile(`^[A-Z0-9]{2,8}$`)
	slugStrip = regexp.MustCompile(`[^a-z0-9]+`)
	hundred   = decimal.NewFromInt(100)
)

// Vault is one listed vault.
type Vault struct {
	ID         string
	Name       string
	Symbol     string
	Asset      string
	Strategy   string
	Address    common.Address
	APR        *decimal.Decimal // nil until the vault has history
	TVL        decimal.Decimal
	FeePercent decimal.Decimal
	MinDeposit decimal.Decimal
	Creator    string
	CreatedAt  time.Time
}

// APRText renders the APR cell, "—" when unknown.
func (v Vault) APRText() string {
	if v.APR == nil {
		return "—"
	}
	return v.APR.StringFixed(2) + "%"
}

// APRValue is the raw APR for client-side sorting, "" when unknown.
func (v Vault) APRValue() string {
	if v.APR == nil {
		return ""
	}
	return v.APR.String()
}

// TVLText renders TVL compactly, e.g. "$12.45M".
func (v Vault) TVLText() string {
	return FormatUSD(v.TVL)
}

// FormatUSD renders d with a K, M or B suffix.
func FormatUSD(d decimal.Decimal) string {
	units := []struct {
		suffix string
		size   decimal.Decimal
	}{
		{"B", decimal.New(1, 9)},
		{"M", decimal.New(1, 6)},
		{"K", decimal.New(1, 3)},
	}
	for _, u := range units {
		if d.Abs().GreaterThanOrEqual(u.size) {
			return "$" + d.Div(u.size).StringFixed(2) + u.suffix
		}
	}
	return "$" + d.StringFixed(2)
}

// VaultInput is the create-vault request body.
type VaultInput struct {
	Name       string `json:"name"`
	Symbol     string `json:"symbol"`
	Asset      string `json:"asset"`
	Strategy   string `json:"strategy"`
	Fee        string `json:"fee"`
	MinDeposit string `json:"minDeposit"`
	Creator    string `json:"creator,omitempty"`
}

// FieldErrors maps a form field to its message.
type FieldErrors map[string]string

// Validate checks in field by field.
func (in VaultInput) Validate() FieldErrors {
	fe := FieldErrors{}
	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		fe["name"] = "Name is required"
	case len(name) < 3 || len(name) > 40:
		fe["name"] = "Name must be 3 to 40 characters"
	}
	if !symbolRE.MatchString(strings.TrimSpace(in.Symbol)) {
		fe["symbol"] = "Symbol must be 2 to 8 uppercase letters or digits"
	}
	if !contains(Assets, in.Asset) {
		fe["asset"] = "Choose an asset"
	}
	if !contains(Strategies, in.Strategy) {
		fe["strategy"] = "Choose a strategy"
	}
	if fee, err := decimal.NewFromString(strings.TrimSpace(in.Fee)); err != nil {
		fe["fee"] = "Fee must be a number"
	} else if fee.IsNegative() || fee.GreaterThan(hundred) {
		fe["fee"] = "Fee must be between 0 and 100"
	}
	if min, err := decimal.NewFromString(strings.TrimSpace(in.MinDeposit)); err != nil {
		fe["minDeposit"] = "Minimum deposit must be a number"
	} else if min.IsNegative() {
		fe["minDeposit"] = "Minimum deposit cannot be negative"
	}
	if in.Creator != "" && !common.IsHexAddress(in.Creator) {
		fe["creator"] = "Creator is not an address"
	}
	return fe
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// PositionChange is a confirmed deposit or withdrawal.
type PositionChange struct {
	VaultID string `json:"vault_id"`
	Address string `json:"address"`
	Amount  string `json:"amount"`
	Kind    string `json:"kind"`
	TxHash  string `json:"tx_hash"`
}

// Position is one holding as served to the positions page.
type Position struct {
	VaultID   string `json:"vault_id"`
	VaultName string `json:"vault_name"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
}

// Store keeps vaults and positions in memory.
type Store struct {
	mu        sync.RWMutex
	vaults    []*Vault
	byID      map[string]*Vault
	positions map[common.Address]map[string]decimal.Decimal
}

// NewStore returns a store seeded with the demo vaults.
func NewStore() *Store {
	s := &Store{
		byID:      make(map[string]*Vault),
		positions: make(map[common.Address]map[string]decimal.Decimal),
	}
	for _, v := range seedVaults() {
		s.add(v)
	}
	return s
}

func apr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// Listed in creation order, which is deliberately not APR order.
func seedVaults() []*Vault {
	created := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	return []*Vault{
		{ID: "stable-yield-usdc", Name: "Stable Yield USDC", Symbol: "syUSDC", Asset: "USDC", Strategy: "lending", APR: apr("4.85"), TVL: decimal.RequireFromString("12450000")},
		{ID: "eth-staking-plus", Name: "ETH Staking Plus", Symbol: "esETH", Asset: "WETH", Strategy: "staking", APR: apr("3.2"), TVL: decimal.RequireFromString("48200000")},
		{ID: "blue-chip-lp", Name: "Blue Chip LP", Symbol: "bcLP", Asset: "WETH", Strategy: "lp", APR: apr("18.75"), TVL: decimal.RequireFromString("3100000")},
		{ID: "dai-savings", Name: "DAI Savings", Symbol: "dsDAI", Asset: "DAI", Strategy: "lending", APR: apr("6.1"), TVL: decimal.RequireFromString("950000")},
		{ID: "degen-farm", Name: "Degen Farm", Symbol: "DGN", Asset: "USDC", Strategy: "lp", APR: apr("42"), TVL: decimal.RequireFromString("120000")},
		{ID: "new-vault-beta", Name: "New Vault Beta", Symbol: "NVB", Asset: "DAI", Strategy: "lending", TVL: decimal.Zero, CreatedAt: created},
	}
}

func (s *Store) add(v *Vault) {
	if v.Address == (common.Address{}) {
		v.Address = vaultAddress(v.ID)
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	}
	s.vaults = append(s.vaults, v)
	s.byID[v.ID] = v
}

// vaultAddress derives a stable contract address from the vault ID.
func vaultAddress(id string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("vault:" + id))[12:])
}

// Vaults returns copies of all vaults in listing order.
func (s *Store) Vaults() []Vault {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Vault, len(s.vaults))
	for i, v := range s.vaults {
		out[i] = *v
	}
	return out
}

// Vault looks a vault up by ID.
func (s *Store) Vault(id string) (Vault, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.byID[id]
	if !ok {
		return Vault{}, false
	}
	return *v, true
}

// Create validates in and adds a vault.
func (s *Store) Create(in VaultInput) (Vault, FieldErrors) {
	if fe := in.Validate(); len(fe) > 0 {
		return Vault{}, fe
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := slug(in.Name)
	if _, taken := s.byID[id]; taken || id == "" || id == "new" {
		id = strings.Trim(id+"-"+uuid.NewString()[:8], "-")
	}
	v := &Vault{
		ID:         id,
		Name:       strings.TrimSpace(in.Name),
		Symbol:     strings.TrimSpace(in.Symbol),
		Asset:      in.Asset,
		Strategy:   in.Strategy,
		FeePercent: decimal.RequireFromString(strings.TrimSpace(in.Fee)),
		MinDeposit: decimal.RequireFromString(strings.TrimSpace(in.MinDeposit)),
		Creator:    in.Creator,
		CreatedAt:  time.Now().UTC(),
	}
	s.add(v)
	return *v, nil
}

func slug(name string) string {
	return strings.Trim(slugStrip.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

// Apply records a confirmed deposit or withdrawal.
func (s *Store) Apply(c PositionChange) error {
	if !common.IsHexAddress(c.Address) {
		return fmt.Errorf("invalid address %q", c.Address)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(c.Amount))
	if err != nil || !amount.IsPositive() {
		return fmt.Errorf("invalid amount %q", c.Amount)
	}
	addr := common.HexToAddress(c.Address)

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.byID[c.VaultID]
	if !ok {
		return fmt.Errorf("unknown vault %q", c.VaultID)
	}
	held := s.positions[addr]
	if held == nil {
		held = make(map[string]decimal.Decimal)
		s.positions[addr] = held
	}
	switch c.Kind {
	case "deposit":
		if amount.LessThan(v.MinDeposit) {
			return fmt.Errorf("minimum deposit is %s", v.MinDeposit)
		}
		held[v.ID] = held[v.ID].Add(amount)
		v.TVL = v.TVL.Add(amount)
	case "withdraw":
		if held[v.ID].LessThan(amount) {
			return fmt.Errorf("insufficient vault balance: holding %s", held[v.ID])
		}
		held[v.ID] = held[v.ID].Sub(amount)
		v.TVL = v.TVL.Sub(amount)
		if held[v.ID].IsZero() {
			delete(held, v.ID)
		}
	default:
		return fmt.Errorf("unknown kind %q", c.Kind)
	}
	return nil
}

// Positions returns addr's non-zero holdings ordered by vault name.
func (s *Store) Positions(address string) []Position {
	if !common.IsHexAddress(address) {
		return []Position{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	held := s.positions[common.HexToAddress(address)]
	out := make([]Position, 0, len(held))
	for id, amount := range held {
		v := s.byID[id]
		out = append(out, Position{VaultID: id, VaultName: v.Name, Asset: v.Asset, Amount: amount.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VaultName < out[j].VaultName })
	return out
}
