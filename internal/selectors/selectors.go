// Package selectors holds the fallback chains used to locate UI elements.
//
// A chain is an ordered list of CSS or Playwright text selectors. Callers try
// each candidate in turn and use the first one that matches, so a chain keeps
// working across markup changes as long as one candidate still applies.
package selectors

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Well-known chain names.
const (
	WalletConnect = "wallet.connect"
	WalletAddress = "wallet.address"

	VaultRow       = "vaults.row"
	VaultName      = "vaults.name"
	VaultAPRHeader = "vaults.apr_header"
	VaultAPRCell   = "vaults.apr_cell"
	VaultTVLCell   = "vaults.tvl_cell"
	VaultSortState = "vaults.sort_state"

	DetailTitle       = "detail.title"
	DetailAPR         = "detail.apr"
	DetailTVL         = "detail.tvl"
	DetailDepositTab  = "detail.deposit_tab"
	DetailWithdrawTab = "detail.withdraw_tab"
	DetailAmountInput = "detail.amount_input"
	DetailMaxButton   = "detail.max_button"
	DetailSubmit      = "detail.submit"
	DetailToast       = "detail.toast"
	DetailError       = "detail.error"

	CreateOpen            = "create.open"
	CreateName            = "create.name"
	CreateSymbol          = "create.symbol"
	CreateAsset           = "create.asset"
	CreateStrategy        = "create.strategy"
	CreateFee             = "create.fee"
	CreateMinDeposit      = "create.min_deposit"
	CreateSubmit          = "create.submit"
	CreateValidationError = "create.validation_error"

	PositionRow    = "positions.row"
	PositionVault  = "positions.vault"
	PositionAmount = "positions.amount"
	PositionsEmpty = "positions.empty"
)

// Required lists the chains the page objects depend on. A catalog missing
// any of them is rejected by Validate.
var Required = []string{
	WalletConnect, WalletAddress,
	VaultRow, VaultName, VaultAPRHeader, VaultAPRCell, VaultTVLCell,
	DetailTitle, DetailAPR, DetailTVL, DetailDepositTab, DetailWithdrawTab,
	DetailAmountInput, DetailSubmit, DetailToast, DetailError,
	CreateName, CreateSymbol, CreateAsset, CreateStrategy, CreateFee, CreateSubmit, CreateValidationError,
	PositionRow, PositionsEmpty,
}

//go:embed catalog.yaml
var defaultCatalog []byte

// Chain is a named fallback list of selectors.
type Chain struct {
	Name       string
	Candidates []string
}

func (c Chain) String() string {
	return fmt.Sprintf("%s[%s]", c.Name, strings.Join(c.Candidates, " | "))
}

// Scoped returns a chain whose candidates are each prefixed by parent, for
// lookups inside a container element.
func (c Chain) Scoped(parent string) Chain {
	out := Chain{Name: c.Name, Candidates: make([]string, len(c.Candidates))}
	for i, cand := range c.Candidates {
		out.Candidates[i] = parent + " >> " + cand
	}
	return out
}

// Catalog maps chain names to chains.
type Catalog struct {
	chains map[string]Chain
}

// Default returns the embedded catalog. It panics if the embedded document is
// invalid, which a unit test guards against.
func Default() *Catalog {
	cat, err := Load(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(fmt.Sprintf("selectors: embedded catalog invalid: %v", err))
	}
	return cat
}

// Load parses a YAML document mapping chain names to selector lists.
func Load(r io.Reader) (*Catalog, error) {
	var raw map[string][]string
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return &Catalog{chains: map[string]Chain{}}, nil
		}
		return nil, fmt.Errorf("selectors: decode catalog: %w", err)
	}
	cat := &Catalog{chains: make(map[string]Chain, len(raw))}
	for name, candidates := range raw {
		cleaned := make([]string, 0, len(candidates))
		for _, c := range candidates {
			cleaned = append(cleaned, strings.TrimSpace(c))
		}
		cat.chains[name] = Chain{Name: name, Candidates: cleaned}
	}
	return cat, nil
}

// LoadFile loads the embedded catalog and merges the overrides in path on top.
func LoadFile(path string) (*Catalog, error) {
	base := Default()
	if path == "" {
		return base, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("selectors: open %s: %w", path, err)
	}
	defer f.Close()

	override, err := Load(f)
	if err != nil {
		return nil, err
	}
	base.Merge(override)
	if err := base.Validate(); err != nil {
		return nil, err
	}
	return base, nil
}

// Merge replaces chains in c with same-named chains from other and adds new ones.
func (c *Catalog) Merge(other *Catalog) {
	if other == nil {
		return
	}
	for name, chain := range other.chains {
		c.chains[name] = chain
	}
}

// Get returns the named chain.
func (c *Catalog) Get(name string) (Chain, error) {
	chain, ok := c.chains[name]
	if !ok {
		return Chain{}, fmt.Errorf("selectors: unknown chain %q", name)
	}
	return chain, nil
}

// MustGet returns the named chain or panics. Use with the exported constants.
func (c *Catalog) MustGet(name string) Chain {
	chain, err := c.Get(name)
	if err != nil {
		panic(err)
	}
	return chain
}

// Names returns all chain names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.chains))
	for name := range c.chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that required chains exist and that every chain is non-empty
// with no blank or duplicate candidates.
func (c *Catalog) Validate() error {
	var problems []string
	for _, name := range Required {
		if _, ok := c.chains[name]; !ok {
			problems = append(problems, fmt.Sprintf("missing required chain %q", name))
		}
	}
	for _, name := range c.Names() {
		chain := c.chains[name]
		if len(chain.Candidates) == 0 {
			problems = append(problems, fmt.Sprintf("chain %q has no candidates", name))
			continue
		}
		seen := make(map[string]bool, len(chain.Candidates))
		for i, cand := range chain.Candidates {
			if cand == "" {
				problems = append(problems, fmt.Sprintf("chain %q candidate %d is blank", name, i))
				continue
			}
			if seen[cand] {
				problems = append(problems, fmt.Sprintf("chain %q repeats %q", name, cand))
			}
			seen[cand] = true
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("selectors: invalid catalog:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
