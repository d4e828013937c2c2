// Package scenario holds the named end-to-end scenarios and runs them one at
// a time, each in a fresh browser session.
package scenario

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/kuitang/vaults-e2e/internal/browser"
	"github.com/kuitang/vaults-e2e/internal/errs"
)

// Func is a scenario body. It sequences page-object calls inside the
// session's Steps and SoftSteps and returns the first hard failure.
type Func func(ctx context.Context, s *browser.Session) error

// Scenario is a registered, named Func.
type Scenario struct {
	Name        string
	Description string
	Run         Func
}

// Registry is a set of scenarios kept in registration order.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]Scenario
	order []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKey: make(map[string]Scenario)}
}

// Register adds a scenario. Names must be unique and non-empty.
func (r *Registry) Register(name, description string, fn Func) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errs.New(errs.InvalidArgument, "scenario name is empty")
	}
	if fn == nil {
		return errs.Newf(errs.InvalidArgument, "scenario %q has no body", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byKey[name]; dup {
		return errs.Newf(errs.InvalidArgument, "scenario %q registered twice", name)
	}
	r.byKey[name] = Scenario{Name: name, Description: description, Run: fn}
	r.order = append(r.order, name)
	return nil
}

// MustRegister is Register for package-level setup.
func (r *Registry) MustRegister(name, description string, fn Func) {
	if err := r.Register(name, description, fn); err != nil {
		panic(err)
	}
}

// Get looks a scenario up by exact name.
func (r *Registry) Get(name string) (Scenario, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sc, ok := r.byKey[name]
	return sc, ok
}

// Names returns scenario names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// All returns every scenario in registration order.
func (r *Registry) All() []Scenario {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Scenario, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byKey[name])
	}
	return out
}

// Select returns the scenarios matching any of patterns, in registration
// order and without duplicates. Patterns are exact names or path.Match globs
// such as "deposit*". No patterns selects everything. A pattern matching
// nothing is an error so typos do not silently run an empty suite.
func (r *Registry) Select(patterns []string) ([]Scenario, error) {
	cleaned := patterns[:0:0]
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		return r.All(), nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	picked := make(map[string]bool)
	var unmatched []string
	for _, p := range cleaned {
		if _, err := path.Match(p, ""); err != nil {
			return nil, errs.Wrap(errs.InvalidArgument, fmt.Sprintf("bad scenario pattern %q", p), err)
		}
		hit := false
		for _, name := range r.order {
			if ok, _ := path.Match(p, name); ok {
				picked[name] = true
				hit = true
			}
		}
		if !hit {
			unmatched = append(unmatched, p)
		}
	}
	if len(unmatched) > 0 {
		sort.Strings(unmatched)
		return nil, errs.Newf(errs.InvalidArgument, "no scenario matches %s (known: %s)",
			strings.Join(unmatched, ", "), strings.Join(r.order, ", "))
	}
	out := make([]Scenario, 0, len(picked))
	for _, name := range r.order {
		if picked[name] {
			out = append(out, r.byKey[name])
		}
	}
	return out, nil
}

// SplitPatterns splits a comma-separated -run value.
func SplitPatterns(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// Default returns a registry holding the built-in scenarios.
func Default() *Registry {
	r := NewRegistry()
	r.MustRegister("vault-list", "Vault listing renders rows with names and parseable APRs", VaultList)
	r.MustRegister("sort-apr", "Clicking the APR header twice sorts the list by APR, highest first", SortByAPR)
	r.MustRegister("vault-detail", "Opening a vault shows its name, APR and TVL", VaultDetail)
	r.MustRegister("connect-wallet", "The mock wallet connects and its address is shown", ConnectWallet)
	r.MustRegister("deposit", "Depositing into a vault sends a transaction and shows success", Deposit)
	r.MustRegister("withdraw", "Withdrawing from a vault sends a transaction and shows success", Withdraw)
	r.MustRegister("deposit-rejected", "A wallet rejection surfaces an error and sends nothing", DepositRejected)
	r.MustRegister("create-vault", "Filling the create-vault form creates a vault", CreateVault)
	r.MustRegister("create-vault-validation", "Invalid create-vault input is rejected with field errors", CreateVaultValidation)
	r.MustRegister("positions", "A deposit shows up in the positions list", Positions)
	return r
}
