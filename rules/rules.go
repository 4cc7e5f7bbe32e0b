// Package rules enforces the spending rules (spec.md §4.3) against the
// active wallet's configured limits and allow/block lists.
package rules

import (
	"math/big"
	"strings"

	set "gopkg.in/fatih/set.v0"

	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/chain"
	"github.com/clawlet/broker/ledger"
	"github.com/clawlet/broker/store"
)

// Engine enforces spec.md §4.3 against the currently active wallet.
type Engine struct {
	st     *store.Store
	ledger *ledger.Ledger
}

// New builds an Engine bound to st and l.
func New(st *store.Store, l *ledger.Ledger) *Engine {
	return &Engine{st: st, ledger: l}
}

// Get returns the active wallet's rules.
func (e *Engine) Get() (store.Rules, error) {
	w, err := e.st.RequireActive()
	if err != nil {
		return store.Rules{}, err
	}
	return w.Rules, nil
}

// Patch is a partial rules update; each field is replaced only when present.
type Patch struct {
	MaxPerTransaction *string
	DailyCap          *string
	AllowedServices   *[]string
	BlockedServices   *[]string
}

// Set applies a partial patch to the active wallet's rules and persists.
func (e *Engine) Set(patch Patch) (store.Rules, error) {
	var out store.Rules
	err := e.st.Mutate(func(doc *store.Document) error {
		idx, err := store.RequireActiveIndex(doc)
		if err != nil {
			return err
		}
		r := &doc.Wallets[idx].Rules
		if patch.MaxPerTransaction != nil {
			r.MaxPerTransaction = patch.MaxPerTransaction
		}
		if patch.DailyCap != nil {
			r.DailyCap = patch.DailyCap
		}
		if patch.AllowedServices != nil {
			r.AllowedServices = *patch.AllowedServices
		}
		if patch.BlockedServices != nil {
			r.BlockedServices = *patch.BlockedServices
		}
		r.Normalize()
		out = *r
		return nil
	})
	return out, err
}

// Enforce checks amountAtomic/service against the active wallet's rules,
// in the order spec.md §4.3 mandates: per-transaction, daily cap,
// blocklist, allowlist. The first violation wins.
func (e *Engine) Enforce(amountAtomic *big.Int, service string) error {
	rules, err := e.Get()
	if err != nil {
		return err
	}

	if rules.MaxPerTransaction != nil {
		limit, ok := chain.ParseDecimalToAtomic(*rules.MaxPerTransaction, chain.USDCDecimals)
		if ok && amountAtomic.Cmp(limit) > 0 {
			return brokererr.RuleViolation("over-per-tx", *rules.MaxPerTransaction, chain.FormatAtomic(amountAtomic, chain.USDCDecimals), service)
		}
	}

	if rules.DailyCap != nil {
		cap_, ok := chain.ParseDecimalToAtomic(*rules.DailyCap, chain.USDCDecimals)
		if ok {
			spent, err := e.ledger.TodaySpent()
			if err != nil {
				return err
			}
			total := new(big.Int).Add(spent, amountAtomic)
			if total.Cmp(cap_) > 0 {
				return brokererr.RuleViolation("over-daily", *rules.DailyCap, chain.FormatAtomic(total, chain.USDCDecimals), service)
			}
		}
	}

	lowerService := strings.ToLower(service)

	if len(rules.BlockedServices) > 0 {
		blocked := set.New()
		for _, p := range rules.BlockedServices {
			blocked.Add(p)
		}
		if containsSubstring(blocked, lowerService) {
			return brokererr.RuleViolation("blocked", "", service, service)
		}
	}

	if len(rules.AllowedServices) > 0 {
		allowed := set.New()
		for _, p := range rules.AllowedServices {
			allowed.Add(p)
		}
		if !containsSubstring(allowed, lowerService) {
			return brokererr.RuleViolation("not-allowed", "", service, service)
		}
	}

	return nil
}

// containsSubstring reports whether any pattern in s is a substring of service.
func containsSubstring(s *set.Set, service string) bool {
	found := false
	s.Each(func(item interface{}) bool {
		pattern, _ := item.(string)
		if pattern != "" && strings.Contains(service, pattern) {
			found = true
			return false
		}
		return true
	})
	return found
}
