package rules

import (
	"math/big"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/chain"
	"github.com/clawlet/broker/ledger"
	"github.com/clawlet/broker/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Store) {
	dir, err := os.MkdirTemp("", "clawlet-rules-test")
	if err != nil {
		t.Fatalf("cannot create temporary directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	st, err := store.OpenAt(dir)
	if err != nil {
		t.Fatalf("cannot open store: %v", err)
	}
	err = st.Mutate(func(doc *store.Document) error {
		doc.Wallets = append(doc.Wallets, store.WalletEntry{
			ID: "w1", Label: "Primary", CreatedAt: "2026-01-01T00:00:00Z",
			Adapter: store.AdapterConfig{Kind: store.AdapterLocalKey, CachedAddress: "0xabc"},
			Rules:   store.DefaultRules(), Transactions: []store.Transaction{},
		})
		active := "w1"
		doc.ActiveWalletID = &active
		return nil
	})
	if err != nil {
		t.Fatalf("cannot seed active wallet: %v", err)
	}
	l := ledger.New(st, nil)
	return New(st, l), st
}

func atomicAmount(decimal string) *big.Int {
	v, _ := chain.ParseDecimalToAtomic(decimal, chain.USDCDecimals)
	return v
}

func TestEnforce_PerTransactionLimit(t *testing.T) {
	e, _ := newTestEngine(t)
	limit := "5.00"
	_, err := e.Set(Patch{MaxPerTransaction: &limit})
	assert.NoError(t, err)

	assert.NoError(t, e.Enforce(atomicAmount("5.00"), "api.example.com"))

	err = e.Enforce(atomicAmount("5.01"), "api.example.com")
	assert.Error(t, err)
	assert.Equal(t, brokererr.KindRuleViolation, brokererr.KindOf(err))
}

func TestEnforce_DailyCapCountsAgainstSpent(t *testing.T) {
	e, st := newTestEngine(t)
	cap_ := "10.00"
	_, err := e.Set(Patch{DailyCap: &cap_})
	assert.NoError(t, err)

	l := ledger.New(st, nil)
	_, err = l.Add(ledger.AddInput{Payee: "0xpayee", Service: "svc", Amount: "7.0", Asset: "USDC", Network: "base", Status: store.TxSettled})
	assert.NoError(t, err)

	assert.NoError(t, e.Enforce(atomicAmount("3.00"), "svc"))
	assert.Error(t, e.Enforce(atomicAmount("3.01"), "svc"))
}

func TestEnforce_BlocklistBeforeAllowlist(t *testing.T) {
	e, _ := newTestEngine(t)
	blocked := []string{"evil.com"}
	allowed := []string{"example.com", "evil.com"}
	_, err := e.Set(Patch{BlockedServices: &blocked, AllowedServices: &allowed})
	assert.NoError(t, err)

	err = e.Enforce(atomicAmount("1.0"), "api.evil.com")
	assert.Error(t, err)
	assert.Equal(t, brokererr.KindRuleViolation, brokererr.KindOf(err))
}

func TestEnforce_AllowlistRejectsUnlisted(t *testing.T) {
	e, _ := newTestEngine(t)
	allowed := []string{"example.com"}
	_, err := e.Set(Patch{AllowedServices: &allowed})
	assert.NoError(t, err)

	assert.NoError(t, e.Enforce(atomicAmount("1.0"), "api.example.com"))
	assert.Error(t, e.Enforce(atomicAmount("1.0"), "api.other.com"))
}

func TestEnforce_NoRulesAllowsEverything(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.NoError(t, e.Enforce(atomicAmount("1000000.0"), "anything.com"))
}
