package tools

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clawlet/broker/broker"
	"github.com/clawlet/broker/chain"
	"github.com/clawlet/broker/ledger"
	"github.com/clawlet/broker/rules"
	"github.com/clawlet/broker/store"
	"github.com/clawlet/broker/wallet"
)

type stubBalanceReader struct{}

func (stubBalanceReader) BalanceOf(ctx context.Context, network chain.Network, address string) (string, error) {
	return "0.0", nil
}

func newTestCatalog(t *testing.T) *Catalog {
	dir, err := os.MkdirTemp("", "clawlet-tools-test")
	if err != nil {
		t.Fatalf("cannot create temporary directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	st, err := store.OpenAt(dir)
	if err != nil {
		t.Fatalf("cannot open store: %v", err)
	}
	manager, err := wallet.NewManager(st, stubBalanceReader{})
	if err != nil {
		t.Fatalf("cannot build wallet manager: %v", err)
	}
	l := ledger.New(st, nil)
	rulesEngine := rules.New(st, l)
	br := broker.New(st, manager, l, rulesEngine, nil)
	t.Cleanup(br.Close)

	return &Catalog{Manager: manager, Broker: br, Rules: rulesEngine, Ledger: l, Store: st}
}

func TestOpConfig_ReportsDemoMode(t *testing.T) {
	c := newTestCatalog(t)
	c.DemoMode = true
	out, err := Operations["config"](c, nil)
	assert.NoError(t, err)
	assert.Equal(t, ConfigOutput{DemoMode: true}, out)
}

func TestRequireWrite_BlocksWritesInDemoMode(t *testing.T) {
	c := newTestCatalog(t)
	c.DemoMode = true

	input, _ := json.Marshal(CreateWalletInput{Adapter: "local-key"})
	_, err := Operations["createWallet"](c, input)
	assert.Error(t, err)
}

func TestRequireWrite_AllowsReadsInDemoMode(t *testing.T) {
	c := newTestCatalog(t)
	c.DemoMode = true

	_, err := Operations["listWallets"](c, nil)
	assert.NoError(t, err)
}

func TestCreateWallet_ThenGetWallet(t *testing.T) {
	c := newTestCatalog(t)
	input, _ := json.Marshal(CreateWalletInput{Adapter: "local-key", Label: "Primary"})
	_, err := Operations["createWallet"](c, input)
	assert.NoError(t, err)

	out, err := Operations["getWallet"](c, nil)
	assert.NoError(t, err)
	result, ok := out.(GetWalletOutput)
	assert.True(t, ok)
	assert.NotNil(t, result.Wallet)
	assert.Equal(t, "Primary", result.Wallet.Label)
}

func TestCreateWallet_RequiresAdapterKind(t *testing.T) {
	c := newTestCatalog(t)
	input, _ := json.Marshal(CreateWalletInput{})
	_, err := Operations["createWallet"](c, input)
	assert.Error(t, err)
}

func TestSetRules_ThenGetRules(t *testing.T) {
	c := newTestCatalog(t)
	input, _ := json.Marshal(CreateWalletInput{Adapter: "local-key"})
	_, err := Operations["createWallet"](c, input)
	assert.NoError(t, err)

	limit := "5.00"
	setInput, _ := json.Marshal(SetRulesInput{MaxPerTransaction: &limit})
	_, err = Operations["setRules"](c, setInput)
	assert.NoError(t, err)

	out, err := Operations["getRules"](c, nil)
	assert.NoError(t, err)
	got, ok := out.(store.Rules)
	assert.True(t, ok)
	assert.Equal(t, "5.00", *got.MaxPerTransaction)
}

func TestUnknownOperation_IsNotRegistered(t *testing.T) {
	_, ok := Operations["doesNotExist"]
	assert.False(t, ok)
}
