package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func tempDataDir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "clawlet-store-test")
	if err != nil {
		t.Fatalf("cannot create temporary directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestOpenAt_CreatesEmptyDocument(t *testing.T) {
	dir := tempDataDir(t)
	s, err := OpenAt(dir)
	if err != nil {
		t.Fatalf("cannot open store: %v", err)
	}
	doc := s.Get()
	assert.Empty(t, doc.Wallets)
	assert.Nil(t, doc.ActiveWalletID)
	assert.Equal(t, "base", doc.Network)
	assert.Equal(t, 2, doc.SchemaVersion)

	if _, err := os.Stat(filepath.Join(dir, "state.json")); err != nil {
		t.Fatalf("expected state.json to be written on open: %v", err)
	}
}

func TestOpenAt_ReloadsPersistedDocument(t *testing.T) {
	dir := tempDataDir(t)
	s, err := OpenAt(dir)
	if err != nil {
		t.Fatalf("cannot open store: %v", err)
	}
	err = s.Mutate(func(doc *Document) error {
		doc.Wallets = append(doc.Wallets, WalletEntry{
			ID: "w1", Label: "First", CreatedAt: "2026-01-01T00:00:00Z",
			Adapter: AdapterConfig{Kind: AdapterLocalKey, CachedAddress: "0xabc"},
			Rules:   DefaultRules(), Transactions: []Transaction{},
		})
		active := "w1"
		doc.ActiveWalletID = &active
		return nil
	})
	if err != nil {
		t.Fatalf("mutate failed: %v", err)
	}

	reopened, err := OpenAt(dir)
	if err != nil {
		t.Fatalf("cannot reopen store: %v", err)
	}
	doc := reopened.Get()
	assert.Len(t, doc.Wallets, 1)
	assert.Equal(t, "w1", doc.Wallets[0].ID)
	assert.Equal(t, "0xabc", doc.Wallets[0].Adapter.CachedAddress)
	assert.NotNil(t, doc.ActiveWalletID)
	assert.Equal(t, "w1", *doc.ActiveWalletID)
}

func TestOpenAt_MigratesLegacyDocument(t *testing.T) {
	dir := tempDataDir(t)
	legacy := map[string]interface{}{
		"adapterConfig": map[string]interface{}{"kind": "local-key", "privateKeyHex": "deadbeef"},
		"wallet":        map[string]interface{}{"address": "0xdead"},
		"rules":         map[string]interface{}{"maxPerTransaction": nil, "dailyCap": nil, "allowedServices": []string{}, "blockedServices": []string{}},
		"transactions":  []interface{}{},
	}
	raw, err := json.Marshal(legacy)
	if err != nil {
		t.Fatalf("cannot marshal legacy fixture: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "state.json"), raw, 0o600); err != nil {
		t.Fatalf("cannot write legacy fixture: %v", err)
	}

	s, err := OpenAt(dir)
	if err != nil {
		t.Fatalf("cannot open store over legacy document: %v", err)
	}
	doc := s.Get()
	assert.Len(t, doc.Wallets, 1)
	assert.Equal(t, "Wallet 1", doc.Wallets[0].Label)
	assert.Equal(t, "0xdead", doc.Wallets[0].Adapter.CachedAddress)
	assert.Equal(t, 2, doc.SchemaVersion)

	if _, err := os.Stat(filepath.Join(dir, "state.json.v1.bak")); err != nil {
		t.Fatalf("expected pre-migration backup to be written: %v", err)
	}
}

func TestMutate_RejectsDanglingActiveWalletID(t *testing.T) {
	dir := tempDataDir(t)
	s, err := OpenAt(dir)
	if err != nil {
		t.Fatalf("cannot open store: %v", err)
	}
	err = s.Mutate(func(doc *Document) error {
		ghost := "does-not-exist"
		doc.ActiveWalletID = &ghost
		return nil
	})
	assert.Error(t, err)
}

func TestMutate_RejectsDuplicateWalletID(t *testing.T) {
	dir := tempDataDir(t)
	s, err := OpenAt(dir)
	if err != nil {
		t.Fatalf("cannot open store: %v", err)
	}
	err = s.Mutate(func(doc *Document) error {
		w := WalletEntry{ID: "dup", Rules: DefaultRules(), Transactions: []Transaction{}}
		doc.Wallets = append(doc.Wallets, w, w)
		return nil
	})
	assert.Error(t, err)
}

func TestSetNetwork_ValidatesInput(t *testing.T) {
	dir := tempDataDir(t)
	s, err := OpenAt(dir)
	if err != nil {
		t.Fatalf("cannot open store: %v", err)
	}
	assert.Error(t, s.SetNetwork("not-a-network"))
	assert.NoError(t, s.SetNetwork("base-sepolia"))

	caip2, err := s.GetNetworkCAIP2()
	assert.NoError(t, err)
	assert.Equal(t, "eip155:84532", caip2)
}

func TestRequireActive_FailsWithNoWallets(t *testing.T) {
	dir := tempDataDir(t)
	s, err := OpenAt(dir)
	if err != nil {
		t.Fatalf("cannot open store: %v", err)
	}
	_, err = s.RequireActive()
	assert.Error(t, err)
}
