package wallet

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clawlet/broker/store"
)

func newTestManager(t *testing.T) *Manager {
	dir, err := os.MkdirTemp("", "clawlet-wallet-test")
	if err != nil {
		t.Fatalf("cannot create temporary directory: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	st, err := store.OpenAt(dir)
	if err != nil {
		t.Fatalf("cannot open store: %v", err)
	}
	m, err := NewManager(st, &stubBalanceReader{balance: "0.0"})
	if err != nil {
		t.Fatalf("cannot build manager: %v", err)
	}
	return m
}

func TestManager_CreateMakesWalletActive(t *testing.T) {
	m := newTestManager(t)
	summary, err := m.Create(context.Background(), store.AdapterConfig{Kind: store.AdapterLocalKey}, "Agent Wallet")
	assert.NoError(t, err)
	assert.NotEmpty(t, summary.ID)
	assert.Equal(t, "Agent Wallet", summary.Label)
	assert.NotEmpty(t, summary.Address)

	active, ok := m.Get()
	assert.True(t, ok)
	assert.Equal(t, summary.ID, active.ID)
}

func TestManager_CreateDefaultsLabel(t *testing.T) {
	m := newTestManager(t)
	summary, err := m.Create(context.Background(), store.AdapterConfig{Kind: store.AdapterLocalKey}, "")
	assert.NoError(t, err)
	assert.Equal(t, "Wallet 1", summary.Label)
}

func TestManager_SwitchChangesActiveWallet(t *testing.T) {
	m := newTestManager(t)
	first, err := m.Create(context.Background(), store.AdapterConfig{Kind: store.AdapterLocalKey}, "First")
	assert.NoError(t, err)
	second, err := m.Create(context.Background(), store.AdapterConfig{Kind: store.AdapterLocalKey}, "Second")
	assert.NoError(t, err)

	active, ok := m.Get()
	assert.True(t, ok)
	assert.Equal(t, second.ID, active.ID)

	switched, err := m.Switch(first.ID)
	assert.NoError(t, err)
	assert.Equal(t, first.ID, switched.ID)

	active, ok = m.Get()
	assert.True(t, ok)
	assert.Equal(t, first.ID, active.ID)
}

func TestManager_RemoveActivatesFirstRemaining(t *testing.T) {
	m := newTestManager(t)
	first, err := m.Create(context.Background(), store.AdapterConfig{Kind: store.AdapterLocalKey}, "First")
	assert.NoError(t, err)
	second, err := m.Create(context.Background(), store.AdapterConfig{Kind: store.AdapterLocalKey}, "Second")
	assert.NoError(t, err)

	assert.NoError(t, m.Remove(second.ID))

	active, ok := m.Get()
	assert.True(t, ok)
	assert.Equal(t, first.ID, active.ID)
}

func TestManager_RemoveLastWalletClearsActive(t *testing.T) {
	m := newTestManager(t)
	only, err := m.Create(context.Background(), store.AdapterConfig{Kind: store.AdapterLocalKey}, "Only")
	assert.NoError(t, err)

	assert.NoError(t, m.Remove(only.ID))
	_, ok := m.Get()
	assert.False(t, ok)
}

func TestManager_FreezeUnfreeze(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create(context.Background(), store.AdapterConfig{Kind: store.AdapterLocalKey}, "Wallet")
	assert.NoError(t, err)

	frozen, err := m.IsActiveFrozen()
	assert.NoError(t, err)
	assert.False(t, frozen)

	assert.NoError(t, m.Freeze())
	frozen, err = m.IsActiveFrozen()
	assert.NoError(t, err)
	assert.True(t, frozen)

	assert.NoError(t, m.Unfreeze())
	frozen, err = m.IsActiveFrozen()
	assert.NoError(t, err)
	assert.False(t, frozen)
}

func TestManager_SetAgentIdentityRequiresName(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Create(context.Background(), store.AdapterConfig{Kind: store.AdapterLocalKey}, "Wallet")
	assert.NoError(t, err)

	_, err = m.SetAgentIdentity(IdentityPatch{})
	assert.Error(t, err)

	identity, err := m.SetAgentIdentity(IdentityPatch{Name: "My Agent"})
	assert.NoError(t, err)
	assert.Equal(t, "My Agent", identity.Name)

	got, err := m.GetAgentIdentity()
	assert.NoError(t, err)
	assert.NotNil(t, got)
	assert.Equal(t, "My Agent", got.Name)
}
