package wallet

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/hashicorp/go-uuid"

	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/chain"
	"github.com/clawlet/broker/log"
	"github.com/clawlet/broker/store"
)

var logger = log.NewModuleLogger(log.Wallet)

const adapterCacheSize = 256

// Manager is the thin façade over the state store and the adapter
// constructors (spec.md §4.5). Hydrated adapters are cached per wallet id
// so that rehydration from persistence is a one-time cost (spec.md §4.4).
type Manager struct {
	st    *store.Store
	br    BalanceReader
	cache *lru.Cache
}

// NewManager builds a Manager over st, wiring br into every adapter it hydrates.
func NewManager(st *store.Store, br BalanceReader) (*Manager, error) {
	cache, err := lru.New(adapterCacheSize)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.KindInternal, err, "cannot build adapter cache")
	}
	return &Manager{st: st, br: br, cache: cache}, nil
}

// Summary is the wallet shape returned by listWallets/getWallet (spec.md §4.7).
type Summary struct {
	ID            string
	Label         string
	Address       string
	Frozen        bool
	AdapterKind   store.AdapterKind
	CreatedAt     string
	AgentIdentity *store.AgentIdentity
}

func summarize(w store.WalletEntry) Summary {
	return Summary{
		ID: w.ID, Label: w.Label, Address: w.Adapter.CachedAddress, Frozen: w.Frozen,
		AdapterKind: w.Adapter.Kind, CreatedAt: w.CreatedAt, AgentIdentity: w.AgentIdentity,
	}
}

// List returns every wallet, plus the active wallet id.
func (m *Manager) List() ([]Summary, *string) {
	doc := m.st.Get()
	out := make([]Summary, len(doc.Wallets))
	for i, w := range doc.Wallets {
		out[i] = summarize(w)
	}
	return out, doc.ActiveWalletID
}

// Get returns the active wallet's summary, or ok=false if none is active.
func (m *Manager) Get() (Summary, bool) {
	w, ok := m.st.GetActive()
	if !ok {
		return Summary{}, false
	}
	return summarize(*w), true
}

// Create constructs an adapter of the given kind, provisions it, persists a
// new WalletEntry with default rules, makes it active, and returns its summary.
func (m *Manager) Create(ctx context.Context, cfg store.AdapterConfig, label string) (Summary, error) {
	adapter, err := New(cfg, m.br)
	if err != nil {
		return Summary{}, err
	}
	addr, err := adapter.Provision(ctx)
	if err != nil {
		return Summary{}, err
	}

	idBytes, err := uuid.GenerateRandomBytes(8)
	if err != nil {
		return Summary{}, brokererr.Wrap(brokererr.KindInternal, err, "cannot generate wallet id")
	}
	id := fmt.Sprintf("%x", idBytes)
	if label == "" {
		label = fmt.Sprintf("Wallet %d", len(m.st.Get().Wallets)+1)
	}

	serialized := adapter.Serialize()
	serialized.CachedAddress = addr

	entry := store.WalletEntry{
		ID:           id,
		Label:        label,
		CreatedAt:    nowISO(),
		Frozen:       false,
		Adapter:      serialized,
		Rules:        store.DefaultRules(),
		Transactions: []store.Transaction{},
	}

	err = m.st.Mutate(func(doc *store.Document) error {
		doc.Wallets = append(doc.Wallets, entry)
		active := id
		doc.ActiveWalletID = &active
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	m.cache.Add(id, adapter)
	return summarize(entry), nil
}

// Switch makes the wallet with the given id active.
func (m *Manager) Switch(id string) (Summary, error) {
	var entry store.WalletEntry
	err := m.st.Mutate(func(doc *store.Document) error {
		idx := store.FindWallet(doc, id)
		if idx < 0 {
			return brokererr.Newf(brokererr.KindValidation, "wallet %q not found", id)
		}
		doc.ActiveWalletID = &doc.Wallets[idx].ID
		entry = doc.Wallets[idx]
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return summarize(entry), nil
}

// Remove deletes the wallet with the given id. If it was active, the first
// remaining wallet (if any) becomes active (spec.md §3 Lifecycles).
func (m *Manager) Remove(id string) error {
	err := m.st.Mutate(func(doc *store.Document) error {
		idx := store.FindWallet(doc, id)
		if idx < 0 {
			return brokererr.Newf(brokererr.KindValidation, "wallet %q not found", id)
		}
		wasActive := doc.ActiveWalletID != nil && *doc.ActiveWalletID == id
		doc.Wallets = append(doc.Wallets[:idx], doc.Wallets[idx+1:]...)
		if wasActive {
			if len(doc.Wallets) > 0 {
				first := doc.Wallets[0].ID
				doc.ActiveWalletID = &first
			} else {
				doc.ActiveWalletID = nil
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	m.cache.Remove(id)
	return nil
}

// Rename relabels the active wallet.
func (m *Manager) Rename(label string) error {
	return m.st.Mutate(func(doc *store.Document) error {
		idx, err := store.RequireActiveIndex(doc)
		if err != nil {
			return err
		}
		doc.Wallets[idx].Label = label
		return nil
	})
}

// Freeze/Unfreeze toggle the active wallet's frozen flag.
func (m *Manager) Freeze() error   { return m.setFrozen(true) }
func (m *Manager) Unfreeze() error { return m.setFrozen(false) }

func (m *Manager) setFrozen(frozen bool) error {
	return m.st.Mutate(func(doc *store.Document) error {
		idx, err := store.RequireActiveIndex(doc)
		if err != nil {
			return err
		}
		doc.Wallets[idx].Frozen = frozen
		return nil
	})
}

// GetAgentIdentity returns the active wallet's identity, if any.
func (m *Manager) GetAgentIdentity() (*store.AgentIdentity, error) {
	w, err := m.st.RequireActive()
	if err != nil {
		return nil, err
	}
	return w.AgentIdentity, nil
}

// IdentityPatch is a partial agent-identity update; Name is required.
type IdentityPatch struct {
	Name        string
	Description *string
	AgentID     *string
	Registry    *string
	MetadataURI *string
}

// SetAgentIdentity replaces the active wallet's identity.
func (m *Manager) SetAgentIdentity(patch IdentityPatch) (store.AgentIdentity, error) {
	if patch.Name == "" {
		return store.AgentIdentity{}, brokererr.New(brokererr.KindValidation, "agent identity requires a name")
	}
	identity := store.AgentIdentity{
		Name: patch.Name, Description: patch.Description,
		AgentID: patch.AgentID, Registry: patch.Registry, MetadataURI: patch.MetadataURI,
	}
	err := m.st.Mutate(func(doc *store.Document) error {
		idx, err := store.RequireActiveIndex(doc)
		if err != nil {
			return err
		}
		doc.Wallets[idx].AgentIdentity = &identity
		return nil
	})
	return identity, err
}

// Balance delegates to the active wallet's adapter on the given network.
func (m *Manager) Balance(ctx context.Context, network chain.Network) (string, error) {
	adapter, err := m.activeAdapter()
	if err != nil {
		return "", err
	}
	return adapter.Balance(ctx, network)
}

// ActiveAdapter returns the hydrated Adapter for the active wallet,
// constructing and caching it on first use (spec.md §4.4).
func (m *Manager) ActiveAdapter() (Adapter, error) {
	return m.activeAdapter()
}

func (m *Manager) activeAdapter() (Adapter, error) {
	w, err := m.st.RequireActive()
	if err != nil {
		return nil, err
	}
	if cached, ok := m.cache.Get(w.ID); ok {
		return cached.(Adapter), nil
	}
	adapter, err := New(w.Adapter, m.br)
	if err != nil {
		return nil, err
	}
	m.cache.Add(w.ID, adapter)
	return adapter, nil
}

// IsActiveFrozen reports whether the active wallet is frozen (spec.md §4.6:
// the broker refuses work on a frozen wallet).
func (m *Manager) IsActiveFrozen() (bool, error) {
	w, err := m.st.RequireActive()
	if err != nil {
		return false, err
	}
	return w.Frozen, nil
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
