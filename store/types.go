// Package store holds the persisted multi-wallet document (spec.md §3) and
// the on-disk store that loads, migrates, and atomically persists it.
package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/chain"
)

// AdapterKind tags the AdapterConfig variant (spec.md §3).
type AdapterKind string

const (
	AdapterLocalKey   AdapterKind = "local-key"
	AdapterPrivy      AdapterKind = "privy"
	AdapterCoinbaseCDP AdapterKind = "coinbase-cdp"
	AdapterCrossmint  AdapterKind = "crossmint"
	AdapterBrowser    AdapterKind = "browser"
)

// AdapterConfig is the tagged variant over the five adapter kinds (spec.md §3).
// It round-trips through JSON via MarshalJSON/UnmarshalJSON the way the
// teacher's AccountKeySerializer dispatches on a KeyType discriminant.
type AdapterConfig struct {
	Kind AdapterKind

	// local-key
	PrivateKeyHex string `json:"-"`

	// privy / coinbase-cdp / crossmint
	AppID        string `json:"-"`
	AppSecret    string `json:"-"`
	APIKeyID     string `json:"-"`
	APIKeySecret string `json:"-"`
	APIKey       string `json:"-"`
	WalletID     string `json:"-"`

	// any variant may carry a cached address once provisioned
	CachedAddress string `json:"-"`
}

type adapterConfigJSON struct {
	Kind          AdapterKind `json:"kind"`
	PrivateKeyHex string      `json:"privateKeyHex,omitempty"`
	AppID         string      `json:"appId,omitempty"`
	AppSecret     string      `json:"appSecret,omitempty"`
	APIKeyID      string      `json:"apiKeyId,omitempty"`
	APIKeySecret  string      `json:"apiKeySecret,omitempty"`
	APIKey        string      `json:"apiKey,omitempty"`
	WalletID      string      `json:"walletId,omitempty"`
	CachedAddress string      `json:"cachedAddress,omitempty"`
}

func (a AdapterConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(adapterConfigJSON{
		Kind:          a.Kind,
		PrivateKeyHex: a.PrivateKeyHex,
		AppID:         a.AppID,
		AppSecret:     a.AppSecret,
		APIKeyID:      a.APIKeyID,
		APIKeySecret:  a.APIKeySecret,
		APIKey:        a.APIKey,
		WalletID:      a.WalletID,
		CachedAddress: a.CachedAddress,
	})
}

func (a *AdapterConfig) UnmarshalJSON(b []byte) error {
	var j adapterConfigJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	a.Kind = j.Kind
	a.PrivateKeyHex = j.PrivateKeyHex
	a.AppID = j.AppID
	a.AppSecret = j.AppSecret
	a.APIKeyID = j.APIKeyID
	a.APIKeySecret = j.APIKeySecret
	a.APIKey = j.APIKey
	a.WalletID = j.WalletID
	a.CachedAddress = j.CachedAddress
	return nil
}

// Rules is the spending-rules record (spec.md §3).
type Rules struct {
	MaxPerTransaction *string  `json:"maxPerTransaction"`
	DailyCap          *string  `json:"dailyCap"`
	AllowedServices   []string `json:"allowedServices"`
	BlockedServices   []string `json:"blockedServices"`
}

// Normalize lowercases allow/block patterns in place (I6).
func (r *Rules) Normalize() {
	r.AllowedServices = lowerAll(r.AllowedServices)
	r.BlockedServices = lowerAll(r.BlockedServices)
}

func lowerAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}

// DefaultRules returns an unrestricted rules record.
func DefaultRules() Rules {
	return Rules{AllowedServices: []string{}, BlockedServices: []string{}}
}

// TxStatus is the lifecycle state of a Transaction (spec.md §3).
type TxStatus string

const (
	TxPending TxStatus = "pending"
	TxSettled TxStatus = "settled"
	TxFailed  TxStatus = "failed"
)

// Transaction is one ledger record (spec.md §3).
type Transaction struct {
	ID        string   `json:"id"`
	Timestamp string   `json:"timestamp"`
	Payee     string   `json:"payee"`
	Service   string   `json:"service"`
	Amount    string   `json:"amount"`
	Asset     string   `json:"asset"`
	Network   string   `json:"network"`
	TxHash    *string  `json:"txHash"`
	Status    TxStatus `json:"status"`
	Reason    string   `json:"reason"`
}

// AgentIdentity is the optional agent-identity record (spec.md §3).
type AgentIdentity struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	AgentID     *string `json:"agentId,omitempty"`
	Registry    *string `json:"registry,omitempty"`
	MetadataURI *string `json:"metadataUri,omitempty"`
}

// WalletEntry is one wallet (spec.md §3).
type WalletEntry struct {
	ID            string         `json:"id"`
	Label         string         `json:"label"`
	CreatedAt     string         `json:"createdAt"`
	Frozen        bool           `json:"frozen"`
	Adapter       AdapterConfig  `json:"adapter"`
	Rules         Rules          `json:"rules"`
	Transactions  []Transaction  `json:"transactions"`
	AgentIdentity *AgentIdentity `json:"agentIdentity,omitempty"`
}

// Document is the persisted document (spec.md §3/§6).
type Document struct {
	Wallets         []WalletEntry `json:"wallets"`
	ActiveWalletID  *string       `json:"activeWalletId"`
	Network         string        `json:"network"`
	SchemaVersion   int           `json:"schemaVersion"`
}

// legacyDocument is the pre-migration V1 single-wallet shape (spec.md §6).
type legacyDocument struct {
	AdapterConfig AdapterConfig `json:"adapterConfig"`
	Wallet        struct {
		Address string `json:"address"`
	} `json:"wallet"`
	Rules        Rules         `json:"rules"`
	Transactions []Transaction `json:"transactions"`
}

// isLegacy reports whether raw JSON bytes are a V1 document: absence of a
// "wallets" array, presence of "adapterConfig" and "wallet" (spec.md §6).
func isLegacy(raw map[string]json.RawMessage) bool {
	_, hasWallets := raw["wallets"]
	_, hasAdapterConfig := raw["adapterConfig"]
	_, hasWallet := raw["wallet"]
	return !hasWallets && hasAdapterConfig && hasWallet
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func networkCAIP2(network string) (string, error) {
	caip2, ok := chain.NetworkToCAIP2(chain.Network(network))
	if !ok {
		return "", brokererr.Newf(brokererr.KindValidation, "unknown network %q", network)
	}
	return caip2, nil
}
