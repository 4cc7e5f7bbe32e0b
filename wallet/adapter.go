// Package wallet implements the uniform wallet-adapter contract (spec.md
// §4.4) and the wallet manager façade (spec.md §4.5).
//
// Adapters are modeled as a tagged variant the way the teacher's
// blockchain/types.AccountKey is: a common interface plus a constructor
// that switches on a kind discriminant (blockchain/types/account_key.go).
package wallet

import (
	"context"

	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/chain"
	"github.com/clawlet/broker/store"
)

// SignRequest is the EIP-712 typed-data payload an Adapter signs.
type SignRequest struct {
	Domain      chain.Config
	Types       map[string][]chain.Field
	PrimaryType string
	Message     map[string]interface{}
}

// Adapter is the uniform contract every wallet variant implements
// (spec.md §4.4).
type Adapter interface {
	// Provision creates or claims the underlying wallet; idempotent once
	// already provisioned for this adapter instance.
	Provision(ctx context.Context) (string, error)

	// Address returns the signer's address, failing with not-initialized
	// if Provision has not yet succeeded.
	Address() (string, error)

	// IsInitialized reports whether Provision has succeeded.
	IsInitialized() bool

	// Balance queries the USDC balance for the given network.
	Balance(ctx context.Context, network chain.Network) (string, error)

	// SignTypedData produces a 65-byte EIP-712 signature, hex-encoded with
	// a 0x prefix. The browser variant always fails with must-sign-client-side.
	SignTypedData(ctx context.Context, req SignRequest) (string, error)

	// Serialize round-trips the variant and its persistence fields.
	Serialize() store.AdapterConfig
}

// BalanceReader is implemented by chainio.Client; adapters delegate Balance
// to it rather than talking to the chain directly, keeping RPC plumbing in
// one place (spec.md §4.8).
type BalanceReader interface {
	BalanceOf(ctx context.Context, network chain.Network, address string) (string, error)
}

// New constructs an Adapter for the given persisted config, hydrating from
// cached fields and wiring br for balance queries.
func New(cfg store.AdapterConfig, br BalanceReader) (Adapter, error) {
	switch cfg.Kind {
	case store.AdapterLocalKey:
		return newLocalKeyAdapter(cfg, br)
	case store.AdapterPrivy:
		return newPrivyAdapter(cfg, br)
	case store.AdapterCoinbaseCDP:
		return newCoinbaseCDPAdapter(cfg, br)
	case store.AdapterCrossmint:
		return newCrossmintAdapter(cfg, br)
	case store.AdapterBrowser:
		return newBrowserAdapter(cfg, br)
	default:
		return nil, brokererr.Newf(brokererr.KindValidation, "unknown adapter kind %q", cfg.Kind)
	}
}
