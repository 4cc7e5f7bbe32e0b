package wallet

import (
	"context"

	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/chain"
	"github.com/clawlet/broker/store"
)

// browserAdapter holds an externally-supplied address only; the signer
// lives outside this process (a connected browser wallet). Provisioning is
// a no-op and SignTypedData always fails — the broker's two-phase flow
// (broker.Prepare/Complete) is how a session collects the signature for
// this variant instead.
type browserAdapter struct {
	address string
	br      BalanceReader
}

func newBrowserAdapter(cfg store.AdapterConfig, br BalanceReader) (Adapter, error) {
	if cfg.CachedAddress == "" {
		return nil, brokererr.New(brokererr.KindValidation, "browser adapter requires an address")
	}
	return &browserAdapter{address: cfg.CachedAddress, br: br}, nil
}

func (a *browserAdapter) Provision(ctx context.Context) (string, error) {
	return a.address, nil
}

func (a *browserAdapter) Address() (string, error) {
	if a.address == "" {
		return "", brokererr.New(brokererr.KindNotInitialized, "wallet not initialized")
	}
	return a.address, nil
}

func (a *browserAdapter) IsInitialized() bool {
	return a.address != ""
}

func (a *browserAdapter) Balance(ctx context.Context, network chain.Network) (string, error) {
	return a.br.BalanceOf(ctx, network, a.address)
}

func (a *browserAdapter) SignTypedData(ctx context.Context, req SignRequest) (string, error) {
	return "", brokererr.New(brokererr.KindValidation, "must-sign-client-side")
}

func (a *browserAdapter) Serialize() store.AdapterConfig {
	return store.AdapterConfig{Kind: store.AdapterBrowser, CachedAddress: a.address}
}
