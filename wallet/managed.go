package wallet

import (
	"context"

	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/chain"
	"github.com/clawlet/broker/store"
)

// managedAdapter is shared scaffolding for the three provider-backed
// variants (privy, coinbase-cdp, crossmint). Each provider's Go SDK is an
// optional dependency (spec.md §4.4): the first operation that actually
// needs it performs a lazy lookup and surfaces sdk-not-installed if it
// isn't available, the way the design notes in spec.md §9 describe.
// Construction, serialization, cached-address lookups, and balance queries
// never need the SDK; the latter two fail with not-initialized while no
// address is cached.
type managedAdapter struct {
	kind          store.AdapterKind
	providerName  string
	cachedAddress string
	walletID      string
	credentials   store.AdapterConfig
	br            BalanceReader
	sdkLookup     func() (managedSDK, error)
}

// managedSDK is the capability a provider SDK would need to expose. No
// implementation of it ships in this module (see DESIGN.md: managed
// provider credentials/SDKs are explicitly out of spec.md's scope), so
// sdkLookup always returns sdk-not-installed.
type managedSDK interface {
	Provision(ctx context.Context, creds store.AdapterConfig) (address, walletID string, err error)
	SignTypedData(ctx context.Context, walletID string, req SignRequest) (string, error)
}

func alwaysUnavailable(providerName string) func() (managedSDK, error) {
	return func() (managedSDK, error) {
		return nil, brokererr.Newf(brokererr.KindSDKNotInstalled, "%s SDK is not installed in this build", providerName)
	}
}

func newPrivyAdapter(cfg store.AdapterConfig, br BalanceReader) (Adapter, error) {
	return &managedAdapter{
		kind: store.AdapterPrivy, providerName: "privy",
		cachedAddress: cfg.CachedAddress, walletID: cfg.WalletID, credentials: cfg,
		br: br, sdkLookup: alwaysUnavailable("privy"),
	}, nil
}

func newCoinbaseCDPAdapter(cfg store.AdapterConfig, br BalanceReader) (Adapter, error) {
	return &managedAdapter{
		kind: store.AdapterCoinbaseCDP, providerName: "coinbase-cdp",
		cachedAddress: cfg.CachedAddress, walletID: cfg.WalletID, credentials: cfg,
		br: br, sdkLookup: alwaysUnavailable("coinbase-cdp"),
	}, nil
}

func newCrossmintAdapter(cfg store.AdapterConfig, br BalanceReader) (Adapter, error) {
	return &managedAdapter{
		kind: store.AdapterCrossmint, providerName: "crossmint",
		cachedAddress: cfg.CachedAddress, walletID: cfg.WalletID, credentials: cfg,
		br: br, sdkLookup: alwaysUnavailable("crossmint"),
	}, nil
}

func (a *managedAdapter) Provision(ctx context.Context) (string, error) {
	if a.cachedAddress != "" {
		return a.cachedAddress, nil
	}
	sdk, err := a.sdkLookup()
	if err != nil {
		return "", err
	}
	addr, walletID, err := sdk.Provision(ctx, a.credentials)
	if err != nil {
		return "", brokererr.Wrap(brokererr.KindInternal, err, "provider provisioning failed")
	}
	a.cachedAddress = addr
	a.walletID = walletID
	return addr, nil
}

func (a *managedAdapter) Address() (string, error) {
	if a.cachedAddress == "" {
		return "", brokererr.New(brokererr.KindNotInitialized, "wallet not initialized")
	}
	return a.cachedAddress, nil
}

func (a *managedAdapter) IsInitialized() bool {
	return a.cachedAddress != ""
}

func (a *managedAdapter) Balance(ctx context.Context, network chain.Network) (string, error) {
	addr, err := a.Address()
	if err != nil {
		return "", err
	}
	return a.br.BalanceOf(ctx, network, addr)
}

func (a *managedAdapter) SignTypedData(ctx context.Context, req SignRequest) (string, error) {
	sdk, err := a.sdkLookup()
	if err != nil {
		return "", err
	}
	return sdk.SignTypedData(ctx, a.walletID, req)
}

func (a *managedAdapter) Serialize() store.AdapterConfig {
	cfg := a.credentials
	cfg.Kind = a.kind
	cfg.CachedAddress = a.cachedAddress
	cfg.WalletID = a.walletID
	return cfg
}
