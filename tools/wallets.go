package tools

import (
	"context"
	"encoding/json"

	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/store"
	"github.com/clawlet/broker/wallet"
)

// ConfigOutput is the `config` operation's result.
type ConfigOutput struct {
	DemoMode bool `json:"demoMode"`
}

func opConfig(c *Catalog, _ json.RawMessage) (interface{}, error) {
	return ConfigOutput{DemoMode: c.DemoMode}, nil
}

// ListWalletsOutput is the `listWallets` operation's result.
type ListWalletsOutput struct {
	Wallets        []wallet.Summary `json:"wallets"`
	ActiveWalletID *string          `json:"activeWalletId"`
}

func opListWallets(c *Catalog, _ json.RawMessage) (interface{}, error) {
	wallets, activeID := c.Manager.List()
	return ListWalletsOutput{Wallets: wallets, ActiveWalletID: activeID}, nil
}

// CreateWalletInput is the `createWallet` operation's input.
type CreateWalletInput struct {
	Adapter     string  `json:"adapter"`
	Label       string  `json:"label,omitempty"`
	PrivateKey  string  `json:"privateKey,omitempty"`
	AppID       string  `json:"appId,omitempty"`
	AppSecret   string  `json:"appSecret,omitempty"`
	APIKeyID    string  `json:"apiKeyId,omitempty"`
	APIKeySecret string `json:"apiKeySecret,omitempty"`
	APIKey      string  `json:"apiKey,omitempty"`
	Address     string  `json:"address,omitempty"`
}

func opCreateWallet(c *Catalog, input json.RawMessage) (interface{}, error) {
	if err := c.requireWrite(); err != nil {
		return nil, err
	}
	var in CreateWalletInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.Adapter == "" {
		return nil, brokererr.New(brokererr.KindValidation, "adapter kind is required")
	}

	cfg := store.AdapterConfig{
		Kind: store.AdapterKind(in.Adapter), PrivateKeyHex: in.PrivateKey,
		AppID: in.AppID, AppSecret: in.AppSecret, APIKeyID: in.APIKeyID,
		APIKeySecret: in.APIKeySecret, APIKey: in.APIKey, CachedAddress: in.Address,
	}

	return c.Manager.Create(context.Background(), cfg, in.Label)
}

// SwitchWalletInput is the `switchWallet` operation's input.
type SwitchWalletInput struct {
	WalletID string `json:"walletId"`
}

// SwitchWalletOutput is the `switchWallet` operation's result.
type SwitchWalletOutput struct {
	ActiveWalletID string `json:"activeWalletId"`
	Label          string `json:"label"`
}

func opSwitchWallet(c *Catalog, input json.RawMessage) (interface{}, error) {
	if err := c.requireWrite(); err != nil {
		return nil, err
	}
	var in SwitchWalletInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.WalletID == "" {
		return nil, brokererr.New(brokererr.KindValidation, "walletId is required")
	}
	summary, err := c.Manager.Switch(in.WalletID)
	if err != nil {
		return nil, err
	}
	return SwitchWalletOutput{ActiveWalletID: summary.ID, Label: summary.Label}, nil
}

// RemoveWalletInput is the `removeWallet` operation's input.
type RemoveWalletInput struct {
	WalletID string `json:"walletId"`
}

// RemoveWalletOutput is the `removeWallet` operation's result.
type RemoveWalletOutput struct {
	Deleted bool `json:"deleted"`
}

func opRemoveWallet(c *Catalog, input json.RawMessage) (interface{}, error) {
	if err := c.requireWrite(); err != nil {
		return nil, err
	}
	var in RemoveWalletInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if err := c.Manager.Remove(in.WalletID); err != nil {
		return nil, err
	}
	return RemoveWalletOutput{Deleted: true}, nil
}

// GetWalletOutput is the `getWallet` operation's result.
type GetWalletOutput struct {
	Wallet  *wallet.Summary `json:"wallet"`
	Adapter *string         `json:"adapter"`
}

func opGetWallet(c *Catalog, _ json.RawMessage) (interface{}, error) {
	summary, ok := c.Manager.Get()
	if !ok {
		return GetWalletOutput{Wallet: nil, Adapter: nil}, nil
	}
	kind := string(summary.AdapterKind)
	return GetWalletOutput{Wallet: &summary, Adapter: &kind}, nil
}

// RenameWalletInput is the manager-level rename input. Not wired into
// Operations (DESIGN.md Open Question resolution); RenameWallet below is
// callable from Go only, and no binding in httpapi or stdioapi calls it.
type RenameWalletInput struct {
	Label string `json:"label"`
}

func RenameWallet(c *Catalog, label string) (map[string]string, error) {
	if err := c.requireWrite(); err != nil {
		return nil, err
	}
	if err := c.Manager.Rename(label); err != nil {
		return nil, err
	}
	return map[string]string{"label": label}, nil
}
