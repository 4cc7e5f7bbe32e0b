package tools

import (
	"context"
	"encoding/json"

	"github.com/clawlet/broker/brokererr"
)

// NetworkOutput is the `getNetwork`/`setNetwork` operation's result.
type NetworkOutput struct {
	Network string `json:"network"`
}

func opGetNetwork(c *Catalog, _ json.RawMessage) (interface{}, error) {
	doc := c.Store.Get()
	return NetworkOutput{Network: doc.Network}, nil
}

// SetNetworkInput is the `setNetwork` operation's input.
type SetNetworkInput struct {
	Network string `json:"network"`
}

func opSetNetwork(c *Catalog, input json.RawMessage) (interface{}, error) {
	if err := c.requireWrite(); err != nil {
		return nil, err
	}
	var in SetNetworkInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.Network != "base" && in.Network != "base-sepolia" {
		return nil, brokererr.Newf(brokererr.KindValidation, "setNetwork rejects %q: must be base or base-sepolia", in.Network)
	}
	if err := c.Store.SetNetwork(in.Network); err != nil {
		return nil, err
	}
	return NetworkOutput{Network: in.Network}, nil
}

// GetBalanceInput is the `getBalance` operation's input.
type GetBalanceInput struct {
	Network string `json:"network,omitempty"`
}

// GetBalanceOutput is the `getBalance` operation's result.
type GetBalanceOutput struct {
	Balance string `json:"balance"`
	Network string `json:"network"`
}

func opGetBalance(c *Catalog, input json.RawMessage) (interface{}, error) {
	var in GetBalanceInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	network, err := chainNetworkOrActive(c, in.Network)
	if err != nil {
		return nil, err
	}
	balance, err := c.Manager.Balance(context.Background(), network)
	if err != nil {
		return nil, err
	}
	return GetBalanceOutput{Balance: balance, Network: string(network)}, nil
}

func opFreeze(c *Catalog, _ json.RawMessage) (interface{}, error) {
	if err := c.requireWrite(); err != nil {
		return nil, err
	}
	if err := c.Manager.Freeze(); err != nil {
		return nil, err
	}
	return map[string]bool{"frozen": true}, nil
}

func opUnfreeze(c *Catalog, _ json.RawMessage) (interface{}, error) {
	if err := c.requireWrite(); err != nil {
		return nil, err
	}
	if err := c.Manager.Unfreeze(); err != nil {
		return nil, err
	}
	return map[string]bool{"frozen": false}, nil
}
