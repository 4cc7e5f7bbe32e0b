package tools

import (
	"encoding/json"

	"github.com/clawlet/broker/chain"
	"github.com/clawlet/broker/rules"
)

func opGetRules(c *Catalog, _ json.RawMessage) (interface{}, error) {
	return c.Rules.Get()
}

// SetRulesInput is the `setRules` operation's input: a partial patch,
// each field replaced only when present (spec.md §4.3).
type SetRulesInput struct {
	MaxPerTransaction *string  `json:"maxPerTransaction,omitempty"`
	DailyCap          *string  `json:"dailyCap,omitempty"`
	AllowedServices   *[]string `json:"allowedServices,omitempty"`
	BlockedServices   *[]string `json:"blockedServices,omitempty"`
}

func opSetRules(c *Catalog, input json.RawMessage) (interface{}, error) {
	if err := c.requireWrite(); err != nil {
		return nil, err
	}
	var in SetRulesInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	return c.Rules.Set(rules.Patch{
		MaxPerTransaction: in.MaxPerTransaction,
		DailyCap:          in.DailyCap,
		AllowedServices:   in.AllowedServices,
		BlockedServices:   in.BlockedServices,
	})
}

// ListTransactionsInput is the `listTransactions` operation's input.
type ListTransactionsInput struct {
	Limit int `json:"limit,omitempty"`
}

func opListTransactions(c *Catalog, input json.RawMessage) (interface{}, error) {
	var in ListTransactionsInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	return c.Ledger.List(in.Limit)
}

// TodaySpentOutput is the `todaySpent` operation's result: the human
// readable USDC amount spent so far today (UTC).
type TodaySpentOutput struct {
	Spent string `json:"spent"`
}

func opTodaySpent(c *Catalog, _ json.RawMessage) (interface{}, error) {
	spent, err := c.Ledger.TodaySpent()
	if err != nil {
		return nil, err
	}
	return TodaySpentOutput{Spent: chain.FormatAtomic(spent, chain.USDCDecimals)}, nil
}
