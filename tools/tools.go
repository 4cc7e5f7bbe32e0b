// Package tools is the fixed operation catalog shared by the JSON-HTTP and
// stdio bindings (spec.md §4.7). Every operation method here is the single
// place the two bindings' dispatch tables call into; neither binding talks
// to broker/wallet/rules/ledger/store directly.
package tools

import (
	"encoding/json"
	"os"

	"github.com/clawlet/broker/broker"
	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/chain"
	"github.com/clawlet/broker/ledger"
	"github.com/clawlet/broker/rules"
	"github.com/clawlet/broker/store"
	"github.com/clawlet/broker/wallet"
)

// Catalog holds the components every operation delegates to.
type Catalog struct {
	Manager  *wallet.Manager
	Broker   *broker.Broker
	Rules    *rules.Engine
	Ledger   *ledger.Ledger
	Store    *store.Store
	DemoMode bool
}

// New builds a Catalog. DemoMode comes from the DEMO_MODE environment
// variable (spec.md §6).
func New(manager *wallet.Manager, br *broker.Broker, r *rules.Engine, l *ledger.Ledger, st *store.Store) *Catalog {
	return &Catalog{
		Manager: manager, Broker: br, Rules: r, Ledger: l, Store: st,
		DemoMode: os.Getenv("DEMO_MODE") == "true",
	}
}

// requireWrite fails with write-disabled when demo mode is active
// (spec.md §4.7); read operations never call this.
func (c *Catalog) requireWrite() error {
	if c.DemoMode {
		return brokererr.New(brokererr.KindDemoWrite, "write operations are disabled in demo mode")
	}
	return nil
}

// Handler is one catalog entry: decode input, call a component, return a
// JSON-marshalable output. Read-only handlers never call requireWrite.
type Handler func(c *Catalog, input json.RawMessage) (interface{}, error)

// Catalog dispatch table, keyed by operation name (spec.md §4.7 table).
// renameWallet is intentionally absent (DESIGN.md Open Question resolution).
var Operations = map[string]Handler{
	"config":           opConfig,
	"listWallets":      opListWallets,
	"createWallet":     opCreateWallet,
	"switchWallet":     opSwitchWallet,
	"removeWallet":     opRemoveWallet,
	"getWallet":        opGetWallet,
	"getNetwork":       opGetNetwork,
	"setNetwork":       opSetNetwork,
	"getBalance":       opGetBalance,
	"getRules":         opGetRules,
	"setRules":         opSetRules,
	"listTransactions": opListTransactions,
	"todaySpent":       opTodaySpent,
	"getAgentIdentity": opGetAgentIdentity,
	"setAgentIdentity": opSetAgentIdentity,
	"pay":              opPay,
	"payPrepare":       opPayPrepare,
	"payComplete":      opPayComplete,
	"freeze":           opFreeze,
	"unfreeze":         opUnfreeze,
}

func decode(input json.RawMessage, out interface{}) error {
	if len(input) == 0 {
		return nil
	}
	if err := json.Unmarshal(input, out); err != nil {
		return brokererr.Wrap(brokererr.KindValidation, err, "cannot decode operation input")
	}
	return nil
}

func chainNetworkOrActive(c *Catalog, override string) (chain.Network, error) {
	if override != "" {
		if !chain.IsValidNetwork(override) {
			return "", brokererr.Newf(brokererr.KindValidation, "unsupported network %q", override)
		}
		return chain.Network(override), nil
	}
	doc := c.Store.Get()
	return chain.Network(doc.Network), nil
}
