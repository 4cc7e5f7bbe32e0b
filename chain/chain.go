// Package chain holds the broker's chain registry: chain ids, USDC contract
// addresses, RPC endpoints, and the ERC-3009/EIP-712 constants needed to
// build a TransferWithAuthorization signature. These tables are effectively
// immutable, initialized once at process startup and read thereafter.
//
// Grounded on the retrieved x402 evm/constants.go file's NetworkConfigs
// map and ABI-fragment constants.
package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Network is the broker's own short network name, distinct from the CAIP-2
// identifier used on the wire.
type Network string

const (
	Base        Network = "base"
	BaseSepolia Network = "base-sepolia"
)

// DataDir and StateFileName are bit-exact per spec.md §6.
const (
	DataDir       = ".clawlet"
	StateFileName = "state.json"
)

const USDCDecimals = 6

// Config describes one recognized EVM chain.
type Config struct {
	Network           Network
	CAIP2             string
	ChainID           int64
	USDCAddress       common.Address
	USDCName          string
	USDCVersion       string
	RPCURL            string
}

var registry = map[Network]Config{
	Base: {
		Network:     Base,
		CAIP2:       "eip155:8453",
		ChainID:     8453,
		USDCAddress: common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		USDCName:    "USD Coin",
		USDCVersion: "2",
		RPCURL:      "https://mainnet.base.org",
	},
	BaseSepolia: {
		Network:     BaseSepolia,
		CAIP2:       "eip155:84532",
		ChainID:     84532,
		USDCAddress: common.HexToAddress("0x036CbD53842c5426634e7929541eC2318f3dCF7e"),
		USDCName:    "USDC",
		USDCVersion: "2",
		RPCURL:      "https://sepolia.base.org",
	},
}

var caip2ToNetwork = map[string]Network{
	"eip155:8453":  Base,
	"eip155:84532": BaseSepolia,
}

// ByNetwork returns the chain config for one of the broker's own network names.
func ByNetwork(n Network) (Config, bool) {
	c, ok := registry[n]
	return c, ok
}

// ByCAIP2 returns the chain config for a wire CAIP-2 network id.
func ByCAIP2(caip2 string) (Config, bool) {
	n, ok := caip2ToNetwork[caip2]
	if !ok {
		return Config{}, false
	}
	return registry[n], true
}

// NetworkToCAIP2 maps "base"/"base-sepolia" to their CAIP-2 ids.
func NetworkToCAIP2(n Network) (string, bool) {
	c, ok := registry[n]
	if !ok {
		return "", false
	}
	return c.CAIP2, true
}

// IsValidNetwork reports whether n is one of the broker's two recognized networks.
func IsValidNetwork(n string) bool {
	_, ok := registry[Network(n)]
	return ok
}

// IsUSDCAddress reports whether addr (any case) equals the chain's USDC contract.
func (c Config) IsUSDCAddress(addr string) bool {
	return strings.EqualFold(c.USDCAddress.Hex(), addr)
}

// TransferWithAuthorizationTypes is the EIP-712 type set for ERC-3009.
var TransferWithAuthorizationTypes = map[string][]Field{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"TransferWithAuthorization": {
		{Name: "from", Type: "address"},
		{Name: "to", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "validAfter", Type: "uint256"},
		{Name: "validBefore", Type: "uint256"},
		{Name: "nonce", Type: "bytes32"},
	},
}

const PrimaryTypeTransferWithAuthorization = "TransferWithAuthorization"

// Field mirrors an EIP-712 type field (name/type pair).
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ERC20BalanceOfABI is the minimal ABI fragment used by chainio for balance reads.
const ERC20BalanceOfABI = `[
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`
