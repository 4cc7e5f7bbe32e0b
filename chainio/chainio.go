// Package chainio performs the broker's only on-chain reads: ERC-20
// balanceOf/decimals calls against the USDC contract for a network
// (spec.md §4.8). Grounded on the retrieved wallet-binding reference
// code's ethclient.Client + accounts/abi call pattern
// (abi.Pack/CallContract/UnpackIntoInterface).
package chainio

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	goredis "github.com/go-redis/redis/v7"

	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/chain"
	"github.com/clawlet/broker/log"
)

var logger = log.NewModuleLogger(log.ChainIO)

const balanceCacheTTL = 5 * time.Second

// Client dials the USDC contract's balanceOf/decimals on each of the
// broker's recognized networks, lazily and one client per network.
type Client struct {
	mu      sync.Mutex
	clients map[chain.Network]*ethclient.Client
	abi     abi.ABI
	redis   *goredis.Client
}

// New parses the ERC-20 ABI fragment once. If CLAWLET_REDIS_ADDR is set,
// successful lookups are cached in Redis for 5 seconds (SPEC_FULL.md §4.8
// expansion); a cache miss or unreachable Redis falls back to RPC transparently.
func New(redisAddr string) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(chain.ERC20BalanceOfABI))
	if err != nil {
		return nil, brokererr.Wrap(brokererr.KindInternal, err, "cannot parse ERC-20 ABI")
	}
	c := &Client{clients: map[chain.Network]*ethclient.Client{}, abi: parsed}
	if redisAddr != "" {
		c.redis = goredis.NewClient(&goredis.Options{Addr: redisAddr})
	}
	return c, nil
}

func (c *Client) dial(network chain.Network) (*ethclient.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[network]; ok {
		return cl, nil
	}
	cfg, ok := chain.ByNetwork(network)
	if !ok {
		return nil, brokererr.Newf(brokererr.KindValidation, "unknown network %q", network)
	}
	cl, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.KindUpstream, err, "cannot dial RPC endpoint")
	}
	c.clients[network] = cl
	return cl, nil
}

// BalanceOf returns the human-readable USDC balance for address on network,
// implementing wallet.BalanceReader.
func (c *Client) BalanceOf(ctx context.Context, network chain.Network, address string) (string, error) {
	cacheKey := fmt.Sprintf("balance:%s:%s", network, strings.ToLower(address))
	if cached, ok := c.readCache(cacheKey); ok {
		return cached, nil
	}

	cfg, ok := chain.ByNetwork(network)
	if !ok {
		return "", brokererr.Newf(brokererr.KindValidation, "unknown network %q", network)
	}
	cl, err := c.dial(network)
	if err != nil {
		return "", err
	}

	decimals, err := c.callDecimals(ctx, cl, cfg.USDCAddress)
	if err != nil {
		return "", err
	}
	atomic, err := c.callBalanceOf(ctx, cl, cfg.USDCAddress, common.HexToAddress(address))
	if err != nil {
		return "", err
	}

	balance := chain.FormatAtomic(atomic, int(decimals))
	c.writeCache(cacheKey, balance)
	return balance, nil
}

func (c *Client) callBalanceOf(ctx context.Context, cl *ethclient.Client, contract, account common.Address) (*big.Int, error) {
	data, err := c.abi.Pack("balanceOf", account)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.KindInternal, err, "cannot pack balanceOf call")
	}
	result, err := cl.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, brokererr.Wrap(brokererr.KindUpstream, err, "balanceOf call failed")
	}
	var out *big.Int
	if err := c.abi.UnpackIntoInterface(&out, "balanceOf", result); err != nil {
		return nil, brokererr.Wrap(brokererr.KindUpstream, err, "cannot unpack balanceOf result")
	}
	return out, nil
}

func (c *Client) callDecimals(ctx context.Context, cl *ethclient.Client, contract common.Address) (uint8, error) {
	data, err := c.abi.Pack("decimals")
	if err != nil {
		return 0, brokererr.Wrap(brokererr.KindInternal, err, "cannot pack decimals call")
	}
	result, err := cl.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return 0, brokererr.Wrap(brokererr.KindUpstream, err, "decimals call failed")
	}
	var out uint8
	if err := c.abi.UnpackIntoInterface(&out, "decimals", result); err != nil {
		return 0, brokererr.Wrap(brokererr.KindUpstream, err, "cannot unpack decimals result")
	}
	return out, nil
}

func (c *Client) readCache(key string) (string, bool) {
	if c.redis == nil {
		return "", false
	}
	val, err := c.redis.Get(key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (c *Client) writeCache(key, value string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Set(key, value, balanceCacheTTL).Err(); err != nil {
		logger.Warnw("balance cache write failed", "err", err)
	}
}
