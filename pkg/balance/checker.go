package balance

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/luxfi/erc20-processor/pkg/config"
	"github.com/luxfi/erc20-processor/pkg/contracts"
	"github.com/luxfi/erc20-processor/pkg/core"
	"github.com/luxfi/erc20-processor/pkg/rpc"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the accounts resolved in parallel
const DefaultConcurrency = 4

// Config holds the configuration for the balance checker.
type Config struct {
	Chain *config.Chain
	// UseWrapper routes queries through the chain's wrapper contract when it has one
	UseWrapper bool
	// BlockNumber pins queries to a block; nil means latest
	BlockNumber *big.Int
	Concurrency int
}

// Info holds the balances of one account at one block.
type Info struct {
	Address     common.Address
	Gas         *big.Int
	Token       *big.Int
	BlockNumber uint64
	BlockTime   time.Time
	ViaWrapper  bool
}

// Checker resolves gas and token balances over an RPC client.
type Checker struct {
	client rpc.Client
	cfg    Config
	log    log.Logger
}

// NewChecker creates a checker. The chain must already be validated.
func NewChecker(client rpc.Client, cfg Config, logger log.Logger) (*Checker, error) {
	if cfg.Chain == nil {
		return nil, core.ErrInvalidConfig("balance checker needs a chain")
	}
	if cfg.Concurrency < 0 {
		return nil, core.ErrInvalidConfigf("concurrency must not be negative, got %d", cfg.Concurrency)
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.BlockNumber != nil && cfg.BlockNumber.Sign() < 0 {
		return nil, core.ErrInvalidConfigf("invalid block number %s", cfg.BlockNumber)
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Checker{client: client, cfg: cfg, log: logger}, nil
}

func (c *Checker) wrapper() (common.Address, bool) {
	if !c.cfg.UseWrapper {
		return common.Address{}, false
	}
	return c.cfg.Chain.WrapperAddress()
}

// GetBalance retrieves the gas and token balance of addr. The wrapper
// contract is tried first when enabled; a node refusing the call for lack of
// funds falls back to separate queries.
func (c *Checker) GetBalance(ctx context.Context, addr common.Address) (*Info, error) {
	if wrapper, ok := c.wrapper(); ok {
		info, err := c.viaWrapper(ctx, wrapper, addr)
		if err == nil {
			return info, nil
		}
		if !rpc.IsInsufficientFunds(err) {
			return nil, err
		}
		c.log.Warn("Wrapper call rejected, falling back to direct queries",
			"account", addr, "err", err)
	}
	return c.direct(ctx, addr)
}

func (c *Checker) viaWrapper(ctx context.Context, wrapper, addr common.Address) (*Info, error) {
	inner, err := contracts.EncodeBalanceOf(addr)
	if err != nil {
		return nil, err
	}
	data, err := contracts.EncodeCallWithDetails(c.cfg.Chain.TokenAddress(), inner)
	if err != nil {
		return nil, err
	}

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{
		From: addr,
		To:   &wrapper,
		Data: data,
	}, c.cfg.BlockNumber)
	if err != nil {
		return nil, core.WrapNetwork(err, "", "wrapper call failed for "+addr.Hex())
	}

	details, err := contracts.DecodeCallWithDetails(out)
	if err != nil {
		return nil, core.WrapNetwork(err, "", "invalid wrapper response for "+addr.Hex())
	}
	if details.ChainID.Cmp(new(big.Int).SetUint64(c.cfg.Chain.ChainID)) != 0 {
		return nil, core.ErrNetworkf("wrapper reports chain id %s, expected %d",
			details.ChainID, c.cfg.Chain.ChainID)
	}
	token, err := contracts.DecodeUint256(details.Result)
	if err != nil {
		return nil, core.WrapNetwork(err, "", "token "+c.cfg.Chain.Token.Address+" is not a valid ERC-20 contract")
	}

	return &Info{
		Address:     addr,
		Gas:         details.EthBalance,
		Token:       token,
		BlockNumber: details.BlockNumber,
		BlockTime:   details.BlockTimestamp,
		ViaWrapper:  true,
	}, nil
}

func (c *Checker) direct(ctx context.Context, addr common.Address) (*Info, error) {
	header, err := c.client.HeaderByNumber(ctx, c.cfg.BlockNumber)
	if err != nil {
		return nil, core.WrapNetwork(err, "", "failed to fetch block header")
	}
	number := header.Number

	gas, err := c.client.BalanceAt(ctx, addr, number)
	if err != nil {
		return nil, core.WrapNetwork(err, "", "failed to fetch gas balance of "+addr.Hex())
	}

	data, err := contracts.EncodeBalanceOf(addr)
	if err != nil {
		return nil, err
	}
	token := c.cfg.Chain.TokenAddress()
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, number)
	if err != nil {
		return nil, core.WrapNetwork(err, "", "failed to fetch token balance of "+addr.Hex())
	}
	tokenBalance, err := contracts.DecodeUint256(out)
	if err != nil {
		return nil, core.WrapNetwork(err, "", "token "+c.cfg.Chain.Token.Address+" is not a valid ERC-20 contract")
	}

	return &Info{
		Address:     addr,
		Gas:         gas,
		Token:       tokenBalance,
		BlockNumber: number.Uint64(),
		BlockTime:   time.Unix(int64(header.Time), 0).UTC(),
	}, nil
}

// VerifyChain checks that the client serves the configured chain
func (c *Checker) VerifyChain(ctx context.Context) error {
	id, err := c.client.ChainID(ctx)
	if err != nil {
		return core.WrapNetwork(err, "", "failed to read chain id")
	}
	if id.Cmp(new(big.Int).SetUint64(c.cfg.Chain.ChainID)) != 0 {
		return core.ErrNetworkAt(endpointOf(c.client), "endpoint serves chain id %s, expected %d (%s)",
			id, c.cfg.Chain.ChainID, c.cfg.Chain.ChainName)
	}
	return nil
}

// Resolve returns the balances of every distinct address in input order.
// The first failure cancels the remaining queries.
func (c *Checker) Resolve(ctx context.Context, addrs []common.Address) ([]*Info, error) {
	if err := c.VerifyChain(ctx); err != nil {
		return nil, err
	}

	addrs = dedupe(addrs)
	infos := make([]*Info, len(addrs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, addr := range addrs {
		g.Go(func() error {
			info, err := c.GetBalance(gctx, addr)
			if err != nil {
				return err
			}
			c.log.Debug("Resolved balance", "account", addr, "gas", info.Gas,
				"token", info.Token, "block", info.BlockNumber, "wrapper", info.ViaWrapper)
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, core.WrapNetwork(err, "", "balance check interrupted")
	}
	return infos, nil
}

// CheckAll resolves every address and renders the result
func (c *Checker) CheckAll(ctx context.Context, addrs []common.Address, decimal bool) (Result, error) {
	infos, err := c.Resolve(ctx, addrs)
	if err != nil {
		return nil, err
	}
	result := NewResult(infos, c.cfg.Chain.TokenDecimals(), decimal)
	if want := len(dedupe(addrs)); len(result) != want {
		return nil, core.ErrValidationf("resolved %d accounts, expected %d", len(result), want)
	}
	c.log.Info("Checked balances", "chain", c.cfg.Chain.ChainName, "accounts", len(result))
	return result, nil
}

func dedupe(addrs []common.Address) []common.Address {
	seen := make(map[common.Address]struct{}, len(addrs))
	out := make([]common.Address, 0, len(addrs))
	for _, a := range addrs {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

func endpointOf(client rpc.Client) string {
	if p, ok := client.(interface{ Endpoint() string }); ok {
		return p.Endpoint()
	}
	return ""
}
