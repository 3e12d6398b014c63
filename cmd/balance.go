package cmd

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/erc20-processor/pkg/application"
	"github.com/luxfi/erc20-processor/pkg/balance"
	"github.com/luxfi/erc20-processor/pkg/config"
	"github.com/luxfi/erc20-processor/pkg/core"
	"github.com/luxfi/erc20-processor/pkg/keys"
	"github.com/luxfi/erc20-processor/pkg/rpc"
	"github.com/spf13/cobra"
)

type balanceOptions struct {
	chainName   string
	noWrapper   bool
	accounts    string
	blockNumber uint64
	endpoints   []string
	concurrency int
	retries     int
	rpcTimeout  time.Duration
	decimal     bool
}

// NewBalanceCmd creates the balance command
func NewBalanceCmd(app *application.Processor) *cobra.Command {
	opts := &balanceOptions{}

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Print gas and token balances of the configured accounts as JSON",
		Long: `Print the gas and token balance of every account as a JSON object keyed by
lowercase address. Accounts come from ETH_PRIVATE_KEYS in the env file unless
--accounts is given. Nothing is printed unless every account resolved.

Examples:
  erc20_processor balance -c polygon
  erc20_processor balance -c holesky --no-wrapper-contract
  erc20_processor balance -c polygon -a 0xabc...,0xdef... --decimal`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBalance(cmd.Context(), app, opts, cmd.Flags().Changed("block-number"),
				cmd.Flags().Changed("rpc-timeout"))
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.chainName, "chain-name", "c", "", "Network to query, as named in the config")
	f.BoolVar(&opts.noWrapper, "no-wrapper-contract", false, "Query the node directly instead of through the wrapper contract")
	f.StringVarP(&opts.accounts, "accounts", "a", "", "Comma separated addresses to check instead of the env file keys")
	f.Uint64Var(&opts.blockNumber, "block-number", 0, "Query balances at this block instead of the latest")
	f.StringArrayVar(&opts.endpoints, "rpc", nil, "RPC endpoint overriding the config, repeat for failover order")
	f.IntVar(&opts.concurrency, "concurrency", balance.DefaultConcurrency, "Accounts queried in parallel")
	f.IntVar(&opts.retries, "retries", 0, "Extra attempts per RPC call and endpoint")
	f.DurationVar(&opts.rpcTimeout, "rpc-timeout", config.DefaultRPCTimeout, "Timeout of a single RPC call (default from config)")
	f.BoolVar(&opts.decimal, "decimal", false, "Print balances in whole units instead of base units")

	return cmd
}

func runBalance(ctx context.Context, app *application.Processor, opts *balanceOptions, pinned, timeoutSet bool) error {
	if opts.chainName == "" {
		return core.ErrInvalidConfig("missing --chain-name (-c)")
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	chain, err := cfg.Lookup(opts.chainName)
	if err != nil {
		return err
	}
	if len(opts.endpoints) > 0 {
		chain.RPCEndpoints = opts.endpoints
	}
	if timeoutSet {
		chain.RPCTimeout = opts.rpcTimeout
	}
	chain.Normalize()
	if err := chain.Validate(); err != nil {
		return err
	}

	addrs, err := balanceAccounts(app, opts)
	if err != nil {
		return err
	}

	var block *big.Int
	if pinned {
		block = new(big.Int).SetUint64(opts.blockNumber)
	}

	_, hasWrapper := chain.WrapperAddress()
	useWrapper := !opts.noWrapper && hasWrapper
	if !opts.noWrapper && !hasWrapper {
		app.Log.Debug("No wrapper contract configured, querying directly", "chain", chain.ChainName)
	}

	pool, err := rpc.NewPool(rpc.Options{
		Endpoints: chain.RPCEndpoints,
		Timeout:   chain.RPCTimeout,
		Retries:   opts.retries,
		Logger:    app.Log,
		Metrics:   app.Metrics,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	checker, err := balance.NewChecker(pool, balance.Config{
		Chain:       chain,
		UseWrapper:  useWrapper,
		BlockNumber: block,
		Concurrency: opts.concurrency,
	}, app.Log)
	if err != nil {
		return err
	}

	app.Log.Info("Checking balances", "chain", chain.ChainName, "accounts", len(addrs),
		"endpoint", pool.Endpoint(), "wrapper", useWrapper)
	result, err := checker.CheckAll(ctx, addrs, opts.decimal)
	if err != nil {
		return err
	}
	app.Metrics.SetAccounts(len(result))

	return result.Write(app.Stdout)
}

func balanceAccounts(app *application.Processor, opts *balanceOptions) ([]common.Address, error) {
	var (
		accounts []keys.Account
		err      error
	)
	if opts.accounts != "" {
		accounts, err = keys.ParseAddresses(opts.accounts)
	} else {
		accounts, err = app.LoadAccounts()
	}
	if err != nil {
		return nil, err
	}

	addrs := make([]common.Address, 0, len(accounts))
	for _, acc := range accounts {
		addrs = append(addrs, acc.Address)
	}
	return addrs, nil
}
