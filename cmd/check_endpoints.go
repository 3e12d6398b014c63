package cmd

import (
	"encoding/json"
	"strings"

	"github.com/luxfi/erc20-processor/configs"
	"github.com/luxfi/erc20-processor/pkg/application"
	"github.com/luxfi/erc20-processor/pkg/config"
	"github.com/luxfi/erc20-processor/pkg/core"
	"github.com/luxfi/erc20-processor/pkg/scenario"
	"github.com/spf13/cobra"
)

// NewCheckEndpointsCmd creates the check-endpoints command
func NewCheckEndpointsCmd(app *application.Processor) *cobra.Command {
	var (
		chainName string
		endpoints []string
		count     int
		bothPaths bool
		binary    string
	)

	cmd := &cobra.Command{
		Use:   "check-endpoints",
		Short: "Verify that RPC endpoints report zero balances for fresh accounts",
		Long: `For every endpoint, generate accounts into a temporary .env, render the
embedded config template with the endpoint and run balance against it, once
through the wrapper contract and once with --no-wrapper-contract. The
endpoint passes when every account reports zero gas and zero tokens.

Examples:
  erc20_processor check-endpoints -c polygon -e https://polygon-rpc.com
  erc20_processor check-endpoints -c holesky -e https://a -e https://b --both-paths=false
  erc20_processor check-endpoints -c polygon -e https://polygon-rpc.com --binary ./erc20_processor`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if chainName == "" {
				return core.ErrInvalidConfig("missing --chain-name (-c)")
			}
			if len(endpoints) == 0 {
				return core.ErrInvalidConfig("at least one --endpoint (-e) is required")
			}
			preset, ok := configs.GetNetwork(chainName)
			if !ok {
				return core.ErrInvalidConfigf("network %q has no preset in the config template (known: %s)",
					chainName, strings.Join(configs.NetworkNames(), ", "))
			}
			for _, endpoint := range endpoints {
				cfg, err := config.Default(endpoint)
				if err != nil {
					return err
				}
				if _, err := cfg.Chain(preset.Key); err != nil {
					return err
				}
			}

			var invoker scenario.Invoker = scenario.InProcess{Main: Run}
			if binary != "" {
				invoker = scenario.Exec{Binary: binary}
			}

			app.Log.Info("Checking endpoints", "network", preset.Name, "chainid", preset.ChainID,
				"endpoints", len(endpoints), "wrapper", preset.HasWrapper, "bothPaths", bothPaths)
			check := &scenario.EndpointCheck{
				Network:   preset.Key,
				Accounts:  count,
				BothPaths: bothPaths,
				Invoker:   invoker,
				Log:       app.Log,
			}
			reports, err := check.Run(cmd.Context(), endpoints)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(app.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(reports); err != nil {
				return err
			}

			failed := 0
			for _, r := range reports {
				if !r.OK {
					failed++
				}
			}
			if failed > 0 {
				return core.ErrValidationf("%d of %d endpoints failed", failed, len(reports))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&chainName, "chain-name", "c", "", "Network preset from the embedded config template")
	cmd.Flags().StringArrayVarP(&endpoints, "endpoint", "e", nil, "RPC endpoint to check, repeatable")
	cmd.Flags().IntVarP(&count, "num", "n", scenario.DefaultAccounts, "Accounts generated per endpoint")
	cmd.Flags().BoolVar(&bothPaths, "both-paths", true, "Also check with --no-wrapper-contract")
	cmd.Flags().StringVar(&binary, "binary", "", "Run this erc20_processor binary instead of the built-in command")

	return cmd
}
