package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/luxfi/erc20-processor/pkg/application"
	"github.com/luxfi/erc20-processor/pkg/config"
	"github.com/luxfi/erc20-processor/pkg/core"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information (set by ldflags)
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const envPrefix = "ERC20"

// NewRootCmd creates the root command bound to app
func NewRootCmd(app *application.Processor) *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "erc20_processor",
		Short: "Generate EVM accounts and report their gas and ERC-20 token balances",
		Long: `erc20_processor generates EVM accounts and reports, per account, the native gas
balance and the configured ERC-20 token balance as a JSON object on stdout.`,
		Version:       versionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initializeApp(cmd, v, app)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String(application.KeyConfig, config.DefaultFile, "payments config file (TOML)")
	flags.String(application.KeyEnvFile, ".env", "env file holding ETH_PRIVATE_KEYS")
	flags.String(application.KeyLogLevel, "info", "log level (trace, debug, info, warn, error, crit)")
	flags.String(application.KeyMetricsFile, "", "write prometheus metrics to this file on exit")
	flags.Bool(application.KeyEnvFileOnly, false, "read ETH_PRIVATE_KEYS from the env file only")
	_ = flags.MarkHidden(application.KeyEnvFileOnly)

	rootCmd.SetOut(app.Stdout)
	rootCmd.SetErr(app.Stderr)

	rootCmd.AddCommand(NewGenerateKeyCmd(app))
	rootCmd.AddCommand(NewBalanceCmd(app))
	rootCmd.AddCommand(NewCheckEndpointsCmd(app))
	rootCmd.AddCommand(NewVersionCmd(app))

	return rootCmd
}

func initializeApp(cmd *cobra.Command, v *viper.Viper, app *application.Processor) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Root().PersistentFlags()); err != nil {
		return core.WrapConfig(err, "failed to bind flags")
	}
	return app.Setup(v)
}

// Run executes the CLI with args and returns the process exit code
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if err := run(ctx, args, stdout, stderr); err != nil {
		return 1
	}
	return 0
}

// Execute runs the CLI against the process arguments and streams. SIGINT and
// SIGTERM cancel the run.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	app := application.New(stdout, stderr)
	rootCmd := NewRootCmd(app)
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	if ferr := app.FlushMetrics(); ferr != nil {
		app.Log.Warn("Failed to write metrics", "err", ferr)
	}
	if err != nil {
		if ctx.Err() != nil && !core.IsConfig(err) {
			err = fmt.Errorf("interrupted: %w", err)
		}
		fmt.Fprintf(app.Stderr, "Error: %s: %v\n", errorKind(err), err)
	}
	return err
}

func errorKind(err error) string {
	switch {
	case core.IsConfig(err):
		return "config error"
	case core.IsNetwork(err):
		return "network error"
	case core.IsValidation(err):
		return "validation error"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

func versionString() string {
	return fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit)
}
