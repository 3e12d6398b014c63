package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/joho/godotenv"
	"github.com/luxfi/erc20-processor/configs"
	"github.com/luxfi/erc20-processor/pkg/balance"
	"github.com/luxfi/erc20-processor/pkg/core"
	"github.com/luxfi/erc20-processor/pkg/keys"
	"github.com/luxfi/erc20-processor/pkg/rpc"
)

// DefaultAccounts is the number of accounts generated per endpoint
const DefaultAccounts = 7

// EndpointCheck verifies that an endpoint reports zero balances for freshly
// generated accounts.
type EndpointCheck struct {
	Network  string
	Accounts int
	// BothPaths also runs the check with --no-wrapper-contract
	BothPaths bool
	Invoker   Invoker
	Log       log.Logger
	// WorkDir holds per-endpoint temp dirs; empty uses the system temp dir
	WorkDir string
}

// Report is the outcome for one endpoint
type Report struct {
	Endpoint string      `json:"endpoint"`
	OK       bool        `json:"ok"`
	Error    string      `json:"error,omitempty"`
	Runs     []RunReport `json:"runs,omitempty"`
}

// RunReport is the outcome of one balance invocation
type RunReport struct {
	Wrapper  bool    `json:"wrapper"`
	ExitCode int     `json:"exitCode"`
	Accounts int     `json:"accounts"`
	Seconds  float64 `json:"seconds"`
	Error    string  `json:"error,omitempty"`
}

// Run checks every endpoint in order. An endpoint failing verification is
// recorded in its report; only setup failures abort the whole run.
func (c *EndpointCheck) Run(ctx context.Context, endpoints []string) ([]Report, error) {
	if c.Invoker == nil {
		return nil, core.ErrInvalidConfig("scenario needs an invoker")
	}
	if c.Accounts < 0 {
		return nil, core.ErrInvalidConfigf("account count must not be negative, got %d", c.Accounts)
	}
	if c.Log == nil {
		c.Log = log.Root()
	}

	reports := make([]Report, 0, len(endpoints))
	for _, endpoint := range endpoints {
		if err := ctx.Err(); err != nil {
			return reports, err
		}
		report, err := c.checkEndpoint(ctx, endpoint)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (c *EndpointCheck) checkEndpoint(ctx context.Context, endpoint string) (Report, error) {
	label := rpc.Redact(endpoint)
	report := Report{Endpoint: label}

	dir, err := os.MkdirTemp(c.WorkDir, "erc20-scenario-")
	if err != nil {
		return report, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	envFile := filepath.Join(dir, ".env")
	configFile := filepath.Join(dir, "config-payments.toml")

	want, err := c.generate(ctx, envFile)
	if err != nil {
		return report, err
	}
	if err := os.WriteFile(configFile, configs.Render(endpoint), 0600); err != nil {
		return report, fmt.Errorf("failed to write scenario config: %w", err)
	}

	paths := []bool{true}
	if c.BothPaths {
		paths = append(paths, false)
	}

	report.OK = true
	for _, wrapper := range paths {
		args := []string{"--config", configFile, "--env-file", envFile, "--env-file-only",
			"balance", "-c", c.Network}
		if !wrapper {
			args = append(args, "--no-wrapper-contract")
		}

		started := time.Now()
		res, err := c.Invoker.Run(ctx, args...)
		if err != nil {
			return report, fmt.Errorf("failed to run balance: %w", err)
		}
		run := RunReport{Wrapper: wrapper, ExitCode: res.ExitCode, Seconds: time.Since(started).Seconds()}

		result, verr := Verify(res, want)
		run.Accounts = len(result)
		if verr != nil {
			run.Error = verr.Error()
			report.OK = false
			if report.Error == "" {
				report.Error = verr.Error()
			}
			c.Log.Warn("Endpoint check failed", "endpoint", label, "wrapper", wrapper, "err", verr)
		} else {
			c.Log.Info("Endpoint check passed", "endpoint", label, "wrapper", wrapper,
				"accounts", run.Accounts, "elapsed", time.Since(started))
		}
		report.Runs = append(report.Runs, run)
	}
	return report, nil
}

// generate runs generate-key and stores its output as the env file. It
// returns the expected account ids.
func (c *EndpointCheck) generate(ctx context.Context, envFile string) ([]string, error) {
	res, err := c.Invoker.Run(ctx, "generate-key", "-n", fmt.Sprint(c.Accounts))
	if err != nil {
		return nil, fmt.Errorf("failed to run generate-key: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, core.ErrValidationf("generate-key exited with code %d: %s", res.ExitCode, res.Stderr)
	}

	env, err := godotenv.Unmarshal(string(res.Stdout))
	if err != nil {
		return nil, core.ErrValidationf("generate-key output is not a valid env file: %v", err)
	}
	accounts, err := keys.ParsePrivateKeys(env[keys.EnvPrivateKeys])
	if err != nil {
		return nil, err
	}
	if len(accounts) != c.Accounts {
		return nil, core.ErrValidationf("generate-key produced %d accounts, expected %d", len(accounts), c.Accounts)
	}
	if err := os.WriteFile(envFile, res.Stdout, 0600); err != nil {
		return nil, fmt.Errorf("failed to write env file: %w", err)
	}

	ids := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		ids = append(ids, acc.ID())
	}
	return ids, nil
}

// Verify checks a balance invocation: zero exit code, a JSON object on
// stdout holding exactly the wanted accounts, all with zero balances.
func Verify(res *Result, want []string) (balance.Result, error) {
	if res.ExitCode != 0 {
		return nil, core.ErrValidationf("balance exited with code %d: %s", res.ExitCode, lastLine(res.Stderr))
	}
	var result balance.Result
	if err := json.Unmarshal(res.Stdout, &result); err != nil {
		return nil, core.ErrValidationf("balance output is not a JSON object: %v", err)
	}
	if len(result) != len(want) {
		return result, core.ErrValidationf("balance reported %d accounts, expected %d", len(result), len(want))
	}
	for _, id := range want {
		entry, ok := result[id]
		if !ok {
			return result, core.ErrValidationf("account %s missing from balance output", id)
		}
		if entry != (balance.Entry{Gas: "0", Token: "0"}) {
			return result, core.ErrValidationf("account %s has gas %s and token %s, expected zero",
				id, entry.Gas, entry.Token)
		}
	}
	return result, nil
}

func lastLine(b []byte) string {
	lines := strings.Split(strings.TrimRight(string(b), "\r\n"), "\n")
	return lines[len(lines)-1]
}
