package application

import (
	"io"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/luxfi/erc20-processor/pkg/config"
	"github.com/luxfi/erc20-processor/pkg/keys"
	"github.com/luxfi/erc20-processor/pkg/logging"
	"github.com/luxfi/erc20-processor/pkg/metrics"
	"github.com/spf13/viper"
)

// Viper keys shared by the root flags and the environment
const (
	KeyConfig      = "config"
	KeyEnvFile     = "env-file"
	KeyLogLevel    = "log-level"
	KeyMetricsFile = "metrics-file"
	// KeyEnvFileOnly makes account loading ignore ETH_PRIVATE_KEYS in the
	// process environment
	KeyEnvFileOnly = "env-file-only"
)

// Processor is the application context handed to every command
type Processor struct {
	Log     log.Logger
	Config  *viper.Viper
	Metrics *metrics.Metrics

	// Stdout carries command results only, diagnostics go to Stderr
	Stdout io.Writer
	Stderr io.Writer
}

// New creates a Processor writing to the given streams. Nil streams default
// to the process streams.
func New(stdout, stderr io.Writer) *Processor {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Processor{
		Log:     logging.Discard(),
		Config:  viper.New(),
		Metrics: metrics.New(),
		Stdout:  stdout,
		Stderr:  stderr,
	}
}

// Setup initializes the logger from the configured level
func (p *Processor) Setup(v *viper.Viper) error {
	p.Config = v
	logger, err := logging.New(p.Stderr, v.GetString(KeyLogLevel))
	if err != nil {
		return err
	}
	p.Log = logger
	return nil
}

// ConfigFile returns the payments config path
func (p *Processor) ConfigFile() string {
	if f := p.Config.GetString(KeyConfig); f != "" {
		return f
	}
	return config.DefaultFile
}

// EnvFile returns the path of the .env file holding account keys
func (p *Processor) EnvFile() string {
	if f := p.Config.GetString(KeyEnvFile); f != "" {
		return f
	}
	return ".env"
}

// LoadAccounts returns the accounts listed in the env file, or in the
// process environment unless env-file-only is set
func (p *Processor) LoadAccounts() ([]keys.Account, error) {
	if p.Config.GetBool(KeyEnvFileOnly) {
		return keys.LoadAccountsFile(p.EnvFile())
	}
	return keys.LoadAccounts(p.EnvFile())
}

// LoadConfig reads the payments config
func (p *Processor) LoadConfig() (*config.Config, error) {
	return config.Load(p.ConfigFile())
}

// FlushMetrics writes the metrics file when one was requested
func (p *Processor) FlushMetrics() error {
	path := p.Config.GetString(KeyMetricsFile)
	if path == "" {
		return nil
	}
	return p.Metrics.WriteFile(path)
}
