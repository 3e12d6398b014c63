package config

import (
	"bytes"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/erc20-processor/configs"
	"github.com/luxfi/erc20-processor/pkg/core"
	"github.com/spf13/viper"
)

const (
	// DefaultFile is the config file read when --config is not given
	DefaultFile = "config-payments.toml"

	// DefaultRPCTimeout bounds a single RPC call
	DefaultRPCTimeout = 15 * time.Second

	// DefaultTokenDecimals is used when a token does not declare decimals
	DefaultTokenDecimals = 18
)

// Config is the typed form of config-payments.toml
type Config struct {
	Chains map[string]*Chain `mapstructure:"chain"`
}

// Chain holds everything needed to query balances on one network
type Chain struct {
	Key             string           `mapstructure:"-"`
	ChainName       string           `mapstructure:"chain-name"`
	ChainID         uint64           `mapstructure:"chain-id"`
	CurrencySymbol  string           `mapstructure:"currency-symbol"`
	RPCEndpoints    []string         `mapstructure:"rpc-endpoints"`
	RPCTimeout      time.Duration    `mapstructure:"rpc-timeout"`
	Token           Token            `mapstructure:"token"`
	WrapperContract *WrapperContract `mapstructure:"wrapper-contract"`
}

// Token is the ERC-20 token whose balance is reported
type Token struct {
	Symbol   string `mapstructure:"symbol"`
	Address  string `mapstructure:"address"`
	Decimals *int   `mapstructure:"decimals"`
}

// WrapperContract is the optional contract balance queries are routed through
type WrapperContract struct {
	Address string `mapstructure:"address"`
}

// Load reads and decodes a TOML config file. Any failure is a ConfigError.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, core.WrapConfig(err, "failed to read config "+path)
	}
	return decode(v)
}

// Parse decodes a TOML config held in memory
func Parse(data []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, core.WrapConfig(err, "failed to parse config")
	}
	return decode(v)
}

// Default returns the embedded template rendered with endpoint
func Default(endpoint string) (*Config, error) {
	return Parse(configs.Render(endpoint))
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, core.WrapConfig(err, "failed to decode config")
	}
	if len(cfg.Chains) == 0 {
		return nil, core.ErrInvalidConfig("config defines no [chain.*] sections")
	}
	for key, c := range cfg.Chains {
		if c == nil {
			return nil, core.ErrInvalidConfigf("chain %q is empty", key)
		}
		c.Key = key
	}
	return &cfg, nil
}

// Lookup returns the named network as written in the config. Callers
// applying overrides must Normalize and Validate it themselves.
func (c *Config) Lookup(name string) (*Chain, error) {
	chain, ok := c.Chains[strings.ToLower(name)]
	if !ok {
		return nil, core.ErrInvalidConfigf("network %q not found in config (known: %s)",
			name, strings.Join(c.Names(), ", "))
	}
	return chain, nil
}

// Chain returns the validated, normalized config of the named network
func (c *Config) Chain(name string) (*Chain, error) {
	chain, err := c.Lookup(name)
	if err != nil {
		return nil, err
	}
	chain.Normalize()
	if err := chain.Validate(); err != nil {
		return nil, err
	}
	return chain, nil
}

// Names returns the configured network names in sorted order
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Chains))
	for name := range c.Chains {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate ensures the chain configuration is usable
func (c *Chain) Validate() error {
	if c.ChainID == 0 {
		return core.ErrInvalidConfigf("chain %s: chain-id required", c.Key)
	}
	if len(c.RPCEndpoints) == 0 {
		return core.ErrInvalidConfigf("chain %s: at least one rpc endpoint required", c.Key)
	}
	for _, endpoint := range c.RPCEndpoints {
		if strings.Contains(endpoint, configs.RPCEndpointPlaceholder) {
			return core.ErrInvalidConfigf("chain %s: rpc endpoint placeholder %s was not substituted",
				c.Key, configs.RPCEndpointPlaceholder)
		}
		u, err := url.Parse(endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return core.ErrInvalidConfigf("chain %s: malformed rpc endpoint %q", c.Key, endpoint)
		}
	}
	if c.RPCTimeout < 0 {
		return core.ErrInvalidConfigf("chain %s: rpc-timeout must not be negative", c.Key)
	}
	if !common.IsHexAddress(c.Token.Address) {
		return core.ErrInvalidConfigf("chain %s: invalid token address %q", c.Key, c.Token.Address)
	}
	if d := c.TokenDecimals(); d < 0 || d > 77 {
		return core.ErrInvalidConfigf("chain %s: token decimals %d out of range", c.Key, d)
	}
	if c.WrapperContract != nil && !common.IsHexAddress(c.WrapperContract.Address) {
		return core.ErrInvalidConfigf("chain %s: invalid wrapper contract address %q",
			c.Key, c.WrapperContract.Address)
	}
	return nil
}

// Normalize applies defaults
func (c *Chain) Normalize() {
	if c.RPCTimeout == 0 {
		c.RPCTimeout = DefaultRPCTimeout
	}
	if c.ChainName == "" {
		c.ChainName = c.Key
	}
	if c.Token.Symbol == "" {
		c.Token.Symbol = "TOKEN"
	}
	for i, endpoint := range c.RPCEndpoints {
		c.RPCEndpoints[i] = strings.TrimSpace(endpoint)
	}
}

// TokenDecimals returns the declared token decimals or the default
func (c *Chain) TokenDecimals() int {
	if c.Token.Decimals == nil {
		return DefaultTokenDecimals
	}
	return *c.Token.Decimals
}

// TokenAddress returns the token contract address
func (c *Chain) TokenAddress() common.Address {
	return common.HexToAddress(c.Token.Address)
}

// WrapperAddress returns the wrapper contract address, if configured
func (c *Chain) WrapperAddress() (common.Address, bool) {
	if c.WrapperContract == nil || c.WrapperContract.Address == "" {
		return common.Address{}, false
	}
	return common.HexToAddress(c.WrapperContract.Address), true
}
