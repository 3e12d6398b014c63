package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/luxfi/erc20-processor/configs"
	"github.com/luxfi/erc20-processor/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTemplate(t *testing.T) {
	cfg, err := Default("https://polygon-rpc.com")
	require.NoError(t, err)

	for name, preset := range configs.Networks {
		chain, err := cfg.Chain(name)
		require.NoError(t, err, name)
		assert.Equal(t, preset.ChainID, chain.ChainID, name)
		assert.Equal(t, []string{"https://polygon-rpc.com"}, chain.RPCEndpoints, name)
		_, hasWrapper := chain.WrapperAddress()
		assert.Equal(t, preset.HasWrapper, hasWrapper, name)
	}

	polygon, err := cfg.Chain("polygon")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, polygon.RPCTimeout)
	assert.Equal(t, 18, polygon.TokenDecimals())
	assert.Equal(t, common.HexToAddress("0x0B220b82F3eA3B7F6d9A1D8ab58930C064A2b5Bf"), polygon.TokenAddress())
}

func TestUnsubstitutedPlaceholder(t *testing.T) {
	cfg, err := Parse(configs.PaymentsTemplate)
	require.NoError(t, err)

	_, err = cfg.Chain("holesky")
	require.Error(t, err)
	assert.True(t, core.IsConfig(err))
	assert.Contains(t, err.Error(), "placeholder")
}

func TestLookupSkipsValidation(t *testing.T) {
	cfg, err := Parse(configs.PaymentsTemplate)
	require.NoError(t, err)

	chain, err := cfg.Lookup("Polygon")
	require.NoError(t, err)
	assert.Equal(t, []string{configs.RPCEndpointPlaceholder}, chain.RPCEndpoints)

	chain.RPCEndpoints = []string{" http://127.0.0.1:8545 "}
	chain.Normalize()
	require.NoError(t, chain.Validate())
	assert.Equal(t, []string{"http://127.0.0.1:8545"}, chain.RPCEndpoints)

	_, err = cfg.Lookup("goerli")
	assert.True(t, core.IsConfig(err))
}

func TestUnknownNetwork(t *testing.T) {
	cfg, err := Default("http://127.0.0.1:8545")
	require.NoError(t, err)

	_, err = cfg.Chain("goerli")
	require.Error(t, err)
	assert.True(t, core.IsConfig(err))
	assert.Contains(t, err.Error(), "holesky")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
	assert.True(t, core.IsConfig(err))
}

func TestLoadUnparsable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[chain.x\nnot toml"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, core.IsConfig(err))
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config-payments.toml")
	data := []byte(`
[chain.dev]
chain-id = 1337
rpc-endpoints = ["http://127.0.0.1:8545", " http://127.0.0.1:8546 "]
rpc-timeout = "3s"

[chain.dev.token]
address = "0x0000000000000000000000000000000000000042"
decimals = 6
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	chain, err := cfg.Chain("DEV")
	require.NoError(t, err)

	assert.Equal(t, "dev", chain.Key)
	assert.Equal(t, "dev", chain.ChainName)
	assert.Equal(t, "TOKEN", chain.Token.Symbol)
	assert.Equal(t, 6, chain.TokenDecimals())
	assert.Equal(t, 3*time.Second, chain.RPCTimeout)
	assert.Equal(t, []string{"http://127.0.0.1:8545", "http://127.0.0.1:8546"}, chain.RPCEndpoints)
	_, ok := chain.WrapperAddress()
	assert.False(t, ok)
}

func TestChainValidate(t *testing.T) {
	valid := func() *Chain {
		return &Chain{
			Key:          "dev",
			ChainID:      1337,
			RPCEndpoints: []string{"http://127.0.0.1:8545"},
			Token:        Token{Address: "0x0000000000000000000000000000000000000042"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(c *Chain){
		"missing chain id":  func(c *Chain) { c.ChainID = 0 },
		"no endpoints":      func(c *Chain) { c.RPCEndpoints = nil },
		"relative endpoint": func(c *Chain) { c.RPCEndpoints = []string{"localhost"} },
		"bad token":         func(c *Chain) { c.Token.Address = "0x42" },
		"bad wrapper":       func(c *Chain) { c.WrapperContract = &WrapperContract{Address: "nope"} },
		"bad decimals": func(c *Chain) {
			d := 100
			c.Token.Decimals = &d
		},
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, core.IsConfig(err))
		})
	}
}
