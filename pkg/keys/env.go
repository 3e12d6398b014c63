package keys

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/luxfi/erc20-processor/pkg/core"
)

const (
	// EnvPrivateKeys holds comma separated hex private keys
	EnvPrivateKeys = "ETH_PRIVATE_KEYS"
	// EnvAddressPrefix prefixes the informational per-account address entries
	EnvAddressPrefix = "ETH_ADDRESS_"
	// EnvMnemonic holds the phrase keys were derived from, when there is one
	EnvMnemonic = "MNEMONIC"

	envHeader = "# generated by erc20_processor generate-key\n"
)

// EncodeEnv renders accounts in .env format: one ETH_ADDRESS_<i> entry per
// account plus ETH_PRIVATE_KEYS. mnemonic is included when not empty.
func EncodeEnv(accounts []Account, mnemonic string) (string, error) {
	env := make(map[string]string, len(accounts)+2)
	privateKeys := make([]string, 0, len(accounts))
	for i, acc := range accounts {
		if acc.PrivateKey == nil {
			return "", fmt.Errorf("account %s has no private key", acc.ID())
		}
		env[fmt.Sprintf("%s%d", EnvAddressPrefix, i)] = acc.ID()
		privateKeys = append(privateKeys, acc.PrivateKeyHex())
	}
	env[EnvPrivateKeys] = strings.Join(privateKeys, ",")
	if mnemonic != "" {
		env[EnvMnemonic] = mnemonic
	}

	body, err := godotenv.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to encode env: %w", err)
	}
	return envHeader + body + "\n", nil
}

// LoadAccounts returns the accounts whose keys are listed in ETH_PRIVATE_KEYS.
// The process environment takes precedence over envFile; a missing envFile is
// only an error when the variable is not set in the environment either.
func LoadAccounts(envFile string) ([]Account, error) {
	if value, ok := os.LookupEnv(EnvPrivateKeys); ok {
		return ParsePrivateKeys(value)
	}
	return LoadAccountsFile(envFile)
}

// LoadAccountsFile reads ETH_PRIVATE_KEYS from envFile only, ignoring the
// process environment.
func LoadAccountsFile(envFile string) ([]Account, error) {
	env, err := godotenv.Read(envFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, core.ErrInvalidConfigf("%s not set and env file %s not found", EnvPrivateKeys, envFile)
		}
		return nil, core.WrapConfig(err, "failed to read env file "+envFile)
	}
	value, ok := env[EnvPrivateKeys]
	if !ok {
		return nil, core.ErrInvalidConfigf("%s missing from env file %s", EnvPrivateKeys, envFile)
	}
	return ParsePrivateKeys(value)
}

// ParsePrivateKeys parses a comma separated list of hex private keys
func ParsePrivateKeys(value string) ([]Account, error) {
	var accounts []Account
	for i, raw := range strings.Split(value, ",") {
		raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
		if raw == "" {
			continue
		}
		key, err := crypto.HexToECDSA(raw)
		if err != nil {
			return nil, core.WrapConfig(err, fmt.Sprintf("invalid private key #%d in %s", i, EnvPrivateKeys))
		}
		accounts = append(accounts, FromPrivateKey(key))
	}
	return Dedupe(accounts), nil
}

// ParseAddresses parses a comma separated list of 0x addresses
func ParseAddresses(value string) ([]Account, error) {
	var accounts []Account
	for _, raw := range strings.Split(value, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !common.IsHexAddress(raw) {
			return nil, core.ErrInvalidConfigf("invalid account address %q", raw)
		}
		accounts = append(accounts, Account{Address: common.HexToAddress(raw)})
	}
	return Dedupe(accounts), nil
}

// Dedupe drops repeated addresses, keeping the first occurrence
func Dedupe(accounts []Account) []Account {
	seen := make(map[common.Address]struct{}, len(accounts))
	out := make([]Account, 0, len(accounts))
	for _, acc := range accounts {
		if _, ok := seen[acc.Address]; ok {
			continue
		}
		seen[acc.Address] = struct{}{}
		out = append(out, acc)
	}
	return out
}
