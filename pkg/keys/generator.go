package keys

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/luxfi/erc20-processor/pkg/core"
	"github.com/luxfi/go-bip32"
	"github.com/luxfi/go-bip39"
)

const (
	// BIP44 path for EVM accounts: m/44'/60'/0'/0/{account}
	purposeIndex     = 44
	ethCoinTypeIndex = 60
	accountIndex     = 0
	changeIndex      = 0

	// 128 bits of entropy gives a 12 word mnemonic
	mnemonicEntropyBits = 128

	// maxCollisionRetries bounds regeneration of a duplicate random key
	maxCollisionRetries = 8
)

// Account is an EVM account. PrivateKey is nil when only the address is known.
type Account struct {
	Address    common.Address
	PrivateKey *ecdsa.PrivateKey
}

// ID returns the identifier used as the result key: the lowercase 0x-hex address
func (a Account) ID() string {
	return strings.ToLower(a.Address.Hex())
}

// PrivateKeyHex returns the private key as 64 hex characters without prefix
func (a Account) PrivateKeyHex() string {
	if a.PrivateKey == nil {
		return ""
	}
	return hex.EncodeToString(crypto.FromECDSA(a.PrivateKey))
}

// FromPrivateKey builds an account from a secp256k1 key
func FromPrivateKey(key *ecdsa.PrivateKey) Account {
	return Account{Address: crypto.PubkeyToAddress(key.PublicKey), PrivateKey: key}
}

// Generator creates accounts, either random or derived from a mnemonic
type Generator struct {
	mnemonic string
}

// NewGenerator creates a generator of cryptographically random accounts
func NewGenerator() *Generator {
	return &Generator{}
}

// NewMnemonicGenerator creates a generator deriving accounts along
// m/44'/60'/0'/0/i from a BIP39 mnemonic
func NewMnemonicGenerator(mnemonic string) (*Generator, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, core.ErrInvalidConfig("invalid mnemonic")
	}
	return &Generator{mnemonic: mnemonic}, nil
}

// NewMnemonic creates a fresh 12 word BIP39 mnemonic
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(mnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("failed to create entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("failed to create mnemonic: %w", err)
	}
	return mnemonic, nil
}

// Mnemonic returns the mnemonic the generator derives from, if any
func (g *Generator) Mnemonic() string {
	return g.mnemonic
}

// Generate returns exactly n accounts with pairwise distinct addresses
func (g *Generator) Generate(n int) ([]Account, error) {
	if n < 0 {
		return nil, core.ErrInvalidConfigf("number of keys must not be negative, got %d", n)
	}
	if g.mnemonic != "" {
		return g.derive(n)
	}

	accounts := make([]Account, 0, n)
	seen := make(map[common.Address]struct{}, n)
	for len(accounts) < n {
		var (
			acc Account
			err error
		)
		for try := 0; ; try++ {
			acc, err = randomAccount()
			if err != nil {
				return nil, err
			}
			if _, dup := seen[acc.Address]; !dup {
				break
			}
			if try >= maxCollisionRetries {
				return nil, fmt.Errorf("failed to generate a distinct key after %d attempts", try+1)
			}
		}
		seen[acc.Address] = struct{}{}
		accounts = append(accounts, acc)
	}
	return accounts, nil
}

func randomAccount() (Account, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return Account{}, fmt.Errorf("failed to generate private key: %w", err)
	}
	return FromPrivateKey(key), nil
}

func (g *Generator) derive(n int) ([]Account, error) {
	seed := bip39.NewSeed(g.mnemonic, "")
	masterKey, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("error creating master key: %w", err)
	}

	accounts := make([]Account, 0, n)
	for i := 0; i < n; i++ {
		child, err := deriveKey(masterKey, uint32(i))
		if err != nil {
			return nil, fmt.Errorf("error deriving key %d: %w", i, err)
		}
		key, err := crypto.ToECDSA(child.Key)
		if err != nil {
			return nil, fmt.Errorf("error converting key %d: %w", i, err)
		}
		accounts = append(accounts, FromPrivateKey(key))
	}
	return accounts, nil
}

func deriveKey(masterKey *bip32.Key, idx uint32) (*bip32.Key, error) {
	// m/44'
	purpose, err := masterKey.NewChildKey(bip32.FirstHardenedChild + purposeIndex)
	if err != nil {
		return nil, err
	}

	// m/44'/60'
	coin, err := purpose.NewChildKey(bip32.FirstHardenedChild + ethCoinTypeIndex)
	if err != nil {
		return nil, err
	}

	// m/44'/60'/0'
	account, err := coin.NewChildKey(bip32.FirstHardenedChild + accountIndex)
	if err != nil {
		return nil, err
	}

	// m/44'/60'/0'/0
	change, err := account.NewChildKey(changeIndex)
	if err != nil {
		return nil, err
	}

	// m/44'/60'/0'/0/{idx}
	return change.NewChildKey(idx)
}
