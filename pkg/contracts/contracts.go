// Package contracts encodes and decodes the contract calls used for balance
// checks: ERC-20 balanceOf and the wrapper contract's callWithDetails.
package contracts

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const erc20ABIJSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]}
]`

// callWithDetails(target, data) executes data against target and returns
// (chainId, blockNumber, blockTimestamp, ethBalance of msg.sender, result).
const wrapperABIJSON = `[
  {"type":"function","name":"callWithDetails","stateMutability":"view",
   "inputs":[{"name":"target","type":"address"},{"name":"data","type":"bytes"}],
   "outputs":[{"name":"","type":"tuple","components":[
     {"name":"chainId","type":"uint256"},
     {"name":"blockNumber","type":"uint256"},
     {"name":"blockTimestamp","type":"uint256"},
     {"name":"ethBalance","type":"uint256"},
     {"name":"result","type":"bytes"}]}]}
]`

var (
	ERC20ABI   = mustParseABI(erc20ABIJSON)
	WrapperABI = mustParseABI(wrapperABIJSON)

	// detailsArgs is the body of the callWithDetails tuple
	detailsArgs = mustArguments("uint256", "uint256", "uint256", "uint256", "bytes")
)

// WordSize is the length of an ABI-encoded uint256
const WordSize = 32

// CallDetails is the decoded output of callWithDetails
type CallDetails struct {
	ChainID        *big.Int
	BlockNumber    uint64
	BlockTimestamp time.Time
	EthBalance     *big.Int
	Result         []byte
}

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

func mustArguments(types ...string) abi.Arguments {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	return args
}

// EncodeBalanceOf returns calldata for balanceOf(holder)
func EncodeBalanceOf(holder common.Address) ([]byte, error) {
	return ERC20ABI.Pack("balanceOf", holder)
}

// DecodeBalanceOfInput extracts the holder from balanceOf calldata
func DecodeBalanceOfInput(data []byte) (common.Address, error) {
	method, err := ERC20ABI.MethodById(data)
	if err != nil || method.Name != "balanceOf" {
		return common.Address{}, fmt.Errorf("not a balanceOf call")
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, err
	}
	return values[0].(common.Address), nil
}

// DecodeUint256 decodes a single 32-byte word. Any other length means the
// callee is not the expected contract.
func DecodeUint256(word []byte) (*big.Int, error) {
	if len(word) != WordSize {
		return nil, fmt.Errorf("invalid uint256 response of %d bytes: 0x%x", len(word), word)
	}
	return new(uint256.Int).SetBytes32(word).ToBig(), nil
}

// EncodeCallWithDetails wraps calldata for target into a callWithDetails call
func EncodeCallWithDetails(target common.Address, data []byte) ([]byte, error) {
	return WrapperABI.Pack("callWithDetails", target, data)
}

// DecodeCallWithDetailsInput extracts the target and inner calldata
func DecodeCallWithDetailsInput(data []byte) (common.Address, []byte, error) {
	method, err := WrapperABI.MethodById(data)
	if err != nil || method.Name != "callWithDetails" {
		return common.Address{}, nil, fmt.Errorf("not a callWithDetails call")
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, err
	}
	return values[0].(common.Address), values[1].([]byte), nil
}

// DecodeCallWithDetails decodes the single dynamic tuple returned by
// callWithDetails: an offset word followed by the tuple body.
func DecodeCallWithDetails(data []byte) (*CallDetails, error) {
	if len(data) < WordSize {
		return nil, fmt.Errorf("callWithDetails response too short: %d bytes", len(data))
	}
	offset := new(uint256.Int).SetBytes32(data[:WordSize])
	if !offset.IsUint64() || offset.Uint64() < WordSize || offset.Uint64() > uint64(len(data)) {
		return nil, fmt.Errorf("callWithDetails response has invalid tuple offset %s", offset.Dec())
	}
	values, err := detailsArgs.Unpack(data[offset.Uint64():])
	if err != nil {
		return nil, fmt.Errorf("failed to decode callWithDetails response: %w", err)
	}

	number := values[1].(*big.Int)
	timestamp := values[2].(*big.Int)
	if !number.IsUint64() || !timestamp.IsInt64() {
		return nil, fmt.Errorf("callWithDetails block info out of range: number %s, timestamp %s", number, timestamp)
	}
	return &CallDetails{
		ChainID:        values[0].(*big.Int),
		BlockNumber:    number.Uint64(),
		BlockTimestamp: time.Unix(timestamp.Int64(), 0).UTC(),
		EthBalance:     values[3].(*big.Int),
		Result:         values[4].([]byte),
	}, nil
}

// EncodeCallWithDetailsResult is the inverse of DecodeCallWithDetails
func EncodeCallWithDetailsResult(d *CallDetails) ([]byte, error) {
	body, err := detailsArgs.Pack(
		d.ChainID,
		new(big.Int).SetUint64(d.BlockNumber),
		big.NewInt(d.BlockTimestamp.Unix()),
		d.EthBalance,
		d.Result,
	)
	if err != nil {
		return nil, err
	}
	offset := uint256.NewInt(WordSize).Bytes32()
	return bytes.Join([][]byte{offset[:], body}, nil), nil
}

// EncodeUint256 encodes v as a single 32-byte word
func EncodeUint256(v *big.Int) []byte {
	u, overflow := uint256.FromBig(v)
	if overflow {
		panic(fmt.Sprintf("value %s overflows uint256", v))
	}
	word := u.Bytes32()
	return word[:]
}
