// Package rpctest runs an in-process JSON-RPC node answering the calls a
// balance check makes. It is meant for tests only.
package rpctest

import (
	"context"
	"errors"
	"math/big"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/luxfi/erc20-processor/pkg/contracts"
)

// Node is a fake EVM node holding gas and token balances in memory
type Node struct {
	ChainID uint64
	Token   common.Address
	Wrapper common.Address

	mu             sync.Mutex
	wrapperChainID uint64
	gas            map[common.Address]*big.Int
	tokens         map[common.Address]*big.Int
	blockNumber    uint64
	timestamp      uint64
	failures       map[string]string
	delay          time.Duration
	calls          map[string]int

	rpcServer  *rpc.Server
	httpServer *httptest.Server
}

// NewNode starts a node serving chainID. wrapper may be the zero address.
func NewNode(chainID uint64, token, wrapper common.Address) *Node {
	n := &Node{
		ChainID:     chainID,
		Token:       token,
		Wrapper:     wrapper,
		gas:         make(map[common.Address]*big.Int),
		tokens:      make(map[common.Address]*big.Int),
		blockNumber: 1_000,
		timestamp:   1_700_000_000,
		failures:    make(map[string]string),
		calls:       make(map[string]int),
	}
	n.rpcServer = rpc.NewServer()
	if err := n.rpcServer.RegisterName("eth", &ethService{n: n}); err != nil {
		panic(err)
	}
	n.httpServer = httptest.NewServer(n.rpcServer)
	return n
}

// URL returns the HTTP endpoint of the node
func (n *Node) URL() string {
	return n.httpServer.URL
}

// Close stops the node
func (n *Node) Close() {
	n.httpServer.Close()
	n.rpcServer.Stop()
}

// SetGas sets the native balance of addr
func (n *Node) SetGas(addr common.Address, v *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gas[addr] = new(big.Int).Set(v)
}

// SetToken sets the token balance of addr
func (n *Node) SetToken(addr common.Address, v *big.Int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens[addr] = new(big.Int).Set(v)
}

// SetWrapperChainID makes the wrapper contract report id instead of the
// node's chain id
func (n *Node) SetWrapperChainID(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.wrapperChainID = id
}

func (n *Node) wrapperChain() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.wrapperChainID != 0 {
		return n.wrapperChainID
	}
	return n.ChainID
}

// Fail makes every call of method ("eth_call", "eth_getBalance", ...) return msg.
// Use "wrapper" to fail only calls routed to the wrapper contract.
func (n *Node) Fail(method, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures[method] = msg
}

// SetDelay delays every answer by d
func (n *Node) SetDelay(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delay = d
}

// Calls returns how often method was called
func (n *Node) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls[method]
}

func (n *Node) enter(ctx context.Context, method string) error {
	n.mu.Lock()
	n.calls[method]++
	delay := n.delay
	msg, fail := n.failures[method]
	n.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return errors.New(msg)
	}
	return nil
}

func (n *Node) balance(m map[common.Address]*big.Int, addr common.Address) *big.Int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if v, ok := m[addr]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

type ethService struct {
	n *Node
}

type callArgs struct {
	From  *common.Address `json:"from"`
	To    *common.Address `json:"to"`
	Data  hexutil.Bytes   `json:"data"`
	Input hexutil.Bytes   `json:"input"`
}

func (s *ethService) ChainId(ctx context.Context) (hexutil.Uint64, error) {
	if err := s.n.enter(ctx, "eth_chainId"); err != nil {
		return 0, err
	}
	return hexutil.Uint64(s.n.ChainID), nil
}

func (s *ethService) GetBlockByNumber(ctx context.Context, block string, fullTx bool) (*types.Header, error) {
	if err := s.n.enter(ctx, "eth_getBlockByNumber"); err != nil {
		return nil, err
	}
	number := s.n.blockNumber
	if block != "latest" {
		v, err := hexutil.DecodeUint64(block)
		if err != nil {
			return nil, err
		}
		if v > s.n.blockNumber {
			return nil, nil
		}
		number = v
	}
	return &types.Header{
		Number:     new(big.Int).SetUint64(number),
		Time:       s.n.timestamp,
		Difficulty: new(big.Int),
		GasLimit:   30_000_000,
		Extra:      []byte{},
	}, nil
}

func (s *ethService) GetBalance(ctx context.Context, addr common.Address, block string) (*hexutil.Big, error) {
	if err := s.n.enter(ctx, "eth_getBalance"); err != nil {
		return nil, err
	}
	return (*hexutil.Big)(s.n.balance(s.n.gas, addr)), nil
}

func (s *ethService) Call(ctx context.Context, args callArgs, block string) (hexutil.Bytes, error) {
	if err := s.n.enter(ctx, "eth_call"); err != nil {
		return nil, err
	}
	data := args.Input
	if len(data) == 0 {
		data = args.Data
	}
	if args.To == nil {
		return nil, errors.New("contract creation not supported")
	}

	switch {
	case *args.To == s.n.Token:
		holder, err := contracts.DecodeBalanceOfInput(data)
		if err != nil {
			return nil, errors.New("execution reverted")
		}
		return contracts.EncodeUint256(s.n.balance(s.n.tokens, holder)), nil

	case s.n.Wrapper != (common.Address{}) && *args.To == s.n.Wrapper:
		if err := s.n.enter(ctx, "wrapper"); err != nil {
			return nil, err
		}
		target, inner, err := contracts.DecodeCallWithDetailsInput(data)
		if err != nil || target != s.n.Token {
			return nil, errors.New("execution reverted")
		}
		holder, err := contracts.DecodeBalanceOfInput(inner)
		if err != nil {
			return nil, errors.New("execution reverted")
		}
		var from common.Address
		if args.From != nil {
			from = *args.From
		}
		return contracts.EncodeCallWithDetailsResult(&contracts.CallDetails{
			ChainID:        new(big.Int).SetUint64(s.n.wrapperChain()),
			BlockNumber:    s.n.blockNumber,
			BlockTimestamp: time.Unix(int64(s.n.timestamp), 0).UTC(),
			EthBalance:     s.n.balance(s.n.gas, from),
			Result:         contracts.EncodeUint256(s.n.balance(s.n.tokens, holder)),
		})
	}
	// no code at the address
	return hexutil.Bytes{}, nil
}
