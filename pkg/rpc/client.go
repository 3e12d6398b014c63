// Package rpc provides a fault-aware JSON-RPC client over an ordered list of
// endpoints.
package rpc

import (
	"context"
	"errors"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// Client is the subset of ethclient.Client used for balance checks
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

var _ Client = (*ethclient.Client)(nil)

// DialFunc connects to a single endpoint
type DialFunc func(ctx context.Context, endpoint string, timeout time.Duration) (Client, error)

// DialHTTP connects to endpoint with an HTTP client bounded by timeout
func DialHTTP(ctx context.Context, endpoint string, timeout time.Duration) (Client, error) {
	c, err := gethrpc.DialOptions(ctx, endpoint,
		gethrpc.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, err
	}
	return ethclient.NewClient(c), nil
}

// knownNodeErrors are answers from a healthy node; retrying or switching
// endpoints does not change them.
var knownNodeErrors = []string{
	"transfer amount exceeds balance",
	"already known",
	"insufficient funds",
	"nonce too low",
	"execution reverted",
}

// IsKnownNodeError reports whether err is a deterministic node answer
func IsKnownNodeError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, known := range knownNodeErrors {
		if strings.Contains(msg, known) {
			return true
		}
	}
	return false
}

// IsInsufficientFunds reports whether the node refused a call for lack of gas funds
func IsInsufficientFunds(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "insufficient funds")
}

// IsTimeout reports whether err is a deadline or transport timeout
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Redact strips credentials, path and query from an endpoint so it can be logged
func Redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "<invalid endpoint>"
	}
	return u.Scheme + "://" + u.Host
}
