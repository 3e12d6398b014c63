package rpc

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/luxfi/erc20-processor/pkg/core"
	"github.com/luxfi/erc20-processor/pkg/metrics"
)

const (
	defaultTimeout         = 15 * time.Second
	defaultInitialInterval = 250 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
)

// Options configures a Pool
type Options struct {
	Endpoints []string
	// Timeout bounds every single call
	Timeout time.Duration
	// Retries is the number of extra attempts per endpoint. Zero fails fast.
	Retries int
	// InitialInterval is the first retry delay
	InitialInterval time.Duration

	Logger  log.Logger
	Metrics *metrics.Metrics
	Dial    DialFunc
}

type endpoint struct {
	url    string
	label  string
	once   sync.Once
	client Client
	err    error
}

// Pool implements Client over an ordered endpoint list. Calls go to the
// current endpoint and move to the next one on transport failures.
type Pool struct {
	opts      Options
	endpoints []*endpoint

	mu      sync.Mutex
	current int
}

var _ Client = (*Pool)(nil)

// NewPool validates opts and returns a pool. Endpoints are dialed lazily.
func NewPool(opts Options) (*Pool, error) {
	if len(opts.Endpoints) == 0 {
		return nil, core.ErrInvalidConfig("no rpc endpoints configured")
	}
	if opts.Retries < 0 {
		return nil, core.ErrInvalidConfigf("retries must not be negative, got %d", opts.Retries)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = defaultInitialInterval
	}
	if opts.Dial == nil {
		opts.Dial = DialHTTP
	}
	if opts.Logger == nil {
		opts.Logger = log.Root()
	}

	p := &Pool{opts: opts}
	for _, u := range opts.Endpoints {
		p.endpoints = append(p.endpoints, &endpoint{url: u, label: Redact(u)})
	}
	return p, nil
}

// Endpoint returns the redacted endpoint currently in use
func (p *Pool) Endpoint() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endpoints[p.current].label
}

func (p *Pool) ChainID(ctx context.Context) (*big.Int, error) {
	return call(ctx, p, "eth_chainId", func(ctx context.Context, c Client) (*big.Int, error) {
		return c.ChainID(ctx)
	})
}

func (p *Pool) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return call(ctx, p, "eth_getBlockByNumber", func(ctx context.Context, c Client) (*types.Header, error) {
		return c.HeaderByNumber(ctx, number)
	})
}

func (p *Pool) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return call(ctx, p, "eth_getBalance", func(ctx context.Context, c Client) (*big.Int, error) {
		return c.BalanceAt(ctx, account, blockNumber)
	})
}

func (p *Pool) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return call(ctx, p, "eth_call", func(ctx context.Context, c Client) ([]byte, error) {
		return c.CallContract(ctx, msg, blockNumber)
	})
}

// Close closes every dialed endpoint
func (p *Pool) Close() {
	for _, ep := range p.endpoints {
		if ep.client != nil {
			ep.client.Close()
		}
	}
}

func (p *Pool) dial(ctx context.Context, ep *endpoint) (Client, error) {
	ep.once.Do(func() {
		ep.client, ep.err = p.opts.Dial(ctx, ep.url, p.opts.Timeout)
		if ep.err != nil {
			ep.err = core.WrapNetwork(ep.err, ep.label, "failed to connect")
		}
	})
	return ep.client, ep.err
}

func (p *Pool) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.InitialInterval
	b.MaxInterval = defaultMaxInterval
	return b
}

// call runs fn against the current endpoint, moving forward through the
// list while failures look transport related.
func call[T any](ctx context.Context, p *Pool, method string, fn func(context.Context, Client) (T, error)) (T, error) {
	var zero T

	p.mu.Lock()
	start := p.current
	p.mu.Unlock()

	var lastErr error
	n := len(p.endpoints)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		ep := p.endpoints[idx]

		v, err := callEndpoint(ctx, p, ep, method, fn)
		if err == nil {
			if idx != start {
				p.mu.Lock()
				p.current = idx
				p.mu.Unlock()
			}
			return v, nil
		}
		lastErr = err
		if ctx.Err() != nil || IsKnownNodeError(err) {
			break
		}
		if i+1 < n {
			p.opts.Metrics.Failover()
			p.opts.Logger.Warn("RPC endpoint failed, trying next", "method", method,
				"endpoint", ep.label, "next", p.endpoints[(idx+1)%n].label, "err", err)
		}
	}
	return zero, lastErr
}

func callEndpoint[T any](ctx context.Context, p *Pool, ep *endpoint, method string, fn func(context.Context, Client) (T, error)) (T, error) {
	var zero T

	operation := func() (T, error) {
		client, err := p.dial(ctx, ep)
		if err != nil {
			return zero, backoff.Permanent(err)
		}

		callCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()

		started := time.Now()
		v, err := fn(callCtx, client)
		elapsed := time.Since(started)
		if err == nil {
			p.opts.Metrics.ObserveRPC(method, metrics.OutcomeOK, elapsed)
			return v, nil
		}

		outcome := metrics.OutcomeError
		if IsTimeout(err) {
			outcome = metrics.OutcomeTimeout
		}
		p.opts.Metrics.ObserveRPC(method, outcome, elapsed)
		p.opts.Logger.Debug("RPC call failed", "method", method, "endpoint", ep.label,
			"elapsed", elapsed, "err", err)

		err = core.WrapNetwork(err, ep.label, method+" failed")
		if ctx.Err() != nil || IsKnownNodeError(err) {
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}

	v, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.newBackOff()),
		backoff.WithMaxTries(uint(p.opts.Retries)+1),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.opts.Logger.Warn("Retrying RPC call", "method", method, "endpoint", ep.label,
				"in", next, "err", err)
		}),
	)
	if err == nil {
		return v, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}
	if !core.IsNetwork(err) {
		// context cancellation surfaced by the retry loop itself
		err = core.WrapNetwork(err, ep.label, method+" aborted")
	}
	return zero, err
}
