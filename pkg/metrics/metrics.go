package metrics

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "erc20"

// Outcomes recorded for an RPC call
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
)

// Metrics collects RPC call statistics for one invocation
type Metrics struct {
	registry *prometheus.Registry

	RPCRequests  *prometheus.CounterVec
	RPCDuration  *prometheus.HistogramVec
	RPCFailovers prometheus.Counter
	Accounts     prometheus.Gauge
}

// New creates a Metrics instance backed by a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "RPC requests by method and outcome.",
		}, []string{"method", "outcome"}),
		RPCDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "RPC request latency by method.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"method"}),
		RPCFailovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "failovers_total",
			Help:      "Switches to the next configured RPC endpoint.",
		}),
		Accounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accounts_checked",
			Help:      "Accounts resolved by the last balance check.",
		}),
	}
	m.registry.MustRegister(m.RPCRequests, m.RPCDuration, m.RPCFailovers, m.Accounts)
	return m
}

// ObserveRPC records one RPC call
func (m *Metrics) ObserveRPC(method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RPCRequests.WithLabelValues(method, outcome).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// Failover records a switch to the next endpoint
func (m *Metrics) Failover() {
	if m == nil {
		return
	}
	m.RPCFailovers.Inc()
}

// SetAccounts records the number of accounts resolved
func (m *Metrics) SetAccounts(n int) {
	if m == nil {
		return
	}
	m.Accounts.Set(float64(n))
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteText writes all metrics in the Prometheus text exposition format
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteFile dumps the metrics to path
func (m *Metrics) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create metrics file: %w", err)
	}
	if err := m.WriteText(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
