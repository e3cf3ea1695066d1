// Package datadog implements a Datadog backend for the metrics package.
//
// It adapts metrics.Backend to DogStatsD using the official statsd client,
// translating metric labels into Datadog tags.
package datadog

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/DataDog/datadog-go/v5/statsd"

	"tableflow/internal/metrics"
)

// Config holds Datadog backend configuration.
type Config struct {
	// Addr is the DogStatsD address, e.g. "127.0.0.1:8125" or "unix:///path/to/socket".
	Addr string

	// Namespace is an optional prefix added to all metric names, e.g. "tableflow.".
	Namespace string

	// GlobalTags are tags applied to all metrics emitted by this backend,
	// e.g. []string{"env:prod","service:tableflow"}.
	GlobalTags []string
}

// client is the subset of statsd.ClientInterface the backend uses.
type client interface {
	Count(name string, value int64, tags []string, rate float64) error
	Histogram(name string, value float64, tags []string, rate float64) error
	Flush() error
	Close() error
}

// Backend is a Datadog implementation of metrics.Backend. Send errors are
// collected and reported by the next Flush.
type Backend struct {
	client client

	mu      sync.Mutex
	dropped int
	lastErr error
}

// NewBackend constructs a Datadog metrics backend from cfg. Addr is required.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("datadog: Addr is required")
	}

	var opts []statsd.Option
	if cfg.Namespace != "" {
		opts = append(opts, statsd.WithNamespace(cfg.Namespace))
	}
	if len(cfg.GlobalTags) > 0 {
		opts = append(opts, statsd.WithTags(cfg.GlobalTags))
	}

	c, err := statsd.New(cfg.Addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("datadog: create client: %w", err)
	}
	return &Backend{client: c}, nil
}

// IncCounter implements metrics.Backend.IncCounter using a Datadog Count metric.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	// DogStatsD Count expects an int64; fractional deltas are rounded.
	b.note(b.client.Count(name, int64(math.Round(delta)), labelsToTags(labels), 1))
}

// ObserveHistogram implements metrics.Backend.ObserveHistogram.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if b.client == nil {
		return
	}
	b.note(b.client.Histogram(name, value, labelsToTags(labels), 1))
}

func (b *Backend) note(err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	b.dropped++
	b.lastErr = err
	b.mu.Unlock()
}

// Flush implements metrics.Backend.Flush. It also reports how many metrics
// failed to send since the previous Flush.
func (b *Backend) Flush() error {
	if b.client == nil {
		return nil
	}
	err := b.client.Flush()

	b.mu.Lock()
	dropped, last := b.dropped, b.lastErr
	b.dropped, b.lastErr = 0, nil
	b.mu.Unlock()
	if dropped > 0 {
		err = errors.Join(err, fmt.Errorf("datadog: %d metrics not sent: %w", dropped, last))
	}
	return err
}

// Close flushes and releases the client; call it once at shutdown.
func (b *Backend) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

// labelsToTags converts labels into sorted Datadog tags "key:value".
func labelsToTags(lbls metrics.Labels) []string {
	if len(lbls) == 0 {
		return nil
	}
	out := make([]string, 0, len(lbls))
	for k, v := range lbls {
		out = append(out, fmt.Sprintf("%s:%s", k, v))
	}
	sort.Strings(out)
	return out
}
