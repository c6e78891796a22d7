// Package pipeline buffers collected metric samples in memory and flushes
// them to the collector in one request. The buffer is cleared only on an
// acknowledged send, and only of the samples that send carried.
package pipeline

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shelteragent/agent/internal/models"
)

// DefaultMaxSamples bounds the buffer when no limit is configured.
const DefaultMaxSamples = 10000

const collectTimeout = 10 * time.Second

// Source produces one round of samples in reporting order.
type Source interface {
	CollectAll(ctx context.Context) []models.MetricSample
}

// MetricSender delivers a batch of samples.
type MetricSender interface {
	SendMetrics(ctx context.Context, samples []models.MetricSample) error
}

// Spooler persists undelivered samples across restarts.
type Spooler interface {
	Store(samples []models.MetricSample) error
	RetrieveAll() ([]models.MetricSample, error)
}

// Pipeline owns the metric buffer.
type Pipeline struct {
	source     Source
	sender     MetricSender
	spool      Spooler
	maxSamples int
	logger     *zap.Logger

	mu      sync.Mutex
	buf     []models.MetricSample
	dropped uint64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSpool enables writing undelivered samples to s at shutdown.
func WithSpool(s Spooler) Option {
	return func(p *Pipeline) { p.spool = s }
}

// WithMaxSamples overrides the buffer bound.
func WithMaxSamples(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxSamples = n
		}
	}
}

// New creates a Pipeline reading from source and delivering through sender.
func New(source Source, sender MetricSender, logger *zap.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:     source,
		sender:     sender,
		maxSamples: DefaultMaxSamples,
		logger:     logger,
		buf:        make([]models.MetricSample, 0),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CollectTick runs one collection round and appends its samples.
// It returns the number of samples appended.
func (p *Pipeline) CollectTick(ctx context.Context) int {
	collectCtx, cancel := context.WithTimeout(ctx, collectTimeout)
	defer cancel()

	samples := p.source.CollectAll(collectCtx)
	p.Append(samples...)

	p.logger.Debug("Collected metrics",
		zap.Int("samples", len(samples)),
		zap.Int("buffered", p.Len()))
	return len(samples)
}

// Append adds samples to the end of the buffer, dropping the oldest
// samples once the bound is exceeded.
func (p *Pipeline) Append(samples ...models.MetricSample) {
	if len(samples) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf = append(p.buf, samples...)
	if over := len(p.buf) - p.maxSamples; over > 0 {
		p.buf = append(p.buf[:0:0], p.buf[over:]...)
		p.dropped += uint64(over)
		p.logger.Warn("Metric buffer full, dropped oldest samples",
			zap.Int("dropped", over),
			zap.Uint64("dropped_total", p.dropped),
			zap.Int("max_samples", p.maxSamples))
	}
}

// Flush sends the whole buffer in one request. An empty buffer is a no-op.
// On success exactly the samples that were sent are removed; samples
// appended while the request was in flight stay. On failure the buffer is
// left as is for the next attempt.
func (p *Pipeline) Flush(ctx context.Context) error {
	p.mu.Lock()
	if len(p.buf) == 0 {
		p.mu.Unlock()
		return nil
	}
	batch := make([]models.MetricSample, len(p.buf))
	copy(batch, p.buf)
	droppedAtSnapshot := p.dropped
	p.mu.Unlock()

	if err := p.sender.SendMetrics(ctx, batch); err != nil {
		p.logger.Warn("Metrics flush failed, keeping buffer",
			zap.Int("count", len(batch)),
			zap.Error(err))
		return err
	}

	p.mu.Lock()
	// Samples of this batch that were already evicted by the bound while the
	// request was in flight are no longer at the front.
	remove := len(batch) - int(p.dropped-droppedAtSnapshot)
	if remove > len(p.buf) {
		remove = len(p.buf)
	}
	if remove > 0 {
		p.buf = append(p.buf[:0:0], p.buf[remove:]...)
	}
	remaining := len(p.buf)
	p.mu.Unlock()

	p.logger.Info("Flushed metrics",
		zap.Int("count", len(batch)),
		zap.Int("remaining", remaining))
	return nil
}

// Drain performs the final best-effort flush at shutdown. If it fails and a
// spool is configured, the pending samples are written there instead.
func (p *Pipeline) Drain(ctx context.Context) error {
	err := p.Flush(ctx)
	if err == nil || p.spool == nil {
		return err
	}

	pending := p.Pending()
	if serr := p.spool.Store(pending); serr != nil {
		p.logger.Error("Failed to spool pending metrics", zap.Int("count", len(pending)), zap.Error(serr))
		return err
	}

	p.mu.Lock()
	if len(pending) <= len(p.buf) {
		p.buf = append(p.buf[:0:0], p.buf[len(pending):]...)
	}
	p.mu.Unlock()

	p.logger.Info("Spooled pending metrics", zap.Int("count", len(pending)))
	return nil
}

// Restore loads spooled samples into the buffer. It is called once at
// startup before the first collection.
func (p *Pipeline) Restore() (int, error) {
	if p.spool == nil {
		return 0, nil
	}
	samples, err := p.spool.RetrieveAll()
	if err != nil {
		return 0, err
	}
	p.Append(samples...)
	if len(samples) > 0 {
		p.logger.Info("Restored spooled metrics", zap.Int("count", len(samples)))
	}
	return len(samples), nil
}

// Len returns the number of buffered samples.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// Pending returns a copy of the buffered samples in order.
func (p *Pipeline) Pending() []models.MetricSample {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.MetricSample, len(p.buf))
	copy(out, p.buf)
	return out
}

// Dropped returns how many samples the bound has evicted so far.
func (p *Pipeline) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}
