// Package scheduler implements the agent's single-threaded control loop.
// One tick fires every collection interval and, in fixed order, collects
// samples and then runs whichever of flush, service report and heartbeat
// are due. Due times are wall-clock based: an action's timestamp resets
// whether or not it succeeded.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DrainTimeout bounds the final flush at shutdown.
const DrainTimeout = 15 * time.Second

// Pipeline is the metric buffer driven by the loop.
type Pipeline interface {
	CollectTick(ctx context.Context) int
	Flush(ctx context.Context) error
	Drain(ctx context.Context) error
}

// Reporter sends one service snapshot.
type Reporter interface {
	Report(ctx context.Context) error
}

// Heartbeater reports liveness.
type Heartbeater interface {
	Heartbeat(ctx context.Context) error
}

// Intervals are the four action periods.
type Intervals struct {
	Collection time.Duration
	Send       time.Duration
	Services   time.Duration
	Heartbeat  time.Duration
}

// Scheduler multiplexes the four actions on one timer.
type Scheduler struct {
	pipeline  Pipeline
	reporter  Reporter
	heartbeat Heartbeater
	intervals Intervals
	logger    *zap.Logger
	now       func() time.Time

	lastFlush     time.Time
	lastServices  time.Time
	lastHeartbeat time.Time
}

// New creates a Scheduler. Timestamps start at construction time, so the
// first flush, report and heartbeat happen one full interval after start.
func New(p Pipeline, r Reporter, h Heartbeater, intervals Intervals, logger *zap.Logger) *Scheduler {
	s := &Scheduler{
		pipeline:  p,
		reporter:  r,
		heartbeat: h,
		intervals: intervals,
		logger:    logger,
		now:       time.Now,
	}
	s.Reset(s.now())
	return s
}

// Reset sets every "last run" timestamp to t.
func (s *Scheduler) Reset(t time.Time) {
	s.lastFlush = t
	s.lastServices = t
	s.lastHeartbeat = t
}

// Run ticks immediately and then every collection interval until ctx is
// cancelled. Cancellation is observed between ticks only; work inside a
// tick is bounded by the transport timeout. Before returning, the buffer is
// drained once with a fresh deadline.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.intervals.Collection)
	defer ticker.Stop()

	tickCtx := context.WithoutCancel(ctx)

	s.logger.Info("Scheduler started",
		zap.Duration("collection", s.intervals.Collection),
		zap.Duration("send", s.intervals.Send),
		zap.Duration("services", s.intervals.Services),
		zap.Duration("heartbeat", s.intervals.Heartbeat))

	s.Tick(tickCtx, s.now())

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				s.drain()
				return
			}
			s.Tick(tickCtx, s.now())
		}
	}
}

// Tick runs one scheduling step at time now.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.pipeline.CollectTick(ctx)

	if now.Sub(s.lastFlush) >= s.intervals.Send {
		s.lastFlush = now
		// Failures are logged by the pipeline and retried next interval.
		_ = s.pipeline.Flush(ctx)
	}

	if now.Sub(s.lastServices) >= s.intervals.Services {
		s.lastServices = now
		_ = s.reporter.Report(ctx)
	}

	if now.Sub(s.lastHeartbeat) >= s.intervals.Heartbeat {
		s.lastHeartbeat = now
		if err := s.heartbeat.Heartbeat(ctx); err != nil {
			s.logger.Warn("Heartbeat failed", zap.Error(err))
		} else {
			s.logger.Debug("Heartbeat sent")
		}
	}
}

func (s *Scheduler) drain() {
	s.logger.Info("Shutting down, flushing pending metrics")

	ctx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
	defer cancel()

	if err := s.pipeline.Drain(ctx); err != nil {
		s.logger.Warn("Final flush failed, pending metrics discarded", zap.Error(err))
		return
	}
	s.logger.Info("Scheduler stopped")
}
