// Package agent wires the runtime together once at startup: identity,
// transport, registration, metric pipeline, service reporter and scheduler.
// An Agent holds every component explicitly; there is no package state.
package agent

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/shelteragent/agent/internal/collector"
	"github.com/shelteragent/agent/internal/config"
	"github.com/shelteragent/agent/internal/identity"
	"github.com/shelteragent/agent/internal/models"
	"github.com/shelteragent/agent/internal/pipeline"
	"github.com/shelteragent/agent/internal/registration"
	"github.com/shelteragent/agent/internal/reporter"
	"github.com/shelteragent/agent/internal/scheduler"
	"github.com/shelteragent/agent/internal/sender"
	"github.com/shelteragent/agent/internal/spool"
	"github.com/shelteragent/agent/internal/transport"
)

// Agent is the running agent's context.
type Agent struct {
	file     *config.File
	logger   *zap.Logger
	identity identity.Identity

	sender       *sender.Sender
	registration *registration.Manager
	pipeline     *pipeline.Pipeline
	scheduler    *scheduler.Scheduler
}

type options struct {
	collectors []collector.Collector
	services   reporter.ServiceSource
	inventory  registration.InventoryFunc
	httpClient *http.Client
}

// Option overrides a collaborator, mainly for tests.
type Option func(*options)

// WithCollectors replaces the default metric collectors.
func WithCollectors(c ...collector.Collector) Option {
	return func(o *options) { o.collectors = c }
}

// WithServiceSource replaces the process snapshot collector.
func WithServiceSource(s reporter.ServiceSource) Option {
	return func(o *options) { o.services = s }
}

// WithInventory replaces the host inventory probe used at registration.
func WithInventory(f registration.InventoryFunc) Option {
	return func(o *options) { o.inventory = f }
}

// WithHTTPClient sends through hc instead of a client built from config.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// New validates the configuration and builds every component. It performs
// no network calls.
func New(ctx context.Context, file *config.File, logger *zap.Logger, opts ...Option) (*Agent, error) {
	cfg := file.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.collectors == nil {
		o.collectors = collector.Defaults()
	}
	if o.services == nil {
		o.services = collector.NewServiceCollector(collector.DefaultServiceLimit, logger.Named("services"))
	}
	if o.inventory == nil {
		invLogger := logger.Named("inventory")
		o.inventory = func(ctx context.Context) models.Inventory {
			return collector.HostInventory(ctx, invLogger)
		}
	}

	var client *transport.Client
	if o.httpClient != nil {
		client = transport.NewWithHTTPClient(o.httpClient)
	} else {
		client = transport.New(transport.Options{VerifySSL: cfg.Server.VerifySSL})
	}
	if !cfg.Server.VerifySSL {
		logger.Warn("TLS certificate verification is disabled")
	}

	id := identity.Resolve(ctx, cfg.Agent.HWID, cfg.Agent.Hostname)
	snd := sender.New(client, cfg.BaseURL(), id, cfg.Agent.APIToken, logger.Named("sender"))

	registry := collector.NewRegistry(logger.Named("collector"))
	for _, c := range o.collectors {
		registry.Register(c)
	}
	active := registry.Collectors()
	names := make([]string, 0, len(active))
	for _, c := range active {
		names = append(names, c.Name())
	}
	if len(names) == 0 {
		logger.Warn("No collectors available, only service reports will be sent")
	} else {
		logger.Info("Collectors ready", zap.Strings("collectors", names))
	}

	pipeOpts := []pipeline.Option{pipeline.WithMaxSamples(cfg.Buffer.MaxSamples)}
	if cfg.Buffer.SpoolDir != "" {
		sp, err := spool.New(cfg.Buffer.SpoolDir, cfg.Buffer.MaxSamples, logger.Named("spool"))
		if err != nil {
			return nil, fmt.Errorf("init spool: %w", err)
		}
		pipeOpts = append(pipeOpts, pipeline.WithSpool(sp))
	}
	pipe := pipeline.New(registry, snd, logger.Named("pipeline"), pipeOpts...)

	rep := reporter.New(o.services, snd, logger.Named("reporter"))

	sched := scheduler.New(pipe, rep, snd, scheduler.Intervals{
		Collection: cfg.Intervals.Collection.Duration,
		Send:       cfg.Intervals.Send.Duration,
		Services:   cfg.Intervals.Services.Duration,
		Heartbeat:  cfg.Intervals.Heartbeat.Duration,
	}, logger.Named("scheduler"))

	return &Agent{
		file:         file,
		logger:       logger,
		identity:     id,
		sender:       snd,
		registration: registration.New(snd, file, o.inventory, logger.Named("registration")),
		pipeline:     pipe,
		scheduler:    sched,
	}, nil
}

// Identity returns the identity the agent reports as.
func (a *Agent) Identity() identity.Identity { return a.identity }

// Bootstrap obtains a valid token and restores spooled samples. A returned
// error means the agent must not start.
func (a *Agent) Bootstrap(ctx context.Context) error {
	if err := a.registration.Ensure(ctx); err != nil {
		return err
	}

	if n, err := a.pipeline.Restore(); err != nil {
		a.logger.Warn("Failed to restore spooled metrics", zap.Error(err))
	} else if n > 0 {
		a.logger.Info("Pending metrics from previous run", zap.Int("count", n))
	}
	return nil
}

// Run bootstraps and then runs the scheduler until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("Starting agent",
		zap.String("agent_id", a.identity.AgentID),
		zap.String("server", a.file.Config.BaseURL()))

	if err := a.Bootstrap(ctx); err != nil {
		return err
	}

	a.scheduler.Run(ctx)
	a.logger.Info("Agent stopped")
	return nil
}
