// Package reporter sends the periodic service (process) snapshot.
// Snapshots are not buffered or retried: a failed send is superseded by
// the next interval's fresh list.
package reporter

import (
	"context"

	"go.uber.org/zap"

	"github.com/shelteragent/agent/internal/models"
)

// ServiceSource produces the current service snapshot.
type ServiceSource interface {
	Collect(ctx context.Context) ([]models.ServiceRecord, error)
}

// ServiceSender delivers a snapshot.
type ServiceSender interface {
	SendServices(ctx context.Context, services []models.ServiceRecord) error
}

// Reporter collects and sends one snapshot per call.
type Reporter struct {
	source ServiceSource
	sender ServiceSender
	logger *zap.Logger
}

// New creates a Reporter.
func New(source ServiceSource, sender ServiceSender, logger *zap.Logger) *Reporter {
	return &Reporter{source: source, sender: sender, logger: logger}
}

// Report collects the snapshot and sends it in one request. An empty
// snapshot is not sent. Errors are logged and returned.
func (r *Reporter) Report(ctx context.Context) error {
	services, err := r.source.Collect(ctx)
	if err != nil {
		r.logger.Error("Service collection failed", zap.Error(err))
		return err
	}
	if len(services) == 0 {
		r.logger.Debug("No services to report")
		return nil
	}

	if err := r.sender.SendServices(ctx, services); err != nil {
		r.logger.Warn("Service report failed",
			zap.Int("count", len(services)),
			zap.Error(err))
		return err
	}

	r.logger.Info("Reported services", zap.Int("count", len(services)))
	return nil
}
