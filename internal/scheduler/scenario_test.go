package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shelteragent/agent/internal/models"
	"github.com/shelteragent/agent/internal/pipeline"
)

type fiveTypes struct{}

func (fiveTypes) CollectAll(context.Context) []models.MetricSample {
	return []models.MetricSample{
		{MetricType: models.MetricCPU, Unit: "%"},
		{MetricType: models.MetricMemory, Unit: "%"},
		{MetricType: models.MetricDisk, Unit: "%"},
		{MetricType: models.MetricNetwork, Unit: "Mbps"},
		{MetricType: models.MetricIO, Unit: "MB/s"},
	}
}

type batchSender struct {
	batches [][]models.MetricSample
}

func (b *batchSender) SendMetrics(_ context.Context, s []models.MetricSample) error {
	b.batches = append(b.batches, s)
	return nil
}

type noop struct{}

func (noop) Report(context.Context) error    { return nil }
func (noop) Heartbeat(context.Context) error { return nil }

func TestThreeTicksFlushedInOneRequest(t *testing.T) {
	snd := &batchSender{}
	p := pipeline.New(fiveTypes{}, snd, zap.NewNop())

	start := time.Unix(1_700_000_000, 0)
	s := New(p, noop{}, noop{}, Intervals{
		Collection: 10 * time.Second,
		Send:       30 * time.Second,
		Services:   time.Hour,
		Heartbeat:  time.Hour,
	}, zap.NewNop())
	s.Reset(start)

	for _, at := range []time.Duration{10, 20, 30} {
		s.Tick(context.Background(), start.Add(at*time.Second))
	}

	require.Len(t, snd.batches, 1)
	assert.Len(t, snd.batches[0], 15)
	assert.Zero(t, p.Len())
}
