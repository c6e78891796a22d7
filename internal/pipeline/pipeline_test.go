package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/shelteragent/agent/internal/models"
)

var tickTypes = []models.MetricType{models.MetricCPU, models.MetricMemory, models.MetricDisk, models.MetricNetwork, models.MetricIO}

// roundSource yields one sample per metric type per call, numbering values
// so order can be checked.
type roundSource struct {
	n float64
}

func (s *roundSource) CollectAll(context.Context) []models.MetricSample {
	out := make([]models.MetricSample, 0, len(tickTypes))
	for _, mt := range tickTypes {
		s.n++
		out = append(out, models.MetricSample{MetricType: mt, Value: s.n, Unit: "%"})
	}
	return out
}

type fakeSender struct {
	batches [][]models.MetricSample
	err     error
	during  func()
}

func (f *fakeSender) SendMetrics(_ context.Context, samples []models.MetricSample) error {
	f.batches = append(f.batches, samples)
	if f.during != nil {
		f.during()
	}
	return f.err
}

type memSpool struct {
	stored []models.MetricSample
	err    error
}

func (m *memSpool) Store(s []models.MetricSample) error {
	if m.err != nil {
		return m.err
	}
	m.stored = append(m.stored, s...)
	return nil
}

func (m *memSpool) RetrieveAll() ([]models.MetricSample, error) {
	out := m.stored
	m.stored = nil
	return out, nil
}

func sample(v float64) models.MetricSample {
	return models.MetricSample{MetricType: models.MetricCPU, Value: v, Unit: "%"}
}

func valuesOf(s []models.MetricSample) []float64 {
	out := make([]float64, 0, len(s))
	for _, m := range s {
		out = append(out, m.Value)
	}
	return out
}

func TestCollectTick_AppendsInFixedOrder(t *testing.T) {
	p := New(&roundSource{}, &fakeSender{}, zap.NewNop())

	assert.Equal(t, 5, p.CollectTick(context.Background()))
	assert.Equal(t, 5, p.CollectTick(context.Background()))

	pending := p.Pending()
	require.Len(t, pending, 10)
	for i, s := range pending {
		assert.Equal(t, tickTypes[i%5], s.MetricType)
		assert.Equal(t, float64(i+1), s.Value)
	}
}

func TestFlush_EmptyIsNoop(t *testing.T) {
	snd := &fakeSender{}
	p := New(&roundSource{}, snd, zap.NewNop())

	require.NoError(t, p.Flush(context.Background()))
	assert.Empty(t, snd.batches)
}

func TestFlush_SuccessClearsOnlySnapshot(t *testing.T) {
	snd := &fakeSender{}
	p := New(&roundSource{}, snd, zap.NewNop())
	p.Append(sample(1), sample(2), sample(3))

	// Samples collected while the request is in flight must survive.
	snd.during = func() { p.Append(sample(4), sample(5)) }

	require.NoError(t, p.Flush(context.Background()))
	require.Len(t, snd.batches, 1)
	assert.Equal(t, []float64{1, 2, 3}, valuesOf(snd.batches[0]))
	assert.Equal(t, []float64{4, 5}, valuesOf(p.Pending()))
}

func TestFlush_FailureKeepsBuffer(t *testing.T) {
	snd := &fakeSender{err: errors.New("status 503")}
	p := New(&roundSource{}, snd, zap.NewNop())
	p.Append(sample(1), sample(2))

	require.Error(t, p.Flush(context.Background()))
	assert.Equal(t, []float64{1, 2}, valuesOf(p.Pending()))

	p.Append(sample(3))
	snd.err = nil
	require.NoError(t, p.Flush(context.Background()))
	assert.Equal(t, []float64{1, 2, 3}, valuesOf(snd.batches[1]), "retry carries old samples first")
	assert.Zero(t, p.Len())
}

func TestFlush_ThreeTicksOneRequest(t *testing.T) {
	snd := &fakeSender{}
	p := New(&roundSource{}, snd, zap.NewNop())
	for i := 0; i < 3; i++ {
		p.CollectTick(context.Background())
	}

	require.NoError(t, p.Flush(context.Background()))
	require.Len(t, snd.batches, 1)
	assert.Len(t, snd.batches[0], 15)
	assert.Zero(t, p.Len())
}

func TestAppend_DropsOldestOverLimit(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	p := New(&roundSource{}, &fakeSender{}, zap.New(core), WithMaxSamples(3))

	p.Append(sample(1), sample(2))
	p.Append(sample(3), sample(4), sample(5))

	assert.Equal(t, []float64{3, 4, 5}, valuesOf(p.Pending()))
	assert.Equal(t, uint64(2), p.Dropped())
	assert.Equal(t, 1, logs.FilterMessage("Metric buffer full, dropped oldest samples").Len())
}

func TestFlush_EvictionDuringSendNotDoubleRemoved(t *testing.T) {
	snd := &fakeSender{}
	p := New(&roundSource{}, snd, zap.NewNop(), WithMaxSamples(3))
	p.Append(sample(1), sample(2), sample(3))

	// Two new samples evict 1 and 2 from the in-flight snapshot.
	snd.during = func() { p.Append(sample(4), sample(5)) }

	require.NoError(t, p.Flush(context.Background()))
	assert.Equal(t, []float64{4, 5}, valuesOf(p.Pending()))
}

func TestDrain_SpoolsOnFailure(t *testing.T) {
	sp := &memSpool{}
	p := New(&roundSource{}, &fakeSender{err: errors.New("down")}, zap.NewNop(), WithSpool(sp))
	p.Append(sample(1), sample(2))

	require.NoError(t, p.Drain(context.Background()))
	assert.Equal(t, []float64{1, 2}, valuesOf(sp.stored))
	assert.Zero(t, p.Len())
}

func TestDrain_WithoutSpoolReturnsError(t *testing.T) {
	p := New(&roundSource{}, &fakeSender{err: errors.New("down")}, zap.NewNop())
	p.Append(sample(1))

	require.Error(t, p.Drain(context.Background()))
	assert.Equal(t, 1, p.Len())
}

func TestDrain_SpoolFailureReturnsSendError(t *testing.T) {
	sendErr := errors.New("down")
	p := New(&roundSource{}, &fakeSender{err: sendErr}, zap.NewNop(), WithSpool(&memSpool{err: errors.New("disk full")}))
	p.Append(sample(1))

	require.ErrorIs(t, p.Drain(context.Background()), sendErr)
	assert.Equal(t, 1, p.Len())
}

func TestRestore_LoadsSpoolFirst(t *testing.T) {
	sp := &memSpool{stored: []models.MetricSample{sample(100), sample(101)}}
	p := New(&roundSource{}, &fakeSender{}, zap.NewNop(), WithSpool(sp))

	n, err := p.Restore()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	p.CollectTick(context.Background())
	pending := p.Pending()
	require.Len(t, pending, 7)
	assert.Equal(t, 100.0, pending[0].Value)
	assert.Equal(t, 101.0, pending[1].Value)
}
