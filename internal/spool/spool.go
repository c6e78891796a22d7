// Package spool provides a local file-based store for metric samples that
// could not be delivered before shutdown. Each batch is written as a
// timestamped JSON file and loaded back, oldest first, on the next start.
package spool

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shelteragent/agent/internal/models"
)

const fileExt = ".json"

// Spool stores batches of samples in a directory.
type Spool struct {
	dir        string
	maxSamples int
	logger     *zap.Logger
	mu         sync.Mutex
	now        func() time.Time
}

// New creates a spool at dir, creating the directory if needed.
// maxSamples bounds the total number of samples kept on disk.
func New(dir string, maxSamples int, logger *zap.Logger) (*Spool, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Spool{
		dir:        dir,
		maxSamples: maxSamples,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Store writes samples to a new file. When the batch itself is larger than
// the bound, the oldest samples are cut; when the files on disk plus the
// batch exceed it, the oldest files are dropped first.
func (s *Spool) Store(samples []models.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSamples > 0 && len(samples) > s.maxSamples {
		s.logger.Warn("Spool batch exceeds limit, dropping oldest samples",
			zap.Int("dropped", len(samples)-s.maxSamples))
		samples = samples[len(samples)-s.maxSamples:]
	}
	s.enforceLimit(len(samples))

	data, err := json.Marshal(samples)
	if err != nil {
		return err
	}

	name := filepath.Join(s.dir, s.now().UTC().Format("20060102T150405.000000000")+fileExt)
	tmp := name + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, name)
}

// RetrieveAll reads every spooled batch in chronological order, removes the
// files and returns the samples concatenated. Corrupted files are removed
// and logged.
func (s *Spool) RetrieveAll() ([]models.MetricSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.files()
	if err != nil {
		return nil, err
	}

	var samples []models.MetricSample
	for _, path := range files {
		batch, err := readBatch(path)
		if err != nil {
			s.logger.Warn("Failed to read spool file, removing",
				zap.String("file", path),
				zap.Error(err))
			_ = os.Remove(path)
			continue
		}
		samples = append(samples, batch...)
		if err := os.Remove(path); err != nil {
			s.logger.Warn("Failed to remove spool file", zap.String("file", path), zap.Error(err))
		}
	}
	return samples, nil
}

// Count returns the number of spooled batch files.
func (s *Spool) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.files()
	if err != nil {
		return 0
	}
	return len(files)
}

// files lists spool files sorted by name, which is chronological.
// Must be called with s.mu held.
func (s *Spool) files() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		out = append(out, filepath.Join(s.dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// enforceLimit drops the oldest files until incoming more samples fit.
// Must be called with s.mu held.
func (s *Spool) enforceLimit(incoming int) {
	if s.maxSamples <= 0 {
		return
	}
	files, err := s.files()
	if err != nil {
		return
	}

	counts := make([]int, len(files))
	total := incoming
	for i, path := range files {
		batch, err := readBatch(path)
		if err == nil {
			counts[i] = len(batch)
		}
		total += counts[i]
	}

	for i := 0; total > s.maxSamples && i < len(files); i++ {
		if err := os.Remove(files[i]); err != nil {
			s.logger.Warn("Failed to remove oldest spool file",
				zap.String("file", files[i]),
				zap.Error(err))
			continue
		}
		s.logger.Warn("Spool full, dropped oldest batch",
			zap.String("file", files[i]),
			zap.Int("samples", counts[i]))
		total -= counts[i]
	}
}

func readBatch(path string) ([]models.MetricSample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var batch []models.MetricSample
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, err
	}
	return batch, nil
}
