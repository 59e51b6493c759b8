// Package suggest contains the suggestion engine and the index manager that
// owns the active corpus/index pair.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/newsdesk/tagsuggest/internal/corpus"
	"github.com/newsdesk/tagsuggest/internal/vectorindex"
)

// ErrNotReady is returned while no corpus build has ever completed.
var ErrNotReady = errors.New("tag index not ready")

// IndexSnapshot is one published corpus/index pair. Both halves are
// immutable; a request captures one snapshot and uses it throughout.
type IndexSnapshot struct {
	Corpus *corpus.TagCorpus
	Index  vectorindex.Index
}

// ReloadResult reports the outcome of a reload. On failure Generation holds
// the generation that is still serving.
type ReloadResult struct {
	Generation uint64
	Size       int
}

// Health describes the manager's current state for the health endpoint.
type Health struct {
	Active     bool   `json:"active"`
	Generation uint64 `json:"generation"`
	Size       int    `json:"size"`
	Dim        int    `json:"embedding_dim"`
	Model      string `json:"model"`
	Backend    string `json:"backend"`
}

// Manager owns the active snapshot. Readers load it through a single atomic
// pointer and never block; the only writer is the reload path, which builds
// a full replacement off the serving path and publishes it in one store.
type Manager struct {
	source  corpus.Source
	builder *corpus.Builder
	backend vectorindex.Backend
	model   string
	cache   *corpus.Cache // optional startup cache
	logger  *slog.Logger

	active     atomic.Pointer[IndexSnapshot]
	generation atomic.Uint64 // last published generation

	// buildMu serializes reloads so at most one build runs at a time.
	buildMu sync.Mutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCorpusCache enables the on-disk corpus cache for fast startup.
func WithCorpusCache(c *corpus.Cache) ManagerOption {
	return func(m *Manager) { m.cache = c }
}

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a manager in the empty state; nothing is served until
// Load or Reload succeeds.
func NewManager(source corpus.Source, builder *corpus.Builder, backend vectorindex.Backend, model string, opts ...ManagerOption) *Manager {
	m := &Manager{
		source:  source,
		builder: builder,
		backend: backend,
		model:   model,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Current returns the active snapshot, or ErrNotReady before the first
// successful build.
func (m *Manager) Current() (*IndexSnapshot, error) {
	snap := m.active.Load()
	if snap == nil {
		return nil, ErrNotReady
	}
	return snap, nil
}

// Ready reports whether a snapshot has been published.
func (m *Manager) Ready() bool {
	return m.active.Load() != nil
}

// Load performs the startup build. When a corpus cache is configured and
// still fresh against the source, the cached embeddings are reused and the
// embedding provider is not called.
func (m *Manager) Load(ctx context.Context) error {
	if m.cache != nil {
		if err := m.loadFromCache(); err == nil {
			return nil
		} else if !errors.Is(err, corpus.ErrCacheStale) {
			m.logger.Warn("corpus cache unusable, rebuilding", "error", err)
		}
	}
	_, err := m.Reload(ctx)
	return err
}

func (m *Manager) loadFromCache() error {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	modTime, err := m.source.ModTime()
	if err != nil {
		return err
	}
	snap, err := m.cache.Load(m.model, modTime)
	if err != nil {
		return err
	}

	gen := m.generation.Load() + 1
	built := snap.Corpus(gen)
	idx, err := vectorindex.Build(m.backend, built)
	if err != nil {
		return err
	}

	m.publish(&IndexSnapshot{Corpus: built, Index: idx}, gen)
	m.logger.Info("tag index restored from cache",
		"generation", gen,
		"tags", built.Len(),
		"dim", built.Dim,
	)
	return nil
}

// Reload builds a brand-new corpus and index from the current source data
// and publishes the pair atomically. Concurrent reloads are serialized; a
// failed build leaves the active snapshot untouched and reports the
// generation that is still serving.
func (m *Manager) Reload(ctx context.Context) (ReloadResult, error) {
	m.buildMu.Lock()
	defer m.buildMu.Unlock()

	previous := ReloadResult{Generation: m.generation.Load()}
	if snap := m.active.Load(); snap != nil {
		previous.Size = snap.Corpus.Len()
	}

	start := time.Now()
	gen := m.generation.Load() + 1

	rows, err := m.source.Rows()
	if err != nil {
		return previous, fmt.Errorf("loading tag source: %w", err)
	}

	built, err := m.builder.Build(ctx, rows, gen)
	if err != nil {
		return previous, fmt.Errorf("building tag corpus: %w", err)
	}

	idx, err := vectorindex.Build(m.backend, built)
	if err != nil {
		return previous, fmt.Errorf("building vector index: %w", err)
	}

	m.publish(&IndexSnapshot{Corpus: built, Index: idx}, gen)

	if m.cache != nil {
		if err := m.cache.Save(built); err != nil {
			m.logger.Warn("failed to write corpus cache", "error", err)
		}
	}

	m.logger.Info("tag index rebuilt",
		"generation", gen,
		"tags", built.Len(),
		"dim", built.Dim,
		"backend", idx.Name(),
		"duration", time.Since(start),
	)
	return ReloadResult{Generation: gen, Size: built.Len()}, nil
}

// publish is the single point where a snapshot becomes active. In-flight
// requests keep the snapshot they captured; the superseded pair is released
// by the garbage collector once the last of them completes.
func (m *Manager) publish(snap *IndexSnapshot, gen uint64) {
	m.active.Store(snap)
	m.generation.Store(gen)
}

// Health reports the manager state.
func (m *Manager) Health() Health {
	h := Health{
		Model:   m.model,
		Backend: string(m.backend),
	}
	snap := m.active.Load()
	if snap == nil {
		return h
	}
	h.Active = true
	h.Generation = snap.Corpus.Generation
	h.Size = snap.Corpus.Len()
	h.Dim = snap.Corpus.Dim
	h.Backend = snap.Index.Name()
	return h
}
