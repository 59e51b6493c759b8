package corpus

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

// cacheFileName is the snapshot file inside the cache directory.
const cacheFileName = "tag_corpus.gob.zst"

// ErrCacheStale is returned by Load when no usable cached snapshot exists.
var ErrCacheStale = errors.New("corpus cache stale or missing")

// Snapshot is the on-disk form of a built corpus. Embeddings are stored
// already normalized, so a cache hit skips the embedding provider entirely.
type Snapshot struct {
	Model   string
	Dim     int
	Records []TagRecord
}

// Cache persists built corpora on disk so restarts do not re-embed an
// unchanged taxonomy. A reload-from-scratch always produces an equivalent
// corpus; the cache is purely a startup optimization.
type Cache struct {
	Dir string
}

// NewCache creates a corpus cache in the given directory.
func NewCache(dir string) *Cache {
	return &Cache{Dir: dir}
}

func (c *Cache) path() string {
	return filepath.Join(c.Dir, cacheFileName)
}

// Save writes the corpus snapshot atomically (temp file + rename).
func (c *Cache) Save(corpus *TagCorpus) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.Dir, cacheFileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating cache temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	zw, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("creating zstd writer: %w", err)
	}

	snap := Snapshot{
		Model:   corpus.Model,
		Dim:     corpus.Dim,
		Records: corpus.Records,
	}
	if err := gob.NewEncoder(zw).Encode(&snap); err != nil {
		zw.Close()
		tmp.Close()
		return fmt.Errorf("encoding corpus cache: %w", err)
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing corpus cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing corpus cache: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.path()); err != nil {
		return fmt.Errorf("publishing corpus cache: %w", err)
	}
	return nil
}

// Load returns the cached records when the cache was written for the same
// model and is at least as new as sourceModTime. Otherwise ErrCacheStale.
func (c *Cache) Load(model string, sourceModTime time.Time) (*Snapshot, error) {
	info, err := os.Stat(c.path())
	if err != nil {
		return nil, ErrCacheStale
	}
	if !sourceModTime.IsZero() && info.ModTime().Before(sourceModTime) {
		return nil, ErrCacheStale
	}

	f, err := os.Open(c.path())
	if err != nil {
		return nil, ErrCacheStale
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("opening zstd reader: %w", err)
	}
	defer zr.Close()

	var snap Snapshot
	if err := gob.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding corpus cache: %w", err)
	}
	if snap.Model != model {
		return nil, ErrCacheStale
	}
	return &snap, nil
}

// Corpus rebuilds a TagCorpus from a cached snapshot with a fresh generation.
func (s *Snapshot) Corpus(generation uint64) *TagCorpus {
	return &TagCorpus{
		Records:    s.Records,
		Dim:        s.Dim,
		Generation: generation,
		Model:      s.Model,
	}
}
