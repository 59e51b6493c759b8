package suggest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/newsdesk/tagsuggest/internal/corpus"
	"github.com/newsdesk/tagsuggest/internal/vectorindex"
)

func newTestManager(t *testing.T, src corpus.Source, emb *hashEmbedder, opts ...ManagerOption) *Manager {
	t.Helper()
	builder := corpus.NewBuilder(emb, nil)
	return NewManager(src, builder, vectorindex.BackendFlat, emb.ModelName(), opts...)
}

func TestManager_NotReady(t *testing.T) {
	src := &staticSource{}
	src.set(newsroomRows(), nil)
	m := newTestManager(t, src, newHashEmbedder(32))

	if m.Ready() {
		t.Error("manager should not be ready before the first build")
	}
	if _, err := m.Current(); !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}

	h := m.Health()
	if h.Active {
		t.Error("health should report inactive")
	}
	if h.Model != "hash-test" {
		t.Errorf("health model = %q", h.Model)
	}
}

func TestManager_Reload(t *testing.T) {
	src := &staticSource{}
	src.set(newsroomRows(), nil)
	m := newTestManager(t, src, newHashEmbedder(32))

	res, err := m.Reload(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Generation != 1 || res.Size != 4 {
		t.Errorf("unexpected reload result: %+v", res)
	}

	snap, err := m.Current()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Corpus.Generation != 1 {
		t.Errorf("expected generation 1, got %d", snap.Corpus.Generation)
	}
	if snap.Index.Len() != 4 {
		t.Errorf("expected 4 indexed tags, got %d", snap.Index.Len())
	}

	// A second reload publishes a fresh snapshot under the next generation.
	res, err = m.Reload(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Generation != 2 {
		t.Errorf("expected generation 2, got %d", res.Generation)
	}
	next, _ := m.Current()
	if next == snap {
		t.Error("reload should publish a new snapshot")
	}
}

func TestManager_FailedReloadKeepsServing(t *testing.T) {
	src := &staticSource{}
	src.set(newsroomRows(), nil)
	m := newTestManager(t, src, newHashEmbedder(32))

	if _, err := m.Reload(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	before, _ := m.Current()

	src.set(nil, errors.New("source unavailable"))
	res, err := m.Reload(context.Background())
	if err == nil {
		t.Fatal("expected reload to fail")
	}
	if res.Generation != 1 || res.Size != 4 {
		t.Errorf("failed reload should report the serving generation, got %+v", res)
	}

	after, err := m.Current()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if after != before {
		t.Error("failed reload must not replace the active snapshot")
	}

	// A validation failure behaves the same way.
	src.set([]corpus.Row{{Name: "No slug"}}, nil)
	if _, err := m.Reload(context.Background()); err == nil {
		t.Fatal("expected reload to fail on malformed rows")
	}
	var verr *corpus.ValidationError
	_, err = m.Reload(context.Background())
	if !errors.As(err, &verr) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	if got, _ := m.Current(); got != before {
		t.Error("active snapshot changed after a validation failure")
	}

	// The next successful reload consumes a fresh generation.
	src.set(newsroomRows()[:2], nil)
	res, err = m.Reload(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Generation != 2 || res.Size != 2 {
		t.Errorf("unexpected reload result: %+v", res)
	}
}

func TestManager_EmptyCorpusIsServable(t *testing.T) {
	src := &staticSource{}
	src.set(nil, nil)
	m := newTestManager(t, src, newHashEmbedder(16))

	res, err := m.Reload(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Size != 0 {
		t.Errorf("expected empty corpus, got size %d", res.Size)
	}
	if !m.Ready() {
		t.Error("empty corpus should still publish a snapshot")
	}
}

func TestManager_LoadUsesFreshCache(t *testing.T) {
	src := &staticSource{}
	src.set(newsroomRows(), nil)

	cache := corpus.NewCache(t.TempDir())
	emb := newHashEmbedder(32)
	m := newTestManager(t, src, emb, WithCorpusCache(cache))

	// First load builds and writes the cache.
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	built := emb.callCount()
	if built == 0 {
		t.Fatal("first load should call the embedder")
	}

	// A second manager restores from cache without embedding.
	emb2 := newHashEmbedder(32)
	m2 := newTestManager(t, src, emb2, WithCorpusCache(cache))
	if err := m2.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb2.callCount() != 0 {
		t.Errorf("cached load called the embedder %d times", emb2.callCount())
	}

	snap, err := m2.Current()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Corpus.Len() != 4 {
		t.Errorf("expected 4 cached tags, got %d", snap.Corpus.Len())
	}
}

func TestManager_LoadRebuildsStaleCache(t *testing.T) {
	src := &staticSource{}
	src.set(newsroomRows(), nil)

	cache := corpus.NewCache(t.TempDir())
	emb := newHashEmbedder(32)
	m := newTestManager(t, src, emb, WithCorpusCache(cache))
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Touching the source invalidates the cache.
	src.set(newsroomRows()[:3], nil)
	emb2 := newHashEmbedder(32)
	m2 := newTestManager(t, src, emb2, WithCorpusCache(cache))
	if err := m2.Load(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if emb2.callCount() == 0 {
		t.Error("stale cache should force a rebuild")
	}
	snap, _ := m2.Current()
	if snap.Corpus.Len() != 3 {
		t.Errorf("expected 3 tags after rebuild, got %d", snap.Corpus.Len())
	}
}

func TestManager_ConcurrentReloads(t *testing.T) {
	src := &staticSource{}
	src.set(newsroomRows(), nil)
	m := newTestManager(t, src, newHashEmbedder(32))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Reload(context.Background()); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	snap, err := m.Current()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Corpus.Generation != 4 {
		t.Errorf("expected 4 serialized generations, got %d", snap.Corpus.Generation)
	}
}
