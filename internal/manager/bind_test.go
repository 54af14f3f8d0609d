package manager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"warmsetd/internal/repo"
	"warmsetd/pkg/types"
)

func TestBindNotConfigured(t *testing.T) {
	m := NewWithConfig(ManagerConfig{})
	if err := m.Bind(context.Background(), "m"); !IsNotConfigured(err) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := m.PrefetchNext(context.Background(), 1); !IsNotConfigured(err) {
		t.Fatalf("expected ErrNotConfigured from PrefetchNext, got %v", err)
	}
}

func TestBindInvalidReference(t *testing.T) {
	f := newFixture(t, 2, 0)
	for _, id := range []string{"", "../etc", "a b", "-lead", "x/y"} {
		if err := f.m.Bind(context.Background(), id); !IsInvalidReference(err) {
			t.Fatalf("id %q: expected invalid reference, got %v", id, err)
		}
	}
	if mf, _ := f.repo.Calls(); mf != 0 {
		t.Fatalf("invalid ids must not reach the repository, got %d manifest calls", mf)
	}
}

func TestBindNotFound(t *testing.T) {
	f := newFixture(t, 2, 0)
	err := f.m.Bind(context.Background(), "missing")
	if !IsNotFound(err) || !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.m.Ready() {
		t.Fatalf("manager must stay unbound")
	}
	if got := f.m.Status().BindFailures; got != 1 {
		t.Fatalf("bind failures=%d", got)
	}
}

func TestBindNotActiveLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, 2, 0)
	addModel(f.repo, "pending", 3, 8, types.ModelPending)
	addModel(f.repo, "old", 3, 8, types.ModelDeprecated)

	for _, id := range []string{"pending", "old"} {
		err := f.m.Bind(context.Background(), id)
		if !IsNotActive(err) {
			t.Fatalf("%s: expected NotActive, got %v", id, err)
		}
	}
	if _, chunks := f.repo.Calls(); chunks != 0 {
		t.Fatalf("no chunk may be fetched for inactive models, got %d", chunks)
	}
	if f.m.Binding() != nil || f.m.Manifest() != nil || f.m.Cache().Len() != 0 {
		t.Fatalf("inactive bind mutated state")
	}
	if h := f.m.Health(); h.ModelBound {
		t.Fatalf("health reports bound")
	}
	if n := len(f.pub.Named(EventBindNotActive)); n != 2 {
		t.Fatalf("bind_not_active events=%d", n)
	}
}

func TestBindSuccess(t *testing.T) {
	f := newFixture(t, 2, 0)
	mf := addModel(f.repo, "m", 5, 16, types.ModelActive)

	if err := f.m.Bind(context.Background(), "m"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	b := f.m.Binding()
	if b == nil || b.ModelID != "m" || b.ChunksLoaded != 2 || b.TotalChunks != 5 {
		t.Fatalf("unexpected binding: %+v", b)
	}
	if b.ManifestDigest != mf.Digest || b.Version != "1.0.0" || b.BoundAt == 0 {
		t.Fatalf("binding fields not taken from manifest: %+v", b)
	}
	c := f.m.Cache()
	if !c.Contains("m-0") || !c.Contains("m-1") || c.Contains("m-2") {
		t.Fatalf("unexpected cache keys %v", c.Keys())
	}
	if s := f.m.Status(); s.State != string(StateBound) || s.ChunksFetched != 2 || s.BindsTotal != 1 {
		t.Fatalf("unexpected status %+v", s)
	}
	if h := f.m.Health(); !h.ModelBound || h.LastActivity != b.BoundAt {
		t.Fatalf("unexpected health %+v", h)
	}

	start := f.pub.Named(EventBindStart)
	done := f.pub.Named(EventBindCommitted)
	if len(start) != 1 || len(done) != 1 {
		t.Fatalf("events: %+v", f.pub.Events())
	}
	if start[0].OpID == "" || start[0].OpID != done[0].OpID {
		t.Fatalf("op ids differ: %q vs %q", start[0].OpID, done[0].OpID)
	}
}

func TestBindFewerChunksThanDepth(t *testing.T) {
	f := newFixture(t, 4, 0)
	addModel(f.repo, "tiny", 1, 8, types.ModelActive)
	if err := f.m.Bind(context.Background(), "tiny"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if b := f.m.Binding(); b.ChunksLoaded != 1 || b.TotalChunks != 1 {
		t.Fatalf("unexpected binding %+v", b)
	}
}

func TestBindChunkFailureKeepsPreviousBinding(t *testing.T) {
	f := newFixture(t, 5, 0)
	addModel(f.repo, "a", 5, 8, types.ModelActive)
	addModel(f.repo, "b", 5, 8, types.ModelActive)
	if err := f.m.Bind(context.Background(), "a"); err != nil {
		t.Fatalf("Bind a: %v", err)
	}
	before := f.m.Binding()

	boom := errors.New("connection reset")
	f.repo.FailChunk("b-2", boom)
	err := f.m.Bind(context.Background(), "b")
	if !errors.Is(err, boom) {
		t.Fatalf("expected chunk error, got %v", err)
	}

	after := f.m.Binding()
	if *after != *before {
		t.Fatalf("binding changed after failed bind: %+v -> %+v", before, after)
	}
	if f.m.Manifest().ModelID != "a" {
		t.Fatalf("manifest replaced after failed bind")
	}
	// Chunks fetched before the failure are orphaned but stay cached.
	c := f.m.Cache()
	if !c.Contains("b-0") || !c.Contains("b-1") || c.Contains("b-2") {
		t.Fatalf("unexpected cache keys %v", c.Keys())
	}
	if len(f.pub.Named(EventBindChunkError)) != 1 {
		t.Fatalf("expected one bind_chunk_error event")
	}
	if s := f.m.Status(); s.LastError == "" || s.State != string(StateBound) {
		t.Fatalf("unexpected status %+v", s)
	}
}

func TestBindChunkIntegrity(t *testing.T) {
	f := newFixture(t, 2, 0)
	mf := addModel(f.repo, "m", 2, 8, types.ModelActive)
	mf.Chunks[1].SHA256 = sum([]byte("something else"))
	f.repo.AddManifest(mf)

	err := f.m.Bind(context.Background(), "m")
	if !IsChunkIntegrity(err) || !IsInvalidReference(err) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if f.m.Ready() {
		t.Fatalf("bind must not commit")
	}
	if f.m.Cache().Contains("m-1") {
		t.Fatalf("corrupt chunk must not be cached")
	}
}

func TestBindRejectsManifestForOtherModel(t *testing.T) {
	r := repo.NewMemory()
	other := addModel(r, "other", 1, 4, types.ModelActive)
	// Served for "m" but describes "other".
	m := NewWithConfig(ManagerConfig{Repo: &renamingRepo{Memory: r, as: "m", mf: other}})
	if err := m.Bind(context.Background(), "m"); !IsInvalidReference(err) {
		t.Fatalf("expected invalid reference, got %v", err)
	}
}

type renamingRepo struct {
	*repo.Memory
	as string
	mf types.ModelManifest
}

func (r *renamingRepo) GetManifest(ctx context.Context, modelID string) (types.ModelManifest, error) {
	if modelID == r.as {
		return r.mf, nil
	}
	return r.Memory.GetManifest(ctx, modelID)
}

func TestRebindSameManifestKeepsProgress(t *testing.T) {
	f := newFixture(t, 2, 0)
	addModel(f.repo, "m", 6, 8, types.ModelActive)
	ctx := context.Background()
	if err := f.m.Bind(ctx, "m"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if _, err := f.m.PrefetchNext(ctx, 3); err != nil {
		t.Fatalf("PrefetchNext: %v", err)
	}
	if err := f.m.Bind(ctx, "m"); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if got := f.m.Binding().ChunksLoaded; got != 5 {
		t.Fatalf("chunks_loaded regressed to %d", got)
	}
}

func TestBindReplacesBindingWholesale(t *testing.T) {
	f := newFixture(t, 2, 0)
	addModel(f.repo, "a", 3, 8, types.ModelActive)
	addModel(f.repo, "b", 4, 8, types.ModelActive)
	ctx := context.Background()
	if err := f.m.Bind(ctx, "a"); err != nil {
		t.Fatalf("Bind a: %v", err)
	}
	if err := f.m.Bind(ctx, "b"); err != nil {
		t.Fatalf("Bind b: %v", err)
	}
	b := f.m.Binding()
	if b.ModelID != "b" || b.TotalChunks != 4 || f.m.Manifest().ModelID != "b" {
		t.Fatalf("unexpected binding %+v", b)
	}
	// Old chunks stay reusable.
	if !f.m.Cache().Contains("a-0") {
		t.Fatalf("previous model chunks were dropped")
	}
}

func TestConcurrentBindsOfSameModelCollapse(t *testing.T) {
	f := newFixture(t, 2, 0)
	addModel(f.repo, "m", 4, 8, types.ModelActive)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.repo.BeforeChunk(func(_, _ string) {
		once.Do(func() {
			close(entered)
			<-release
		})
	})

	ctx := context.Background()
	errs := make(chan error, 5)
	go func() { errs <- f.m.Bind(ctx, "m") }()
	<-entered
	if s := f.m.Status(); s.State != string(StatePrefetching) {
		t.Errorf("expected prefetching state during bind, got %s", s.State)
	}
	for i := 0; i < 4; i++ {
		go func() { errs <- f.m.Bind(ctx, "m") }()
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	for i := 0; i < 5; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Bind: %v", err)
		}
	}
	if manifests, chunks := f.repo.Calls(); manifests != 1 || chunks != 2 {
		t.Fatalf("binds were not collapsed: manifests=%d chunks=%d", manifests, chunks)
	}
	if got := len(f.pub.Named(EventBindCommitted)); got != 1 {
		t.Fatalf("bind_committed events=%d", got)
	}
}

func TestBindHonorsCallerContext(t *testing.T) {
	f := newFixture(t, 2, 0)
	addModel(f.repo, "m", 2, 8, types.ModelActive)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := f.m.Bind(ctx, "m"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.m.Ready() {
		t.Fatalf("canceled bind must not commit")
	}
}

func TestBindNotActiveWinsOverMalformedManifest(t *testing.T) {
	f := newFixture(t, 2, 0)
	f.repo.AddManifest(types.ModelManifest{
		ModelID: "draft",
		Digest:  "d",
		State:   types.ModelPending,
		Chunks:  []types.ChunkDescriptor{{ID: "../escape", Size: 1}},
	})
	if err := f.m.Bind(context.Background(), "draft"); !IsNotActive(err) {
		t.Fatalf("expected NotActive, got %v", err)
	}
}

// cancelAfterChunk cancels a context once the named chunk has been served.
type cancelAfterChunk struct {
	*repo.Memory
	chunkID string
	cancel  context.CancelFunc
}

func (r *cancelAfterChunk) GetChunk(ctx context.Context, modelID, chunkID string) ([]byte, error) {
	b, err := r.Memory.GetChunk(ctx, modelID, chunkID)
	if chunkID == r.chunkID {
		r.cancel()
	}
	return b, err
}

func TestBindErrorMeansNothingCommitted(t *testing.T) {
	for i := 0; i < 100; i++ {
		r := repo.NewMemory()
		addModel(r, "m", 4, 8, types.ModelActive)
		ctx, cancel := context.WithCancel(context.Background())
		m := NewWithConfig(ManagerConfig{
			Repo:          &cancelAfterChunk{Memory: r, chunkID: "m-1", cancel: cancel},
			PrefetchDepth: 2,
		})
		err := m.Bind(ctx, "m")
		committed := m.Binding() != nil
		if (err == nil) != committed {
			t.Fatalf("iteration %d: err=%v but committed=%v", i, err, committed)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("iteration %d: unexpected error %v", i, err)
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func (m *Manager) bindWaiters(modelID string) int {
	m.flightMu.Lock()
	defer m.flightMu.Unlock()
	if f, ok := m.flights[modelID]; ok {
		return f.waiters
	}
	return 0
}

func TestSharedBindSurvivesFirstCallerLeaving(t *testing.T) {
	f := newFixture(t, 2, 0)
	addModel(f.repo, "m", 4, 8, types.ModelActive)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.repo.BeforeChunk(func(_, _ string) {
		once.Do(func() {
			close(entered)
			<-release
		})
	})

	first, cancelFirst := context.WithCancel(context.Background())
	errs := make(chan error, 2)
	go func() { errs <- f.m.Bind(first, "m") }()
	<-entered
	go func() { errs <- f.m.Bind(context.Background(), "m") }()
	waitFor(t, "second caller to join", func() bool { return f.m.bindWaiters("m") == 2 })

	cancelFirst()
	waitFor(t, "first caller to leave", func() bool { return f.m.bindWaiters("m") == 1 })
	close(release)

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Bind: %v", err)
		}
	}
	if b := f.m.Binding(); b == nil || b.ChunksLoaded != 2 {
		t.Fatalf("unexpected binding %+v", b)
	}
}

func TestSharedBindCanceledWhenEveryCallerLeaves(t *testing.T) {
	f := newFixture(t, 2, 0)
	addModel(f.repo, "m", 4, 8, types.ModelActive)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.repo.BeforeChunk(func(_, _ string) {
		once.Do(func() {
			close(entered)
			<-release
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- f.m.Bind(ctx, "m") }()
	<-entered
	cancel()
	waitFor(t, "flight to be abandoned", func() bool { return f.m.bindWaiters("m") == 0 })
	close(release)

	if err := <-errs; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if f.m.Ready() {
		t.Fatalf("abandoned bind must not commit")
	}
}
