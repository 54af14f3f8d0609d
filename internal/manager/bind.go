package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"warmsetd/internal/repo"
	"warmsetd/pkg/types"
)

// Bind fetches the manifest for modelID, verifies it is Active, prefetches the
// first PrefetchDepth chunks and then replaces the current binding in one
// step. On any failure the previous binding is left untouched; chunks fetched
// before the failure stay in the cache. A nil error means the binding was
// committed, even if ctx was canceled while the commit happened.
//
// Concurrent binds of the same model share one fetch. The shared fetch is
// canceled only once every caller waiting on it has gone away. Binds of
// different models run independently and the last to commit wins.
func (m *Manager) Bind(ctx context.Context, modelID string) error {
	if m.repo == nil {
		return ErrNotConfigured
	}
	if err := validateModelID(modelID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	f, leave := m.joinBind(ctx, modelID)
	defer leave()
	ch := m.binds.DoChan(modelID, func() (any, error) {
		err := m.bind(f.ctx, modelID)
		m.flightMu.Lock()
		if m.flights[modelID] == f {
			delete(m.flights, modelID)
		}
		m.flightMu.Unlock()
		return nil, err
	})
	return (<-ch).Err
}

// bindFlight is the context shared by the callers of one collapsed bind.
type bindFlight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// joinBind registers ctx as a waiter on the current flight for modelID,
// starting a new one if needed. The returned func must be called once the
// caller stops waiting; cancellation of ctx also counts as leaving.
func (m *Manager) joinBind(ctx context.Context, modelID string) (*bindFlight, func()) {
	m.flightMu.Lock()
	if m.flights == nil {
		m.flights = make(map[string]*bindFlight)
	}
	f, ok := m.flights[modelID]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &bindFlight{ctx: fctx, cancel: cancel}
		m.flights[modelID] = f
	}
	f.waiters++
	m.flightMu.Unlock()

	depart := func() {
		m.flightMu.Lock()
		defer m.flightMu.Unlock()
		f.waiters--
		if f.waiters > 0 {
			return
		}
		f.cancel()
		if m.flights[modelID] == f {
			delete(m.flights, modelID)
		}
	}
	stop := context.AfterFunc(ctx, depart)
	return f, func() {
		if stop() {
			depart()
		}
	}
}

func (m *Manager) bind(ctx context.Context, modelID string) error {
	opID := newOpID()
	m.mu.Lock()
	depth := m.runtime.PrefetchDepth
	m.bindsInFlight++
	m.bindsTotal++
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.bindsInFlight--
		m.mu.Unlock()
	}()

	m.emit(zerolog.InfoLevel, Event{Name: EventBindStart, ModelID: modelID, OpID: opID, Fields: map[string]any{"prefetch_depth": depth}})

	mf, err := m.repo.GetManifest(ctx, modelID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			err = ErrNotFound("model", modelID, err)
		} else {
			err = fmt.Errorf("fetch manifest %s: %w", modelID, err)
		}
		return m.bindFailed(modelID, opID, err)
	}
	if mf.ModelID == "" {
		mf.ModelID = modelID
	}
	if mf.State != types.ModelActive {
		m.emit(zerolog.WarnLevel, Event{Name: EventBindNotActive, ModelID: modelID, OpID: opID, Fields: map[string]any{"state": string(mf.State)}})
		return m.bindFailed(modelID, opID, ErrNotActive(modelID, mf.State))
	}
	if err := validateManifest(modelID, mf); err != nil {
		return m.bindFailed(modelID, opID, err)
	}

	n := min(int(depth), len(mf.Chunks))
	for _, c := range mf.Chunks[:n] {
		if err := m.fetchChunk(ctx, modelID, c); err != nil {
			m.emit(zerolog.WarnLevel, Event{Name: EventBindChunkError, ModelID: modelID, OpID: opID, Fields: map[string]any{"chunk": c.ID, "error": err.Error()}})
			return m.bindFailed(modelID, opID, err)
		}
	}

	now := m.now().UnixNano()
	b := &types.ModelBinding{
		ModelID:        modelID,
		BoundAt:        now,
		ManifestDigest: mf.Digest,
		ChunksLoaded:   uint32(n),
		TotalChunks:    uint32(len(mf.Chunks)),
		Version:        mf.Version,
	}

	m.mu.Lock()
	if err := ctx.Err(); err != nil {
		m.mu.Unlock()
		return m.bindFailed(modelID, opID, err)
	}
	// Rebinding the manifest that is already bound keeps the progress made by
	// PrefetchNext.
	if cur := m.binding; cur != nil && cur.ModelID == b.ModelID && cur.ManifestDigest == b.ManifestDigest {
		b.ChunksLoaded = min(max(cur.ChunksLoaded, b.ChunksLoaded), b.TotalChunks)
	}
	m.manifest = &mf
	m.binding = b
	m.lastActivity = now
	m.err = ""
	m.mu.Unlock()

	m.emit(zerolog.InfoLevel, Event{Name: EventBindCommitted, ModelID: modelID, OpID: opID, Fields: map[string]any{
		"digest":        mf.Digest,
		"chunks_loaded": b.ChunksLoaded,
		"total_chunks":  b.TotalChunks,
	}})
	return nil
}

func (m *Manager) bindFailed(modelID, opID string, err error) error {
	m.mu.Lock()
	m.bindFailures++
	m.err = err.Error()
	m.mu.Unlock()
	m.log.Debug().Str("model", modelID).Str("op", opID).Err(err).Msg("bind aborted")
	return err
}
