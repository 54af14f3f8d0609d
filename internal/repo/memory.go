package repo

import (
	"context"
	"fmt"
	"sync"

	"warmsetd/pkg/types"
)

// Memory is an in-process repository used by tests and local tooling. Faults
// can be injected per chunk, and a hook runs before every chunk fetch so tests
// can interleave other operations at the suspension point.
type Memory struct {
	mu        sync.Mutex
	manifests map[string]types.ModelManifest
	metas     map[string]types.ModelMeta
	chunks    map[string][]byte
	faults    map[string]error

	beforeChunk func(modelID, chunkID string)
	manifestN   int
	chunkN      int
}

func NewMemory() *Memory {
	return &Memory{
		manifests: make(map[string]types.ModelManifest),
		metas:     make(map[string]types.ModelMeta),
		chunks:    make(map[string][]byte),
		faults:    make(map[string]error),
	}
}

// AddManifest registers mf under mf.ModelID.
func (m *Memory) AddManifest(mf types.ModelManifest) {
	m.mu.Lock()
	m.manifests[mf.ModelID] = mf.Clone()
	m.mu.Unlock()
}

// AddChunk registers chunk bytes under the owning model and chunk id.
func (m *Memory) AddChunk(modelID, chunkID string, data []byte) {
	m.mu.Lock()
	m.chunks[modelID+"\x00"+chunkID] = append([]byte(nil), data...)
	m.mu.Unlock()
}

func (m *Memory) AddMeta(modelID string, meta types.ModelMeta) {
	m.mu.Lock()
	m.metas[modelID] = meta
	m.mu.Unlock()
}

// FailChunk makes every fetch of chunkID return err until cleared with nil.
func (m *Memory) FailChunk(chunkID string, err error) {
	m.mu.Lock()
	if err == nil {
		delete(m.faults, chunkID)
	} else {
		m.faults[chunkID] = err
	}
	m.mu.Unlock()
}

// BeforeChunk installs fn to run (without locks held) before each chunk fetch.
func (m *Memory) BeforeChunk(fn func(modelID, chunkID string)) {
	m.mu.Lock()
	m.beforeChunk = fn
	m.mu.Unlock()
}

// Calls reports how many manifest and chunk fetches were served.
func (m *Memory) Calls() (manifests, chunks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.manifestN, m.chunkN
}

func (m *Memory) GetManifest(ctx context.Context, modelID string) (types.ModelManifest, error) {
	if err := ctx.Err(); err != nil {
		return types.ModelManifest{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifestN++
	mf, ok := m.manifests[modelID]
	if !ok {
		return types.ModelManifest{}, fmt.Errorf("manifest %s: %w", modelID, ErrNotFound)
	}
	return mf.Clone(), nil
}

func (m *Memory) GetModelMeta(ctx context.Context, modelID string) (types.ModelMeta, error) {
	if err := ctx.Err(); err != nil {
		return types.ModelMeta{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.metas[modelID]
	if !ok {
		return types.ModelMeta{}, fmt.Errorf("meta %s: %w", modelID, ErrNotFound)
	}
	return meta, nil
}

func (m *Memory) GetChunk(ctx context.Context, modelID, chunkID string) ([]byte, error) {
	m.mu.Lock()
	hook := m.beforeChunk
	m.mu.Unlock()
	if hook != nil {
		hook(modelID, chunkID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunkN++
	if err := m.faults[chunkID]; err != nil {
		return nil, err
	}
	b, ok := m.chunks[modelID+"\x00"+chunkID]
	if !ok {
		return nil, fmt.Errorf("chunk %s: %w", chunkID, ErrNotFound)
	}
	return append([]byte(nil), b...), nil
}
