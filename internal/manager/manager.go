package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"warmsetd/internal/cache"
	"warmsetd/internal/generate"
	"warmsetd/internal/repo"
	"warmsetd/pkg/types"
)

type Manager struct {
	mu        sync.RWMutex
	repo      repo.Client
	cache     *cache.Cache
	engine    *generate.Engine
	runtime   RuntimeConfig
	publisher EventPublisher
	log       zerolog.Logger
	now       func() time.Time
	startTime time.Time

	// Binding slot. manifest and binding are replaced together.
	manifest *types.ModelManifest
	binding  *types.ModelBinding
	// Binds between their start and commit/abort.
	bindsInFlight int
	err           string
	lastActivity  int64

	binds    singleflight.Group
	flightMu sync.Mutex
	flights  map[string]*bindFlight

	bindsTotal    uint64
	bindFailures  uint64
	chunksFetched uint64
	generations   uint64
}

// New returns a manager over client with the default cache budget and
// prefetch depth.
func New(client repo.Client) *Manager {
	return NewWithConfig(ManagerConfig{Repo: client})
}

// Ready reports whether a model is bound.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.binding != nil
}

// Cache exposes the chunk cache.
func (m *Manager) Cache() *cache.Cache { return m.cache }

// Binding returns a copy of the current binding, or nil.
func (m *Manager) Binding() *types.ModelBinding {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.binding == nil {
		return nil
	}
	b := *m.binding
	return &b
}

// Manifest returns a copy of the bound manifest, or nil.
func (m *Manager) Manifest() *types.ModelManifest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.manifest == nil {
		return nil
	}
	mf := m.manifest.Clone()
	return &mf
}

// ModelMeta passes through to the repository.
func (m *Manager) ModelMeta(ctx context.Context, modelID string) (types.ModelMeta, error) {
	if m.repo == nil {
		return types.ModelMeta{}, ErrNotConfigured
	}
	if err := validateModelID(modelID); err != nil {
		return types.ModelMeta{}, err
	}
	meta, err := m.repo.GetModelMeta(ctx, modelID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return types.ModelMeta{}, ErrNotFound("model meta", modelID, err)
		}
		return types.ModelMeta{}, err
	}
	return meta, nil
}

// Lister is implemented by repositories that can enumerate their models.
type Lister interface {
	List() ([]string, error)
}

// ListModels returns the repository's model ids when it can enumerate them.
func (m *Manager) ListModels() ([]string, error) {
	if m.repo == nil {
		return nil, ErrNotConfigured
	}
	l, ok := m.repo.(Lister)
	if !ok {
		return nil, nil
	}
	return l.List()
}

func (m *Manager) touch() {
	m.mu.Lock()
	m.lastActivity = m.now().UnixNano()
	m.mu.Unlock()
}
