package manager

import (
	"time"

	"github.com/rs/zerolog"

	"warmsetd/internal/cache"
	"warmsetd/internal/generate"
	"warmsetd/internal/repo"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultPrefetchDepth uint32 = 2
	defaultMaxTokens            = generate.DefaultMaxTokens
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// Repo serves manifests and chunks. Nil leaves the manager unconfigured:
	// Bind and PrefetchNext fail with ErrNotConfigured.
	Repo repo.Client
	// Cache holds fetched chunks. Nil creates one with CacheBudgetBytes.
	Cache            *cache.Cache
	CacheBudgetBytes int64
	// Chunks fetched by Bind before the binding is committed.
	PrefetchDepth uint32
	// Token count used when a request leaves max_tokens unset.
	DefaultMaxTokens int
	// Fail Generate with ErrQualityGate when a cached NOVAQ chunk of the bound
	// model fails validation. Off by default: the score is advisory.
	BlockOnQualityFailure bool

	Logger    *zerolog.Logger
	Publisher EventPublisher
	// Clock for binding and activity timestamps.
	Now func() time.Time
}

// RuntimeConfig is the subset of ManagerConfig that can be changed on a live
// manager.
type RuntimeConfig struct {
	PrefetchDepth         uint32 `json:"prefetch_depth"`
	DefaultMaxTokens      int    `json:"default_max_tokens"`
	BlockOnQualityFailure bool   `json:"block_on_quality_failure"`
}

// NewWithConfig constructs a Manager from ManagerConfig.
func NewWithConfig(cfg ManagerConfig) *Manager {
	m := &Manager{
		repo:      cfg.Repo,
		publisher: noopPublisher{},
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	if cfg.Logger != nil {
		m.log = cfg.Logger.With().Str("component", "manager").Logger()
	}
	if cfg.Publisher != nil {
		m.publisher = cfg.Publisher
	}
	if cfg.Now != nil {
		m.now = cfg.Now
	}
	m.runtime = RuntimeConfig{
		PrefetchDepth:         cfg.PrefetchDepth,
		DefaultMaxTokens:      cfg.DefaultMaxTokens,
		BlockOnQualityFailure: cfg.BlockOnQualityFailure,
	}
	m.runtime = withRuntimeDefaults(m.runtime)

	m.cache = cfg.Cache
	if m.cache == nil {
		m.cache = cache.New(cfg.CacheBudgetBytes)
	}
	m.cache.SetEvictFunc(m.onEvict)
	m.engine = generate.New(m.cache)
	m.startTime = m.now()
	return m
}

func withRuntimeDefaults(rc RuntimeConfig) RuntimeConfig {
	if rc.PrefetchDepth == 0 {
		rc.PrefetchDepth = defaultPrefetchDepth
	}
	if rc.DefaultMaxTokens <= 0 {
		rc.DefaultMaxTokens = defaultMaxTokens
	}
	rc.DefaultMaxTokens = generate.ClampMaxTokens(&rc.DefaultMaxTokens)
	return rc
}

// Config returns the live tunables.
func (m *Manager) Config() RuntimeConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runtime
}

// SetConfig replaces the live tunables; zero values fall back to defaults.
// In-flight binds keep the depth they started with.
func (m *Manager) SetConfig(rc RuntimeConfig) {
	rc = withRuntimeDefaults(rc)
	m.mu.Lock()
	m.runtime = rc
	m.mu.Unlock()
}

// SetEventPublisher wires an event publisher. Passing nil resets to a no-op publisher.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p == nil {
		m.publisher = noopPublisher{}
		return
	}
	m.publisher = p
}
