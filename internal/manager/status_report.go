package manager

import (
	"warmsetd/pkg/types"
)

// stateLocked derives the lifecycle state. Caller holds m.mu.
func (m *Manager) stateLocked() State {
	switch {
	case m.bindsInFlight > 0:
		return StatePrefetching
	case m.binding != nil:
		return StateBound
	default:
		return StateUnbound
	}
}

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{State: m.stateLocked(), Err: m.err}
	if m.binding != nil {
		b := *m.binding
		s.Binding = &b
	}
	return s
}

// Health is a read-only snapshot of binding and cache effectiveness.
func (m *Manager) Health() types.Health {
	m.mu.RLock()
	bound := m.binding != nil
	last := m.lastActivity
	m.mu.RUnlock()
	return types.Health{
		ModelBound:         bound,
		CacheHitRate:       m.cache.HitRate(),
		WarmSetUtilization: m.cache.Utilization(),
		LastActivity:       last,
	}
}

// LoaderStats reports prefetch progress of the bound model.
func (m *Manager) LoaderStats() types.LoaderStats {
	m.mu.RLock()
	var ls types.LoaderStats
	if m.binding != nil {
		ls.ModelBound = true
		ls.ChunksLoaded = m.binding.ChunksLoaded
		ls.TotalChunks = m.binding.TotalChunks
	}
	m.mu.RUnlock()
	st := m.cache.Stats()
	ls.CacheEntries = st.Entries
	ls.CacheUtilization = float64(st.UsedBytes) / float64(st.BudgetBytes)
	return ls
}

// Status builds a detailed status response for /status.
func (m *Manager) Status() types.StatusResponse {
	st := m.cache.Stats()
	now := m.now()

	m.mu.RLock()
	defer m.mu.RUnlock()
	resp := types.StatusResponse{
		State:         string(m.stateLocked()),
		LastError:     m.err,
		PrefetchDepth: m.runtime.PrefetchDepth,
		Cache: types.CacheStatus{
			Entries:     st.Entries,
			UsedBytes:   st.UsedBytes,
			BudgetBytes: st.BudgetBytes,
			Utilization: float64(st.UsedBytes) / float64(st.BudgetBytes),
			Hits:        st.Hits,
			Misses:      st.Misses,
			Evictions:   st.Evictions,
		},
		UptimeSeconds:  int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
		BindsTotal:     m.bindsTotal,
		BindFailures:   m.bindFailures,
		ChunksFetched:  m.chunksFetched,
		Generations:    m.generations,
	}
	if m.binding != nil {
		b := *m.binding
		resp.Binding = &b
	}
	return resp
}
