package manager

// ExportState captures the manifest, binding and cache for a host snapshot.
func (m *Manager) ExportState() PersistedState {
	st := m.cache.Stats()
	s := PersistedState{
		Entries: m.cache.Snapshot(),
		Hits:    st.Hits,
		Misses:  st.Misses,
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.manifest != nil {
		mf := m.manifest.Clone()
		s.Manifest = &mf
	}
	if m.binding != nil {
		b := *m.binding
		s.Binding = &b
	}
	s.LastActivity = m.lastActivity
	return s
}

// ImportState replaces the manager's state with s. A binding without its
// manifest is dropped, since PrefetchNext could not continue it.
func (m *Manager) ImportState(s PersistedState) {
	m.cache.Restore(s.Entries, s.Hits, s.Misses)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.manifest, m.binding = nil, nil
	if s.Manifest != nil && s.Binding != nil {
		mf := s.Manifest.Clone()
		b := *s.Binding
		b.ChunksLoaded = min(b.ChunksLoaded, b.TotalChunks)
		m.manifest = &mf
		m.binding = &b
	}
	m.lastActivity = s.LastActivity
}
