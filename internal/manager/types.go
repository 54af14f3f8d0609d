package manager

import (
	"warmsetd/internal/cache"
	"warmsetd/pkg/types"
)

// State is the binding lifecycle as reported by Status.
type State string

const (
	StateUnbound     State = "unbound"
	StatePrefetching State = "prefetching"
	StateBound       State = "bound"
)

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State   State
	Binding *types.ModelBinding
	Err     string
}

// PersistedState is everything a host snapshot needs to restore a manager:
// the manifest and binding slots, the cache contents and its counters.
type PersistedState struct {
	Manifest     *types.ModelManifest
	Binding      *types.ModelBinding
	Entries      []cache.Entry
	Hits         uint64
	Misses       uint64
	LastActivity int64
}
