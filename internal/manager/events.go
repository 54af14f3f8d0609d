package manager

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event names published by the manager.
const (
	EventBindStart         = "bind_start"
	EventBindNotActive     = "bind_not_active"
	EventBindChunkError    = "bind_chunk_error"
	EventBindCommitted     = "bind_committed"
	EventPrefetchCommitted = "prefetch_committed"
	EventPrefetchError     = "prefetch_error"
	EventCacheEvict        = "cache_evict"
)

// Event represents a manager lifecycle event.
// Minimal and stable: name + model ID, the id of the operation that raised it
// and optional fields via key/values.
type Event struct {
	Name    string         `json:"name"`
	ModelID string         `json:"model_id,omitempty"`
	OpID    string         `json:"op_id,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// EventPublisher receives events from the manager. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

func newOpID() string { return uuid.NewString() }

// emit logs e and hands it to the publisher. Callers must not hold m.mu.
func (m *Manager) emit(level zerolog.Level, e Event) {
	m.mu.RLock()
	p := m.publisher
	m.mu.RUnlock()

	z := m.log.WithLevel(level).Str("event", e.Name)
	if e.ModelID != "" {
		z = z.Str("model", e.ModelID)
	}
	if e.OpID != "" {
		z = z.Str("op", e.OpID)
	}
	z.Fields(e.Fields).Msg("manager")
	p.Publish(e)
}

// onEvict is installed on the cache.
func (m *Manager) onEvict(key string, size int64) {
	m.emit(zerolog.DebugLevel, Event{
		Name:   EventCacheEvict,
		Fields: map[string]any{"chunk": key, "size_bytes": size},
	})
}
