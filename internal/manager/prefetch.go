package manager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"warmsetd/internal/repo"
	"warmsetd/pkg/types"
)

// PrefetchNext fetches up to n chunks of the bound model starting at the
// current ChunksLoaded offset and returns how many were fetched. The binding
// is advanced only if it still refers to the same manifest when the fetches
// finish. A fetch failure aborts without advancing the binding.
func (m *Manager) PrefetchNext(ctx context.Context, n uint32) (uint32, error) {
	if m.repo == nil {
		return 0, ErrNotConfigured
	}
	m.mu.RLock()
	var b types.ModelBinding
	bound := m.binding != nil
	if bound {
		b = *m.binding
	}
	mf := m.manifest
	m.mu.RUnlock()
	if !bound {
		return 0, ErrNoBinding("no model bound")
	}
	if mf == nil {
		return 0, ErrNoBinding("manifest not loaded")
	}

	opID := newOpID()
	start := min(int(b.ChunksLoaded), len(mf.Chunks))
	end := min(start+int(n), len(mf.Chunks))
	for _, c := range mf.Chunks[start:end] {
		if err := m.fetchChunk(ctx, b.ModelID, c); err != nil {
			m.mu.Lock()
			m.err = err.Error()
			m.mu.Unlock()
			m.emit(zerolog.WarnLevel, Event{Name: EventPrefetchError, ModelID: b.ModelID, OpID: opID, Fields: map[string]any{"chunk": c.ID, "error": err.Error()}})
			return 0, err
		}
	}
	loaded := uint32(end - start)

	m.mu.Lock()
	committed := false
	var now uint32
	if cur := m.binding; cur != nil && cur.ModelID == b.ModelID && cur.ManifestDigest == b.ManifestDigest {
		// Overlapping calls may have fetched the same range; never count it twice.
		next := *cur
		next.ChunksLoaded = min(max(cur.ChunksLoaded, uint32(end)), cur.TotalChunks)
		m.binding = &next
		now = next.ChunksLoaded
		committed = true
	}
	m.mu.Unlock()

	if committed {
		m.emit(zerolog.InfoLevel, Event{Name: EventPrefetchCommitted, ModelID: b.ModelID, OpID: opID, Fields: map[string]any{"loaded": loaded, "chunks_loaded": now}})
	}
	return loaded, nil
}

// fetchChunk downloads one chunk, verifies it against its descriptor and
// stores it in the cache under its chunk id.
func (m *Manager) fetchChunk(ctx context.Context, modelID string, c types.ChunkDescriptor) error {
	data, err := m.repo.GetChunk(ctx, modelID, c.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound("chunk", c.ID, err)
		}
		return fmt.Errorf("fetch chunk %s: %w", c.ID, err)
	}
	if err := verifyChunk(c, data); err != nil {
		return err
	}
	m.cache.Put(c.ID, data)
	m.mu.Lock()
	m.chunksFetched++
	m.mu.Unlock()
	return nil
}

func verifyChunk(c types.ChunkDescriptor, data []byte) error {
	if c.SHA256 == "" {
		return nil
	}
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if !strings.EqualFold(got, c.SHA256) {
		return chunkIntegrityError{chunkID: c.ID, want: c.SHA256, got: got}
	}
	return nil
}
