package manager

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"warmsetd/internal/repo"
	"warmsetd/pkg/types"
)

// chunkData returns deterministic bytes for chunk i of modelID.
func chunkData(modelID string, i, size int) []byte {
	b := make([]byte, size)
	for j := range b {
		b[j] = byte(len(modelID) + i*31 + j)
	}
	return b
}

func sum(b []byte) string {
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

// addModel registers an n-chunk model with chunk ids "<id>-<i>" of size bytes each.
func addModel(r *repo.Memory, modelID string, n, size int, state types.ModelState) types.ModelManifest {
	mf := types.ModelManifest{
		ModelID:    modelID,
		Version:    "1.0.0",
		Digest:     "digest-" + modelID,
		State:      state,
		UploadedAt: 1,
	}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%d", modelID, i)
		data := chunkData(modelID, i, size)
		mf.Chunks = append(mf.Chunks, types.ChunkDescriptor{
			ID:     id,
			Offset: uint64(i * size),
			Size:   uint64(size),
			SHA256: sum(data),
		})
		r.AddChunk(modelID, id, data)
	}
	r.AddManifest(mf)
	return mf
}

// stepClock advances one millisecond per call.
func stepClock() func() time.Time {
	var n atomic.Int64
	base := time.Unix(1_700_000_000, 0)
	return func() time.Time { return base.Add(time.Duration(n.Add(1)) * time.Millisecond) }
}

type fixture struct {
	repo *repo.Memory
	m    *Manager
	pub  *MemoryPublisher
}

func newFixture(t *testing.T, depth uint32, budget int64) fixture {
	t.Helper()
	r := repo.NewMemory()
	pub := NewMemoryPublisher()
	m := NewWithConfig(ManagerConfig{
		Repo:             r,
		CacheBudgetBytes: budget,
		PrefetchDepth:    depth,
		Publisher:        pub,
		Now:              stepClock(),
	})
	return fixture{repo: r, m: m, pub: pub}
}
