// Package generate produces deterministic, cache-dependent token sequences.
//
// The output is a hash chain seeded by the prompt and the bytes of the
// resident cache entries. It carries no linguistic meaning; it exists so the
// full bind, prefetch and read path can be exercised and compared across runs.
package generate

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"

	"warmsetd/internal/quality"
	"warmsetd/pkg/types"
)

const (
	DefaultMaxTokens = 128
	MaxTokensLimit   = 256

	// Per-entry and total caps on cache bytes folded into the seed.
	entryReadLimit = 4096
	totalReadLimit = 64 * 1024

	tokensPerDigest = 4
	tokenBytes      = 8
)

// Source is the read surface of the chunk cache used by the engine.
type Source interface {
	Keys() []string
	Get(key string) ([]byte, bool)
	Peek(key string) ([]byte, bool)
}

// Result is one generation.
type Result struct {
	Tokens []string
	Text   string
	// Entries read through Get, and keys that vanished before they could be read.
	Hits   uint64
	Misses uint64
	// Cache bytes that contributed to the seed.
	BytesHashed int
}

type Engine struct {
	src Source
}

func New(src Source) *Engine { return &Engine{src: src} }

// ClampMaxTokens maps a requested token count onto [1, MaxTokensLimit].
// nil and 0 select DefaultMaxTokens.
func ClampMaxTokens(req *int) int {
	if req == nil || *req == 0 {
		return DefaultMaxTokens
	}
	return min(max(*req, 1), MaxTokensLimit)
}

// Generate hashes prompt, then up to entryReadLimit bytes of each resident
// entry in sorted key order until totalReadLimit bytes have been consumed, and
// expands that seed into tokens by repeated hashing. Reading entries goes
// through Get, so it refreshes their LRU position.
func (e *Engine) Generate(prompt string, params types.DecodeParams) Result {
	limit := ClampMaxTokens(params.MaxTokens)

	h := sha256.New()
	h.Write([]byte(prompt))

	var res Result
	keys := e.src.Keys()
	slices.Sort(keys)
	for _, k := range keys {
		if res.BytesHashed >= totalReadLimit {
			break
		}
		data, ok := e.src.Get(k)
		if !ok {
			// Evicted between Keys and Get.
			res.Misses++
			continue
		}
		res.Hits++
		n := min(len(data), entryReadLimit, totalReadLimit-res.BytesHashed)
		h.Write(data[:n])
		res.BytesHashed += n
	}

	// Every round re-hashes before cutting tokens, so the first round's tokens
	// come from H(seed) rather than the seed itself.
	digest := h.Sum(nil)
	res.Tokens = make([]string, 0, limit)
	for len(res.Tokens) < limit {
		next := sha256.Sum256(digest)
		digest = next[:]
		for i := 0; i < tokensPerDigest && len(res.Tokens) < limit; i++ {
			chunk := digest[i*tokenBytes : (i+1)*tokenBytes]
			res.Tokens = append(res.Tokens, "t"+hex.EncodeToString(chunk))
		}
	}
	res.Text = strings.Join(res.Tokens, "")
	return res
}

// Assess scores the first cached chunk among chunkIDs that decodes as a NOVAQ
// record. It peeks, so LRU order is left alone. nil means no such chunk is
// resident.
func (e *Engine) Assess(modelID string, chunkIDs []string) *types.ValidationResult {
	for _, id := range chunkIDs {
		blob, ok := e.src.Peek(id)
		if !ok {
			continue
		}
		res, err := quality.Validate(modelID, blob)
		if err != nil {
			continue
		}
		return &res
	}
	return nil
}
