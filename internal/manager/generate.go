package manager

import (
	"context"
	"time"

	"warmsetd/pkg/types"
)

// Generate runs the deterministic generator over the warm set of the bound
// model. The quality of the bound model is reported alongside the tokens
// when one of its chunks is a resident NOVAQ record; a failing result only
// blocks generation when BlockOnQualityFailure is set.
func (m *Manager) Generate(ctx context.Context, req types.GenerateRequest) (types.GenerateResponse, error) {
	start := time.Now()
	m.mu.RLock()
	var modelID string
	if m.binding != nil {
		modelID = m.binding.ModelID
	}
	var chunkIDs []string
	if m.manifest != nil {
		chunkIDs = make([]string, len(m.manifest.Chunks))
		for i, c := range m.manifest.Chunks {
			chunkIDs[i] = c.ID
		}
	}
	rc := m.runtime
	m.mu.RUnlock()

	if modelID == "" {
		return types.GenerateResponse{}, ErrNoBinding("no model bound")
	}
	if err := ctx.Err(); err != nil {
		return types.GenerateResponse{}, err
	}

	var resp types.GenerateResponse
	if vr := m.engine.Assess(modelID, chunkIDs); vr != nil {
		if !vr.ValidationPassed && rc.BlockOnQualityFailure {
			return types.GenerateResponse{}, qualityGateError{result: *vr}
		}
		score, passed := vr.QualityScore, vr.ValidationPassed
		resp.QualityScore = &score
		resp.QualityPassed = &passed
	}

	params := req.DecodeParams
	if params.MaxTokens == nil || *params.MaxTokens == 0 {
		def := rc.DefaultMaxTokens
		params.MaxTokens = &def
	}
	res := m.engine.Generate(req.Prompt, params)

	resp.Tokens = res.Tokens
	resp.Text = res.Text
	resp.CacheHits = res.Hits
	resp.CacheMisses = res.Misses
	resp.InferenceTimeMS = time.Since(start).Milliseconds()

	m.mu.Lock()
	m.generations++
	m.lastActivity = m.now().UnixNano()
	m.mu.Unlock()
	return resp, nil
}
