package types

// BindRequest is the payload of POST /bind.
type BindRequest struct {
	// Model identifier known to the repository.
	// example: llama-7b-novaq
	ModelID string `json:"model_id" example:"llama-7b-novaq"`
}

// PrefetchRequest is the payload of POST /prefetch.
type PrefetchRequest struct {
	// Maximum number of additional chunks to fetch.
	// example: 4
	N uint32 `json:"n" example:"4"`
}

// PrefetchResponse reports how many chunks were fetched by POST /prefetch.
type PrefetchResponse struct {
	// example: 3
	Loaded uint32 `json:"loaded" example:"3"`
}

// DecodeParams carries decoding options. Only MaxTokens affects the
// deterministic pipeline; the sampling knobs are accepted for compatibility.
type DecodeParams struct {
	// Maximum number of tokens, clamped to [1,256]. Omitted or 0 means 128.
	// example: 32
	MaxTokens *int `json:"max_tokens,omitempty" example:"32"`
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// example: 50
	TopK int `json:"top_k,omitempty" example:"50"`
	// example: 1.1
	RepetitionPenalty float64 `json:"repetition_penalty,omitempty" example:"1.1"`
}

// GenerateRequest is the payload of POST /generate.
type GenerateRequest struct {
	// example: Write a haiku about the ocean.
	Prompt       string       `json:"prompt" example:"Write a haiku about the ocean."`
	DecodeParams DecodeParams `json:"decode_params"`
}

// GenerateResponse is the result of a deterministic generation.
type GenerateResponse struct {
	Tokens []string `json:"tokens"`
	// Concatenation of Tokens with no separator.
	Text            string `json:"text"`
	InferenceTimeMS int64  `json:"inference_time_ms"`
	// Cache hits/misses observed during this call.
	CacheHits   uint64 `json:"cache_hits"`
	CacheMisses uint64 `json:"cache_misses"`
	// Advisory quality of the bound model, when a NOVAQ chunk is cached.
	QualityScore  *float64 `json:"quality_score,omitempty"`
	QualityPassed *bool    `json:"quality_passed,omitempty"`
}

// Health is returned by GET /health.
type Health struct {
	ModelBound bool `json:"model_bound"`
	// example: 0.75
	CacheHitRate float64 `json:"cache_hit_rate" example:"0.75"`
	// Fraction of the cache byte budget in use.
	// example: 0.12
	WarmSetUtilization float64 `json:"warm_set_utilization" example:"0.12"`
	// Unix nanoseconds of the last bind or generate; 0 if none.
	LastActivity int64 `json:"last_activity"`
}

// LoaderStats is returned by GET /loader.
type LoaderStats struct {
	ModelBound       bool    `json:"model_bound"`
	ChunksLoaded     uint32  `json:"chunks_loaded"`
	TotalChunks      uint32  `json:"total_chunks"`
	CacheUtilization float64 `json:"cache_utilization"`
	CacheEntries     int     `json:"cache_entries"`
}

// CacheStatus summarizes the chunk cache for /status.
type CacheStatus struct {
	Entries     int     `json:"entries"`
	UsedBytes   int64   `json:"used_bytes"`
	BudgetBytes int64   `json:"budget_bytes"`
	Utilization float64 `json:"utilization"`
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Binding lifecycle: unbound, prefetching or bound.
	// example: bound
	State   string        `json:"state" example:"bound"`
	Binding *ModelBinding `json:"binding,omitempty"`
	Cache   CacheStatus   `json:"cache"`
	// Last error observed by a bind or prefetch (if any).
	LastError     string `json:"last_error,omitempty"`
	PrefetchDepth uint32 `json:"prefetch_depth"`
	// example: 3600
	UptimeSeconds  int64  `json:"uptime_seconds" example:"3600"`
	ServerTimeUnix int64  `json:"server_time_unix"`
	BindsTotal     uint64 `json:"binds_total"`
	BindFailures   uint64 `json:"bind_failures_total"`
	ChunksFetched  uint64 `json:"chunks_fetched_total"`
	Generations    uint64 `json:"generations_total"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
