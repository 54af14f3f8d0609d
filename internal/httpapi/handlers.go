package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"warmsetd/internal/quality"
	"warmsetd/pkg/types"
)

type handlers struct {
	svc Service
}

// decodeJSON enforces the JSON content type and body limit before decoding
// into v. It writes the error response itself and reports whether to continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Oversized bodies also land here; report 400 to avoid leaking the limit.
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// fail writes err unless the client or server has already gone away.
func fail(w http.ResponseWriter, r *http.Request, l opLog, err error) {
	if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
		l.end(499, err, nil)
		return
	}
	status := writeServiceError(w, err)
	IncrementServiceError(l.op, status)
	l.end(status, err, nil)
}

func (h *handlers) bind(w http.ResponseWriter, r *http.Request) {
	var req types.BindRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	l := newOpLog(r, "bind", middleware.GetReqID(r.Context()))
	l.start(map[string]any{"model_id": req.ModelID})
	ctx, cancel := operationContext(r)
	defer cancel()
	if err := h.svc.Bind(ctx, req.ModelID); err != nil {
		fail(w, r, l, err)
		return
	}
	stats := h.svc.LoaderStats()
	l.end(http.StatusOK, nil, map[string]any{"chunks_loaded": stats.ChunksLoaded})
	writeJSON(w, http.StatusOK, stats)
}

func (h *handlers) prefetch(w http.ResponseWriter, r *http.Request) {
	var req types.PrefetchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	l := newOpLog(r, "prefetch", middleware.GetReqID(r.Context()))
	l.start(map[string]any{"n": req.N})
	ctx, cancel := operationContext(r)
	defer cancel()
	loaded, err := h.svc.PrefetchNext(ctx, req.N)
	if err != nil {
		fail(w, r, l, err)
		return
	}
	l.end(http.StatusOK, nil, map[string]any{"loaded": loaded})
	writeJSON(w, http.StatusOK, types.PrefetchResponse{Loaded: loaded})
}

type streamToken struct {
	Index int    `json:"index"`
	Token string `json:"token"`
}

type streamDone struct {
	Done bool `json:"done"`
	types.GenerateResponse
}

func wantsStream(r *http.Request) bool {
	if r.URL.Query().Get("stream") == "1" {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Accept")), "application/x-ndjson")
}

func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reqID := middleware.GetReqID(r.Context())
	l := newOpLog(r, "generate", reqID)
	l.start(map[string]any{"prompt_bytes": len(req.Prompt)})
	ctx, cancel := operationContext(r)
	defer cancel()
	resp, err := h.svc.Generate(ctx, req)
	if err != nil {
		fail(w, r, l, err)
		return
	}
	generatedTokensTotal.Add(float64(len(resp.Tokens)))
	l.end(http.StatusOK, nil, map[string]any{"tokens": len(resp.Tokens), "cache_hits": resp.CacheHits, "cache_misses": resp.CacheMisses})
	if !wantsStream(r) {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	out := io.Writer(w)
	if l.level >= LevelDebug {
		out = io.MultiWriter(w, &loggingLineWriter{requestID: reqID})
	}
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(out)
	for i, tok := range resp.Tokens {
		if r.Context().Err() != nil {
			return
		}
		if err := enc.Encode(streamToken{Index: i, Token: tok}); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	_ = enc.Encode(streamDone{Done: true, GenerateResponse: resp})
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Health())
}

func (h *handlers) loader(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.LoaderStats())
}

func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

func (h *handlers) listModels(w http.ResponseWriter, r *http.Request) {
	ids, err := h.svc.ListModels()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": ids})
}

func (h *handlers) modelMeta(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := operationContext(r)
	defer cancel()
	meta, err := h.svc.ModelMeta(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// readBlob reads a raw NOVAQ blob body bounded by maxBlobBytes.
func readBlob(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBlobBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "blob too large")
			return nil, false
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}
	return body, true
}

func (h *handlers) qualityScore(w http.ResponseWriter, r *http.Request) {
	blob, ok := readBlob(w, r)
	if !ok {
		return
	}
	res, err := quality.Validate(r.URL.Query().Get("model_id"), blob)
	if err != nil {
		IncrementServiceError("quality_score", writeServiceError(w, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) qualityMeta(w http.ResponseWriter, r *http.Request) {
	blob, ok := readBlob(w, r)
	if !ok {
		return
	}
	meta, err := quality.ExtractMeta(blob)
	if err != nil {
		IncrementServiceError("quality_meta", writeServiceError(w, err))
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// putConfig applies a partial runtime update: omitted fields keep their
// current values.
func (h *handlers) putConfig(rc RuntimeConfigurer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next := rc.Config()
		if !decodeJSON(w, r, &next) {
			return
		}
		rc.SetConfig(next)
		writeJSON(w, http.StatusOK, rc.Config())
	}
}
