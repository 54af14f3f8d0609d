package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"warmsetd/internal/manager"
	"warmsetd/internal/quality"
	"warmsetd/internal/repo"
	"warmsetd/pkg/types"
)

// seedRepo registers an n-chunk model whose first chunk is chunk0.
func seedRepo(r *repo.Memory, modelID string, n int, chunk0 []byte, state types.ModelState) {
	mf := types.ModelManifest{ModelID: modelID, Version: "1", Digest: "d-" + modelID, State: state}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%d", modelID, i)
		data := []byte(fmt.Sprintf("chunk %s %d", modelID, i))
		if i == 0 && chunk0 != nil {
			data = chunk0
		}
		s := sha256.Sum256(data)
		mf.Chunks = append(mf.Chunks, types.ChunkDescriptor{ID: id, Size: uint64(len(data)), SHA256: hex.EncodeToString(s[:])})
		r.AddChunk(modelID, id, data)
	}
	r.AddManifest(mf)
}

func newServer(t *testing.T, cfg manager.ManagerConfig) (*httptest.Server, *manager.Manager) {
	t.Helper()
	if cfg.CacheBudgetBytes == 0 {
		cfg.CacheBudgetBytes = 1 << 20
	}
	m := manager.NewWithConfig(cfg)
	srv := httptest.NewServer(NewMux(m))
	t.Cleanup(srv.Close)
	return srv, m
}

func call(t *testing.T, srv *httptest.Server, method, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestEndToEndWarmSet(t *testing.T) {
	r := repo.NewMemory()
	seedRepo(r, "m", 5, nil, types.ModelActive)
	srv, _ := newServer(t, manager.ManagerConfig{Repo: r, PrefetchDepth: 2})

	var loader types.LoaderStats
	if code := call(t, srv, http.MethodPost, "/bind", `{"model_id":"m"}`, &loader); code != http.StatusOK {
		t.Fatalf("bind status=%d", code)
	}
	if loader.ChunksLoaded != 2 || loader.TotalChunks != 5 {
		t.Fatalf("after bind: %+v", loader)
	}

	var pre types.PrefetchResponse
	if code := call(t, srv, http.MethodPost, "/prefetch", `{"n":10}`, &pre); code != http.StatusOK {
		t.Fatalf("prefetch status=%d", code)
	}
	if pre.Loaded != 3 {
		t.Fatalf("loaded=%d", pre.Loaded)
	}

	var a, b types.GenerateResponse
	call(t, srv, http.MethodPost, "/generate", `{"prompt":"hello","decode_params":{"max_tokens":8}}`, &a)
	call(t, srv, http.MethodPost, "/generate", `{"prompt":"hello","decode_params":{"max_tokens":8}}`, &b)
	if len(a.Tokens) != 8 || a.Text != b.Text {
		t.Fatalf("generation not deterministic: %q vs %q", a.Text, b.Text)
	}
	if a.CacheHits != 5 || a.CacheMisses != 0 {
		t.Fatalf("hits=%d misses=%d", a.CacheHits, a.CacheMisses)
	}

	var st types.StatusResponse
	call(t, srv, http.MethodGet, "/status", "", &st)
	if st.State != "bound" || st.Binding == nil || st.Binding.ChunksLoaded != 5 || st.Generations != 2 {
		t.Fatalf("unexpected status: %+v", st)
	}

	var h types.Health
	call(t, srv, http.MethodGet, "/health", "", &h)
	if !h.ModelBound || h.LastActivity == 0 {
		t.Fatalf("unexpected health: %+v", h)
	}
}

func TestEndToEndErrorMapping(t *testing.T) {
	r := repo.NewMemory()
	seedRepo(r, "m", 2, nil, types.ModelActive)
	seedRepo(r, "old", 2, nil, types.ModelDeprecated)
	srv, _ := newServer(t, manager.ManagerConfig{Repo: r})

	cases := []struct {
		name, method, path, body string
		want                     int
	}{
		{"generate unbound", http.MethodPost, "/generate", `{"prompt":"x"}`, http.StatusConflict},
		{"prefetch unbound", http.MethodPost, "/prefetch", `{"n":1}`, http.StatusConflict},
		{"invalid id", http.MethodPost, "/bind", `{"model_id":"../etc"}`, http.StatusBadRequest},
		{"empty id", http.MethodPost, "/bind", `{"model_id":""}`, http.StatusBadRequest},
		{"unknown model", http.MethodPost, "/bind", `{"model_id":"nope"}`, http.StatusNotFound},
		{"inactive model", http.MethodPost, "/bind", `{"model_id":"old"}`, http.StatusConflict},
		{"unknown meta", http.MethodGet, "/models/nope/meta", "", http.StatusNotFound},
	}
	for _, c := range cases {
		var e types.ErrorResponse
		if code := call(t, srv, c.method, c.path, c.body, &e); code != c.want || e.Code != c.want {
			t.Fatalf("%s: status=%d body=%+v, want %d", c.name, code, e, c.want)
		}
	}
}

func TestEndToEndUnconfigured(t *testing.T) {
	srv, _ := newServer(t, manager.ManagerConfig{})
	if code := call(t, srv, http.MethodPost, "/bind", `{"model_id":"m"}`, nil); code != http.StatusServiceUnavailable {
		t.Fatalf("bind status=%d", code)
	}
	if code := call(t, srv, http.MethodGet, "/readyz", "", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d", code)
	}
}

func TestEndToEndQualityGate(t *testing.T) {
	poor := quality.Encode(quality.Model{
		Config:           quality.Config{TargetBits: 1.5, NumSubspaces: 2, CodebookSizeL1: 16, CodebookSizeL2: 4},
		CompressionRatio: 2,
		BitAccuracy:      0.1,
	})
	r := repo.NewMemory()
	seedRepo(r, "q", 2, poor, types.ModelActive)
	srv, m := newServer(t, manager.ManagerConfig{Repo: r})
	if code := call(t, srv, http.MethodPost, "/bind", `{"model_id":"q"}`, nil); code != http.StatusOK {
		t.Fatalf("bind status=%d", code)
	}

	var advisory types.GenerateResponse
	if code := call(t, srv, http.MethodPost, "/generate", `{"prompt":"x"}`, &advisory); code != http.StatusOK {
		t.Fatalf("advisory status=%d", code)
	}
	if advisory.QualityPassed == nil || *advisory.QualityPassed {
		t.Fatalf("expected failed advisory quality, got %+v", advisory.QualityPassed)
	}

	if code := call(t, srv, http.MethodPut, "/config", `{"block_on_quality_failure":true}`, nil); code != http.StatusOK {
		t.Fatalf("config status=%d", code)
	}
	if !m.Config().BlockOnQualityFailure {
		t.Fatalf("config not applied")
	}
	if code := call(t, srv, http.MethodPost, "/generate", `{"prompt":"x"}`, nil); code != http.StatusPreconditionFailed {
		t.Fatalf("blocked status=%d", code)
	}
}
