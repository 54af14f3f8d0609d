package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"warmsetd/pkg/types"
)

// maxChunkBytes bounds a single chunk download.
const maxChunkBytes = 512 << 20

// Doer is the subset of *http.Client used by HTTPClient.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient talks to a repository exposing:
//
//	GET {base}/models/{id}/manifest
//	GET {base}/models/{id}/meta
//	GET {base}/models/{id}/chunks/{chunk}
type HTTPClient struct {
	baseURL string
	client  Doer
}

// NewHTTPClient normalizes baseURL and uses client, or a client with a 30s
// timeout when nil.
func NewHTTPClient(baseURL string, client Doer) *HTTPClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// BaseURL returns the normalized repository address.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

func (c *HTTPClient) modelURL(modelID string, parts ...string) string {
	u := c.baseURL + "/models/" + url.PathEscape(modelID)
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

func (c *HTTPClient) get(ctx context.Context, target, what string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("fetching %s: %v: %w", what, err, ErrUnavailable)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", what, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("fetching %s: status %d: %w", what, resp.StatusCode, ErrUnavailable)
	}
	return resp, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, target, what string, v any) error {
	resp, err := c.get(ctx, target, what)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("parsing %s: %w", what, ErrBadResponse)
	}
	return nil
}

func (c *HTTPClient) GetManifest(ctx context.Context, modelID string) (types.ModelManifest, error) {
	var mf types.ModelManifest
	what := "manifest " + modelID
	if err := c.getJSON(ctx, c.modelURL(modelID, "manifest"), what, &mf); err != nil {
		return types.ModelManifest{}, err
	}
	if mf.ModelID == "" {
		mf.ModelID = modelID
	}
	return mf, nil
}

func (c *HTTPClient) GetModelMeta(ctx context.Context, modelID string) (types.ModelMeta, error) {
	var meta types.ModelMeta
	if err := c.getJSON(ctx, c.modelURL(modelID, "meta"), "meta "+modelID, &meta); err != nil {
		return types.ModelMeta{}, err
	}
	return meta, nil
}

func (c *HTTPClient) GetChunk(ctx context.Context, modelID, chunkID string) ([]byte, error) {
	what := "chunk " + chunkID
	resp, err := c.get(ctx, c.modelURL(modelID, "chunks", chunkID), what)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxChunkBytes+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("reading %s: %v: %w", what, err, ErrUnavailable)
	}
	if len(b) > maxChunkBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes: %w", what, maxChunkBytes, ErrBadResponse)
	}
	return b, nil
}
