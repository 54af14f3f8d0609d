// Package repo defines the contract with the remote model repository and
// provides HTTP and in-memory implementations of it.
package repo

import (
	"context"
	"errors"

	"warmsetd/pkg/types"
)

// Sentinel errors returned by Client implementations. Use errors.Is.
var (
	// ErrNotFound indicates the manifest, meta or chunk is absent upstream.
	ErrNotFound = errors.New("repo: not found")

	// ErrUnavailable indicates a transport or upstream failure.
	ErrUnavailable = errors.New("repo: unavailable")

	// ErrBadResponse indicates the repository returned unparseable data.
	ErrBadResponse = errors.New("repo: invalid response")
)

// Client fetches manifests and chunks from a model repository. Every call may
// block on the network and must honour ctx.
type Client interface {
	GetManifest(ctx context.Context, modelID string) (types.ModelManifest, error)
	GetChunk(ctx context.Context, modelID, chunkID string) ([]byte, error)
	GetModelMeta(ctx context.Context, modelID string) (types.ModelMeta, error)
}
