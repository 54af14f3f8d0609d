package types

// ModelState is the repository-side lifecycle state of a model manifest.
type ModelState string

const (
	ModelPending    ModelState = "Pending"
	ModelActive     ModelState = "Active"
	ModelDeprecated ModelState = "Deprecated"
)

// ChunkDescriptor identifies one addressable piece of a model artifact.
type ChunkDescriptor struct {
	// Chunk identifier, unique across all models.
	// example: llama-7b-novaq/000
	ID string `json:"id" yaml:"id" toml:"id" example:"llama-7b-novaq/000"`
	// Byte offset of the chunk within the artifact.
	// example: 0
	Offset uint64 `json:"offset" yaml:"offset" toml:"offset" example:"0"`
	// Size of the chunk in bytes.
	// example: 1048576
	Size uint64 `json:"size" yaml:"size" toml:"size" example:"1048576"`
	// Hex-encoded SHA-256 of the chunk bytes. Empty disables verification.
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty" toml:"sha256,omitempty"`
}

// ModelManifest is the authoritative chunk layout of a model, owned by the repository.
type ModelManifest struct {
	ModelID     string            `json:"model_id" yaml:"model_id" toml:"model_id"`
	Version     string            `json:"version" yaml:"version" toml:"version"`
	Chunks      []ChunkDescriptor `json:"chunks" yaml:"chunks" toml:"chunks"`
	Digest      string            `json:"digest" yaml:"digest" toml:"digest"`
	State       ModelState        `json:"state" yaml:"state" toml:"state"`
	UploadedAt  int64             `json:"uploaded_at" yaml:"uploaded_at" toml:"uploaded_at"`
	ActivatedAt *int64            `json:"activated_at,omitempty" yaml:"activated_at,omitempty" toml:"activated_at,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate a held manifest.
func (m ModelManifest) Clone() ModelManifest {
	out := m
	out.Chunks = append([]ChunkDescriptor(nil), m.Chunks...)
	if m.ActivatedAt != nil {
		v := *m.ActivatedAt
		out.ActivatedAt = &v
	}
	return out
}

// ModelMeta describes the model family and tokenizer as published by the repository.
type ModelMeta struct {
	Family      string `json:"family" yaml:"family" toml:"family"`
	Arch        string `json:"arch" yaml:"arch" toml:"arch"`
	TokenizerID string `json:"tokenizer_id" yaml:"tokenizer_id" toml:"tokenizer_id"`
	VocabSize   uint32 `json:"vocab_size" yaml:"vocab_size" toml:"vocab_size"`
	CtxWindow   uint32 `json:"ctx_window" yaml:"ctx_window" toml:"ctx_window"`
	License     string `json:"license" yaml:"license" toml:"license"`
}

// ModelBinding records that a model is staged for generation.
type ModelBinding struct {
	// example: llama-7b-novaq
	ModelID string `json:"model_id" example:"llama-7b-novaq"`
	// Bind commit time (unix nanoseconds).
	BoundAt        int64  `json:"bound_at"`
	ManifestDigest string `json:"manifest_digest"`
	// Number of chunks resident since bind. Never decreases, never exceeds TotalChunks.
	// example: 2
	ChunksLoaded uint32 `json:"chunks_loaded" example:"2"`
	// example: 5
	TotalChunks uint32 `json:"total_chunks" example:"5"`
	Version     string `json:"version"`
}
