package types

// NOVAQMeta is the quantization configuration and measured metrics of a NOVAQ blob.
type NOVAQMeta struct {
	TargetBits       float32 `json:"target_bits"`
	NumSubspaces     uint32  `json:"num_subspaces"`
	L1CodebookSize   uint32  `json:"l1_codebook_size"`
	L2CodebookSize   uint32  `json:"l2_codebook_size"`
	CompressionRatio float64 `json:"compression_ratio"`
	BitAccuracy      float64 `json:"bit_accuracy"`
	QualityScore     float64 `json:"quality_score"`
}

// ValidationResult is the outcome of the quality gate for one blob.
// Issues are advisory data; they never fail the scoring call itself.
type ValidationResult struct {
	ModelID string `json:"model_id,omitempty"`
	// example: 383.3
	CompressionRatio float64 `json:"compression_ratio" example:"383.3"`
	// example: 0.95
	BitAccuracy float64 `json:"bit_accuracy" example:"0.95"`
	// (compression_ratio/100 + bit_accuracy)/2
	QualityScore     float64  `json:"quality_score"`
	ValidationPassed bool     `json:"validation_passed"`
	Issues           []string `json:"issues"`
	// Unix nanoseconds.
	ValidatedAt int64 `json:"validated_at"`
}
