// Package quality implements the NOVAQ quality gate: it decodes compressed
// model blobs, extracts their quantization parameters and applies tiered
// accuracy thresholds.
//
// The gate is advisory. Validation issues are returned as data and never as
// an error; only a blob that fails to decode produces ErrParse.
package quality

import (
	"fmt"
	"time"

	"warmsetd/pkg/types"
)

// MinCompressionRatio is the hard floor for compression_ratio.
const MinCompressionRatio = 2.0

// MinBitAccuracy returns the accuracy floor for a target bit width.
func MinBitAccuracy(targetBits float32) float64 {
	switch {
	case targetBits <= 1.0:
		return 0.85
	case targetBits <= 2.0:
		return 0.90
	case targetBits <= 4.0:
		return 0.95
	default:
		return 0.98
	}
}

// Score combines compression and accuracy into one advisory number.
func Score(compressionRatio, bitAccuracy float64) float64 {
	return (compressionRatio/100.0 + bitAccuracy) / 2.0
}

// Evaluate applies every threshold and returns one issue per violated check.
func Evaluate(cfg Config, compressionRatio, bitAccuracy float64) (bool, []string) {
	issues := []string{}
	if compressionRatio < MinCompressionRatio {
		issues = append(issues, "Compression ratio below minimum threshold (2.0x)")
	}
	minAcc := MinBitAccuracy(cfg.TargetBits)
	if bitAccuracy < minAcc {
		issues = append(issues, fmt.Sprintf(
			"Bit accuracy %.1f%% below threshold %.1f%% for %.1f-bit quantization",
			bitAccuracy*100, minAcc*100, cfg.TargetBits))
	}
	if cfg.NumSubspaces == 0 {
		issues = append(issues, "Invalid number of subspaces (must be > 0)")
	}
	if cfg.CodebookSizeL1 == 0 || cfg.CodebookSizeL2 == 0 {
		issues = append(issues, "Invalid codebook sizes (must be > 0)")
	}
	return len(issues) == 0, issues
}

// Validate decodes blob and runs the gate. modelID is informational.
func Validate(modelID string, blob []byte) (types.ValidationResult, error) {
	m, err := Decode(blob)
	if err != nil {
		return types.ValidationResult{}, err
	}
	return Check(modelID, m), nil
}

// Check runs the gate on an already decoded model.
func Check(modelID string, m Model) types.ValidationResult {
	cr := float64(m.CompressionRatio)
	acc := float64(m.BitAccuracy)
	passed, issues := Evaluate(m.Config, cr, acc)
	return types.ValidationResult{
		ModelID:          modelID,
		CompressionRatio: cr,
		BitAccuracy:      acc,
		QualityScore:     Score(cr, acc),
		ValidationPassed: passed,
		Issues:           issues,
		ValidatedAt:      time.Now().UnixNano(),
	}
}

// IsQuantized reports whether blob decodes as a NOVAQ record.
func IsQuantized(blob []byte) bool {
	_, err := Decode(blob)
	return err == nil
}

// ExtractMeta returns the validation-relevant configuration and metrics.
func ExtractMeta(blob []byte) (types.NOVAQMeta, error) {
	m, err := Decode(blob)
	if err != nil {
		return types.NOVAQMeta{}, err
	}
	cr := float64(m.CompressionRatio)
	acc := float64(m.BitAccuracy)
	return types.NOVAQMeta{
		TargetBits:       m.Config.TargetBits,
		NumSubspaces:     uint32(m.Config.NumSubspaces),
		L1CodebookSize:   uint32(m.Config.CodebookSizeL1),
		L2CodebookSize:   uint32(m.Config.CodebookSizeL2),
		CompressionRatio: cr,
		BitAccuracy:      acc,
		QualityScore:     Score(cr, acc),
	}, nil
}

// QualityScore decodes blob and returns only its advisory score.
func QualityScore(blob []byte) (float64, error) {
	m, err := Decode(blob)
	if err != nil {
		return 0, err
	}
	return Score(float64(m.CompressionRatio), float64(m.BitAccuracy)), nil
}
