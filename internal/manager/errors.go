package manager

import (
	"errors"
	"fmt"

	"warmsetd/internal/repo"
	"warmsetd/pkg/types"
)

// ErrNotConfigured is returned when an operation needs the repository client
// and none was provided.
var ErrNotConfigured = errors.New("repository client not configured")

// IsNotConfigured reports whether err indicates a missing repository client.
func IsNotConfigured(err error) bool { return errors.Is(err, ErrNotConfigured) }

// invalidReferenceError reports a malformed model or chunk identifier.
type invalidReferenceError struct {
	kind string
	id   string
	why  error
}

func (e invalidReferenceError) Error() string {
	return fmt.Sprintf("invalid %s reference %q: %v", e.kind, e.id, e.why)
}

func (e invalidReferenceError) Unwrap() error { return e.why }

func ErrInvalidReference(kind, id string, why error) error {
	return invalidReferenceError{kind: kind, id: id, why: why}
}

// IsInvalidReference reports whether err indicates a malformed identifier.
// Chunk integrity failures count as invalid references.
func IsInvalidReference(err error) bool {
	var e invalidReferenceError
	return errors.As(err, &e) || IsChunkIntegrity(err)
}

// notFoundError wraps a repository miss with the id that was requested.
type notFoundError struct {
	what string
	id   string
	err  error
}

func (e notFoundError) Error() string { return e.what + " not found: " + e.id }

func (e notFoundError) Unwrap() error { return e.err }

// ErrNotFound wraps a repository miss. err should wrap repo.ErrNotFound.
func ErrNotFound(what, id string, err error) error {
	return notFoundError{what: what, id: id, err: err}
}

// IsNotFound reports whether the requested model or chunk does not exist.
func IsNotFound(err error) bool {
	var e notFoundError
	return errors.As(err, &e) || errors.Is(err, repo.ErrNotFound)
}

// notActiveError rejects a bind of a manifest that is not Active.
type notActiveError struct {
	modelID string
	state   types.ModelState
}

func (e notActiveError) Error() string {
	return fmt.Sprintf("model %s is %s, not Active", e.modelID, e.state)
}

func ErrNotActive(modelID string, state types.ModelState) error {
	return notActiveError{modelID: modelID, state: state}
}

// IsNotActive reports whether a bind was refused because of the manifest state.
func IsNotActive(err error) bool {
	var e notActiveError
	return errors.As(err, &e)
}

// noBindingError is returned by operations that require a bound model.
type noBindingError struct{ reason string }

func (e noBindingError) Error() string { return e.reason }

func ErrNoBinding(reason string) error { return noBindingError{reason: reason} }

// IsNoBinding reports whether err indicates that no model is bound.
func IsNoBinding(err error) bool {
	var e noBindingError
	return errors.As(err, &e)
}

// chunkIntegrityError reports a chunk whose bytes do not match its descriptor.
type chunkIntegrityError struct {
	chunkID string
	want    string
	got     string
}

func (e chunkIntegrityError) Error() string {
	return fmt.Sprintf("chunk %s: sha256 mismatch (want %s, got %s)", e.chunkID, e.want, e.got)
}

// IsChunkIntegrity reports whether a fetched chunk failed its checksum.
func IsChunkIntegrity(err error) bool {
	var e chunkIntegrityError
	return errors.As(err, &e)
}

// qualityGateError blocks generation when the bound model fails validation.
type qualityGateError struct{ result types.ValidationResult }

func (e qualityGateError) Error() string {
	return fmt.Sprintf("model %s failed quality validation (score %.3f)", e.result.ModelID, e.result.QualityScore)
}

// IsQualityGate reports whether generation was refused by the quality gate.
func IsQualityGate(err error) bool {
	var e qualityGateError
	return errors.As(err, &e)
}

// QualityIssues returns the validation issues behind a quality gate error.
func QualityIssues(err error) []string {
	var e qualityGateError
	if errors.As(err, &e) {
		return append([]string(nil), e.result.Issues...)
	}
	return nil
}
