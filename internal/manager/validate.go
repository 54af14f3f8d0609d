package manager

import (
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"warmsetd/pkg/types"
)

// Identifiers are used as URL path segments and directory names by the
// repository implementations.
var refPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:@+-]*$`)

const maxRefLen = 256

var refRules = []validation.Rule{
	validation.Required,
	validation.Length(1, maxRefLen),
	validation.Match(refPattern).Error("must start with a letter or digit and contain only letters, digits and ._:@+-"),
	validation.By(func(v any) error {
		if s, _ := v.(string); strings.Contains(s, "..") {
			return validation.NewError("validation_ref_dotdot", "must not contain ..")
		}
		return nil
	}),
}

func validateModelID(id string) error {
	if err := validation.Validate(id, refRules...); err != nil {
		return ErrInvalidReference("model", id, err)
	}
	return nil
}

func validateChunkID(id string) error {
	if err := validation.Validate(id, refRules...); err != nil {
		return ErrInvalidReference("chunk", id, err)
	}
	return nil
}

// validateManifest checks a fetched manifest before any chunk is requested.
func validateManifest(modelID string, mf types.ModelManifest) error {
	if mf.ModelID != "" && mf.ModelID != modelID {
		return ErrInvalidReference("manifest", mf.ModelID, validation.NewError("validation_manifest_model", "manifest is for a different model than "+modelID))
	}
	for _, c := range mf.Chunks {
		if err := validateChunkID(c.ID); err != nil {
			return err
		}
	}
	return nil
}
