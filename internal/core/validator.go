package core

import (
	"github.com/go-playground/validator/v10"

	"mindgarden/internal/types"
)

// Validator wraps go-playground/validator and translates tag failures into
// client-facing AppErrors.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a Validator with the standard tag set.
func NewValidator() *Validator {
	return &Validator{v: validator.New()}
}

// ValidateStruct validates dst against its struct tags. On failure it
// returns a *types.AppError with the offending fields listed in Details.
func (val *Validator) ValidateStruct(dst any) error {
	err := val.v.Struct(dst)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fe.Tag()
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"request failed validation",
		err,
		details,
	)
}
