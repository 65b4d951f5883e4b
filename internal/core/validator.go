package core

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"chainvoice/internal/types"
)

var chainIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-_]{0,31}$`)

// Validator wraps go-playground/validator with domain-specific rules.
//
// Custom tags:
//   - wallet_addr: 0x-prefixed 40-hex-digit address (case-insensitive)
//   - chain_id:    lowercase chain slug, max 32 characters
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator and registers custom validation tags.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Registration errors only occur for nil functions or empty tags.
	_ = v.RegisterValidation("wallet_addr", func(fl validator.FieldLevel) bool {
		_, err := types.NormalizeWalletAddress(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("chain_id", func(fl validator.FieldLevel) bool {
		return chainIDPattern.MatchString(strings.ToLower(strings.TrimSpace(fl.Field().String())))
	})

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates the given struct against its validate tags and
// translates failures into a single AppError with per-field details.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		// InvalidValidationError: the caller passed a non-struct.
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	details := make(map[string]any, len(validationErrs))
	for _, fe := range validationErrs {
		details[fe.Field()] = fieldErrorMessage(fe)
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"request validation failed",
		err,
		details,
	)
}

// fieldErrorMessage renders a human-readable message for one failed rule.
func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "wallet_addr":
		return "must be a 0x-prefixed 40-hex-digit wallet address"
	case "chain_id":
		return "must be a lowercase chain identifier of at most 32 characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed validation rule: " + fe.Tag()
	}
}
