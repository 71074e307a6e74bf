// Package validator converts ozzo-validation failures into errcode.ErrValidation
package validator

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stokry/vectra/errcode"
)

// Validatable is implemented by requests and configuration sections
type Validatable interface {
	Validate() error
}

// ValidateRequest validates req and converts ozzo errors to ErrValidation
func ValidateRequest(req Validatable) error {
	err := req.Validate()
	if err == nil {
		return nil
	}
	return Convert(err)
}

// Convert maps ozzo-validation errors to ErrValidation; other errors are returned as is
func Convert(err error) error {
	if err == nil {
		return nil
	}
	var validationErrs validation.Errors
	if errors.As(err, &validationErrs) {
		return ConvertValidationError(validationErrs)
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return err
	}
	var single validation.Error
	if errors.As(err, &single) {
		return errcode.ErrValidation.WithMsg(single.Error()).Wrap(err)
	}
	return err
}

// ConvertValidationError turns field errors into ErrValidation carrying a "fields" map
func ConvertValidationError(validationErrs validation.Errors) error {
	fields := make(map[string]string)
	set := make(validation.Errors, len(validationErrs))
	for field, fieldErr := range validationErrs {
		if fieldErr != nil {
			fields[field] = fieldErr.Error()
			set[field] = fieldErr
		}
	}

	return errcode.ErrValidation.
		WithMsgf("validation failed: %s", set.Error()).
		WithData("fields", fields)
}
