package apierr

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ValidationError is a field-level validation failure (HTTP 400). Fields maps a
// JSON field name to either a list of messages or a nested field map.
type ValidationError struct {
	Fields map[string]any
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// Status is always 400.
func (e *ValidationError) Status() int { return http.StatusBadRequest }

// Body renders {"type":"failure", "<field>": ["msg"], ...}.
func (e *ValidationError) Body() map[string]any {
	body := make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		body[k] = v
	}
	body["type"] = "failure"
	return body
}

// Field returns a ValidationError with a single message on one field.
func Field(name, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]any{name: []string{msg}}}
}

// NonField returns a ValidationError that is not tied to a specific field.
func NonField(msg string) *ValidationError {
	return Field("nonFieldErrors", msg)
}

// FromValidation converts ozzo-validation errors into a ValidationError.
// It returns nil when err is nil and passes through errors that are not
// validation errors (e.g. internal rule failures).
func FromValidation(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return &ValidationError{Fields: flatten(verrs)}
	}
	var ve validation.Error
	if errors.As(err, &ve) {
		return NonField(ve.Error())
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return internal.InternalError()
	}
	return err
}

// Merge adds the fields of other into e, returning e. Either side may be nil.
func Merge(e, other *ValidationError) *ValidationError {
	if e == nil {
		return other
	}
	if other == nil {
		return e
	}
	for k, v := range other.Fields {
		e.Fields[k] = v
	}
	return e
}

func flatten(verrs validation.Errors) map[string]any {
	out := make(map[string]any, len(verrs))
	for field, err := range verrs {
		var nested validation.Errors
		if errors.As(err, &nested) {
			out[field] = flatten(nested)
			continue
		}
		out[field] = []string{err.Error()}
	}
	return out
}
