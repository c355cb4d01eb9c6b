package common

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the stable code reported to API callers.
type ErrorCode string

const (
	ErrCodeSchema           ErrorCode = "SCHEMA_ERROR"
	ErrCodeModelUnavailable ErrorCode = "MODEL_UNAVAILABLE"
	ErrCodeInference        ErrorCode = "INFERENCE_ERROR"
	ErrCodeConfig           ErrorCode = "CONFIG_ERROR"
	ErrCodeInternal         ErrorCode = "INTERNAL_ERROR"
	ErrCodeRateLimited      ErrorCode = "RATE_LIMITED"
)

// Error kinds. Every error produced by the pipeline wraps exactly one of these.
var (
	// ErrSchema marks malformed or incomplete applicant input.
	ErrSchema = errors.New("schema error")
	// ErrModelUnavailable marks a scorer whose model never loaded.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrInference marks a model/feature mismatch or a backend failure at scoring time.
	ErrInference = errors.New("inference error")
	// ErrConfig marks an invalid settings or configuration value.
	ErrConfig = errors.New("config error")
)

// FieldError is a caller-input fault tied to one named field.
type FieldError struct {
	Kind    error  `json:"-"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Field, e.Message)
}

func (e *FieldError) Unwrap() error {
	return e.Kind
}

// SchemaError builds a field-level ErrSchema.
func SchemaError(field, format string, args ...interface{}) error {
	return &FieldError{Kind: ErrSchema, Field: field, Message: fmt.Sprintf(format, args...)}
}

// ConfigError builds a field-level ErrConfig.
func ConfigError(field, format string, args ...interface{}) error {
	return &FieldError{Kind: ErrConfig, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Code classifies err into its ErrorCode.
func Code(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSchema):
		return ErrCodeSchema
	case errors.Is(err, ErrModelUnavailable):
		return ErrCodeModelUnavailable
	case errors.Is(err, ErrInference):
		return ErrCodeInference
	case errors.Is(err, ErrConfig):
		return ErrCodeConfig
	default:
		return ErrCodeInternal
	}
}

// Field returns the offending field name when err carries one.
func Field(err error) string {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Field
	}
	return ""
}

// HTTPStatus maps an error code to the status served for it.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeSchema, ErrCodeConfig:
		return http.StatusBadRequest
	case ErrCodeModelUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
