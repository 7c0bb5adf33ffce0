package diagnosis

import (
	"errors"
	"fmt"
)

// #region sentinels

var (
	ErrStructuralValidation = errors.New("structural validation failed")
	ErrMalformedOutput      = errors.New("MALFORMED_OUTPUT")
	ErrFieldValidation      = errors.New("VALIDATION_FAILED")
	ErrTransport            = errors.New("evaluator transport failed")
	ErrAggregation          = errors.New("no question mapped to an official category")
	ErrConfiguration        = errors.New("configuration error")
)

// #endregion sentinels

// #region typed-errors

// MalformedOutputError is returned when evaluator text cannot be decoded even after repair.
type MalformedOutputError struct {
	Reason string
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMalformedOutput.Error(), e.Reason)
}

func (e *MalformedOutputError) Unwrap() error { return ErrMalformedOutput }

// FieldValidationError names the first field of a decoded payload that failed its check.
type FieldValidationError struct {
	Field  string
	Reason string
}

func (e *FieldValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrFieldValidation.Error(), e.Field, e.Reason)
}

func (e *FieldValidationError) Unwrap() error { return ErrFieldValidation }

// TransportError wraps a failure raised by the evaluator call itself.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// AggregationError reports a respondent whose questions produced no category bucket.
type AggregationError struct {
	RespondentID string
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregate %s: %s", e.RespondentID, ErrAggregation.Error())
}

func (e *AggregationError) Unwrap() error { return ErrAggregation }

// ConfigurationError is fatal for a whole batch and is never retried.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// #endregion typed-errors

// #region category

// Error-log categories.
const (
	CategoryMalformedOutput = "MALFORMED_OUTPUT"
	CategoryValidation      = "VALIDATION_FAILED"
	CategoryTransport       = "TRANSPORT_ERROR"
	CategoryAggregation     = "AGGREGATION_FAILED"
	CategoryConfiguration   = "CONFIGURATION_ERROR"
	CategoryStructural      = "STRUCTURAL_VALIDATION"
	CategoryProcessing      = "PROCESSING_ERROR"
)

// Category maps an error onto the label written to the error log.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return CategoryConfiguration
	case errors.Is(err, ErrMalformedOutput):
		return CategoryMalformedOutput
	case errors.Is(err, ErrFieldValidation):
		return CategoryValidation
	case errors.Is(err, ErrTransport):
		return CategoryTransport
	case errors.Is(err, ErrAggregation):
		return CategoryAggregation
	case errors.Is(err, ErrStructuralValidation):
		return CategoryStructural
	default:
		return CategoryProcessing
	}
}

// #endregion category
