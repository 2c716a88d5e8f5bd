package errors

const (
	HttpInternalError          = "internal_error"
	HttpValidationError        = "validation_failed"
	HttpInvalidQueryError      = "invalid_query"
	HttpRelayError             = "relay_failed"
	HttpUnsupportedPeriodError = "unsupported_period"
)

// ErrorResponse is the error response body for all HTTP endpoints.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
