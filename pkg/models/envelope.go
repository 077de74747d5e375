package models

// Result values carried by the envelope.
const (
	ResultOK      = "ok"
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultError   = "error"
	ResultIgnored = "ignored"
)

// ErrorCode classifies a failure. Codes are stable string values matched by
// scenario transitions and surfaced to API clients.
type ErrorCode string

// Error code taxonomy.
const (
	CodeValidationError ErrorCode = "VALIDATION_ERROR"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeConfigError     ErrorCode = "CONFIG_ERROR"
	CodeAPIError        ErrorCode = "API_ERROR"
	CodeParseError      ErrorCode = "PARSE_ERROR"
	CodeSyncError       ErrorCode = "SYNC_ERROR"
	CodeTimeout         ErrorCode = "TIMEOUT"
	CodeInternalError   ErrorCode = "INTERNAL_ERROR"
)

// ErrorInfo describes one failure inside an envelope.
type ErrorInfo struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

// Envelope is the universal result wrapper. Every exposed operation returns
// an envelope — errors do not escape module boundaries as panics or bare
// error values.
//
//	success: {"result":"success","response_data":{...}}
//	failure: {"result":"error","error":{"code":"...","message":"..."}}
type Envelope struct {
	Result       string         `json:"result"`
	ResponseData map[string]any `json:"response_data,omitempty"`
	Error        *ErrorInfo     `json:"error,omitempty"`
}

// Success builds a success envelope.
func Success(data map[string]any) Envelope {
	return Envelope{Result: ResultSuccess, ResponseData: data}
}

// OK builds an "ok" envelope (used by the scenario engine).
func OK(data map[string]any) Envelope {
	return Envelope{Result: ResultOK, ResponseData: data}
}

// Ignored builds an "ignored" envelope (no scenario matched the event).
func Ignored() Envelope {
	return Envelope{Result: ResultIgnored}
}

// Failure builds an error envelope.
func Failure(code ErrorCode, message string, details any) Envelope {
	return Envelope{
		Result: ResultError,
		Error:  &ErrorInfo{Code: code, Message: message, Details: details},
	}
}

// IsError reports whether the envelope carries an error result.
func (e Envelope) IsError() bool {
	return e.Result == ResultError
}
