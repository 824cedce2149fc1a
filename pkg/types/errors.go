package types

import (
	"encoding/json"
	"fmt"
)

const (
	ErrInvalidParams   = 1001
	ErrExtractionError = 1002
	ErrEvaluationError = 1003
	ErrAuthPending     = 1004
	ErrProviderError   = 2001
	ErrEngineError     = 3001
	ErrTimeout         = 3002
	ErrSessionError    = 3003

	ErrTypeInvalidParams   = "INVALID_PARAMS"
	ErrTypeExtractionError = "EXTRACTION_ERROR"
	ErrTypeEvaluationError = "EVALUATION_ERROR"
	ErrTypeAuthPending     = "AUTH_PENDING"
	ErrTypeProviderError   = "PROVIDER_ERROR"
	ErrTypeEngineError     = "ENGINE_ERROR"
	ErrTypeTimeout         = "TIMEOUT"
	ErrTypeSessionError    = "SESSION_ERROR"
)

// ExtractionError reports that a guideline document could not be turned into
// a structured Guideline. Fatal for that document; other documents are
// unaffected.
type ExtractionError struct {
	FileURI string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract guideline from %s: %v", e.FileURI, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// EvaluationError reports that the grading call failed for one
// (asset, guideline, mode) unit. No partial score is reported for that unit;
// sibling units and other assets are unaffected.
type EvaluationError struct {
	AssetID     string
	GuidelineID string
	Mode        string
	Err         error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate asset %s against guideline %s (%s): %v",
		e.AssetID, e.GuidelineID, e.Mode, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// NewRPCError constructs an RPCError with the given fields.
func NewRPCError(code int, message string, errorType string, retryable bool, detail string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
		Data: &ErrorData{
			ErrorType: errorType,
			Retryable: retryable,
			Detail:    detail,
		},
	}
}

// NewErrorResponse constructs a JSON-RPC error response.
func NewErrorResponse(id int64, err *RPCError) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   err,
	}
}

// NewSuccessResponse constructs a JSON-RPC success response from a result value.
func NewSuccessResponse(id int64, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  raw,
	}, nil
}
