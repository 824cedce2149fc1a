package types

import "encoding/json"

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error object.
type RPCError struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData holds structured error detail.
type ErrorData struct {
	ErrorType string `json:"error_type"`
	Retryable bool   `json:"retryable"`
	Detail    string `json:"detail"`
}

// InitializeParams holds parameters for the initialize method.
type InitializeParams struct {
	SDKName              string   `json:"sdk_name"`
	SDKVersion           string   `json:"sdk_version"`
	ProtocolVersion      int      `json:"protocol_version"`
	RequiredCapabilities []string `json:"required_capabilities"`
}

// InitializeResult holds the result of the initialize method.
type InitializeResult struct {
	EngineVersion         string   `json:"engine_version"`
	ProtocolVersion       int      `json:"protocol_version"`
	Capabilities          []string `json:"capabilities"`
	Missing               []string `json:"missing"`
	Compatible            bool     `json:"compatible"`
	MaxConcurrentRequests int      `json:"max_concurrent_requests"`
	MaxAssetsPerBatch     int      `json:"max_assets_per_batch"`
}

// ExtractGuidelineParams holds parameters for the extract_guideline method.
type ExtractGuidelineParams struct {
	FileURI  string `json:"file_uri"`
	MIMEType string `json:"mime_type"`
}

// ExtractGuidelineResult holds the result of the extract_guideline method.
type ExtractGuidelineResult struct {
	Guideline Guideline `json:"guideline"`
}

// EvaluateAssetParams holds parameters for the evaluate_asset method.
// When GuidelineIDs is empty, every stored guideline is considered.
type EvaluateAssetParams struct {
	Asset        Asset    `json:"asset"`
	GuidelineIDs []string `json:"guideline_ids,omitempty"`
}

// EvaluateAssetResult holds the result of the evaluate_asset method.
type EvaluateAssetResult struct {
	Evaluation      AssetEvaluation `json:"evaluation"`
	TotalCost       float64         `json:"total_cost"`
	TotalDurationMS int64           `json:"total_duration_ms"`
}

// EvaluateBatchParams holds parameters for the evaluate_batch method.
type EvaluateBatchParams struct {
	Assets       []Asset  `json:"assets"`
	GuidelineIDs []string `json:"guideline_ids,omitempty"`
}

// BatchFailure records one asset whose evaluation failed outright.
type BatchFailure struct {
	AssetID string `json:"asset_id"`
	Error   string `json:"error"`
}

// EvaluateBatchResult holds the result of the evaluate_batch method.
// Failed assets do not abort the batch; they are reported alongside the
// evaluations that succeeded.
type EvaluateBatchResult struct {
	Evaluations     []AssetEvaluation `json:"evaluations"`
	Failed          []BatchFailure    `json:"failed"`
	TotalCost       float64           `json:"total_cost"`
	TotalDurationMS int64             `json:"total_duration_ms"`
}

// SavePlanParams holds parameters for the save_plan method.
type SavePlanParams struct {
	GuidelineFiles     []string `json:"guideline_files"`
	AssetFiles         []string `json:"asset_files"`
	AdditionalGuidance string   `json:"additional_guidance,omitempty"`
}

// SavePlanResult holds the result of the save_plan method.
type SavePlanResult struct {
	Saved bool `json:"saved"`
}

// GenerateReportParams holds parameters for the generate_report method.
// Format is one of "json", "markdown", or "chart".
type GenerateReportParams struct {
	Format     string          `json:"format"`
	Evaluation AssetEvaluation `json:"evaluation"`
}

// GenerateReportResult holds the result of the generate_report method.
// Data is base64-encoded by JSON marshalling for binary formats.
type GenerateReportResult struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// ResolveUserParams holds parameters for the resolve_user method. AccessToken
// is optional: when set it is stored in session state before resolution, for
// callers that carry the token themselves instead of the hosting platform.
type ResolveUserParams struct {
	AccessToken string `json:"access_token,omitempty"`
}

// ResolveUserResult holds the result of the resolve_user method.
type ResolveUserResult struct {
	UserID string `json:"user_id"`
}

// ShutdownResult holds the result of the shutdown method.
type ShutdownResult struct {
	SessionsCompleted int `json:"sessions_completed"`
	AssetsEvaluated   int `json:"assets_evaluated"`
}
