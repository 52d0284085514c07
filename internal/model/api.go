package model

import "time"

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeQueryRejected = "QUERY_REJECTED"
	ErrCodeQueryFailed   = "QUERY_FAILED"
	ErrCodeRateLimited   = "RATE_LIMITED"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// QueryRequest is the request body for POST /v1/query.
type QueryRequest struct {
	Query string `json:"query"`
}

// TaskRequest is the request body for POST /v1/tasks. Params carries the
// task-specific prompt fields (lead_name, customer_name, deal_stage, ...).
type TaskRequest struct {
	TaskType         TaskType          `json:"task_type"`
	UserID           string            `json:"user_id"`
	Params           map[string]string `json:"params,omitempty"`
	LeadSource       string            `json:"lead_source,omitempty"`
	CRMStage         string            `json:"crm_stage,omitempty"`
	OpportunityValue float64           `json:"opportunity_value,omitempty"`
}

// TaskResponse is the response body for POST /v1/tasks.
type TaskResponse struct {
	RunID          string  `json:"run_id"`
	Response       string  `json:"response"`
	Confidence     string  `json:"confidence"`
	Abstained      bool    `json:"abstained"`
	ResolutionTime float64 `json:"resolution_time_seconds"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	LogPath string `json:"log_path"`
	Records int    `json:"records"`
	Skipped int    `json:"skipped_rows"`
	Uptime  int64  `json:"uptime_seconds"`
}
