package chi

// ErrorCode is the machine-readable code in an error body.
type ErrorCode string

// Error codes returned by the API.
const (
	ErrorCodeBadRequest         ErrorCode = "bad_request"
	ErrorCodeUnauthorized       ErrorCode = "unauthorized"
	ErrorCodeServiceUnavailable ErrorCode = "service_unavailable"
	ErrorCodeRateLimited        ErrorCode = "rate_limited"
	ErrorCodeInternalError      ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries an issued token.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Username    string `json:"username"`
	TokenType   string `json:"token_type"`
}

// UploadResponse reports an ingestion. Failures are in-band with status "failed".
type UploadResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message,omitempty"`
	ChunksAdded *int   `json:"chunks_added,omitempty"`
	Error       string `json:"error,omitempty"`
}

// QueryRequest is the body of POST /query-auth.
type QueryRequest struct {
	Query string `json:"query"`
}

// QueryResponse is the answer to a query.
type QueryResponse struct {
	Query         string   `json:"query"`
	Result        string   `json:"result"`
	ContextChunks []string `json:"context_chunks"`
	LogStatus     string   `json:"log_status"`
}

// UserInfoResponse identifies the authenticated caller.
type UserInfoResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// HistoryEntry is one logged query.
type HistoryEntry struct {
	ID            int64  `json:"id"`
	Timestamp     string `json:"timestamp"`
	Query         string `json:"query"`
	FinalAnswer   string `json:"final_answer"`
	ContextChunks string `json:"context_chunks"`
}

// HistoryResponse lists the caller's logged queries, oldest first.
type HistoryResponse struct {
	UserID  string         `json:"user_id"`
	Entries []HistoryEntry `json:"entries"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
