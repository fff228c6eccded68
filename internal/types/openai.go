package types

// --- Provider conversation ---

// Chat roles used in the conversation sent to the provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single message of the conversation sent to the provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SamplingParams carries the generation knobs forwarded with every request.
type SamplingParams struct {
	Model            string  `json:"model" yaml:"model"`
	Temperature      float64 `json:"temperature" yaml:"temperature"`
	MaxTokens        int64   `json:"max_tokens" yaml:"max_tokens"`
	TopP             float64 `json:"top_p" yaml:"top_p"`
	FrequencyPenalty float64 `json:"frequency_penalty" yaml:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty" yaml:"presence_penalty"`
}

// --- HTTP API ---

// GenerateRequest is the body of POST /v1/generate.
type GenerateRequest struct {
	Message any `json:"message"`
}

// BundleResponse describes a stored generation.
type BundleResponse struct {
	ID          string     `json:"id"`
	CreatedAt   string     `json:"created_at"`
	Instruction string     `json:"instruction,omitempty"`
	Model       string     `json:"model,omitempty"`
	Stage       string     `json:"stage,omitempty"`
	Bundle      CodeBundle `json:"bundle"`
}

// BundleList is the response for GET /v1/bundles.
type BundleList struct {
	Object string           `json:"object"`
	Data   []BundleResponse `json:"data"`
}

// RepositoryRequest is the body of POST /v1/repositories.
type RepositoryRequest struct {
	Name     string `json:"name"`
	Private  *bool  `json:"private,omitempty"`
	BundleID string `json:"bundle_id,omitempty"`
}

// RepositoryResponse reports a created (and optionally populated) repository.
// PushError is set when the repository exists but the bundle commit failed.
type RepositoryResponse struct {
	FullName  string       `json:"full_name"`
	HTMLURL   string       `json:"html_url"`
	Private   bool         `json:"private"`
	CommitSHA string       `json:"commit_sha,omitempty"`
	PushError *ErrorDetail `json:"push_error,omitempty"`
}

// ErrorResponse wraps an API error.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail holds the error message.
type ErrorDetail struct {
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
