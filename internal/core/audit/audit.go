package audit

import (
	"context"
	"encoding/json"
	"time"
)

// LLMCallLog is an audit record for one call against the vision model.
// Bodies are sanitized before reaching this struct: API keys redacted and
// inline document payloads truncated.
type LLMCallLog struct {
	ID              int64
	CorrelationID   string
	Provider        string
	Operation       string
	FileID          string
	RequestURL      string
	RequestHeaders  map[string]string
	RequestBody     json.RawMessage
	ResponseStatus  *int
	ResponseHeaders map[string]string
	ResponseBody    json.RawMessage
	DurationMs      int64
	ErrorMessage    string
	ErrorCategory   string
	AttemptNumber   int
	CreatedAt       time.Time
}

// Repository defines the contract for persisting and retrieving LLM call logs.
type Repository interface {
	// Save persists an audit log entry to storage.
	Save(ctx context.Context, log LLMCallLog) error

	// FindByFileID retrieves all audit logs recorded while processing a file.
	FindByFileID(ctx context.Context, fileID string) ([]LLMCallLog, error)
}
