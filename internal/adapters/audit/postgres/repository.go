package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"adva/ms_conciliacion_core/internal/core/audit"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements the audit.Repository interface using PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewRepository creates a new PostgreSQL audit repository.
func NewRepository(pool *pgxpool.Pool, log *slog.Logger) audit.Repository {
	return &Repository{pool: pool, log: log}
}

// Save persists an LLM call log entry to the database.
func (r *Repository) Save(ctx context.Context, entry audit.LLMCallLog) error {
	query := `
		INSERT INTO llm_call_log (
			correlation_id, provider, operation, file_id, request_url,
			request_headers, request_body, response_status, response_headers,
			response_body, duration_ms, error_message, error_category, attempt_number
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	requestHeadersJSON, err := json.Marshal(entry.RequestHeaders)
	if err != nil {
		return fmt.Errorf("marshal request headers: %w", err)
	}
	responseHeadersJSON, err := json.Marshal(entry.ResponseHeaders)
	if err != nil {
		return fmt.Errorf("marshal response headers: %w", err)
	}

	var requestBodyJSON, responseBodyJSON interface{}
	if len(entry.RequestBody) > 0 {
		requestBodyJSON = entry.RequestBody
	}
	if len(entry.ResponseBody) > 0 {
		responseBodyJSON = entry.ResponseBody
	}

	_, err = r.pool.Exec(ctx, query,
		entry.CorrelationID,
		entry.Provider,
		entry.Operation,
		entry.FileID,
		entry.RequestURL,
		requestHeadersJSON,
		requestBodyJSON,
		entry.ResponseStatus,
		responseHeadersJSON,
		responseBodyJSON,
		entry.DurationMs,
		entry.ErrorMessage,
		entry.ErrorCategory,
		entry.AttemptNumber,
	)
	if err != nil {
		if r.log != nil {
			r.log.Error("failed to insert llm call log",
				"correlation_id", entry.CorrelationID,
				"file_id", entry.FileID,
				"operation", entry.Operation,
				"error", err,
			)
		}
		return fmt.Errorf("insert llm call log: %w", err)
	}

	return nil
}

// FindByFileID retrieves all call logs recorded while processing a file.
func (r *Repository) FindByFileID(ctx context.Context, fileID string) ([]audit.LLMCallLog, error) {
	query := `
		SELECT id, correlation_id, provider, operation, file_id, request_url,
		       request_headers, request_body, response_status, response_headers,
		       response_body, duration_ms, error_message, error_category,
		       attempt_number, created_at
		FROM llm_call_log
		WHERE file_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("query llm call logs: %w", err)
	}
	defer rows.Close()

	var entries []audit.LLMCallLog
	for rows.Next() {
		var entry audit.LLMCallLog
		var requestHeadersJSON, responseHeadersJSON []byte
		var requestBodyJSON, responseBodyJSON []byte

		err := rows.Scan(
			&entry.ID,
			&entry.CorrelationID,
			&entry.Provider,
			&entry.Operation,
			&entry.FileID,
			&entry.RequestURL,
			&requestHeadersJSON,
			&requestBodyJSON,
			&entry.ResponseStatus,
			&responseHeadersJSON,
			&responseBodyJSON,
			&entry.DurationMs,
			&entry.ErrorMessage,
			&entry.ErrorCategory,
			&entry.AttemptNumber,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan llm call log: %w", err)
		}

		if err := json.Unmarshal(requestHeadersJSON, &entry.RequestHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal request headers: %w", err)
		}
		if err := json.Unmarshal(responseHeadersJSON, &entry.ResponseHeaders); err != nil {
			return nil, fmt.Errorf("unmarshal response headers: %w", err)
		}
		entry.RequestBody = requestBodyJSON
		entry.ResponseBody = responseBodyJSON

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return entries, nil
}
