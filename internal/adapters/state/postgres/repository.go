// Package postgres persists the processed-files registry. The registry is
// what makes repeated scans idempotent: a file marked done is never queued
// again, a file marked failed is retried on the next scan.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"adva/ms_conciliacion_core/internal/core/state"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements state.Registry using PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewRepository creates a new PostgreSQL processed-files registry.
func NewRepository(pool *pgxpool.Pool, log *slog.Logger) state.Registry {
	return &Repository{pool: pool, log: log}
}

// Mark upserts the processing outcome for a file.
func (r *Repository) Mark(ctx context.Context, record state.ProcessedFile) error {
	query := `
		INSERT INTO processed_files (file_id, file_name, document_type, status, error_message, processed_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (file_id) DO UPDATE SET
			file_name = EXCLUDED.file_name,
			document_type = EXCLUDED.document_type,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			processed_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query,
		record.FileID,
		record.FileName,
		record.DocumentType,
		record.Status,
		record.ErrorMessage,
	)
	if err != nil {
		if r.log != nil {
			r.log.Error("failed to mark processed file",
				"file_id", record.FileID,
				"status", record.Status,
				"error", err,
			)
		}
		return fmt.Errorf("mark processed file: %w", err)
	}

	return nil
}

// Seen reports whether a file was already processed successfully.
func (r *Repository) Seen(ctx context.Context, fileID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM processed_files WHERE file_id = $1 AND status = $2)`

	var seen bool
	if err := r.pool.QueryRow(ctx, query, fileID, state.StatusDone).Scan(&seen); err != nil {
		return false, fmt.Errorf("query processed file: %w", err)
	}
	return seen, nil
}

// Failures returns the files whose last run failed, oldest first.
func (r *Repository) Failures(ctx context.Context) ([]state.ProcessedFile, error) {
	query := `
		SELECT file_id, file_name, document_type, status, error_message, processed_at
		FROM processed_files
		WHERE status = $1
		ORDER BY processed_at ASC
	`

	rows, err := r.pool.Query(ctx, query, state.StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("query failed files: %w", err)
	}
	defer rows.Close()

	var records []state.ProcessedFile
	for rows.Next() {
		var rec state.ProcessedFile
		err := rows.Scan(
			&rec.FileID,
			&rec.FileName,
			&rec.DocumentType,
			&rec.Status,
			&rec.ErrorMessage,
			&rec.ProcessedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan processed file: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}
