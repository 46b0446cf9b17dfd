// Package state tracks which store files already went through the pipeline,
// so scans are idempotent across restarts.
package state

import (
	"context"
	"time"
)

// Processing outcome for a file.
const (
	StatusDone   = "done"
	StatusFailed = "failed"
)

// ProcessedFile records the outcome of one pipeline run over a store file.
type ProcessedFile struct {
	FileID       string
	FileName     string
	DocumentType string
	Status       string
	ErrorMessage string
	ProcessedAt  time.Time
}

// Registry persists processed-file records.
type Registry interface {
	// Mark upserts the record for a file. Re-processing overwrites the
	// previous outcome.
	Mark(ctx context.Context, record ProcessedFile) error

	// Seen reports whether a file was already processed successfully.
	Seen(ctx context.Context, fileID string) (bool, error)

	// Failures returns the files whose last run failed.
	Failures(ctx context.Context) ([]ProcessedFile, error)
}
