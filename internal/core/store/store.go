// Package store defines the contracts for the external document and tabular
// stores. The transport implementations (Drive, Sheets) live outside this
// module; tests use the fakes in internal/testutil.
package store

import (
	"context"
	"time"
)

// FileInfo describes a file in the document store.
type FileInfo struct {
	ID          string
	Name        string
	MimeType    string
	LastUpdated time.Time
}

// DocumentStore is the abstract cloud file store the pipeline reads from and
// files into.
type DocumentStore interface {
	// List returns the files directly under a folder.
	List(ctx context.Context, folderID string) ([]FileInfo, error)
	// Download fetches a file's bytes.
	Download(ctx context.Context, fileID string) ([]byte, error)
	// Move relocates a file into targetFolderID, optionally renaming it.
	// An empty newName keeps the current name.
	Move(ctx context.Context, fileID, targetFolderID, newName string) error
	// GetOrCreateFolder resolves a child folder by name, creating it when
	// absent, and returns its id.
	GetOrCreateFolder(ctx context.Context, parentID, name string) (string, error)
}

// CellUpdate addresses a single range rewrite in a sheet.
type CellUpdate struct {
	Range  string
	Values [][]string
}

// TabularStore is the abstract spreadsheet backend holding the ledgers.
// Column order is part of the ledger contract (see internal/core/ledger).
type TabularStore interface {
	// ListTabs returns the tab titles of a spreadsheet.
	ListTabs(ctx context.Context, sheetID string) ([]string, error)
	GetValues(ctx context.Context, sheetID, readRange string) ([][]string, error)
	// AppendRows appends after the last data row of the tab addressed by
	// writeRange.
	AppendRows(ctx context.Context, sheetID, writeRange string, rows [][]string) error
	BatchUpdate(ctx context.Context, sheetID string, updates []CellUpdate) error
	SortSheet(ctx context.Context, sheetID, tab string, columnIndex int) error
}
