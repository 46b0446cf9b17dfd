package testutil

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"adva/ms_conciliacion_core/internal/core/store"
)

// FakeDocumentStore is an in-memory implementation of store.DocumentStore.
type FakeDocumentStore struct {
	mu       sync.Mutex
	Files    map[string][]store.FileInfo // folderID -> files
	Contents map[string][]byte           // fileID -> bytes
	Moves    []MoveCall
	folders  map[string]string // parentID/name -> folderID
	nextID   int

	ListErr     error
	DownloadErr error
	MoveErr     error
}

// MoveCall records one Move invocation.
type MoveCall struct {
	FileID         string
	TargetFolderID string
	NewName        string
}

// NewFakeDocumentStore creates an empty in-memory document store.
func NewFakeDocumentStore() *FakeDocumentStore {
	return &FakeDocumentStore{
		Files:    make(map[string][]store.FileInfo),
		Contents: make(map[string][]byte),
		folders:  make(map[string]string),
	}
}

// AddFile places a file with content in a folder.
func (f *FakeDocumentStore) AddFile(folderID string, info store.FileInfo, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Files[folderID] = append(f.Files[folderID], info)
	f.Contents[info.ID] = content
}

func (f *FakeDocumentStore) List(_ context.Context, folderID string) ([]store.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return append([]store.FileInfo(nil), f.Files[folderID]...), nil
}

func (f *FakeDocumentStore) Download(_ context.Context, fileID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DownloadErr != nil {
		return nil, f.DownloadErr
	}
	content, ok := f.Contents[fileID]
	if !ok {
		return nil, fmt.Errorf("file %s not found", fileID)
	}
	return content, nil
}

func (f *FakeDocumentStore) Move(_ context.Context, fileID, targetFolderID, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MoveErr != nil {
		return f.MoveErr
	}
	f.Moves = append(f.Moves, MoveCall{FileID: fileID, TargetFolderID: targetFolderID, NewName: newName})
	return nil
}

func (f *FakeDocumentStore) GetOrCreateFolder(_ context.Context, parentID, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := parentID + "/" + name
	if id, ok := f.folders[key]; ok {
		return id, nil
	}
	f.nextID++
	id := fmt.Sprintf("folder-%d", f.nextID)
	f.folders[key] = id
	return id, nil
}

// FolderCount returns how many folders were created.
func (f *FakeDocumentStore) FolderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.folders)
}

// FakeTabularStore is an in-memory implementation of store.TabularStore.
// Data rows are stored per tab; index 0 corresponds to sheet row 2 (row 1 is
// the header, never stored).
type FakeTabularStore struct {
	mu   sync.Mutex
	Tabs map[string][][]string

	GetErr    error
	AppendErr error
	UpdateErr error
}

// NewFakeTabularStore creates an empty in-memory tabular store.
func NewFakeTabularStore() *FakeTabularStore {
	return &FakeTabularStore{Tabs: make(map[string][][]string)}
}

// parseRange splits "tab!A5:Z5" into tab and the 2-based start row. A range
// like "tab!A2:Z" (open-ended) yields row 0, meaning all data rows.
func parseRange(rng string) (tab string, row int) {
	parts := strings.SplitN(rng, "!", 2)
	tab = parts[0]
	if len(parts) == 1 {
		return tab, 0
	}
	cells := strings.SplitN(parts[1], ":", 2)
	start := strings.TrimLeft(cells[0], "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	n, err := strconv.Atoi(start)
	if err != nil {
		return tab, 0
	}
	// An open-ended range starting at the first data row reads the full tab.
	if len(cells) == 2 && strings.TrimLeft(cells[1], "ABCDEFGHIJKLMNOPQRSTUVWXYZ") == "" && n <= 2 {
		return tab, 0
	}
	return tab, n
}

func (f *FakeTabularStore) ListTabs(_ context.Context, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	tabs := make([]string, 0, len(f.Tabs))
	for tab := range f.Tabs {
		tabs = append(tabs, tab)
	}
	sort.Strings(tabs)
	return tabs, nil
}

func (f *FakeTabularStore) GetValues(_ context.Context, _ string, readRange string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	tab, row := parseRange(readRange)
	rows := f.Tabs[tab]
	if row == 0 {
		out := make([][]string, len(rows))
		for i, r := range rows {
			out[i] = append([]string(nil), r...)
		}
		return out, nil
	}
	idx := row - 2
	if idx < 0 || idx >= len(rows) {
		return nil, nil
	}
	return [][]string{append([]string(nil), rows[idx]...)}, nil
}

func (f *FakeTabularStore) AppendRows(_ context.Context, _ string, writeRange string, rows [][]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AppendErr != nil {
		return f.AppendErr
	}
	tab, _ := parseRange(writeRange)
	for _, r := range rows {
		f.Tabs[tab] = append(f.Tabs[tab], append([]string(nil), r...))
	}
	return nil
}

func (f *FakeTabularStore) BatchUpdate(_ context.Context, _ string, updates []store.CellUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	for _, u := range updates {
		tab, row := parseRange(u.Range)
		idx := row - 2
		if idx < 0 {
			return fmt.Errorf("update range %q outside data area", u.Range)
		}
		for len(f.Tabs[tab]) <= idx {
			f.Tabs[tab] = append(f.Tabs[tab], nil)
		}
		for i, values := range u.Values {
			f.Tabs[tab][idx+i] = append([]string(nil), values...)
		}
	}
	return nil
}

func (f *FakeTabularStore) SortSheet(_ context.Context, _ string, tab string, columnIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.Tabs[tab]
	sort.SliceStable(rows, func(i, j int) bool {
		var a, b string
		if columnIndex < len(rows[i]) {
			a = rows[i][columnIndex]
		}
		if columnIndex < len(rows[j]) {
			b = rows[j][columnIndex]
		}
		return a < b
	})
	return nil
}

// Rows returns a copy of a tab's data rows.
func (f *FakeTabularStore) Rows(tab string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.Tabs[tab]))
	for i, r := range f.Tabs[tab] {
		out[i] = append([]string(nil), r...)
	}
	return out
}

var _ store.DocumentStore = (*FakeDocumentStore)(nil)
var _ store.TabularStore = (*FakeTabularStore)(nil)
