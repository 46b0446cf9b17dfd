// Package gsheets implements store.TabularStore against the Google Sheets v4
// REST API.
package gsheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"adva/ms_conciliacion_core/internal/core/store"
)

// DefaultBaseURL is the Sheets API endpoint.
const DefaultBaseURL = "https://sheets.googleapis.com/v4"

// Doer abstracts the HTTP client so the traced client can be plugged in.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource yields the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client talks to the Sheets values and batchUpdate APIs.
type Client struct {
	baseURL string
	http    Doer
	tokens  TokenSource
	log     *slog.Logger

	// tab title -> numeric sheetId, needed by structural requests like sort.
	mu       sync.Mutex
	sheetIDs map[string]map[string]int64
}

// NewClient creates a Sheets client.
func NewClient(baseURL string, doer Doer, tokens TokenSource, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     doer,
		tokens:   tokens,
		log:      log,
		sheetIDs: make(map[string]map[string]int64),
	}
}

type spreadsheetMeta struct {
	Sheets []struct {
		Properties struct {
			SheetID int64  `json:"sheetId"`
			Title   string `json:"title"`
		} `json:"properties"`
	} `json:"sheets"`
}

// ListTabs returns the tab titles of a spreadsheet.
func (c *Client) ListTabs(ctx context.Context, sheetID string) ([]string, error) {
	meta, err := c.metadata(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(meta.Sheets))
	for _, s := range meta.Sheets {
		titles = append(titles, s.Properties.Title)
	}
	return titles, nil
}

type valueRange struct {
	Range  string     `json:"range,omitempty"`
	Values [][]string `json:"values"`
}

// GetValues reads a range as strings.
func (c *Client) GetValues(ctx context.Context, sheetID, readRange string) ([][]string, error) {
	path := fmt.Sprintf("/spreadsheets/%s/values/%s?valueRenderOption=UNFORMATTED_VALUE",
		url.PathEscape(sheetID), url.PathEscape(readRange))

	// Cell values may come back as numbers or bools; read raw and stringify.
	var raw struct {
		Values [][]any `json:"values"`
	}
	if err := c.call(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, fmt.Errorf("sheets get %s: %w", readRange, err)
	}

	out := make([][]string, len(raw.Values))
	for i, row := range raw.Values {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = stringifyCell(cell)
		}
		out[i] = cells
	}
	return out, nil
}

// AppendRows appends after the last data row of the tab addressed by
// writeRange.
func (c *Client) AppendRows(ctx context.Context, sheetID, writeRange string, rows [][]string) error {
	path := fmt.Sprintf("/spreadsheets/%s/values/%s:append?valueInputOption=RAW&insertDataOption=INSERT_ROWS",
		url.PathEscape(sheetID), url.PathEscape(writeRange))
	body := valueRange{Values: rows}
	if err := c.call(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("sheets append %s: %w", writeRange, err)
	}
	return nil
}

// BatchUpdate rewrites the given ranges in one request.
func (c *Client) BatchUpdate(ctx context.Context, sheetID string, updates []store.CellUpdate) error {
	data := make([]valueRange, 0, len(updates))
	for _, u := range updates {
		data = append(data, valueRange{Range: u.Range, Values: u.Values})
	}
	body := map[string]any{
		"valueInputOption": "RAW",
		"data":             data,
	}
	path := fmt.Sprintf("/spreadsheets/%s/values:batchUpdate", url.PathEscape(sheetID))
	if err := c.call(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("sheets batch update: %w", err)
	}
	return nil
}

// SortSheet orders a tab's data rows ascending by one column. Row 1 (headers)
// stays put.
func (c *Client) SortSheet(ctx context.Context, sheetID, tab string, columnIndex int) error {
	numericID, err := c.sheetNumericID(ctx, sheetID, tab)
	if err != nil {
		return err
	}

	body := map[string]any{
		"requests": []map[string]any{{
			"sortRange": map[string]any{
				"range": map[string]any{
					"sheetId":       numericID,
					"startRowIndex": 1,
				},
				"sortSpecs": []map[string]any{{
					"dimensionIndex": columnIndex,
					"sortOrder":      "ASCENDING",
				}},
			},
		}},
	}
	path := fmt.Sprintf("/spreadsheets/%s:batchUpdate", url.PathEscape(sheetID))
	if err := c.call(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("sheets sort %s: %w", tab, err)
	}
	return nil
}

func (c *Client) metadata(ctx context.Context, sheetID string) (spreadsheetMeta, error) {
	var meta spreadsheetMeta
	path := fmt.Sprintf("/spreadsheets/%s?fields=sheets.properties(sheetId,title)", url.PathEscape(sheetID))
	if err := c.call(ctx, http.MethodGet, path, nil, &meta); err != nil {
		return meta, fmt.Errorf("sheets metadata: %w", err)
	}

	ids := make(map[string]int64, len(meta.Sheets))
	for _, s := range meta.Sheets {
		ids[s.Properties.Title] = s.Properties.SheetID
	}
	c.mu.Lock()
	c.sheetIDs[sheetID] = ids
	c.mu.Unlock()
	return meta, nil
}

// sheetNumericID resolves a tab title to its numeric id, refreshing the cached
// metadata on a miss (new tabs appear as statements arrive).
func (c *Client) sheetNumericID(ctx context.Context, sheetID, tab string) (int64, error) {
	c.mu.Lock()
	id, ok := c.sheetIDs[sheetID][tab]
	c.mu.Unlock()
	if ok {
		return id, nil
	}

	if _, err := c.metadata(ctx, sheetID); err != nil {
		return 0, err
	}
	c.mu.Lock()
	id, ok = c.sheetIDs[sheetID][tab]
	c.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("sheets: tab %q not found", tab)
	}
	return id, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("resolve token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func stringifyCell(cell any) string {
	switch v := cell.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		// The decoder produces float64 for numbers; format without exponent.
		return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
	case bool:
		if v {
			return "true"
		}
		return "false"
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

var _ store.TabularStore = (*Client)(nil)
