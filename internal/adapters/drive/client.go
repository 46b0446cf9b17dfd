// Package drive implements store.DocumentStore against the Google Drive v3
// REST API. Authentication is a bearer token injected per request; token
// refresh lives outside this module (workload identity or a sidecar).
package drive

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
	"time"

	"adva/ms_conciliacion_core/internal/core/store"
)

// DefaultBaseURL is the Drive API endpoint.
const DefaultBaseURL = "https://www.googleapis.com/drive/v3"

const folderMimeType = "application/vnd.google-apps.folder"

// Doer abstracts the HTTP client so the traced client can be plugged in.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource yields the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource for a fixed token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Client talks to the Drive files API.
type Client struct {
	baseURL string
	http    Doer
	tokens  TokenSource
	log     *slog.Logger
}

// NewClient creates a Drive client.
func NewClient(baseURL string, doer Doer, tokens TokenSource, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: doer, tokens: tokens, log: log}
}

type fileResource struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	ModifiedTime time.Time `json:"modifiedTime"`
	Parents      []string  `json:"parents"`
}

type fileList struct {
	Files         []fileResource `json:"files"`
	NextPageToken string         `json:"nextPageToken"`
}

// List returns the files directly under a folder, following pagination.
func (c *Client) List(ctx context.Context, folderID string) ([]store.FileInfo, error) {
	var out []store.FileInfo
	pageToken := ""
	for {
		q := url.Values{}
		q.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", folderID))
		q.Set("fields", "nextPageToken, files(id, name, mimeType, modifiedTime)")
		q.Set("pageSize", "1000")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page fileList
		if err := c.getJSON(ctx, "/files?"+q.Encode(), &page); err != nil {
			return nil, fmt.Errorf("drive list %s: %w", folderID, err)
		}
		for _, f := range page.Files {
			if f.MimeType == folderMimeType {
				continue
			}
			out = append(out, store.FileInfo{
				ID:          f.ID,
				Name:        f.Name,
				MimeType:    f.MimeType,
				LastUpdated: f.ModifiedTime,
			})
		}
		if page.NextPageToken == "" {
			return out, nil
		}
		pageToken = page.NextPageToken
	}
}

// Download fetches a file's bytes.
func (c *Client) Download(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(fileID)+"?alt=media", nil)
	if err != nil {
		return nil, fmt.Errorf("drive download %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError("drive download", resp)
	}
	return io.ReadAll(resp.Body)
}

// Move relocates a file into targetFolderID, optionally renaming it.
func (c *Client) Move(ctx context.Context, fileID, targetFolderID, newName string) error {
	var current fileResource
	if err := c.getJSON(ctx, "/files/"+url.PathEscape(fileID)+"?fields=parents", &current); err != nil {
		return fmt.Errorf("drive move %s: read parents: %w", fileID, err)
	}

	q := url.Values{}
	q.Set("addParents", targetFolderID)
	if len(current.Parents) > 0 {
		q.Set("removeParents", strings.Join(current.Parents, ","))
	}

	var body io.Reader
	if newName != "" {
		payload, err := json.Marshal(map[string]string{"name": newName})
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	resp, err := c.do(ctx, http.MethodPatch, "/files/"+url.PathEscape(fileID)+"?"+q.Encode(), body)
	if err != nil {
		return fmt.Errorf("drive move %s: %w", fileID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError("drive move", resp)
	}
	return nil
}

// GetOrCreateFolder resolves a child folder by name, creating it when absent.
func (c *Client) GetOrCreateFolder(ctx context.Context, parentID, name string) (string, error) {
	q := url.Values{}
	q.Set("q", fmt.Sprintf("'%s' in parents and name = '%s' and mimeType = '%s' and trashed = false",
		parentID, strings.ReplaceAll(name, "'", `\'`), folderMimeType))
	q.Set("fields", "files(id)")

	var page fileList
	if err := c.getJSON(ctx, "/files?"+q.Encode(), &page); err != nil {
		return "", fmt.Errorf("drive folder lookup %s/%s: %w", parentID, name, err)
	}
	if len(page.Files) > 0 {
		return page.Files[0].ID, nil
	}

	payload, err := json.Marshal(map[string]any{
		"name":     name,
		"mimeType": folderMimeType,
		"parents":  []string{parentID},
	})
	if err != nil {
		return "", err
	}
	resp, err := c.do(ctx, http.MethodPost, "/files?fields=id", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("drive folder create %s/%s: %w", parentID, name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", apiError("drive folder create", resp)
	}

	var created fileResource
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("drive folder create: decode: %w", err)
	}
	c.log.Info("drive folder created", "parent", parentID, "name", name, "id", created.ID)
	return created.ID, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError("drive", resp)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

func apiError(op string, resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(payload)))
}

var _ store.DocumentStore = (*Client)(nil)
