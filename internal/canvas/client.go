// Package canvas is a small client for the Canvas LMS REST API covering
// folders, content migrations and progress.
package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"isites_migrator/internal/domain"
)

const (
	zipFileImporter = "zip_file_importer"
	perPage         = 100
)

// Config holds Canvas API configuration.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// APIError carries the status and body of a non-2xx response.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("canvas api error: %s %s status=%d body=%s", e.Method, e.URL, e.StatusCode, snippet(e.Body, 500))
}

func snippet(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		token:   cfg.Token,
		logger:  logger.With("component", "canvas"),
	}
}

// RootFolder returns the top-level files folder of a course.
func (c *Client) RootFolder(ctx context.Context, courseID string) (*domain.Folder, error) {
	var folder domain.Folder
	endpoint := c.apiURL("courses", courseID, "folders", "root")
	if _, err := c.do(ctx, http.MethodGet, endpoint, nil, &folder); err != nil {
		return nil, fmt.Errorf("get root folder of course %s: %w", courseID, err)
	}
	return &folder, nil
}

// ListFolders returns the immediate subfolders of a folder, following
// pagination links.
func (c *Client) ListFolders(ctx context.Context, folderID int64) ([]domain.Folder, error) {
	endpoint := c.apiURL("folders", strconv.FormatInt(folderID, 10), "folders") + "?per_page=" + strconv.Itoa(perPage)

	var all []domain.Folder
	for endpoint != "" {
		var page []domain.Folder
		header, err := c.do(ctx, http.MethodGet, endpoint, nil, &page)
		if err != nil {
			return nil, fmt.Errorf("list folders of %d: %w", folderID, err)
		}
		all = append(all, page...)
		endpoint = nextLink(header)
	}
	return all, nil
}

// CreateFolder creates a folder named name under parentID.
func (c *Client) CreateFolder(ctx context.Context, courseID, name string, parentID int64) (*domain.Folder, error) {
	body := map[string]any{
		"name":             name,
		"parent_folder_id": parentID,
	}
	var folder domain.Folder
	endpoint := c.apiURL("courses", courseID, "folders")
	if _, err := c.do(ctx, http.MethodPost, endpoint, body, &folder); err != nil {
		return nil, fmt.Errorf("create folder %q in course %s: %w", name, courseID, err)
	}
	return &folder, nil
}

// LockFolder marks a folder locked for students.
func (c *Client) LockFolder(ctx context.Context, folderID int64) (*domain.Folder, error) {
	body := map[string]any{"locked": true}
	var folder domain.Folder
	endpoint := c.apiURL("folders", strconv.FormatInt(folderID, 10))
	if _, err := c.do(ctx, http.MethodPut, endpoint, body, &folder); err != nil {
		return nil, fmt.Errorf("lock folder %d: %w", folderID, err)
	}
	return &folder, nil
}

type migrationRequest struct {
	MigrationType string            `json:"migration_type"`
	Settings      migrationSettings `json:"settings"`
}

type migrationSettings struct {
	FileURL  string `json:"file_url"`
	FolderID int64  `json:"folder_id"`
}

type migrationResponse struct {
	ID            int64  `json:"id"`
	WorkflowState string `json:"workflow_state"`
	ProgressURL   string `json:"progress_url"`
}

// CreateZipImport starts a zip_file_importer content migration that unpacks
// the archive at fileURL into folderID. It returns the progress URL.
func (c *Client) CreateZipImport(ctx context.Context, courseID, fileURL string, folderID int64) (string, error) {
	body := migrationRequest{
		MigrationType: zipFileImporter,
		Settings: migrationSettings{
			FileURL:  fileURL,
			FolderID: folderID,
		},
	}

	var resp migrationResponse
	endpoint := c.apiURL("courses", courseID, "content_migrations")
	if _, err := c.do(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return "", fmt.Errorf("create content migration for course %s: %w", courseID, err)
	}
	if resp.ProgressURL == "" {
		return "", fmt.Errorf("content migration %d for course %s has no progress url", resp.ID, courseID)
	}

	c.logger.Debug("created content migration",
		"course_id", courseID,
		"migration_id", resp.ID,
		"workflow_state", resp.WorkflowState,
	)
	return resp.ProgressURL, nil
}

// Progress fetches a progress object by its absolute URL.
func (c *Client) Progress(ctx context.Context, progressURL string) (*domain.Progress, error) {
	var progress domain.Progress
	if _, err := c.do(ctx, http.MethodGet, progressURL, nil, &progress); err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return &progress, nil
}

func (c *Client) apiURL(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/api/v1/" + strings.Join(escaped, "/")
}

func (c *Client) do(ctx context.Context, method, endpoint string, in, out any) (http.Header, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", "isites-migrator/1.0")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{
			Method:     method,
			URL:        endpoint,
			StatusCode: resp.StatusCode,
			Body:       b,
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}

	return resp.Header, nil
}

// nextLink extracts the rel="next" target of an RFC 8288 Link header.
func nextLink(h http.Header) string {
	for _, value := range h.Values("Link") {
		for _, link := range strings.Split(value, ",") {
			segments := strings.Split(link, ";")
			if len(segments) < 2 {
				continue
			}
			target := strings.TrimSpace(segments[0])
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}
			for _, param := range segments[1:] {
				param = strings.ReplaceAll(strings.TrimSpace(param), " ", "")
				if param == `rel="next"` || param == "rel=next" {
					return target[1 : len(target)-1]
				}
			}
		}
	}
	return ""
}
