// Package client provides the HTTP and WebSocket client for the
// shelfsync book service.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/avelling/shelfsync/internal/models"
)

// Sentinel errors for result fetches. Check with errors.Is().
var (
	// ErrResultsExpired indicates the server-cached result payload was
	// evicted (24h TTL). Retrying the fetch will not succeed; the user
	// must re-run the import.
	ErrResultsExpired = errors.New("import results have expired")

	// ErrRateLimited indicates the server rejected the request with 429.
	ErrRateLimited = errors.New("rate limited by server")
)

// StatusError is returned for unexpected non-200 responses.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned HTTP %d", e.Code)
}

// Client talks to the shelfsync book service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// New creates a new service client.
// If baseURL is empty, uses SHELFSYNC_SERVER_URL or defaults to localhost:8480.
// Timeout can be configured via SHELFSYNC_CLIENT_TIMEOUT (default 2m).
func New(baseURL string, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("SHELFSYNC_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8480"
	}

	timeout := 2 * time.Minute
	if t := os.Getenv("SHELFSYNC_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	if log == nil {
		log = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// envelope is the generic success/error response wrapper all JSON
// endpoints use.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error,omitempty"`
}

// apiError is a server-reported error inside the envelope.
type apiError struct {
	Message string `json:"message"`
}

// get issues a GET and decodes the envelope into result.
func (c *Client) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	return decodeEnvelope(resp, result)
}

func decodeEnvelope(resp *http.Response, result any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if env.Error != nil {
		return fmt.Errorf("server error: %s", env.Error.Message)
	}
	if result != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, result); err != nil {
			return fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return nil
}

// =============================================================================
// IMPORT OPERATIONS
// =============================================================================

// UploadTicket is the server's response to a CSV upload: the job id and
// the short-lived token scoped to the job's progress channel.
type UploadTicket struct {
	JobID string `json:"job_id"`
	Token string `json:"token"`
}

// Upload sends raw CSV content to the import endpoint and returns the
// ticket for tracking the resulting job.
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader) (*UploadTicket, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("write file content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/imports", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()

	var ticket UploadTicket
	if err := decodeEnvelope(resp, &ticket); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	if ticket.JobID == "" {
		return nil, fmt.Errorf("upload: server returned no job id")
	}
	return &ticket, nil
}

// JobStatusResponse is one poll of the job-status endpoint. It carries
// the same status vocabulary as streamed messages; Books/Errors are
// populated on the inline completion shape.
type JobStatusResponse struct {
	Status   string                `json:"status"` // processing | completed | failed
	Progress float64               `json:"progress,omitempty"`
	Message  string                `json:"message,omitempty"`
	ResultID string                `json:"result_id,omitempty"`
	Books    []models.ParsedRecord `json:"books,omitempty"`
	Errors   []models.ImportError  `json:"errors,omitempty"`
	Error    string                `json:"error,omitempty"`
}

// Job status vocabulary shared by the streaming and polling paths.
const (
	JobStateProcessing = "processing"
	JobStateCompleted  = "completed"
	JobStateFailed     = "failed"
)

// JobStatus polls the status of a backend import job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*JobStatusResponse, error) {
	var status JobStatusResponse
	if err := c.get(ctx, "/jobs/"+url.PathEscape(jobID)+"/status", &status); err != nil {
		return nil, fmt.Errorf("job status: %w", err)
	}
	return &status, nil
}

// ImportResults is the full result payload referenced by a completion
// summary's result id.
type ImportResults struct {
	Books  []models.ParsedRecord `json:"books"`
	Errors []models.ImportError  `json:"errors"`
}

// FetchResults retrieves the cached full results for a completed job.
// Returns ErrResultsExpired on 404 (the cache evicts results after 24h)
// and ErrRateLimited on 429; other non-200 codes surface as StatusError.
// The returned lists are complete and order-preserving; a fetch never
// partially materializes.
func (c *Client) FetchResults(ctx context.Context, jobID string) (*ImportResults, error) {
	var results ImportResults
	err := c.get(ctx, "/v1/jobs/"+url.PathEscape(jobID)+"/results", &results)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			switch statusErr.Code {
			case http.StatusNotFound:
				return nil, ErrResultsExpired
			case http.StatusTooManyRequests:
				return nil, ErrRateLimited
			}
		}
		return nil, fmt.Errorf("fetch results: %w", err)
	}
	return &results, nil
}

// CancelJob asks the backend to cancel a running import job. Callers
// treat this as best-effort: a failure must not block local cleanup.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/jobs/"+url.PathEscape(jobID)+"/cancel", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	defer resp.Body.Close()

	if err := decodeEnvelope(resp, nil); err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	return nil
}

// =============================================================================
// CATALOGUE OPERATIONS
// =============================================================================

// CatalogBook is one backend catalogue search hit.
type CatalogBook struct {
	Title     string `json:"title"`
	Author    string `json:"author"`
	ISBN      string `json:"isbn,omitempty"`
	Publisher string `json:"publisher,omitempty"`
	Year      int    `json:"year,omitempty"`
	CoverURL  string `json:"cover_url,omitempty"`
}

// SearchBooks queries the backend catalogue.
func (c *Client) SearchBooks(ctx context.Context, query string, limit int) ([]CatalogBook, error) {
	v := url.Values{"q": {query}}
	if limit > 0 {
		v.Set("limit", fmt.Sprint(limit))
	}

	var result struct {
		Books []CatalogBook `json:"books"`
	}
	if err := c.get(ctx, "/v1/books/search?"+v.Encode(), &result); err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	return result.Books, nil
}

// Enrichment is backend-supplied metadata for a single book.
type Enrichment struct {
	CoverURL      string `json:"cover_url,omitempty"`
	Publisher     string `json:"publisher,omitempty"`
	Language      string `json:"language,omitempty"`
	AuthorCountry string `json:"author_country,omitempty"`
}

// EnrichBook fetches metadata for a book by ISBN, falling back to
// title+author matching when isbn is empty.
func (c *Client) EnrichBook(ctx context.Context, isbn, title, author string) (*Enrichment, error) {
	v := url.Values{}
	if isbn != "" {
		v.Set("isbn", isbn)
	} else {
		v.Set("title", title)
		v.Set("author", author)
	}

	var enrichment Enrichment
	if err := c.get(ctx, "/v1/books/enrich?"+v.Encode(), &enrichment); err != nil {
		return nil, fmt.Errorf("enrich book: %w", err)
	}
	return &enrichment, nil
}
