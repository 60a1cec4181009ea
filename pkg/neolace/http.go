package neolace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/OFFIS-RIT/openalex-import/internal/util"
	"github.com/OFFIS-RIT/openalex-import/pkg/edit"
)

// ErrNotAuthenticated is returned when the store refuses the API key.
var ErrNotAuthenticated = errors.New("not authenticated")

// APIError is a non-2xx response of the store.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("store responded %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrNotAuthenticated:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrRejected:
		return e.StatusCode >= 400 && e.StatusCode < 500
	}
	return false
}

// HTTPClient talks to the store's REST API.
type HTTPClient struct {
	endpoint   string
	apiKey     string
	siteKey    string
	httpClient *http.Client
	maxRetries int
}

// NewHTTPClientParams defines the configuration parameters for creating a
// new HTTPClient.
//
// Endpoint is the base URL of the API, e.g. "http://local.neolace.net:5554".
// SiteKey selects the site all entries belong to.
// MaxRetries bounds the attempts of idempotent reads; pushes are never retried.
type NewHTTPClientParams struct {
	Endpoint   string
	APIKey     string
	SiteKey    string
	HTTPClient *http.Client
	MaxRetries int
}

func NewHTTPClient(params NewHTTPClientParams) (*HTTPClient, error) {
	if !strings.HasPrefix(params.Endpoint, "http://") && !strings.HasPrefix(params.Endpoint, "https://") {
		return nil, fmt.Errorf("store endpoint %q must be an http:// or https:// URL", params.Endpoint)
	}
	if params.SiteKey == "" {
		return nil, fmt.Errorf("site key is required")
	}
	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &HTTPClient{
		endpoint:   strings.TrimRight(params.Endpoint, "/"),
		apiKey:     params.APIKey,
		siteKey:    params.SiteKey,
		httpClient: httpClient,
		maxRetries: maxRetries,
	}, nil
}

func (c *HTTPClient) sitePath(parts ...string) string {
	escaped := make([]string, 0, len(parts)+2)
	escaped = append(escaped, "site", url.PathEscape(c.siteKey))
	for _, p := range parts {
		escaped = append(escaped, url.PathEscape(p))
	}
	return "/" + strings.Join(escaped, "/")
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	target := c.endpoint + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// retryable keeps 5xx and transport errors retryable and stops on 4xx.
func retryable(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
		return util.Permanent(err)
	}
	return err
}

// CheckHealth verifies that the store is reachable and accepts the API key.
func (c *HTTPClient) CheckHealth(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *HTTPClient) GetEntry(ctx context.Context, key edit.EntryKey) (Lookup, error) {
	var entry Entry
	err := util.RetryErrWithContext(ctx, c.maxRetries, func(ctx context.Context) error {
		return retryable(c.do(ctx, http.MethodGet, c.sitePath("entry", string(key)), nil, nil, &entry))
	})
	if errors.Is(err, ErrNotFound) {
		return Missing(), nil
	}
	if err != nil {
		return Lookup{}, fmt.Errorf("get entry %s: %w", key, err)
	}
	return Found(&entry), nil
}

type bulkRequest struct {
	Edits []edit.Edit `json:"edits"`
}

func (c *HTTPClient) PushBulkEdits(ctx context.Context, edits []edit.Edit, opts BulkOptions) error {
	if opts.ConnectionID == "" {
		return fmt.Errorf("push bulk edits: connection id is required")
	}
	query := url.Values{}
	if opts.CreateConnection {
		query.Set("createConnection", "true")
	}
	err := c.do(ctx, http.MethodPost, c.sitePath("connection", opts.ConnectionID, "bulk"), query, bulkRequest{Edits: edits}, nil)
	if err != nil {
		return fmt.Errorf("push %d bulk edits: %w", len(edits), err)
	}
	return nil
}

type lookupRequest struct {
	Expression string        `json:"expression"`
	EntryKey   edit.EntryKey `json:"entryKey,omitempty"`
}

func (c *HTTPClient) EvaluateLookupExpression(ctx context.Context, expression string, entryKey edit.EntryKey) (*LookupResult, error) {
	var result LookupResult
	err := util.RetryErrWithContext(ctx, c.maxRetries, func(ctx context.Context) error {
		return retryable(c.do(ctx, http.MethodPost, c.sitePath("lookup"), nil, lookupRequest{Expression: expression, EntryKey: entryKey}, &result))
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", expression, err)
	}
	return &result, nil
}

func (c *HTTPClient) CreateDraft(ctx context.Context, draft Draft) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.sitePath("draft"), nil, draft, &resp); err != nil {
		return "", fmt.Errorf("create draft: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create draft: empty draft id in response")
	}
	return resp.ID, nil
}

func (c *HTTPClient) AcceptDraft(ctx context.Context, draftID string) error {
	if err := c.do(ctx, http.MethodPost, c.sitePath("draft", draftID, "accept"), nil, nil, nil); err != nil {
		return fmt.Errorf("accept draft %s: %w", draftID, err)
	}
	return nil
}
