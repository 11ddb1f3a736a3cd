package reports

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/reports/internal/csvexport"
)

// Client talks to a reports server over HTTP. It implements Backend.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse base url: unsupported scheme %q", u.Scheme)
	}

	c := &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CSVDataResponse is the body of GET /api/reports/csv-data.
type CSVDataResponse struct {
	Rows []csvexport.Row `json:"rows"`
}

// ListResponse is the body of GET /api/reports.
type ListResponse struct {
	Reports []Report `json:"reports"`
	Count   int      `json:"count"`
}

// GetCSVData fetches export rows matching req.
func (c *Client) GetCSVData(ctx context.Context, req ExportRequest) ([]csvexport.Row, error) {
	var resp CSVDataResponse
	if err := c.get(ctx, "/api/reports/csv-data", EncodeQuery(req), &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// List fetches at most limit reports matching req.
func (c *Client) List(ctx context.Context, req ExportRequest, limit int) ([]Report, error) {
	q := EncodeQuery(req)
	if limit > 0 {
		q.Set(ParamLimit, strconv.Itoa(limit))
	}

	var resp ListResponse
	if err := c.get(ctx, "/api/reports", q, &resp); err != nil {
		return nil, err
	}
	return resp.Reports, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL.JoinPath(path)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("reports api: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("reports api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("reports api: decode response: %w", err)
	}
	return nil
}

// APIError is a non-200 response from the reports server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("reports api: %s (status %d, code %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("reports api: %s (status %d)", e.Message, e.Status)
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Code    string `json:"code"`
	}
	apiErr := &APIError{Status: resp.StatusCode}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
		if apiErr.Message == "" {
			apiErr.Message = payload.Error
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
