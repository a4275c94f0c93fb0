package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"purify/internal/etl"
)

// ── Relay Client ───────────────────────────────────────────
// Talks to a purify server: GET /companies returns reshaped records
// keyed by raw company name, POST /companies cleans and stores them.

const companiesPath = "/companies"

// Client calls the read and write routes of a purify server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the server at baseURL ("http://host:port").
// A zero timeout means 30s.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Method  string
	URL     string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.URL, e.Code, e.Message)
}

// FetchCompanies reads the reshaped records from the read route.
func (c *Client) FetchCompanies(ctx context.Context) ([]etl.NamedRecord, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+companiesPath, nil)
	if err != nil {
		return nil, err
	}
	records, err := etl.ParseNamedRecords(body)
	if err != nil {
		return nil, fmt.Errorf("decode companies: %w", err)
	}
	return records, nil
}

// writeResponse is the body of the write route.
type writeResponse struct {
	Success  bool   `json:"success"`
	Inserted int    `json:"inserted"`
	Error    string `json:"error"`
}

// PushCompanies sends records to the write route and returns how many were inserted.
func (c *Client) PushCompanies(ctx context.Context, records []etl.NamedRecord, mode etl.SyncMode) (int, error) {
	if records == nil {
		records = []etl.NamedRecord{}
	}
	payload, err := etl.EncodeJSON(records)
	if err != nil {
		return 0, fmt.Errorf("encode companies: %w", err)
	}

	target := c.baseURL + companiesPath
	if mode != "" {
		target += "?" + url.Values{"mode": {string(mode)}}.Encode()
	}
	body, err := c.do(ctx, http.MethodPost, target, payload)
	if err != nil {
		return 0, err
	}

	var resp writeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode write response: %w", err)
	}
	if !resp.Success {
		return resp.Inserted, fmt.Errorf("write rejected: %s", resp.Error)
	}
	return resp.Inserted, nil
}

// Result summarizes one relay pass.
type Result struct {
	Fetched  int           `json:"fetched"`
	Inserted int           `json:"inserted"`
	Duration time.Duration `json:"duration"`
}

// Relay reads from the read route and posts the same records to the write route.
func (c *Client) Relay(ctx context.Context, mode etl.SyncMode) (*Result, error) {
	start := time.Now()
	records, err := c.FetchCompanies(ctx)
	if err != nil {
		return nil, err
	}
	log.Printf("relay: fetched %d record(s) from %s", len(records), c.baseURL)

	inserted, err := c.PushCompanies(ctx, records, mode)
	res := &Result{Fetched: len(records), Inserted: inserted, Duration: time.Since(start)}
	if err != nil {
		return res, err
	}
	log.Printf("relay: inserted %d record(s) in %s", inserted, res.Duration)
	return res, nil
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{Method: method, URL: target, Code: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

// errorMessage pulls "error" out of a JSON error body, else returns the first bytes.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	if len(body) > 1024 {
		body = body[:1024]
	}
	return strings.TrimSpace(string(body))
}
