// Package client is the Go SDK for the carbonledger HTTP API. It covers the
// operations dashboards and back-office tools need: appending audit events,
// moving credits through their lifecycle, querying entries, and verifying
// chain integrity.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Entry mirrors a ledger entry as returned by the API.
type Entry struct {
	Sequence    uint64            `json:"sequence"`
	SubjectType string            `json:"subject_type"`
	Timestamp   time.Time         `json:"timestamp"`
	ActorID     string            `json:"actor_id"`
	ActorRole   string            `json:"actor_role"`
	Action      string            `json:"action"`
	Resource    string            `json:"resource"`
	Payload     map[string]string `json:"payload,omitempty"`
	PrevHash    string            `json:"previous_hash"`
	Hash        string            `json:"hash"`
}

// RangeResult mirrors the verification outcome returned by GET /verify.
type RangeResult struct {
	Valid        bool   `json:"valid"`
	BrokenAt     uint64 `json:"broken_at,omitempty"`
	Reason       string `json:"reason,omitempty"`
	LastVerified uint64 `json:"last_verified"`
	Partial      bool   `json:"partial,omitempty"`
}

// Overview mirrors GET /ledger.
type Overview struct {
	SubjectType string `json:"subject_type"`
	Entries     uint64 `json:"entries"`
	Root        string `json:"root"`
}

// QueryResult mirrors GET /entries.
type QueryResult struct {
	Entries    []Entry `json:"entries"`
	Pagination struct {
		Page  int `json:"page"`
		Limit int `json:"limit"`
		Total int `json:"total"`
		Pages int `json:"pages"`
	} `json:"pagination"`
	Stats struct {
		Total      int            `json:"total"`
		BySeverity map[string]int `json:"by_severity,omitempty"`
		ByStatus   map[string]int `json:"by_status,omitempty"`
		ByAction   map[string]int `json:"by_action"`
	} `json:"stats"`
}

// AuditEvent is the payload for AppendAuditEvent.
type AuditEvent struct {
	Action   string            `json:"action"`
	Resource string            `json:"resource,omitempty"`
	Details  string            `json:"details,omitempty"`
	Severity string            `json:"severity,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Client is the carbonledger SDK entry point.
type Client struct {
	base        string
	httpClient  *http.Client
	bearerToken string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBearerToken attaches an actor session token to every request.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.bearerToken = token }
}

// New creates a Client for the ledger API at base (e.g. "http://localhost:8080").
func New(base string, opts ...Option) *Client {
	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// AppendAuditEvent records one audit event and returns the completed entry.
func (c *Client) AppendAuditEvent(ctx context.Context, ev AuditEvent) (*Entry, error) {
	var entry Entry
	if err := c.do(ctx, http.MethodPost, "/api/v1/audit/events", nil, ev, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// TransitionCredit moves a credit to newStatus.
func (c *Client) TransitionCredit(ctx context.Context, creditID, newStatus string, metadata map[string]string) (*Entry, error) {
	body := map[string]any{"status": newStatus, "metadata": metadata}
	var entry Entry
	path := "/api/v1/credits/" + url.PathEscape(creditID) + "/transition"
	if err := c.do(ctx, http.MethodPost, path, nil, body, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// OverrideCredit force-retires a credit with an audit reason.
func (c *Client) OverrideCredit(ctx context.Context, creditID, reason string, metadata map[string]string) (*Entry, error) {
	body := map[string]any{"override": true, "reason": reason, "metadata": metadata}
	var entry Entry
	path := "/api/v1/credits/" + url.PathEscape(creditID) + "/transition"
	if err := c.do(ctx, http.MethodPost, path, nil, body, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetCreditHistory returns the reconstructed lifecycle view for one credit.
func (c *Client) GetCreditHistory(ctx context.Context, creditID string) (*CreditHistory, error) {
	var h CreditHistory
	if err := c.do(ctx, http.MethodGet, "/api/v1/credits/"+url.PathEscape(creditID), nil, nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// CreditHistory mirrors GET /credits/:id.
type CreditHistory struct {
	CreditID      string  `json:"credit_id"`
	CurrentStatus string  `json:"current_status"`
	Entries       []Entry `json:"entries"`
}

// QueryEntries runs a filtered, paginated query over one ledger.
func (c *Client) QueryEntries(ctx context.Context, params url.Values) (*QueryResult, error) {
	var result QueryResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/entries", params, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetEntry fetches a single entry by sequence.
func (c *Client) GetEntry(ctx context.Context, subjectType string, seq uint64) (*Entry, error) {
	params := url.Values{"subject_type": {subjectType}}
	var entry Entry
	path := "/api/v1/entries/" + strconv.FormatUint(seq, 10)
	if err := c.do(ctx, http.MethodGet, path, params, nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// VerifyRange walks the chain over [from, to]; from/to of 0 mean the
// server-side defaults (1 and the current head).
func (c *Client) VerifyRange(ctx context.Context, subjectType string, from, to uint64) (*RangeResult, error) {
	params := url.Values{"subject_type": {subjectType}}
	if from > 0 {
		params.Set("from", strconv.FormatUint(from, 10))
	}
	if to > 0 {
		params.Set("to", strconv.FormatUint(to, 10))
	}
	var result RangeResult
	if err := c.do(ctx, http.MethodGet, "/api/v1/verify", params, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetOverview returns one ledger's length and root hash.
func (c *Client) GetOverview(ctx context.Context, subjectType string) (*Overview, error) {
	params := url.Values{"subject_type": {subjectType}}
	var ov Overview
	if err := c.do(ctx, http.MethodGet, "/api/v1/ledger", params, nil, &ov); err != nil {
		return nil, err
	}
	return &ov, nil
}

// Export downloads the filtered entry set in the given format and returns the
// raw bytes.
func (c *Client) Export(ctx context.Context, params url.Values, format string) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("format", format)

	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/export", params, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body any) (*http.Request, error) {
	u := c.base + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, params, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func apiError(resp *http.Response) error {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && e.Error != "" {
		return fmt.Errorf("ledger API %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("ledger API returned status %d", resp.StatusCode)
}
