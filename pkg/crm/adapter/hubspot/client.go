// Package hubspot implements the object store over the HubSpot CRM REST API.
package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/tigerroll/crmimport/pkg/crm/core/application/port"
	"github.com/tigerroll/crmimport/pkg/crm/core/config"
	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/exception"
	"github.com/tigerroll/crmimport/pkg/crm/support/util/logger"
)

const (
	ModuleHubSpot = "HubSpotClient"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 8 << 20
	// maxMessageBytes bounds error messages taken from a raw response body.
	maxMessageBytes = 200
)

// Client talks to the HubSpot CRM API. Every request passes through a token-bucket limiter.
type Client struct {
	baseURL          string
	apiKey           string
	httpClient       *http.Client
	limiter          *rate.Limiter
	propertyMappings map[string]map[string]string
	associationTypes map[string]int
	now              func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLimiter replaces the request limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// NewClient creates a Client from the hubspot configuration section.
func NewClient(cfg *config.HubSpotConfig, opts ...Option) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	c := &Client{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:           cfg.APIKey,
		httpClient:       &http.Client{Timeout: cfg.Timeout()},
		limiter:          rate.NewLimiter(limit, 1),
		propertyMappings: cfg.PropertyMappings,
		associationTypes: cfg.AssociationTypes,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	logger.Infof("%s: initialized for %s (%.1f requests/s).", ModuleHubSpot, c.baseURL, cfg.RequestsPerSecond)
	return c
}

// BatchCreate creates one chunk of records through the batch create endpoint.
// Records rejected inside a 207 multi-status response get a per-record permanent error.
func (c *Client) BatchCreate(ctx context.Context, entity model.EntityType, records []*model.Record) ([]port.CreateOutcome, error) {
	if !entity.Valid() {
		return nil, exception.NewPermanentError(0, fmt.Sprintf("unsupported entity type %q", entity), nil)
	}
	mapping := c.propertyMappings[string(entity)]
	req := batchCreateRequest{Inputs: make([]batchInput, len(records))}
	for i, r := range records {
		req.Inputs[i] = batchInput{Properties: properties(r, mapping), ObjectWriteTraceID: traceID(r.Index)}
	}

	var resp batchCreateResponse
	status, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/crm/v3/objects/%s/batch/create", entity), req, &resp)
	if err != nil {
		return nil, err
	}
	logger.Debugf("%s: batch create %s returned %d (%d results, %d errors).", ModuleHubSpot, entity, status, len(resp.Results), len(resp.Errors))
	return matchOutcomes(records, resp, status), nil
}

// matchOutcomes pairs results with records by trace ID, falling back to response order
// for results without one.
func matchOutcomes(records []*model.Record, resp batchCreateResponse, status int) []port.CreateOutcome {
	inChunk := make(map[int]bool, len(records))
	for _, r := range records {
		inChunk[r.Index] = true
	}
	done := make(map[int]bool, len(records))
	outcomes := make([]port.CreateOutcome, 0, len(records))

	for _, e := range resp.Errors {
		for _, id := range e.Context["objectWriteTraceId"] {
			idx, ok := parseTraceID(id)
			if !ok || !inChunk[idx] || done[idx] {
				continue
			}
			done[idx] = true
			outcomes = append(outcomes, port.CreateOutcome{
				Index: idx,
				Err:   exception.NewPermanentError(status, e.Message, nil),
			})
		}
	}

	var untraced []objectResult
	for _, res := range resp.Results {
		idx, ok := parseTraceID(res.ObjectWriteTraceID)
		if !ok || !inChunk[idx] || done[idx] {
			untraced = append(untraced, res)
			continue
		}
		done[idx] = true
		outcomes = append(outcomes, port.CreateOutcome{Index: idx, RemoteID: res.ID})
	}
	for _, r := range records {
		if len(untraced) == 0 {
			break
		}
		if done[r.Index] {
			continue
		}
		done[r.Index] = true
		outcomes = append(outcomes, port.CreateOutcome{Index: r.Index, RemoteID: untraced[0].ID})
		untraced = untraced[1:]
	}
	return outcomes
}

// CreateAssociation links two objects with the configured association type.
func (c *Client) CreateAssociation(ctx context.Context, sourceID, targetID string, kind model.RelationKind) error {
	typeID, ok := c.associationTypes[string(kind)]
	if !ok {
		return exception.NewPermanentError(0, fmt.Sprintf("no association type configured for %s", kind), nil)
	}
	from, to := kind.Endpoints()
	path := fmt.Sprintf("/crm/v4/objects/%s/%s/associations/%s/%s",
		from, url.PathEscape(sourceID), to, url.PathEscape(targetID))
	body := []associationTypeRef{{AssociationCategory: associationCategoryDefined, AssociationTypeID: typeID}}
	_, err := c.do(ctx, http.MethodPut, path, body, nil)
	return err
}

// VerifyCredentials issues a minimal read to check that the API key is accepted.
func (c *Client) VerifyCredentials(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodGet, "/crm/v3/objects/contacts?limit=1", nil, nil); err != nil {
		return err
	}
	logger.Infof("%s: API connection verified.", ModuleHubSpot)
	return nil
}

// FindContactByEmail searches for an existing contact with the given email.
func (c *Client) FindContactByEmail(ctx context.Context, email string) (string, bool, error) {
	req := searchRequest{
		FilterGroups: []filterGroup{{Filters: []searchFilter{{PropertyName: model.FieldEmail, Operator: "EQ", Value: email}}}},
		Properties:   []string{model.FieldEmail},
		Limit:        1,
	}
	var resp searchResponse
	if _, err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", req, &resp); err != nil {
		return "", false, err
	}
	if len(resp.Results) == 0 {
		return "", false, nil
	}
	return resp.Results[0].ID, true, nil
}

// do sends one request and decodes a successful response into out.
// Failures are classified into the RemoteError taxonomy.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, exception.NewTransientError(0, "request limiter", err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, exception.NewBatchError(ModuleHubSpot, "Failed to encode request body", err, false, false)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, exception.NewBatchError(ModuleHubSpot, "Failed to create API request", err, false, false)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, exception.ClassifyTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, exception.ClassifyTransportError(err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		return resp.StatusCode, exception.ClassifyStatus(resp.StatusCode, retryAfter, errorMessage(resp.StatusCode, data))
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, exception.NewPermanentError(resp.StatusCode, "malformed response body", err)
		}
	}
	return resp.StatusCode, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date. Unparseable or past values yield 0.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func errorMessage(status int, data []byte) string {
	var e errorResponse
	if err := json.Unmarshal(data, &e); err == nil && e.Message != "" {
		return e.Message
	}
	if text := strings.TrimSpace(string(data)); text != "" {
		return truncate(text, maxMessageBytes)
	}
	return http.StatusText(status)
}

// truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var (
	_ port.ObjectStore         = (*Client)(nil)
	_ port.CredentialsVerifier = (*Client)(nil)
	_ port.ContactFinder       = (*Client)(nil)
)
