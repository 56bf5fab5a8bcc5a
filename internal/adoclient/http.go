package adoclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/ado-mcp/ado-work-mcp/internal/telemetry"
)

// TokenSource supplies the bearer token attached to every outbound request.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// HTTPClient is the Client implementation backed by the real Azure DevOps
// REST API. Every call passes through a circuit breaker (so a failing ADO
// backend fails fast instead of piling up timeouts) and a token-bucket
// limiter (so a burst of bulk-operation calls does not trip ADO's own
// rate limiting).
type HTTPClient struct {
	baseURL      string
	organization string
	http         *http.Client
	tokens       TokenSource
	limiter      *rate.Limiter
	breaker      *gobreaker.CircuitBreaker
	tracer       telemetry.Tracer
	retry        RetryConfig
}

// RetryConfig controls the bounded backoff applied to transient (429/5xx/
// timeout) request failures, mirroring internal/token's BackoffConfig for
// the credential-source boundary.
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            float64
}

// DefaultRetryConfig allows 3 total attempts, 200ms initial delay doubling
// each time up to a 2s ceiling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    200 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

// Option configures an HTTPClient at construction time.
type Option func(*HTTPClient)

// WithHTTPClient overrides the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.http = c }
}

// WithRateLimit overrides the outbound request rate limit (requests/sec,
// burst).
func WithRateLimit(rps float64, burst int) Option {
	return func(h *HTTPClient) { h.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithBreakerSettings overrides the circuit breaker configuration.
func WithBreakerSettings(settings gobreaker.Settings) Option {
	return func(h *HTTPClient) { h.breaker = gobreaker.NewCircuitBreaker(settings) }
}

// WithTracer attaches a tracer; every outbound call starts a span under it,
// so trace context propagates from a dispatcher-level span down onto the
// ADO HTTP request. Defaults to a no-op.
func WithTracer(t telemetry.Tracer) Option {
	return func(h *HTTPClient) { h.tracer = t }
}

// WithRetry overrides the retry/backoff schedule applied to transient
// request failures.
func WithRetry(cfg RetryConfig) Option {
	return func(h *HTTPClient) { h.retry = cfg }
}

// New constructs an HTTPClient for the given organization against baseURL
// (typically "https://dev.azure.com"), authenticating every request with a
// token drawn from tokens.
func New(baseURL, organization string, tokens TokenSource, opts ...Option) *HTTPClient {
	h := &HTTPClient{
		baseURL:      baseURL,
		organization: organization,
		http:         &http.Client{Timeout: RequestTimeout},
		tokens:       tokens,
		limiter:      rate.NewLimiter(rate.Limit(10), 20),
		tracer:       telemetry.NoopTracer{},
		retry:        DefaultRetryConfig(),
	}
	h.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ado-client",
		MaxRequests: 1,
		Interval:    0,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	})
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

var _ Client = (*HTTPClient)(nil)

// workItemDTO mirrors the Azure DevOps REST wire shape: typed fields live
// under "fields" keyed by reference name (e.g. "System.Title"), relations
// are a separate top-level array.
type workItemDTO struct {
	ID     int            `json:"id"`
	Fields map[string]any `json:"fields"`
	Relations []struct {
		Rel string `json:"rel"`
		URL string `json:"url"`
	} `json:"relations"`
}

func (dto workItemDTO) toWorkItem() *WorkItem {
	wi := &WorkItem{ID: dto.ID, Fields: dto.Fields}
	if s, ok := dto.Fields["System.Title"].(string); ok {
		wi.Title = s
	}
	if s, ok := dto.Fields["System.State"].(string); ok {
		wi.State = s
	}
	if s, ok := dto.Fields["System.WorkItemType"].(string); ok {
		wi.Type = s
	}
	if s, ok := dto.Fields["System.IterationPath"].(string); ok {
		wi.IterationPath = s
	}
	if s, ok := dto.Fields["System.AreaPath"].(string); ok {
		wi.AreaPath = s
	}
	if assignee, ok := dto.Fields["System.AssignedTo"].(map[string]any); ok {
		if name, ok := assignee["displayName"].(string); ok {
			wi.AssignedTo = name
		}
	}
	if tags, ok := dto.Fields["System.Tags"].(string); ok {
		wi.Tags = SplitTags(tags)
	}
	return wi
}

func (dto workItemDTO) relations() []Relation {
	rels := make([]Relation, 0, len(dto.Relations))
	for _, r := range dto.Relations {
		rels = append(rels, Relation{Rel: r.Rel, URL: r.URL})
	}
	return rels
}

// GetWorkItem fetches a single work item with its relations expanded.
func (h *HTTPClient) GetWorkItem(ctx context.Context, project string, id int) (*WorkItem, error) {
	var dto workItemDTO
	reqURL := BuildWorkItemURL(h.baseURL, h.organization, project, id) + "?$expand=relations&api-version=7.1"
	if err := h.do(ctx, http.MethodGet, reqURL, nil, &dto); err != nil {
		return nil, err
	}
	return dto.toWorkItem(), nil
}

// UpdateWorkItem applies a JSON-patch document to a work item.
func (h *HTTPClient) UpdateWorkItem(ctx context.Context, project string, id int, ops []PatchOp) (*WorkItem, error) {
	var dto workItemDTO
	reqURL := BuildWorkItemURL(h.baseURL, h.organization, project, id) + "?api-version=7.1"
	if err := h.do(ctx, http.MethodPatch, reqURL, ops, &dto); err != nil {
		return nil, err
	}
	return dto.toWorkItem(), nil
}

// AddComment appends a discussion comment to a work item.
func (h *HTTPClient) AddComment(ctx context.Context, project string, id int, text string) error {
	ops := []PatchOp{{Op: "add", Path: "/fields/System.History", Value: text}}
	_, err := h.UpdateWorkItem(ctx, project, id, ops)
	return err
}

// GetRelations returns the current link set on a work item.
func (h *HTTPClient) GetRelations(ctx context.Context, project string, id int) ([]Relation, error) {
	var dto workItemDTO
	reqURL := BuildWorkItemURL(h.baseURL, h.organization, project, id) + "?$expand=relations&api-version=7.1"
	if err := h.do(ctx, http.MethodGet, reqURL, nil, &dto); err != nil {
		return nil, err
	}
	return dto.relations(), nil
}

// AddLink creates a relation of linkType from sourceID to targetID.
func (h *HTTPClient) AddLink(ctx context.Context, project string, sourceID, targetID int, linkType string) error {
	targetURL := BuildWorkItemURL(h.baseURL, h.organization, project, targetID)
	ops := []PatchOp{{
		Op:   "add",
		Path: "/relations/-",
		Value: map[string]any{
			"rel": linkType,
			"url": targetURL,
		},
	}}
	_, err := h.UpdateWorkItem(ctx, project, sourceID, ops)
	return err
}

// IterationPathExists checks whether path is a valid iteration (classification
// node) under project.
func (h *HTTPClient) IterationPathExists(ctx context.Context, project, path string) (bool, error) {
	reqURL := fmt.Sprintf("%s/%s/%s/_apis/wit/classificationnodes/iterations?api-version=7.1",
		h.baseURL, url.PathEscape(h.organization), url.PathEscape(project))
	var result struct {
		Value []struct{ Path string } `json:"value"`
	}
	if err := h.do(ctx, http.MethodGet, reqURL, nil, &result); err != nil {
		return false, err
	}
	for _, v := range result.Value {
		if v.Path == path {
			return true, nil
		}
	}
	return false, nil
}

// wiqlResultDTO mirrors the WIQL endpoint's response shape: a flat list of
// matching ids, which must then be fetched (batched) for field values.
type wiqlResultDTO struct {
	WorkItems []struct {
		ID int `json:"id"`
	} `json:"workItems"`
}

// workItemsBatchDTO mirrors the work item batch-get endpoint.
type workItemsBatchDTO struct {
	Value []workItemDTO `json:"value"`
}

// wiqlBatchSize caps how many ids are resolved per batch-get call, matching
// the Azure DevOps REST API's own batch-get ceiling.
const wiqlBatchSize = 200

// QueryByWIQL runs wiql and resolves the matching ids into full work items
// via the batch-get endpoint, preserving the WIQL result's ordering.
func (h *HTTPClient) QueryByWIQL(ctx context.Context, project, wiql string) ([]WorkItem, error) {
	reqURL := fmt.Sprintf("%s/%s/%s/_apis/wit/wiql?api-version=7.1",
		h.baseURL, url.PathEscape(h.organization), url.PathEscape(project))

	var result wiqlResultDTO
	body := map[string]string{"query": wiql}
	if err := h.do(ctx, http.MethodPost, reqURL, body, &result); err != nil {
		return nil, fmt.Errorf("adoclient: wiql query: %w", err)
	}

	ids := make([]int, 0, len(result.WorkItems))
	for _, wi := range result.WorkItems {
		ids = append(ids, wi.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	byID := make(map[int]*WorkItem, len(ids))
	for start := 0; start < len(ids); start += wiqlBatchSize {
		end := start + wiqlBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := h.batchGet(ctx, project, ids[start:end])
		if err != nil {
			return nil, err
		}
		for _, wi := range batch {
			id := wi.ID
			byID[id] = wi
		}
	}

	out := make([]WorkItem, 0, len(ids))
	for _, id := range ids {
		if wi, ok := byID[id]; ok {
			out = append(out, *wi)
		}
	}
	return out, nil
}

func (h *HTTPClient) batchGet(ctx context.Context, project string, ids []int) ([]*WorkItem, error) {
	reqURL := fmt.Sprintf("%s/%s/%s/_apis/wit/workitemsbatch?api-version=7.1",
		h.baseURL, url.PathEscape(h.organization), url.PathEscape(project))
	body := map[string]any{
		"ids":     ids,
		"$expand": "relations",
	}
	var result workItemsBatchDTO
	if err := h.do(ctx, http.MethodPost, reqURL, body, &result); err != nil {
		return nil, fmt.Errorf("adoclient: batch get: %w", err)
	}
	items := make([]*WorkItem, 0, len(result.Value))
	for _, dto := range result.Value {
		items = append(items, dto.toWorkItem())
	}
	return items, nil
}

// StatusClass buckets a non-2xx ADO response into the permanent-error
// classes callers can act on directly, the same way internal/token's Class
// buckets credential-acquisition failures.
type StatusClass string

const (
	StatusUnauthorized StatusClass = "unauthorized"
	StatusForbidden    StatusClass = "forbidden"
	StatusNotFound     StatusClass = "not found"
	StatusRateLimited  StatusClass = "rate limited"
	StatusServerError  StatusClass = "server error"
	StatusUnknown      StatusClass = "unknown"
)

// StatusError is returned when the ADO REST API responds with a non-2xx
// status. Class classifies the response so callers (and the bulk engine's
// per-item failure reporting) can distinguish a permanent rejection from a
// transient one without re-parsing the message text.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Class      StatusClass
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("adoclient: %s %s: %s (status %d): %s", e.Method, e.URL, e.Class, e.StatusCode, e.Body)
}

func classifyStatus(code int) StatusClass {
	switch {
	case code == http.StatusUnauthorized:
		return StatusUnauthorized
	case code == http.StatusForbidden:
		return StatusForbidden
	case code == http.StatusNotFound:
		return StatusNotFound
	case code == http.StatusTooManyRequests:
		return StatusRateLimited
	case code >= 500:
		return StatusServerError
	default:
		return StatusUnknown
	}
}

// retryableStatus reports whether a status class is worth retrying:
// rate-limiting and server errors are presumed transient; everything else
// (including 401/403/404) is a permanent rejection of this exact call.
func retryableStatus(class StatusClass) bool {
	return class == StatusRateLimited || class == StatusServerError
}

func (h *HTTPClient) do(ctx context.Context, method, reqURL string, body, out any) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("adoclient: rate limiter: %w", err)
	}

	ctx, span := h.tracer.Start(ctx, "adoclient."+method)
	defer span.End()

	cfg := h.retry
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var raw []byte
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := h.breaker.Execute(func() (any, error) {
			return h.doOnce(ctx, method, reqURL, body)
		})
		if err == nil {
			raw, lastErr = result.([]byte), nil
			break
		}
		lastErr = err

		var statusErr *StatusError
		transient := errors.As(err, &statusErr) && retryableStatus(statusErr.Class)
		transient = transient || errors.Is(err, context.DeadlineExceeded)
		if !transient || attempt >= cfg.MaxAttempts {
			break
		}

		delay := retryBackoff(cfg, attempt)
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = cfg.MaxAttempts
		case <-time.After(delay):
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
		return lastErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// retryBackoff computes the delay before retry attempt, matching
// internal/token's exponential-with-jitter schedule.
func retryBackoff(cfg RetryConfig, attempt int) time.Duration {
	d := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if d > float64(cfg.MaxBackoff) {
		d = float64(cfg.MaxBackoff)
	}
	if cfg.Jitter > 0 {
		d += d * cfg.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter need not be cryptographically random
	}
	return time.Duration(d)
}

func (h *HTTPClient) doOnce(ctx context.Context, method, reqURL string, body any) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("adoclient: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("adoclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json-patch+json")

	tok, err := h.tokens.GetToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("adoclient: acquire token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := h.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("adoclient: request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("adoclient: read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{
			Method:     method,
			URL:        reqURL,
			StatusCode: resp.StatusCode,
			Class:      classifyStatus(resp.StatusCode),
			Body:       string(respBody),
		}
	}
	return respBody, nil
}

// SplitTags parses the ADO wire representation of a work item's tags: a
// semicolon-separated string with arbitrary surrounding whitespace per
// segment.
func SplitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ";") {
		t = strings.TrimSpace(t)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// JoinTags serializes a tag list back to the ADO wire representation.
func JoinTags(tags []string) string {
	return strings.Join(tags, "; ")
}
