// Package token provides on-demand access tokens for the downstream Azure
// DevOps API, minimizing calls to the underlying credential source (an
// external CLI invocation) through caching and single-flight coalescing.
package token

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// safetyMargin is subtracted from a cached token's expiry when deciding
// whether it is stale. A token within five minutes of expiring is treated
// as already expired, so callers never race a credential that dies mid-call.
const safetyMargin = 5 * time.Minute

// Class classifies an acquisition failure so callers can surface actionable
// remediation text and so the provider can decide whether to retry.
type Class string

const (
	ClassNotLoggedIn        Class = "AUTH_NOT_LOGGED_IN"
	ClassTokenExpired       Class = "AUTH_TOKEN_EXPIRED"
	ClassCLINotAvailable    Class = "AUTH_CLI_NOT_AVAILABLE"
	ClassInsufficientPerms  Class = "AUTH_INSUFFICIENT_PERMISSIONS"
	ClassNetworkTimeout     Class = "NETWORK_TIMEOUT"
	ClassRateLimited        Class = "RATE_LIMITED"
	ClassServiceUnavailable Class = "SERVICE_UNAVAILABLE"
	ClassUnknown            Class = "UNKNOWN"
)

type classRule struct {
	class       Class
	substrings  []string
	retryable   bool
	remediation string
}

// classificationTable is consulted in order; the first matching rule wins.
var classificationTable = []classRule{
	{ClassNotLoggedIn, []string{"please run az login", "setup account"}, false,
		"run `az login` (or the equivalent account setup command) and retry"},
	{ClassTokenExpired, []string{"token has expired", "token expired"}, false,
		"the cached credential has expired; clear the cache and re-authenticate"},
	{ClassCLINotAvailable, []string{"command not found", "az: not found"}, false,
		"install the Azure CLI and ensure it is on PATH"},
	{ClassInsufficientPerms, []string{"insufficient permissions", "permission denied"}, false,
		"request the Azure DevOps permissions required for this organization"},
	{ClassNetworkTimeout, []string{"timeout", "econnrefused", "econnreset", "enotfound", "socket hang up"}, true,
		"a transient network error occurred while acquiring a token; it will be retried"},
	{ClassRateLimited, []string{"rate limit", "429", "too many requests"}, true,
		"the credential source is rate-limiting requests; it will be retried with backoff"},
	{ClassServiceUnavailable, []string{"503", "502", "504", "service unavailable", "bad gateway"}, true,
		"the credential source is temporarily unavailable; it will be retried"},
}

// Classify maps an acquisition error to its Class via case-insensitive
// substring match. Unrecognized errors classify as ClassUnknown and are not
// retried.
func Classify(err error) Class {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range classificationTable {
		for _, s := range rule.substrings {
			if strings.Contains(msg, s) {
				return rule.class
			}
		}
	}
	return ClassUnknown
}

// Retryable reports whether a Class should be retried with backoff.
func Retryable(c Class) bool {
	for _, rule := range classificationTable {
		if rule.class == c {
			return rule.retryable
		}
	}
	return false
}

// Remediation returns the actionable message surfaced alongside a
// classified error.
func Remediation(c Class) string {
	for _, rule := range classificationTable {
		if rule.class == c {
			return rule.remediation
		}
	}
	return "an unexpected error occurred while acquiring a token"
}

// AcquireError wraps a credential-source failure with its Class and
// remediation text. It satisfies errors.Unwrap so callers can still reach
// the underlying cause.
type AcquireError struct {
	Class       Class
	Remediation string
	Cause       error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Class, e.Remediation, e.Cause)
}

func (e *AcquireError) Unwrap() error { return e.Cause }

func classify(err error) *AcquireError {
	class := Classify(err)
	return &AcquireError{Class: class, Remediation: Remediation(class), Cause: err}
}

// Credentials is what a credential source hands back: a bearer token and
// its absolute expiry.
type Credentials struct {
	Token     string
	ExpiresAt time.Time
}

// Source acquires fresh credentials from the underlying identity provider,
// e.g. by shelling out to `az account get-access-token`.
type Source func(ctx context.Context) (Credentials, error)

// BackoffConfig controls the retry schedule applied to retryable
// acquisition failures.
type BackoffConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            float64
}

// DefaultBackoffConfig matches the specification: 3 total attempts, 100ms
// initial delay doubling each time.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

// Info is the introspection-only view returned by GetTokenInfo.
type Info struct {
	ExpiresIn time.Duration
	IsCached  bool
}

type cacheEntry struct {
	creds Credentials
}

// inflight is the single outstanding acquisition future installed under the
// provider's lock; later callers await it instead of invoking source again.
type inflight struct {
	done  chan struct{}
	creds Credentials
	err   error
}

// Provider serves cached access tokens, acquiring fresh ones from source on
// demand. A Provider is safe for concurrent use; at most one acquisition
// from source is ever in flight, regardless of how many goroutines call
// GetToken concurrently.
type Provider struct {
	source  Source
	backoff BackoffConfig
	clock   func() time.Time

	mu      sync.Mutex
	cached  *cacheEntry
	current *inflight
}

// Option configures a Provider at construction time.
type Option func(*Provider)

// WithBackoff overrides the default retry schedule.
func WithBackoff(cfg BackoffConfig) Option {
	return func(p *Provider) { p.backoff = cfg }
}

// WithClock overrides the time source; intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(p *Provider) { p.clock = clock }
}

// New constructs a Provider backed by source.
func New(source Source, opts ...Option) *Provider {
	p := &Provider{
		source:  source,
		backoff: DefaultBackoffConfig(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// GetToken returns a non-stale cached token, acquiring a fresh one if
// necessary. Concurrent callers during acquisition coalesce onto the same
// in-flight request.
func (p *Provider) GetToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.cached != nil && !p.stale(p.cached) {
		token := p.cached.creds.Token
		p.mu.Unlock()
		return token, nil
	}

	if p.current != nil {
		fut := p.current
		p.mu.Unlock()
		return p.awaitInflight(ctx, fut)
	}

	fut := &inflight{done: make(chan struct{})}
	p.current = fut
	p.mu.Unlock()

	creds, err := p.acquireWithRetry(ctx)

	p.mu.Lock()
	if err == nil {
		p.cached = &cacheEntry{creds: creds}
	}
	p.current = nil
	p.mu.Unlock()

	fut.creds, fut.err = creds, err
	close(fut.done)

	if err != nil {
		return "", err
	}
	return creds.Token, nil
}

func (p *Provider) awaitInflight(ctx context.Context, fut *inflight) (string, error) {
	select {
	case <-fut.done:
		if fut.err != nil {
			return "", fut.err
		}
		return fut.creds.Token, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ClearCache drops the cached entry; the next GetToken acquires anew.
func (p *Provider) ClearCache() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached = nil
}

// GetTokenInfo reports on the current cache state without triggering an
// acquisition.
func (p *Provider) GetTokenInfo() *Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached == nil {
		return nil
	}
	return &Info{
		ExpiresIn: p.cached.creds.ExpiresAt.Sub(p.clock()),
		IsCached:  true,
	}
}

func (p *Provider) stale(e *cacheEntry) bool {
	return !p.clock().Add(safetyMargin).Before(e.creds.ExpiresAt)
}

func (p *Provider) acquireWithRetry(ctx context.Context) (Credentials, error) {
	cfg := p.backoff
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		creds, err := p.source(ctx)
		if err == nil {
			return creds, nil
		}

		acqErr := classify(err)
		lastErr = acqErr

		if !Retryable(acqErr.Class) || attempt >= cfg.MaxAttempts {
			return Credentials{}, acqErr
		}

		delay := backoffDelay(cfg, attempt)
		select {
		case <-ctx.Done():
			return Credentials{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return Credentials{}, lastErr
}

func backoffDelay(cfg BackoffConfig, attempt int) time.Duration {
	d := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(attempt-1))
	if d > float64(cfg.MaxBackoff) {
		d = float64(cfg.MaxBackoff)
	}
	if cfg.Jitter > 0 {
		d += d * cfg.Jitter * (rand.Float64()*2 - 1) //nolint:gosec // jitter need not be cryptographically random
	}
	return time.Duration(d)
}
