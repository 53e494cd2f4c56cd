package resiliency

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/time/rate"
)

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.New("resiliency: circuit breaker open")

// EnhancedClient wraps http.Client with resilience patterns:
// - Exponential Backoff & Jitter
// - Circuit Breaking, one breaker per host
// - Client-side rate limiting
// - Trace context propagation
//
// Requests must be replayable (no body, or GetBody set) since they may be sent more than once.
type EnhancedClient struct {
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	limiter    *rate.Limiter
	breakers   *breakerSet
}

// breakerSet holds one CircuitBreaker per host.
type breakerSet struct {
	mu        sync.Mutex
	threshold int
	timeout   time.Duration
	byHost    map[string]*CircuitBreaker
}

// Option configures an EnhancedClient.
type Option func(*EnhancedClient)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *EnhancedClient) { e.client = c }
}

// WithMaxRetries sets how many times a failed request is retried.
func WithMaxRetries(n int) Option {
	return func(e *EnhancedClient) {
		if n >= 0 {
			e.maxRetries = n
		}
	}
}

// WithBaseDelay sets the first backoff interval.
func WithBaseDelay(d time.Duration) Option {
	return func(e *EnhancedClient) { e.baseDelay = d }
}

// WithTimeout sets the per-attempt timeout of the underlying client.
func WithTimeout(d time.Duration) Option {
	return func(e *EnhancedClient) {
		if d > 0 {
			e.client.Timeout = d
		}
	}
}

// WithRateLimit caps the request rate; zero disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(e *EnhancedClient) {
		if perSecond <= 0 {
			e.limiter = nil
			return
		}
		e.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithBreaker sets how many consecutive failures open a host's breaker and
// how long it stays open.
func WithBreaker(threshold int, timeout time.Duration) Option {
	return func(e *EnhancedClient) {
		if threshold > 0 {
			e.breakers.threshold = threshold
		}
		if timeout > 0 {
			e.breakers.timeout = timeout
		}
	}
}

func NewEnhancedClient(opts ...Option) *EnhancedClient {
	c := &EnhancedClient{
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		breakers:   &breakerSet{
			threshold: 5,
			timeout:   10 * time.Second,
			byHost:    make(map[string]*CircuitBreaker),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breaker returns the circuit breaker guarding host, creating it on first use.
// A failing host never trips the breaker of another.
func (c *EnhancedClient) Breaker(host string) *CircuitBreaker {
	b := c.breakers
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.byHost[host]
	if !ok {
		cb = NewCircuitBreaker(host, b.threshold, b.timeout)
		b.byHost[host] = cb
	}
	return cb
}

// NoRedirects returns a client that hands 3xx responses back instead of
// following them. It shares c's breakers and rate limit; c is unchanged.
func (c *EnhancedClient) NoRedirects() *EnhancedClient {
	hc := *c.client
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	nc := *c
	nc.client = &hc
	return &nc
}

// HTTPClient exposes the underlying client.
func (c *EnhancedClient) HTTPClient() *http.Client {
	return c.client
}

// Do executes an HTTP request with resiliency patterns.
// Responses with status < 500 are returned as-is; 5xx and transport errors are retried.
// When retries are exhausted the last error is returned; a trailing 5xx response is
// returned with a nil error so the caller can inspect it.
func (c *EnhancedClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	// 1. Trace Injection (W3C Trace Context)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	// 2. Circuit Breaker Check
	breaker := c.Breaker(req.URL.Host)
	if !breaker.Allow() {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, breaker.name)
	}

	var resp *http.Response
	var err error

	// 3. Retry Loop with Exponential Backoff + Jitter
	for i := 0; i <= c.maxRetries; i++ {
		if c.limiter != nil {
			if werr := c.limiter.Wait(ctx); werr != nil {
				return nil, werr
			}
		}

		attempt := req
		if i > 0 && req.GetBody != nil {
			attempt = req.Clone(ctx)
			if attempt.Body, err = req.GetBody(); err != nil {
				return nil, err
			}
		}
		resp, err = c.client.Do(attempt)

		// Success
		if err == nil && resp.StatusCode < 500 {
			breaker.Success()
			return resp, nil
		}

		// Failure - Check if we should retry
		if i == c.maxRetries {
			break
		}
		if resp != nil {
			_ = resp.Body.Close()
		}

		// Calculate backoff: base * 2^i + jitter
		backoff := time.Duration(math.Pow(2, float64(i))) * c.baseDelay
		jitter := time.Duration(0)
		if n, jerr := rand.Int(rand.Reader, big.NewInt(50)); jerr == nil {
			jitter = time.Duration(n.Int64()) * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}

	// 4. Record Failure
	breaker.Failure()
	return resp, err
}

// CircuitBreaker implements a simple state machine for failure detection.
type CircuitBreaker struct {
	mu           sync.Mutex
	name         string
	failureCount int
	threshold    int
	lastFailure  time.Time
	resetTimeout time.Duration
	state        string // "CLOSED", "OPEN", "HALF_OPEN"
}

func NewCircuitBreaker(name string, threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: timeout,
		state:        "CLOSED",
	}
}

func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == "OPEN" {
		if time.Since(cb.lastFailure) > cb.resetTimeout {
			cb.state = "HALF_OPEN"
			return true
		}
		return false
	}
	return true
}

func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == "HALF_OPEN" {
		cb.state = "CLOSED"
	}
	cb.failureCount = 0
}

func (cb *CircuitBreaker) Failure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failureCount++
	cb.lastFailure = time.Now()
	if cb.failureCount >= cb.threshold {
		cb.state = "OPEN"
	}
}

// State returns the breaker state name.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
