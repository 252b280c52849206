// ABOUTME: Request dispatcher attaching base URL, bearer credentials, JSON content type and cookies
// ABOUTME: HTTP error statuses are returned as responses; only transport failures are errors

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/publicsuffix"

	"github.com/2389/gatekeeper/internal/metrics"
	"github.com/2389/gatekeeper/internal/session"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://127.0.0.1:5000/api"

// DefaultTimeout bounds a dispatch when the caller's context has no deadline.
const DefaultTimeout = 30 * time.Second

const tracerName = "github.com/2389/gatekeeper/internal/dispatch"

// Dispatch errors
var (
	ErrEncodeBody     = errors.New("encoding request body")
	ErrInvalidRequest = errors.New("invalid request")
	ErrTransport      = errors.New("transport failure")
)

// Precedence decides who wins when both the caller and the session supply
// an Authorization header.
type Precedence int

const (
	// PrecedenceSession overwrites a caller Authorization header with the
	// session's bearer token whenever a token is present.
	PrecedenceSession Precedence = iota
	// PrecedenceCaller keeps a caller Authorization header and only adds the
	// bearer token when the caller set none.
	PrecedenceCaller
)

func (p Precedence) String() string {
	switch p {
	case PrecedenceSession:
		return "session"
	case PrecedenceCaller:
		return "caller"
	default:
		return "unknown"
	}
}

// ParsePrecedence parses "session" or "caller". The empty string is "session".
func ParsePrecedence(s string) (Precedence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "session":
		return PrecedenceSession, nil
	case "caller":
		return PrecedenceCaller, nil
	default:
		return PrecedenceSession, fmt.Errorf("unknown authorization precedence %q (use session or caller)", s)
	}
}

// Options describes a single request.
type Options struct {
	// Method defaults to GET.
	Method string

	// Header is merged first; computed headers are applied on top.
	Header http.Header

	// Body is nil, []byte, string, io.Reader, url.Values, *Form, or any
	// value encoding/json can marshal.
	Body any
}

// Dispatcher issues outbound requests on behalf of the current session.
type Dispatcher struct {
	baseURL         string
	store           session.Store
	client          *http.Client
	precedence      Precedence
	requestIDHeader string
	logger          *slog.Logger
	metrics         *metrics.Metrics
	tracer          trace.Tracer
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithBaseURL sets the endpoint paths are appended to.
func WithBaseURL(baseURL string) Option {
	return func(d *Dispatcher) {
		if baseURL != "" {
			d.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets the transport client. A client without a cookie jar
// gets one, so session cookies are always sent.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		d.client = c
	}
}

// WithPrecedence sets the Authorization precedence rule.
func WithPrecedence(p Precedence) Option {
	return func(d *Dispatcher) {
		d.precedence = p
	}
}

// WithRequestIDHeader sends each dispatch's request ID in the named header.
func WithRequestIDHeader(name string) Option {
	return func(d *Dispatcher) {
		d.requestIDHeader = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMetrics records dispatch counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithTracer sets the tracer used for dispatch spans.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		d.tracer = t
	}
}

// NewCookieJar returns a jar that applies public suffix rules to cookie domains.
func NewCookieJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	return jar, nil
}

// New creates a Dispatcher reading credentials from store.
func New(store session.Store, opts ...Option) (*Dispatcher, error) {
	d := &Dispatcher{
		baseURL: DefaultBaseURL,
		store:   store,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.client == nil {
		d.client = &http.Client{Timeout: DefaultTimeout}
	}
	if d.client.Jar == nil {
		jar, err := NewCookieJar()
		if err != nil {
			return nil, err
		}
		c := *d.client
		c.Jar = jar
		d.client = &c
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}
	d.logger = d.logger.With("component", "dispatch")
	return d, nil
}

// BaseURL returns the configured endpoint.
func (d *Dispatcher) BaseURL() string {
	return d.baseURL
}

// Client returns the HTTP client, including its cookie jar.
func (d *Dispatcher) Client() *http.Client {
	return d.client
}

// NewRequest builds the fully configured request without sending it.
func (d *Dispatcher) NewRequest(ctx context.Context, path string, opts Options) (*http.Request, error) {
	method := strings.ToUpper(opts.Method)
	if method == "" {
		method = http.MethodGet
	}

	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, err
	}
	if body.reader != nil && (method == http.MethodGet || method == http.MethodHead) {
		return nil, fmt.Errorf("%w: %s request cannot have a body", ErrInvalidRequest, method)
	}

	target := d.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, target, body.reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	req.Header = d.headers(opts.Header, body)
	return req, nil
}

// headers computes the final header set. Caller headers go first; content
// type and authorization are applied on top.
func (d *Dispatcher) headers(caller http.Header, body encodedBody) http.Header {
	h := make(http.Header, len(caller)+2)
	for k, vs := range caller {
		for _, v := range vs {
			h.Add(k, v)
		}
	}

	if body.reader != nil && h.Get("Content-Type") == "" {
		if body.formType != "" {
			h.Set("Content-Type", body.formType)
		} else {
			h.Set("Content-Type", "application/json")
		}
	}

	if token, ok := d.token(); ok {
		if d.precedence == PrecedenceSession || h.Get("Authorization") == "" {
			h.Set("Authorization", "Bearer "+token)
		}
	}
	return h
}

func (d *Dispatcher) token() (string, bool) {
	if d.store == nil {
		return "", false
	}
	return d.store.Get(session.KeyToken)
}

// Dispatch sends a request to the base URL + path. Any HTTP status is a
// successful result; the caller owns the response body.
func (d *Dispatcher) Dispatch(ctx context.Context, path string, opts Options) (*http.Response, error) {
	req, err := d.NewRequest(ctx, path, opts)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	if d.requestIDHeader != "" {
		req.Header.Set(d.requestIDHeader, requestID)
	}

	ctx, span := d.tracer.Start(ctx, "dispatch "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.path", path),
			attribute.String("gatekeeper.request_id", requestID),
		),
	)
	defer span.End()
	req = req.WithContext(ctx)

	logger := d.logger.With("request_id", requestID, "method", req.Method, "path", path)
	logger.Debug("dispatching request")

	start := time.Now()
	resp, err := d.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		d.metrics.ObserveDispatch(req.Method, 0, err, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		logger.Warn("request failed", "error", err, "elapsed", elapsed)
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, req.Method, req.URL.Redacted(), err)
	}

	d.metrics.ObserveDispatch(req.Method, resp.StatusCode, nil, elapsed)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	logger.Debug("request completed", "status", resp.StatusCode, "elapsed", elapsed)
	return resp, nil
}
