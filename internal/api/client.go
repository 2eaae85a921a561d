package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hkwk/cdsapi/internal/auth"
	"github.com/hkwk/cdsapi/internal/errs"
)

const userAgent = "cdsapi-go/0.2.0"

// howToLink is the fallback remediation link for licence errors when the
// response body does not carry one.
const howToLink = "https://cds.climate.copernicus.eu/how-to-api"

// ErrUnexpectedStatus wraps non-2xx responses that do not map to a specific
// error in the taxonomy.
var ErrUnexpectedStatus = errors.New("api: unexpected status")

// Options configures the API client.
type Options struct {
	// Timeout for individual requests. Bounds a single round trip, not the
	// overall polling duration.
	// Default: 60s
	Timeout time.Duration

	// RetryAttempts is the maximum number of retry attempts for idempotent
	// requests.
	// Default: 5
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 1s
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 120s
	RetryMaxBackoff time.Duration

	// RateLimit caps outgoing requests per second.
	// Default: 10
	RateLimit rate.Limit

	// Logger receives debug-level request logging.
	// Default: zap.NewNop()
	Logger *zap.Logger
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:         60 * time.Second,
		RetryAttempts:   5,
		RetryBackoff:    time.Second,
		RetryMaxBackoff: 120 * time.Second,
		RateLimit:       10,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Timeout <= 0 {
		o.Timeout = def.Timeout
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = def.RetryAttempts
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = def.RetryBackoff
	}
	if o.RetryMaxBackoff <= 0 {
		o.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if o.RateLimit <= 0 {
		o.RateLimit = def.RateLimit
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// RemoteFile describes a resolved artifact on the server.
type RemoteFile struct {
	// Location is the download URL.
	Location string

	// ContentLength is the expected size in bytes, or 0 when unknown.
	ContentLength int64

	// ContentType is the reported media type, when known.
	ContentType string
}

// Download is an in-flight artifact body returned by Get.
type Download struct {
	Body          io.ReadCloser
	ContentLength int64

	// Partial is true when the server honored a Range request (HTTP 206).
	Partial bool
}

// Client performs authenticated requests against the service.
type Client struct {
	http    *http.Client
	mode    auth.Mode
	limiter *rate.Limiter
	opts    Options
	log     *zap.Logger
}

// NewClient creates a client authenticating with mode. When verifyTLS is
// false, server certificates are not checked.
func NewClient(mode auth.Mode, verifyTLS bool, opts Options) *Client {
	opts = opts.withDefaults()

	transport := &http.Transport{
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     90 * time.Second,
	}
	if !verifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
		},
		mode:    mode,
		limiter: rate.NewLimiter(opts.RateLimit, 1),
		opts:    opts,
		log:     opts.Logger,
	}
}

// DoJSON performs a JSON request and decodes a 2xx response body into out
// (when out is non-nil).
//
// Transport failures and retriable statuses (408, 429, 5xx) are retried with
// jittered exponential backoff for idempotent methods. POST is sent at most
// once: retrying a submission could create a duplicate job on the server, so
// its transport errors are surfaced immediately.
func (c *Client) DoJSON(ctx context.Context, method, url string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	attempts := c.opts.RetryAttempts
	if method == http.MethodPost {
		attempts = 0
	}

	var lastErr error

	for attempt := 0; attempt <= attempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		c.mode.Apply(req)

		c.log.Debug("api request",
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
		)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if attempts == 0 {
				break
			}
			continue
		}

		text, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			if attempts == 0 {
				break
			}
			continue
		}

		if retriableStatus(resp.StatusCode) {
			lastErr = fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, resp.StatusCode, http.StatusText(resp.StatusCode))
			if attempts == 0 {
				break
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return classify(resp.StatusCode, url, text)
		}

		if out == nil {
			return nil
		}
		if err := json.Unmarshal(text, out); err != nil {
			return fmt.Errorf("parse API response (url=%s, status=%d): %w", url, resp.StatusCode, err)
		}
		return nil
	}

	return &errs.TransportError{Attempts: attempts + 1, Err: lastErr}
}

// Get starts a streaming download of url. When offset is positive a Range
// request is made so an interrupted transfer can resume; callers must check
// Partial to learn whether the server honored it. Get does not retry — the
// caller owns resume semantics for the partially written data.
func (c *Client) Get(ctx context.Context, url string, offset int64) (*Download, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	c.mode.Apply(req)

	c.log.Debug("download request", zap.String("url", url), zap.Int64("offset", offset))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &errs.TransportError{Attempts: 1, Err: err}
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
	default:
		text, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, classify(resp.StatusCode, url, text)
	}

	return &Download{
		Body:          resp.Body,
		ContentLength: resp.ContentLength,
		Partial:       resp.StatusCode == http.StatusPartialContent,
	}, nil
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	backoff := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > c.opts.RetryMaxBackoff {
		backoff = c.opts.RetryMaxBackoff
	}

	// Jitter: 0.5 to 1.5 of backoff.
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

// retriableStatus reports whether a status code indicates a transient
// condition worth retrying.
func retriableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// problem is the service's error document. Some endpoints respond with
// RFC 7807 fields, others with {"message": ..., "detail": ...}.
type problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance"`
	TraceID  string `json:"trace_id"`
	Message  string `json:"message"`
}

func (p problem) title() string {
	if p.Title != "" {
		return p.Title
	}
	return p.Message
}

// classify maps a non-2xx response to the shared error taxonomy.
func classify(status int, url string, body []byte) error {
	var p problem
	if err := json.Unmarshal(body, &p); err != nil {
		p = problem{}
	}

	switch status {
	case http.StatusForbidden:
		if licenceProblem(p) {
			return &errs.LicenceError{
				Title:   p.title(),
				Detail:  p.Detail,
				TraceID: p.TraceID,
				Link:    licenceLink(p.Detail),
			}
		}
		fallthrough
	case http.StatusUnauthorized:
		st := p.Status
		if st == 0 {
			st = status
		}
		return &errs.AuthError{
			Status:   st,
			Title:    p.title(),
			Detail:   p.Detail,
			Kind:     p.Type,
			Instance: p.Instance,
			TraceID:  p.TraceID,
			URL:      url,
		}
	case http.StatusNotFound:
		return &errs.EndpointError{
			Title:  p.title(),
			Detail: p.Detail,
			URL:    url,
		}
	}

	if p.title() != "" || p.Detail != "" {
		return fmt.Errorf("%w: HTTP %d for url (%s)\n%s\n%s", ErrUnexpectedStatus, status, url, p.title(), p.Detail)
	}
	return fmt.Errorf("%w: HTTP %d for url (%s)\n%s", ErrUnexpectedStatus, status, url, bytes.TrimSpace(body))
}

// licenceProblem detects the "required licences not accepted" 403 shape.
func licenceProblem(p problem) bool {
	title := strings.ToLower(p.title())
	detail := strings.ToLower(p.Detail)
	return strings.Contains(title, "required licences") ||
		strings.Contains(detail, "required licence") ||
		strings.Contains(detail, "manage-licences")
}

// licenceLink extracts the remediation link the service embeds in the
// licence error detail, falling back to the documentation page.
func licenceLink(detail string) string {
	if idx := strings.Index(detail, "https://"); idx >= 0 {
		link := detail[idx:]
		if end := strings.IndexAny(link, " \t\n"); end >= 0 {
			link = link[:end]
		}
		return link
	}
	return howToLink
}
