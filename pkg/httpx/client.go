package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// LeveledSlog adapts slog to retryablehttp's leveled logger.
type LeveledSlog struct {
	inner *slog.Logger
}

// Error is logged at WARN since a failed attempt may still be retried.
func (l LeveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

// Info is demoted to DEBUG; retryablehttp logs every attempt at info.
func (l LeveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

func (l LeveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

type clientConfig struct {
	retry   *retryablehttp.Client
	timeout time.Duration
	jar     http.CookieJar
}

type Option func(*clientConfig)

// WithMaxRetries sets the maximum number of retries.
func WithMaxRetries(maxRetries int) Option {
	return func(c *clientConfig) {
		c.retry.RetryMax = maxRetries
	}
}

// WithRetryWait sets the backoff bounds between retries.
func WithRetryWait(waitMin, waitMax time.Duration) Option {
	return func(c *clientConfig) {
		c.retry.RetryWaitMin = waitMin
		c.retry.RetryWaitMax = waitMax
	}
}

// WithTimeout sets the overall per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *clientConfig) {
		c.retry.Logger = retryablehttp.LeveledLogger(LeveledSlog{inner: logger})
	}
}

func WithTransport(transport http.RoundTripper) Option {
	return func(c *clientConfig) {
		c.retry.HTTPClient.Transport = transport
	}
}

// WithCookieJar replaces the default in-memory jar. Nil disables cookies.
func WithCookieJar(jar http.CookieJar) Option {
	return func(c *clientConfig) {
		c.jar = jar
	}
}

// NewClient returns an *http.Client with retryablehttp logic inside.
//
// Connection errors and 5xx (except 501) are retried, 429 is not. Requests
// whose context was marked with NoRetry are attempted exactly once. The
// client carries a cookie jar so dialog sessions can be expired on logout.
func NewClient(options ...Option) *http.Client {
	logger := LeveledSlog{inner: slog.Default().With("subsystem", "graph_http")}
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = otelhttp.NewTransport(cleanhttp.DefaultPooledTransport())
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(logger)
	retryClient.CheckRetry = DefaultRetryPolicy
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	jar, _ := cookiejar.New(nil)
	cfg := &clientConfig{retry: retryClient, timeout: 30 * time.Second, jar: jar}
	for _, option := range options {
		option(cfg)
	}
	retryClient.HTTPClient.Transport = TrackBodies(retryClient.HTTPClient.Transport)

	client := retryClient.StandardClient()
	client.Timeout = cfg.timeout
	client.Jar = cfg.jar
	return client
}

type noRetryKey struct{}

// NoRetry marks ctx so requests made with it are never retried. Used for
// non-idempotent calls such as uploads and REST mutations.
func NoRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noRetryKey{}, true)
}

// RetryDisabled reports whether NoRetry marked ctx.
func RetryDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(noRetryKey{}).(bool)
	return v
}

// DefaultRetryPolicy wraps retryablehttp.DefaultRetryPolicy. 429 is left to
// the caller, as are requests marked with NoRetry.
func DefaultRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if RetryDisabled(ctx) {
		return false, nil
	}
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
