package httpx

import (
	"context"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

// BodyWrapper wraps an outgoing request body for a single attempt.
type BodyWrapper func(body io.ReadCloser, contentLength int64) io.ReadCloser

type bodyWrapperKey struct{}

// WithBodyWrapper attaches w to ctx. A client whose transport went through
// TrackBodies applies it to every attempt's body as the attempt is sent.
func WithBodyWrapper(ctx context.Context, w BodyWrapper) context.Context {
	return context.WithValue(ctx, bodyWrapperKey{}, w)
}

func bodyWrapperFrom(ctx context.Context) BodyWrapper {
	w, _ := ctx.Value(bodyWrapperKey{}).(BodyWrapper)
	return w
}

type bodyTracker struct {
	next http.RoundTripper
}

// TrackBodies returns a transport that applies the context's BodyWrapper
// before handing a request to next. A nil next means http.DefaultTransport.
func TrackBodies(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if _, ok := next.(*bodyTracker); ok {
		return next
	}
	return &bodyTracker{next: next}
}

func (t *bodyTracker) RoundTrip(req *http.Request) (*http.Response, error) {
	wrap := bodyWrapperFrom(req.Context())
	if wrap == nil || req.Body == nil || req.Body == http.NoBody {
		return t.next.RoundTrip(req)
	}
	attempt := req.Clone(req.Context())
	attempt.Body = wrap(req.Body, req.ContentLength)
	return t.next.RoundTrip(attempt)
}

// TracksBodies reports whether c applies BodyWrapper at the attempt
// level, either directly or underneath a retrying transport.
func TracksBodies(c *http.Client) bool {
	if c == nil {
		return false
	}
	switch rt := c.Transport.(type) {
	case *bodyTracker:
		return true
	case *retryablehttp.RoundTripper:
		if rt.Client == nil || rt.Client.HTTPClient == nil {
			return false
		}
		_, ok := rt.Client.HTTPClient.Transport.(*bodyTracker)
		return ok
	}
	return false
}
