package graphsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/graphconnect/pkg/formx"
	"github.com/aussiebroadwan/graphconnect/pkg/httpx"
	"github.com/aussiebroadwan/graphconnect/pkg/idx"
)

// RequestState is the lifecycle position of a Request.
type RequestState int

const (
	RequestIdle RequestState = iota
	RequestExecuting
	RequestCompleted
	RequestFailed
)

func (s RequestState) String() string {
	switch s {
	case RequestIdle:
		return "idle"
	case RequestExecuting:
		return "executing"
	case RequestCompleted:
		return "completed"
	case RequestFailed:
		return "failed"
	default:
		return fmt.Sprintf("RequestState(%d)", int(s))
	}
}

// Terminal reports whether the state is final.
func (s RequestState) Terminal() bool {
	return s == RequestCompleted || s == RequestFailed
}

// Response is a completed HTTP exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return newError(ErrProtocol, "decode response", err)
	}
	return nil
}

// CompletionFunc receives exactly one of a response or an error.
type CompletionFunc func(resp *Response, err error)

// DispatchOption configures a single Dispatch call.
type DispatchOption func(*dispatchConfig)

type dispatchConfig struct {
	upload   ProgressFunc
	download ProgressFunc
}

// OnUploadProgress reports the fraction of the request body sent.
func OnUploadProgress(fn ProgressFunc) DispatchOption {
	return func(c *dispatchConfig) { c.upload = fn }
}

// OnDownloadProgress reports the fraction of the response body received.
// Responses without a Content-Length only report the final 1.0.
func OnDownloadProgress(fn ProgressFunc) DispatchOption {
	return func(c *dispatchConfig) { c.download = fn }
}

// Request is one single-use outbound call. Build it with the Session
// builders, then Dispatch it once.
type Request struct {
	id       idx.ID
	encoded  *formx.Encoded
	params   *formx.Params
	client   *http.Client
	logger   *slog.Logger
	interval time.Duration
	queue    *serialQueue

	mu     sync.Mutex
	state  RequestState
	cancel context.CancelFunc
	resp   *Response
	err    error
	done   chan struct{}

	// cbMu orders callback submission: once finished is set no further
	// progress is queued.
	cbMu     sync.Mutex
	finished bool
}

func (s *Session) newRequest(baseURL string, p *formx.Params, method string) (*Request, error) {
	enc, err := formx.Serialize(baseURL, p, method)
	if err != nil {
		return nil, newError(ErrInvalidParameter, "build request", err)
	}

	id := idx.New()
	return &Request{
		id:       id,
		encoded:  enc,
		params:   p,
		client:   s.httpClient,
		logger:   s.logger.With("req_id", id.String()),
		interval: s.progressInterval,
		queue:    newSerialQueue(s.exec),
		done:     make(chan struct{}),
	}, nil
}

func (r *Request) ID() idx.ID { return r.id }

// Method returns the effective HTTP method, which is POST whenever a
// binary parameter is present.
func (r *Request) Method() string { return r.encoded.Method }

// URL returns the target URL, including the query string for GET requests.
func (r *Request) URL() string { return r.encoded.URL }

// Params returns the parameters the request was built from, including
// injected ones. Callers must not modify them.
func (r *Request) Params() *formx.Params { return r.params }

// Encoded returns the materialised wire request.
func (r *Request) Encoded() *formx.Encoded { return r.encoded }

func (r *Request) State() RequestState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// IsExecuting reports whether the request is in flight.
func (r *Request) IsExecuting() bool {
	return r.State() == RequestExecuting
}

// Result returns the terminal response and error. Both are nil until the
// request finishes.
func (r *Request) Result() (*Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resp, r.err
}

// Done is closed once the request is terminal and its completion callback
// has returned.
func (r *Request) Done() <-chan struct{} { return r.done }

// Dispatch starts the request. onComplete is called exactly once, after
// every progress callback. Dispatching a request that is not idle fails
// with ErrInvalidState and opens no connection.
func (r *Request) Dispatch(ctx context.Context, onComplete CompletionFunc, opts ...DispatchOption) error {
	var cfg dispatchConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	r.mu.Lock()
	if r.state != RequestIdle {
		state := r.state
		r.mu.Unlock()
		return newError(ErrInvalidState, "dispatch", fmt.Errorf("request is %s", state))
	}
	ctx, cancel := context.WithCancel(ctx)
	r.state = RequestExecuting
	r.cancel = cancel
	r.mu.Unlock()

	upload := newProgress(cfg.upload, r.interval, r.submitProgress)
	download := newProgress(cfg.download, r.interval, r.submitProgress)

	go r.run(ctx, onComplete, upload, download)
	return nil
}

// Do dispatches the request and waits for its result.
func (r *Request) Do(ctx context.Context, opts ...DispatchOption) (*Response, error) {
	if err := r.Dispatch(ctx, nil, opts...); err != nil {
		return nil, err
	}
	return r.Wait(ctx)
}

// Wait blocks until the request is terminal or ctx is done. Waiting on a
// request that was never dispatched blocks until it is canceled.
func (r *Request) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-r.done:
		return r.Result()
	case <-ctx.Done():
		return nil, newError(ErrCanceled, "wait", ctx.Err())
	}
}

// Cancel aborts an executing request, which then completes with an
// ErrCanceled error. An idle request becomes terminal without a callback.
// Cancel on a terminal request does nothing.
func (r *Request) Cancel() {
	r.mu.Lock()
	switch r.state {
	case RequestIdle:
		r.state = RequestFailed
		r.err = newError(ErrCanceled, "cancel", context.Canceled)
		r.mu.Unlock()

		r.cbMu.Lock()
		r.finished = true
		r.cbMu.Unlock()
		close(r.done)
		return
	case RequestExecuting:
		cancel := r.cancel
		r.mu.Unlock()
		cancel()
		return
	default:
		r.mu.Unlock()
	}
}

func (r *Request) submitProgress(fn func()) bool {
	r.cbMu.Lock()
	defer r.cbMu.Unlock()
	if r.finished {
		return false
	}
	r.queue.push(fn)
	return true
}

func (r *Request) run(ctx context.Context, onComplete CompletionFunc, upload, download *progress) {
	start := time.Now()
	r.logger.Debug("graph request dispatched",
		"method", r.encoded.Method,
		"endpoint", redactURL(r.encoded.URL),
		"mode", r.encoded.Mode.String(),
	)

	resp, err := r.roundTrip(ctx, upload, download)
	if err == nil {
		download.complete()
	}

	if err != nil {
		r.logger.Debug("graph request failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
	} else {
		r.logger.Debug("graph request completed", "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	}
	r.finish(resp, err, onComplete)
}

func (r *Request) roundTrip(ctx context.Context, upload, download *progress) (*Response, error) {
	if !idempotent(r.encoded.Method) {
		ctx = httpx.NoRetry(ctx)
	}

	if upload != nil {
		// Counted per attempt as the transport sends it, not when the retry
		// layer buffers the body.
		ctx = httpx.WithBodyWrapper(ctx, func(body io.ReadCloser, total int64) io.ReadCloser {
			return &countingReader{r: body, total: total, prog: upload}
		})
	}
	req, err := r.encoded.NewRequest(ctx)
	if err != nil {
		return nil, newError(ErrInvalidParameter, "dispatch", err)
	}

	httpResp, err := r.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, "dispatch", err)
	}
	defer httpResp.Body.Close()

	var body io.Reader = httpResp.Body
	if download != nil {
		body = &countingReader{r: httpResp.Body, total: httpResp.ContentLength, prog: download}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, transportError(ctx, "read response", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}
	if err := checkResponse(resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// finish records the terminal state and queues the completion callback
// behind any progress already queued.
func (r *Request) finish(resp *Response, err error, onComplete CompletionFunc) {
	r.mu.Lock()
	r.resp, r.err = resp, err
	if err != nil {
		r.state = RequestFailed
	} else {
		r.state = RequestCompleted
	}
	r.cancel()
	r.mu.Unlock()

	r.cbMu.Lock()
	r.finished = true
	r.queue.push(func() {
		if onComplete != nil {
			onComplete(resp, err)
		}
		close(r.done)
	})
	r.cbMu.Unlock()
}

// checkResponse applies the provider conventions: non-2xx is a transport
// error, a JSON body that does not parse is a protocol error, and an error
// envelope on a 2xx response is still an error.
func checkResponse(resp *Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		cause := parseAPIError(resp.StatusCode, resp.Body)
		if cause == nil {
			cause = statusError(resp.StatusCode)
		}
		return newError(ErrTransport, "response", cause)
	}

	if !isJSON(resp.Header.Get("Content-Type")) {
		return nil
	}
	if len(strings.TrimSpace(string(resp.Body))) > 0 && !json.Valid(resp.Body) {
		return newError(ErrProtocol, "response", errors.New("malformed JSON body"))
	}
	if apiErr := parseAPIError(resp.StatusCode, resp.Body); apiErr != nil {
		return newError(ErrTransport, "response", apiErr)
	}
	return nil
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.Contains(mt, "json") || strings.Contains(mt, "javascript")
}

func transportError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return newError(ErrCanceled, op, ctx.Err())
	}
	return newError(ErrTransport, op, err)
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

// redactURL drops the query so tokens never reach the logs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
