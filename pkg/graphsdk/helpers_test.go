package graphsdk

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/graphconnect/pkg/slogx"
	"github.com/stretchr/testify/require"
)

var testEndpoints = Endpoints{
	GraphURL:  "https://graph.example/",
	RESTURL:   "https://api.example/method/",
	DialogURL: "https://m.example/dialog/",
}

func newTestSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	base := []Option{
		WithEndpoints(testEndpoints),
		WithHTTPClient(&http.Client{Timeout: 5 * time.Second}),
		WithLogger(slogx.Discard()),
		WithProgressInterval(0),
	}
	s, err := NewSession("123", append(base, opts...)...)
	require.NoError(t, err)
	return s
}

// fakePresenter records dialogs handed to it.
type fakePresenter struct {
	mu        sync.Mutex
	presented []*Dialog
	dismissed []*Dialog
	err       error
	shown     chan *Dialog
}

func newFakePresenter() *fakePresenter {
	return &fakePresenter{shown: make(chan *Dialog, 8)}
}

func (p *fakePresenter) Present(d *Dialog) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.presented = append(p.presented, d)
	p.shown <- d
	return nil
}

func (p *fakePresenter) Dismiss(d *Dialog, _ bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissed = append(p.dismissed, d)
}

func (p *fakePresenter) dismissCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dismissed)
}

func (p *fakePresenter) next(t *testing.T) *Dialog {
	t.Helper()
	select {
	case d := <-p.shown:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("no dialog presented")
		return nil
	}
}

// fakeHandoff accepts every request and records it.
type fakeHandoff struct {
	mu      sync.Mutex
	accept  bool
	openErr error
	reqs    []HandoffRequest
}

func (h *fakeHandoff) Open(_ context.Context, req HandoffRequest) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reqs = append(h.reqs, req)
	return h.accept, h.openErr
}

func (h *fakeHandoff) requests() []HandoffRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HandoffRequest(nil), h.reqs...)
}

// outcomes collects authorization outcomes.
type outcomes struct {
	ch chan Outcome
}

func newOutcomes() *outcomes { return &outcomes{ch: make(chan Outcome, 4)} }

func (o *outcomes) handler(out Outcome) { o.ch <- out }

func (o *outcomes) next(t *testing.T) Outcome {
	t.Helper()
	select {
	case out := <-o.ch:
		return out
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome delivered")
		return Outcome{}
	}
}

func (o *outcomes) none(t *testing.T) {
	t.Helper()
	select {
	case out := <-o.ch:
		t.Fatalf("unexpected outcome %v", out.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
