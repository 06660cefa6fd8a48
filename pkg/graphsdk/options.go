package graphsdk

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Default provider endpoints.
const (
	DefaultGraphURL  = "https://graph.facebook.com/"
	DefaultRESTURL   = "https://api.facebook.com/method/"
	DefaultDialogURL = "https://m.facebook.com/dialog/"
)

// Endpoints are the base URLs requests and dialogs are built against.
// Each is normalised to end with "/".
type Endpoints struct {
	GraphURL  string
	RESTURL   string
	DialogURL string
}

func (e Endpoints) withDefaults() Endpoints {
	if e.GraphURL == "" {
		e.GraphURL = DefaultGraphURL
	}
	if e.RESTURL == "" {
		e.RESTURL = DefaultRESTURL
	}
	if e.DialogURL == "" {
		e.DialogURL = DefaultDialogURL
	}
	e.GraphURL = withSlash(e.GraphURL)
	e.RESTURL = withSlash(e.RESTURL)
	e.DialogURL = withSlash(e.DialogURL)
	return e
}

func withSlash(s string) string {
	if strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}

// Option configures a Session.
type Option func(*Session)

// WithLocalAppID sets the suffix that distinguishes several apps sharing
// one provider app ID. It becomes part of the redirect scheme.
func WithLocalAppID(id string) Option {
	return func(s *Session) { s.localAppID = id }
}

// WithEndpoints overrides the provider base URLs. Empty fields keep their
// defaults.
func WithEndpoints(e Endpoints) Option {
	return func(s *Session) { s.endpoints = e }
}

// WithHTTPClient sets the client used by every Request. The default is
// httpx.NewClient().
func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) { s.httpClient = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithPresenter sets the view collaborator used for in-app dialogs.
func WithPresenter(p Presenter) Option {
	return func(s *Session) { s.presenter = p }
}

// WithHandoff sets the delegated authorization collaborator. When it
// declines, authorization falls back to the in-app dialog.
func WithHandoff(h Handoff) Option {
	return func(s *Session) { s.handoff = h }
}

// WithCallbackExecutor routes every callback through exec. Use it to
// deliver callbacks on a UI loop.
func WithCallbackExecutor(exec Executor) Option {
	return func(s *Session) { s.exec = exec }
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithProgressInterval sets the minimum spacing between intermediate
// progress callbacks. Zero delivers every report.
func WithProgressInterval(d time.Duration) Option {
	return func(s *Session) { s.progressInterval = d }
}
