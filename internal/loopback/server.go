// Package loopback completes browser authorizations for desktop and CLI
// hosts. It serves a redirect endpoint on 127.0.0.1, swaps it in as the
// authorization redirect_uri, and turns whatever the provider sends back
// into a "<scheme>://authorize" URL for Session.HandleOpenURL.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/aussiebroadwan/graphconnect/pkg/formx"
	"github.com/aussiebroadwan/graphconnect/pkg/graphsdk"
	"github.com/aussiebroadwan/graphconnect/pkg/httpx"
	"github.com/aussiebroadwan/graphconnect/pkg/slogx"
)

// Target receives the rebuilt redirect. *graphsdk.Session satisfies it.
type Target interface {
	RedirectScheme() string
	HandleOpenURL(u *url.URL) bool
}

type Config struct {
	// Addr is the listen address. Defaults to 127.0.0.1:0.
	Addr string

	// Logger for access logs and handoff events.
	Logger *slog.Logger

	// Out receives the manual "open this URL" hint. Defaults to io.Discard.
	Out io.Writer

	// OpenBrowser launches the system browser. Defaults to the platform
	// opener, which does nothing under go test.
	OpenBrowser func(url string) error
}

// Server is a graphsdk.Handoff backed by a loopback HTTP listener.
type Server struct {
	logger      *slog.Logger
	out         io.Writer
	openBrowser func(string) error

	listener net.Listener
	server   *http.Server
	baseURL  string

	mu     sync.Mutex
	target Target
	done   chan struct{}
	once   sync.Once
}

var _ graphsdk.Handoff = (*Server)(nil)

// New starts listening immediately so the redirect URL is known before
// the first handoff.
func New(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:0"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.OpenBrowser == nil {
		cfg.OpenBrowser = openBrowser
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start loopback server: %w", err)
	}

	s := &Server{
		logger:      cfg.Logger,
		out:         cfg.Out,
		openBrowser: cfg.OpenBrowser,
		listener:    listener,
		baseURL:     "http://" + listener.Addr().String(),
		done:        make(chan struct{}),
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("loopback server stopped", "error", err)
		}
	}()
	return s, nil
}

// Attach sets the session that receives redirects. It must be called
// before the first authorization is handed off.
func (s *Server) Attach(t Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = t
}

// RedirectURL is the URL the provider is told to redirect to.
func (s *Server) RedirectURL() string { return s.baseURL + "/authorize" }

// Done is closed after the first redirect has been forwarded.
func (s *Server) Done() <-chan struct{} { return s.done }

// Open rewrites the authorization URL to redirect to this server and
// sends the user's browser there. It declines when no target is attached.
func (s *Server) Open(_ context.Context, req graphsdk.HandoffRequest) (bool, error) {
	if s.currentTarget() == nil {
		return false, nil
	}

	target, err := swapRedirect(req.URL, s.RedirectURL())
	if err != nil {
		return false, err
	}

	fmt.Fprintf(s.out, "Open this URL in your browser to log in:\n  %s\n", target)
	if err := s.openBrowser(target); err != nil {
		// The printed URL still works.
		s.logger.Warn("could not open browser", "error", err)
	}
	s.logger.Debug("authorization handed to browser", "redirect", s.RedirectURL(), "prefer_browser", req.PreferBrowser)
	return true, nil
}

// Close shuts the listener down, waiting briefly for in-flight requests.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return s.server.Close()
	}
	return nil
}

// Handler returns the redirect endpoints wrapped in access logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /authorize", s.handleAuthorize)
	mux.HandleFunc("GET /complete", s.handleComplete)
	return slogx.HTTPMiddleware(s.logger)(mux)
}

func (s *Server) currentTarget() Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

// handleAuthorize serves a page that forwards the query and fragment to
// /complete. Browsers never send the fragment, which is where user agent
// flows put the token.
func (s *Server) handleAuthorize(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteHTML(w, http.StatusOK, forwardPage)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	t := s.currentTarget()
	if t == nil {
		httpx.WriteHTML(w, http.StatusServiceUnavailable, renderResult("Not ready", "No login is in progress."))
		return
	}

	ctx := slogx.With(r.Context(), "scheme", t.RedirectScheme())
	redirect := &url.URL{Scheme: t.RedirectScheme(), Host: "authorize", RawQuery: r.URL.RawQuery}
	if !t.HandleOpenURL(redirect) {
		slogx.FromContext(ctx, s.logger).Warn("redirect rejected by session")
		httpx.WriteHTML(w, http.StatusBadRequest, renderResult("Login failed", "The redirect did not match this application."))
		return
	}

	slogx.FromContext(ctx, s.logger).Debug("redirect forwarded")
	s.once.Do(func() { close(s.done) })

	title, msg := "Logged in", "You can close this window and return to the terminal."
	if tok, _ := formx.URLParams(redirect).GetString("access_token"); tok == "" {
		title, msg = "Login not completed", "Return to the terminal for details."
	}
	httpx.WriteHTML(w, http.StatusOK, renderResult(title, msg))
}

func swapRedirect(raw, redirect string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse authorization url: %w", err)
	}
	p := formx.ParseQuery(u.RawQuery)
	p.Set("redirect_uri", redirect)
	q, err := p.Encode()
	if err != nil {
		return "", err
	}
	u.RawQuery = q
	return u.String(), nil
}
