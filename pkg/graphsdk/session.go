package graphsdk

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/graphconnect/pkg/httpx"
)

// Credentials is a point-in-time copy of a session's authorization state.
// A zero ExpiresAt means the token does not expire.
type Credentials struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
	Permissions []string  `json:"permissions,omitempty"`
}

// Valid reports whether the credentials hold a token that has not expired at now.
func (c Credentials) Valid(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || c.ExpiresAt.After(now)
}

// Expired reports a token that is present but past its expiry.
func (c Credentials) Expired(now time.Time) bool {
	return c.AccessToken != "" && !c.Valid(now)
}

// Session holds the authorization state for one provider app and builds
// requests and dialogs against it. Sessions are independent; a process may
// run several at once.
type Session struct {
	appID            string
	localAppID       string
	endpoints        Endpoints
	httpClient       *http.Client
	logger           *slog.Logger
	presenter        Presenter
	handoff          Handoff
	exec             Executor
	now              func() time.Time
	progressInterval time.Duration

	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time
	permissions []string
	observers   []func(Credentials)

	authMu  sync.Mutex
	attempt *attempt
}

// NewSession creates an empty session for appID.
func NewSession(appID string, opts ...Option) (*Session, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return nil, newError(ErrInvalidParameter, "new session", fmt.Errorf("app id is required"))
	}

	s := &Session{
		appID:            appID,
		progressInterval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.endpoints = s.endpoints.withDefaults()
	if s.httpClient == nil {
		s.httpClient = httpx.NewClient()
	}
	if !httpx.TracksBodies(s.httpClient) {
		c := *s.httpClient
		c.Transport = httpx.TrackBodies(c.Transport)
		s.httpClient = &c
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.exec == nil {
		s.exec = goExecutor{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.logger = s.logger.With("app_id", appID)
	return s, nil
}

func (s *Session) AppID() string        { return s.appID }
func (s *Session) LocalAppID() string   { return s.localAppID }
func (s *Session) Endpoints() Endpoints { return s.endpoints }

// RedirectScheme returns the URL scheme the provider redirects back to.
func (s *Session) RedirectScheme() string {
	return RedirectScheme(s.appID, s.localAppID)
}

// RedirectScheme builds "fb<appID><localAppID>".
func RedirectScheme(appID, localAppID string) string {
	return "fb" + appID + localAppID
}

// IsSessionValid reports whether a token is present and not expired.
func (s *Session) IsSessionValid() bool {
	return s.Snapshot().Valid(s.now())
}

func (s *Session) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// ExpirationDate returns the token expiry. The zero time means never.
func (s *Session) ExpirationDate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

func (s *Session) Permissions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.permissions)
}

// Snapshot returns a consistent copy of the token, expiry and permissions.
func (s *Session) Snapshot() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Credentials{
		AccessToken: s.accessToken,
		ExpiresAt:   s.expiresAt,
		Permissions: slices.Clone(s.permissions),
	}
}

// Restore replaces the session state, typically with credentials loaded
// from a store at startup. Observers are notified.
func (s *Session) Restore(c Credentials) {
	s.setCredentials(c)
}

// OnChange registers fn to be called after every credential change, with
// the new state. It runs synchronously on the goroutine that made the
// change, after the session lock is released.
func (s *Session) OnChange(fn func(Credentials)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Session) setCredentials(c Credentials) {
	s.mu.Lock()
	s.accessToken = c.AccessToken
	s.expiresAt = c.ExpiresAt
	s.permissions = slices.Clone(c.Permissions)
	observers := slices.Clone(s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(c)
	}
}

func (s *Session) clearCredentials() {
	s.setCredentials(Credentials{})
}
