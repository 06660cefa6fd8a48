package graphsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/graphconnect/pkg/cryptox"
	"github.com/aussiebroadwan/graphconnect/pkg/formx"
	"github.com/aussiebroadwan/graphconnect/pkg/idx"
)

// Redirect parameter names. These are the provider's contract.
const (
	paramExpiresIn     = "expires_in"
	paramError         = "error"
	paramErrorReason   = "error_reason"
	paramErrorDesc     = "error_description"
	paramCancel        = "cancel"
	paramGrantedScopes = "granted_scopes"
	paramState         = "state"

	errServiceDisabled           = "service_disabled"
	errServiceDisabledUseBrowser = "service_disabled_use_browser"

	authorizeAction = "oauth"
)

// OutcomeKind tags how an authorization attempt or logout ended.
type OutcomeKind int

const (
	OutcomeLoggedIn OutcomeKind = iota + 1
	OutcomeNotLoggedIn
	OutcomeCanceled
	OutcomeLoggedOut
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeLoggedIn:
		return "logged_in"
	case OutcomeNotLoggedIn:
		return "not_logged_in"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeLoggedOut:
		return "logged_out"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the single result of an authorization attempt or a logout.
// Token fields are set only for OutcomeLoggedIn. Err explains
// OutcomeNotLoggedIn and OutcomeCanceled, and carries the invalidation
// failure, if any, for OutcomeLoggedOut.
type Outcome struct {
	Kind        OutcomeKind
	AccessToken string
	ExpiresAt   time.Time
	Permissions []string
	Err         error
}

// AuthorizeHandler receives an attempt's outcome exactly once.
type AuthorizeHandler func(Outcome)

type attempt struct {
	id          idx.ID
	ctx         context.Context
	permissions []string
	state       string
	handler     AuthorizeHandler
	queue       *serialQueue
	logger      *slog.Logger

	// guarded by Session.authMu
	stop     func() bool
	dialog   *Dialog
	resolved bool
}

// Authorize starts an authorization attempt for permissions. It tries the
// handoff first and falls back to the in-app dialog. handler is called
// exactly once; canceling ctx resolves the attempt as canceled. Only one
// attempt may be pending per session.
func (s *Session) Authorize(ctx context.Context, permissions []string, handler AuthorizeHandler) error {
	if s.handoff == nil && s.presenter == nil {
		return newError(ErrInvalidState, "authorize", errors.New("no handoff or presenter configured"))
	}

	state, err := cryptox.GenerateNonce(cryptox.NonceSize128)
	if err != nil {
		return newError(ErrInvalidState, "authorize", err)
	}

	id := idx.New()
	att := &attempt{
		id:          id,
		ctx:         ctx,
		permissions: slices.Clone(permissions),
		state:       state,
		handler:     handler,
		queue:       newSerialQueue(s.exec),
		logger:      s.logger.With("attempt_id", id.String()),
	}

	s.authMu.Lock()
	if s.attempt != nil {
		s.authMu.Unlock()
		return newError(ErrInvalidState, "authorize", errors.New("an authorization attempt is already pending"))
	}
	s.attempt = att
	att.stop = context.AfterFunc(ctx, func() {
		s.resolve(att, Outcome{Kind: OutcomeCanceled, Err: newError(ErrCanceled, "authorize", ctx.Err())}, nil)
	})
	s.authMu.Unlock()

	att.logger.Info("authorization started", "permissions", strings.Join(permissions, ","))
	s.present(att, false)
	return nil
}

// AuthorizationPending reports whether an attempt is awaiting its redirect.
func (s *Session) AuthorizationPending() bool {
	s.authMu.Lock()
	defer s.authMu.Unlock()
	return s.attempt != nil
}

// CancelAuthorization resolves the pending attempt, if any, as canceled.
func (s *Session) CancelAuthorization() {
	s.authMu.Lock()
	att := s.attempt
	s.authMu.Unlock()
	if att != nil {
		s.resolve(att, Outcome{Kind: OutcomeCanceled, Err: newError(ErrCanceled, "authorize", errors.New("canceled by caller"))}, nil)
	}
}

func (s *Session) present(att *attempt, preferBrowser bool) {
	if s.handoff != nil {
		redirect := s.RedirectScheme() + "://authorize"
		params, err := s.authorizeParams(att, redirect)
		var target string
		if err == nil {
			target, err = formx.BuildURL(s.endpoints.DialogURL+authorizeAction, params)
		}
		if err == nil {
			ok, err := s.handoff.Open(att.ctx, HandoffRequest{URL: target, RedirectURI: redirect, PreferBrowser: preferBrowser})
			if err != nil {
				att.logger.Warn("authorization handoff failed", "error", err)
			}
			if ok {
				att.logger.Debug("authorization handed off", "prefer_browser", preferBrowser)
				return
			}
		}
	}
	s.presentDialog(att)
}

func (s *Session) presentDialog(att *attempt) {
	if s.presenter == nil {
		s.resolve(att, Outcome{
			Kind: OutcomeNotLoggedIn,
			Err:  newError(ErrInvalidState, "authorize", errors.New("handoff declined and no presenter configured")),
		}, nil)
		return
	}

	var d *Dialog
	params, err := s.authorizeParams(att, DialogSuccessURL)
	if err == nil {
		d, err = s.newDialog(authorizeAction, params)
	}
	if err != nil {
		s.resolve(att, Outcome{Kind: OutcomeNotLoggedIn, Err: err}, nil)
		return
	}
	d.Title = "Log In"

	s.authMu.Lock()
	if att.resolved {
		s.authMu.Unlock()
		return
	}
	att.dialog = d
	s.authMu.Unlock()

	if err := d.Show(func(res DialogResult) { s.resolveDialog(att, res) }); err != nil {
		s.resolve(att, Outcome{Kind: OutcomeNotLoggedIn, Err: err}, nil)
	}
}

// authorizeQuery is the query of the oauth dialog.
type authorizeQuery struct {
	ClientID      string   `url:"client_id"`
	Type          string   `url:"type"`
	RedirectURI   string   `url:"redirect_uri"`
	Display       string   `url:"display"`
	SDK           string   `url:"sdk"`
	Scope         []string `url:"scope,comma,omitempty"`
	LocalClientID string   `url:"local_client_id,omitempty"`
	State         string   `url:"state"`
}

func (s *Session) authorizeParams(att *attempt, redirectURI string) (*formx.Params, error) {
	return formx.FromStruct(authorizeQuery{
		ClientID:      s.appID,
		Type:          "user_agent",
		RedirectURI:   redirectURI,
		Display:       defaultDisplay,
		SDK:           "go",
		Scope:         att.permissions,
		LocalClientID: s.localAppID,
		State:         att.state,
	})
}

// HandleOpenURL routes a redirect back into the pending authorization. It
// returns false, without touching the session, when the scheme is not this
// session's redirect scheme. A matching URL with no pending attempt is
// consumed and ignored.
func (s *Session) HandleOpenURL(u *url.URL) bool {
	if u == nil || !strings.EqualFold(u.Scheme, s.RedirectScheme()) {
		return false
	}

	s.authMu.Lock()
	att := s.attempt
	s.authMu.Unlock()
	if att == nil {
		s.logger.Debug("redirect with no pending authorization ignored")
		return true
	}

	s.resolveRedirect(att, formx.URLParams(u), false)
	return true
}

func (s *Session) resolveDialog(att *attempt, res DialogResult) {
	switch res.Status {
	case DialogSuccess:
		if res.URL == nil {
			s.resolve(att, Outcome{Kind: OutcomeNotLoggedIn, Err: newError(ErrProtocol, "authorize", errors.New("dialog completed without a URL"))}, nil)
			return
		}
		s.resolveRedirect(att, formx.URLParams(res.URL), true)
	case DialogCancel:
		s.resolve(att, Outcome{Kind: OutcomeCanceled, Err: newError(ErrCanceled, "authorize", errors.New("dialog dismissed"))}, nil)
	default:
		s.resolve(att, Outcome{Kind: OutcomeNotLoggedIn, Err: res.Err}, nil)
	}
}

// resolveRedirect decides an attempt from redirect parameters. Handoff
// service errors re-route the attempt instead of resolving it.
func (s *Session) resolveRedirect(att *attempt, p *formx.Params, fromDialog bool) {
	get := func(k string) string {
		v, _ := p.GetString(k)
		return v
	}

	if st := get(paramState); st != "" && !cryptox.EqualNonce(st, att.state) {
		s.resolve(att, Outcome{Kind: OutcomeNotLoggedIn, Err: newError(ErrProtocol, "handle redirect", errors.New("state mismatch"))}, nil)
		return
	}

	if token := get(paramAccessToken); token != "" {
		creds := Credentials{
			AccessToken: token,
			ExpiresAt:   parseExpiry(get(paramExpiresIn), s.now()),
			Permissions: att.permissions,
		}
		if p.Has(paramGrantedScopes) {
			creds.Permissions = splitScopes(get(paramGrantedScopes))
		}
		s.resolve(att, Outcome{
			Kind:        OutcomeLoggedIn,
			AccessToken: creds.AccessToken,
			ExpiresAt:   creds.ExpiresAt,
			Permissions: slices.Clone(creds.Permissions),
		}, &creds)
		return
	}

	errCode := get(paramError)
	if !fromDialog {
		switch errCode {
		case errServiceDisabledUseBrowser:
			att.logger.Info("provider app unavailable, retrying in browser")
			s.present(att, true)
			return
		case errServiceDisabled:
			att.logger.Info("handoff disabled by provider, falling back to dialog")
			s.presentDialog(att)
			return
		}
	}

	if isCancelMarker(get(paramCancel)) {
		s.resolve(att, Outcome{Kind: OutcomeCanceled, Err: newError(ErrCanceled, "handle redirect", errors.New("user canceled"))}, nil)
		return
	}

	if errCode != "" || p.Has(paramErrorCode) || p.Has(paramErrorMessage) {
		code, _ := strconv.Atoi(get(paramErrorCode))
		msg := get(paramErrorDesc)
		if msg == "" {
			msg = get(paramErrorMessage)
		}
		if msg == "" {
			msg = get(paramErrorReason)
		}
		s.resolve(att, Outcome{Kind: OutcomeNotLoggedIn, Err: &APIError{Type: errCode, Code: code, Message: msg}}, nil)
		return
	}

	// No token, error or cancel marker. Reported as a denial so callers
	// see one of the documented outcomes, with the cause kept visible.
	s.resolve(att, Outcome{
		Kind: OutcomeNotLoggedIn,
		Err:  newError(ErrProtocol, "handle redirect", errors.New("redirect carries no token, error or cancel marker")),
	}, nil)
}

// resolve ends att exactly once. creds, when set, are stored before the
// handler is queued.
func (s *Session) resolve(att *attempt, out Outcome, creds *Credentials) bool {
	s.authMu.Lock()
	if att.resolved || s.attempt != att {
		s.authMu.Unlock()
		return false
	}
	att.resolved = true
	s.attempt = nil
	stop, d := att.stop, att.dialog
	s.authMu.Unlock()

	if stop != nil {
		stop()
	}
	if creds != nil {
		s.setCredentials(*creds)
	}
	if d != nil {
		d.Dismiss(true)
	}

	attrs := []any{"outcome", out.Kind.String()}
	if out.Err != nil {
		attrs = append(attrs, "error", out.Err)
	}
	att.logger.Info("authorization resolved", attrs...)

	att.queue.push(func() {
		if att.handler != nil {
			att.handler(out)
		}
	})
	return true
}

// parseExpiry turns expires_in seconds into an instant. Zero, absent or
// unparsable values mean the token does not expire.
func parseExpiry(v string, now time.Time) time.Time {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(n) * time.Second)
}

func splitScopes(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isCancelMarker(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	}
	return false
}
