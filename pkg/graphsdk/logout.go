package graphsdk

import (
	"context"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/graphconnect/pkg/formx"
)

const expireSessionMethod = "auth.expireSession"

// Logout clears the local credentials immediately, then asks the provider
// to expire the server-side session. handler receives OutcomeLoggedOut
// exactly once, after the provider call finishes, whether it succeeded or
// not. A session without a token skips the provider call.
func (s *Session) Logout(ctx context.Context, handler AuthorizeHandler) {
	creds := s.Snapshot()

	var req *Request
	var buildErr error
	if creds.AccessToken != "" {
		// The token is passed explicitly so an expired one is still sent.
		req, buildErr = s.BuildRESTRequest(expireSessionMethod,
			formx.NewParams(paramAccessToken, creds.AccessToken), http.MethodGet)
	}

	s.clearCredentials()
	s.expireDialogCookies()
	s.logger.Info("session cleared")

	done := func(err error) {
		if err != nil {
			s.logger.Warn("session invalidation failed", "error", err)
		}
		if handler != nil {
			handler(Outcome{Kind: OutcomeLoggedOut, Err: err})
		}
	}

	if req == nil {
		newSerialQueue(s.exec).push(func() { done(buildErr) })
		return
	}

	err := req.Dispatch(ctx, func(_ *Response, err error) { done(err) })
	if err != nil {
		newSerialQueue(s.exec).push(func() { done(err) })
	}
}

// expireDialogCookies removes cookies the dialog host set in the HTTP
// client's jar, so the next login prompts again.
func (s *Session) expireDialogCookies() {
	jar := s.httpClient.Jar
	if jar == nil {
		return
	}
	u, err := url.Parse(s.endpoints.DialogURL)
	if err != nil {
		return
	}

	var expired []*http.Cookie
	for _, c := range jar.Cookies(u) {
		expired = append(expired,
			&http.Cookie{Name: c.Name, Path: "/", MaxAge: -1},
			&http.Cookie{Name: c.Name, MaxAge: -1},
		)
	}
	if len(expired) > 0 {
		jar.SetCookies(u, expired)
	}
}
