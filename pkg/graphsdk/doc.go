/*
Package graphsdk is a client for a social-platform identity provider and its
Graph and REST APIs.

# Sessions

A Session owns the authorization state of one provider app: access token,
expiry and granted permissions. Sessions are plain values; create as many
as needed.

	s, err := graphsdk.NewSession("123",
		graphsdk.WithHandoff(browser),
		graphsdk.WithPresenter(view),
	)

IsSessionValid reports whether a token is present and unexpired. Snapshot,
Restore and OnChange let the host persist credentials without the session
touching disk.

# Authorization

Authorize starts an attempt. The Handoff is tried first (a provider app or
a browser); if it declines, the in-app Dialog is shown through the
Presenter. The provider redirects to "fb<appID><localAppID>://authorize"
with the result in the query or fragment, and the host forwards that URL:

	if s.HandleOpenURL(u) {
		return // consumed
	}

The handler receives exactly one Outcome:

  - OutcomeLoggedIn: a token arrived; the session is updated first.
  - OutcomeCanceled: the user canceled, or ctx was canceled.
  - OutcomeNotLoggedIn: the provider reported an error, or the redirect
    carried nothing recognisable (Err then wraps ErrProtocol).

Logout clears the session synchronously and reports OutcomeLoggedOut once
the provider has been told.

# Requests

BuildGraphRequest, BuildRESTRequest and BuildRequest return a Request with
the session token injected. Construction errors come back immediately;
everything after Dispatch arrives through the completion callback.

	req, err := s.BuildGraphRequest("me", nil, http.MethodGet)
	if err != nil {
		return err
	}
	err = req.Dispatch(ctx, func(resp *graphsdk.Response, err error) {
		// exactly once, after any progress callbacks
	}, graphsdk.OnDownloadProgress(func(f float64) {}))

Any binary parameter (formx.Blob, []byte or image.Image) turns the request
into a multipart POST.

# Callbacks

Callbacks for one Request, Dialog or authorization attempt never overlap
and arrive in order. By default they run on background goroutines;
WithCallbackExecutor routes them to a host loop instead.

# Errors

Errors carry one of the kinds ErrInvalidParameter, ErrInvalidState,
ErrTransport, ErrProtocol, ErrCanceled or ErrSessionExpired; test with
errors.Is. Provider error payloads are exposed as *APIError.
*/
package graphsdk
