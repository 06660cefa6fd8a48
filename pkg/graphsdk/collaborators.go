package graphsdk

import "context"

// Presenter shows dialogs on screen. Present takes ownership of the
// dialog's presentation; the presenter then reports navigations through
// Dialog.HandleNavigation and user dismissal through Dialog.Dismiss.
// Dismiss is called by the dialog when it completes and must not block.
type Presenter interface {
	Present(d *Dialog) error
	Dismiss(d *Dialog, animated bool)
}

// HandoffRequest describes an authorization to be completed outside the
// process, in a provider app or a browser.
type HandoffRequest struct {
	// URL is the full authorization URL.
	URL string
	// RedirectURI is where the provider will send the result, normally
	// "<scheme>://authorize".
	RedirectURI string
	// PreferBrowser is set when the provider asked for the browser instead
	// of its native app.
	PreferBrowser bool
}

// Handoff delegates authorization to another application. Open returns
// false when it cannot handle the request, in which case the session falls
// back to the in-app dialog. The result must reach Session.HandleOpenURL.
type Handoff interface {
	Open(ctx context.Context, req HandoffRequest) (bool, error)
}

// HandoffFunc adapts a function to Handoff.
type HandoffFunc func(ctx context.Context, req HandoffRequest) (bool, error)

func (f HandoffFunc) Open(ctx context.Context, req HandoffRequest) (bool, error) {
	return f(ctx, req)
}
