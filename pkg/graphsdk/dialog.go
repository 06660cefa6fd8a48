package graphsdk

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/aussiebroadwan/graphconnect/pkg/formx"
	"github.com/aussiebroadwan/graphconnect/pkg/idx"
)

// In-dialog redirect conventions.
const (
	dialogScheme      = "fbconnect"
	DialogSuccessURL  = "fbconnect://success"
	DialogCancelURL   = "fbconnect://cancel"
	defaultDisplay    = "touch"
	paramRedirectURI  = "redirect_uri"
	paramDisplay      = "display"
	paramAppID        = "app_id"
	paramErrorCode    = "error_code"
	paramErrorMessage = "error_msg"
)

// DialogStatus is how a dialog ended.
type DialogStatus int

const (
	DialogSuccess DialogStatus = iota
	DialogCancel
	DialogError
)

func (s DialogStatus) String() string {
	switch s {
	case DialogSuccess:
		return "success"
	case DialogCancel:
		return "cancel"
	case DialogError:
		return "error"
	default:
		return fmt.Sprintf("DialogStatus(%d)", int(s))
	}
}

// DialogResult is delivered once when a dialog ends. URL is the final
// navigation target when there was one.
type DialogResult struct {
	Status DialogStatus
	URL    *url.URL
	Err    error
}

// Param returns a named query or fragment parameter of the result URL.
func (r DialogResult) Param(name string) string {
	if r.URL == nil {
		return ""
	}
	v, _ := formx.URLParams(r.URL).GetString(name)
	return v
}

type DialogHandler func(DialogResult)

// Dialog is one presentation of a URL-driven flow, such as login or a
// feed post. It completes exactly once.
type Dialog struct {
	id     idx.ID
	Title  string
	Action string
	URL    string
	Params *formx.Params

	// ShouldOpenExternally, if set, is consulted for every navigation that
	// is not a dialog redirect. Returning true sends the URL to the
	// external opener instead of loading it in place.
	ShouldOpenExternally func(u *url.URL) bool

	presenter Presenter
	openURL   func(u *url.URL)
	logger    *slog.Logger
	queue     *serialQueue

	mu      sync.Mutex
	shown   bool
	done    bool
	handler DialogHandler
}

// BuildDialog builds a dialog for action (for example "feed" or "oauth")
// with the app id, display mode, redirect and a valid token filled in.
func (s *Session) BuildDialog(action string, params *formx.Params) (*Dialog, error) {
	action = strings.Trim(strings.TrimSpace(action), "/")
	if action == "" {
		return nil, newError(ErrInvalidParameter, "build dialog", fmt.Errorf("%w: empty action", formx.ErrInvalidParameter))
	}

	p := cloneParams(params)
	p.SetDefault(paramAppID, s.appID)
	p.SetDefault(paramRedirectURI, DialogSuccessURL)
	p.SetDefault(paramDisplay, defaultDisplay)
	if creds := s.Snapshot(); creds.Valid(s.now()) {
		p.SetDefault(paramAccessToken, creds.AccessToken)
	}
	return s.newDialog(action, p)
}

func (s *Session) newDialog(action string, p *formx.Params) (*Dialog, error) {
	target, err := formx.BuildURL(s.endpoints.DialogURL+action, p)
	if err != nil {
		return nil, newError(ErrInvalidParameter, "build dialog", err)
	}

	id := idx.New()
	d := &Dialog{
		id:        id,
		Action:    action,
		URL:       target,
		Params:    p,
		presenter: s.presenter,
		logger:    s.logger.With("dialog_id", id.String(), "action", action),
		queue:     newSerialQueue(s.exec),
	}
	if s.handoff != nil {
		d.openURL = func(u *url.URL) {
			if _, err := s.handoff.Open(context.Background(), HandoffRequest{URL: u.String(), PreferBrowser: true}); err != nil {
				d.logger.Warn("open external url failed", "error", err)
			}
		}
	}
	return d, nil
}

func (d *Dialog) ID() idx.ID { return d.id }

// Show hands the dialog to the presenter. handler is called exactly once
// when the dialog ends.
func (d *Dialog) Show(handler DialogHandler) error {
	d.mu.Lock()
	if d.shown || d.done {
		d.mu.Unlock()
		return newError(ErrInvalidState, "show dialog", fmt.Errorf("dialog already shown"))
	}
	if d.presenter == nil {
		d.mu.Unlock()
		return newError(ErrInvalidState, "show dialog", fmt.Errorf("no presenter configured"))
	}
	d.shown = true
	d.handler = handler
	d.mu.Unlock()

	d.logger.Debug("dialog presented")
	if err := d.presenter.Present(d); err != nil {
		d.mu.Lock()
		d.done = true
		d.mu.Unlock()
		return newError(ErrInvalidState, "show dialog", err)
	}
	return nil
}

// HandleNavigation is called by the presenter before loading u. It
// returns true when the presenter should load u in place.
func (d *Dialog) HandleNavigation(u *url.URL) bool {
	if strings.EqualFold(u.Scheme, dialogScheme) {
		if isCancelURL(u) {
			code := formx.ParamFromURL(u.String(), paramErrorCode)
			msg := formx.ParamFromURL(u.String(), paramErrorMessage)
			if code != "" || msg != "" {
				d.finish(DialogResult{Status: DialogError, URL: u, Err: dialogError(code, msg)}, true)
			} else {
				d.finish(DialogResult{Status: DialogCancel, URL: u}, true)
			}
		} else {
			d.Complete(u)
		}
		return false
	}

	if d.ShouldOpenExternally != nil && d.ShouldOpenExternally(u) {
		if d.openURL != nil {
			d.openURL(u)
		}
		return false
	}
	return true
}

// Complete ends the dialog successfully with the final URL.
func (d *Dialog) Complete(u *url.URL) {
	d.finish(DialogResult{Status: DialogSuccess, URL: u}, true)
}

// Fail ends the dialog with an error, for example a page load failure.
func (d *Dialog) Fail(err error) {
	d.finish(DialogResult{Status: DialogError, Err: newError(ErrTransport, "dialog", err)}, true)
}

// Dismiss closes the dialog. A dialog that has not completed ends with
// DialogCancel.
func (d *Dialog) Dismiss(animated bool) {
	d.finish(DialogResult{Status: DialogCancel}, animated)
}

func (d *Dialog) finish(res DialogResult, animated bool) {
	d.mu.Lock()
	if d.done || !d.shown {
		d.mu.Unlock()
		return
	}
	d.done = true
	handler := d.handler
	d.mu.Unlock()

	d.logger.Debug("dialog finished", "status", res.Status.String())
	d.presenter.Dismiss(d, animated)
	d.queue.push(func() {
		if handler != nil {
			handler(res)
		}
	})
}

func isCancelURL(u *url.URL) bool {
	return strings.EqualFold(u.Host, "cancel") || strings.EqualFold(strings.Trim(u.Opaque, "/"), "cancel")
}

func dialogError(code, msg string) error {
	n, _ := strconv.Atoi(code)
	return &APIError{Code: n, Message: msg}
}
