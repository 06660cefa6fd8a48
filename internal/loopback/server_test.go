package loopback

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/graphconnect/pkg/graphsdk"
	"github.com/aussiebroadwan/graphconnect/pkg/slogx"
)

type captureBrowser struct {
	mu   sync.Mutex
	urls []string
}

func (c *captureBrowser) open(u string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.urls = append(c.urls, u)
	return nil
}

func (c *captureBrowser) last(t *testing.T) *url.URL {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.urls)
	u, err := url.Parse(c.urls[len(c.urls)-1])
	require.NoError(t, err)
	return u
}

func newTestServer(t *testing.T) (*Server, *captureBrowser, *bytes.Buffer) {
	t.Helper()
	browser := &captureBrowser{}
	out := &bytes.Buffer{}
	srv, err := New(Config{Logger: slogx.Discard(), Out: out, OpenBrowser: browser.open})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, browser, out
}

func newSession(t *testing.T, h graphsdk.Handoff) *graphsdk.Session {
	t.Helper()
	s, err := graphsdk.NewSession("123",
		graphsdk.WithHandoff(h),
		graphsdk.WithLogger(slogx.Discard()),
		graphsdk.WithEndpoints(graphsdk.Endpoints{
			GraphURL:  "https://graph.example/",
			RESTURL:   "https://api.example/method/",
			DialogURL: "https://m.example/dialog/",
		}),
	)
	require.NoError(t, err)
	return s
}

func get(t *testing.T, u string) (int, string) {
	t.Helper()
	resp, err := http.Get(u)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestOpenDeclinesWithoutTarget(t *testing.T) {
	srv, browser, _ := newTestServer(t)

	ok, err := srv.Open(context.Background(), graphsdk.HandoffRequest{URL: "https://m.example/dialog/oauth?a=b"})
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, browser.urls)
}

func TestOpenSwapsRedirectURI(t *testing.T) {
	srv, browser, out := newTestServer(t)
	srv.Attach(newSession(t, srv))

	ok, err := srv.Open(context.Background(), graphsdk.HandoffRequest{
		URL:         "https://m.example/dialog/oauth?client_id=123&redirect_uri=fb123%3A%2F%2Fauthorize&state=s",
		RedirectURI: "fb123://authorize",
	})
	require.NoError(t, err)
	require.True(t, ok)

	u := browser.last(t)
	require.Equal(t, srv.RedirectURL(), u.Query().Get("redirect_uri"))
	require.Equal(t, "123", u.Query().Get("client_id"))
	require.Equal(t, "s", u.Query().Get("state"))
	require.Contains(t, out.String(), "Open this URL")
}

func TestLoginThroughLoopback(t *testing.T) {
	srv, browser, _ := newTestServer(t)
	sess := newSession(t, srv)
	srv.Attach(sess)

	outcomes := make(chan graphsdk.Outcome, 1)
	require.NoError(t, sess.Authorize(context.Background(), []string{"email"}, func(o graphsdk.Outcome) {
		outcomes <- o
	}))

	authURL := browser.last(t)
	require.Equal(t, srv.RedirectURL(), authURL.Query().Get("redirect_uri"))
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	code, page := get(t, srv.RedirectURL())
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, page, "/complete?")

	q := url.Values{"access_token": {"tok"}, "expires_in": {"3600"}, "state": {state}}
	code, page = get(t, srv.baseURL+"/complete?"+q.Encode())
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, page, "Logged in")

	select {
	case o := <-outcomes:
		require.Equal(t, graphsdk.OutcomeLoggedIn, o.Kind)
		require.Equal(t, "tok", o.AccessToken)
	case <-time.After(5 * time.Second):
		t.Fatal("authorization did not resolve")
	}
	require.True(t, sess.IsSessionValid())

	select {
	case <-srv.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestCompleteWithoutTarget(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/complete?access_token=x", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestCompleteWithErrorIsNotLoggedIn(t *testing.T) {
	srv, _, _ := newTestServer(t)
	sess := newSession(t, srv)
	srv.Attach(sess)

	outcomes := make(chan graphsdk.Outcome, 1)
	require.NoError(t, sess.Authorize(context.Background(), nil, func(o graphsdk.Outcome) { outcomes <- o }))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/complete?error=access_denied&error_description=nope", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Login not completed")

	select {
	case o := <-outcomes:
		require.Equal(t, graphsdk.OutcomeNotLoggedIn, o.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("authorization did not resolve")
	}
}

func TestSwapRedirectRejectsBadURL(t *testing.T) {
	_, err := swapRedirect("://bad", "http://127.0.0.1/authorize")
	require.Error(t, err)
}

func TestSkipBrowserUnderTest(t *testing.T) {
	require.True(t, shouldSkipAutoBrowserOpen())
	require.NoError(t, openBrowser("http://127.0.0.1/"))
}
