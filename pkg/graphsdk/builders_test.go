package graphsdk

import (
	"image"
	"net/http"
	"testing"
	"time"

	"github.com/aussiebroadwan/graphconnect/pkg/formx"
	"github.com/stretchr/testify/require"
)

func TestBuildGraphRequest(t *testing.T) {
	t.Parallel()

	t.Run("injects token into GET query", func(t *testing.T) {
		s := newTestSession(t)
		s.Restore(Credentials{AccessToken: "T1"})

		req, err := s.BuildGraphRequest("me", formx.NewParams(), "GET")
		require.NoError(t, err)
		require.Equal(t, "https://graph.example/me?access_token=T1", req.URL())
		require.Equal(t, http.MethodGet, req.Method())
		require.Equal(t, RequestIdle, req.State())
		require.False(t, req.IsExecuting())
	})

	t.Run("nil params and empty method", func(t *testing.T) {
		s := newTestSession(t)
		s.Restore(Credentials{AccessToken: "T1"})

		req, err := s.BuildGraphRequest("/me/friends", nil, "")
		require.NoError(t, err)
		require.Equal(t, "https://graph.example/me/friends?access_token=T1", req.URL())
	})

	t.Run("no token leaves params alone", func(t *testing.T) {
		s := newTestSession(t)
		req, err := s.BuildGraphRequest("me", formx.NewParams("fields", "id,name"), http.MethodGet)
		require.NoError(t, err)
		require.Equal(t, "https://graph.example/me?fields=id%2Cname", req.URL())
	})

	t.Run("caller token wins", func(t *testing.T) {
		s := newTestSession(t)
		s.Restore(Credentials{AccessToken: "T1"})

		req, err := s.BuildGraphRequest("me", formx.NewParams("access_token", "mine"), http.MethodGet)
		require.NoError(t, err)
		require.Equal(t, "https://graph.example/me?access_token=mine", req.URL())
	})

	t.Run("caller params are not mutated", func(t *testing.T) {
		s := newTestSession(t)
		s.Restore(Credentials{AccessToken: "T1"})

		p := formx.NewParams("fields", "id")
		_, err := s.BuildGraphRequest("me", p, http.MethodGet)
		require.NoError(t, err)
		require.False(t, p.Has("access_token"))
	})

	t.Run("expired token fails", func(t *testing.T) {
		now := time.Now()
		s := newTestSession(t, WithClock(func() time.Time { return now }))
		s.Restore(Credentials{AccessToken: "T1", ExpiresAt: now.Add(-time.Minute)})

		_, err := s.BuildGraphRequest("me", nil, http.MethodGet)
		require.ErrorIs(t, err, ErrSessionExpired)
		require.True(t, IsSessionExpired(err))

		// An explicit token bypasses the check.
		_, err = s.BuildGraphRequest("me", formx.NewParams("access_token", "other"), http.MethodGet)
		require.NoError(t, err)
	})

	t.Run("binary forces POST", func(t *testing.T) {
		s := newTestSession(t)
		s.Restore(Credentials{AccessToken: "T1"})

		img := image.NewRGBA(image.Rect(0, 0, 1, 1))
		req, err := s.BuildGraphRequest("me/photos", formx.NewParams("source", img, "message", "hi"), http.MethodGet)
		require.NoError(t, err)
		require.Equal(t, http.MethodPost, req.Method())
		require.Equal(t, formx.ModeMultipart, req.Encoded().Mode)
		require.Equal(t, "https://graph.example/me/photos", req.URL())
	})

	t.Run("invalid parameter", func(t *testing.T) {
		s := newTestSession(t)
		_, err := s.BuildGraphRequest("me", formx.NewParams("limit", 10), http.MethodGet)
		require.ErrorIs(t, err, ErrInvalidParameter)

		var sdkErr *Error
		require.ErrorAs(t, err, &sdkErr)
		require.Equal(t, "build request", sdkErr.Op)
	})
}

func TestBuildRESTRequest(t *testing.T) {
	t.Parallel()

	s := newTestSession(t)
	s.Restore(Credentials{AccessToken: "T1"})

	t.Run("method name from params", func(t *testing.T) {
		req, err := s.BuildRequest(formx.NewParams("method", "users.getInfo", "uids", "4"), http.MethodGet)
		require.NoError(t, err)
		require.Equal(t, "https://api.example/method/users.getInfo?uids=4&format=json&access_token=T1", req.URL())
		require.False(t, req.Params().Has("method"))
	})

	t.Run("missing method", func(t *testing.T) {
		_, err := s.BuildRequest(formx.NewParams("uids", "4"), http.MethodGet)
		require.ErrorIs(t, err, ErrInvalidParameter)

		_, err = s.BuildRequest(nil, http.MethodGet)
		require.ErrorIs(t, err, ErrInvalidParameter)
	})

	t.Run("explicit format kept", func(t *testing.T) {
		req, err := s.BuildRESTRequest("status.get", formx.NewParams("format", "xml"), http.MethodGet)
		require.NoError(t, err)
		require.Equal(t, "https://api.example/method/status.get?format=xml&access_token=T1", req.URL())
	})

	t.Run("empty name", func(t *testing.T) {
		_, err := s.BuildRESTRequest(" ", nil, http.MethodGet)
		require.ErrorIs(t, err, ErrInvalidParameter)
	})
}

func TestBuildDialog(t *testing.T) {
	t.Parallel()

	t.Run("fills defaults and token", func(t *testing.T) {
		s := newTestSession(t)
		s.Restore(Credentials{AccessToken: "T1"})

		d, err := s.BuildDialog("feed", formx.NewParams("link", "https://x.example"))
		require.NoError(t, err)
		require.Equal(t, "feed", d.Action)
		require.Equal(t,
			"https://m.example/dialog/feed?link=https%3A%2F%2Fx.example&app_id=123&redirect_uri=fbconnect%3A%2F%2Fsuccess&display=touch&access_token=T1",
			d.URL)
	})

	t.Run("caller values kept", func(t *testing.T) {
		s := newTestSession(t)
		d, err := s.BuildDialog("apprequests", formx.NewParams("display", "popup", "redirect_uri", "https://r.example"))
		require.NoError(t, err)
		v, _ := d.Params.GetString("display")
		require.Equal(t, "popup", v)
		v, _ = d.Params.GetString("redirect_uri")
		require.Equal(t, "https://r.example", v)
		require.False(t, d.Params.Has("access_token"))
	})

	t.Run("expired token is not injected", func(t *testing.T) {
		s := newTestSession(t)
		s.Restore(Credentials{AccessToken: "T1", ExpiresAt: time.Now().Add(-time.Hour)})
		d, err := s.BuildDialog("feed", nil)
		require.NoError(t, err)
		require.False(t, d.Params.Has("access_token"))
	})

	t.Run("binary rejected", func(t *testing.T) {
		s := newTestSession(t)
		_, err := s.BuildDialog("feed", formx.NewParams("picture", []byte("x")))
		require.ErrorIs(t, err, ErrInvalidParameter)

		_, err = s.BuildDialog("", nil)
		require.ErrorIs(t, err, ErrInvalidParameter)
	})
}
