package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/graphconnect/internal/app"
	"github.com/aussiebroadwan/graphconnect/pkg/slogx"
)

func fakeGraph(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /graph/me", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"4","name":"Mark","fields":"` + r.URL.Query().Get("fields") + `"}`))
	})
	mux.HandleFunc("GET /graph/me/friends", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"1"},{"id":"2"}]}`))
	})
	mux.HandleFunc("POST /graph/me/photos", func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "cat", r.FormValue("caption"))
		file, hdr, err := r.FormFile("source")
		if assert.NoError(t, err) {
			defer file.Close()
			data, _ := io.ReadAll(file)
			assert.Equal(t, "PNGDATA", string(data))
			assert.Equal(t, "cat.png", hdr.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"99"}`))
	})
	mux.HandleFunc("GET /method/users.getInfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"uid":4,"name":"Mark"}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setEnv(t *testing.T, srv *httptest.Server) {
	t.Helper()
	t.Setenv("GRAPH_APP_ID", "123")
	t.Setenv("GRAPH_LOCAL_APP_ID", "")
	t.Setenv("GRAPH_URL", srv.URL+"/graph/")
	t.Setenv("GRAPH_REST_URL", srv.URL+"/method/")
	t.Setenv("GRAPH_DIALOG_URL", srv.URL+"/dialog/")
	t.Setenv("GRAPH_STORE", "none")
}

func run(t *testing.T, args []string, opts ...app.Option) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	base := []app.Option{
		app.WithLogger(slogx.Discard()),
		app.WithHTTPClient(&http.Client{Timeout: 5 * time.Second}),
	}
	err := Execute(context.Background(), args, &stdout, &stderr, append(base, opts...)...)
	return stdout.String(), stderr.String(), err
}

func TestStatusLoggedOut(t *testing.T) {
	setEnv(t, fakeGraph(t))

	out, _, err := run(t, []string{"status"})
	require.NoError(t, err)
	require.JSONEq(t, `{"logged_in":false,"app_id":"123","redirect_scheme":"fb123"}`, out)

	out, _, err = run(t, []string{"status", "--jq", ".logged_in"})
	require.NoError(t, err)
	require.Equal(t, "false\n", out)
}

func TestFlagsOverrideEnv(t *testing.T) {
	setEnv(t, fakeGraph(t))

	out, _, err := run(t, []string{"status", "--app-id", "777", "--local-app-id", "pro"})
	require.NoError(t, err)
	require.Contains(t, out, `"redirect_scheme": "fb777pro"`)

	_, stderr, err := run(t, []string{"status", "--store", "floppy"})
	require.ErrorContains(t, err, `unknown store "floppy"`)
	require.Contains(t, stderr, "error:")
}

func TestGetSingleAndMany(t *testing.T) {
	setEnv(t, fakeGraph(t))

	out, _, err := run(t, []string{"get", "me", "-f", "fields=id,name", "--jq", ".fields"})
	require.NoError(t, err)
	require.Equal(t, "\"id,name\"\n", out)

	out, _, err = run(t, []string{"get", "me", "me/friends"})
	require.NoError(t, err)
	require.JSONEq(t, `{
		"me": {"id":"4","name":"Mark","fields":""},
		"me/friends": {"data":[{"id":"1"},{"id":"2"}]}
	}`, out)
}

func TestGetFailsWhenAnyPathFails(t *testing.T) {
	setEnv(t, fakeGraph(t))

	_, _, err := run(t, []string{"get", "me", "missing"})
	require.Error(t, err)
}

func TestPostUploadsFile(t *testing.T) {
	setEnv(t, fakeGraph(t))

	path := filepath.Join(t.TempDir(), "cat.png")
	require.NoError(t, os.WriteFile(path, []byte("PNGDATA"), 0o600))

	out, _, err := run(t, []string{"post", "me/photos", "-f", "source=@" + path, "-f", "caption=cat"})
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"99"}`, out)
}

func TestREST(t *testing.T) {
	setEnv(t, fakeGraph(t))

	out, _, err := run(t, []string{"rest", "users.getInfo", "-f", "uids=4", "--jq", ".[0].name"})
	require.NoError(t, err)
	require.Equal(t, "\"Mark\"\n", out)
}

func TestDialogURL(t *testing.T) {
	setEnv(t, fakeGraph(t))

	out, _, err := run(t, []string{"dialog-url", "feed", "-f", "link=https://example.com"})
	require.NoError(t, err)

	u, err := url.Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, "/dialog/feed", u.Path)
	require.Equal(t, "https://example.com", u.Query().Get("link"))
}

func TestLoginThenLogout(t *testing.T) {
	setEnv(t, fakeGraph(t))

	opened := make(chan string, 1)
	browser := app.WithBrowser(func(u string) error {
		opened <- u
		return nil
	})

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, _, err := run(t, []string{"login", "--scope", "email,user_posts"}, browser)
		done <- result{out, err}
	}()

	var raw string
	select {
	case raw = <-opened:
	case <-time.After(5 * time.Second):
		t.Fatal("browser was never opened")
	}
	authURL, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "email,user_posts", authURL.Query().Get("scope"))

	redirect := authURL.Query().Get("redirect_uri")
	q := url.Values{"access_token": {"tok"}, "granted_scopes": {"email"}, "state": {authURL.Query().Get("state")}}
	resp, err := http.Get(strings.TrimSuffix(redirect, "/authorize") + "/complete?" + q.Encode())
	require.NoError(t, err)
	resp.Body.Close()

	res := <-done
	require.NoError(t, res.err)
	require.Contains(t, res.out, "Logged in.")
	require.Contains(t, res.out, "Permissions: email")

	out, _, err := run(t, []string{"logout"})
	require.NoError(t, err)
	require.Contains(t, out, "Logged out.")
}

func TestLoginDenied(t *testing.T) {
	setEnv(t, fakeGraph(t))

	opened := make(chan string, 1)
	browser := app.WithBrowser(func(u string) error {
		opened <- u
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, _, err := run(t, []string{"login"}, browser)
		done <- err
	}()

	authURL, err := url.Parse(<-opened)
	require.NoError(t, err)
	redirect := authURL.Query().Get("redirect_uri")
	resp, err := http.Get(strings.TrimSuffix(redirect, "/authorize") + "/complete?error=access_denied&error_description=no")
	require.NoError(t, err)
	resp.Body.Close()

	err = <-done
	require.ErrorIs(t, err, errNotLoggedIn)
}

func TestParamsFlag(t *testing.T) {
	f := newParamsFlag(false)
	require.NoError(t, f.Set("a=1"))
	require.NoError(t, f.Set("b=x=y"))
	require.Error(t, f.Set("novalue"))
	require.Error(t, f.Set("=v"))
	require.Equal(t, "a,b", f.String())

	v, ok := f.params.GetString("b")
	require.True(t, ok)
	require.Equal(t, "x=y", v)

	// Without file support "@" is literal.
	require.NoError(t, f.Set("c=@nope"))
	v, _ = f.params.GetString("c")
	require.Equal(t, "@nope", v)

	files := newParamsFlag(true)
	require.Error(t, files.Set("c=@"+filepath.Join(t.TempDir(), "missing")))
}
