// Package cli implements the graphctl command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aussiebroadwan/graphconnect/internal/app"
	"github.com/aussiebroadwan/graphconnect/internal/filter"
)

// rootFlags are the persistent flags. Unset flags leave the environment
// configuration alone.
type rootFlags struct {
	AppID      string
	LocalAppID string
	Store      string
	LogLevel   string
	Timeout    time.Duration
	JQ         string
}

type env struct {
	flags rootFlags
	opts  []app.Option
	app   *app.Application
}

// Execute runs graphctl with args. opts are passed to app.New, which is
// how tests swap in fake transports and browsers.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...app.Option) error {
	e := &env{opts: append([]app.Option{app.WithOutput(stderr)}, opts...)}
	defer func() {
		if e.app != nil {
			_ = e.app.Close()
		}
	}()

	root := &cobra.Command{
		Use:           "graphctl",
		Short:         "Log in to the Graph API and make calls from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&e.flags.AppID, "app-id", "", "provider application id (env GRAPH_APP_ID)")
	pf.StringVar(&e.flags.LocalAppID, "local-app-id", "", "local application suffix (env GRAPH_LOCAL_APP_ID)")
	pf.StringVar(&e.flags.Store, "store", "", "credential store: keyring, sqlite, redis or none (env GRAPH_STORE)")
	pf.StringVar(&e.flags.LogLevel, "log-level", "", "log level (env LOG_LEVEL)")
	pf.DurationVar(&e.flags.Timeout, "timeout", 0, "per attempt HTTP timeout (env GRAPH_HTTP_TIMEOUT)")
	pf.StringVar(&e.flags.JQ, "jq", "", "jq expression applied to JSON output")

	root.AddCommand(
		newLoginCmd(e),
		newLogoutCmd(e),
		newStatusCmd(e),
		newGetCmd(e),
		newPostCmd(e),
		newRESTCmd(e),
		newDialogURLCmd(e),
	)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return err
}

// application builds the Application on first use, applying any flags
// the user actually set over the environment.
func (e *env) application(cmd *cobra.Command) (*app.Application, error) {
	if e.app != nil {
		return e.app, nil
	}

	cfg := app.LoadConfig()
	fs := cmd.Flags()
	if changed(fs, "app-id") {
		cfg.AppID = e.flags.AppID
	}
	if changed(fs, "local-app-id") {
		cfg.LocalAppID = e.flags.LocalAppID
	}
	if changed(fs, "store") {
		cfg.Store = strings.ToLower(e.flags.Store)
	}
	if changed(fs, "log-level") {
		cfg.LogLevel = e.flags.LogLevel
	}
	if changed(fs, "timeout") {
		cfg.HTTPTimeout = e.flags.Timeout
	}

	a, err := app.New(cmd.Context(), cfg, e.opts...)
	if err != nil {
		return nil, err
	}
	e.app = a
	return a, nil
}

func (e *env) filter() (*filter.Filter, error) {
	return filter.Compile(e.flags.JQ)
}

func changed(fs *pflag.FlagSet, name string) bool {
	f := fs.Lookup(name)
	return f != nil && f.Changed
}

// errNotLoggedIn is returned by login when the provider did not grant a token.
var errNotLoggedIn = errors.New("not logged in")
