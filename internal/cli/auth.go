package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/graphconnect/pkg/graphsdk"
)

func newLoginCmd(e *env) *cobra.Command {
	var scopes []string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize through the browser and store the access token",
		Example: `  graphctl login
  graphctl login --scope email,user_posts`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.application(cmd)
			if err != nil {
				return err
			}

			outcome, err := a.Login(cmd.Context(), scopes)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch outcome.Kind {
			case graphsdk.OutcomeLoggedIn:
				fmt.Fprintln(out, "Logged in.")
				if !outcome.ExpiresAt.IsZero() {
					fmt.Fprintf(out, "Token expires %s.\n", outcome.ExpiresAt.Format(time.RFC3339))
				}
				if len(outcome.Permissions) > 0 {
					fmt.Fprintf(out, "Permissions: %s\n", strings.Join(outcome.Permissions, ", "))
				}
				return nil
			case graphsdk.OutcomeCanceled:
				fmt.Fprintln(out, "Login canceled.")
				return nil
			default:
				if outcome.Err != nil {
					return fmt.Errorf("%w: %w", errNotLoggedIn, outcome.Err)
				}
				return errNotLoggedIn
			}
		},
	}
	cmd.Flags().StringSliceVar(&scopes, "scope", nil, "permissions to request (comma separated)")
	return cmd
}

func newLogoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Invalidate the access token and forget it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.application(cmd)
			if err != nil {
				return err
			}

			outcome := a.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			if outcome.Err != nil {
				// Local state is already gone; the provider call is best effort.
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: provider did not confirm logout: %v\n", outcome.Err)
			}
			return nil
		},
	}
}

type statusView struct {
	LoggedIn    bool       `json:"logged_in"`
	AppID       string     `json:"app_id"`
	Scheme      string     `json:"redirect_scheme"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Permissions []string   `json:"permissions,omitempty"`
	AccessToken string     `json:"access_token,omitempty"`
}

func newStatusCmd(e *env) *cobra.Command {
	var showToken bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a valid token is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.application(cmd)
			if err != nil {
				return err
			}
			f, err := e.filter()
			if err != nil {
				return err
			}

			s := a.Session()
			creds := a.Status()
			view := statusView{
				LoggedIn:    s.IsSessionValid(),
				AppID:       s.AppID(),
				Scheme:      s.RedirectScheme(),
				Permissions: creds.Permissions,
			}
			if !creds.ExpiresAt.IsZero() {
				view.ExpiresAt = &creds.ExpiresAt
			}
			if showToken {
				view.AccessToken = creds.AccessToken
			}
			return writeJSON(cmd.OutOrStdout(), view, f)
		},
	}
	cmd.Flags().BoolVar(&showToken, "show-token", false, "include the access token in the output")
	return cmd
}
