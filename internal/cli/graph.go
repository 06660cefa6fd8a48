package cli

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentGets bounds the fan-out of a multi-path get.
const maxConcurrentGets = 4

func newGetCmd(e *env) *cobra.Command {
	fields := newParamsFlag(false)

	cmd := &cobra.Command{
		Use:   "get <path> [path...]",
		Short: "Read one or more Graph paths",
		Long: `Read one or more Graph paths. With several paths the calls run
concurrently and the output is an object keyed by path.`,
		Example: `  graphctl get me -f fields=id,name
  graphctl get me me/friends --jq '.["me/friends"].data | length'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.application(cmd)
			if err != nil {
				return err
			}
			f, err := e.filter()
			if err != nil {
				return err
			}

			if len(args) == 1 {
				resp, err := a.Graph(cmd.Context(), args[0], fields.params, http.MethodGet)
				if err != nil {
					return err
				}
				return writeBody(cmd.OutOrStdout(), resp.Body, f)
			}

			bodies := make([]json.RawMessage, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(maxConcurrentGets)
			for i, path := range args {
				g.Go(func() error {
					resp, err := a.Graph(ctx, path, fields.params, http.MethodGet)
					if err != nil {
						return err
					}
					if !json.Valid(resp.Body) {
						raw, _ := json.Marshal(string(resp.Body))
						bodies[i] = raw
						return nil
					}
					bodies[i] = resp.Body
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			merged := make(map[string]json.RawMessage, len(args))
			for i, path := range args {
				merged[path] = bodies[i]
			}
			return writeJSON(cmd.OutOrStdout(), merged, f)
		},
	}
	cmd.Flags().VarP(fields, "field", "f", "query parameter as key=value (repeatable)")
	return cmd
}

func newPostCmd(e *env) *cobra.Command {
	fields := newParamsFlag(true)
	var method string

	cmd := &cobra.Command{
		Use:   "post <path>",
		Short: "Write to a Graph path",
		Long: `Write to a Graph path. A field value of @file uploads the file as a
binary part, which forces a multipart POST.`,
		Example: `  graphctl post me/feed -f message=hello
  graphctl post me/photos -f source=@cat.png -f caption=cat
  graphctl post 1234 -X DELETE`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.application(cmd)
			if err != nil {
				return err
			}
			f, err := e.filter()
			if err != nil {
				return err
			}

			resp, err := a.Graph(cmd.Context(), args[0], fields.params, strings.ToUpper(method))
			if err != nil {
				return err
			}
			return writeBody(cmd.OutOrStdout(), resp.Body, f)
		},
	}
	cmd.Flags().VarP(fields, "field", "f", "body parameter as key=value or key=@file (repeatable)")
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodPost, "HTTP method")
	return cmd
}

func newRESTCmd(e *env) *cobra.Command {
	fields := newParamsFlag(true)
	var method string

	cmd := &cobra.Command{
		Use:     "rest <method-name>",
		Short:   "Call a legacy REST method by name",
		Example: `  graphctl rest users.getInfo -f uids=4 -f fields=name`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.application(cmd)
			if err != nil {
				return err
			}
			f, err := e.filter()
			if err != nil {
				return err
			}

			resp, err := a.REST(cmd.Context(), args[0], fields.params, strings.ToUpper(method))
			if err != nil {
				return err
			}
			return writeBody(cmd.OutOrStdout(), resp.Body, f)
		},
	}
	cmd.Flags().VarP(fields, "field", "f", "parameter as key=value or key=@file (repeatable)")
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	return cmd
}

func newDialogURLCmd(e *env) *cobra.Command {
	fields := newParamsFlag(false)

	cmd := &cobra.Command{
		Use:     "dialog-url <action>",
		Short:   "Print the URL a dialog would load",
		Example: `  graphctl dialog-url feed -f link=https://example.com`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.application(cmd)
			if err != nil {
				return err
			}
			u, err := a.DialogURL(args[0], fields.params)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write([]byte(u + "\n"))
			return err
		},
	}
	cmd.Flags().VarP(fields, "field", "f", "dialog parameter as key=value (repeatable)")
	return cmd
}
