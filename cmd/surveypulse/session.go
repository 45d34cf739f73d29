package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ent0n29/surveypulse/internal/answers"
	"github.com/ent0n29/surveypulse/internal/session"
	"github.com/ent0n29/surveypulse/internal/survey"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage survey sessions on a running server",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "create NAME",
			Short: "Create a session",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var s session.Session
				req := session.CreateRequest{Name: strings.Join(args, " ")}
				if err := newAPIClient(resolveServerURL(cmd)).do(cmd.Context(), http.MethodPost, "/v1/sessions", req, &s); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List sessions, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				var body struct {
					Sessions []session.Session `json:"sessions"`
				}
				if err := newAPIClient(resolveServerURL(cmd)).do(cmd.Context(), http.MethodGet, "/v1/sessions", nil, &body); err != nil {
					return err
				}
				return printSessions(cmd.OutOrStdout(), body.Sessions)
			},
		},
		&cobra.Command{
			Use:   "get ID",
			Short: "Show one session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var s session.Session
				if err := newAPIClient(resolveServerURL(cmd)).do(cmd.Context(), http.MethodGet, "/v1/sessions/"+url.PathEscape(args[0]), nil, &s); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			},
		},
		&cobra.Command{
			Use:   "finish ID",
			Short: "Mark a session finished",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var s session.Session
				if err := newAPIClient(resolveServerURL(cmd)).do(cmd.Context(), http.MethodPost, "/v1/sessions/"+url.PathEscape(args[0])+"/finish", nil, &s); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), s)
			},
		},
	)
	return cmd
}

func newSubmitCmd() *cobra.Command {
	var req survey.SubmitRequest
	cmd := &cobra.Command{
		Use:   "submit SESSION_ID",
		Short: "Submit one answer to a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var a answers.Answer
			path := "/v1/sessions/" + url.PathEscape(args[0]) + "/answers"
			if err := newAPIClient(resolveServerURL(cmd)).do(cmd.Context(), http.MethodPost, path, req, &a); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), a)
		},
	}
	cmd.Flags().IntVarP(&req.QuestionID, "question", "q", 0, "Question id")
	cmd.Flags().StringVarP(&req.Choice, "choice", "c", "", "Choice key, e.g. QUASE_SEMPRE")
	cmd.Flags().StringVar(&req.RespondentID, "respondent", "", "Optional respondent token")
	_ = cmd.MarkFlagRequired("question")
	_ = cmd.MarkFlagRequired("choice")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSessions(w io.Writer, sessions []session.Session) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tCREATED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Status, s.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
