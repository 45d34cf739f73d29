package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/ent0n29/surveypulse/internal/aggregate"
	"github.com/ent0n29/surveypulse/internal/protocol"
)

func newResultsCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "results SESSION_ID",
		Short: "Print the aggregated results of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			base := resolveServerURL(cmd)
			if watch {
				return watchResults(cmd, base, args[0])
			}
			var agg aggregate.SessionAggregate
			if err := newAPIClient(base).do(cmd.Context(), http.MethodGet, "/v1/sessions/"+url.PathEscape(args[0])+"/results", nil, &agg); err != nil {
				return err
			}
			return printAggregate(cmd.OutOrStdout(), agg)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Stream updates over the websocket feed until interrupted")
	return cmd
}

// resultsWSURL maps the server base URL onto the websocket results route.
func resultsWSURL(base, sessionID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/sessions/" + url.PathEscape(sessionID) + "/results/ws"
	return u.String(), nil
}

func watchResults(cmd *cobra.Command, base, sessionID string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	wsURL, err := resultsWSURL(base, sessionID)
	if err != nil {
		return err
	}
	conn, res, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if res != nil {
			return &apiError{Status: res.StatusCode}
		}
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	out := cmd.OutOrStdout()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		if err := printFeedMessage(out, raw); err != nil {
			return err
		}
	}
}

var errFeedEvent = errors.New("feed error")

func printFeedMessage(w io.Writer, raw []byte) error {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode feed message: %w", err)
	}
	switch env.Type {
	case protocol.TypeResultsSnapshot, protocol.TypeResultsUpdate:
		var msg protocol.Results
		if err := json.Unmarshal(raw, &msg); err != nil {
			return fmt.Errorf("decode results: %w", err)
		}
		fmt.Fprintf(w, "# %s seq=%d mode=%s\n", msg.Type, msg.Seq, msg.Mode)
		return printAggregate(w, msg.Results)
	case protocol.TypeSystemEvent:
		var msg protocol.SystemEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return err
		}
		fmt.Fprintf(w, "# %s\n", msg.Code)
	case protocol.TypeErrorEvent:
		var msg protocol.ErrorEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return err
		}
		if !msg.Retryable {
			return fmt.Errorf("%w: %s: %s", errFeedEvent, msg.Code, msg.Detail)
		}
		fmt.Fprintf(w, "# error %s: %s\n", msg.Code, msg.Detail)
	}
	return nil
}

func printAggregate(w io.Writer, agg aggregate.SessionAggregate) error {
	fmt.Fprintf(w, "session %s  responses=%d  participants=%d  positive=%d%%\n",
		agg.SessionID, agg.TotalResponses, agg.Participants, agg.PositiveScore)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, q := range agg.Questions {
		fmt.Fprintf(tw, "%d\t%s\t(n=%d)\n", q.QuestionID, q.Text, q.Total)
		for _, c := range q.Counts {
			fmt.Fprintf(tw, "\t  %s\t%d\t%d%%\n", c.Label, c.Count, c.Percent)
		}
	}
	return tw.Flush()
}
