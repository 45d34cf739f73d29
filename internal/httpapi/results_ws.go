package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/surveypulse/internal/aggregate"
	"github.com/ent0n29/surveypulse/internal/protocol"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleResultsWS streams a session's results: one results_snapshot, then a
// results_update whenever the aggregate changes. Updates a slow client could
// not take are skipped in favour of the newest one.
func (s *Server) handleResultsWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, err := s.survey.GetSession(r.Context(), sessionID); err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.metrics.ObserveSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub, err := s.survey.OpenFeed(ctx, sessionID)
	if err != nil {
		_, code := errorStatus(err)
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		_ = conn.WriteJSON(protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Code:      code,
			Source:    "results_feed",
			Retryable: true,
			Detail:    err.Error(),
		})
		return
	}
	defer sub.Close()

	replies := make(chan any, 8)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer func() {
			// Unblock the read loop.
			_ = conn.SetReadDeadline(time.Now())
		}()
		s.writeResults(ctx, conn, sub.Mode, sub.Initial, sub.Updates(), replies)
	}()

	conn.SetReadLimit(4 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.queueReply(replies, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}

		control := parsed.(protocol.ClientControl)
		s.metrics.ObserveWSMessage("inbound", string(control.Type))
		switch control.Action {
		case protocol.ActionClose:
			break readLoop
		case protocol.ActionPing:
			s.queueReply(replies, protocol.SystemEvent{
				Type:      protocol.TypeSystemEvent,
				SessionID: sessionID,
				Code:      "pong",
			})
		}
	}

	cancel()
	<-writerDone
	s.metrics.ObserveSessionEvent("ws_disconnected")
}

// writeResults is the only writer of data frames on conn.
func (s *Server) writeResults(ctx context.Context, conn *websocket.Conn, mode string, initial aggregate.SessionAggregate, updates <-chan aggregate.SessionAggregate, replies <-chan any) {
	write := func(msg any, typ protocol.MessageType) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			s.metrics.ObserveWSMessage("outbound_error", string(typ))
			return false
		}
		s.metrics.ObserveWSMessage("outbound", string(typ))
		return true
	}

	seq := 0
	if !write(protocol.NewResults(protocol.TypeResultsSnapshot, mode, seq, initial), protocol.TypeResultsSnapshot) {
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case agg, ok := <-updates:
			if !ok {
				if ctx.Err() == nil {
					write(protocol.SystemEvent{
						Type:      protocol.TypeSystemEvent,
						SessionID: initial.SessionID,
						Code:      "feed_closed",
					}, protocol.TypeSystemEvent)
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "feed closed"),
						time.Now().Add(wsWriteTimeout))
				}
				return
			}
			seq++
			if !write(protocol.NewResults(protocol.TypeResultsUpdate, mode, seq, agg), protocol.TypeResultsUpdate) {
				return
			}
		case msg := <-replies:
			if !write(msg, messageTypeOf(msg)) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}

// queueReply hands msg to the writer, dropping it if the writer is saturated.
func (s *Server) queueReply(replies chan<- any, msg any) {
	select {
	case replies <- msg:
	default:
		s.metrics.ObserveWSMessage("outbound_dropped", string(messageTypeOf(msg)))
	}
}

func messageTypeOf(v any) protocol.MessageType {
	switch m := v.(type) {
	case protocol.Results:
		return m.Type
	case protocol.SystemEvent:
		return m.Type
	case protocol.ErrorEvent:
		return m.Type
	case protocol.ClientControl:
		return m.Type
	default:
		return "unknown"
	}
}
