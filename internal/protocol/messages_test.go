package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ent0n29/surveypulse/internal/aggregate"
)

func TestParseClientMessageControl(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"client_control","action":"ping"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	control, ok := msg.(ClientControl)
	if !ok {
		t.Fatalf("message type = %T, want ClientControl", msg)
	}
	if control.Action != ActionPing {
		t.Fatalf("Action = %q, want %q", control.Action, ActionPing)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsUnknownAction(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":"client_control","action":"submit"}`)); err == nil {
		t.Fatal("expected error for unknown action")
	}
	if _, err := ParseClientMessage([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid envelope")
	}
}

func TestResultsEncoding(t *testing.T) {
	agg := aggregate.SessionAggregate{
		SessionID:        "s1",
		ChoiceSetVersion: 1,
		TotalResponses:   4,
		Questions: []aggregate.QuestionTally{{
			QuestionID: 1,
			Total:      4,
			Counts:     []aggregate.ChoiceCount{{Choice: "QUASE_SEMPRE", Count: 3, Percent: 75}},
		}},
	}
	raw, err := json.Marshal(NewResults(TypeResultsUpdate, "push", 3, agg))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(raw)
	for _, want := range []string{`"type":"results_update"`, `"session_id":"s1"`, `"seq":3`, `"percent":75`, `"total_responses":4`} {
		if !strings.Contains(s, want) {
			t.Fatalf("encoded message %s missing %s", s, want)
		}
	}
}
