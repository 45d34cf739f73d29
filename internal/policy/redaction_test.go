package policy

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestRedactPII(t *testing.T) {
	input := "Email me at sam@example.com or +1 (555) 123-9876 and use 4242 4242 4242 4242."
	out, changed := RedactPII(input)
	if !changed {
		t.Fatalf("changed = false, want true")
	}
	for _, marker := range []string{"[REDACTED_EMAIL]", "[REDACTED_PHONE]", "[REDACTED_CARD]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("output missing marker %q: %q", marker, out)
		}
	}
}

func TestRedactPIILeavesSessionNamesAlone(t *testing.T) {
	for _, in := range []string{"Turma 3B", "Reunião de pais", "r-7f3a"} {
		out, changed := RedactPII(in)
		if changed || out != in {
			t.Fatalf("RedactPII(%q) = %q, %v", in, out, changed)
		}
	}
}

func TestRedactedLogValue(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	log.Info("session created", "name", Redacted("Turma de ana@escola.pt"))

	if strings.Contains(buf.String(), "ana@escola.pt") {
		t.Fatalf("email leaked into log: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "[REDACTED_EMAIL]") {
		t.Fatalf("log missing marker: %s", buf.String())
	}
}
