package notify

import (
	"strings"
	"testing"

	"fintank/internal/ocean"
)

func TestMessageFormatting(t *testing.T) {
	a := &Announcer{}

	msg := a.message(pendingEvent{kind: ocean.EventHunted, detail: "Bubbles", amount: 1_500_000_000})
	if !strings.Contains(msg, "Bubbles") || !strings.Contains(msg, "1.5") {
		t.Fatalf("hunt message=%q", msg)
	}
	if msg := a.message(pendingEvent{kind: ocean.EventStorm}); msg == "" {
		t.Fatalf("storm should be announced")
	}
	// Routine events stay out of the channel.
	if msg := a.message(pendingEvent{kind: ocean.EventFed}); msg != "" {
		t.Fatalf("feed should not be announced, got %q", msg)
	}
}
