package notification

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/congo-pay/branch_ledger/internal/logging"
)

func TestLoggerNotifierWritesMessage(t *testing.T) {
	var buf bytes.Buffer
	n := NewLoggerNotifier(logging.NewWithWriter(&buf, "info", "text"))

	err := n.Send(context.Background(), Message{Kind: KindDeposit, Destination: Destination(10, 1001), Body: "credited 5"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"kind=deposit", "destination=10/1001", `body="credited 5"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestNilLoggerNotifierIsNoop(t *testing.T) {
	var n *LoggerNotifier
	if err := n.Send(context.Background(), Message{Kind: KindPromotion}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
