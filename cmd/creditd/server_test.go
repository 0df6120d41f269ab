package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"creditline/core/types"
	"creditline/observability/logging"
)

type testEventCarrier struct {
	evt *types.Event
}

func (c testEventCarrier) EventType() string   { return c.evt.Type }
func (c testEventCarrier) Event() *types.Event { return c.evt }

func TestLogEmitterMasksPayerAddress(t *testing.T) {
	var buf bytes.Buffer
	emitter := newLogEmitter(slog.New(slog.NewTextHandler(&buf, nil)))

	const payer = "aabbccddeeff00112233445566778899aabbccdd"
	const hash = "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	emitter.Emit(testEventCarrier{evt: &types.Event{
		Type: "credit.payment_made",
		Attributes: map[string]string{
			"creditHash": hash,
			"payer":      payer,
			"applied":    "400",
		},
	}})

	line := buf.String()
	if strings.Contains(line, payer) {
		t.Fatalf("payer address leaked into the log: %s", line)
	}
	if !strings.Contains(line, logging.RedactedValue) {
		t.Fatalf("payer must be redacted: %s", line)
	}
	if !strings.Contains(line, hash) {
		t.Fatalf("credit hash is allowlisted and must survive: %s", line)
	}
	if !strings.Contains(line, "applied=400") {
		t.Fatalf("billing figures must survive redaction: %s", line)
	}
}
