package events

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/holiman/uint256"
)

func TestLogEmitterWritesRecord(t *testing.T) {
	var buf bytes.Buffer
	emitter := LogEmitter{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	evt := SettlementRejected{Operation: "swap_in", TxID: "tx9", Token: "anyusd", Amount: uint256.NewInt(7), Reason: "bridge: already processed"}
	emitter.Emit(Log{TxID: "h1", ReceiptID: "root-h1", Contract: "router", Record: Flatten(evt)})

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if line["msg"] != TypeSettlementRejected {
		t.Fatalf("unexpected message %v", line["msg"])
	}
	if line["level"] != "WARN" {
		t.Fatalf("rejections log at warn, got %v", line["level"])
	}
	attrs, ok := line["attributes"].(map[string]any)
	if !ok {
		t.Fatalf("attributes group missing: %v", line)
	}
	if attrs["txId"] != "tx9" || attrs["amount"] != "7" || attrs["state"] != StateRejected {
		t.Fatalf("unexpected attributes %v", attrs)
	}
}
