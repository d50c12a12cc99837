package replay

import (
	"errors"
	"testing"

	bridgeerrors "mpcbridge/core/errors"
	"mpcbridge/core/state"
	"mpcbridge/storage"
)

func newTestGuard() *Guard {
	return New(state.NewStore(state.NewTx(storage.NewMemDB()), "router"), "txs")
}

func TestMarkProcessedIsPermanent(t *testing.T) {
	g := newTestGuard()
	seen, err := g.HasProcessed("tx1")
	if err != nil || seen {
		t.Fatalf("fresh guard reports tx1: seen=%v err=%v", seen, err)
	}
	if err := g.MarkProcessed("tx1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := g.MarkProcessed("tx1"); !errors.Is(err, bridgeerrors.ErrAlreadyProcessed) {
		t.Fatalf("expected already processed, got %v", err)
	}
	if err := g.MarkProcessed("tx2"); err != nil {
		t.Fatalf("mark tx2: %v", err)
	}
	all, err := g.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(all) != 2 || all[0] != "tx1" || all[1] != "tx2" {
		t.Fatalf("unexpected ids %v", all)
	}
}

func TestReserveBlocksConcurrentAttempts(t *testing.T) {
	g := newTestGuard()
	if err := g.Reserve("tx1"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := g.Reserve("tx1"); !errors.Is(err, bridgeerrors.ErrSettlementInFlight) {
		t.Fatalf("expected in flight, got %v", err)
	}
	if err := g.Release("tx1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if busy, _ := g.InFlight("tx1"); busy {
		t.Fatalf("release did not clear reservation")
	}
	if err := g.Reserve("tx1"); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}
	if err := g.MarkProcessed("tx1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if busy, _ := g.InFlight("tx1"); busy {
		t.Fatalf("marking should clear the reservation")
	}
	if err := g.Reserve("tx1"); !errors.Is(err, bridgeerrors.ErrAlreadyProcessed) {
		t.Fatalf("expected already processed, got %v", err)
	}
}

func TestEmptyIDIsMalformed(t *testing.T) {
	g := newTestGuard()
	if err := g.MarkProcessed("  "); !errors.Is(err, bridgeerrors.ErrMalformedInstruction) {
		t.Fatalf("expected malformed instruction, got %v", err)
	}
}

func TestClearReservedDropsStaleReservations(t *testing.T) {
	g := newTestGuard()
	for _, id := range []string{"tx1", "tx2", "tx3"} {
		if err := g.Reserve(id); err != nil {
			t.Fatalf("reserve %s: %v", id, err)
		}
	}
	if err := g.MarkProcessed("tx2"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := g.Release("tx3"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := g.Reserve("tx4"); err != nil {
		t.Fatalf("reserve tx4: %v", err)
	}
	cleared, err := g.ClearReserved()
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if len(cleared) != 2 || cleared[0] != "tx1" || cleared[1] != "tx4" {
		t.Fatalf("unexpected cleared ids %v", cleared)
	}
	for _, id := range cleared {
		if busy, _ := g.InFlight(id); busy {
			t.Fatalf("%s still reserved", id)
		}
		if err := g.Reserve(id); err != nil {
			t.Fatalf("reserve %s after clear: %v", id, err)
		}
	}
	if err := g.Reserve("tx2"); !errors.Is(err, bridgeerrors.ErrAlreadyProcessed) {
		t.Fatalf("processed id must stay spent, got %v", err)
	}
}
