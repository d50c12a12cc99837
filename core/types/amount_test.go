package types

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	bridgeerrors "mpcbridge/core/errors"
)

func TestValidateAmount(t *testing.T) {
	if err := ValidateAmount(nil); !errors.Is(err, bridgeerrors.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for nil, got %v", err)
	}
	if err := ValidateAmount(new(uint256.Int)); !errors.Is(err, bridgeerrors.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for zero, got %v", err)
	}
	if err := ValidateAmount(MaxAmount); err != nil {
		t.Fatalf("max amount rejected: %v", err)
	}
	over := new(uint256.Int).AddUint64(MaxAmount, 1)
	if err := ValidateAmount(over); !errors.Is(err, bridgeerrors.ErrInvalidAmount) {
		t.Fatalf("expected overflow rejection, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount(" 100 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if amount.Uint64() != 100 {
		t.Fatalf("unexpected amount %s", amount.Dec())
	}
	if _, err := ParseAmount("-1"); !errors.Is(err, bridgeerrors.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount for negative input, got %v", err)
	}
	if _, err := ParseAmount("340282366920938463463374607431768211456"); !errors.Is(err, bridgeerrors.ErrInvalidAmount) {
		t.Fatalf("expected rejection above 2^128-1, got %v", err)
	}
	if got := AmountString(nil); got != "0" {
		t.Fatalf("unexpected nil rendering %q", got)
	}
}

func TestAmountPayloadRoundTrip(t *testing.T) {
	amount, err := DecodeAmount(EncodeAmount(uint256.NewInt(77)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if amount.Uint64() != 77 {
		t.Fatalf("unexpected amount %s", amount.Dec())
	}
	if _, err := DecodeAmount([]byte{0xff, 0x01}); !errors.Is(err, bridgeerrors.ErrMalformedInstruction) {
		t.Fatalf("expected malformed payload error, got %v", err)
	}
}

func TestEventAccessors(t *testing.T) {
	evt := Event{Type: "bridge.swap_in", Attributes: map[string]string{"state": "Committed"}}
	if evt.Attr("state") != "Committed" || evt.Attr("missing") != "" {
		t.Fatalf("unexpected attributes %v", evt.Attributes)
	}
	if evt.Namespace() != "bridge" {
		t.Fatalf("unexpected namespace %q", evt.Namespace())
	}
	if (Event{Type: "plain"}).Namespace() != "plain" || (Event{}).Attr("x") != "" {
		t.Fatalf("zero values mishandled")
	}
}
