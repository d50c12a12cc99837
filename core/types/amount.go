package types

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	bridgeerrors "mpcbridge/core/errors"
)

// MaxAmount is the largest value a ledger amount may hold (2^128-1).
var MaxAmount = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

// ValidateAmount rejects nil, zero and out-of-range amounts.
func ValidateAmount(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("%w: amount must be positive", bridgeerrors.ErrInvalidAmount)
	}
	if amount.Gt(MaxAmount) {
		return fmt.Errorf("%w: amount exceeds 128 bits", bridgeerrors.ErrInvalidAmount)
	}
	return nil
}

// ParseAmount decodes a base-10 amount string. Zero is accepted; callers
// moving value should follow up with ValidateAmount.
func ParseAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: amount required", bridgeerrors.ErrInvalidAmount)
	}
	amount, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bridgeerrors.ErrInvalidAmount, err)
	}
	if amount.Gt(MaxAmount) {
		return nil, fmt.Errorf("%w: amount exceeds 128 bits", bridgeerrors.ErrInvalidAmount)
	}
	return amount, nil
}

// CloneAmount returns a copy of amount, treating nil as zero.
func CloneAmount(amount *uint256.Int) *uint256.Int {
	if amount == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(amount)
}

// AmountString renders amount in base 10, treating nil as zero.
func AmountString(amount *uint256.Int) string {
	if amount == nil {
		return "0"
	}
	return amount.Dec()
}

// EncodeAmount renders amount as a call payload.
func EncodeAmount(amount *uint256.Int) []byte {
	encoded, err := rlp.EncodeToBytes(CloneAmount(amount))
	if err != nil {
		panic(fmt.Sprintf("types: encode amount: %v", err))
	}
	return encoded
}

// DecodeAmount parses a payload produced by EncodeAmount.
func DecodeAmount(payload []byte) (*uint256.Int, error) {
	amount := new(uint256.Int)
	if err := rlp.DecodeBytes(payload, amount); err != nil {
		return nil, fmt.Errorf("%w: amount payload: %v", bridgeerrors.ErrMalformedInstruction, err)
	}
	return amount, nil
}
