package host

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

// Gas is the computational budget attached to a receipt.
type Gas uint64

// TeraGas is one Tgas.
const TeraGas Gas = 1_000_000_000_000

// Status is the terminal state of a receipt.
type Status uint8

const (
	StatusPending Status = iota
	StatusSuccess
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "pending"
	}
}

// Outcome is what a continuation observes about the call it waited on.
// There are no partial results: either the call returned a payload or it
// failed.
type Outcome struct {
	ReceiptID string
	Status    Status
	Payload   []byte
	Err       error
	// Parked is the value of a failed native transfer, held by the host
	// until the dispatching contract reclaims it.
	Parked *uint256.Int
}

// Succeeded reports whether the outcome carries a payload.
func (o Outcome) Succeeded() bool { return o.Status == StatusSuccess }

// Reason renders the failure cause for log records.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Continuation is the serialised resume point of a contract. Context is
// the RLP encoding of the record passed to Promise.Then.
type Continuation struct {
	ID      string
	Kind    string
	Context []byte
}

// Decode unpacks the continuation context into out.
func (c Continuation) Decode(out interface{}) error {
	if err := rlp.DecodeBytes(c.Context, out); err != nil {
		return fmt.Errorf("host: decode %s continuation: %w", c.Kind, err)
	}
	return nil
}

// Contract is implemented by every account with code. Resume is invoked in
// a fresh turn once the call a continuation waits on has an outcome.
type Contract interface {
	Resume(env *Env, cont Continuation, outcome Outcome) ([]byte, error)
}

// CallFunc is the body of a function-call receipt, executed in the callee's
// turn.
type CallFunc func(env *Env) ([]byte, error)

var (
	ErrUnknownContract = errors.New("host: no contract deployed at account")
	ErrDuplicateTx     = errors.New("host: transaction id already submitted")
	ErrViewMutation    = errors.New("host: view calls cannot dispatch")
	ErrForeignPromise  = errors.New("host: promise belongs to another turn")
	ErrNotParked       = errors.New("host: no parked value for receipt")
	ErrReceiptsPending = errors.New("host: receipts still pending")
)

type surfacedFailure struct {
	err error
}

func (s *surfacedFailure) Error() string { return s.err.Error() }
func (s *surfacedFailure) Unwrap() error { return s.err }

// SurfaceFailure marks err as a failure whose turn must still commit: state
// writes, log records and dispatched calls are kept while the receipt
// reports failure to whoever waits on it.
func SurfaceFailure(err error) error {
	if err == nil {
		return nil
	}
	return &surfacedFailure{err: err}
}

func isSurfaced(err error) (error, bool) {
	var s *surfacedFailure
	if errors.As(err, &s) {
		return s.err, true
	}
	return err, false
}
