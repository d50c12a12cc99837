package host

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	bridgeerrors "mpcbridge/core/errors"
	"mpcbridge/core/events"
	"mpcbridge/core/state"
)

// Env is the execution context of a single turn. It is only valid until the
// turn returns.
type Env struct {
	host    *Host
	tx      *state.Tx
	native  ledger
	receipt *receipt
	view    bool

	gasLeft  Gas
	logs     []events.Event
	rejects  []events.Event
	spawned  []*receipt
	returned string
}

// TxID identifies the top-level submission this turn belongs to.
func (e *Env) TxID() string { return e.receipt.txID }

// ReceiptID identifies this turn.
func (e *Env) ReceiptID() string { return e.receipt.id }

// Current is the account whose code is executing.
func (e *Env) Current() string { return e.receipt.target }

// Predecessor is the account that dispatched this receipt. For
// continuations it equals Current.
func (e *Env) Predecessor() string { return e.receipt.predecessor }

// Signer is the account that signed the top-level submission.
func (e *Env) Signer() string { return e.receipt.signer }

// Deposit returns a copy of the native value attached to this receipt.
func (e *Env) Deposit() *uint256.Int {
	if e.receipt.deposit == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(e.receipt.deposit)
}

// PrepaidGas is the budget this receipt was dispatched with.
func (e *Env) PrepaidGas() Gas { return e.receipt.gas }

// GasLeft is the budget not yet reserved for dispatched calls.
func (e *Env) GasLeft() Gas { return e.gasLeft }

// Store returns the current contract's key/value namespace.
func (e *Env) Store() *state.Store { return state.NewStore(e.tx, e.receipt.target) }

// Log buffers a record that is emitted once the turn commits.
func (e *Env) Log(evt events.Event) { e.logs = append(e.logs, evt) }

// Reject buffers a record that is emitted whether or not the turn commits.
func (e *Env) Reject(evt events.Event) { e.rejects = append(e.rejects, evt) }

// Lookup resolves the contract deployed at account.
func (e *Env) Lookup(account string) (Contract, bool) { return e.host.lookup(account) }

// AccountExists reports whether account is known to the host.
func (e *Env) AccountExists(account string) (bool, error) { return e.native.exists(account) }

// NativeBalance returns the native balance of account as seen by this turn.
func (e *Env) NativeBalance(account string) (*uint256.Int, error) { return e.native.balance(account) }

// UseGas charges work done by the current turn against the unreserved
// budget.
func (e *Env) UseGas(gas Gas) error {
	if gas > e.gasLeft {
		return fmt.Errorf("%w: need %d, have %d", bridgeerrors.ErrGasExhausted, gas, e.gasLeft)
	}
	e.gasLeft -= gas
	return nil
}

func (e *Env) spawn(r *receipt) error {
	if e.view {
		return ErrViewMutation
	}
	seq, err := e.native.nextID()
	if err != nil {
		return err
	}
	r.id = fmt.Sprintf("r%d", seq)
	r.txID = e.receipt.txID
	r.signer = e.receipt.signer
	r.predecessor = e.receipt.target
	if r.kind != kindCallback && r.deposit != nil && !r.deposit.IsZero() {
		if err := e.native.hold(r.id, r.predecessor, r.deposit); err != nil {
			return err
		}
	}
	e.spawned = append(e.spawned, r)
	return nil
}

// Call dispatches fn as a function call on target with gas reserved from
// this turn and deposit debited from the current account. The callee runs
// in a later turn.
func (e *Env) Call(target, method string, gas Gas, deposit *uint256.Int, fn CallFunc) (*Promise, error) {
	if fn == nil {
		return nil, fmt.Errorf("host: call %s.%s without body", target, method)
	}
	if err := e.UseGas(gas); err != nil {
		return nil, fmt.Errorf("dispatch %s.%s: %w", target, method, err)
	}
	if deposit != nil && !deposit.IsZero() {
		if err := e.native.debit(e.receipt.target, deposit); err != nil {
			return nil, err
		}
		deposit = new(uint256.Int).Set(deposit)
	}
	r := &receipt{kind: kindCall, target: target, method: method, gas: gas, deposit: deposit, fn: fn}
	if err := e.spawn(r); err != nil {
		return nil, err
	}
	return &Promise{env: e, id: r.id}, nil
}

// Transfer dispatches a native value transfer from the current account. The
// value leaves the current balance immediately. If the receiver does not
// exist the value is parked and can be reclaimed by a continuation.
func (e *Env) Transfer(to string, amount *uint256.Int) (*Promise, error) {
	if amount == nil || amount.IsZero() {
		return nil, fmt.Errorf("%w: transfer amount must be positive", bridgeerrors.ErrInvalidAmount)
	}
	if err := e.native.debit(e.receipt.target, amount); err != nil {
		return nil, err
	}
	r := &receipt{kind: kindTransfer, target: to, method: "transfer", deposit: new(uint256.Int).Set(amount)}
	if err := e.spawn(r); err != nil {
		return nil, err
	}
	return &Promise{env: e, id: r.id}, nil
}

// ReclaimTransfer credits the current account with the value parked by a
// failed transfer it dispatched.
func (e *Env) ReclaimTransfer(outcome Outcome) (*uint256.Int, error) {
	p, err := e.native.parked(outcome.ReceiptID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w %s", ErrNotParked, outcome.ReceiptID)
	}
	if p.Owner != e.receipt.target {
		return nil, fmt.Errorf("%w: parked value of %s belongs to %s", bridgeerrors.ErrUnauthorized, outcome.ReceiptID, p.Owner)
	}
	if err := e.native.unpark(outcome.ReceiptID); err != nil {
		return nil, err
	}
	if err := e.native.credit(e.receipt.target, p.Amount); err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(p.Amount), nil
}

// Return makes the outcome of p the outcome of the current receipt, so
// whoever waits on this turn observes the end of the returned chain.
func (e *Env) Return(p *Promise) error {
	if p == nil || p.env != e {
		return ErrForeignPromise
	}
	e.returned = p.id
	return nil
}

// Promise is a handle on a receipt dispatched in the current turn.
type Promise struct {
	env *Env
	id  string
}

// ID is the receipt id the promise resolves with.
func (p *Promise) ID() string { return p.id }

// Then attaches a continuation on the current contract that resumes with the
// promise's outcome. ctx is RLP encoded and handed back verbatim.
func (p *Promise) Then(gas Gas, kind string, ctx interface{}) (*Promise, error) {
	e := p.env
	encoded, err := rlp.EncodeToBytes(ctx)
	if err != nil {
		return nil, fmt.Errorf("host: encode %s continuation: %w", kind, err)
	}
	if err := e.UseGas(gas); err != nil {
		return nil, fmt.Errorf("attach %s continuation: %w", kind, err)
	}
	r := &receipt{kind: kindCallback, target: e.receipt.target, method: kind, gas: gas, input: p.id}
	if err := e.spawn(r); err != nil {
		return nil, err
	}
	r.cont = Continuation{ID: r.id, Kind: kind, Context: encoded}
	// Continuations run as their own contract.
	r.predecessor = e.receipt.target
	return &Promise{env: e, id: r.id}, nil
}
