package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	bridgeerrors "mpcbridge/core/errors"
	"mpcbridge/core/events"
	"mpcbridge/core/state"
	"mpcbridge/storage"
)

// rootPrefix marks the receipt of a top-level submission.
const rootPrefix = "root-"

type receiptKind uint8

const (
	kindCall receiptKind = iota
	kindTransfer
	kindCallback
)

func (k receiptKind) String() string {
	switch k {
	case kindTransfer:
		return "transfer"
	case kindCallback:
		return "callback"
	default:
		return "call"
	}
}

type receipt struct {
	id          string
	txID        string
	signer      string
	predecessor string
	target      string
	method      string
	kind        receiptKind
	gas         Gas
	deposit     *uint256.Int
	topLevel    bool

	fn    CallFunc
	cont  Continuation
	input string
	// outcome of input, filled when the continuation becomes ready.
	inputOutcome Outcome
}

// Observer receives per-receipt telemetry.
type Observer interface {
	ObserveReceipt(target, method, kind string, status Status)
	SetPending(n int)
}

type noopObserver struct{}

func (noopObserver) ObserveReceipt(string, string, string, Status) {}
func (noopObserver) SetPending(int)                                {}

// Call is a top-level submission signed by Signer.
type Call struct {
	TxID    string
	Signer  string
	Target  string
	Method  string
	Deposit *uint256.Int
	Gas     Gas
	Fn      CallFunc
}

// Receipt reports the first turn of a submission. When Pending is set the
// final outcome depends on dispatched calls; poll Result after they ran.
type Receipt struct {
	TxID      string
	ReceiptID string
	Outcome   Outcome
	Pending   bool
}

// PendingCall describes a dispatched receipt that has not run yet.
type PendingCall struct {
	ReceiptID string
	TxID      string
	Target    string
	Method    string
	Kind      string
	WaitingOn string
}

// Host executes receipts one turn at a time. Every turn runs to completion
// against its own state overlay; dispatched calls and continuations are
// queued and run in later turns.
//
// The receipt queue lives in memory. Contract state, native balances and
// parked value are durable; calls still queued when the process stops are
// lost and their continuations never run. Value those calls carried is held
// durably and handed back by Recover.
type Host struct {
	mu sync.Mutex

	db        storage.Database
	emitter   events.Emitter
	logger    *slog.Logger
	observer  Observer
	contracts map[string]Contract

	queue    []*receipt
	waiting  map[string][]*receipt
	adopters map[string][]string
	roots    map[string]string
	results  map[string]Outcome

	wake chan struct{}
}

// Option customises a Host.
type Option func(*Host)

// WithEmitter routes finalised log records to emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(h *Host) {
		if emitter != nil {
			h.emitter = emitter
		}
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithObserver installs a telemetry observer.
func WithObserver(observer Observer) Option {
	return func(h *Host) {
		if observer != nil {
			h.observer = observer
		}
	}
}

// New constructs a host on db.
func New(db storage.Database, opts ...Option) *Host {
	h := &Host{
		db:        db,
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
		observer:  noopObserver{},
		contracts: make(map[string]Contract),
		waiting:   make(map[string][]*receipt),
		adopters:  make(map[string][]string),
		roots:     make(map[string]string),
		results:   make(map[string]Outcome),
		wake:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Host) lookup(account string) (Contract, bool) {
	c, ok := h.contracts[account]
	return c, ok
}

// Lookup resolves the contract deployed at account.
func (h *Host) Lookup(account string) (Contract, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lookup(account)
}

func (h *Host) mutate(fn func(l ledger) error) error {
	tx := state.NewTx(h.db)
	if err := fn(newLedger(tx)); err != nil {
		tx.Discard()
		return err
	}
	return tx.Commit()
}

// CreateAccount records account as existing. Creating an existing account is
// a no-op.
func (h *Host) CreateAccount(account string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mutate(func(l ledger) error { return l.create(account) })
}

// Register deploys contract code at account, creating the account if
// needed. Code is not persisted and must be registered on every start.
func (h *Host) Register(account string, contract Contract) error {
	if contract == nil {
		return fmt.Errorf("host: nil contract for %s", account)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.mutate(func(l ledger) error { return l.create(account) }); err != nil {
		return err
	}
	h.contracts[account] = contract
	return nil
}

// Fund mints native value into account, creating it if needed.
func (h *Host) Fund(account string, amount *uint256.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mutate(func(l ledger) error {
		if err := l.create(account); err != nil {
			return err
		}
		return l.credit(account, amount)
	})
}

// AccountExists reports whether account is known.
func (h *Host) AccountExists(account string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return newLedger(state.NewTx(h.db)).exists(account)
}

// NativeBalance returns the committed native balance of account.
func (h *Host) NativeBalance(account string) (*uint256.Int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return newLedger(state.NewTx(h.db)).balance(account)
}

// InTransit sums native value parked by failed transfers.
func (h *Host) InTransit() (*uint256.Int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return newLedger(state.NewTx(h.db)).inTransit()
}

// View runs fn read-only as account. Writes are discarded and dispatch is
// refused.
func (h *Host) View(account string, fn CallFunc) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	tx := state.NewTx(h.db)
	defer tx.Discard()
	env := &Env{
		host:    h,
		tx:      tx,
		native:  newLedger(tx),
		view:    true,
		gasLeft: ^Gas(0),
		receipt: &receipt{id: "view", target: account, predecessor: account, signer: account},
	}
	return fn(env)
}

// Submit runs the first turn of call synchronously. Host-level problems
// (unknown signer or target) are returned as errors; contract failures are
// reported in the receipt outcome.
func (h *Host) Submit(ctx context.Context, call Call) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if call.Fn == nil {
		return Receipt{}, fmt.Errorf("host: submission to %s without body", call.Target)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.contracts[call.Target]; !ok {
		return Receipt{}, fmt.Errorf("%w: %s", ErrUnknownContract, call.Target)
	}
	ok, err := newLedger(state.NewTx(h.db)).exists(call.Signer)
	if err != nil {
		return Receipt{}, err
	}
	if !ok {
		return Receipt{}, fmt.Errorf("%w: signer %s", bridgeerrors.ErrUnknownAccount, call.Signer)
	}
	txID := call.TxID
	if txID == "" {
		txID = uuid.NewString()
	}
	if _, dup := h.roots[txID]; dup {
		return Receipt{}, fmt.Errorf("%w: %s", ErrDuplicateTx, txID)
	}
	r := &receipt{
		id:          rootPrefix + txID,
		txID:        txID,
		signer:      call.Signer,
		predecessor: call.Signer,
		target:      call.Target,
		method:      call.Method,
		kind:        kindCall,
		gas:         call.Gas,
		deposit:     call.Deposit,
		topLevel:    true,
		fn:          call.Fn,
	}
	h.roots[txID] = r.id
	h.execute(r)
	h.signal()

	outcome, done := h.results[txID]
	return Receipt{TxID: txID, ReceiptID: r.id, Outcome: outcome, Pending: !done}, nil
}

// Result returns the final outcome of a submission once its receipt chain
// has resolved.
func (h *Host) Result(txID string) (Outcome, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	outcome, ok := h.results[txID]
	return outcome, ok
}

// Pending lists queued receipts and continuations waiting on an outcome.
func (h *Host) Pending() []PendingCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pendingLocked()
}

func (h *Host) pendingLocked() []PendingCall {
	out := make([]PendingCall, 0, len(h.queue))
	describe := func(r *receipt) PendingCall {
		return PendingCall{ReceiptID: r.id, TxID: r.txID, Target: r.target, Method: r.method, Kind: r.kind.String(), WaitingOn: r.input}
	}
	for _, r := range h.queue {
		out = append(out, describe(r))
	}
	for _, list := range h.waiting {
		for _, r := range list {
			out = append(out, describe(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceiptID < out[j].ReceiptID })
	return out
}

// Drain runs queued receipts until none are left.
func (h *Host) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		h.mu.Lock()
		if len(h.queue) == 0 {
			h.mu.Unlock()
			return nil
		}
		next := h.queue[0]
		h.queue = h.queue[1:]
		h.execute(next)
		h.mu.Unlock()
	}
}

// Run drains the queue whenever new work is submitted until ctx is done.
func (h *Host) Run(ctx context.Context) error {
	for {
		if err := h.Drain(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.wake:
		}
	}
}

func (h *Host) signal() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Host) execute(r *receipt) {
	tx := state.NewTx(h.db)
	env := &Env{host: h, tx: tx, native: newLedger(tx), receipt: r, gasLeft: r.gas}

	payload, err := h.run(env)
	inner, surfaced := isSurfaced(err)
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}

	if err == nil || surfaced {
		if commitErr := tx.Commit(); commitErr != nil {
			h.logger.Error("host: commit turn", "receipt", r.id, "target", r.target, "error", commitErr)
			inner, surfaced, status = commitErr, false, StatusFailure
			env.logs, env.spawned, env.returned = nil, nil, ""
			h.abort(r, commitErr)
		}
	} else {
		tx.Discard()
		h.abort(r, err)
	}

	h.emit(r, env.rejects)
	if status == StatusSuccess || surfaced {
		h.emit(r, env.logs)
		for _, spawned := range env.spawned {
			if spawned.kind == kindCallback {
				h.waiting[spawned.input] = append(h.waiting[spawned.input], spawned)
				continue
			}
			h.queue = append(h.queue, spawned)
		}
	}
	h.observer.ObserveReceipt(r.target, r.method, r.kind.String(), status)

	switch {
	case status == StatusSuccess && env.returned != "":
		h.adopt(r.id, env.returned)
	case status == StatusSuccess:
		h.resolve(r.id, Outcome{ReceiptID: r.id, Status: StatusSuccess, Payload: payload})
	default:
		outcome := Outcome{ReceiptID: r.id, Status: StatusFailure, Err: inner}
		if r.kind == kindTransfer && !surfaced {
			outcome.Parked = r.deposit
		}
		h.resolve(r.id, outcome)
	}
	h.observer.SetPending(len(h.queue) + h.waitingCount())
}

func (h *Host) run(env *Env) (payload []byte, err error) {
	r := env.receipt
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("host: %s.%s panicked: %v", r.target, r.method, rec)
		}
	}()
	if !r.topLevel && r.kind != kindCallback && r.deposit != nil && !r.deposit.IsZero() {
		if err := env.native.unhold(r.id); err != nil {
			return nil, err
		}
	}
	switch r.kind {
	case kindTransfer:
		ok, err := env.native.exists(r.target)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", bridgeerrors.ErrUnknownAccount, r.target)
		}
		return nil, env.native.credit(r.target, r.deposit)
	case kindCallback:
		contract, ok := h.contracts[r.target]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownContract, r.target)
		}
		return contract.Resume(env, r.cont, r.inputOutcome)
	default:
		if _, ok := h.contracts[r.target]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownContract, r.target)
		}
		if r.topLevel {
			if err := env.native.debit(r.signer, r.deposit); err != nil {
				return nil, err
			}
		}
		if err := env.native.credit(r.target, r.deposit); err != nil {
			return nil, err
		}
		return r.fn(env)
	}
}

// abort settles the value side of a failed receipt. Function-call deposits
// go back to the dispatching account; a failed native transfer parks its
// value for the dispatcher's continuation to reclaim.
func (h *Host) abort(r *receipt, cause error) {
	h.logger.Warn("host: receipt failed", "tx", r.txID, "receipt", r.id, "target", r.target, "method", r.method, "error", cause)
	h.emit(r, []events.Event{events.ReceiptFailed{Target: r.target, Method: r.method, Predecessor: r.predecessor, Reason: cause.Error()}})
	if r.topLevel || r.deposit == nil || r.deposit.IsZero() {
		return
	}
	err := h.mutate(func(l ledger) error {
		if err := l.unhold(r.id); err != nil {
			return err
		}
		if r.kind == kindTransfer {
			return l.park(r.id, r.predecessor, r.deposit)
		}
		return l.credit(r.predecessor, r.deposit)
	})
	if err != nil {
		h.logger.Error("host: settle failed receipt value", "receipt", r.id, "error", err)
	}
}

func (h *Host) emit(r *receipt, evts []events.Event) {
	for _, evt := range evts {
		h.emitter.Emit(events.Log{TxID: r.txID, ReceiptID: r.id, Contract: r.target, Record: events.Flatten(evt)})
	}
}

// adopt makes the outcome of tail the outcome of id.
func (h *Host) adopt(id, tail string) {
	if waiters, ok := h.waiting[id]; ok {
		h.waiting[tail] = append(h.waiting[tail], waiters...)
		delete(h.waiting, id)
	}
	h.adopters[tail] = append(h.adopters[tail], id)
}

func (h *Host) resolve(id string, outcome Outcome) {
	for _, cb := range h.waiting[id] {
		cb.inputOutcome = outcome
		h.queue = append(h.queue, cb)
	}
	delete(h.waiting, id)

	adopters := h.adopters[id]
	delete(h.adopters, id)
	for _, adopter := range adopters {
		h.resolve(adopter, outcome)
	}
	if txID, ok := strings.CutPrefix(id, rootPrefix); ok {
		h.results[txID] = outcome
	}
}

func (h *Host) waitingCount() int {
	n := 0
	for _, list := range h.waiting {
		n += len(list)
	}
	return n
}

// Recover returns native value stranded by receipts the previous process
// never finished: value still held for an undelivered receipt and value
// parked by a failed transfer whose continuation is gone. It refuses to run
// while receipts are queued, since their value is not stranded.
func (h *Host) Recover() ([]events.ValueRestored, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.queue) + h.waitingCount(); n > 0 {
		return nil, fmt.Errorf("%w: %d receipts", ErrReceiptsPending, n)
	}
	tx := state.NewTx(h.db)
	l := newLedger(tx)
	var restored []events.ValueRestored
	sources := []struct {
		index  string
		parked bool
		get    func(string) (*parkedValue, error)
		drop   func(string) error
	}{
		{keyHeldIndex, false, l.held, l.unhold},
		{keyParkedIndex, true, l.parked, l.unpark},
	}
	for _, src := range sources {
		ids, err := l.ids(src.index)
		if err != nil {
			tx.Discard()
			return nil, err
		}
		for _, id := range ids {
			value, err := src.get(id)
			if err != nil {
				tx.Discard()
				return nil, err
			}
			if err := src.drop(id); err != nil {
				tx.Discard()
				return nil, err
			}
			if value == nil {
				continue
			}
			if err := l.credit(value.Owner, value.Amount); err != nil {
				tx.Discard()
				return nil, err
			}
			restored = append(restored, events.ValueRestored{ReceiptID: id, Owner: value.Owner, Amount: value.Amount, Parked: src.parked})
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	for _, evt := range restored {
		h.logger.Info("host: restored stranded value", "receipt", evt.ReceiptID, "owner", evt.Owner, "amount", evt.Amount.Dec(), "parked", evt.Parked)
		h.emitter.Emit(events.Log{ReceiptID: evt.ReceiptID, Contract: evt.Owner, Record: events.Flatten(evt)})
	}
	return restored, nil
}

// IsFailure reports whether outcome failed with target.
func IsFailure(outcome Outcome, target error) bool {
	return outcome.Status == StatusFailure && errors.Is(outcome.Err, target)
}
