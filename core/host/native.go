package host

import (
	"fmt"

	"github.com/holiman/uint256"

	bridgeerrors "mpcbridge/core/errors"
	"mpcbridge/core/state"
)

// hostAccount owns the host's bookkeeping slots. The leading '@' keeps it
// out of reach of user-created accounts.
const hostAccount = "@host"

const (
	keyParkedIndex = "parked/index"
	keyHeldIndex   = "held/index"
	keySequence    = "sequence"
)

func nativeKey(account string) string  { return "native/" + account }
func accountKey(account string) string { return "account/" + account }
func parkedKey(id string) string       { return "parked/" + id }
func heldKey(id string) string         { return "held/" + id }

type parkedValue struct {
	Owner  string
	Amount *uint256.Int
}

// ledger wraps the host namespace of a turn.
type ledger struct {
	store *state.Store
}

func newLedger(tx *state.Tx) ledger {
	return ledger{store: state.NewStore(tx, hostAccount)}
}

func (l ledger) exists(account string) (bool, error) {
	return l.store.KVHas(accountKey(account))
}

func (l ledger) create(account string) error {
	if account == "" || account[0] == '@' {
		return fmt.Errorf("host: invalid account name %q", account)
	}
	return l.store.KVPut(accountKey(account), true)
}

func (l ledger) balance(account string) (*uint256.Int, error) {
	amount := new(uint256.Int)
	if _, err := l.store.KVGet(nativeKey(account), amount); err != nil {
		return nil, err
	}
	return amount, nil
}

func (l ledger) credit(account string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	balance, err := l.balance(account)
	if err != nil {
		return err
	}
	next, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return fmt.Errorf("%w: native balance overflow", bridgeerrors.ErrInvalidAmount)
	}
	return l.store.KVPut(nativeKey(account), next)
}

func (l ledger) debit(account string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	balance, err := l.balance(account)
	if err != nil {
		return err
	}
	if balance.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s native, needs %s", bridgeerrors.ErrInsufficientBalance, account, balance.Dec(), amount.Dec())
	}
	return l.store.KVPut(nativeKey(account), new(uint256.Int).Sub(balance, amount))
}

func (l ledger) nextID() (uint64, error) {
	var seq uint64
	if _, err := l.store.KVGet(keySequence, &seq); err != nil {
		return 0, err
	}
	seq++
	if err := l.store.KVPut(keySequence, seq); err != nil {
		return 0, err
	}
	return seq, nil
}

func (l ledger) putValue(index, key, receiptID, owner string, amount *uint256.Int) error {
	if err := l.store.KVPut(key, parkedValue{Owner: owner, Amount: amount}); err != nil {
		return err
	}
	return l.store.KVAppend(index, []byte(receiptID))
}

func (l ledger) getValue(key string) (*parkedValue, error) {
	var p parkedValue
	ok, err := l.store.KVGet(key, &p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (l ledger) dropValue(index, key, receiptID string) error {
	l.store.KVDelete(key)
	var ids [][]byte
	if err := l.store.KVGetList(index, &ids); err != nil {
		return err
	}
	kept := ids[:0]
	for _, id := range ids {
		if string(id) != receiptID {
			kept = append(kept, id)
		}
	}
	return l.store.KVPut(index, kept)
}

func (l ledger) park(receiptID, owner string, amount *uint256.Int) error {
	return l.putValue(keyParkedIndex, parkedKey(receiptID), receiptID, owner, amount)
}

func (l ledger) parked(receiptID string) (*parkedValue, error) {
	return l.getValue(parkedKey(receiptID))
}

func (l ledger) unpark(receiptID string) error {
	return l.dropValue(keyParkedIndex, parkedKey(receiptID), receiptID)
}

// hold records value that left its owner with a dispatched receipt and has
// not reached the receiver yet.
func (l ledger) hold(receiptID, owner string, amount *uint256.Int) error {
	return l.putValue(keyHeldIndex, heldKey(receiptID), receiptID, owner, amount)
}

func (l ledger) held(receiptID string) (*parkedValue, error) {
	return l.getValue(heldKey(receiptID))
}

func (l ledger) unhold(receiptID string) error {
	return l.dropValue(keyHeldIndex, heldKey(receiptID), receiptID)
}

func (l ledger) ids(index string) ([]string, error) {
	var raw [][]byte
	if err := l.store.KVGetList(index, &raw); err != nil {
		return nil, err
	}
	out := make([]string, len(raw))
	for i, id := range raw {
		out[i] = string(id)
	}
	return out, nil
}

func (l ledger) inTransit() (*uint256.Int, error) {
	var index [][]byte
	if err := l.store.KVGetList(keyParkedIndex, &index); err != nil {
		return nil, err
	}
	total := new(uint256.Int)
	for _, id := range index {
		p, err := l.parked(string(id))
		if err != nil {
			return nil, err
		}
		if p != nil && p.Amount != nil {
			total.Add(total, p.Amount)
		}
	}
	return total, nil
}
