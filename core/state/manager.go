package state

import (
	"bytes"
	"fmt"
	"reflect"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Store is an account-scoped key/value view over a Tx. Values are RLP encoded
// and keys are hashed together with the owning account so that contracts can
// never address each other's slots.
type Store struct {
	tx      *Tx
	account string
}

// NewStore scopes tx to account.
func NewStore(tx *Tx, account string) *Store {
	return &Store{tx: tx, account: account}
}

// Account returns the owning account.
func (s *Store) Account() string { return s.account }

func (s *Store) kvKey(key string) []byte {
	buf := make([]byte, 0, len(s.account)+1+len(key))
	buf = append(buf, s.account...)
	buf = append(buf, ':')
	buf = append(buf, key...)
	return ethcrypto.Keccak256(buf)
}

// KVPut stores the RLP encoding of value under key.
func (s *Store) KVPut(key string, value interface{}) error {
	if key == "" {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	s.tx.Put(s.kvKey(key), encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (s *Store) KVGet(key string, out interface{}) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := s.tx.Get(s.kvKey(key))
	if err != nil {
		return false, err
	}
	if !ok || len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVHas reports whether key is present.
func (s *Store) KVHas(key string) (bool, error) {
	return s.KVGet(key, nil)
}

// KVDelete removes key.
func (s *Store) KVDelete(key string) {
	s.tx.Delete(s.kvKey(key))
}

// KVAppend appends value to the RLP-encoded byte slice list stored under key.
// Duplicate values are ignored to keep the index deterministic.
func (s *Store) KVAppend(key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("kv: key must not be empty")
	}
	var list [][]byte
	if _, err := s.KVGet(key, &list); err != nil {
		return err
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	return s.KVPut(key, list)
}

// KVGetList decodes the list stored under key into out, which must point to a
// slice. Missing keys yield an empty slice.
func (s *Store) KVGetList(key string, out interface{}) error {
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("kv: destination must be a non-nil pointer")
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Slice {
		return fmt.Errorf("kv: destination must point to a slice")
	}
	ok, err := s.KVGet(key, out)
	if err != nil {
		return err
	}
	if !ok {
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
	}
	return nil
}
