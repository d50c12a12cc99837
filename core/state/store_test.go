package state

import (
	"testing"

	"github.com/holiman/uint256"

	"mpcbridge/storage"
)

type record struct {
	Name   string
	Amount *uint256.Int
}

func TestTxOverlayIsolation(t *testing.T) {
	db := storage.NewMemDB()
	tx := NewTx(db)
	tx.Put([]byte("k"), []byte("v"))

	value, ok, err := tx.Get([]byte("k"))
	if err != nil || !ok || string(value) != "v" {
		t.Fatalf("overlay read mismatch: %q ok=%v err=%v", value, ok, err)
	}
	if has, _ := db.Has([]byte("k")); has {
		t.Fatalf("write leaked before commit")
	}
	tx.Discard()
	if has, _ := db.Has([]byte("k")); has {
		t.Fatalf("discarded write persisted")
	}

	tx = NewTx(db)
	tx.Put([]byte("k"), []byte("v"))
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := tx.Commit(); err == nil {
		t.Fatalf("expected double commit to fail")
	}

	tx = NewTx(db)
	tx.Delete([]byte("k"))
	if _, ok, _ := tx.Get([]byte("k")); ok {
		t.Fatalf("expected staged delete to hide key")
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit delete: %v", err)
	}
	if has, _ := db.Has([]byte("k")); has {
		t.Fatalf("expected key removed")
	}
}

func TestStoreScopesKeysByAccount(t *testing.T) {
	tx := NewTx(storage.NewMemDB())
	alice := NewStore(tx, "alice")
	bob := NewStore(tx, "bob")

	in := record{Name: "r", Amount: uint256.NewInt(42)}
	if err := alice.KVPut("slot", in); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out record
	ok, err := alice.KVGet("slot", &out)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if out.Name != "r" || out.Amount.Uint64() != 42 {
		t.Fatalf("unexpected record %+v", out)
	}
	if ok, _ := bob.KVHas("slot"); ok {
		t.Fatalf("bob observed alice's slot")
	}
	alice.KVDelete("slot")
	if ok, _ := alice.KVHas("slot"); ok {
		t.Fatalf("expected slot deleted")
	}
}

func TestStoreAppendList(t *testing.T) {
	store := NewStore(NewTx(storage.NewMemDB()), "router")
	var empty [][]byte
	if err := store.KVGetList("txs", &empty); err != nil {
		t.Fatalf("get empty list: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", empty)
	}
	for _, id := range []string{"tx1", "tx2", "tx1"} {
		if err := store.KVAppend("txs", []byte(id)); err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}
	var list [][]byte
	if err := store.KVGetList("txs", &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 2 || string(list[0]) != "tx1" || string(list[1]) != "tx2" {
		t.Fatalf("unexpected list %q", list)
	}
}
