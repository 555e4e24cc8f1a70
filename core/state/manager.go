package state

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	bolt "go.etcd.io/bbolt"
)

var bucketState = []byte("state")

// ErrReadOnly is returned when a write is attempted through a view transaction.
var ErrReadOnly = errors.New("kv: transaction is read-only")

// Manager owns the bolt database backing the registry ledger. Bolt admits a
// single writer at a time while readers observe the last committed snapshot,
// which gives every registry mutation all-or-nothing semantics.
type Manager struct {
	db *bolt.DB
}

// Open creates or opens the ledger database at path.
func Open(path string, options *bolt.Options) (*Manager, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketState)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Manager{db: db}, nil
}

// Close releases the underlying bolt handle.
func (m *Manager) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Update runs fn inside a read-write transaction. Returning an error from fn
// discards every write it performed.
func (m *Manager) Update(fn func(*Tx) error) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return fn(&Tx{bucket: tx.Bucket(bucketState), writable: true})
	})
}

// View runs fn against a consistent read-only snapshot.
func (m *Manager) View(fn func(*Tx) error) error {
	return m.db.View(func(tx *bolt.Tx) error {
		return fn(&Tx{bucket: tx.Bucket(bucketState)})
	})
}

// Tx exposes the key/value primitives the native registry modules build on.
// Values are RLP encoded and keys are hashed with keccak256 before insertion.
type Tx struct {
	bucket   *bolt.Bucket
	writable bool
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func listElemKey(key []byte, index uint64) []byte {
	buf := make([]byte, len(key)+1+8)
	copy(buf, key)
	buf[len(key)] = '#'
	binary.BigEndian.PutUint64(buf[len(key)+1:], index)
	return ethcrypto.Keccak256(buf)
}

func listLenKey(key []byte) []byte {
	buf := make([]byte, len(key)+4)
	copy(buf, key)
	copy(buf[len(key):], "#len")
	return ethcrypto.Keccak256(buf)
}

// KVPut RLP-encodes value and stores it under key.
func (t *Tx) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if !t.writable {
		return ErrReadOnly
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return t.bucket.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (t *Tx) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data := t.bucket.Get(kvKey(key))
	if len(data) == 0 {
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

// KVAppend appends value to the list stored under key and returns the index it
// was written at. Lists are append-only: existing elements are never rewritten.
func (t *Tx) KVAppend(key []byte, value interface{}) (uint64, error) {
	if len(key) == 0 {
		return 0, fmt.Errorf("kv: key must not be empty")
	}
	if !t.writable {
		return 0, ErrReadOnly
	}
	length, err := t.KVLen(key)
	if err != nil {
		return 0, err
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return 0, err
	}
	if err := t.bucket.Put(listElemKey(key, length), encoded); err != nil {
		return 0, err
	}
	if err := t.putUint(listLenKey(key), length+1); err != nil {
		return 0, err
	}
	return length, nil
}

// KVLen reports the number of elements appended under key.
func (t *Tx) KVLen(key []byte) (uint64, error) {
	if len(key) == 0 {
		return 0, fmt.Errorf("kv: key must not be empty")
	}
	raw := t.bucket.Get(listLenKey(key))
	if len(raw) == 0 {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("kv: corrupt list length for %q", key)
	}
	return binary.BigEndian.Uint64(raw), nil
}

// KVGetAt decodes the element at index of the list stored under key.
func (t *Tx) KVGetAt(key []byte, index uint64, out interface{}) (bool, error) {
	length, err := t.KVLen(key)
	if err != nil {
		return false, err
	}
	if index >= length {
		return false, nil
	}
	data := t.bucket.Get(listElemKey(key, index))
	if len(data) == 0 {
		return false, fmt.Errorf("kv: missing list element %d for %q", index, key)
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVIterate visits every element of the list stored under key in insertion
// order. decode receives the raw RLP payload for each element.
func (t *Tx) KVIterate(key []byte, decode func(index uint64, raw []byte) error) error {
	length, err := t.KVLen(key)
	if err != nil {
		return err
	}
	for i := uint64(0); i < length; i++ {
		data := t.bucket.Get(listElemKey(key, i))
		if len(data) == 0 {
			return fmt.Errorf("kv: missing list element %d for %q", i, key)
		}
		if err := decode(i, data); err != nil {
			return err
		}
	}
	return nil
}

// Counter returns the current value of the named counter (zero when unset).
func (t *Tx) Counter(key []byte) (uint64, error) {
	raw := t.bucket.Get(kvKey(key))
	if len(raw) == 0 {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("kv: corrupt counter %q", key)
	}
	return binary.BigEndian.Uint64(raw), nil
}

// NextCounter increments the named counter and returns the new value. Counters
// start at 1; a rolled back transaction leaves the stored value untouched.
func (t *Tx) NextCounter(key []byte) (uint64, error) {
	if !t.writable {
		return 0, ErrReadOnly
	}
	current, err := t.Counter(key)
	if err != nil {
		return 0, err
	}
	next := current + 1
	if err := t.putUint(kvKey(key), next); err != nil {
		return 0, err
	}
	return next, nil
}

func (t *Tx) putUint(hashedKey []byte, value uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	return t.bucket.Put(hashedKey, buf)
}

// DecodeRLP is a small helper for KVIterate callbacks.
func DecodeRLP(raw []byte, out interface{}) error {
	return rlp.DecodeBytes(raw, out)
}
