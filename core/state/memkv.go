package state

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
)

// MemKV is an in-memory implementation of the Tx key/value surface. Native
// module tests use it in place of a bolt transaction; it applies writes
// immediately and offers no rollback.
type MemKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemKV returns an empty in-memory store.
func NewMemKV() *MemKV {
	return &MemKV{data: make(map[string][]byte)}
}

func (m *MemKV) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[string(kvKey(key))] = encoded
	m.mu.Unlock()
	return nil
}

func (m *MemKV) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	m.mu.RLock()
	data, ok := m.data[string(kvKey(key))]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	return true, rlp.DecodeBytes(data, out)
}

func (m *MemKV) KVAppend(key []byte, value interface{}) (uint64, error) {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	length := m.lenLocked(key)
	m.data[string(listElemKey(key, length))] = encoded
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, length+1)
	m.data[string(listLenKey(key))] = buf
	return length, nil
}

func (m *MemKV) KVLen(key []byte) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lenLocked(key), nil
}

func (m *MemKV) KVGetAt(key []byte, index uint64, out interface{}) (bool, error) {
	m.mu.RLock()
	length := m.lenLocked(key)
	data := m.data[string(listElemKey(key, index))]
	m.mu.RUnlock()
	if index >= length {
		return false, nil
	}
	return true, rlp.DecodeBytes(data, out)
}

func (m *MemKV) KVIterate(key []byte, decode func(index uint64, raw []byte) error) error {
	m.mu.RLock()
	length := m.lenLocked(key)
	items := make([][]byte, length)
	for i := uint64(0); i < length; i++ {
		items[i] = m.data[string(listElemKey(key, i))]
	}
	m.mu.RUnlock()
	for i, raw := range items {
		if err := decode(uint64(i), raw); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemKV) Counter(key []byte) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw := m.data[string(kvKey(key))]
	if len(raw) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (m *MemKV) NextCounter(key []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var current uint64
	if raw := m.data[string(kvKey(key))]; len(raw) == 8 {
		current = binary.BigEndian.Uint64(raw)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, current+1)
	m.data[string(kvKey(key))] = buf
	return current + 1, nil
}

func (m *MemKV) lenLocked(key []byte) uint64 {
	raw := m.data[string(listLenKey(key))]
	if len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}
