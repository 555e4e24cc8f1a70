package tracking

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// Event is one timestamped status/location entry. Entries are never rewritten
// once appended.
type Event struct {
	Timestamp  uint64
	StatusText string
	Location   string
	Recorder   [20]byte
}

type storage interface {
	KVAppend(key []byte, value interface{}) (uint64, error)
	KVIterate(key []byte, decode func(index uint64, raw []byte) error) error
}

// RequestScope returns the list key holding the tracking history of a
// delivery request.
func RequestScope(requestID uint64) []byte {
	return []byte(fmt.Sprintf("tracking/request/%d", requestID))
}

// EscrowScope returns the list key holding the tracking history of an escrow
// instance.
func EscrowScope(ref [32]byte) []byte {
	return []byte(fmt.Sprintf("tracking/escrow/%x", ref))
}

// Log is an append-only event sequence bound to a single scope key.
type Log struct {
	store storage
	scope []byte
}

// NewLog binds a log to the given scope.
func NewLog(store storage, scope []byte) *Log {
	return &Log{store: store, scope: scope}
}

// Append writes a new entry at the end of the sequence and returns its index.
func (l *Log) Append(evt Event) (uint64, error) {
	if l == nil || l.store == nil {
		return 0, fmt.Errorf("tracking: storage unavailable")
	}
	return l.store.KVAppend(l.scope, &evt)
}

// Events returns the sequence in insertion order.
func (l *Log) Events() ([]Event, error) {
	if l == nil || l.store == nil {
		return nil, fmt.Errorf("tracking: storage unavailable")
	}
	out := make([]Event, 0)
	err := l.store.KVIterate(l.scope, func(_ uint64, raw []byte) error {
		var evt Event
		if err := rlp.DecodeBytes(raw, &evt); err != nil {
			return err
		}
		out = append(out, evt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
