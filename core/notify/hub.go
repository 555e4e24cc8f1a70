package notify

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"supplynet/core/events"
	"supplynet/storage"
)

const (
	subscriberBuffer = 32
	defaultPageLimit = 500
)

var (
	journalPrefix = []byte("notify/j/")
	headKey       = []byte("notify/head")
)

// Notification is one committed ledger event as stored in the journal.
type Notification struct {
	Sequence   uint64            `json:"sequence"`
	Cursor     string            `json:"cursor"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  int64             `json:"timestamp"`
}

func cloneNotification(n Notification) Notification {
	cloned := n
	if n.Attributes != nil {
		cloned.Attributes = make(map[string]string, len(n.Attributes))
		for k, v := range n.Attributes {
			cloned.Attributes[k] = v
		}
	}
	return cloned
}

func journalKey(seq uint64) []byte {
	key := make([]byte, len(journalPrefix)+8)
	copy(key, journalPrefix)
	binary.BigEndian.PutUint64(key[len(journalPrefix):], seq)
	return key
}

// ParseCursor converts a client supplied cursor into a sequence number. Blank
// cursors start from the beginning of the journal.
func ParseCursor(raw string) (uint64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor %q", raw)
	}
	return seq, nil
}

// Hub persists committed ledger events to a journal and fans them out to live
// subscribers. It implements events.Emitter.
type Hub struct {
	db     storage.Database
	logger *slog.Logger
	nowFn  func() time.Time

	mu     sync.Mutex
	seq    uint64
	subs   map[uint64]chan Notification
	nextID uint64
}

// NewHub opens the journal stored in db and resumes its sequence.
func NewHub(db storage.Database, logger *slog.Logger) (*Hub, error) {
	if db == nil {
		return nil, fmt.Errorf("notify: journal database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		db:     db,
		logger: logger.With(slog.String("component", "notify")),
		nowFn:  time.Now,
		subs:   make(map[uint64]chan Notification),
	}
	raw, err := db.Get(headKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, err
	case len(raw) != 8:
		return nil, fmt.Errorf("notify: corrupt journal head")
	default:
		h.seq = binary.BigEndian.Uint64(raw)
	}
	return h, nil
}

// SetNowFunc overrides the clock used to stamp notifications.
func (h *Hub) SetNowFunc(now func() time.Time) {
	if now != nil {
		h.nowFn = now
	}
}

// Head returns the sequence of the most recent notification.
func (h *Hub) Head() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seq
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}

	h.mu.Lock()
	next := h.seq + 1
	n := Notification{
		Sequence:   next,
		Cursor:     strconv.FormatUint(next, 10),
		Type:       payload.Type,
		Attributes: payload.Clone().Attributes,
		Timestamp:  h.nowFn().Unix(),
	}
	if err := h.persist(n); err != nil {
		h.mu.Unlock()
		h.logger.Error("failed to journal notification",
			slog.String("type", n.Type),
			slog.Any("error", err))
		return
	}
	h.seq = next
	subscribers := make([]chan Notification, 0, len(h.subs))
	for _, ch := range h.subs {
		subscribers = append(subscribers, ch)
	}
	h.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- cloneNotification(n):
		default:
			h.logger.Warn("dropping notification for slow subscriber", slog.Uint64("sequence", n.Sequence))
		}
	}
}

func (h *Hub) persist(n Notification) error {
	encoded, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := h.db.Put(journalKey(n.Sequence), encoded); err != nil {
		return err
	}
	head := make([]byte, 8)
	binary.BigEndian.PutUint64(head, n.Sequence)
	return h.db.Put(headKey, head)
}

// Replay returns up to limit journal entries with a sequence greater than
// cursor.
func (h *Hub) Replay(cursor uint64, limit int) ([]Notification, error) {
	if limit <= 0 || limit > defaultPageLimit {
		limit = defaultPageLimit
	}
	return h.after(cursor, limit)
}

// after reads journal entries following cursor. A limit of zero reads to the
// head. No sequence follows MaxUint64, so that cursor yields nothing.
func (h *Hub) after(cursor uint64, limit int) ([]Notification, error) {
	out := make([]Notification, 0)
	if cursor == math.MaxUint64 {
		return out, nil
	}
	err := h.db.Iterate(journalPrefix, journalKey(cursor+1), func(_, value []byte) (bool, error) {
		var n Notification
		if err := json.Unmarshal(value, &n); err != nil {
			return false, err
		}
		out = append(out, n)
		return limit <= 0 || len(out) < limit, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Subscribe registers a live subscriber and returns the journal backlog after
// cursor. The backlog and the channel never overlap or skip a sequence,
// except when a slow subscriber's buffer overflows.
func (h *Hub) Subscribe(ctx context.Context, cursor uint64) (<-chan Notification, func(), []Notification, error) {
	updates := make(chan Notification, subscriberBuffer)

	h.mu.Lock()
	backlog, err := h.after(cursor, 0)
	if err != nil {
		h.mu.Unlock()
		return nil, nil, nil, err
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = updates
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			sub, ok := h.subs[id]
			if ok {
				delete(h.subs, id)
				close(sub)
			}
			h.mu.Unlock()
		})
	}
	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return updates, cancel, backlog, nil
}
