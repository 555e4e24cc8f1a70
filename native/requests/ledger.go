package requests

import (
	"fmt"
	"strings"
	"time"

	coreerrors "supplynet/core/errors"
	"supplynet/core/events"
	"supplynet/native/common"
	"supplynet/native/identity"
	"supplynet/native/tracking"
)

const (
	// ModuleName is the pause key for request creation.
	ModuleName = "requests"
	// TrackingModuleName is the pause key for request-scope tracking writes.
	TrackingModuleName = "tracking"
)

var (
	requestPrefix     = []byte("requests/record/")
	requestCounterKey = []byte("requests/counter")
)

func requestKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%d", requestPrefix, id))
}

type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value interface{}) (uint64, error)
	KVIterate(key []byte, decode func(index uint64, raw []byte) error) error
	Counter(key []byte) (uint64, error)
	NextCounter(key []byte) (uint64, error)
}

// participants is the slice of the identity store the ledger authorizes
// against.
type participants interface {
	IsActive(account [20]byte) (bool, error)
	RoleOf(account [20]byte) (identity.Role, error)
}

// Ledger stores delivery requests under a dense, 1-based identifier sequence.
type Ledger struct {
	store        storage
	participants participants
	emitter      events.Emitter
	pauses       common.PauseView
	nowFn        func() int64
}

// NewLedger constructs a ledger bound to the provided storage and identity
// store.
func NewLedger(store storage, participants participants) *Ledger {
	return &Ledger{
		store:        store,
		participants: participants,
		emitter:      events.NoopEmitter{},
		nowFn:        func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetPauses configures the module pause view consulted before writes.
func (l *Ledger) SetPauses(p common.PauseView) { l.pauses = p }

// SetNowFunc overrides the wall clock.
func (l *Ledger) SetNowFunc(now func() int64) {
	if now == nil {
		l.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	l.nowFn = now
}

// Create stores a new open request and returns its identifier.
func (l *Ledger) Create(caller [20]byte, input CreateInput) (uint64, error) {
	err := common.Guard(l.pauses, ModuleName,
		func() error {
			active, err := l.participants.IsActive(caller)
			if err != nil {
				return err
			}
			if !active {
				return fmt.Errorf("%w: caller is not a registered participant", coreerrors.ErrUnauthorized)
			}
			return nil
		},
		func() error { return validateCreate(input) },
	)
	if err != nil {
		return 0, err
	}
	id, err := l.store.NextCounter(requestCounterKey)
	if err != nil {
		return 0, err
	}
	req := &DeliveryRequest{
		ID:              id,
		Requester:       caller,
		DemanderName:    input.DemanderName,
		Origin:          input.Origin,
		Destination:     input.Destination,
		MaterialID:      input.MaterialID,
		Quantity:        input.Quantity,
		Deadline:        input.Deadline,
		MaxPrice:        cloneAmount(input.MaxPrice),
		CollateralStake: cloneAmount(input.CollateralStake),
		Notes:           input.Notes,
		Open:            true,
		CreatedAt:       uint64(l.nowFn()),
	}
	if err := l.store.KVPut(requestKey(id), req); err != nil {
		return 0, err
	}
	l.emitter.Emit(events.DeliveryRequested{RequestID: id, Requester: caller})
	return id, nil
}

func validateCreate(input CreateInput) error {
	if input.Quantity == 0 {
		return fmt.Errorf("%w: quantity must be positive", coreerrors.ErrInvalidInput)
	}
	if strings.TrimSpace(input.DemanderName) == "" {
		return fmt.Errorf("%w: demander name required", coreerrors.ErrInvalidInput)
	}
	if strings.TrimSpace(input.Origin) == "" {
		return fmt.Errorf("%w: origin required", coreerrors.ErrInvalidInput)
	}
	if strings.TrimSpace(input.Destination) == "" {
		return fmt.Errorf("%w: destination required", coreerrors.ErrInvalidInput)
	}
	return nil
}

// Get returns a copy of the request with the supplied identifier.
func (l *Ledger) Get(id uint64) (*DeliveryRequest, error) {
	count, err := l.Count()
	if err != nil {
		return nil, err
	}
	if id == 0 || id > count {
		return nil, fmt.Errorf("%w: request %d", coreerrors.ErrNotFound, id)
	}
	req := new(DeliveryRequest)
	ok, err := l.store.KVGet(requestKey(id), req)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: request %d", coreerrors.ErrNotFound, id)
	}
	return req, nil
}

// GetOpen returns the request, failing with ErrClosed when it no longer
// accepts matches or agreements.
func (l *Ledger) GetOpen(id uint64) (*DeliveryRequest, error) {
	req, err := l.Get(id)
	if err != nil {
		return nil, err
	}
	if !req.Open {
		return nil, fmt.Errorf("%w: request %d", coreerrors.ErrClosed, id)
	}
	return req, nil
}

// Count returns the number of requests created so far.
func (l *Ledger) Count() (uint64, error) {
	return l.store.Counter(requestCounterKey)
}

// LogTracking appends a request-scope tracking event. The requester and any
// registered carrier may log.
func (l *Ledger) LogTracking(caller [20]byte, id uint64, statusText, location string) (tracking.Event, error) {
	var req *DeliveryRequest
	err := common.Guard(l.pauses, TrackingModuleName,
		func() error {
			var err error
			req, err = l.Get(id)
			return err
		},
		func() error {
			if req.Requester == caller {
				return nil
			}
			role, err := l.participants.RoleOf(caller)
			if err != nil {
				return err
			}
			if role != identity.RoleCarrier {
				return fmt.Errorf("%w: only the requester or a carrier may log tracking", coreerrors.ErrUnauthorized)
			}
			return nil
		},
	)
	if err != nil {
		return tracking.Event{}, err
	}
	evt := tracking.Event{
		Timestamp:  uint64(l.nowFn()),
		StatusText: statusText,
		Location:   location,
		Recorder:   caller,
	}
	if _, err := tracking.NewLog(l.store, tracking.RequestScope(id)).Append(evt); err != nil {
		return tracking.Event{}, err
	}
	l.emitter.Emit(events.TrackingEventLogged{RequestID: id, StatusText: statusText, Location: location})
	return evt, nil
}

// Tracking returns the request-scope tracking history.
func (l *Ledger) Tracking(id uint64) ([]tracking.Event, error) {
	if _, err := l.Get(id); err != nil {
		return nil, err
	}
	return tracking.NewLog(l.store, tracking.RequestScope(id)).Events()
}
