package escrow

import (
	"encoding/binary"
	"fmt"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	coreerrors "supplynet/core/errors"
	"supplynet/core/events"
	"supplynet/native/common"
	"supplynet/native/tracking"
)

const (
	// ModuleName is the pause key for escrow lifecycle transitions.
	ModuleName = "escrow"
	// TrackingModuleName is the pause key shared with request-scope tracking.
	TrackingModuleName = "tracking"
)

type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value interface{}) (uint64, error)
	KVIterate(key []byte, decode func(index uint64, raw []byte) error) error
}

func instanceKey(ref [32]byte) []byte {
	return []byte(fmt.Sprintf("escrow/instance/%x", ref))
}

// DeriveRef computes the deterministic reference of the instance a registry
// creates for spec.
func DeriveRef(registry [20]byte, spec Spec) [32]byte {
	buf := make([]byte, 0, 20+8+20+20+8)
	buf = append(buf, registry[:]...)
	buf = binary.BigEndian.AppendUint64(buf, spec.AgreementID)
	buf = append(buf, spec.Demander[:]...)
	buf = append(buf, spec.Provider[:]...)
	buf = binary.BigEndian.AppendUint64(buf, spec.RequestID)
	var ref [32]byte
	copy(ref[:], ethcrypto.Keccak256(buf))
	return ref
}

// Engine instantiates escrow sub-ledgers and drives their lifecycle. Only the
// registry that created an instance may move it between states; only its two
// parties may append tracking entries.
type Engine struct {
	store    storage
	registry [20]byte
	emitter  events.Emitter
	pauses   common.PauseView
	nowFn    func() int64
}

// NewEngine binds the engine to the storage and to the registry account that
// owns every instance it creates.
func NewEngine(store storage, registry [20]byte) *Engine {
	return &Engine{
		store:    store,
		registry: registry,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses configures the module pause view.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetNowFunc overrides the wall clock.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// Registry returns the owning registry account.
func (e *Engine) Registry() [20]byte { return e.registry }

// Instantiate creates a Draft instance for spec and returns it.
func (e *Engine) Instantiate(spec Spec) (*Instance, error) {
	ref := DeriveRef(e.registry, spec)
	exists, err := e.store.KVGet(instanceKey(ref), nil)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: escrow %x already instantiated", coreerrors.ErrInvalidState, ref)
	}
	now := uint64(e.nowFn())
	inst := &Instance{
		Ref:         ref,
		AgreementID: spec.AgreementID,
		Demander:    spec.Demander,
		Provider:    spec.Provider,
		Registry:    e.registry,
		RequestID:   spec.RequestID,
		MetadataRef: spec.MetadataRef,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.store.KVPut(instanceKey(ref), inst); err != nil {
		return nil, err
	}
	return inst.Clone(), nil
}

// Get returns the instance stored under ref.
func (e *Engine) Get(ref [32]byte) (*Instance, error) {
	inst := new(Instance)
	ok, err := e.store.KVGet(instanceKey(ref), inst)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: escrow %x", coreerrors.ErrNotFound, ref)
	}
	return inst, nil
}

// Activate moves a Draft instance to Active.
func (e *Engine) Activate(caller [20]byte, ref [32]byte) (*Instance, error) {
	return e.transition(caller, ref, StatusActive, events.TypeEscrowActivated, StatusDraft)
}

// Complete moves an Active instance to Completed.
func (e *Engine) Complete(caller [20]byte, ref [32]byte) (*Instance, error) {
	return e.transition(caller, ref, StatusCompleted, events.TypeEscrowCompleted, StatusActive)
}

// Cancel voids a Draft or Active instance.
func (e *Engine) Cancel(caller [20]byte, ref [32]byte) (*Instance, error) {
	return e.transition(caller, ref, StatusCancelled, events.TypeEscrowCancelled, StatusDraft, StatusActive)
}

func (e *Engine) transition(caller [20]byte, ref [32]byte, target Status, eventType string, from ...Status) (*Instance, error) {
	var inst *Instance
	err := common.Guard(e.pauses, ModuleName,
		func() error {
			var err error
			inst, err = e.Get(ref)
			return err
		},
		func() error {
			if caller != inst.Registry {
				return fmt.Errorf("%w: only the owning registry may change escrow status", coreerrors.ErrUnauthorized)
			}
			return nil
		},
		func() error {
			for _, allowed := range from {
				if inst.Status == allowed {
					return nil
				}
			}
			return fmt.Errorf("%w: escrow is %s, cannot move to %s", coreerrors.ErrInvalidState, inst.Status, target)
		},
	)
	if err != nil {
		return nil, err
	}
	inst.Status = target
	inst.UpdatedAt = uint64(e.nowFn())
	if err := e.store.KVPut(instanceKey(ref), inst); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.EscrowStatusChanged{Type: eventType, EscrowRef: ref, AgreementID: inst.AgreementID})
	return inst.Clone(), nil
}

// RecordTracking appends an entry to the escrow's own tracking sequence.
// Entries are accepted in every lifecycle state.
func (e *Engine) RecordTracking(caller [20]byte, ref [32]byte, statusText, location string) (tracking.Event, error) {
	var inst *Instance
	err := common.Guard(e.pauses, TrackingModuleName,
		func() error {
			var err error
			inst, err = e.Get(ref)
			return err
		},
		func() error {
			if !inst.IsParty(caller) {
				return fmt.Errorf("%w: only the escrow demander or provider may record tracking", coreerrors.ErrUnauthorized)
			}
			return nil
		},
	)
	if err != nil {
		return tracking.Event{}, err
	}
	evt := tracking.Event{
		Timestamp:  uint64(e.nowFn()),
		StatusText: statusText,
		Location:   location,
		Recorder:   caller,
	}
	index, err := tracking.NewLog(e.store, tracking.EscrowScope(ref)).Append(evt)
	if err != nil {
		return tracking.Event{}, err
	}
	e.emitter.Emit(events.EscrowTrackingRecorded{
		EscrowRef:  ref,
		Recorder:   caller,
		StatusText: statusText,
		Location:   location,
		Index:      index,
	})
	return evt, nil
}

// Tracking returns the escrow-scope tracking history.
func (e *Engine) Tracking(ref [32]byte) ([]tracking.Event, error) {
	if _, err := e.Get(ref); err != nil {
		return nil, err
	}
	return tracking.NewLog(e.store, tracking.EscrowScope(ref)).Events()
}
