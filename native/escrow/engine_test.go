package escrow

import (
	"errors"
	"testing"

	coreerrors "supplynet/core/errors"
	"supplynet/core/events"
	"supplynet/core/state"
	"supplynet/native/common"
)

type capturingEmitter struct {
	events []events.Event
}

func (c *capturingEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

var (
	registryAddr = newTestAddress(0xaa)
	demanderAddr = newTestAddress(0x01)
	providerAddr = newTestAddress(0x02)
	outsiderAddr = newTestAddress(0x03)
)

func newTestEngine(t *testing.T) (*Engine, *capturingEmitter, *Instance) {
	t.Helper()
	engine := NewEngine(state.NewMemKV(), registryAddr)
	emitter := &capturingEmitter{}
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() int64 { return 1_700_000_500 })
	inst, err := engine.Instantiate(Spec{
		AgreementID: 1,
		Demander:    demanderAddr,
		Provider:    providerAddr,
		RequestID:   4,
		MetadataRef: "ipfs://agreement-1",
	})
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return engine, emitter, inst
}

func TestInstantiateStoresDraft(t *testing.T) {
	engine, emitter, inst := newTestEngine(t)
	if inst.Status != StatusDraft || inst.Registry != registryAddr {
		t.Fatalf("unexpected instance %+v", inst)
	}
	if inst.Ref != DeriveRef(registryAddr, Spec{AgreementID: 1, Demander: demanderAddr, Provider: providerAddr, RequestID: 4}) {
		t.Fatalf("reference must be derived from the immutable fields")
	}
	stored, err := engine.Get(inst.Ref)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.AgreementID != 1 || stored.RequestID != 4 || stored.MetadataRef != "ipfs://agreement-1" {
		t.Fatalf("unexpected stored instance %+v", stored)
	}
	if len(emitter.events) != 0 {
		t.Fatalf("instantiation is reported by the deploying agreement, not the escrow")
	}
	if _, err := engine.Instantiate(Spec{AgreementID: 1, Demander: demanderAddr, Provider: providerAddr, RequestID: 4}); !errors.Is(err, coreerrors.ErrInvalidState) {
		t.Fatalf("expected duplicate instantiation to fail, got %v", err)
	}
}

func TestDeriveRefDistinguishesAgreements(t *testing.T) {
	a := DeriveRef(registryAddr, Spec{AgreementID: 1, Demander: demanderAddr, Provider: providerAddr, RequestID: 1})
	b := DeriveRef(registryAddr, Spec{AgreementID: 2, Demander: demanderAddr, Provider: providerAddr, RequestID: 1})
	c := DeriveRef(newTestAddress(0xbb), Spec{AgreementID: 1, Demander: demanderAddr, Provider: providerAddr, RequestID: 1})
	if a == b || a == c {
		t.Fatalf("references must differ per agreement and per registry")
	}
}

func TestLifecycleForwardOnly(t *testing.T) {
	engine, emitter, inst := newTestEngine(t)

	if _, err := engine.Complete(registryAddr, inst.Ref); !errors.Is(err, coreerrors.ErrInvalidState) {
		t.Fatalf("complete from draft: expected ErrInvalidState, got %v", err)
	}
	if _, err := engine.Activate(demanderAddr, inst.Ref); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("activate by demander: expected ErrUnauthorized, got %v", err)
	}
	active, err := engine.Activate(registryAddr, inst.Ref)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if active.Status != StatusActive {
		t.Fatalf("expected active, got %s", active.Status)
	}
	if _, err := engine.Activate(registryAddr, inst.Ref); !errors.Is(err, coreerrors.ErrInvalidState) {
		t.Fatalf("double activate: expected ErrInvalidState, got %v", err)
	}
	done, err := engine.Complete(registryAddr, inst.Ref)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted || !done.Status.Terminal() {
		t.Fatalf("expected completed, got %s", done.Status)
	}
	if _, err := engine.Cancel(registryAddr, inst.Ref); !errors.Is(err, coreerrors.ErrInvalidState) {
		t.Fatalf("cancel after completion: expected ErrInvalidState, got %v", err)
	}

	var seen []string
	for _, evt := range emitter.events {
		seen = append(seen, evt.EventType())
	}
	if len(seen) != 2 || seen[0] != events.TypeEscrowActivated || seen[1] != events.TypeEscrowCompleted {
		t.Fatalf("unexpected lifecycle events %v", seen)
	}
}

func TestCancelFromDraftAndActive(t *testing.T) {
	engine, _, inst := newTestEngine(t)
	cancelled, err := engine.Cancel(registryAddr, inst.Ref)
	if err != nil {
		t.Fatalf("cancel draft: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	engine, _, inst = newTestEngine(t)
	if _, err := engine.Activate(registryAddr, inst.Ref); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := engine.Cancel(registryAddr, inst.Ref); err != nil {
		t.Fatalf("cancel active: %v", err)
	}
	if _, err := engine.Activate(registryAddr, inst.Ref); !errors.Is(err, coreerrors.ErrInvalidState) {
		t.Fatalf("activate after cancel: expected ErrInvalidState, got %v", err)
	}
}

func TestLifecyclePaused(t *testing.T) {
	engine, _, inst := newTestEngine(t)
	engine.SetPauses(common.Pauses{ModuleName: true})
	if _, err := engine.Activate(registryAddr, inst.Ref); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}

func TestRecordTrackingPartiesOnly(t *testing.T) {
	engine, emitter, inst := newTestEngine(t)

	if _, err := engine.RecordTracking(demanderAddr, inst.Ref, "Loaded", "Dock 4"); err != nil {
		t.Fatalf("demander record: %v", err)
	}
	if _, err := engine.RecordTracking(providerAddr, inst.Ref, "In transit", "Highway 9"); err != nil {
		t.Fatalf("provider record: %v", err)
	}
	for _, caller := range [][20]byte{outsiderAddr, registryAddr} {
		if _, err := engine.RecordTracking(caller, inst.Ref, "Spoof", "?"); !errors.Is(err, coreerrors.ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized for %x, got %v", caller, err)
		}
	}
	var missing [32]byte
	missing[0] = 0xff
	if _, err := engine.RecordTracking(demanderAddr, missing, "Loaded", "Dock"); !errors.Is(err, coreerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	history, err := engine.Tracking(inst.Ref)
	if err != nil {
		t.Fatalf("tracking: %v", err)
	}
	if len(history) != 2 || history[0].StatusText != "Loaded" || history[1].Recorder != providerAddr {
		t.Fatalf("unexpected history %+v", history)
	}
	if len(emitter.events) != 2 {
		t.Fatalf("expected two tracking events, got %d", len(emitter.events))
	}
	if got := emitter.events[1].Event().Attributes["index"]; got != "1" {
		t.Fatalf("unexpected index attribute %q", got)
	}
}

func TestTrackingUnknownEscrow(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	if _, err := engine.Tracking([32]byte{1}); !errors.Is(err, coreerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
