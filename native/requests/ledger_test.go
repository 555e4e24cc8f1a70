package requests

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	coreerrors "supplynet/core/errors"
	"supplynet/core/events"
	"supplynet/core/state"
	"supplynet/native/common"
	"supplynet/native/identity"
)

type captureEmitter struct {
	events []events.Event
}

func (c *captureEmitter) Emit(evt events.Event) { c.events = append(c.events, evt) }

func newTestAccount(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

type fixture struct {
	ledger   *Ledger
	registry *identity.Registry
	emitter  *captureEmitter
	demander [20]byte
	carrier  [20]byte
	outsider [20]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := state.NewMemKV()
	registry := identity.NewRegistry(store)
	f := &fixture{
		registry: registry,
		emitter:  &captureEmitter{},
		demander: newTestAccount(0x10),
		carrier:  newTestAccount(0x20),
		outsider: newTestAccount(0x30),
	}
	if _, err := registry.Register(f.demander, identity.RegistrationInput{OrgName: "Plant A", Role: identity.RoleDemander}, nil); err != nil {
		t.Fatalf("register demander: %v", err)
	}
	if _, err := registry.Register(f.carrier, identity.RegistrationInput{OrgName: "Haulers", Role: identity.RoleCarrier}, []string{"North"}); err != nil {
		t.Fatalf("register carrier: %v", err)
	}
	f.ledger = NewLedger(store, registry)
	f.ledger.SetEmitter(f.emitter)
	f.ledger.SetNowFunc(func() int64 { return 1_700_000_100 })
	return f
}

func validInput() CreateInput {
	return CreateInput{
		DemanderName: "Plant A",
		Origin:       "North",
		Destination:  "South",
		MaterialID:   "steel-coil",
		Quantity:     500,
		Deadline:     1_700_086_400,
		MaxPrice:     uint256.NewInt(9000),
	}
}

func TestCreateAssignsSequentialIdentifiers(t *testing.T) {
	f := newFixture(t)
	first, err := f.ledger.Create(f.demander, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := f.ledger.Create(f.carrier, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first != 1 || second != 2 {
		t.Fatalf("expected identifiers 1 and 2, got %d and %d", first, second)
	}
	count, err := f.ledger.Count()
	if err != nil || count != 2 {
		t.Fatalf("expected count 2, got %d (%v)", count, err)
	}

	req, err := f.ledger.Get(first)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !req.Open || req.Requester != f.demander || req.Quantity != 500 {
		t.Fatalf("unexpected request %+v", req)
	}
	if req.MaxPrice.Uint64() != 9000 || req.CollateralStake == nil || !req.CollateralStake.IsZero() {
		t.Fatalf("unexpected amounts %v %v", req.MaxPrice, req.CollateralStake)
	}
	if req.CreatedAt != 1_700_000_100 {
		t.Fatalf("unexpected creation time %d", req.CreatedAt)
	}
	if len(f.emitter.events) != 2 || f.emitter.events[0].EventType() != events.TypeDeliveryRequested {
		t.Fatalf("expected two delivery.requested events, got %v", f.emitter.events)
	}
	if got := f.emitter.events[1].Event().Attributes["requestId"]; got != "REQ-2" {
		t.Fatalf("unexpected requestId attribute %q", got)
	}
}

func TestCreateRejections(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ledger.Create(f.outsider, validInput()); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	cases := []struct {
		name   string
		mutate func(*CreateInput)
	}{
		{"zero quantity", func(in *CreateInput) { in.Quantity = 0 }},
		{"blank demander", func(in *CreateInput) { in.DemanderName = "  " }},
		{"blank origin", func(in *CreateInput) { in.Origin = "" }},
		{"blank destination", func(in *CreateInput) { in.Destination = "\t" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput()
			tc.mutate(&input)
			if _, err := f.ledger.Create(f.demander, input); !errors.Is(err, coreerrors.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
	count, err := f.ledger.Count()
	if err != nil || count != 0 {
		t.Fatalf("rejected creates must not consume identifiers, count=%d err=%v", count, err)
	}
	if len(f.emitter.events) != 0 {
		t.Fatalf("rejected creates must not emit events")
	}
}

func TestCreatePaused(t *testing.T) {
	f := newFixture(t)
	f.ledger.SetPauses(common.Pauses{ModuleName: true})
	if _, err := f.ledger.Create(f.demander, validInput()); !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}

func TestGetOutOfRange(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ledger.Create(f.demander, validInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, id := range []uint64{0, 2, 99} {
		if _, err := f.ledger.Get(id); !errors.Is(err, coreerrors.ErrNotFound) {
			t.Fatalf("id %d: expected ErrNotFound, got %v", id, err)
		}
	}
	if _, err := f.ledger.GetOpen(1); err != nil {
		t.Fatalf("open request must be returned: %v", err)
	}
}

func TestGetOpenRejectsClosed(t *testing.T) {
	f := newFixture(t)
	id, err := f.ledger.Create(f.demander, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	req, err := f.ledger.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	req.Open = false
	if err := f.ledger.store.KVPut(requestKey(id), req); err != nil {
		t.Fatalf("store closed request: %v", err)
	}
	if _, err := f.ledger.GetOpen(id); !errors.Is(err, coreerrors.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := f.ledger.Get(id); err != nil {
		t.Fatalf("closed requests stay readable: %v", err)
	}
}

func TestLogTrackingAuthorization(t *testing.T) {
	f := newFixture(t)
	id, err := f.ledger.Create(f.demander, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := f.ledger.LogTracking(f.demander, id, "Created", "Plant A"); err != nil {
		t.Fatalf("requester log: %v", err)
	}
	if _, err := f.ledger.LogTracking(f.carrier, id, "Picked up", "North hub"); err != nil {
		t.Fatalf("carrier log: %v", err)
	}
	if _, err := f.ledger.LogTracking(f.outsider, id, "Spoofed", "Nowhere"); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.ledger.LogTracking(f.demander, 7, "Created", "x"); !errors.Is(err, coreerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	history, err := f.ledger.Tracking(id)
	if err != nil {
		t.Fatalf("tracking: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected two entries, got %d", len(history))
	}
	if history[0].StatusText != "Created" || history[1].Recorder != f.carrier {
		t.Fatalf("unexpected history %+v", history)
	}
	if history[1].Timestamp != 1_700_000_100 {
		t.Fatalf("unexpected timestamp %d", history[1].Timestamp)
	}
}

func TestTrackingEmptyAndUnknown(t *testing.T) {
	f := newFixture(t)
	id, err := f.ledger.Create(f.demander, validInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	history, err := f.ledger.Tracking(id)
	if err != nil {
		t.Fatalf("tracking: %v", err)
	}
	if history == nil || len(history) != 0 {
		t.Fatalf("expected empty history, got %v", history)
	}
	if _, err := f.ledger.Tracking(id + 1); !errors.Is(err, coreerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
