package identity

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	coreerrors "supplynet/core/errors"
	"supplynet/core/events"
	"supplynet/core/state"
	"supplynet/native/common"
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

func newTestRegistry() (*Registry, *captureEmitter) {
	reg := NewRegistry(state.NewMemKV())
	emitter := &captureEmitter{}
	reg.SetEmitter(emitter)
	reg.SetNowFunc(func() int64 { return 1_700_000_000 })
	return reg, emitter
}

func TestRegisterCarrierStoresProfile(t *testing.T) {
	reg, emitter := newTestRegistry()
	carrier := newTestAccount(0x01)
	input := RegistrationInput{
		OrgName:         "  Northern Freight ",
		Role:            RoleCarrier,
		ContactEmail:    "ops@northern.example",
		Region:          "North",
		VehicleType:     "EV",
		CapacityPerTrip: 400,
		BaseCharge:      uint256.NewInt(250),
		LeadTimeHours:   36,
		CollateralPct:   10,
	}
	participant, err := reg.Register(carrier, input, []string{"North", "North", "East"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if participant.OrgName != "Northern Freight" || !participant.Active {
		t.Fatalf("unexpected participant %+v", participant)
	}
	if participant.RegisteredAt != 1_700_000_000 {
		t.Fatalf("unexpected registration time %d", participant.RegisteredAt)
	}

	stored, profile, err := reg.Participant(carrier)
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	if stored.Role != RoleCarrier {
		t.Fatalf("expected carrier role, got %s", stored.Role)
	}
	if profile == nil {
		t.Fatalf("expected carrier profile")
	}
	if len(profile.CoverageAreas) != 3 || profile.CoverageAreas[1] != "North" {
		t.Fatalf("coverage areas must be kept verbatim, got %v", profile.CoverageAreas)
	}
	if profile.BaseCharge.Uint64() != 250 || profile.CapacityPerTrip != 400 || profile.LeadTimeHours != 36 {
		t.Fatalf("unexpected profile %+v", profile)
	}

	carriers, err := reg.Carriers()
	if err != nil {
		t.Fatalf("carriers: %v", err)
	}
	if len(carriers) != 1 || carriers[0] != carrier {
		t.Fatalf("unexpected carrier index %v", carriers)
	}

	if len(emitter.events) != 1 {
		t.Fatalf("expected one event, got %d", len(emitter.events))
	}
	attrs := emitter.events[0].Event().Attributes
	if attrs["role"] != "Carrier" || attrs["orgName"] != "Northern Freight" {
		t.Fatalf("unexpected event attributes %v", attrs)
	}
}

func TestRegisterNonCarrierHasNoProfile(t *testing.T) {
	reg, _ := newTestRegistry()
	supplier := newTestAccount(0x02)
	if _, err := reg.Register(supplier, RegistrationInput{
		OrgName:     "Acme Metals",
		Role:        RoleSupplier,
		VehicleType: "Truck",
	}, []string{"North"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, profile, err := reg.Participant(supplier)
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	if profile != nil {
		t.Fatalf("non-carrier must not carry a profile")
	}
	carriers, err := reg.Carriers()
	if err != nil {
		t.Fatalf("carriers: %v", err)
	}
	if len(carriers) != 0 {
		t.Fatalf("supplier must not join the carrier index")
	}
}

func TestRegisterRejections(t *testing.T) {
	reg, emitter := newTestRegistry()
	account := newTestAccount(0x03)
	cases := []struct {
		name  string
		input RegistrationInput
		want  error
	}{
		{"empty name", RegistrationInput{OrgName: "   ", Role: RoleDepot}, coreerrors.ErrInvalidInput},
		{"unknown role", RegistrationInput{OrgName: "Depot", Role: RoleUnknown}, coreerrors.ErrInvalidInput},
		{"out of range role", RegistrationInput{OrgName: "Depot", Role: Role(42)}, coreerrors.ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := reg.Register(account, tc.input, nil); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if len(emitter.events) != 0 {
		t.Fatalf("failed registrations must not emit events")
	}

	if _, err := reg.Register(account, RegistrationInput{OrgName: "Depot", Role: RoleDepot}, nil); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.Register(account, RegistrationInput{OrgName: "Depot 2", Role: RoleDemander}, nil); !errors.Is(err, coreerrors.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	participants, err := reg.Participants()
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(participants) != 1 {
		t.Fatalf("expected exactly one participant record, got %d", len(participants))
	}
}

func TestRegisterPaused(t *testing.T) {
	reg, _ := newTestRegistry()
	reg.SetPauses(common.Pauses{ModuleName: true})
	_, err := reg.Register(newTestAccount(0x04), RegistrationInput{OrgName: "x", Role: RoleDepot}, nil)
	if !errors.Is(err, common.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
}

func TestUnknownParticipantIsZeroValue(t *testing.T) {
	reg, _ := newTestRegistry()
	participant, profile, err := reg.Participant(newTestAccount(0x09))
	if err != nil {
		t.Fatalf("lookup must not fail: %v", err)
	}
	if participant.Active || participant.Role != RoleUnknown || profile != nil {
		t.Fatalf("expected zero values, got %+v %+v", participant, profile)
	}
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" carrier ")
	if err != nil || role != RoleCarrier {
		t.Fatalf("parse carrier: %v %v", role, err)
	}
	if _, err := ParseRole("pilot"); err == nil {
		t.Fatalf("expected unknown role name to fail")
	}
}
