package matching

import (
	"errors"
	"fmt"
	"math/rand"
	"reflect"
	"testing"

	"github.com/holiman/uint256"

	coreerrors "supplynet/core/errors"
	"supplynet/core/state"
	"supplynet/native/identity"
	"supplynet/native/requests"
)

func account(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

type fixture struct {
	store    *state.MemKV
	registry *identity.Registry
	requests *requests.Ledger
	matcher  *Matcher
	demander [20]byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := state.NewMemKV()
	registry := identity.NewRegistry(store)
	ledger := requests.NewLedger(store, registry)
	f := &fixture{
		store:    store,
		registry: registry,
		requests: ledger,
		matcher:  NewMatcher(ledger, registry),
		demander: account(0xd0),
	}
	if _, err := registry.Register(f.demander, identity.RegistrationInput{OrgName: "Plant", Role: identity.RoleDemander}, nil); err != nil {
		t.Fatalf("register demander: %v", err)
	}
	return f
}

func (f *fixture) carrier(t *testing.T, fill byte, input identity.RegistrationInput, coverage []string) [20]byte {
	t.Helper()
	addr := account(fill)
	input.Role = identity.RoleCarrier
	if input.OrgName == "" {
		input.OrgName = "Carrier"
	}
	if _, err := f.registry.Register(addr, input, coverage); err != nil {
		t.Fatalf("register carrier: %v", err)
	}
	return addr
}

func (f *fixture) request(t *testing.T, origin, destination string, quantity uint64) uint64 {
	t.Helper()
	id, err := f.requests.Create(f.demander, requests.CreateInput{
		DemanderName: "Plant",
		Origin:       origin,
		Destination:  destination,
		Quantity:     quantity,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return id
}

// closeRequest flips the stored open flag; no registry operation closes a
// request.
func (f *fixture) closeRequest(t *testing.T, id uint64) {
	t.Helper()
	req, err := f.requests.Get(id)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	req.Open = false
	if err := f.store.KVPut([]byte(fmt.Sprintf("requests/record/%d", id)), req); err != nil {
		t.Fatalf("store closed request: %v", err)
	}
}

func TestFindMatchesFullScore(t *testing.T) {
	f := newFixture(t)
	carrier := f.carrier(t, 0x01, identity.RegistrationInput{
		OrgName:         "Volt Freight",
		VehicleType:     "EV",
		CapacityPerTrip: 1000,
		BaseCharge:      uint256.NewInt(2500),
		LeadTimeHours:   12,
	}, []string{"North"})
	id := f.request(t, "North", "South", 500)

	matches, err := f.matcher.FindMatches(id)
	if err != nil {
		t.Fatalf("find matches: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one candidate, got %d", len(matches))
	}
	got := matches[0]
	if got.Provider != carrier || got.ProviderName != "Volt Freight" || got.ProviderRole != identity.RoleCarrier {
		t.Fatalf("unexpected provider fields %+v", got)
	}
	if got.Score != 100 || !got.CapacityOK {
		t.Fatalf("expected score 100 with capacity, got %d %v", got.Score, got.CapacityOK)
	}
	if got.PriceEstimate.Uint64() != 7500 {
		t.Fatalf("expected price 7500, got %s", got.PriceEstimate)
	}
	if got.CO2Estimate.Uint64() != 500 {
		t.Fatalf("expected halved co2 500, got %s", got.CO2Estimate)
	}
	if got.LeadTimeHours != 12 {
		t.Fatalf("unexpected lead time %d", got.LeadTimeHours)
	}
}

func TestFindMatchesScenarioTable(t *testing.T) {
	cases := []struct {
		name      string
		input     identity.RegistrationInput
		coverage  []string
		quantity  uint64
		wantScore uint64
		wantCapOK bool
		wantPrice uint64
		wantCO2   uint64
	}{
		{
			name:      "diesel truck full coverage",
			input:     identity.RegistrationInput{VehicleType: "Truck", CapacityPerTrip: 1000, BaseCharge: uint256.NewInt(2500), LeadTimeHours: 12},
			coverage:  []string{"North"},
			quantity:  500,
			wantScore: 100, wantCapOK: true, wantPrice: 7500, wantCO2: 1000,
		},
		{
			name:      "unconstrained capacity default pricing",
			input:     identity.RegistrationInput{VehicleType: "Truck", LeadTimeHours: 20},
			coverage:  []string{"North"},
			quantity:  500,
			wantScore: 100, wantCapOK: true, wantPrice: 7500, wantCO2: 1000,
		},
		{
			name:      "padded EV is not an EV",
			input:     identity.RegistrationInput{VehicleType: " EV "},
			coverage:  nil,
			quantity:  100,
			wantScore: 70, wantCapOK: true, wantPrice: 1500, wantCO2: 200,
		},
		{
			name:      "destination coverage and medium lead time",
			input:     identity.RegistrationInput{VehicleType: "Van", CapacityPerTrip: 500, BaseCharge: uint256.NewInt(100), LeadTimeHours: 48},
			coverage:  []string{"South"},
			quantity:  500,
			wantScore: 95, wantCapOK: true, wantPrice: 5100, wantCO2: 1000,
		},
		{
			name:      "no coverage over capacity slow",
			input:     identity.RegistrationInput{VehicleType: "ev", CapacityPerTrip: 10, LeadTimeHours: 72},
			coverage:  []string{"north"},
			quantity:  20,
			wantScore: 50, wantCapOK: false, wantPrice: 300, wantCO2: 40,
		},
		{
			name:      "unconstrained capacity no lead time",
			input:     identity.RegistrationInput{VehicleType: "EV"},
			coverage:  nil,
			quantity:  7,
			wantScore: 70, wantCapOK: true, wantPrice: 105, wantCO2: 7,
		},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.carrier(t, byte(i+1), tc.input, tc.coverage)
			id := f.request(t, "North", "South", tc.quantity)
			matches, err := f.matcher.FindMatches(id)
			if err != nil {
				t.Fatalf("find matches: %v", err)
			}
			got := matches[0]
			if got.Score != tc.wantScore || got.CapacityOK != tc.wantCapOK {
				t.Fatalf("score/capacity = %d/%v, want %d/%v", got.Score, got.CapacityOK, tc.wantScore, tc.wantCapOK)
			}
			if got.PriceEstimate.Uint64() != tc.wantPrice || got.CO2Estimate.Uint64() != tc.wantCO2 {
				t.Fatalf("price/co2 = %s/%s, want %d/%d", got.PriceEstimate, got.CO2Estimate, tc.wantPrice, tc.wantCO2)
			}
		})
	}
}

func TestFindMatchesKeepsRegistrationOrder(t *testing.T) {
	f := newFixture(t)
	third := f.carrier(t, 0x03, identity.RegistrationInput{OrgName: "C"}, []string{"North"})
	first := f.carrier(t, 0x01, identity.RegistrationInput{OrgName: "A"}, nil)
	second := f.carrier(t, 0x02, identity.RegistrationInput{OrgName: "B", LeadTimeHours: 1}, []string{"South"})
	id := f.request(t, "North", "South", 1)

	matches, err := f.matcher.FindMatches(id)
	if err != nil {
		t.Fatalf("find matches: %v", err)
	}
	want := [][20]byte{third, first, second}
	for i, m := range matches {
		if m.Provider != want[i] {
			t.Fatalf("position %d: got %x want %x", i, m.Provider, want[i])
		}
	}
}

func TestFindMatchesUnknownRequest(t *testing.T) {
	f := newFixture(t)
	if _, err := f.matcher.FindMatches(1); !errors.Is(err, coreerrors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindMatchesClosedRequest(t *testing.T) {
	f := newFixture(t)
	f.carrier(t, 0x01, identity.RegistrationInput{VehicleType: "EV"}, []string{"North"})
	id := f.request(t, "North", "South", 5)
	f.closeRequest(t, id)

	matches, err := f.matcher.FindMatches(id)
	if !errors.Is(err, coreerrors.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if matches != nil {
		t.Fatalf("expected no candidates for a closed request, got %v", matches)
	}
}

func TestFindMatchesNoCarriers(t *testing.T) {
	f := newFixture(t)
	id := f.request(t, "North", "South", 1)
	matches, err := f.matcher.FindMatches(id)
	if err != nil {
		t.Fatalf("find matches: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no candidates, got %d", len(matches))
	}
}

func TestEvaluatePropertiesHold(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	regions := []string{"North", "South", "East", "West", ""}
	for i := 0; i < 500; i++ {
		req := &requests.DeliveryRequest{
			Origin:      regions[rng.Intn(len(regions))],
			Destination: regions[rng.Intn(len(regions))],
			Quantity:    uint64(rng.Intn(10_000) + 1),
		}
		coverage := make([]string, rng.Intn(4))
		for j := range coverage {
			coverage[j] = regions[rng.Intn(len(regions))]
		}
		profile := &identity.CarrierProfile{
			VehicleType:     []string{"EV", "Truck", "ev"}[rng.Intn(3)],
			CoverageAreas:   coverage,
			CapacityPerTrip: uint64(rng.Intn(3)) * uint64(rng.Intn(10_000)),
			BaseCharge:      uint256.NewInt(uint64(rng.Intn(3)) * uint64(rng.Intn(5_000))),
			LeadTimeHours:   uint64(rng.Intn(100)),
		}
		participant := identity.Participant{Account: account(byte(i)), OrgName: "P", Role: identity.RoleCarrier, Active: true}

		first := Evaluate(req, participant, profile)
		second := Evaluate(req, participant, profile)
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("iteration %d: evaluation is not deterministic", i)
		}
		if first.Score < baseScore || first.Score > maxScore {
			t.Fatalf("iteration %d: score %d out of range", i, first.Score)
		}
		if profile.CapacityPerTrip == 0 && !first.CapacityOK {
			t.Fatalf("iteration %d: unconstrained capacity must be ok", i)
		}
	}
}
