package matching

import (
	"fmt"

	"github.com/holiman/uint256"

	"supplynet/native/identity"
	"supplynet/native/requests"
)

const (
	baseScore        = 50
	coverageScore    = 20
	capacityScore    = 20
	fastLeadBonus    = 10
	regularLeadBonus = 5
	maxScore         = 100

	fastLeadHours    = 24
	regularLeadHours = 48

	perUnitSurcharge = 10
	perUnitFlatRate  = 15
	co2PerUnit       = 2

	electricVehicle = "EV"
)

// Candidate is one scored carrier for a delivery request. Candidates are
// computed on demand and never persisted.
type Candidate struct {
	Provider      [20]byte
	ProviderName  string
	ProviderRole  identity.Role
	Score         uint64
	CapacityOK    bool
	PriceEstimate *uint256.Int
	LeadTimeHours uint64
	CO2Estimate   *uint256.Int
}

type requestSource interface {
	GetOpen(id uint64) (*requests.DeliveryRequest, error)
}

type carrierSource interface {
	Carriers() ([][20]byte, error)
	Participant(account [20]byte) (identity.Participant, *identity.CarrierProfile, error)
}

// Matcher scores registered carriers against delivery requests. It holds no
// state of its own.
type Matcher struct {
	requests requestSource
	carriers carrierSource
}

// NewMatcher binds a matcher to the request ledger and identity store.
func NewMatcher(reqs requestSource, carriers carrierSource) *Matcher {
	return &Matcher{requests: reqs, carriers: carriers}
}

// FindMatches returns one candidate per registered carrier in registration
// order.
func (m *Matcher) FindMatches(requestID uint64) ([]Candidate, error) {
	req, err := m.requests.GetOpen(requestID)
	if err != nil {
		return nil, err
	}
	accounts, err := m.carriers.Carriers()
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(accounts))
	for _, account := range accounts {
		participant, profile, err := m.carriers.Participant(account)
		if err != nil {
			return nil, err
		}
		if profile == nil {
			return nil, fmt.Errorf("matching: carrier %x has no profile", account)
		}
		out = append(out, Evaluate(req, participant, profile))
	}
	return out, nil
}

// Evaluate scores a single carrier against a request.
func Evaluate(req *requests.DeliveryRequest, participant identity.Participant, profile *identity.CarrierProfile) Candidate {
	covered := profile.Covers(req.Origin) || profile.Covers(req.Destination)
	capacityOK := profile.CapacityPerTrip == 0 || profile.CapacityPerTrip >= req.Quantity

	score := uint64(baseScore)
	if covered {
		score += coverageScore
	}
	if capacityOK {
		score += capacityScore
	}
	score += leadTimeBonus(profile.LeadTimeHours)
	if score > maxScore {
		score = maxScore
	}

	return Candidate{
		Provider:      participant.Account,
		ProviderName:  participant.OrgName,
		ProviderRole:  participant.Role,
		Score:         score,
		CapacityOK:    capacityOK,
		PriceEstimate: priceEstimate(profile.BaseCharge, req.Quantity),
		LeadTimeHours: profile.LeadTimeHours,
		CO2Estimate:   co2Estimate(profile.VehicleType, req.Quantity),
	}
}

func leadTimeBonus(hours uint64) uint64 {
	switch {
	case hours == 0:
		return 0
	case hours <= fastLeadHours:
		return fastLeadBonus
	case hours <= regularLeadHours:
		return regularLeadBonus
	default:
		return 0
	}
}

func priceEstimate(baseCharge *uint256.Int, quantity uint64) *uint256.Int {
	qty := uint256.NewInt(quantity)
	if baseCharge == nil || baseCharge.IsZero() {
		return qty.Mul(qty, uint256.NewInt(perUnitFlatRate))
	}
	qty.Mul(qty, uint256.NewInt(perUnitSurcharge))
	return qty.Add(qty, baseCharge)
}

func co2Estimate(vehicleType string, quantity uint64) *uint256.Int {
	est := new(uint256.Int).Mul(uint256.NewInt(quantity), uint256.NewInt(co2PerUnit))
	if vehicleType == electricVehicle {
		est.Rsh(est, 1)
	}
	return est
}
