package routes

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"supplynet/core/types"
	"supplynet/crypto"
	"supplynet/native/agreement"
	"supplynet/native/escrow"
	"supplynet/native/identity"
	"supplynet/native/matching"
	"supplynet/native/requests"
	"supplynet/native/tracking"
)

func formatAccount(account [20]byte) string {
	return crypto.FormatAccount(account)
}

func formatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

// parseAmount accepts base-10 amounts; empty means zero.
func parseAmount(field, raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

type carrierView struct {
	VehicleType     string   `json:"vehicleType"`
	CoverageAreas   []string `json:"coverageAreas"`
	CapacityPerTrip uint64   `json:"capacityPerTrip"`
	BaseCharge      string   `json:"baseCharge"`
	LeadTimeHours   uint64   `json:"leadTimeHours"`
	CollateralPct   uint64   `json:"collateralPct"`
}

type participantView struct {
	Account      string       `json:"account"`
	OrgName      string       `json:"orgName"`
	Role         string       `json:"role"`
	ContactEmail string       `json:"contactEmail,omitempty"`
	Region       string       `json:"region,omitempty"`
	MetadataRef  string       `json:"metadataRef,omitempty"`
	Active       bool         `json:"active"`
	RegisteredAt uint64       `json:"registeredAt"`
	Carrier      *carrierView `json:"carrier,omitempty"`
}

func participantViewFrom(p identity.Participant, profile *identity.CarrierProfile) participantView {
	view := participantView{
		Account:      formatAccount(p.Account),
		OrgName:      p.OrgName,
		Role:         p.Role.String(),
		ContactEmail: p.ContactEmail,
		Region:       p.Region,
		MetadataRef:  p.MetadataRef,
		Active:       p.Active,
		RegisteredAt: p.RegisteredAt,
	}
	if profile != nil {
		areas := profile.CoverageAreas
		if areas == nil {
			areas = []string{}
		}
		view.Carrier = &carrierView{
			VehicleType:     profile.VehicleType,
			CoverageAreas:   areas,
			CapacityPerTrip: profile.CapacityPerTrip,
			BaseCharge:      formatAmount(profile.BaseCharge),
			LeadTimeHours:   profile.LeadTimeHours,
			CollateralPct:   profile.CollateralPct,
		}
	}
	return view
}

type requestView struct {
	ID              string `json:"id"`
	Requester       string `json:"requester"`
	DemanderName    string `json:"demanderName"`
	Origin          string `json:"origin"`
	Destination     string `json:"destination"`
	MaterialID      string `json:"materialId"`
	Quantity        uint64 `json:"quantity"`
	Deadline        uint64 `json:"deadline"`
	MaxPrice        string `json:"maxPrice"`
	CollateralStake string `json:"collateralStake"`
	Notes           string `json:"notes,omitempty"`
	Open            bool   `json:"open"`
	CreatedAt       uint64 `json:"createdAt"`
}

func requestViewFrom(req *requests.DeliveryRequest) requestView {
	return requestView{
		ID:              types.FormatRequestID(req.ID),
		Requester:       formatAccount(req.Requester),
		DemanderName:    req.DemanderName,
		Origin:          req.Origin,
		Destination:     req.Destination,
		MaterialID:      req.MaterialID,
		Quantity:        req.Quantity,
		Deadline:        req.Deadline,
		MaxPrice:        formatAmount(req.MaxPrice),
		CollateralStake: formatAmount(req.CollateralStake),
		Notes:           req.Notes,
		Open:            req.Open,
		CreatedAt:       req.CreatedAt,
	}
}

type candidateView struct {
	Provider      string `json:"provider"`
	ProviderName  string `json:"providerName"`
	ProviderRole  string `json:"providerRole"`
	Score         uint64 `json:"score"`
	CapacityOK    bool   `json:"capacityOk"`
	PriceEstimate string `json:"priceEstimate"`
	LeadTimeHours uint64 `json:"leadTimeHours"`
	CO2Estimate   string `json:"co2Estimate"`
}

func candidateViews(candidates []matching.Candidate) []candidateView {
	out := make([]candidateView, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, candidateView{
			Provider:      formatAccount(c.Provider),
			ProviderName:  c.ProviderName,
			ProviderRole:  c.ProviderRole.String(),
			Score:         c.Score,
			CapacityOK:    c.CapacityOK,
			PriceEstimate: formatAmount(c.PriceEstimate),
			LeadTimeHours: c.LeadTimeHours,
			CO2Estimate:   formatAmount(c.CO2Estimate),
		})
	}
	return out
}

type trackingView struct {
	Timestamp  uint64 `json:"timestamp"`
	StatusText string `json:"statusText"`
	Location   string `json:"location"`
	Recorder   string `json:"recorder"`
}

func trackingViewFrom(evt tracking.Event) trackingView {
	return trackingView{
		Timestamp:  evt.Timestamp,
		StatusText: evt.StatusText,
		Location:   evt.Location,
		Recorder:   formatAccount(evt.Recorder),
	}
}

func trackingViews(evts []tracking.Event) []trackingView {
	out := make([]trackingView, 0, len(evts))
	for _, evt := range evts {
		out = append(out, trackingViewFrom(evt))
	}
	return out
}

type termView struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type agreementView struct {
	ID           string     `json:"id"`
	RequestID    string     `json:"requestId"`
	Demander     string     `json:"demander"`
	Provider     string     `json:"provider"`
	DemanderName string     `json:"demanderName"`
	ProviderName string     `json:"providerName"`
	OnTimeReward string     `json:"onTimeReward"`
	TardyPenalty string     `json:"tardyPenalty"`
	Status       string     `json:"status"`
	EscrowRef    string     `json:"escrowRef,omitempty"`
	MetadataRef  string     `json:"metadataRef,omitempty"`
	Terms        []termView `json:"terms"`
	CreatedAt    uint64     `json:"createdAt"`
	DeployedAt   uint64     `json:"deployedAt,omitempty"`
}

func agreementViewFrom(a *agreement.Agreement) agreementView {
	view := agreementView{
		ID:           types.FormatAgreementID(a.ID),
		RequestID:    types.FormatRequestID(a.RequestID),
		Demander:     formatAccount(a.Demander),
		Provider:     formatAccount(a.Provider),
		DemanderName: a.DemanderName,
		ProviderName: a.ProviderName,
		OnTimeReward: a.OnTimeReward,
		TardyPenalty: a.TardyPenalty,
		Status:       a.Status.String(),
		MetadataRef:  a.MetadataRef,
		Terms:        make([]termView, 0, len(a.Terms)),
		CreatedAt:    a.CreatedAt,
		DeployedAt:   a.DeployedAt,
	}
	if a.EscrowRef != ([32]byte{}) {
		view.EscrowRef = types.FormatEscrowRef(a.EscrowRef)
	}
	for _, term := range a.Terms {
		view.Terms = append(view.Terms, termView{Key: term.Key, Value: term.Value})
	}
	return view
}

type escrowView struct {
	Ref         string `json:"ref"`
	AgreementID string `json:"agreementId"`
	RequestID   string `json:"requestId"`
	Demander    string `json:"demander"`
	Provider    string `json:"provider"`
	Registry    string `json:"registry"`
	MetadataRef string `json:"metadataRef,omitempty"`
	Status      string `json:"status"`
	CreatedAt   uint64 `json:"createdAt"`
	UpdatedAt   uint64 `json:"updatedAt"`
}

func escrowViewFrom(inst *escrow.Instance) escrowView {
	return escrowView{
		Ref:         types.FormatEscrowRef(inst.Ref),
		AgreementID: types.FormatAgreementID(inst.AgreementID),
		RequestID:   types.FormatRequestID(inst.RequestID),
		Demander:    formatAccount(inst.Demander),
		Provider:    formatAccount(inst.Provider),
		Registry:    formatAccount(inst.Registry),
		MetadataRef: inst.MetadataRef,
		Status:      inst.Status.String(),
		CreatedAt:   inst.CreatedAt,
		UpdatedAt:   inst.UpdatedAt,
	}
}
