package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"supplynet/core/types"
	"supplynet/crypto"
	"supplynet/native/agreement"
	"supplynet/native/identity"
	"supplynet/native/requests"
	"supplynet/observability/logging"
)

type carrierBody struct {
	VehicleType     string   `json:"vehicleType"`
	CoverageAreas   []string `json:"coverageAreas"`
	CapacityPerTrip uint64   `json:"capacityPerTrip"`
	BaseCharge      string   `json:"baseCharge"`
	LeadTimeHours   uint64   `json:"leadTimeHours"`
	CollateralPct   uint64   `json:"collateralPct"`
}

type registerBody struct {
	OrgName      string       `json:"orgName"`
	Role         string       `json:"role"`
	ContactEmail string       `json:"contactEmail"`
	Region       string       `json:"region"`
	MetadataRef  string       `json:"metadataRef"`
	Carrier      *carrierBody `json:"carrier"`
}

func (s *server) registerParticipant(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var body registerBody
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	role, err := identity.ParseRole(body.Role)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	input := identity.RegistrationInput{
		OrgName:      body.OrgName,
		Role:         role,
		ContactEmail: body.ContactEmail,
		Region:       body.Region,
		MetadataRef:  body.MetadataRef,
	}
	var coverage []string
	if body.Carrier != nil {
		baseCharge, err := parseAmount("baseCharge", body.Carrier.BaseCharge)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		input.VehicleType = body.Carrier.VehicleType
		input.CapacityPerTrip = body.Carrier.CapacityPerTrip
		input.BaseCharge = baseCharge
		input.LeadTimeHours = body.Carrier.LeadTimeHours
		input.CollateralPct = body.Carrier.CollateralPct
		coverage = body.Carrier.CoverageAreas
	}
	if _, err := s.ledger.Register(caller, input, coverage); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.logger.Info("participant registered",
		slog.String("account", crypto.FormatAccount(caller)),
		slog.String("role", role.String()),
		slog.String("contactEmail", logging.MaskEmail(input.ContactEmail)),
		logging.MaskField("metadataRef", input.MetadataRef))
	participant, profile, err := s.ledger.Participant(caller)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, participantViewFrom(participant, profile))
}

func (s *server) getParticipant(w http.ResponseWriter, r *http.Request) {
	account, err := crypto.ParseAccount(chi.URLParam(r, "account"))
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	participant, profile, err := s.ledger.Participant(account)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	if !participant.Active {
		writeJSONError(w, http.StatusNotFound, errors.New("participant not registered"))
		return
	}
	writeJSON(w, http.StatusOK, participantViewFrom(participant, profile))
}

func (s *server) listCarriers(w http.ResponseWriter, r *http.Request) {
	carriers, err := s.ledger.Carriers()
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	out := make([]participantView, 0, len(carriers))
	for _, account := range carriers {
		participant, profile, err := s.ledger.Participant(account)
		if err != nil {
			s.writeLedgerError(w, r, err)
			return
		}
		out = append(out, participantViewFrom(participant, profile))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"carriers": out})
}

type createRequestBody struct {
	DemanderName    string `json:"demanderName"`
	Origin          string `json:"origin"`
	Destination     string `json:"destination"`
	MaterialID      string `json:"materialId"`
	Quantity        uint64 `json:"quantity"`
	Deadline        uint64 `json:"deadline"`
	MaxPrice        string `json:"maxPrice"`
	CollateralStake string `json:"collateralStake"`
	Notes           string `json:"notes"`
}

func (s *server) createRequest(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var body createRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	maxPrice, err := parseAmount("maxPrice", body.MaxPrice)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	stake, err := parseAmount("collateralStake", body.CollateralStake)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	id, err := s.ledger.CreateDeliveryRequest(caller, requests.CreateInput{
		DemanderName:    body.DemanderName,
		Origin:          body.Origin,
		Destination:     body.Destination,
		MaterialID:      body.MaterialID,
		Quantity:        body.Quantity,
		Deadline:        body.Deadline,
		MaxPrice:        maxPrice,
		CollateralStake: stake,
		Notes:           body.Notes,
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": types.FormatRequestID(id)})
}

func requestIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := types.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return 0, false
	}
	return id, true
}

func (s *server) getRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	req, err := s.ledger.DeliveryRequest(id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, requestViewFrom(req))
}

func (s *server) findMatches(w http.ResponseWriter, r *http.Request) {
	id, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	candidates, err := s.ledger.FindMatches(id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requestId":  types.FormatRequestID(id),
		"candidates": candidateViews(candidates),
	})
}

type trackingBody struct {
	StatusText string `json:"statusText"`
	Location   string `json:"location"`
}

func (s *server) logRequestTracking(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	var body trackingBody
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	evt, err := s.ledger.LogTrackingEvent(caller, id, body.StatusText, body.Location)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, trackingViewFrom(evt))
}

func (s *server) requestTracking(w http.ResponseWriter, r *http.Request) {
	id, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	evts, err := s.ledger.RequestTracking(id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": trackingViews(evts)})
}

type draftBody struct {
	RequestID    string     `json:"requestId"`
	Provider     string     `json:"provider"`
	DemanderName string     `json:"demanderName"`
	ProviderName string     `json:"providerName"`
	OnTimeReward string     `json:"onTimeReward"`
	TardyPenalty string     `json:"tardyPenalty"`
	MetadataRef  string     `json:"metadataRef"`
	Terms        []termView `json:"terms"`
}

func (s *server) draftAgreement(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var body draftBody
	if err := decodeBody(r, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	requestID, err := types.ParseRequestID(body.RequestID)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	provider, err := crypto.ParseAccount(body.Provider)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	terms := make([]agreement.ContractTerm, 0, len(body.Terms))
	for _, term := range body.Terms {
		if strings.TrimSpace(term.Key) == "" {
			writeBadRequest(w, errors.New("contract term key must not be empty"))
			return
		}
		terms = append(terms, agreement.ContractTerm{Key: term.Key, Value: term.Value})
	}
	drafted, err := s.ledger.DraftContract(caller, agreement.DraftInput{
		RequestID:    requestID,
		Provider:     provider,
		DemanderName: body.DemanderName,
		ProviderName: body.ProviderName,
		OnTimeReward: body.OnTimeReward,
		TardyPenalty: body.TardyPenalty,
		MetadataRef:  body.MetadataRef,
		Terms:        terms,
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, agreementViewFrom(drafted))
}

func agreementIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := types.ParseAgreementID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, err)
		return 0, false
	}
	return id, true
}

func (s *server) getAgreement(w http.ResponseWriter, r *http.Request) {
	id, ok := agreementIDParam(w, r)
	if !ok {
		return
	}
	found, err := s.ledger.Agreement(id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agreementViewFrom(found))
}

func (s *server) deployAgreement(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	id, ok := agreementIDParam(w, r)
	if !ok {
		return
	}
	deployed, err := s.ledger.DeployContract(caller, id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agreementViewFrom(deployed))
}
