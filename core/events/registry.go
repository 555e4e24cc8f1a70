package events

import (
	"strconv"

	"supplynet/core/types"
	"supplynet/crypto"
)

const (
	TypeParticipantRegistered  = "participant.registered"
	TypeDeliveryRequested      = "delivery.requested"
	TypeAgreementDrafted       = "agreement.drafted"
	TypeAgreementDeployed      = "agreement.deployed"
	TypeTrackingEventLogged    = "tracking.logged"
	TypeEscrowActivated        = "escrow.activated"
	TypeEscrowCompleted        = "escrow.completed"
	TypeEscrowCancelled        = "escrow.cancelled"
	TypeEscrowTrackingRecorded = "escrow.tracking.recorded"
)

// ParticipantRegistered is emitted when an account registers its identity.
type ParticipantRegistered struct {
	Account [20]byte
	Role    string
	OrgName string
}

// EventType implements the Event interface.
func (ParticipantRegistered) EventType() string { return TypeParticipantRegistered }

// Event converts the strongly typed event to the generic representation used by subscribers.
func (e ParticipantRegistered) Event() *types.Event {
	return &types.Event{
		Type: TypeParticipantRegistered,
		Attributes: map[string]string{
			"account": crypto.FormatAccount(e.Account),
			"role":    e.Role,
			"orgName": e.OrgName,
		},
	}
}

// DeliveryRequested is emitted when a new delivery request is posted.
type DeliveryRequested struct {
	RequestID uint64
	Requester [20]byte
}

// EventType implements the Event interface.
func (DeliveryRequested) EventType() string { return TypeDeliveryRequested }

// Event converts the strongly typed event to the generic representation used by subscribers.
func (e DeliveryRequested) Event() *types.Event {
	return &types.Event{
		Type: TypeDeliveryRequested,
		Attributes: map[string]string{
			"requestId": types.FormatRequestID(e.RequestID),
			"requester": crypto.FormatAccount(e.Requester),
		},
	}
}

// AgreementDrafted is emitted when a demander drafts a contract for a request.
type AgreementDrafted struct {
	AgreementID uint64
	RequestID   uint64
	Provider    [20]byte
}

// EventType implements the Event interface.
func (AgreementDrafted) EventType() string { return TypeAgreementDrafted }

// Event converts the strongly typed event to the generic representation used by subscribers.
func (e AgreementDrafted) Event() *types.Event {
	return &types.Event{
		Type: TypeAgreementDrafted,
		Attributes: map[string]string{
			"agreementId": types.FormatAgreementID(e.AgreementID),
			"requestId":   types.FormatRequestID(e.RequestID),
			"provider":    crypto.FormatAccount(e.Provider),
		},
	}
}

// AgreementDeployed is emitted once an agreement spawns its escrow instance.
type AgreementDeployed struct {
	AgreementID uint64
	EscrowRef   [32]byte
}

// EventType implements the Event interface.
func (AgreementDeployed) EventType() string { return TypeAgreementDeployed }

// Event converts the strongly typed event to the generic representation used by subscribers.
func (e AgreementDeployed) Event() *types.Event {
	return &types.Event{
		Type: TypeAgreementDeployed,
		Attributes: map[string]string{
			"agreementId": types.FormatAgreementID(e.AgreementID),
			"escrowRef":   types.FormatEscrowRef(e.EscrowRef),
		},
	}
}

// TrackingEventLogged is emitted for request-scope tracking entries.
type TrackingEventLogged struct {
	RequestID  uint64
	StatusText string
	Location   string
}

// EventType implements the Event interface.
func (TrackingEventLogged) EventType() string { return TypeTrackingEventLogged }

// Event converts the strongly typed event to the generic representation used by subscribers.
func (e TrackingEventLogged) Event() *types.Event {
	return &types.Event{
		Type: TypeTrackingEventLogged,
		Attributes: map[string]string{
			"requestId":  types.FormatRequestID(e.RequestID),
			"statusText": e.StatusText,
			"location":   e.Location,
		},
	}
}

// EscrowStatusChanged is emitted when the owning registry moves an escrow
// through its lifecycle. Type is one of the escrow.* lifecycle constants.
type EscrowStatusChanged struct {
	Type        string
	EscrowRef   [32]byte
	AgreementID uint64
}

// EventType implements the Event interface.
func (e EscrowStatusChanged) EventType() string { return e.Type }

// Event converts the strongly typed event to the generic representation used by subscribers.
func (e EscrowStatusChanged) Event() *types.Event {
	return &types.Event{
		Type: e.Type,
		Attributes: map[string]string{
			"escrowRef":   types.FormatEscrowRef(e.EscrowRef),
			"agreementId": types.FormatAgreementID(e.AgreementID),
		},
	}
}

// EscrowTrackingRecorded is emitted for escrow-scope tracking entries.
type EscrowTrackingRecorded struct {
	EscrowRef  [32]byte
	Recorder   [20]byte
	StatusText string
	Location   string
	Index      uint64
}

// EventType implements the Event interface.
func (EscrowTrackingRecorded) EventType() string { return TypeEscrowTrackingRecorded }

// Event converts the strongly typed event to the generic representation used by subscribers.
func (e EscrowTrackingRecorded) Event() *types.Event {
	return &types.Event{
		Type: TypeEscrowTrackingRecorded,
		Attributes: map[string]string{
			"escrowRef":  types.FormatEscrowRef(e.EscrowRef),
			"recorder":   crypto.FormatAccount(e.Recorder),
			"statusText": e.StatusText,
			"location":   e.Location,
			"index":      strconv.FormatUint(e.Index, 10),
		},
	}
}
