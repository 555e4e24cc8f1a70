package agreement

import (
	"fmt"
	"strings"
	"time"

	coreerrors "supplynet/core/errors"
	"supplynet/core/events"
	"supplynet/native/common"
	"supplynet/native/escrow"
	"supplynet/native/identity"
	"supplynet/native/requests"
)

// ModuleName is the pause key for drafting and deployment.
const ModuleName = "agreements"

var agreementCounterKey = []byte("agreements/counter")

func agreementKey(id uint64) []byte {
	return []byte(fmt.Sprintf("agreements/record/%d", id))
}

type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Counter(key []byte) (uint64, error)
	NextCounter(key []byte) (uint64, error)
}

type requestSource interface {
	GetOpen(id uint64) (*requests.DeliveryRequest, error)
}

type participantSource interface {
	Participant(account [20]byte) (identity.Participant, *identity.CarrierProfile, error)
}

// EscrowFactory spawns the escrow instance owned by a deployed agreement.
type EscrowFactory interface {
	Instantiate(spec escrow.Spec) (*escrow.Instance, error)
}

// Engine drafts and deploys delivery agreements.
type Engine struct {
	store        storage
	requests     requestSource
	participants participantSource
	escrows      EscrowFactory
	emitter      events.Emitter
	pauses       common.PauseView
	nowFn        func() int64
}

// NewEngine wires the engine to its collaborators.
func NewEngine(store storage, reqs requestSource, participants participantSource, escrows EscrowFactory) *Engine {
	return &Engine{
		store:        store,
		requests:     reqs,
		participants: participants,
		escrows:      escrows,
		emitter:      events.NoopEmitter{},
		nowFn:        func() int64 { return time.Now().Unix() },
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

// Draft records a new Draft agreement for an open request. Only the request's
// requester may draft, and the provider must be an active participant.
func (e *Engine) Draft(caller [20]byte, input DraftInput) (*Agreement, error) {
	var (
		req      *requests.DeliveryRequest
		demander identity.Participant
		provider identity.Participant
	)
	err := common.Guard(e.pauses, ModuleName,
		func() error {
			var err error
			req, err = e.requests.GetOpen(input.RequestID)
			return err
		},
		func() error {
			if req.Requester != caller {
				return fmt.Errorf("%w: only the requester may draft an agreement", coreerrors.ErrUnauthorized)
			}
			var err error
			demander, _, err = e.participants.Participant(caller)
			return err
		},
		func() error {
			var err error
			provider, _, err = e.participants.Participant(input.Provider)
			if err != nil {
				return err
			}
			if !provider.Active {
				return fmt.Errorf("%w: %x", coreerrors.ErrUnknownProvider, input.Provider)
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	id, err := e.store.NextCounter(agreementCounterKey)
	if err != nil {
		return nil, err
	}
	agr := &Agreement{
		ID:           id,
		RequestID:    req.ID,
		Demander:     caller,
		Provider:     input.Provider,
		DemanderName: defaultName(input.DemanderName, demander.OrgName),
		ProviderName: defaultName(input.ProviderName, provider.OrgName),
		OnTimeReward: input.OnTimeReward,
		TardyPenalty: input.TardyPenalty,
		Status:       StatusDraft,
		MetadataRef:  input.MetadataRef,
		Terms:        append([]ContractTerm{}, input.Terms...),
		CreatedAt:    uint64(e.nowFn()),
	}
	if err := e.store.KVPut(agreementKey(id), agr); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.AgreementDrafted{AgreementID: id, RequestID: req.ID, Provider: input.Provider})
	return agr.Clone(), nil
}

func defaultName(supplied, registered string) string {
	if strings.TrimSpace(supplied) == "" {
		return registered
	}
	return supplied
}

// Get returns the agreement and its terms.
func (e *Engine) Get(id uint64) (*Agreement, error) {
	agr := new(Agreement)
	ok, err := e.store.KVGet(agreementKey(id), agr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: agreement %d", coreerrors.ErrNotFound, id)
	}
	if agr.Terms == nil {
		agr.Terms = []ContractTerm{}
	}
	return agr, nil
}

// Count returns the number of agreements drafted so far.
func (e *Engine) Count() (uint64, error) {
	return e.store.Counter(agreementCounterKey)
}

// Deploy instantiates the agreement's escrow and marks it Deployed. A failed
// deployment leaves the agreement untouched.
func (e *Engine) Deploy(caller [20]byte, id uint64) (*Agreement, error) {
	var agr *Agreement
	err := common.Guard(e.pauses, ModuleName,
		func() error {
			var err error
			agr, err = e.Get(id)
			return err
		},
		func() error {
			if agr.Status != StatusDraft {
				return fmt.Errorf("%w: agreement %d is %s", coreerrors.ErrInvalidState, id, agr.Status)
			}
			return nil
		},
		func() error {
			if agr.Demander != caller {
				return fmt.Errorf("%w: only the demander may deploy", coreerrors.ErrUnauthorized)
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	inst, err := e.escrows.Instantiate(escrow.Spec{
		AgreementID: agr.ID,
		Demander:    agr.Demander,
		Provider:    agr.Provider,
		RequestID:   agr.RequestID,
		MetadataRef: agr.MetadataRef,
	})
	if err != nil {
		return nil, err
	}
	agr.EscrowRef = inst.Ref
	agr.Status = StatusDeployed
	agr.DeployedAt = uint64(e.nowFn())
	if err := e.store.KVPut(agreementKey(id), agr); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.AgreementDeployed{AgreementID: id, EscrowRef: inst.Ref})
	return agr.Clone(), nil
}

// MarkCompleted moves a Deployed agreement to Completed once its escrow has
// been completed by the registry.
func (e *Engine) MarkCompleted(id uint64) (*Agreement, error) {
	agr, err := e.Get(id)
	if err != nil {
		return nil, err
	}
	if agr.Status != StatusDeployed {
		return nil, fmt.Errorf("%w: agreement %d is %s", coreerrors.ErrInvalidState, id, agr.Status)
	}
	agr.Status = StatusCompleted
	if err := e.store.KVPut(agreementKey(id), agr); err != nil {
		return nil, err
	}
	return agr.Clone(), nil
}
