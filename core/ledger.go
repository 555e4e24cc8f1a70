package core

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"supplynet/core/events"
	"supplynet/core/state"
	"supplynet/native/agreement"
	"supplynet/native/common"
	"supplynet/native/escrow"
	"supplynet/native/identity"
	"supplynet/native/matching"
	"supplynet/native/requests"
	"supplynet/native/tracking"
)

// Observer receives the outcome of every ledger operation. The observability
// package implements it with prometheus collectors.
type Observer interface {
	ObserveOperation(operation string, err error, duration time.Duration)
}

// Ledger is the single authoritative store of registry state. Every mutation
// runs in its own bolt write transaction under writeMu; notifications raised
// during the transaction are buffered and emitted after commit, so subscribers
// observe them in commit order and never see events for rolled back writes.
type Ledger struct {
	state    *state.Manager
	writeMu  sync.Mutex
	registry [20]byte
	emitter  events.Emitter
	pauses   common.PauseView
	nowFn    func() int64
	logger   *slog.Logger
	observer Observer
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithEmitter routes committed notifications to emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(l *Ledger) {
		if emitter != nil {
			l.emitter = emitter
		}
	}
}

// WithPauses installs the module pause view consulted by every write.
func WithPauses(p common.PauseView) Option {
	return func(l *Ledger) { l.pauses = p }
}

// WithNowFunc overrides the clock used for record timestamps.
func WithNowFunc(now func() int64) Option {
	return func(l *Ledger) {
		if now != nil {
			l.nowFn = now
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithObserver installs an operation observer.
func WithObserver(observer Observer) Option {
	return func(l *Ledger) { l.observer = observer }
}

// NewLedger binds a ledger to the state manager. registry is the account that
// owns every escrow instance the ledger spawns.
func NewLedger(manager *state.Manager, registry [20]byte, opts ...Option) (*Ledger, error) {
	if manager == nil {
		return nil, fmt.Errorf("ledger: state manager required")
	}
	l := &Ledger{
		state:    manager,
		registry: registry,
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	l.logger = l.logger.With(slog.String("component", "ledger"))
	return l, nil
}

// Registry returns the escrow-owning registry account.
func (l *Ledger) Registry() [20]byte { return l.registry }

type modules struct {
	identity   *identity.Registry
	requests   *requests.Ledger
	matcher    *matching.Matcher
	agreements *agreement.Engine
	escrows    *escrow.Engine
}

func (l *Ledger) modules(tx *state.Tx, emitter events.Emitter) *modules {
	reg := identity.NewRegistry(tx)
	reg.SetEmitter(emitter)
	reg.SetPauses(l.pauses)
	reg.SetNowFunc(l.nowFn)

	reqs := requests.NewLedger(tx, reg)
	reqs.SetEmitter(emitter)
	reqs.SetPauses(l.pauses)
	reqs.SetNowFunc(l.nowFn)

	esc := escrow.NewEngine(tx, l.registry)
	esc.SetEmitter(emitter)
	esc.SetPauses(l.pauses)
	esc.SetNowFunc(l.nowFn)

	agr := agreement.NewEngine(tx, reqs, reg, esc)
	agr.SetEmitter(emitter)
	agr.SetPauses(l.pauses)
	agr.SetNowFunc(l.nowFn)

	return &modules{
		identity:   reg,
		requests:   reqs,
		matcher:    matching.NewMatcher(reqs, reg),
		agreements: agr,
		escrows:    esc,
	}
}

func (l *Ledger) write(operation string, fn func(*modules) error) error {
	start := time.Now()
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	buffer := &events.Buffer{}
	err := l.state.Update(func(tx *state.Tx) error {
		return fn(l.modules(tx, buffer))
	})
	l.observe(operation, err, start)
	if err != nil {
		buffer.Drain()
		l.logger.Debug("ledger operation rejected",
			slog.String("operation", operation),
			slog.Any("error", err))
		return err
	}
	pending := buffer.Drain()
	for _, evt := range pending {
		l.emitter.Emit(evt)
	}
	l.logger.Debug("ledger operation committed",
		slog.String("operation", operation),
		slog.Int("events", len(pending)))
	return nil
}

func (l *Ledger) read(operation string, fn func(*modules) error) error {
	start := time.Now()
	err := l.state.View(func(tx *state.Tx) error {
		return fn(l.modules(tx, events.NoopEmitter{}))
	})
	l.observe(operation, err, start)
	return err
}

func (l *Ledger) observe(operation string, err error, start time.Time) {
	if l.observer != nil {
		l.observer.ObserveOperation(operation, err, time.Since(start))
	}
}

// Register records the caller's identity.
func (l *Ledger) Register(caller [20]byte, input identity.RegistrationInput, coverageAreas []string) (*identity.Participant, error) {
	var out *identity.Participant
	err := l.write("register", func(m *modules) error {
		var err error
		out, err = m.identity.Register(caller, input, coverageAreas)
		return err
	})
	return out, err
}

// CreateDeliveryRequest posts a new open request and returns its identifier.
func (l *Ledger) CreateDeliveryRequest(caller [20]byte, input requests.CreateInput) (uint64, error) {
	var id uint64
	err := l.write("create_delivery_request", func(m *modules) error {
		var err error
		id, err = m.requests.Create(caller, input)
		return err
	})
	return id, err
}

// DraftContract drafts an agreement between the requester and a provider.
func (l *Ledger) DraftContract(caller [20]byte, input agreement.DraftInput) (*agreement.Agreement, error) {
	var out *agreement.Agreement
	err := l.write("draft_contract", func(m *modules) error {
		var err error
		out, err = m.agreements.Draft(caller, input)
		return err
	})
	return out, err
}

// DeployContract deploys a Draft agreement and spawns its escrow instance.
func (l *Ledger) DeployContract(caller [20]byte, agreementID uint64) (*agreement.Agreement, error) {
	var out *agreement.Agreement
	err := l.write("deploy_contract", func(m *modules) error {
		var err error
		out, err = m.agreements.Deploy(caller, agreementID)
		return err
	})
	return out, err
}

// LogTrackingEvent appends to a request's tracking history.
func (l *Ledger) LogTrackingEvent(caller [20]byte, requestID uint64, statusText, location string) (tracking.Event, error) {
	var out tracking.Event
	err := l.write("log_tracking_event", func(m *modules) error {
		var err error
		out, err = m.requests.LogTracking(caller, requestID, statusText, location)
		return err
	})
	return out, err
}

// RecordTrackingEvent appends to an escrow's own tracking history.
func (l *Ledger) RecordTrackingEvent(caller [20]byte, ref [32]byte, statusText, location string) (tracking.Event, error) {
	var out tracking.Event
	err := l.write("record_tracking_event", func(m *modules) error {
		var err error
		out, err = m.escrows.RecordTracking(caller, ref, statusText, location)
		return err
	})
	return out, err
}

// ActivateEscrow moves an escrow from Draft to Active.
func (l *Ledger) ActivateEscrow(caller [20]byte, ref [32]byte) (*escrow.Instance, error) {
	var out *escrow.Instance
	err := l.write("activate_escrow", func(m *modules) error {
		var err error
		out, err = m.escrows.Activate(caller, ref)
		return err
	})
	return out, err
}

// CompleteEscrow moves an escrow from Active to Completed and completes the
// owning agreement in the same transaction.
func (l *Ledger) CompleteEscrow(caller [20]byte, ref [32]byte) (*escrow.Instance, error) {
	var out *escrow.Instance
	err := l.write("complete_escrow", func(m *modules) error {
		var err error
		out, err = m.escrows.Complete(caller, ref)
		if err != nil {
			return err
		}
		_, err = m.agreements.MarkCompleted(out.AgreementID)
		return err
	})
	return out, err
}

// CancelEscrow voids a Draft or Active escrow.
func (l *Ledger) CancelEscrow(caller [20]byte, ref [32]byte) (*escrow.Instance, error) {
	var out *escrow.Instance
	err := l.write("cancel_escrow", func(m *modules) error {
		var err error
		out, err = m.escrows.Cancel(caller, ref)
		return err
	})
	return out, err
}

// Participant returns the identity registered for account. Unknown accounts
// yield zero values.
func (l *Ledger) Participant(account [20]byte) (identity.Participant, *identity.CarrierProfile, error) {
	var (
		participant identity.Participant
		profile     *identity.CarrierProfile
	)
	err := l.read("participant", func(m *modules) error {
		var err error
		participant, profile, err = m.identity.Participant(account)
		return err
	})
	return participant, profile, err
}

// Carriers lists carrier accounts in registration order.
func (l *Ledger) Carriers() ([][20]byte, error) {
	var out [][20]byte
	err := l.read("carriers", func(m *modules) error {
		var err error
		out, err = m.identity.Carriers()
		return err
	})
	return out, err
}

// Participants lists every registered account in registration order.
func (l *Ledger) Participants() ([][20]byte, error) {
	var out [][20]byte
	err := l.read("participants", func(m *modules) error {
		var err error
		out, err = m.identity.Participants()
		return err
	})
	return out, err
}

// DeliveryRequest returns the request with the supplied identifier.
func (l *Ledger) DeliveryRequest(id uint64) (*requests.DeliveryRequest, error) {
	var out *requests.DeliveryRequest
	err := l.read("delivery_request", func(m *modules) error {
		var err error
		out, err = m.requests.Get(id)
		return err
	})
	return out, err
}

// RequestCount returns the number of requests created so far.
func (l *Ledger) RequestCount() (uint64, error) {
	var out uint64
	err := l.read("request_count", func(m *modules) error {
		var err error
		out, err = m.requests.Count()
		return err
	})
	return out, err
}

// FindMatches scores every registered carrier against an open request.
func (l *Ledger) FindMatches(requestID uint64) ([]matching.Candidate, error) {
	var out []matching.Candidate
	err := l.read("find_matches", func(m *modules) error {
		var err error
		out, err = m.matcher.FindMatches(requestID)
		return err
	})
	return out, err
}

// Agreement returns the agreement with its terms.
func (l *Ledger) Agreement(id uint64) (*agreement.Agreement, error) {
	var out *agreement.Agreement
	err := l.read("agreement", func(m *modules) error {
		var err error
		out, err = m.agreements.Get(id)
		return err
	})
	return out, err
}

// AgreementCount returns the number of agreements drafted so far.
func (l *Ledger) AgreementCount() (uint64, error) {
	var out uint64
	err := l.read("agreement_count", func(m *modules) error {
		var err error
		out, err = m.agreements.Count()
		return err
	})
	return out, err
}

// RequestTracking returns a request's tracking history in append order.
func (l *Ledger) RequestTracking(requestID uint64) ([]tracking.Event, error) {
	var out []tracking.Event
	err := l.read("request_tracking", func(m *modules) error {
		var err error
		out, err = m.requests.Tracking(requestID)
		return err
	})
	return out, err
}

// Escrow returns the escrow instance stored under ref.
func (l *Ledger) Escrow(ref [32]byte) (*escrow.Instance, error) {
	var out *escrow.Instance
	err := l.read("escrow", func(m *modules) error {
		var err error
		out, err = m.escrows.Get(ref)
		return err
	})
	return out, err
}

// EscrowTracking returns an escrow's tracking history in append order.
func (l *Ledger) EscrowTracking(ref [32]byte) ([]tracking.Event, error) {
	var out []tracking.Event
	err := l.read("escrow_tracking", func(m *modules) error {
		var err error
		out, err = m.escrows.Tracking(ref)
		return err
	})
	return out, err
}
