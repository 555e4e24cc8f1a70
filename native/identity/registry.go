package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	coreerrors "supplynet/core/errors"
	"supplynet/core/events"
	"supplynet/native/common"
)

// ModuleName is the pause key for identity writes.
const ModuleName = "identity"

// storage abstracts the subset of state manager functionality required by the
// identity store.
type storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value interface{}) (uint64, error)
	KVIterate(key []byte, decode func(index uint64, raw []byte) error) error
}

var (
	participantPrefix   = []byte("identity/participant/")
	carrierPrefix       = []byte("identity/carrier/")
	participantIndexKey = []byte("identity/index/participants")
	carrierIndexKey     = []byte("identity/index/carriers")
)

func participantKey(account [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", participantPrefix, account))
}

func carrierKey(account [20]byte) []byte {
	return []byte(fmt.Sprintf("%s%x", carrierPrefix, account))
}

// Registry stores participants and carrier profiles.
type Registry struct {
	store   storage
	emitter events.Emitter
	pauses  common.PauseView
	nowFn   func() int64
}

// NewRegistry constructs a registry bound to the provided storage backend.
func NewRegistry(store storage) *Registry {
	return &Registry{
		store:   store,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetPauses configures the module pause view consulted before writes.
func (r *Registry) SetPauses(p common.PauseView) { r.pauses = p }

// SetNowFunc overrides the wall clock used for registration timestamps.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

// Register records the caller's identity. Carrier registrations additionally
// store a CarrierProfile and join the carrier index used by the matcher.
func (r *Registry) Register(caller [20]byte, input RegistrationInput, coverageAreas []string) (*Participant, error) {
	orgName := strings.TrimSpace(input.OrgName)
	err := common.Guard(r.pauses, ModuleName,
		func() error {
			active, err := r.IsActive(caller)
			if err != nil {
				return err
			}
			if active {
				return coreerrors.ErrAlreadyRegistered
			}
			return nil
		},
		func() error {
			if orgName == "" {
				return fmt.Errorf("%w: organization name required", coreerrors.ErrInvalidInput)
			}
			if !input.Role.Valid() {
				return fmt.Errorf("%w: role %s not registrable", coreerrors.ErrInvalidInput, input.Role)
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	participant := &Participant{
		Account:      caller,
		OrgName:      orgName,
		Role:         input.Role,
		ContactEmail: strings.TrimSpace(input.ContactEmail),
		Region:       strings.TrimSpace(input.Region),
		MetadataRef:  strings.TrimSpace(input.MetadataRef),
		Active:       true,
		RegisteredAt: uint64(r.nowFn()),
	}
	if err := r.store.KVPut(participantKey(caller), participant); err != nil {
		return nil, err
	}
	if _, err := r.store.KVAppend(participantIndexKey, caller); err != nil {
		return nil, err
	}
	if participant.Role == RoleCarrier {
		profile := &CarrierProfile{
			VehicleType:     input.VehicleType,
			CoverageAreas:   append([]string{}, coverageAreas...),
			CapacityPerTrip: input.CapacityPerTrip,
			BaseCharge:      new(uint256.Int),
			LeadTimeHours:   input.LeadTimeHours,
			CollateralPct:   input.CollateralPct,
		}
		if input.BaseCharge != nil {
			profile.BaseCharge.Set(input.BaseCharge)
		}
		if err := r.store.KVPut(carrierKey(caller), profile); err != nil {
			return nil, err
		}
		if _, err := r.store.KVAppend(carrierIndexKey, caller); err != nil {
			return nil, err
		}
	}
	r.emitter.Emit(events.ParticipantRegistered{
		Account: caller,
		Role:    participant.Role.String(),
		OrgName: participant.OrgName,
	})
	return participant, nil
}

// Participant returns the participant and, for carriers, the carrier profile.
// Unknown accounts yield zero-valued records rather than an error.
func (r *Registry) Participant(account [20]byte) (Participant, *CarrierProfile, error) {
	var participant Participant
	ok, err := r.store.KVGet(participantKey(account), &participant)
	if err != nil {
		return Participant{}, nil, err
	}
	if !ok {
		return Participant{}, nil, nil
	}
	if participant.Role != RoleCarrier {
		return participant, nil, nil
	}
	profile := new(CarrierProfile)
	found, err := r.store.KVGet(carrierKey(account), profile)
	if err != nil {
		return Participant{}, nil, err
	}
	if !found {
		return participant, nil, nil
	}
	return participant, profile, nil
}

// IsActive reports whether account holds an active registration.
func (r *Registry) IsActive(account [20]byte) (bool, error) {
	participant, _, err := r.Participant(account)
	if err != nil {
		return false, err
	}
	return participant.Active, nil
}

// RoleOf returns the registered role of account, RoleUnknown when absent.
func (r *Registry) RoleOf(account [20]byte) (Role, error) {
	participant, _, err := r.Participant(account)
	if err != nil {
		return RoleUnknown, err
	}
	return participant.Role, nil
}

// Carriers lists carrier accounts in registration order.
func (r *Registry) Carriers() ([][20]byte, error) {
	return r.index(carrierIndexKey)
}

// Participants lists every registered account in registration order.
func (r *Registry) Participants() ([][20]byte, error) {
	return r.index(participantIndexKey)
}

func (r *Registry) index(key []byte) ([][20]byte, error) {
	var out [][20]byte
	err := r.store.KVIterate(key, func(_ uint64, raw []byte) error {
		var account [20]byte
		if err := rlp.DecodeBytes(raw, &account); err != nil {
			return err
		}
		out = append(out, account)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
