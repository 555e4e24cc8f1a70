package escrow

import "fmt"

// Status represents the lifecycle of an escrow instance.
type Status uint8

const (
	// StatusDraft marks instances spawned by a deployment that the registry
	// has not activated yet.
	StatusDraft Status = iota
	// StatusActive marks instances whose delivery is underway.
	StatusActive
	// StatusCompleted marks instances the registry closed out successfully.
	StatusCompleted
	// StatusCancelled marks instances voided before completion. Their tracking
	// history is retained for auditability.
	StatusCancelled
)

var statusNames = [...]string{"Draft", "Active", "Completed", "Cancelled"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// Terminal reports whether no further lifecycle transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Instance is the sub-ledger owned by one deployed agreement. Ref, AgreementID,
// Demander, Provider, Registry and RequestID never change after instantiation.
type Instance struct {
	Ref         [32]byte
	AgreementID uint64
	Demander    [20]byte
	Provider    [20]byte
	Registry    [20]byte
	RequestID   uint64
	MetadataRef string
	Status      Status
	CreatedAt   uint64
	UpdatedAt   uint64
}

// Clone returns a copy of the instance.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}
	clone := *i
	return &clone
}

// IsParty reports whether account is the demander or provider of the escrow.
func (i *Instance) IsParty(account [20]byte) bool {
	return i != nil && (i.Demander == account || i.Provider == account)
}

// Spec describes the instance a deployment asks the factory to create.
type Spec struct {
	AgreementID uint64
	Demander    [20]byte
	Provider    [20]byte
	RequestID   uint64
	MetadataRef string
}
