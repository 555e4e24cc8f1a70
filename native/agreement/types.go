package agreement

import "fmt"

// Status is the forward-only lifecycle of a delivery agreement.
type Status uint8

const (
	StatusDraft Status = iota
	StatusDeployed
	StatusCompleted
)

var statusNames = [...]string{"Draft", "Deployed", "Completed"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// ContractTerm is one key/value clause of an agreement.
type ContractTerm struct {
	Key   string
	Value string
}

// Agreement binds a demander and a provider to one delivery request.
type Agreement struct {
	ID           uint64
	RequestID    uint64
	Demander     [20]byte
	Provider     [20]byte
	DemanderName string
	ProviderName string
	OnTimeReward string
	TardyPenalty string
	Status       Status
	// EscrowRef stays zero until the agreement is deployed.
	EscrowRef   [32]byte
	MetadataRef string
	Terms       []ContractTerm
	CreatedAt   uint64
	DeployedAt  uint64
}

// Clone returns a deep copy of the agreement.
func (a *Agreement) Clone() *Agreement {
	if a == nil {
		return nil
	}
	clone := *a
	clone.Terms = append([]ContractTerm(nil), a.Terms...)
	return &clone
}

// DraftInput carries the caller supplied drafting fields.
type DraftInput struct {
	RequestID    uint64
	Provider     [20]byte
	DemanderName string
	ProviderName string
	OnTimeReward string
	TardyPenalty string
	MetadataRef  string
	Terms        []ContractTerm
}
