package genesis

import (
	"fmt"

	"supplynet/native/identity"
)

// Registrar is the ledger surface the seed is applied through.
type Registrar interface {
	Participants() ([][20]byte, error)
	Register(caller [20]byte, input identity.RegistrationInput, coverageAreas []string) (*identity.Participant, error)
}

// Apply registers every seeded participant, in file order, when the ledger has
// no participants yet. It reports whether the seed was applied.
func Apply(ledger Registrar, spec *Spec) (bool, error) {
	if ledger == nil {
		return false, fmt.Errorf("genesis: ledger must not be nil")
	}
	if spec == nil || len(spec.Participants) == 0 {
		return false, nil
	}
	existing, err := ledger.Participants()
	if err != nil {
		return false, err
	}
	if len(existing) > 0 {
		return false, nil
	}
	for i := range spec.Participants {
		account, input, coverage := spec.Participants[i].Input()
		if _, err := ledger.Register(account, input, coverage); err != nil {
			return false, fmt.Errorf("genesis: participant[%d]: %w", i, err)
		}
	}
	return true, nil
}
