package identity

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Role enumerates the supply-chain functions a participant can register as.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleSupplier
	RoleManufacturer
	RoleDepot
	RoleCarrier
	RoleDemander
)

var roleNames = [...]string{"Unknown", "Supplier", "Manufacturer", "Depot", "Carrier", "Demander"}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// Valid reports whether r names a concrete role. RoleUnknown is not valid for
// registration.
func (r Role) Valid() bool {
	return r > RoleUnknown && r <= RoleDemander
}

// ParseRole resolves a case-insensitive role name.
func ParseRole(name string) (Role, error) {
	trimmed := strings.TrimSpace(name)
	for i, candidate := range roleNames {
		if strings.EqualFold(candidate, trimmed) {
			return Role(i), nil
		}
	}
	return RoleUnknown, fmt.Errorf("unknown role %q", name)
}

// Participant is the registered identity of one account.
type Participant struct {
	Account      [20]byte
	OrgName      string
	Role         Role
	ContactEmail string
	Region       string
	MetadataRef  string
	Active       bool
	RegisteredAt uint64
}

// CarrierProfile extends a Carrier participant with fulfilment attributes.
type CarrierProfile struct {
	VehicleType string
	// CoverageAreas keeps the region names exactly as supplied, duplicates
	// included.
	CoverageAreas []string
	// CapacityPerTrip of zero means unconstrained.
	CapacityPerTrip uint64
	BaseCharge      *uint256.Int
	LeadTimeHours   uint64
	CollateralPct   uint64
}

// Covers reports whether region appears in the coverage areas (exact match).
func (p *CarrierProfile) Covers(region string) bool {
	if p == nil {
		return false
	}
	for _, area := range p.CoverageAreas {
		if area == region {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the profile.
func (p *CarrierProfile) Clone() *CarrierProfile {
	if p == nil {
		return nil
	}
	clone := *p
	clone.CoverageAreas = append([]string(nil), p.CoverageAreas...)
	if p.BaseCharge != nil {
		clone.BaseCharge = new(uint256.Int).Set(p.BaseCharge)
	} else {
		clone.BaseCharge = new(uint256.Int)
	}
	return &clone
}

// RegistrationInput carries the caller supplied registration fields. The
// carrier attributes are ignored unless Role is RoleCarrier.
type RegistrationInput struct {
	OrgName         string
	Role            Role
	ContactEmail    string
	Region          string
	MetadataRef     string
	VehicleType     string
	CapacityPerTrip uint64
	BaseCharge      *uint256.Int
	LeadTimeHours   uint64
	CollateralPct   uint64
}
