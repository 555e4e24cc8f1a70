package genesis

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"supplynet/crypto"
	"supplynet/native/identity"
)

// Spec lists the participants pre-registered on an empty ledger.
type Spec struct {
	Participants []ParticipantSpec `yaml:"participants"`
}

// ParticipantSpec is one seeded registration.
type ParticipantSpec struct {
	Account      string       `yaml:"account"`
	OrgName      string       `yaml:"orgName"`
	Role         string       `yaml:"role"`
	ContactEmail string       `yaml:"contactEmail,omitempty"`
	Region       string       `yaml:"region,omitempty"`
	MetadataRef  string       `yaml:"metadataRef,omitempty"`
	Carrier      *CarrierSpec `yaml:"carrier,omitempty"`

	account [20]byte
	role    identity.Role
}

// CarrierSpec holds the profile attributes of a seeded carrier.
type CarrierSpec struct {
	VehicleType     string   `yaml:"vehicleType"`
	CoverageAreas   []string `yaml:"coverageAreas"`
	CapacityPerTrip uint64   `yaml:"capacityPerTrip"`
	BaseCharge      string   `yaml:"baseCharge"`
	LeadTimeHours   uint64   `yaml:"leadTimeHours"`
	CollateralPct   uint64   `yaml:"collateralPct"`

	baseCharge *uint256.Int
}

// LoadSpec reads and validates a YAML seed file.
func LoadSpec(path string) (*Spec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseSpec decodes and validates a YAML seed document.
func ParseSpec(raw []byte) (*Spec, error) {
	var spec Spec
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (s *Spec) validate() error {
	seen := make(map[[20]byte]struct{}, len(s.Participants))
	for i := range s.Participants {
		p := &s.Participants[i]
		account, err := crypto.ParseAccount(strings.TrimSpace(p.Account))
		if err != nil {
			return fmt.Errorf("participant[%d]: %w", i, err)
		}
		if _, dup := seen[account]; dup {
			return fmt.Errorf("participant[%d]: duplicate account %s", i, p.Account)
		}
		seen[account] = struct{}{}
		p.account = account

		role, err := identity.ParseRole(p.Role)
		if err != nil || !role.Valid() {
			return fmt.Errorf("participant[%d]: invalid role %q", i, p.Role)
		}
		p.role = role

		if strings.TrimSpace(p.OrgName) == "" {
			return fmt.Errorf("participant[%d]: orgName must be provided", i)
		}
		if p.Carrier != nil && role != identity.RoleCarrier {
			return fmt.Errorf("participant[%d]: carrier profile given for role %s", i, role)
		}
		if p.Carrier != nil {
			amount, err := parseAmount(p.Carrier.BaseCharge)
			if err != nil {
				return fmt.Errorf("participant[%d]: baseCharge: %w", i, err)
			}
			p.Carrier.baseCharge = amount
		}
	}
	return nil
}

func parseAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return new(uint256.Int), nil
	}
	return uint256.FromDecimal(trimmed)
}

// Input converts the seeded participant into registration arguments.
func (p *ParticipantSpec) Input() ([20]byte, identity.RegistrationInput, []string) {
	input := identity.RegistrationInput{
		OrgName:      p.OrgName,
		Role:         p.role,
		ContactEmail: p.ContactEmail,
		Region:       p.Region,
		MetadataRef:  p.MetadataRef,
	}
	var coverage []string
	if p.Carrier != nil {
		input.VehicleType = p.Carrier.VehicleType
		input.CapacityPerTrip = p.Carrier.CapacityPerTrip
		input.BaseCharge = p.Carrier.baseCharge
		input.LeadTimeHours = p.Carrier.LeadTimeHours
		input.CollateralPct = p.Carrier.CollateralPct
		coverage = append(coverage, p.Carrier.CoverageAreas...)
	}
	return p.account, input, coverage
}
