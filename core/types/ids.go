package types

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const (
	// RequestIDPrefix distinguishes delivery request identifiers at the API boundary.
	RequestIDPrefix = "REQ-"
	// AgreementIDPrefix distinguishes agreement identifiers at the API boundary.
	AgreementIDPrefix = "AGR-"
)

// FormatRequestID renders a request identifier for external collaborators.
func FormatRequestID(id uint64) string { return RequestIDPrefix + strconv.FormatUint(id, 10) }

// FormatAgreementID renders an agreement identifier for external collaborators.
func FormatAgreementID(id uint64) string { return AgreementIDPrefix + strconv.FormatUint(id, 10) }

// ParseRequestID parses a REQ-prefixed identifier. Agreement identifiers are
// rejected so the two id spaces never mix.
func ParseRequestID(raw string) (uint64, error) {
	return parsePrefixedID(raw, RequestIDPrefix)
}

// ParseAgreementID parses an AGR-prefixed identifier.
func ParseAgreementID(raw string) (uint64, error) {
	return parsePrefixedID(raw, AgreementIDPrefix)
}

func parsePrefixedID(raw, prefix string) (uint64, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if !strings.HasPrefix(trimmed, prefix) {
		return 0, fmt.Errorf("identifier %q must start with %s", raw, prefix)
	}
	id, err := strconv.ParseUint(trimmed[len(prefix):], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("identifier %q: %w", raw, err)
	}
	return id, nil
}

// FormatEscrowRef renders an escrow reference as 0x-prefixed hex.
func FormatEscrowRef(ref [32]byte) string { return "0x" + hex.EncodeToString(ref[:]) }

// ParseEscrowRef decodes a 0x-prefixed 32 byte escrow reference.
func ParseEscrowRef(raw string) ([32]byte, error) {
	var ref [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return ref, fmt.Errorf("escrow reference: %w", err)
	}
	if len(decoded) != len(ref) {
		return ref, fmt.Errorf("escrow reference must be %d bytes", len(ref))
	}
	copy(ref[:], decoded)
	return ref, nil
}
