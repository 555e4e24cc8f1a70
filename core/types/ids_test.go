package types

import "testing"

func TestIdentifierSpacesDoNotMix(t *testing.T) {
	if got := FormatRequestID(7); got != "REQ-7" {
		t.Fatalf("unexpected request id %q", got)
	}
	if got := FormatAgreementID(7); got != "AGR-7" {
		t.Fatalf("unexpected agreement id %q", got)
	}
	id, err := ParseRequestID("req-12")
	if err != nil || id != 12 {
		t.Fatalf("parse request id: %d %v", id, err)
	}
	if _, err := ParseRequestID("AGR-12"); err == nil {
		t.Fatalf("expected agreement id to be rejected as request id")
	}
	if _, err := ParseAgreementID("REQ-1"); err == nil {
		t.Fatalf("expected request id to be rejected as agreement id")
	}
	// Zero is well formed; the ledger answers it with NotFound.
	if id, err := ParseAgreementID("AGR-0"); err != nil || id != 0 {
		t.Fatalf("parse zero agreement id: %d %v", id, err)
	}
	if _, err := ParseRequestID("REQ-"); err == nil {
		t.Fatalf("expected missing number to be rejected")
	}
}

func TestEscrowRefRoundTrip(t *testing.T) {
	var ref [32]byte
	ref[0], ref[31] = 0xAB, 0x01
	parsed, err := ParseEscrowRef(FormatEscrowRef(ref))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != ref {
		t.Fatalf("round trip mismatch")
	}
	if _, err := ParseEscrowRef("0x1234"); err == nil {
		t.Fatalf("expected short reference to fail")
	}
}
