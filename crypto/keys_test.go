package crypto

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestAccountRoundTrip(t *testing.T) {
	var account [20]byte
	for i := range account {
		account[i] = byte(i + 1)
	}
	encoded := FormatAccount(account)
	if !strings.HasPrefix(encoded, "sup1") {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	decoded, err := ParseAccount(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if decoded != account {
		t.Fatalf("round trip mismatch")
	}
}

func TestParseAccountRejectsForeignPrefix(t *testing.T) {
	var account [20]byte
	foreign := NewAddress("tst", account[:]).String()
	if _, err := ParseAccount(foreign); err == nil {
		t.Fatalf("expected foreign prefix to be rejected")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "registry.key")
	if err := SaveToKeystoreWithStrength(path, key, "pass", LightStrength); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := LoadFromKeystore(path, "pass")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.PubKey().Address().String() != key.PubKey().Address().String() {
		t.Fatalf("loaded key does not match")
	}
}
