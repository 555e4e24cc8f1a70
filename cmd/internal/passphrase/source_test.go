package passphrase

import (
	"io"
	"strings"
	"testing"
)

func testSource(env map[string]string, terminal bool, answers ...string) *Source {
	s := NewSource("TEST_PASS")
	s.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	s.isTerminal = func() bool { return terminal }
	s.readSecret = func() (string, error) {
		if len(answers) == 0 {
			return "", io.EOF
		}
		next := answers[0]
		answers = answers[1:]
		return next, nil
	}
	s.prompt = io.Discard
	return s
}

func TestSourcePrefersEnvironment(t *testing.T) {
	s := testSource(map[string]string{"TEST_PASS": "from-env"}, true, "typed")
	got, err := s.Get()
	if err != nil || got != "from-env" {
		t.Fatalf("expected env passphrase, got %q %v", got, err)
	}
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	s := testSource(map[string]string{"TEST_PASS": "  "}, true)
	if _, err := s.Get(); err == nil || !strings.Contains(err.Error(), "TEST_PASS") {
		t.Fatalf("expected empty env error, got %v", err)
	}
}

func TestSourceRequiresTerminal(t *testing.T) {
	s := testSource(nil, false)
	if _, err := s.Get(); err == nil {
		t.Fatalf("expected error without terminal")
	}
}

func TestSourcePromptsAndCaches(t *testing.T) {
	s := testSource(nil, true, "secret", "other")
	for i := 0; i < 2; i++ {
		got, err := s.Get()
		if err != nil || got != "secret" {
			t.Fatalf("call %d: expected cached passphrase, got %q %v", i, got, err)
		}
	}
}

func TestConfirmingSourceDetectsMismatch(t *testing.T) {
	s := testSource(nil, true, "secret", "secreT")
	s.confirm = true
	if _, err := s.Get(); err == nil || !strings.Contains(err.Error(), "do not match") {
		t.Fatalf("expected mismatch error, got %v", err)
	}

	ok := testSource(nil, true, "secret", "secret")
	ok.confirm = true
	if got, err := ok.Get(); err != nil || got != "secret" {
		t.Fatalf("expected confirmed passphrase, got %q %v", got, err)
	}
}
