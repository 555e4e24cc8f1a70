package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// DefaultEnv holds the registry keystore passphrase for non-interactive runs.
const DefaultEnv = "SUPPLYNET_REGISTRY_PASS"

// Source resolves the registry keystore passphrase from an environment
// variable or a terminal prompt. The first result, success or failure, is
// cached.
type Source struct {
	envVar  string
	confirm bool

	lookupEnv  func(string) (string, bool)
	isTerminal func() bool
	readSecret func() (string, error)
	prompt     io.Writer

	once  sync.Once
	value string
	err   error
}

// NewSource checks envVar before prompting on the terminal.
func NewSource(envVar string) *Source {
	return &Source{
		envVar:     strings.TrimSpace(envVar),
		lookupEnv:  os.LookupEnv,
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		readSecret: readTerminal,
		prompt:     os.Stderr,
	}
}

// NewConfirmingSource behaves like NewSource but asks for the passphrase twice
// when prompting. Used when a new keystore is written.
func NewConfirmingSource(envVar string) *Source {
	s := NewSource(envVar)
	s.confirm = true
	return s
}

func readTerminal() (string, error) {
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	return string(raw), err
}

// Get returns the cached passphrase, resolving it on the first call.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := s.lookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	if !s.isTerminal() {
		if s.envVar != "" {
			return "", fmt.Errorf("registry keystore passphrase required; set %s or run interactively", s.envVar)
		}
		return "", errors.New("registry keystore passphrase required and no terminal available")
	}

	first, err := s.ask("Enter registry keystore passphrase: ")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(first) == "" {
		return "", errors.New("registry keystore passphrase cannot be empty")
	}
	if s.confirm {
		second, err := s.ask("Repeat passphrase: ")
		if err != nil {
			return "", err
		}
		if second != first {
			return "", errors.New("passphrases do not match")
		}
	}
	return first, nil
}

func (s *Source) ask(label string) (string, error) {
	fmt.Fprint(s.prompt, label)
	value, err := s.readSecret()
	fmt.Fprintln(s.prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return value, nil
}
