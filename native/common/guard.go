package common

import "errors"

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// Check is a pre-condition evaluated before a mutating operation touches state.
type Check func() error

// Guard runs the module pause check followed by each pre-condition in order and
// returns the first failure.
func Guard(p PauseView, module string, checks ...Check) error {
	if p != nil && module != "" && p.IsPaused(module) {
		return ErrModulePaused
	}
	for _, check := range checks {
		if check == nil {
			continue
		}
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// Pauses is a static PauseView keyed by module name.
type Pauses map[string]bool

// IsPaused implements PauseView.
func (p Pauses) IsPaused(module string) bool { return p[module] }
