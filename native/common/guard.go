package common

import "errors"

var ErrModulePaused = errors.New("module paused")

// PauseView exposes the host protocol's pause switches. The billing engine
// consults it before every state-mutating operation so pool governance can
// halt billing without touching credit state.
type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
