package workarea

import (
	"os"
	"path/filepath"
)

// StopFileName is the sentinel in the work area root. While it exists,
// workers finish their current step and exit instead of continuing.
const StopFileName = ".stop"

func (m *Manager) stopPath() string {
	return filepath.Join(m.cfg.Dirs.Work, StopFileName)
}

// StopRequested reports whether the stop sentinel is present.
func (m *Manager) StopRequested() bool {
	_, err := os.Stat(m.stopPath())
	return err == nil
}

// RequestStop creates the stop sentinel.
func (m *Manager) RequestStop() error {
	if err := os.MkdirAll(m.cfg.Dirs.Work, 0o755); err != nil {
		return err
	}
	return os.WriteFile(m.stopPath(), nil, 0o644)
}

// ClearStop removes the stop sentinel if present.
func (m *Manager) ClearStop() error {
	err := os.Remove(m.stopPath())
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
