package joblock

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/sshoecraft/mmprocess/internal/logging"
	"github.com/sshoecraft/mmprocess/internal/services"
)

// MarkerName is the lock file inside each job directory. The file's
// presence means nothing; only its flock state does. A crashed holder's
// lock is released by the OS with the process.
const MarkerName = "job.lock"

// ErrBusy reports that another instance holds the job. It is a routine
// coordination signal, not a failure.
var ErrBusy = errors.New("job locked by another instance")

// Owner is the diagnostic record the holder writes into the marker file.
type Owner struct {
	PID      int       `json:"pid"`
	Host     string    `json:"host"`
	RunID    string    `json:"run_id"`
	Acquired time.Time `json:"acquired"`
}

// Manager acquires per-job advisory locks for one worker invocation.
type Manager struct {
	logger *slog.Logger
	runID  string
}

// New builds a lock manager. runID identifies this invocation in the
// marker files it writes.
func New(logger *slog.Logger, runID string) *Manager {
	return &Manager{logger: logging.WithComponent(logger, "joblock"), runID: runID}
}

// Handle represents a held job lock.
type Handle struct {
	jobDir   string
	lock     *flock.Flock
	acquired time.Time
}

// Marker returns the lock file path for a job directory.
func Marker(jobDir string) string {
	return filepath.Join(jobDir, MarkerName)
}

// Acquire attempts a non-blocking exclusive lock on the job. A held lock
// returns ErrBusy immediately; it never waits.
func (m *Manager) Acquire(jobDir string) (*Handle, error) {
	marker := Marker(jobDir)
	lock := flock.New(marker)

	ok, err := lock.TryLock()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "joblock", "acquire", jobDir, err)
	}
	if !ok {
		return nil, ErrBusy
	}

	handle := &Handle{jobDir: jobDir, lock: lock, acquired: time.Now().UTC()}
	m.writeOwner(marker, handle.acquired)
	m.logger.Debug("lock acquired", logging.String(logging.FieldPath, jobDir))
	return handle, nil
}

func (m *Manager) writeOwner(marker string, acquired time.Time) {
	host, _ := os.Hostname()
	data, err := json.Marshal(Owner{
		PID:      os.Getpid(),
		Host:     host,
		RunID:    m.runID,
		Acquired: acquired,
	})
	if err != nil {
		return
	}
	// Diagnostics only. The flock is held on our descriptor, so rewriting
	// the marker contents cannot release it.
	if err := os.WriteFile(marker, append(data, '\n'), 0o644); err != nil {
		m.logger.Debug("owner record not written", logging.Error(err))
	}
}

// JobDir returns the directory this handle locks.
func (h *Handle) JobDir() string {
	return h.jobDir
}

// Release unlocks the job and removes the marker file on a best-effort
// basis. The unlock itself is what frees the job for other instances.
func (h *Handle) Release() error {
	if h == nil || h.lock == nil {
		return nil
	}
	err := h.lock.Unlock()
	h.lock = nil
	_ = os.Remove(Marker(h.jobDir))
	return err
}

// Held reports whether some instance currently holds the job's lock. It
// probes with a momentary shared lock, which cannot block or displace a
// writer; a missing marker means no holder without touching the directory.
func Held(jobDir string) bool {
	marker := Marker(jobDir)
	if _, err := os.Stat(marker); err != nil {
		return false
	}
	lock := flock.New(marker)
	ok, err := lock.TryRLock()
	if err != nil {
		return false
	}
	if !ok {
		return true
	}
	_ = lock.Unlock()
	return false
}

// ReadOwner returns the diagnostic owner record from a job's marker file.
func ReadOwner(jobDir string) (*Owner, error) {
	data, err := os.ReadFile(Marker(jobDir))
	if err != nil {
		return nil, err
	}
	owner := &Owner{}
	if err := json.Unmarshal(data, owner); err != nil {
		return nil, err
	}
	return owner, nil
}
