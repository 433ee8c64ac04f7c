// Package supervisor maintains a target number of detached worker
// processes on this host. Each worker occupies a numbered slot backed by
// a pid file under dirs.run; reconciliation tops the fleet up to the
// desired count, also honoring workers started outside any slot.
package supervisor

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/sshoecraft/mmprocess/internal/config"
	"github.com/sshoecraft/mmprocess/internal/logging"
	"github.com/sshoecraft/mmprocess/internal/services"
)

// supervisorName excludes our own process tree from the worker count.
const supervisorName = "mmrun"

// reconcileLockName is the flock under dirs.run that keeps concurrent
// reconcile runs from launching into the same slots.
const reconcileLockName = "reconcile.lock"

// noiseCommands are tools whose argument lists may mention the worker
// binary without being a worker.
var noiseCommands = []string{"vim", "nano", "grep", "pgrep", "less", "cat", "tail"}

// Slot describes one managed worker slot. Stale marks a slot whose pid
// file names a process that is no longer a live worker; reconciliation
// removes such files, read-only inspection only reports them.
type Slot struct {
	Number int
	PID    int // 0 when free or stale
	Stale  bool
}

// Snapshot is the supervisor's view of the fleet before any launches.
type Snapshot struct {
	Desired    int
	SystemWide int
	Slots      []Slot
}

// Running counts the slots holding a live worker.
func (s Snapshot) Running() int {
	count := 0
	for _, slot := range s.Slots {
		if slot.PID != 0 {
			count++
		}
	}
	return count
}

// ReconcileResult reports the observed state and the slots launched to
// reach the desired count.
type ReconcileResult struct {
	Snapshot Snapshot
	Started  []Slot
}

// process pairs a pid with its command line for worker counting.
type process struct {
	pid     int
	cmdline string
}

// Supervisor reconciles the worker fleet. Process liveness, the system
// process listing, and worker launching are held as function fields so
// tests can substitute them.
type Supervisor struct {
	cfg        *config.Config
	configPath string
	logger     *slog.Logger

	alive     func(pid int) bool
	processes func() ([]process, error)
	launch    func(slot int, logPath string) (int, error)
	hostname  func() (string, error)
}

// New builds a Supervisor. configPath, when non-empty, is forwarded to
// launched workers so the fleet shares one configuration file.
func New(cfg *config.Config, configPath string, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Supervisor{
		cfg:        cfg,
		configPath: configPath,
		logger:     logging.WithComponent(logger, "supervisor"),
		processes:  listProcesses,
		hostname:   os.Hostname,
	}
	s.alive = s.workerAlive
	s.launch = s.launchWorker
	return s
}

// PIDPath returns where the slot's pid file lives.
func (s *Supervisor) PIDPath(slot int) string {
	return filepath.Join(s.cfg.Dirs.Run, fmt.Sprintf("slot-%d.pid", slot))
}

// LogPath returns where the slot's worker log lives.
func (s *Supervisor) LogPath(slot int) string {
	host, err := s.hostname()
	if err != nil {
		host = "localhost"
	}
	return filepath.Join(s.cfg.Dirs.Logs, WorkerLogName(host, s.cfg.Supervisor.Instances, slot))
}

// WorkerLogName returns the slot's log file name: the short hostname,
// suffixed with the slot number when more than one instance runs.
func WorkerLogName(hostname string, instances, slot int) string {
	host, _, _ := strings.Cut(hostname, ".")
	if host == "" {
		host = "localhost"
	}
	if instances == 1 {
		return host + ".log"
	}
	return fmt.Sprintf("%s-%d.log", host, slot)
}

// Inspect reports slot and system state without modifying anything.
// Dead slots come back with Stale set and their pid files in place.
func (s *Supervisor) Inspect() (Snapshot, error) {
	slots, err := s.slotStatus(false)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Desired:    s.cfg.Supervisor.Instances,
		SystemWide: s.systemWideCount(),
		Slots:      slots,
	}, nil
}

// Reconcile removes stale pid files and launches workers into free slots
// until the host reaches the desired count. Workers running outside any
// slot still count toward the target, so reconciliation never oversubscribes
// a host that already carries enough load. A flock under dirs.run keeps
// reconciliation single-flight; a second caller gets a read-only snapshot
// and starts nothing.
func (s *Supervisor) Reconcile() (ReconcileResult, error) {
	if err := os.MkdirAll(s.cfg.Dirs.Run, 0o755); err != nil {
		return ReconcileResult{}, services.Wrap(services.ErrTransient, "supervisor", "run dir", s.cfg.Dirs.Run, err)
	}
	guard := flock.New(filepath.Join(s.cfg.Dirs.Run, reconcileLockName))
	locked, err := guard.TryLock()
	if err != nil {
		return ReconcileResult{}, services.Wrap(services.ErrTransient, "supervisor", "reconcile lock", guard.Path(), err)
	}
	if !locked {
		s.logger.Info("reconcile already in progress on this host")
		slots, err := s.slotStatus(false)
		if err != nil {
			return ReconcileResult{}, err
		}
		return ReconcileResult{Snapshot: Snapshot{
			Desired:    s.cfg.Supervisor.Instances,
			SystemWide: s.systemWideCount(),
			Slots:      slots,
		}}, nil
	}
	defer func() {
		if err := guard.Unlock(); err != nil {
			s.logger.Warn("reconcile lock release failed", logging.Error(err))
		}
	}()

	slots, err := s.slotStatus(true)
	if err != nil {
		return ReconcileResult{}, err
	}

	snapshot := Snapshot{
		Desired:    s.cfg.Supervisor.Instances,
		SystemWide: s.systemWideCount(),
		Slots:      slots,
	}
	result := ReconcileResult{Snapshot: snapshot}

	if snapshot.SystemWide >= snapshot.Desired {
		s.logger.Debug("host at capacity",
			logging.Int("system_wide", snapshot.SystemWide),
			logging.Int("desired", snapshot.Desired))
		return result, nil
	}

	var free []int
	for _, slot := range slots {
		if slot.PID == 0 {
			free = append(free, slot.Number)
		}
	}
	toStart := snapshot.Desired - snapshot.SystemWide
	if toStart > len(free) {
		toStart = len(free)
	}

	for _, number := range free[:toStart] {
		logPath := s.LogPath(number)
		pid, err := s.launch(number, logPath)
		if err != nil {
			return result, services.Wrap(services.ErrTransient, "supervisor", "launch",
				fmt.Sprintf("slot %d", number), err)
		}
		if err := s.writePID(number, pid); err != nil {
			return result, err
		}
		result.Started = append(result.Started, Slot{Number: number, PID: pid})
		s.logger.Info("worker started",
			logging.Int(logging.FieldSlot, number),
			logging.Int("pid", pid),
			logging.String(logging.FieldPath, logPath))
	}
	return result, nil
}

// slotStatus reads every slot's pid file. With clean set, pid files for
// dead or unreadable workers are removed so the slot can be reused.
func (s *Supervisor) slotStatus(clean bool) ([]Slot, error) {
	if clean {
		if err := os.MkdirAll(s.cfg.Dirs.Run, 0o755); err != nil {
			return nil, services.Wrap(services.ErrTransient, "supervisor", "run dir", s.cfg.Dirs.Run, err)
		}
	}

	slots := make([]Slot, 0, s.cfg.Supervisor.Instances)
	for number := 1; number <= s.cfg.Supervisor.Instances; number++ {
		slot := Slot{Number: number}
		path := s.PIDPath(number)
		data, err := os.ReadFile(path)
		if err == nil {
			pid, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
			if convErr == nil && pid > 0 && s.alive(pid) {
				slot.PID = pid
			} else if clean {
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					return nil, services.Wrap(services.ErrTransient, "supervisor", "stale pid file", path, err)
				}
				s.logger.Debug("stale pid file removed", logging.String(logging.FieldPath, path))
			} else {
				slot.Stale = true
			}
		} else if !os.IsNotExist(err) {
			return nil, services.Wrap(services.ErrTransient, "supervisor", "pid file", path, err)
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// systemWideCount counts worker processes on the host, slot-managed or
// not. A failed process listing counts as zero so reconciliation can
// still start workers.
func (s *Supervisor) systemWideCount() int {
	procs, err := s.processes()
	if err != nil {
		s.logger.Warn("process listing unavailable", logging.Error(err))
		return 0
	}

	worker := filepath.Base(s.cfg.Supervisor.Worker)
	self := os.Getpid()
	count := 0
	for _, proc := range procs {
		if proc.pid == self {
			continue
		}
		if !strings.Contains(proc.cmdline, worker) {
			continue
		}
		if strings.Contains(proc.cmdline, supervisorName) {
			continue
		}
		noisy := false
		for _, noise := range noiseCommands {
			if strings.Contains(proc.cmdline, noise) {
				noisy = true
				break
			}
		}
		if noisy {
			continue
		}
		count++
	}
	return count
}

func (s *Supervisor) writePID(slot, pid int) error {
	path := s.PIDPath(slot)
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "supervisor", "pid file", path, err)
	}
	return nil
}

// launchWorker starts a worker in its own session with output appended to
// the slot log, then releases it so it outlives the supervisor.
func (s *Supervisor) launchWorker(slot int, logPath string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return 0, err
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	defer logFile.Close()

	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return 0, err
	}
	defer devNull.Close()

	var args []string
	if s.configPath != "" {
		args = append(args, "-c", s.configPath)
	}
	cmd := exec.Command(s.cfg.Supervisor.Worker, args...)
	cmd.Stdin = devNull
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, err
	}
	return pid, nil
}

// workerAlive reports whether the pid is a live worker process. A pid
// that accepts signals but whose command line no longer mentions the
// worker binary counts as dead; a recycled pid must not hold a slot.
func (s *Supervisor) workerAlive(pid int) bool {
	if unix.Kill(pid, 0) != nil {
		return false
	}
	raw, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "cmdline"))
	if err != nil {
		// No procfs view of the process; the signal check stands.
		return true
	}
	cmdline := strings.ReplaceAll(string(raw), "\x00", " ")
	return strings.Contains(cmdline, filepath.Base(s.cfg.Supervisor.Worker))
}

// listProcesses reads pid and command line for every process in /proc.
func listProcesses() ([]process, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}
	procs := make([]process, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		pid, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		raw, err := os.ReadFile(filepath.Join("/proc", entry.Name(), "cmdline"))
		if err != nil || len(raw) == 0 {
			continue
		}
		procs = append(procs, process{
			pid:     pid,
			cmdline: strings.ReplaceAll(string(raw), "\x00", " "),
		})
	}
	return procs, nil
}
