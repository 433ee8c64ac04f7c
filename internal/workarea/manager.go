package workarea

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sshoecraft/mmprocess/internal/config"
	"github.com/sshoecraft/mmprocess/internal/fileutil"
	"github.com/sshoecraft/mmprocess/internal/jobstate"
	"github.com/sshoecraft/mmprocess/internal/joblock"
	"github.com/sshoecraft/mmprocess/internal/logging"
	"github.com/sshoecraft/mmprocess/internal/services"
)

// Outcome selects where Finalize moves a job directory.
type Outcome string

const (
	OutcomeDone  Outcome = "done"
	OutcomeError Outcome = "error"
)

// ErrExists reports that the finalize target already carries a directory
// with the job's name. The job stays in the work area.
var ErrExists = errors.New("finalize target exists")

var videoExtensions = map[string]struct{}{
	".avi": {}, ".flv": {}, ".m2ts": {}, ".m4v": {}, ".mkv": {}, ".mov": {},
	".mp4": {}, ".mpeg": {}, ".mpg": {}, ".ts": {}, ".vob": {}, ".webm": {}, ".wmv": {},
}

// Candidate is a pending source file plus the profile that will process it.
type Candidate struct {
	Path    string
	Profile string
}

// Manager owns the pending/work/done/error directory protocol.
type Manager struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New builds a work-area manager.
func New(cfg *config.Config, logger *slog.Logger) *Manager {
	return &Manager{cfg: cfg, logger: logging.WithComponent(logger, "workarea")}
}

// DiscoverPending lists claimable source files: loose video files in the
// pending directory under the default profile, plus files one level down in
// subdirectories named after an existing profile. Subdirectories without a
// matching profile are skipped.
func (m *Manager) DiscoverPending() ([]Candidate, error) {
	entries, err := os.ReadDir(m.cfg.Dirs.In)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrTransient, "workarea", "discover", m.cfg.Dirs.In, err)
	}

	var candidates []Candidate
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(m.cfg.Dirs.In, name)
		if !entry.IsDir() {
			if isVideoFile(name) {
				candidates = append(candidates, Candidate{Path: path, Profile: m.cfg.Encoding.DefaultProfile})
			}
			continue
		}
		if !m.cfg.ProfileExists(name) {
			m.logger.Debug("pending subdirectory has no matching profile",
				logging.String(logging.FieldPath, path))
			continue
		}
		subEntries, err := os.ReadDir(path)
		if err != nil {
			m.logger.Warn("pending subdirectory unreadable",
				logging.String(logging.FieldPath, path), logging.Error(err))
			continue
		}
		for _, sub := range subEntries {
			if sub.IsDir() || strings.HasPrefix(sub.Name(), ".") || !isVideoFile(sub.Name()) {
				continue
			}
			candidates = append(candidates, Candidate{Path: filepath.Join(path, sub.Name()), Profile: name})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Path < candidates[j].Path })
	return candidates, nil
}

// DiscoverInProgress lists job directories in the work area that carry a
// state file. Directories without one are leftovers from an interrupted
// claim; their source file is still pending and will be claimed again.
func (m *Manager) DiscoverInProgress() ([]string, error) {
	entries, err := os.ReadDir(m.cfg.Dirs.Work)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrTransient, "workarea", "discover", m.cfg.Dirs.Work, err)
	}

	var jobDirs []string
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		jobDir := filepath.Join(m.cfg.Dirs.Work, entry.Name())
		if jobstate.Exists(jobDir) {
			jobDirs = append(jobDirs, jobDir)
		}
	}
	sort.Strings(jobDirs)
	return jobDirs, nil
}

// Claim moves a pending source into its own work directory under a
// normalized name, bringing any same-named subtitle sidecar along. On
// failure the source stays in the pending area.
func (m *Manager) Claim(candidate Candidate) (string, error) {
	base := filepath.Base(candidate.Path)
	normalized := Normalize(base)
	jobDir := filepath.Join(m.cfg.Dirs.Work, JobName(base))

	if jobstate.Exists(jobDir) {
		return "", services.Wrap(services.ErrClaim, "workarea", "claim", fmt.Sprintf("job %s already in progress", filepath.Base(jobDir)), nil)
	}
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrClaim, "workarea", "claim", jobDir, err)
	}
	if err := fileutil.MoveFile(candidate.Path, filepath.Join(jobDir, normalized)); err != nil {
		return "", services.Wrap(services.ErrClaim, "workarea", "claim", candidate.Path, err)
	}

	m.claimSidecar(candidate.Path, jobDir, base)

	m.logger.Info("claimed job",
		logging.String(logging.FieldJob, filepath.Base(jobDir)),
		logging.String(logging.FieldProfile, candidate.Profile),
		logging.String(logging.FieldPath, candidate.Path))
	return jobDir, nil
}

// claimSidecar moves a matching .srt file beside the source, if present.
func (m *Manager) claimSidecar(sourcePath, jobDir, sourceBase string) {
	stem := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath))
	sidecar := stem + ".srt"
	if _, err := os.Stat(sidecar); err != nil {
		return
	}
	target := filepath.Join(jobDir, JobName(sourceBase)+".srt")
	if err := fileutil.MoveFile(sidecar, target); err != nil {
		m.logger.Warn("subtitle sidecar not moved",
			logging.String(logging.FieldPath, sidecar), logging.Error(err))
		return
	}
	m.logger.Debug("subtitle sidecar claimed", logging.String(logging.FieldPath, target))
}

// SourcePath returns the job's work file for a given job directory, derived
// from its state record.
func SourcePath(jobDir string, job *jobstate.Job) string {
	return filepath.Join(jobDir, filepath.Base(job.Input.Path))
}

// Finalize moves the whole job directory into the done or error area. An
// existing directory with the same name is never overwritten; the job stays
// put and the caller sees ErrExists.
func (m *Manager) Finalize(jobDir string, outcome Outcome) (string, error) {
	var root string
	switch outcome {
	case OutcomeDone:
		root = m.cfg.Dirs.Done
	case OutcomeError:
		root = m.cfg.Dirs.Error
	default:
		return "", fmt.Errorf("unknown outcome %q", outcome)
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", services.Wrap(services.ErrTransient, "workarea", "finalize", root, err)
	}

	target := filepath.Join(root, filepath.Base(jobDir))
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, target)
	}
	if err := os.Rename(jobDir, target); err != nil {
		return "", services.Wrap(services.ErrTransient, "workarea", "finalize", jobDir, err)
	}

	// The lock marker traveled with the directory; it means nothing once
	// the job leaves the work area.
	_ = os.Remove(joblock.Marker(target))

	m.logger.Info("job finalized",
		logging.String(logging.FieldJob, filepath.Base(jobDir)),
		logging.String("outcome", string(outcome)))
	return target, nil
}

// Requeue moves a directory from the error area back into the work area so
// it can be claimed again.
func (m *Manager) Requeue(name string) (string, error) {
	src := filepath.Join(m.cfg.Dirs.Error, name)
	if _, err := os.Stat(src); err != nil {
		return "", services.Wrap(services.ErrNotFound, "workarea", "requeue", name, err)
	}
	target := filepath.Join(m.cfg.Dirs.Work, name)
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, target)
	}
	if err := os.Rename(src, target); err != nil {
		return "", services.Wrap(services.ErrTransient, "workarea", "requeue", name, err)
	}
	m.logger.Info("job requeued", logging.String(logging.FieldJob, name))
	return target, nil
}

func isVideoFile(name string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}
