package jobstate

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sshoecraft/mmprocess/internal/fileutil"
	"github.com/sshoecraft/mmprocess/internal/services"
)

// StateFileName is the job record's filename inside each job directory.
const StateFileName = "state.json"

// Path returns the state file location for a job directory.
func Path(jobDir string) string {
	return filepath.Join(jobDir, StateFileName)
}

// Exists reports whether jobDir carries a state file.
func Exists(jobDir string) bool {
	info, err := os.Stat(Path(jobDir))
	return err == nil && !info.IsDir()
}

// Load reads and validates the job record from jobDir. A missing file is
// reported as a not-found error; anything unreadable or structurally invalid
// is corrupt state, which callers treat as fatal for the job.
func Load(jobDir string) (*Job, error) {
	data, err := os.ReadFile(Path(jobDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "jobstate", "load", jobDir, err)
		}
		return nil, services.Wrap(services.ErrCorruptState, "jobstate", "load", jobDir, err)
	}

	job := &Job{}
	if err := json.Unmarshal(data, job); err != nil {
		return nil, services.Wrap(services.ErrCorruptState, "jobstate", "parse", jobDir, err)
	}
	if err := job.validate(); err != nil {
		return nil, services.Wrap(services.ErrCorruptState, "jobstate", "validate", jobDir, err)
	}
	return job, nil
}

// Save writes the job record atomically so a crash mid-write leaves the
// previous state intact. The updated timestamp is refreshed on every save.
func Save(jobDir string, job *Job) error {
	job.Updated = time.Now().UTC()
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrCorruptState, "jobstate", "marshal", jobDir, err)
	}
	data = append(data, '\n')
	if err := fileutil.WriteFileAtomic(Path(jobDir), data, 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "jobstate", "save", jobDir, err)
	}
	return nil
}
