// Package status reports encode progress for active jobs by combining
// each job's state record with the tail of its current pass log.
package status

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sshoecraft/mmprocess/internal/config"
	"github.com/sshoecraft/mmprocess/internal/ffmpeg"
	"github.com/sshoecraft/mmprocess/internal/joblock"
	"github.com/sshoecraft/mmprocess/internal/jobstate"
	"github.com/sshoecraft/mmprocess/internal/logging"
	"github.com/sshoecraft/mmprocess/internal/services"
)

// Progress is the last state a transcode tool reported in its log.
type Progress struct {
	Frame int
	FPS   float64
	Time  float64 // seconds of media processed
	Speed float64 // realtime multiple
}

// JobStatus describes one active job for status output.
type JobStatus struct {
	Name        string
	Pass        int
	TotalPasses int
	Percent     float64
	FPS         float64
	Speed       float64
	Remaining   time.Duration
	CurrentTime float64
	Duration    float64
}

// Reporter collects active-job progress from the work area.
type Reporter struct {
	cfg    *config.Config
	logger *slog.Logger

	held func(jobDir string) bool
}

// New builds a Reporter over the configured work area.
func New(cfg *config.Config, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reporter{
		cfg:    cfg,
		logger: logging.WithComponent(logger, "status"),
		held:   joblock.Held,
	}
}

// Collect returns progress for every locked job whose pass log yields a
// progress line, sorted by job name. Jobs without a live lock, a state
// record, or readable progress are skipped.
func (r *Reporter) Collect() ([]JobStatus, error) {
	entries, err := os.ReadDir(r.cfg.Dirs.Work)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrTransient, "status", "scan", r.cfg.Dirs.Work, err)
	}

	var jobs []JobStatus
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		jobDir := filepath.Join(r.cfg.Dirs.Work, entry.Name())
		if status, ok := r.jobStatus(jobDir); ok {
			jobs = append(jobs, status)
		}
	}
	return jobs, nil
}

func (r *Reporter) jobStatus(jobDir string) (JobStatus, bool) {
	if !r.held(jobDir) {
		return JobStatus{}, false
	}
	job, err := jobstate.Load(jobDir)
	if err != nil {
		r.logger.Debug("state not readable",
			logging.String(logging.FieldJob, filepath.Base(jobDir)), logging.Error(err))
		return JobStatus{}, false
	}
	duration := job.Input.Duration
	if duration <= 0 {
		return JobStatus{}, false
	}

	pass, total, logPath, ok := activePass(jobDir, job)
	if !ok {
		return JobStatus{}, false
	}
	progress, ok := parseLogTail(logPath)
	if !ok {
		return JobStatus{}, false
	}

	remaining := 0.0
	if progress.Speed > 0 {
		remaining = (duration - progress.Time) / progress.Speed
		// The analysis pass has a full encode pass still ahead of it.
		if pass == 1 && total == 2 {
			remaining += duration / progress.Speed
		}
	}

	return JobStatus{
		Name:        filepath.Base(jobDir),
		Pass:        pass,
		TotalPasses: total,
		Percent:     progress.Time / duration * 100,
		FPS:         progress.FPS,
		Speed:       progress.Speed,
		Remaining:   time.Duration(remaining * float64(time.Second)),
		CurrentTime: progress.Time,
		Duration:    duration,
	}, true
}

// activePass locates the log for the running pass. The state record names
// the pass when the job carries pass progress; older jobs fall back to
// whichever log exists, including the encode.log a single-pass legacy
// system wrote.
func activePass(jobDir string, job *jobstate.Job) (int, int, string, bool) {
	total := job.Output.TotalPasses
	if total <= 0 {
		total = 2
	}
	if current := job.Output.CurrentPass; current > 0 {
		logPath := filepath.Join(jobDir, ffmpeg.PassLogName(current))
		if fileExists(logPath) {
			return current, total, logPath, true
		}
	}

	fallbacks := []struct {
		name        string
		pass, total int
	}{
		{"pass2.log", 2, 2},
		{"pass1.log", 1, 2},
		{"encode.log", 1, 1},
	}
	for _, fb := range fallbacks {
		path := filepath.Join(jobDir, fb.name)
		if fileExists(path) {
			return fb.pass, fb.total, path, true
		}
	}
	return 0, 0, "", false
}

var (
	// frame=12345 fps=130 q=25.0 size=N/A time=00:14:51.22 bitrate=N/A speed=5.4x
	encodeProgress = regexp.MustCompile(`frame=\s*(\d+)\s+fps=\s*([\d.]+)\s+.*time=(\d+:\d+:[\d.]+).*speed=\s*([\d.]+)x`)
	// size=  515840kB time=00:28:06.93 bitrate=2505.0kbits/s speed=13.9x
	copyProgress = regexp.MustCompile(`size=\s*\d+kB\s+time=(\d+:\d+:[\d.]+)\s+bitrate=[\d.]+kbits/s\s+speed=\s*([\d.]+)x`)
	// Pos:3669.9s  87992f (95%)  8.79fps Trem:   7min 1528mb  A-V:0.065 [2951:383]
	mencoderProgress = regexp.MustCompile(`Pos:\s*([\d.]+)s\s+(\d+)f\s+\((\d+)%\)\s+([\d.]+)fps`)

	clockTime = regexp.MustCompile(`(\d+):(\d+):(\d+\.?\d*)`)
)

// ParseProgress extracts the last progress line from log content. It
// understands ffmpeg's encode and stream-copy formats plus the mencoder
// format the previous system wrote.
func ParseProgress(content string) (Progress, bool) {
	// Progress updates arrive separated by carriage returns; turn them
	// into line breaks so a match never spans two updates.
	content = strings.ReplaceAll(content, "\r", "\n")
	if matches := encodeProgress.FindAllStringSubmatch(content, -1); len(matches) > 0 {
		m := matches[len(matches)-1]
		return Progress{
			Frame: atoi(m[1]),
			FPS:   atof(m[2]),
			Time:  parseClock(m[3]),
			Speed: atof(m[4]),
		}, true
	}
	if matches := copyProgress.FindAllStringSubmatch(content, -1); len(matches) > 0 {
		m := matches[len(matches)-1]
		return Progress{
			Time:  parseClock(m[1]),
			Speed: atof(m[2]),
		}, true
	}
	if matches := mencoderProgress.FindAllStringSubmatch(content, -1); len(matches) > 0 {
		m := matches[len(matches)-1]
		fps := atof(m[4])
		// mencoder never reports a realtime multiple; estimate one
		// against a 24fps source.
		speed := 1.0
		if fps > 0 {
			speed = fps / 24.0
		}
		return Progress{
			Frame: atoi(m[2]),
			FPS:   fps,
			Time:  atof(m[1]),
			Speed: speed,
		}, true
	}
	return Progress{}, false
}

func parseLogTail(path string) (Progress, bool) {
	content, err := tailContent(path)
	if err != nil {
		return Progress{}, false
	}
	return ParseProgress(content)
}

// tailContent reads the end of a log file, growing the window until it
// holds real content. ffmpeg rewrites progress with carriage returns and
// some filesystems pad with trailing NULs, so the useful line is near but
// not at the end.
func tailContent(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	size := info.Size()

	var raw []byte
	for _, window := range []int64{8 << 10, 32 << 10, 128 << 10, size} {
		offset := size - window
		if offset < 0 {
			offset = 0
		}
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return "", err
		}
		data, err := io.ReadAll(f)
		if err != nil {
			return "", err
		}
		raw = bytes.TrimRight(data, "\x00")
		if len(raw) > 100 {
			break
		}
	}
	return string(raw), nil
}

// parseClock converts ffmpeg's HH:MM:SS.ms form to seconds.
func parseClock(value string) float64 {
	m := clockTime.FindStringSubmatch(value)
	if m == nil {
		return 0
	}
	return float64(atoi(m[1]))*3600 + float64(atoi(m[2]))*60 + atof(m[3])
}

// FormatRemaining renders a duration the way operators read it in status
// output: "[1 Day, 2 Hours, 5 Mins]". Non-positive durations render empty.
func FormatRemaining(d time.Duration) string {
	seconds := int64(d / time.Second)
	if seconds <= 0 {
		return ""
	}
	days := seconds / 86400
	seconds -= days * 86400
	hours := seconds / 3600
	seconds -= hours * 3600
	mins := seconds / 60

	var parts []string
	if days > 0 {
		parts = append(parts, plural(days, "Day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "Hour"))
	}
	parts = append(parts, plural(mins, "Min"))
	return "[" + strings.Join(parts, ", ") + "]"
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

func atoi(value string) int {
	n, _ := strconv.Atoi(value)
	return n
}

func atof(value string) float64 {
	f, _ := strconv.ParseFloat(value, 64)
	return f
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
