// Package ffmpeg drives the ffmpeg binary: encode command construction,
// per-pass execution with captured logs, and crop detection sampling.
package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/sshoecraft/mmprocess/internal/logging"
	"github.com/sshoecraft/mmprocess/internal/services"
)

var commandContext = exec.CommandContext

// Runner executes ffmpeg invocations with all tool output teed into
// per-pass log files.
type Runner struct {
	binary string
	logger *slog.Logger
}

// NewRunner constructs a Runner for the given ffmpeg binary.
func NewRunner(binary string, logger *slog.Logger) *Runner {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{binary: binary, logger: logging.WithComponent(logger, "ffmpeg")}
}

// RunPass launches one encode invocation, writing the command line and all
// ffmpeg output to logPath. The log is truncated at the start of the pass
// and appended to until it ends.
func (r *Runner) RunPass(ctx context.Context, req Request, pass int, logPath string) error {
	args := BuildArgs(req, pass)

	logFile, err := os.Create(logPath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "encode", "create pass log", err)
	}
	defer logFile.Close()
	fmt.Fprintf(logFile, "Command: %s %s\n\n", r.binary, strings.Join(args, " "))

	r.logger.Debug("running ffmpeg",
		logging.Int(logging.FieldPass, pass),
		logging.String(logging.FieldPath, logPath))

	cmd := commandContext(ctx, r.binary, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Run(); err != nil {
		message := fmt.Sprintf("pass %d failed: %s", passNumber(pass), logTail(logPath))
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "encode", message, err)
	}
	return nil
}

func passNumber(pass int) int {
	if pass < 1 {
		return 1
	}
	return pass
}

// logTail returns the last few lines of a pass log, capped so wrapped
// errors stay readable.
func logTail(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > 20 {
		lines = lines[len(lines)-20:]
	}
	tail := strings.TrimSpace(strings.Join(lines, "\n"))
	if len(tail) > 500 {
		tail = tail[len(tail)-500:]
	}
	return tail
}
