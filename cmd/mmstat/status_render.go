package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/sshoecraft/mmprocess/internal/status"
)

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// displayName truncates long job names the way the classic monitor did.
func displayName(name string) string {
	if len(name) > 40 {
		return name[:37] + "..."
	}
	return name
}

func renderActiveTable(jobs []status.JobStatus) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			displayName(job.Name),
			fmt.Sprintf("%d/%d", job.Pass, job.TotalPasses),
			fmt.Sprintf("%.1f%%", job.Percent),
			status.FormatRemaining(job.Remaining),
			fmt.Sprintf("%.0ffps %.1fx", job.FPS, job.Speed),
		})
	}
	return renderTable(
		[]string{"NAME", "PASS", "PROGRESS", "REMAINING", "SPEED"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft, alignRight},
	)
}

// printActivePlain writes one line per job, matching the format
// long-standing wrapper scripts parse.
func printActivePlain(out io.Writer, jobs []status.JobStatus) {
	for _, job := range jobs {
		statusText := fmt.Sprintf("pass %d/%d %.1f%%", job.Pass, job.TotalPasses, job.Percent)
		speedInfo := fmt.Sprintf("%.0ffps %.1fx", job.FPS, job.Speed)
		fmt.Fprintf(out, "%-42s %-20s %-30s %s\n", displayName(job.Name), statusText, status.FormatRemaining(job.Remaining), speedInfo)
	}
}
