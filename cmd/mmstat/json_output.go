package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/sshoecraft/mmprocess/internal/status"
)

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type activeJob struct {
	Name             string  `json:"name"`
	Pass             int     `json:"pass"`
	TotalPasses      int     `json:"total_passes"`
	Percent          float64 `json:"percent"`
	FPS              float64 `json:"fps"`
	Speed            float64 `json:"speed"`
	RemainingSeconds float64 `json:"remaining_seconds"`
	CurrentTime      float64 `json:"current_time"`
	Duration         float64 `json:"duration"`
}

func activeJSON(jobs []status.JobStatus) []activeJob {
	out := make([]activeJob, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, activeJob{
			Name:             job.Name,
			Pass:             job.Pass,
			TotalPasses:      job.TotalPasses,
			Percent:          job.Percent,
			FPS:              job.FPS,
			Speed:            job.Speed,
			RemainingSeconds: job.Remaining.Seconds(),
			CurrentTime:      job.CurrentTime,
			Duration:         job.Duration,
		})
	}
	return out
}
