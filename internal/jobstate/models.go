package jobstate

import (
	"fmt"
	"strings"
	"time"
)

// Step identifies one stage of the processing pipeline.
type Step string

const (
	StepProbe     Step = "probe"
	StepCrop      Step = "crop"
	StepCalculate Step = "calculate"
	StepEncode    Step = "encode"
	StepMux       Step = "mux"
	StepMove      Step = "move"
)

// Order is the fixed execution order of pipeline steps.
var Order = []Step{StepProbe, StepCrop, StepCalculate, StepEncode, StepMux, StepMove}

// Version is written into every new state file.
const Version = "2.0.0"

// Input captures what probing learned about the source file. The audio
// fields describe the stream probing selected for the encode, not
// necessarily the container's first track. AudioStream is that stream's
// global index (0 maps the first audio track); SubtitleStream is the
// subtitle-relative index of a forced subtitle to burn in, -1 when none.
type Input struct {
	Path           string  `json:"path"`
	Size           int64   `json:"size"`
	Format         string  `json:"format"`
	Duration       float64 `json:"duration"`
	VideoCodec     string  `json:"video_codec"`
	VideoWidth     int     `json:"video_width"`
	VideoHeight    int     `json:"video_height"`
	VideoFPS       float64 `json:"video_fps"`
	AudioCodec     string  `json:"audio_codec"`
	AudioChannels  int     `json:"audio_channels"`
	AudioBitrate   int     `json:"audio_bitrate"`
	AudioStream    int     `json:"audio_stream"`
	SubtitleStream int     `json:"subtitle_stream"`
}

// Output captures the encode target and multi-pass progress. Crop holds
// width, height, x, y in that order when crop detection found borders.
type Output struct {
	Path          string `json:"path"`
	Container     string `json:"container"`
	Tier          string `json:"tier,omitempty"`
	VideoCodec    string `json:"video_codec"`
	VideoWidth    int    `json:"video_width"`
	VideoHeight   int    `json:"video_height"`
	VideoBitrate  int    `json:"video_bitrate"`
	VideoCRF      int    `json:"video_crf"`
	AudioCodec    string `json:"audio_codec"`
	AudioChannels int    `json:"audio_channels"`
	AudioBitrate  int    `json:"audio_bitrate"`
	Crop          []int  `json:"crop,omitempty"`
	CurrentPass   int    `json:"current_pass"`
	TotalPasses   int    `json:"total_passes"`
}

// Job is the persistent record that makes a job resumable. Everything an
// instance needs to pick up where another left off lives here.
type Job struct {
	Version      string        `json:"version"`
	ProfileName  string        `json:"profile_name"`
	Created      time.Time     `json:"created"`
	Updated      time.Time     `json:"updated"`
	Error        string        `json:"error,omitempty"`
	FailedStep   Step          `json:"failed_step,omitempty"`
	StepsEnabled map[Step]bool `json:"steps_enabled"`
	StepsDone    map[Step]bool `json:"steps_done"`
	Input        Input         `json:"input"`
	Output       Output        `json:"output"`
}

// New builds a fresh job record for the given profile. Probing is always
// enabled regardless of the requested step set.
func New(profileName string, enabled map[Step]bool) *Job {
	now := time.Now().UTC()
	job := &Job{
		Version:      Version,
		ProfileName:  profileName,
		Created:      now,
		Updated:      now,
		StepsEnabled: make(map[Step]bool, len(Order)),
		StepsDone:    make(map[Step]bool, len(Order)),
	}
	for _, step := range Order {
		on := true
		if enabled != nil {
			on = enabled[step]
		}
		job.StepsEnabled[step] = on
		job.StepsDone[step] = false
	}
	job.StepsEnabled[StepProbe] = true
	job.Input.SubtitleStream = -1
	return job
}

// EnabledFromNames converts a profile's step list into an enabled map.
// An empty list enables every step.
func EnabledFromNames(names []string) (map[Step]bool, error) {
	enabled := make(map[Step]bool, len(Order))
	if len(names) == 0 {
		for _, step := range Order {
			enabled[step] = true
		}
		return enabled, nil
	}
	for _, step := range Order {
		enabled[step] = false
	}
	for _, name := range names {
		step := Step(strings.TrimSpace(name))
		if _, ok := enabled[step]; !ok {
			return nil, fmt.Errorf("unknown step %q", name)
		}
		enabled[step] = true
	}
	enabled[StepProbe] = true
	return enabled, nil
}

// IsEnabled reports whether the step participates in this job.
func (j *Job) IsEnabled(step Step) bool {
	return j.StepsEnabled[step]
}

// IsDone reports whether the step has completed.
func (j *Job) IsDone(step Step) bool {
	return j.StepsDone[step]
}

// MarkDone records step completion.
func (j *Job) MarkDone(step Step) {
	if j.StepsDone == nil {
		j.StepsDone = make(map[Step]bool, len(Order))
	}
	j.StepsDone[step] = true
}

// FirstPending returns the earliest enabled step that has not completed.
func (j *Job) FirstPending() (Step, bool) {
	for _, step := range Order {
		if j.IsEnabled(step) && !j.IsDone(step) {
			return step, true
		}
	}
	return "", false
}

// Terminal reports whether every enabled step has completed.
func (j *Job) Terminal() bool {
	_, pending := j.FirstPending()
	return !pending
}

// Reset clears completion flags, pass progress, and any recorded failure so
// the job runs again from the first step. The enabled set and probed input
// metadata are preserved.
func (j *Job) Reset() {
	for _, step := range Order {
		j.StepsDone[step] = false
	}
	j.Output.CurrentPass = 0
	j.Output.TotalPasses = 0
	j.Output.Crop = nil
	j.Output.Tier = ""
	j.Error = ""
	j.FailedStep = ""
	j.Updated = time.Now().UTC()
}

// RecordFailure stores the failing step and message on the job.
func (j *Job) RecordFailure(step Step, err error) {
	j.FailedStep = step
	if err != nil {
		j.Error = err.Error()
	}
}

func (j *Job) validate() error {
	if strings.TrimSpace(j.Version) == "" {
		return fmt.Errorf("missing version")
	}
	if j.StepsEnabled == nil || j.StepsDone == nil {
		return fmt.Errorf("missing step maps")
	}
	donePrefix := true
	for _, step := range Order {
		if !j.IsEnabled(step) {
			continue
		}
		if j.IsDone(step) && !donePrefix {
			return fmt.Errorf("step %s done after a pending step", step)
		}
		if !j.IsDone(step) {
			donePrefix = false
		}
	}
	if j.Output.TotalPasses < 0 || j.Output.CurrentPass < 0 {
		return fmt.Errorf("negative pass counters")
	}
	if j.Output.TotalPasses > 0 && j.Output.CurrentPass > j.Output.TotalPasses {
		return fmt.Errorf("current pass %d exceeds total %d", j.Output.CurrentPass, j.Output.TotalPasses)
	}
	return nil
}
