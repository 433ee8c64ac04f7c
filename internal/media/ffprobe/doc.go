// Package ffprobe is the probe collaborator: a typed wrapper around
// ffprobe's JSON inspection output.
//
// Inspect executes ffprobe against a source file and parses the result into
// Stream and Format values. Helper methods pick the streams the pipeline
// cares about (first video, best audio by channel count, forced subtitles)
// and normalize the loosely typed numeric fields ffprobe emits as strings.
package ffprobe
