// Package jobstate persists the per-job record that makes processing
// resumable.
//
// Each job directory carries a state.json with the enabled/done flags for
// every pipeline step, the probed input metadata, and the encode target
// including multi-pass progress. Saves are atomic; loads distinguish a
// missing record from a corrupt one so callers can fail the job rather than
// silently restart it.
package jobstate
