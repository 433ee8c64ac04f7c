// Package services defines the error taxonomy shared by the pipeline and its
// collaborators.
//
// Failures are tagged with sentinel markers (configuration, claim, corrupt
// state, external tool) via Wrap so callers classify them with errors.Is, and
// ExitCode maps a classified error to the process exit status.
package services
