// Package workarea implements the directory protocol jobs move through:
// pending sources are claimed into per-job work directories and finished
// jobs are finalized into the done or error area with a single rename.
//
// Pending subdirectories named after an existing encoding profile route
// their files through that profile. Filenames are normalized on claim so
// every downstream path is shell-safe and case-stable.
package workarea
