// Package config loads, normalizes, and validates mmprocess configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads the TOML config file, and resolves the work-area
// directory layout against a single base directory. Encoding profiles live
// as separate TOML files in the profiles directory and are loaded through
// the same package so pending-subdirectory names can be checked against
// them.
//
// Always obtain settings through this package so downstream code receives
// sanitized absolute paths, canonical log formats, and clear validation
// errors.
package config
