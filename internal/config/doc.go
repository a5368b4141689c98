// Package config loads, normalizes, and validates QC pipeline configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files with strict decoding so unknown keys are
// rejected at load time rather than silently ignored. The Config type
// centralizes every statistical knob the detectors need; changing one of
// these changes a run's results, so values travel through this package
// only and never through ambient globals.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
