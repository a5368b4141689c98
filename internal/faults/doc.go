// Package faults defines the shared error vocabulary of the QC pipeline.
//
// Key responsibilities:
//   - Sentinel markers for the four failure kinds surfaced to callers:
//     configuration, data shape, ICA convergence, and persistence.
//   - The Wrap helper that tags failures with the stage and operation that
//     produced them so orchestrator logs and persisted run records always
//     name the failing stage.
//   - Context helpers that stamp run identifiers and stage names for logging.
//
// Use these helpers when wiring new stage logic so failure classification
// stays uniform across the pipeline.
package faults
