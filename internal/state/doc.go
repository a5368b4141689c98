// Package state persists pipeline runs. A SQLite store records runs, stage
// completions, and committed flags for audit; WriteBundle renders the final
// annotations, decomposition summary, and audit trail into a directory that
// appears atomically. Detection results only ever accumulate here, nothing
// is rewritten in place.
package state
