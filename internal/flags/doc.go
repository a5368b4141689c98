// Package flags defines the typed flag records the detectors produce and
// the shared store a pipeline run accumulates them in.
//
// Flags are immutable once recorded and the store is append-only;
// corrections require re-running the pipeline, which preserves the audit
// trail. Insertion order is preserved per kind so replaying a run
// materializes annotations in a byte-identical order.
package flags
