// Package logging centralizes slog construction for the QC pipeline.
//
// It provides console and JSON handlers, typed attribute constructors so
// call sites stay terse, and helpers that lift run and stage identifiers
// out of the context into structured fields. Loggers built here are the
// only loggers the pipeline uses; stages receive theirs from the
// orchestrator rather than constructing their own.
package logging
