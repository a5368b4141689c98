// Package pipeline drives the fixed stage order of a quality-control run:
// noisy-channel detection, noisy-epoch detection, ICA decomposition and
// component flagging, then annotation materialization and persistence. Each
// stage buffers its flags and commits them to the shared store only on
// success, so a failed stage contributes nothing and every earlier stage's
// flags survive. The orchestrator is a small state machine: init,
// channels_done, epochs_done, ica_done, persisted, with failed terminal
// from any state.
package pipeline
