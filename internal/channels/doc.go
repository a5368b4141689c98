// Package channels implements the noisy-channel detector: it flags
// channels whose signal is poorly predicted by a randomized consensus of
// spatially-neighboring channels across the recording, plus bridged
// channels whose neighbor correlations are implausibly uniform.
//
// Neighbor resampling uses an explicitly seeded generator so two runs with
// identical input and configuration produce bit-identical flags. The
// detector reads the recording and returns flags; it never modifies the
// container.
package channels
