// Package ica decomposes the channel-and-epoch-masked recording into
// independent components and flags components matching known artifact
// signatures: correlation with a reference artifact channel (ocular,
// cardiac) or spectral/kurtosis signatures (muscular, other).
//
// The decomposition is deterministic for a given seed and immutable after
// the fit. The unmixing solution is never applied back to the recording;
// component flags are advisory and the removal decision belongs to the
// consumer.
package ica
