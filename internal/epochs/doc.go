// Package epochs implements the noisy-epoch detector: the recording is
// partitioned into fixed-length windows identified by sample ranges, and a
// window is flagged when the robust amplitude tests implicate enough
// channels at once. Short clean gaps between flagged windows are flagged
// as well, since data between two artifacts rarely survives on its own.
//
// Windows are identified by (start, end) sample indices, never wall-clock
// time, so flags remain valid under transformations that preserve the
// sample index mapping.
package epochs
