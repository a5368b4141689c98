// Package signal holds the in-memory representation of a continuous
// multichannel recording: channel metadata, the channels-by-samples data
// matrix, and the append-only annotation list the detectors write into.
//
// The container is lossless by contract. Detectors read sample data and
// append annotations; nothing in this repository removes samples or
// channels from a Recording. A Recording is owned by one pipeline run at
// a time and is not safe for concurrent mutation.
package signal
