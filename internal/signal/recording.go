package signal

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"lossless/internal/faults"
)

// Kind identifies the physical type of a channel.
type Kind string

const (
	KindEEG   Kind = "eeg"
	KindEOG   Kind = "eog"
	KindECG   Kind = "ecg"
	KindOther Kind = "other"
)

// Channel describes one recorded channel: its name, physical type, and
// spatial position in head coordinates (meters).
type Channel struct {
	Name     string
	Kind     Kind
	Position [3]float64
}

// Recording is the signal container: ordered channel records, a fixed-rate
// channels-by-samples matrix, and the mutable annotation list.
type Recording struct {
	channels    []Channel
	data        *mat.Dense
	sampleRate  float64
	annotations []Annotation
}

// New validates shape invariants and wraps the supplied matrix in a
// Recording. The matrix is owned by the Recording afterwards.
func New(channels []Channel, data *mat.Dense, sampleRate float64) (*Recording, error) {
	if sampleRate <= 0 {
		return nil, faults.Wrap(faults.ErrDataShape, "", "new recording",
			fmt.Sprintf("sample rate must be positive, got %g", sampleRate), nil)
	}
	if data == nil {
		return nil, faults.Wrap(faults.ErrDataShape, "", "new recording", "nil sample matrix", nil)
	}
	rows, cols := data.Dims()
	if rows != len(channels) {
		return nil, faults.Wrap(faults.ErrDataShape, "", "new recording",
			fmt.Sprintf("matrix has %d rows for %d channels", rows, len(channels)), nil)
	}
	if cols == 0 {
		return nil, faults.Wrap(faults.ErrDataShape, "", "new recording", "matrix has no samples", nil)
	}
	seen := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		if ch.Name == "" {
			return nil, faults.Wrap(faults.ErrDataShape, "", "new recording", "channel with empty name", nil)
		}
		if _, dup := seen[ch.Name]; dup {
			return nil, faults.Wrap(faults.ErrDataShape, "", "new recording",
				fmt.Sprintf("duplicate channel name %q", ch.Name), nil)
		}
		seen[ch.Name] = struct{}{}
	}
	return &Recording{
		channels:   append([]Channel(nil), channels...),
		data:       data,
		sampleRate: sampleRate,
	}, nil
}

// Validate re-checks the shape invariants of an existing Recording.
func (r *Recording) Validate() error {
	if r == nil || r.data == nil {
		return faults.Wrap(faults.ErrDataShape, "", "validate recording", "nil recording", nil)
	}
	rows, cols := r.data.Dims()
	if rows != len(r.channels) {
		return faults.Wrap(faults.ErrDataShape, "", "validate recording",
			fmt.Sprintf("matrix has %d rows for %d channels", rows, len(r.channels)), nil)
	}
	if cols == 0 {
		return faults.Wrap(faults.ErrDataShape, "", "validate recording", "matrix has no samples", nil)
	}
	duration := r.Duration()
	for _, ann := range r.annotations {
		if ann.Onset < 0 || ann.Onset+ann.Duration > duration+timeEpsilon {
			return faults.Wrap(faults.ErrDataShape, "", "validate recording",
				fmt.Sprintf("annotation %q outside [0, %g)", ann.Label, duration), nil)
		}
	}
	return nil
}

// Channels returns a copy of the channel records in order.
func (r *Recording) Channels() []Channel {
	return append([]Channel(nil), r.channels...)
}

// ChannelNames returns the channel names in order.
func (r *Recording) ChannelNames() []string {
	names := make([]string, len(r.channels))
	for i, ch := range r.channels {
		names[i] = ch.Name
	}
	return names
}

// ChannelIndex resolves a channel name to its row index.
func (r *Recording) ChannelIndex(name string) (int, bool) {
	for i, ch := range r.channels {
		if ch.Name == name {
			return i, true
		}
	}
	return 0, false
}

// ChannelsOfKind returns the indices of channels with the given kind.
func (r *Recording) ChannelsOfKind(kind Kind) []int {
	var idx []int
	for i, ch := range r.channels {
		if ch.Kind == kind {
			idx = append(idx, i)
		}
	}
	return idx
}

// SampleRate returns the fixed sample rate in Hz.
func (r *Recording) SampleRate() float64 { return r.sampleRate }

// Samples returns the number of samples per channel.
func (r *Recording) Samples() int {
	_, cols := r.data.Dims()
	return cols
}

// Duration returns the recording length in seconds.
func (r *Recording) Duration() float64 {
	return float64(r.Samples()) / r.sampleRate
}

// Row returns the sample series of one channel as a view into the
// underlying matrix. Callers must treat it as read-only.
func (r *Recording) Row(ch int) []float64 {
	return r.data.RawRowView(ch)
}

// At returns one sample.
func (r *Recording) At(ch, sample int) float64 {
	return r.data.At(ch, sample)
}

// Snapshot returns an independent copy of the sample matrix, used by
// persistence and by tests asserting the matrix survives a run bit-identical.
func (r *Recording) Snapshot() *mat.Dense {
	return mat.DenseCopyOf(r.data)
}

const timeEpsilon = 1e-9
