package signal

import (
	"fmt"

	"lossless/internal/faults"
)

// Annotation labels form a closed, namespaced vocabulary. Detectors only
// ever append annotations carrying one of these labels.
const (
	LabelBadChannel    = "bad_channel"
	LabelBadBridge     = "bad_bridge"
	LabelBadEpoch      = "bad_epoch"
	LabelBadGap        = "bad_gap"
	LabelBadICOcular   = "bad_ic_eog"
	LabelBadICCardiac  = "bad_ic_ecg"
	LabelBadICMuscular = "bad_ic_muscle"
	LabelBadICOther    = "bad_ic_other"
)

var knownLabels = map[string]struct{}{
	LabelBadChannel:    {},
	LabelBadBridge:     {},
	LabelBadEpoch:      {},
	LabelBadGap:        {},
	LabelBadICOcular:   {},
	LabelBadICCardiac:  {},
	LabelBadICMuscular: {},
	LabelBadICOther:    {},
}

// KnownLabel reports whether label belongs to the annotation vocabulary.
func KnownLabel(label string) bool {
	_, ok := knownLabels[label]
	return ok
}

// Annotation is a non-destructive time-interval marker. An empty Channels
// slice means the annotation affects all channels.
type Annotation struct {
	Onset    float64  `json:"onset"`
	Duration float64  `json:"duration"`
	Label    string   `json:"label"`
	Channels []string `json:"channels,omitempty"`
}

// AddAnnotations validates and appends annotations. Annotations are
// additive; nothing in this package removes one.
func (r *Recording) AddAnnotations(anns ...Annotation) error {
	duration := r.Duration()
	for _, ann := range anns {
		if !KnownLabel(ann.Label) {
			return faults.Wrap(faults.ErrDataShape, "", "add annotations",
				fmt.Sprintf("label %q outside vocabulary", ann.Label), nil)
		}
		if ann.Duration < 0 {
			return faults.Wrap(faults.ErrDataShape, "", "add annotations",
				fmt.Sprintf("annotation %q with negative duration", ann.Label), nil)
		}
		if ann.Onset < 0 || ann.Onset+ann.Duration > duration+timeEpsilon {
			return faults.Wrap(faults.ErrDataShape, "", "add annotations",
				fmt.Sprintf("annotation %q at [%g, %g) outside [0, %g)",
					ann.Label, ann.Onset, ann.Onset+ann.Duration, duration), nil)
		}
	}
	r.annotations = append(r.annotations, anns...)
	return nil
}

// Annotations returns a copy of the annotation list in append order.
func (r *Recording) Annotations() []Annotation {
	return append([]Annotation(nil), r.annotations...)
}
