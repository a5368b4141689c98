package flags

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies which detector family produced a flag.
type Kind string

const (
	KindChannel   Kind = "channel"
	KindEpoch     Kind = "epoch"
	KindComponent Kind = "component"
)

// kindOrder fixes the materialization order of ToAnnotations and Snapshot.
var kindOrder = []Kind{KindChannel, KindEpoch, KindComponent}

// Flag is an immutable record of one detection: the kind, the annotation
// label it materializes as, the identifiers it implicates (channel names,
// epoch sample ranges, or component names), and the justification score
// that triggered it.
type Flag struct {
	kind  Kind
	label string
	ids   []string
	score float64
}

// New constructs a Flag. The identifier set is copied and sorted so flag
// identity is structural regardless of construction order.
func New(kind Kind, label string, ids []string, score float64) Flag {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return Flag{kind: kind, label: label, ids: sorted, score: score}
}

func (f Flag) Kind() Kind    { return f.kind }
func (f Flag) Label() string { return f.label }

// IDs returns a copy of the sorted identifier set.
func (f Flag) IDs() []string { return append([]string(nil), f.ids...) }

func (f Flag) Score() float64 { return f.score }

// Key is the structural identity used for idempotent recording: kind,
// label, identifier set, and the score bucketed to six decimals (so a
// bit-identical re-run maps to the same key).
func (f Flag) Key() string {
	bucket := math.Round(f.score * 1e6)
	return string(f.kind) + "|" + f.label + "|" + strings.Join(f.ids, ",") + "|" +
		strconv.FormatFloat(bucket, 'f', 0, 64)
}

// EpochID renders a window's identifier from its sample range. Windows are
// identified by sample indices, never wall-clock time, so flags stay valid
// under transformations that preserve the sample index mapping.
func EpochID(startSample, endSample int) string {
	return fmt.Sprintf("%d:%d", startSample, endSample)
}

// ParseEpochID recovers the sample range from an epoch identifier.
func ParseEpochID(id string) (start, end int, err error) {
	head, tail, ok := strings.Cut(id, ":")
	if !ok {
		return 0, 0, fmt.Errorf("epoch id %q: missing separator", id)
	}
	if start, err = strconv.Atoi(head); err != nil {
		return 0, 0, fmt.Errorf("epoch id %q: %w", id, err)
	}
	if end, err = strconv.Atoi(tail); err != nil {
		return 0, 0, fmt.Errorf("epoch id %q: %w", id, err)
	}
	if start < 0 || end <= start {
		return 0, 0, fmt.Errorf("epoch id %q: invalid range", id)
	}
	return start, end, nil
}
