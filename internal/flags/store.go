package flags

import (
	"sync"

	"lossless/internal/signal"
)

// Store is the shared flag collection of one pipeline run. Insertion order
// is preserved per kind; recorded flags are never removed or mutated.
// One Store exists per run and all detectors write into it.
type Store struct {
	mu    sync.RWMutex
	flags map[Kind][]Flag
	seen  map[string]struct{}
}

// NewStore returns an empty flag store.
func NewStore() *Store {
	return &Store{
		flags: make(map[Kind][]Flag),
		seen:  make(map[string]struct{}),
	}
}

// Record appends a flag to its kind's sequence. Recording a structurally
// identical flag again is a no-op.
func (s *Store) Record(f Flag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := f.Key()
	if _, dup := s.seen[key]; dup {
		return
	}
	s.seen[key] = struct{}{}
	s.flags[f.kind] = append(s.flags[f.kind], f)
}

// Of returns the recorded flags of one kind in insertion order.
func (s *Store) Of(kind Kind) []Flag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Flag(nil), s.flags[kind]...)
}

// Len returns the total number of recorded flags.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, seq := range s.flags {
		n += len(seq)
	}
	return n
}

// Snapshot returns every flag ordered by (kind, insertion order). This is
// the canonical order for persistence and annotation materialization.
func (s *Store) Snapshot() []Flag {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Flag, 0, len(s.seen))
	for _, kind := range kindOrder {
		out = append(out, s.flags[kind]...)
	}
	return out
}

// ChannelNames returns the union of channel names implicated by channel
// flags, in first-flagged order. This is the exclusion set later stages
// consume.
func (s *Store) ChannelNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var names []string
	seen := make(map[string]struct{})
	for _, f := range s.flags[KindChannel] {
		for _, id := range f.ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			names = append(names, id)
		}
	}
	return names
}

// ToAnnotations materializes every recorded flag as annotations on the
// target recording, deterministically ordered by (kind, insertion order).
func (s *Store) ToAnnotations(rec *signal.Recording) error {
	rate := rec.SampleRate()
	duration := rec.Duration()
	for _, f := range s.Snapshot() {
		switch f.kind {
		case KindEpoch:
			for _, id := range f.IDs() {
				start, end, err := ParseEpochID(id)
				if err != nil {
					return err
				}
				ann := signal.Annotation{
					Onset:    float64(start) / rate,
					Duration: float64(end-start) / rate,
					Label:    f.label,
				}
				if err := rec.AddAnnotations(ann); err != nil {
					return err
				}
			}
		default:
			ann := signal.Annotation{
				Onset:    0,
				Duration: duration,
				Label:    f.label,
				Channels: f.IDs(),
			}
			if err := rec.AddAnnotations(ann); err != nil {
				return err
			}
		}
	}
	return nil
}
