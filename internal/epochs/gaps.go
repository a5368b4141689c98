package epochs

import (
	"sort"

	"lossless/internal/flags"
	"lossless/internal/signal"
)

// gapFlags flags the clean stretches shorter than minGapMS between
// consecutive flagged windows. Ranges must not overlap; they are sorted
// by start sample here.
func gapFlags(flagged [][2]int, minGapMS, sampleRate float64) []flags.Flag {
	if len(flagged) < 2 || minGapMS <= 0 {
		return nil
	}
	sorted := append([][2]int(nil), flagged...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a][0] < sorted[b][0] })

	maxGapSamples := int(minGapMS / 1000 * sampleRate)
	var out []flags.Flag
	for i := 1; i < len(sorted); i++ {
		gapStart := sorted[i-1][1]
		gapEnd := sorted[i][0]
		gap := gapEnd - gapStart
		if gap <= 0 || gap >= maxGapSamples {
			continue
		}
		gapSeconds := float64(gap) / sampleRate
		out = append(out, flags.New(flags.KindEpoch, signal.LabelBadGap,
			[]string{flags.EpochID(gapStart, gapEnd)}, gapSeconds))
	}
	return out
}
