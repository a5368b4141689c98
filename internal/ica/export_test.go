package ica

import "gonum.org/v1/gonum/mat"

// NewStubDecomposition builds a decomposition with the given component time
// courses, for exercising the labeler without a fit.
func NewStubDecomposition(channelNames []string, sources *mat.Dense, sampleRate float64) *Decomposition {
	k, _ := sources.Dims()
	return &Decomposition{
		channelNames: append([]string(nil), channelNames...),
		unmixing:     mat.NewDense(k, len(channelNames), nil),
		mixing:       mat.NewDense(len(channelNames), k, nil),
		sources:      sources,
		sampleRate:   sampleRate,
	}
}
