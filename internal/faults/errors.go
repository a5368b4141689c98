package faults

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration marks invalid or missing parameters, including
	// requests that cannot be satisfied by the recording at hand (for
	// example a neighbor count exceeding the available channels).
	ErrConfiguration = errors.New("configuration error")
	// ErrDataShape marks violated Recording invariants such as a
	// channel/sample mismatch.
	ErrDataShape = errors.New("data shape error")
	// ErrConvergence marks an ICA decomposition that did not converge
	// within its iteration budget.
	ErrConvergence = errors.New("convergence error")
	// ErrPersistence marks run state that could not be durably written.
	ErrPersistence = errors.New("persistence error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrPersistence
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Details describes a classified stage failure for logging and audit records.
type Details struct {
	Kind    string
	Message string
}

// Classify resolves the sentinel marker carried by err into a stable kind
// string, or "unknown" when the error carries no marker.
func Classify(err error) Details {
	d := Details{Kind: "unknown"}
	if err == nil {
		return d
	}
	d.Message = strings.TrimSpace(err.Error())
	switch {
	case errors.Is(err, ErrConfiguration):
		d.Kind = "configuration"
	case errors.Is(err, ErrDataShape):
		d.Kind = "data_shape"
	case errors.Is(err, ErrConvergence):
		d.Kind = "convergence"
	case errors.Is(err, ErrPersistence):
		d.Kind = "persistence"
	}
	return d
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "stage failure"
	}
	return strings.Join(parts, ": ")
}
