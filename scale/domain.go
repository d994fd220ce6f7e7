package scale

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrEmptyDomain is returned when no samples are available to span a domain
var ErrEmptyDomain = errors.New("empty domain")

// Domain is the numeric [Min, Max] range a scale is built over
type Domain struct {
	Min float64
	Max float64
}

// Degenerate reports whether the domain collapses to a single value
func (d Domain) Degenerate() bool {
	return d.Min == d.Max
}

// Span returns Max - Min
func (d Domain) Span() float64 {
	return d.Max - d.Min
}

// Policy selects how a time-indexed field's domain is computed
type Policy int

const (
	// PolicyGlobal spans every edge and every time step; legend stays stable during playback
	PolicyGlobal Policy = iota
	// PolicyStep spans only the current step's values
	PolicyStep
)

func (p Policy) String() string {
	switch p {
	case PolicyGlobal:
		return "global"
	case PolicyStep:
		return "step"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy accepts "global" (or empty) and "step"
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "global":
		return PolicyGlobal, nil
	case "step", "per-step", "perstep":
		return PolicyStep, nil
	default:
		return PolicyGlobal, fmt.Errorf("unknown domain policy %q", s)
	}
}

// ComputeDomain returns {min(samples), max(samples)}. NaN samples count as missing.
func ComputeDomain(samples []float64) (Domain, error) {
	d := Domain{Min: math.Inf(1), Max: math.Inf(-1)}
	n := 0
	for _, v := range samples {
		if math.IsNaN(v) {
			continue
		}
		if v < d.Min {
			d.Min = v
		}
		if v > d.Max {
			d.Max = v
		}
		n++
	}
	if n == 0 {
		return Domain{}, ErrEmptyDomain
	}
	return d, nil
}

// StaticDomain spans every value of a static field
func StaticDomain(values map[string]float64) (Domain, error) {
	samples := make([]float64, 0, len(values))
	for _, v := range values {
		samples = append(samples, v)
	}
	return ComputeDomain(samples)
}

// GlobalDomain spans every edge and every step of a series
func GlobalDomain(series map[string][]float64) (Domain, error) {
	var samples []float64
	for _, s := range series {
		samples = append(samples, s...)
	}
	return ComputeDomain(samples)
}

// StepDomain spans the values of a single step. Edges whose series is too short are skipped.
func StepDomain(series map[string][]float64, step int) (Domain, error) {
	samples := make([]float64, 0, len(series))
	for _, s := range series {
		if step >= 0 && step < len(s) {
			samples = append(samples, s[step])
		}
	}
	return ComputeDomain(samples)
}

// SeriesDomain applies policy p at the given step
func SeriesDomain(series map[string][]float64, p Policy, step int) (Domain, error) {
	if p == PolicyStep {
		return StepDomain(series, step)
	}
	return GlobalDomain(series)
}
