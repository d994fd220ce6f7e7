package scale

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Scale maps a linear domain onto an HCL blend between two boundary colors.
// A Scale is never mutated after Build.
type Scale struct {
	domain Domain
	from   RGB
	to     RGB
	a, b   colorful.Color
}

// Build creates a scale over d. A degenerate domain yields a constant color1 scale.
func Build(d Domain, color1, color2 RGB) *Scale {
	return &Scale{
		domain: d,
		from:   color1,
		to:     color2,
		a:      color1.colorful(),
		b:      color2.colorful(),
	}
}

// Domain returns the scale's domain
func (s *Scale) Domain() Domain {
	return s.domain
}

// Colors returns the two boundary colors
func (s *Scale) Colors() (RGB, RGB) {
	return s.from, s.to
}

// Fraction returns the clamped position of v inside the domain, in [0, 1]
func (s *Scale) Fraction(v float64) float64 {
	if s.domain.Degenerate() || math.IsNaN(v) {
		return 0
	}
	t := (v - s.domain.Min) / s.domain.Span()
	switch {
	case t <= 0:
		return 0
	case t >= 1:
		return 1
	}
	return t
}

// At returns the color for v. Values outside the domain are clamped to the boundary colors.
func (s *Scale) At(v float64) RGB {
	t := s.Fraction(v)
	switch t {
	case 0:
		return s.from
	case 1:
		return s.to
	}
	return fromColorful(s.a.BlendHcl(s.b, t))
}
