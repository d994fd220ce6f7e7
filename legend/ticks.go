package legend

import (
	"math"
	"strconv"
	"strings"

	"github.com/MetropolisTHEMA/metroviz/render"
	"github.com/MetropolisTHEMA/metroviz/scale"
)

var (
	e10 = math.Sqrt(50)
	e5  = math.Sqrt(10)
	e2  = math.Sqrt(2)
)

// tickStep picks a 1, 2 or 5 times power-of-ten step giving about count ticks over [lo, hi]
func tickStep(lo, hi float64, count int) (step float64, decimals int) {
	raw := (hi - lo) / float64(count)
	power := math.Floor(math.Log10(raw))
	errRatio := raw / math.Pow(10, power)

	factor := 1.0
	switch {
	case errRatio >= e10:
		factor = 10
	case errRatio >= e5:
		factor = 5
	case errRatio >= e2:
		factor = 2
	}

	step = factor * math.Pow(10, power)
	decimals = int(-math.Floor(math.Log10(step)))
	if decimals < 0 {
		decimals = 0
	}
	return step, decimals
}

// Ticks returns human-readable axis ticks spanning d, top (max) first
func Ticks(d scale.Domain, count int) []render.Tick {
	if count < 1 {
		count = DefaultTicks
	}
	if d.Degenerate() {
		return []render.Tick{{Value: d.Min, Label: FormatValue(d.Min, 2), Position: 0}}
	}

	step, decimals := tickStep(d.Min, d.Max, count)
	first := math.Ceil(d.Min / step)
	last := math.Floor(d.Max / step)

	n := int(last-first) + 1
	if n < 0 {
		n = 0
	}
	// huge magnitudes lose integer precision; keep the count bounded
	if n > 4*count {
		n = 4 * count
	}
	ticks := make([]render.Tick, 0, n)
	for k := 0; k < n; k++ {
		v := (last - float64(k)) * step
		ticks = append(ticks, render.Tick{
			Value:    v,
			Label:    FormatValue(v, decimals),
			Position: (d.Max - v) / d.Span(),
		})
	}
	return ticks
}

// FormatValue renders v with the given decimals and thousands grouping, e.g. 1,250.5
func FormatValue(v float64, decimals int) string {
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	if s == "-0" || strings.HasPrefix(s, "-0.") && strings.Trim(s[3:], "0") == "" {
		s = s[1:]
	}

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		intPart, frac = s[:dot], s[dot:]
	}
	if len(intPart) <= 3 {
		return sign + intPart + frac
	}

	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return sign + b.String() + frac
}
