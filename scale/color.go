package scale

import (
	"errors"
	"fmt"
	"regexp"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// ErrInvalidColor is returned when color input text is not a 6-hex-digit color
var ErrInvalidColor = errors.New("invalid color input")

var hexPattern = regexp.MustCompile(`^#?([0-9a-fA-F]{2})([0-9a-fA-F]{2})([0-9a-fA-F]{2})$`)

// RGB is an 8-bit per channel color
type RGB struct {
	R, G, B uint8
}

// ParseHex converts "#rrggbb" or "rrggbb" into an RGB triple.
// Shorthand forms ("#f0c"), names and surrounding whitespace are rejected.
func ParseHex(text string) (RGB, error) {
	m := hexPattern.FindStringSubmatch(text)
	if m == nil {
		return RGB{}, fmt.Errorf("%w: %q", ErrInvalidColor, text)
	}
	c, err := colorful.Hex("#" + m[1] + m[2] + m[3])
	if err != nil {
		return RGB{}, fmt.Errorf("%w: %q: %v", ErrInvalidColor, text, err)
	}
	return fromColorful(c), nil
}

// MustParseHex is ParseHex for compile-time constants
func MustParseHex(text string) RGB {
	c, err := ParseHex(text)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex returns the lowercase "#rrggbb" form
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// String returns the CSS functional form, e.g. rgb(255,245,0)
func (c RGB) String() string {
	return fmt.Sprintf("rgb(%d,%d,%d)", c.R, c.G, c.B)
}

func (c RGB) colorful() colorful.Color {
	return colorful.Color{
		R: float64(c.R) / 255.0,
		G: float64(c.G) / 255.0,
		B: float64(c.B) / 255.0,
	}
}

func fromColorful(c colorful.Color) RGB {
	r, g, b := c.Clamped().RGB255()
	return RGB{R: r, G: g, B: b}
}
