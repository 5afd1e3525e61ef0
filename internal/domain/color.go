package domain

import (
	"math/rand/v2"

	"github.com/lucasb-eyer/go-colorful"
)

// Reserved hue band (degrees) used by UI accents; region colors avoid it.
const (
	ReservedHueStart = 190.0
	ReservedHueEnd   = 250.0
)

// RandomRegionColor returns a saturated hex color whose hue lies outside the
// reserved accent band.
func RandomRegionColor(rng *rand.Rand) string {
	span := 360 - (ReservedHueEnd - ReservedHueStart)
	h := rng.Float64() * span
	if h >= ReservedHueStart {
		h += ReservedHueEnd - ReservedHueStart
	}
	s := 0.65 + rng.Float64()*0.2
	l := 0.45 + rng.Float64()*0.1
	return colorful.Hsl(h, s, l).Hex()
}

// HueOf returns the hue in degrees of a #rrggbb color.
func HueOf(hex string) (float64, error) {
	c, err := parseColor(hex)
	if err != nil {
		return 0, err
	}
	h, _, _ := c.Hsl()
	return h, nil
}

// ValidateColor checks a #rrggbb color string.
func ValidateColor(hex string) error {
	_, err := parseColor(hex)
	return err
}

func parseColor(hex string) (colorful.Color, error) {
	invalid := &ValidationError{Field: "color", Value: hex, Constraint: "#rrggbb", Message: "invalid color"}
	if len(hex) != 7 {
		return colorful.Color{}, invalid
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return colorful.Color{}, invalid
	}
	return c, nil
}
