package domain

import (
	"math"
	"math/rand/v2"
	"testing"
)

func TestRandomRegionColorAvoidsReservedBand(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 500; i++ {
		c := RandomRegionColor(rng)
		if err := ValidateColor(c); err != nil {
			t.Fatalf("RandomRegionColor() produced invalid color %q: %v", c, err)
		}
		h, _ := HueOf(c)
		// Allow a degree of slack for 8-bit channel rounding.
		if h > ReservedHueStart+1 && h < ReservedHueEnd-1 {
			t.Fatalf("color %q has hue %.1f inside the reserved band", c, h)
		}
	}
}

func TestRandomRegionColorDeterministicWithSeed(t *testing.T) {
	a := RandomRegionColor(rand.New(rand.NewPCG(7, 7)))
	b := RandomRegionColor(rand.New(rand.NewPCG(7, 7)))
	if a != b {
		t.Errorf("same seed produced %q and %q", a, b)
	}
}

func TestHueOf(t *testing.T) {
	tests := []struct {
		hex  string
		want float64
	}{
		{"#ff0000", 0},
		{"#00ff00", 120},
		{"#0000ff", 240},
		{"#808080", 0},
	}
	for _, tt := range tests {
		got, err := HueOf(tt.hex)
		if err != nil {
			t.Fatalf("HueOf(%q) error: %v", tt.hex, err)
		}
		if math.Abs(got-tt.want) > 0.01 {
			t.Errorf("HueOf(%q) = %.1f, want %.1f", tt.hex, got, tt.want)
		}
	}

	for _, bad := range []string{"", "red", "#12345", "#gggggg"} {
		if err := ValidateColor(bad); err == nil {
			t.Errorf("ValidateColor(%q) should fail", bad)
		}
	}
}
