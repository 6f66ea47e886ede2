package geo

import (
	"math"
	"testing"
)

func TestDistanceZeroForSamePoint(t *testing.T) {
	if d := Distance(10.5, 106.7, 10.5, 106.7); d != 0 {
		t.Errorf("Distance to self = %v, want 0", d)
	}
}

func TestDistanceKnownPair(t *testing.T) {
	// Hanoi to Ho Chi Minh City, roughly 1140 km.
	d := Distance(21.0278, 105.8342, 10.8231, 106.6297)
	if math.Abs(d-1140000) > 20000 {
		t.Errorf("Distance = %v m, want ~1140 km", d)
	}
}

func TestDistanceSmallOffset(t *testing.T) {
	// ~0.0002 degrees of latitude is roughly 22 m.
	d := Distance(10, 10, 10.0002, 10)
	if d < 15 || d > 30 {
		t.Errorf("Distance = %v m, want ~22 m", d)
	}
}

func TestValidCoordinates(t *testing.T) {
	cases := []struct {
		lat, lon float64
		want     bool
	}{
		{10.5, 106.7, true},
		{0, 0, true},
		{90, 0, false},
		{-90, 0, false},
		{0, 180, false},
		{0, -180, false},
		{95, 10, false},
		{10, 200, false},
	}
	for _, c := range cases {
		if got := ValidCoordinates(c.lat, c.lon); got != c.want {
			t.Errorf("ValidCoordinates(%v, %v) = %v, want %v", c.lat, c.lon, got, c.want)
		}
	}
}
