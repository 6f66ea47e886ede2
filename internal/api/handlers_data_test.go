package api

import (
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"30s", 30 * time.Second, true},
		{"5m", 5 * time.Minute, true},
		{"2h", 2 * time.Hour, true},
		{"3d", 3 * 24 * time.Hour, true},
		{"1w", 7 * 24 * time.Hour, true},
		{"", 0, false},
		{"m", 0, false},
		{"5x", 0, false},
		{"-5m", 0, false},
		{"0h", 0, false},
		{"abc", 0, false},
	}
	for _, c := range cases {
		got, err := parseInterval(c.in)
		if c.ok != (err == nil) {
			t.Errorf("parseInterval(%q) error = %v, want ok=%v", c.in, err, c.ok)
			continue
		}
		if c.ok && got != c.want {
			t.Errorf("parseInterval(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestResolveWindowIntervalCompletesOneBound(t *testing.T) {
	now := time.Unix(1700000000, 0)

	start, end, err := resolveWindow(1699000000, 0, time.Hour, now)
	if err != nil {
		t.Fatalf("start+interval: %v", err)
	}
	if start != 1699000000 || end != 1699003600 {
		t.Errorf("start+interval = (%d, %d)", start, end)
	}

	start, end, err = resolveWindow(0, 1699003600, time.Hour, now)
	if err != nil {
		t.Fatalf("end+interval: %v", err)
	}
	if start != 1699000000 || end != 1699003600 {
		t.Errorf("end+interval = (%d, %d)", start, end)
	}

	start, end, err = resolveWindow(0, 0, time.Hour, now)
	if err != nil {
		t.Fatalf("interval alone: %v", err)
	}
	if start != now.Add(-time.Hour).Unix() || end != 0 {
		t.Errorf("interval alone = (%d, %d)", start, end)
	}
}

func TestResolveWindowRejectsThreeBounds(t *testing.T) {
	now := time.Unix(1700000000, 0)
	if _, _, err := resolveWindow(1699000000, 1699003600, time.Hour, now); err == nil {
		t.Error("start+end+interval accepted")
	}
}

func TestResolveWindowCapsAtFortyDays(t *testing.T) {
	now := time.Unix(1700000000, 0)

	if _, _, err := resolveWindow(now.Add(-41*24*time.Hour).Unix(), now.Unix(), 0, now); err == nil {
		t.Error("41-day start/end window accepted")
	}
	if _, _, err := resolveWindow(0, now.Unix(), 0, now); err == nil {
		t.Error("end without start accepted")
	}
	if _, _, err := resolveWindow(0, 0, 41*24*time.Hour, now); err == nil {
		t.Error("41-day interval accepted")
	}
	if _, _, err := resolveWindow(now.Add(-30*24*time.Hour).Unix(), 0, 0, now); err != nil {
		t.Errorf("30-day open-ended window rejected: %v", err)
	}
}

func TestResolveWindowNoBoundsPassesThrough(t *testing.T) {
	now := time.Unix(1700000000, 0)
	start, end, err := resolveWindow(0, 0, 0, now)
	if err != nil || start != 0 || end != 0 {
		t.Errorf("resolveWindow(0, 0, 0) = (%d, %d, %v)", start, end, err)
	}
}
