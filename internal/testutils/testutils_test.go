package testutils

import (
	"strings"
	"testing"
	"time"
)

func TestTimestampLine(t *testing.T) {
	got := TimestampLine(13*time.Hour+5*time.Minute+9*time.Second, "EGLL_APP")
	want := "[13:05:09 >>>> EGLL_APP]"
	if got != want {
		t.Errorf("TimestampLine() = %q, want %q", got, want)
	}
}

func TestPositionLine(t *testing.T) {
	line := PositionLine("BAW123", 51.5, -0.1, 1000, 0)

	parts := strings.Split(line, ":")
	if len(parts) != 8 {
		t.Fatalf("PositionLine() has %d fields, want 8", len(parts))
	}
	if parts[0] != "@N" || parts[1] != "BAW123" {
		t.Errorf("PositionLine() prefix = %v, want @N:BAW123", parts[:2])
	}
	if parts[4] != "51.5" || parts[5] != "-0.1" || parts[6] != "1000" {
		t.Errorf("PositionLine() lat/lng/alt = %v", parts[4:7])
	}
}

func TestFlightPlanLine(t *testing.T) {
	parts := strings.Split(FlightPlanLine("BAW123", "B77W", "EGLL", "KJFK"), ":")
	if len(parts) < 10 {
		t.Fatalf("FlightPlanLine() has %d fields, want at least 10", len(parts))
	}
	if parts[0] != "$FPBAW123" || parts[3] != "B77W" || parts[5] != "EGLL" || parts[9] != "KJFK" {
		t.Errorf("FlightPlanLine() = %v", parts)
	}
}

func TestEncodeHeading_Increasing(t *testing.T) {
	prev := EncodeHeading(0)
	for d := 1; d < 360; d++ {
		cur := EncodeHeading(d)
		if cur <= prev {
			t.Fatalf("EncodeHeading(%d) = %d, not above EncodeHeading(%d) = %d", d, cur, d-1, prev)
		}
		prev = cur
	}
}

func TestMockReplayLog(t *testing.T) {
	log := MockReplayLog(
		Sample{Callsign: "A", Time: time.Hour},
		Sample{Callsign: "B", Time: time.Hour + time.Second},
	)
	lines := strings.Split(log, "\n")
	if len(lines) != 4 {
		t.Fatalf("MockReplayLog() has %d lines, want 4", len(lines))
	}
	if !strings.HasPrefix(lines[0], "[01:00:00") || !strings.HasPrefix(lines[3], "@N:B:") {
		t.Errorf("MockReplayLog() = %q", log)
	}
}

func TestWaitForCondition(t *testing.T) {
	// Test condition that becomes true
	counter := 0
	condition := func() bool {
		counter++
		return counter >= 3
	}

	if err := WaitForCondition(condition, time.Second); err != nil {
		t.Errorf("WaitForCondition() should succeed, got error: %v", err)
	}

	// Test condition that never becomes true
	if err := WaitForCondition(func() bool { return false }, 50*time.Millisecond); err == nil {
		t.Error("WaitForCondition() should timeout")
	}
}
