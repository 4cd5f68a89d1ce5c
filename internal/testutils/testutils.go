package testutils

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Sample is one position observation used to build a mock replay log
type Sample struct {
	Callsign string
	Time     time.Duration // time of day
	Lat      float64
	Lng      float64
	Altitude int
	Heading  int
}

// TimestampLine returns a timestamp context line for the given time of day
func TimestampLine(tod time.Duration, sender string) string {
	s := int64(tod / time.Second)
	return fmt.Sprintf("[%02d:%02d:%02d >>>> %s]", s/3600, (s/60)%60, s%60, sender)
}

// EncodeHeading packs a heading in degrees the way position records carry it
func EncodeHeading(deg int) int64 {
	return (int64(math.Floor(2.88*float64(deg))) + 1) << 2
}

// PositionLine returns an @N position record
func PositionLine(callsign string, lat, lng float64, altitude, heading int) string {
	return strings.Join([]string{
		"@N",
		callsign,
		"2000",
		"1",
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lng, 'f', -1, 64),
		strconv.Itoa(altitude),
		strconv.FormatInt(EncodeHeading(heading), 10),
	}, ":")
}

// FlightPlanLine returns a $FP record
func FlightPlanLine(callsign, aircraftType, departure, destination string) string {
	return strings.Join([]string{
		"$FP" + callsign,
		"*A",
		"I",
		aircraftType,
		"450",
		departure,
		"1200",
		"1200",
		"FL350",
		destination,
		"7",
		"30",
		"8",
		"45",
		"",
		"",
		"DCT",
	}, ":")
}

// MockReplayLog renders samples as a replay log, one timestamp line per record
func MockReplayLog(samples ...Sample) string {
	lines := make([]string, 0, 2*len(samples))
	for _, s := range samples {
		lines = append(lines,
			TimestampLine(s.Time, "EGLL_APP"),
			PositionLine(s.Callsign, s.Lat, s.Lng, s.Altitude, s.Heading))
	}
	return strings.Join(lines, "\n")
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}
