package parser

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/saviobatista/vatsim-replay/internal/logging"
	"github.com/saviobatista/vatsim-replay/internal/types"
)

// RecordKind classifies a replay log line
type RecordKind int

const (
	RecordUnknown RecordKind = iota
	RecordTimestamp
	RecordPosition
	RecordFlightPlan
)

const (
	// position records: @N:callsign:squawk:rating:lat:lng:alt:heading[:...]
	minPositionFields = 8
	// flight plans: $FPcallsign:...:actype(3):...:dep(5):...:dest(9)[:...]
	minFlightPlanFields = 10

	flightPlanPrefix = "$FP"
)

var timestampRe = regexp.MustCompile(`^\[(\d{1,2}):(\d{2}):(\d{2})\s*>>>>\s*([^\]]*)\](.*)$`)

// Classify returns the kind of record a line holds
func Classify(line string) RecordKind {
	switch {
	case strings.HasPrefix(line, "["):
		if timestampRe.MatchString(line) {
			return RecordTimestamp
		}
		return RecordUnknown
	case strings.HasPrefix(line, "@N:"), strings.HasPrefix(line, "@S:"):
		return RecordPosition
	case strings.HasPrefix(line, flightPlanPrefix):
		return RecordFlightPlan
	default:
		return RecordUnknown
	}
}

// ParseTimestamp extracts the time of day in milliseconds from a timestamp
// context line. rest is whatever follows the closing bracket.
func ParseTimestamp(line string) (ms int64, rest string, err error) {
	m := timestampRe.FindStringSubmatch(line)
	if m == nil {
		return 0, "", ErrMissingTimestamp
	}
	h, _ := strconv.Atoi(m[1])
	mi, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	return int64(h*3600+mi*60+s) * 1000, m[5], nil
}

// DecodeHeading converts the packed heading field of a position record to
// whole degrees in [0, 360). Unparsable input decodes to 0.
func DecodeHeading(raw string) int {
	raw = strings.TrimSpace(raw)
	var v int64
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		v = i
	} else if f, err := strconv.ParseFloat(raw, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		v = int64(math.Trunc(f))
	} else {
		return 0
	}

	// the field is a 32 bit word; shift as a signed 32 bit integer
	shifted := int32(uint32(v)) >> 2
	h := int(math.Floor((float64(shifted)-0.5)/2.88 + 0.5))
	return ((h % 360) + 360) % 360
}

// ParsePosition parses an @N/@S record observed at time ms
func ParsePosition(line string, ms int64) (string, types.TimedPosition, error) {
	fields := strings.Split(line, ":")
	if len(fields) < minPositionFields {
		return "", types.TimedPosition{}, fmt.Errorf("%w: position record has %d fields, want at least %d",
			ErrTooFewFields, len(fields), minPositionFields)
	}

	callsign := strings.TrimSpace(fields[1])
	if callsign == "" {
		return "", types.TimedPosition{}, ErrMissingCallsign
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(fields[4]), 64)
	if err != nil {
		return "", types.TimedPosition{}, fmt.Errorf("%w: latitude %q", ErrBadNumber, fields[4])
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(fields[5]), 64)
	if err != nil {
		return "", types.TimedPosition{}, fmt.Errorf("%w: longitude %q", ErrBadNumber, fields[5])
	}

	pos := types.TimedPosition{
		Lat:     lat,
		Lng:     lng,
		Time:    ms,
		Heading: types.IntPtr(DecodeHeading(fields[7])),
	}
	if alt, ok := parseAltitude(fields[6]); ok {
		pos.Altitude = &alt
	}
	return callsign, pos, nil
}

func parseAltitude(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if alt, err := strconv.Atoi(s); err == nil {
		return alt, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int(math.Floor(f + 0.5)), true
	}
	return 0, false
}

// ParseFlightPlan parses a $FP record
func ParseFlightPlan(line string) (types.FlightPlan, error) {
	fields := strings.Split(line, ":")
	if len(fields) < minFlightPlanFields {
		return types.FlightPlan{}, fmt.Errorf("%w: flight plan has %d fields, want at least %d",
			ErrTooFewFields, len(fields), minFlightPlanFields)
	}

	callsign := strings.TrimSpace(strings.TrimPrefix(fields[0], flightPlanPrefix))
	if callsign == "" {
		return types.FlightPlan{}, ErrMissingCallsign
	}

	return types.FlightPlan{
		Callsign:     callsign,
		AircraftType: strings.TrimSpace(fields[3]),
		Departure:    strings.TrimSpace(fields[5]),
		Destination:  strings.TrimSpace(fields[9]),
	}, nil
}

// Parser turns replay log text into per-callsign position series
type Parser struct {
	lg       *logging.Logger
	resolver TimestampResolver
	onError  func(*LineError)
}

// Option configures a Parser
type Option func(*Parser)

// WithLogger sets the logger used for skipped-line diagnostics
func WithLogger(lg *logging.Logger) Option {
	return func(p *Parser) { p.lg = lg }
}

// WithResolver changes how data lines find their timestamp
func WithResolver(r TimestampResolver) Option {
	return func(p *Parser) { p.resolver = r }
}

// WithErrorHandler is called for every skipped line
func WithErrorHandler(fn func(*LineError)) Option {
	return func(p *Parser) { p.onError = fn }
}

// New creates a Parser
func New(opts ...Option) *Parser {
	p := &Parser{resolver: PreviousLine}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseReplay parses content with a Parser built from opts
func ParseReplay(content string, opts ...Option) *types.ParsedReplay {
	return New(opts...).Parse(content)
}

// Parse never fails: malformed lines are reported and skipped. Positions are
// stably sorted per callsign and shifted so the earliest one is at time 0.
func (p *Parser) Parse(content string) *types.ParsedReplay {
	replay := types.NewParsedReplay()
	if content == "" {
		return replay
	}

	lines := strings.Split(content, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], "\r")
	}
	replay.Stats.Lines = len(lines)

	for i, line := range lines {
		if err := p.parseLine(replay, lines, i); err != nil {
			replay.Stats.Skipped++
			lerr := &LineError{Line: i + 1, Text: line, Err: err}
			p.lg.Debug("skipping replay line", "line", lerr.Line, "error", err)
			if p.onError != nil {
				p.onError(lerr)
			}
		}
	}

	normalize(replay)

	p.lg.Info("parsed replay",
		"lines", replay.Stats.Lines,
		"positions", replay.Stats.PositionRecords,
		"flight_plans", replay.Stats.FlightPlans,
		"callsigns", len(replay.Positions),
		"skipped", replay.Stats.Skipped,
		"duration_ms", replay.TimeRange.End)
	return replay
}

func (p *Parser) parseLine(replay *types.ParsedReplay, lines []string, i int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	line := lines[i]
	switch Classify(line) {
	case RecordPosition:
		ms, err := p.resolver(lines, i)
		if err != nil {
			return err
		}
		return addPosition(replay, line, ms)

	case RecordFlightPlan:
		return addFlightPlan(replay, line)

	case RecordTimestamp:
		// a record may share the line with its timestamp
		ms, rest, err := ParseTimestamp(line)
		if err != nil {
			return err
		}
		switch Classify(rest) {
		case RecordPosition:
			return addPosition(replay, rest, ms)
		case RecordFlightPlan:
			return addFlightPlan(replay, rest)
		}
	}
	return nil
}

func addPosition(replay *types.ParsedReplay, line string, ms int64) error {
	callsign, pos, err := ParsePosition(line, ms)
	if err != nil {
		return err
	}
	replay.Positions[callsign] = append(replay.Positions[callsign], pos)
	replay.Stats.PositionRecords++
	return nil
}

func addFlightPlan(replay *types.ParsedReplay, line string) error {
	fp, err := ParseFlightPlan(line)
	if err != nil {
		return err
	}
	replay.FlightPlans[fp.Callsign] = fp
	replay.Stats.FlightPlans++
	return nil
}

func normalize(replay *types.ParsedReplay) {
	if len(replay.Positions) == 0 {
		replay.TimeRange = types.TimeRange{}
		return
	}

	minTime, maxTime := int64(math.MaxInt64), int64(math.MinInt64)
	for _, positions := range replay.Positions {
		sort.SliceStable(positions, func(a, b int) bool {
			return positions[a].Time < positions[b].Time
		})
		minTime = min(minTime, positions[0].Time)
		maxTime = max(maxTime, positions[len(positions)-1].Time)
	}

	for _, positions := range replay.Positions {
		for i := range positions {
			positions[i].Time -= minTime
		}
	}

	replay.Origin = minTime
	replay.TimeRange = types.TimeRange{Start: 0, End: maxTime - minTime}
}
