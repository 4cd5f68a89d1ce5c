package parser

import "fmt"

// TimestampResolver returns the time (ms of day) that applies to the data
// record at lines[i].
type TimestampResolver func(lines []string, i int) (int64, error)

// PreviousLine requires the line immediately before the record to be a
// timestamp context line. This is what replay files written by the client
// look like and is the default.
func PreviousLine(lines []string, i int) (int64, error) {
	if i == 0 {
		return 0, ErrMissingTimestamp
	}
	ms, _, err := ParseTimestamp(lines[i-1])
	return ms, err
}

// NearestPreceding uses the closest timestamp context line above the
// record, so one timestamp may cover several consecutive records.
func NearestPreceding(lines []string, i int) (int64, error) {
	for j := i - 1; j >= 0; j-- {
		if Classify(lines[j]) == RecordTimestamp {
			ms, _, err := ParseTimestamp(lines[j])
			return ms, err
		}
	}
	return 0, ErrMissingTimestamp
}

// Resolver names accepted by ResolverByName
const (
	ResolverPrevious = "previous"
	ResolverNearest  = "nearest"
)

// ResolverByName returns the named resolver. An empty name is PreviousLine.
func ResolverByName(name string) (TimestampResolver, error) {
	switch name {
	case "", ResolverPrevious:
		return PreviousLine, nil
	case ResolverNearest:
		return NearestPreceding, nil
	default:
		return nil, fmt.Errorf("unknown timestamp resolver %q", name)
	}
}

// CacheKey identifies the parse of content with the given hash under the
// named resolver. Parses under different resolvers never share a key.
func CacheKey(hash, resolver string) string {
	if resolver == "" {
		resolver = ResolverPrevious
	}
	return hash + "-" + resolver
}
