package parsers

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the format the feed writes publication timestamps in (UTC)
const TimestampLayout = "2006-01-02T15:04:05.000"

// parseLayout accepts any fraction length; checkFraction narrows it to 1-6 digits
const parseLayout = "2006-01-02T15:04:05.999999"

// maxFractionDigits is microsecond precision
const maxFractionDigits = 6

// RecencyFilter accepts entries published within Window of the evaluation instant
type RecencyFilter struct {
	Window time.Duration
}

// IsRecent parses published and reports whether it lies within the window
// ending at now. The boundary is inclusive. Entries dated in the future are
// recent. A parse failure yields false together with the error.
func (f RecencyFilter) IsRecent(published string, now time.Time) (time.Time, bool, error) {
	ts, err := ParseTimestamp(published)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, now.UTC().Sub(ts) <= f.Window, nil
}

// ParseTimestamp parses a feed timestamp as UTC. The seconds must carry a
// fraction of one to six digits.
func ParseTimestamp(s string) (time.Time, error) {
	if err := checkFraction(s); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	ts, err := time.ParseInLocation(parseLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	return ts, nil
}

func checkFraction(s string) error {
	dot := strings.LastIndexByte(s, '.')
	if dot < 0 || dot < strings.LastIndexByte(s, ':') {
		return fmt.Errorf("missing fractional seconds")
	}
	frac := s[dot+1:]
	if len(frac) == 0 || len(frac) > maxFractionDigits {
		return fmt.Errorf("fractional seconds must have 1 to %d digits, got %d", maxFractionDigits, len(frac))
	}
	for _, r := range frac {
		if r < '0' || r > '9' {
			return fmt.Errorf("invalid fractional seconds %q", frac)
		}
	}
	return nil
}
