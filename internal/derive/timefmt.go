package derive

import (
	"strings"
	"time"
)

// MissingTimestamp is the placeholder rendered when a record carries no
// timestamp at all.
const MissingTimestamp = "—"

// displayLayout renders timestamps the way reviewers read them:
// day-first date, 12-hour clock.
const displayLayout = "02/01/2006 03:04:05 PM"

// parseLayouts covers the timestamp shapes the upstream services emit.
var parseLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	displayLayout,
}

// FormatTimestamp renders a raw timestamp value for display in local time.
// Nil or empty input yields the missing-value placeholder. A non-empty string
// that no known layout parses is echoed unchanged rather than discarded, so
// reviewers still see whatever the upstream stored.
func FormatTimestamp(v any) string {
	if v == nil {
		return MissingTimestamp
	}
	if n, ok := Number(v); ok {
		if _, isString := v.(string); !isString {
			return epochTime(n).Local().Format(displayLayout)
		}
	}
	s := strings.TrimSpace(Stringify(v))
	if s == "" {
		return MissingTimestamp
	}
	for _, layout := range parseLayouts {
		// Zone-less layouts are read as local wall time; layouts carrying an
		// offset keep it and are converted.
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.Local().Format(displayLayout)
		}
	}
	return s
}

// epochTime interprets a numeric timestamp, treating magnitudes beyond
// 1e12 as milliseconds.
func epochTime(n float64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(int64(n))
	}
	return time.Unix(int64(n), 0)
}
