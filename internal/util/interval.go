package util

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseInterval converts an interval string such as "1m", "4h", or "1d"
// into a time.Duration. Supported units: m (minutes), h (hours), d (days).
func ParseInterval(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("invalid interval format: %q", interval)
	}

	unit := interval[len(interval)-1:]
	amount, err := strconv.ParseInt(strings.TrimSpace(interval[:len(interval)-1]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid interval amount in %q: %w", interval, err)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("interval amount must be positive: %q", interval)
	}

	switch unit {
	case "m":
		return time.Duration(amount) * time.Minute, nil
	case "h":
		return time.Duration(amount) * time.Hour, nil
	case "d":
		return time.Duration(amount) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid interval unit in %q (want m, h, or d)", interval)
	}
}

// TimestampToTime converts a Unix timestamp in seconds to UTC time.
func TimestampToTime(ts int64) time.Time {
	return time.Unix(ts, 0).UTC()
}

// TimeToTimestamp converts a time to a Unix timestamp in seconds.
func TimeToTimestamp(t time.Time) int64 {
	return t.Unix()
}
