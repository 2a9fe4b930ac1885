// Package timestamp handles the pipeline's canonical timestamp format:
// int64 milliseconds since the Unix epoch, UTC.
//
// The message envelope stores created/received times this way, and scan
// rows carry first/last document timestamps in the same format. A value of
// 0 means "absent": an index with no @timestamp field reports 0, and every
// function here treats 0 as unset rather than the epoch.
package timestamp

import (
	"strconv"
	"time"
)

// Now returns the current time as Unix milliseconds.
func Now() int64 { return time.Now().UnixMilli() }

// ToUnixMs converts a time.Time to Unix milliseconds. A zero time maps to
// 0, preserving absence across the conversion.
func ToUnixMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// FromUnixMs converts Unix milliseconds to time.Time. 0 maps back to the
// zero time.
func FromUnixMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// ToTime is an alias for FromUnixMs for better readability.
func ToTime(ms int64) time.Time { return FromUnixMs(ms) }

// Format renders a timestamp as RFC3339 UTC for reports. Returns the empty
// string when the timestamp is absent.
func Format(ms int64) string {
	if ms == 0 {
		return ""
	}
	return FromUnixMs(ms).UTC().Format(time.RFC3339)
}

// Parse converts a wire value to Unix milliseconds. The message envelope's
// JSON round-trip turns int64 fields into float64, and replayed exports may
// carry RFC3339 strings or second-resolution epochs, so Parse accepts:
//
//   - int64/int/int32 (milliseconds when > 1e12, otherwise seconds)
//   - float64 (same magnitude rule)
//   - string (RFC3339, or a numeric epoch string)
//   - time.Time / *time.Time
//   - nil and zero values (return 0)
//
// Invalid input returns 0, i.e. "absent".
func Parse(input any) int64 {
	if input == nil {
		return 0
	}

	// 1e12 ms is late 2001; epoch seconds never reach it
	fromEpoch := func(v float64) int64 {
		switch {
		case v == 0:
			return 0
		case v > 1e12:
			return int64(v)
		default:
			return int64(v * 1000)
		}
	}

	switch v := input.(type) {
	case float64:
		return fromEpoch(v)
	case int64:
		return fromEpoch(float64(v))
	case int:
		return fromEpoch(float64(v))
	case int32:
		return fromEpoch(float64(v))

	case time.Time:
		return ToUnixMs(v)
	case *time.Time:
		if v == nil {
			return 0
		}
		return ToUnixMs(*v)

	case string:
		if v == "" {
			return 0
		}
		if t, parseErr := time.Parse(time.RFC3339, v); parseErr == nil {
			return ToUnixMs(t)
		}
		if epoch, parseErr := strconv.ParseFloat(v, 64); parseErr == nil {
			return fromEpoch(epoch)
		}
		return 0

	default:
		return 0
	}
}
