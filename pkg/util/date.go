package util

import (
	"strconv"
	"strings"
	"time"
)

// layouts accepted by ParseTime besides unix timestamps, tried in order.
var layouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"20060102",
}

// ParseTime tries RFC3339, RFC3339Nano, common date layouts, and unix seconds
// or milliseconds. Returns (t, true) if any worked. Layouts without a zone are UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && len(s) != 8 {
		if ts <= 0 {
			return time.Time{}, false
		}
		return UnixAuto(ts), true
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return UnixAuto(int64(f)), true
	}
	return time.Time{}, false
}

// UnixAuto interprets ts as milliseconds when it is too large to be seconds.
func UnixAuto(ts int64) time.Time {
	if ts > 1e11 { // ms
		return time.UnixMilli(ts)
	}
	return time.Unix(ts, 0)
}

// TruncateHour floors a unix timestamp to its hour.
func TruncateHour(sec int64) int64 {
	return sec - mod(sec, 3600)
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
