package fundraising

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// relativeDatePattern matches Dutch relative dates such as "2 dagen geleden"
// or "1 week, 3 dagen, 4 uur geleden".
var relativeDatePattern = regexp.MustCompile(
	`^(?:(\d+)\s+weken?[, ]*)?` +
		`(?:(\d+)\s+dag(?:en)?[, ]*)?` +
		`(?:(\d+)\s+uu?r(?:en)?[, ]*)?` +
		`(?:(\d+)\s+minu(?:ut|ten)[, ]*)?` +
		`\s*geleden$`,
)

// parseDutchDate parses a Steunactie date label relative to now. Absolute
// dates look like "op 18-09-2025"; relative ones like "3 weken geleden".
// The result is truncated to the hour, the resolution of donation buckets.
func parseDutchDate(text string, now time.Time) (time.Time, bool) {
	text = strings.TrimSpace(text)
	text = strings.TrimSpace(strings.TrimPrefix(text, "op "))
	if text == "" {
		return time.Time{}, false
	}

	if t, err := time.ParseInLocation("02-01-2006", text, time.UTC); err == nil {
		return t, true
	}

	m := relativeDatePattern.FindStringSubmatch(strings.ToLower(text))
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "" && m[4] == "") {
		return time.Time{}, false
	}

	weeks, _ := strconv.Atoi(orZero(m[1]))
	days, _ := strconv.Atoi(orZero(m[2]))
	hours, _ := strconv.Atoi(orZero(m[3]))
	minutes, _ := strconv.Atoi(orZero(m[4]))

	ago := time.Duration(weeks)*7*24*time.Hour +
		time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute

	return now.UTC().Add(-ago).Truncate(time.Hour), true
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}

// donationBucket returns the YYYYMMDDHH bucket of t as an integer.
func donationBucket(t time.Time) int64 {
	b, _ := strconv.ParseInt(t.UTC().Format("2006010215"), 10, 64)
	return b
}
