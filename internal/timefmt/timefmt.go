// Package timefmt parses and formats the rally's operator-entered time
// strings. Nothing here returns an error: malformed input degrades to zero
// or an empty string so a typo in the timing sheet never breaks a scene.
package timefmt

import (
	"fmt"
	"strings"
	"time"
)

// NoTime is displayed where a competitor has no recorded time.
const NoTime = "-"

const (
	msPerSecond = int64(1000)
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour
)

// ParseDuration converts "SS.mmm", "M:SS.mmm" or "H:M:SS.mmm" to
// milliseconds. Missing or non-numeric parts count as zero.
func ParseDuration(text string) int64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	parts := strings.Split(text, ":")
	ms := parseSeconds(parts[len(parts)-1])

	switch len(parts) {
	case 1:
	case 2:
		ms += leadingInt(parts[0]) * msPerMinute
	default:
		n := len(parts)
		ms += leadingInt(parts[n-2]) * msPerMinute
		ms += leadingInt(parts[n-3]) * msPerHour
	}
	return ms
}

// FormatDuration renders milliseconds as "M:SS.mmm", or NoTime for zero
// and negative values.
func FormatDuration(ms int64) string {
	if ms <= 0 {
		return NoTime
	}
	return FormatElapsed(ms)
}

// ParseClock converts a wall-clock "HH:MM" or "HH:MM:SS.mmm" string to
// milliseconds since midnight. ok is false when there is no minute field.
func ParseClock(text string) (ms int64, ok bool) {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) < 2 {
		return 0, false
	}
	ms = leadingInt(parts[0])*msPerHour + leadingInt(parts[1])*msPerMinute
	if len(parts) > 2 {
		ms += parseSeconds(parts[2])
	}
	return ms, true
}

// ElapsedFromClockTimes returns arrival minus start as a duration string.
// A negative difference is taken to cross midnight and gains 24h.
func ElapsedFromClockTimes(arrivalClock, startClock string) string {
	if arrivalClock == "" || startClock == "" {
		return ""
	}
	arrival, ok := ParseClock(arrivalClock)
	if !ok {
		return ""
	}
	start, ok := ParseClock(startClock)
	if !ok {
		return ""
	}

	diff := arrival - start
	if diff < 0 {
		diff += msPerDay
	}
	return FormatElapsed(diff)
}

// ArrivalFromElapsed is the inverse of ElapsedFromClockTimes: start plus
// duration, wrapped to 24h, as "HH:MM:SS.mmm".
func ArrivalFromElapsed(duration, startClock string) string {
	if duration == "" || startClock == "" {
		return ""
	}
	start, ok := ParseClock(startClock)
	if !ok {
		return ""
	}
	return formatClock((start + ParseDuration(duration)) % msPerDay)
}

// RunningMillis is how long a competitor who started at startClock has
// been on stage at now. Zero before the start or when start is unparseable.
func RunningMillis(startClock string, now time.Time) int64 {
	start, ok := ParseClock(startClock)
	if !ok {
		return 0
	}
	diff := MillisOfDay(now) - start
	if diff < 0 {
		return 0
	}
	return diff
}

// RunningElapsed formats RunningMillis as the live "MM:SS.mmm" ticker.
func RunningElapsed(startClock string, now time.Time) string {
	ms := RunningMillis(startClock, now)
	return fmt.Sprintf("%02d:%02d.%03d", ms/msPerMinute, (ms%msPerMinute)/msPerSecond, ms%msPerSecond)
}

// HasStarted reports whether now has reached startClock on the same day.
func HasStarted(startClock string, now time.Time) bool {
	start, ok := ParseClock(startClock)
	if !ok {
		return false
	}
	return MillisOfDay(now) >= start
}

// LapDuration differences two consecutive cumulative lap entries. The first
// lap is measured from the stage start clock. Returns "" when either side
// is missing or the difference is negative.
func LapDuration(current, previous, stageStart string) string {
	if !hasMinutes(current) {
		return ""
	}
	cur := ParseDuration(current)

	var prev int64
	switch {
	case previous != "":
		if !hasMinutes(previous) {
			return ""
		}
		prev = ParseDuration(previous)
	case stageStart != "":
		start, ok := ParseClock(stageStart)
		if !ok {
			return ""
		}
		prev = start
	default:
		return ""
	}

	diff := cur - prev
	if diff < 0 {
		return ""
	}
	return FormatElapsed(diff)
}

// MillisOfDay returns milliseconds elapsed since local midnight of t.
func MillisOfDay(t time.Time) int64 {
	h, m, s := t.Clock()
	return int64(h)*msPerHour + int64(m)*msPerMinute + int64(s)*msPerSecond + int64(t.Nanosecond()/int(time.Millisecond))
}

// ClockString is the "now" button value: t as "HH:MM:SS.mmm".
func ClockString(t time.Time) string {
	return t.Format("15:04:05.000")
}

// FormatElapsed renders milliseconds as "M:SS.mmm", including zero.
func FormatElapsed(ms int64) string {
	return fmt.Sprintf("%d:%02d.%03d", ms/msPerMinute, (ms%msPerMinute)/msPerSecond, ms%msPerSecond)
}

func formatClock(ms int64) string {
	return fmt.Sprintf("%02d:%02d:%02d.%03d",
		ms/msPerHour, (ms%msPerHour)/msPerMinute, (ms%msPerMinute)/msPerSecond, ms%msPerSecond)
}

func hasMinutes(text string) bool {
	return strings.Contains(text, ":")
}

// parseSeconds reads "SS.mmm". Extra fraction digits are truncated, short
// ones are right-padded ("5.5" is 5500ms).
func parseSeconds(text string) int64 {
	whole, frac, _ := strings.Cut(strings.TrimSpace(text), ".")
	ms := leadingInt(whole) * msPerSecond

	digits := 0
	var fraction int64
	for _, r := range frac {
		if r < '0' || r > '9' || digits == 3 {
			break
		}
		fraction = fraction*10 + int64(r-'0')
		digits++
	}
	for ; digits > 0 && digits < 3; digits++ {
		fraction *= 10
	}
	return ms + fraction
}

// leadingInt parses the leading run of digits, ignoring anything after.
func leadingInt(text string) int64 {
	var n int64
	for _, r := range strings.TrimSpace(text) {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int64(r-'0')
	}
	return n
}
