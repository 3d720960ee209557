package clock

import (
	"time"

	"github.com/kpango/fastime"
)

// Now returns current time
func Now() time.Time {
	return fastime.Now()
}

// Since returns the time elapsed since the given instant
// as observed by the cached clock.
func Since(start time.Time) time.Duration {
	return Now().Sub(start)
}

// MillisSince returns the number of whole milliseconds elapsed
// since the given instant.
func MillisSince(start time.Time) int64 {
	return Since(start).Milliseconds()
}

// MillisToSeconds converts a millisecond quantity to seconds.
func MillisToSeconds(millis float64) float64 {
	return millis / float64(time.Second/time.Millisecond)
}
