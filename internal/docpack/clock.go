package docpack

import "time"

// Clock supplies wall-clock time for generated_at stamps and evidence
// file names. Tests substitute a fixed clock so outputs are reproducible.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real time.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// EpochMillis returns t as milliseconds since the Unix epoch.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}

// NowMillis is EpochMillis(c.Now()) with a nil clock meaning SystemClock.
func NowMillis(c Clock) int64 {
	if c == nil {
		c = SystemClock{}
	}
	return EpochMillis(c.Now())
}
