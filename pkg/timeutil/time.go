package timeutil

import (
	"sync"
	"time"
)

// Clock is the time source threaded through billing code.
// Production code uses SystemClock; tests pin time with FixedClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock
func (SystemClock) Now() time.Time {
	return Now()
}

// FixedClock returns a settable instant. Safe for concurrent use.
type FixedClock struct {
	mu sync.RWMutex
	t  time.Time
}

// NewFixedClock creates a clock frozen at t
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{t: t.UTC()}
}

// Now implements Clock
func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t
}

// Set moves the clock to t
func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t.UTC()
	c.mu.Unlock()
}

// Advance moves the clock forward by d
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// Now returns the current time in UTC
// Always use this instead of time.Now() to ensure timezone consistency
func Now() time.Time {
	return time.Now().UTC()
}

// DateLayout is the calendar-day format accepted for as-of dates
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD day as midnight UTC
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// StartOfDay returns the start of the day (midnight) in UTC
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in UTC
func EndOfDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 23, 59, 59, 999999999, time.UTC)
}

// DayWindow returns the inclusive [start, end] bounds of t's UTC day
func DayWindow(t time.Time) (time.Time, time.Time) {
	return StartOfDay(t), EndOfDay(t)
}

// AddMonths adds n calendar months, clamping the day to the last day of
// the target month (Jan 31 + 1 month = Feb 28/29). time.AddDate would
// normalize into the following month instead.
func AddMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	target := time.Date(year, month+time.Month(n), 1, hour, min, sec, t.Nanosecond(), t.Location())
	if last := DaysInMonth(target); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

// DaysInMonth returns the number of days in t's month
func DaysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// ToUTC converts a time.Time to UTC if it isn't already
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}
