// Package clock provides the UTC time source and the local calendar date derivation
// used everywhere a user's "today" is needed.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// maxOffsetMinutes bounds accepted timezone offsets (UTC-14:00..UTC+14:00).
const maxOffsetMinutes = 14 * 60

const dateLayout = "2006-01-02"

// Clock is a source of the current instant.
type Clock interface {
	Now() time.Time
}

// System reads the wall clock.
type System struct{}

// Now returns the current UTC instant.
func (System) Now() time.Time {
	return time.Now().UTC()
}

// Fixed always returns the same instant.
type Fixed struct {
	At time.Time
}

// Now returns the fixed instant.
func (f Fixed) Now() time.Time {
	return f.At.UTC()
}

// Offset is a client supplied timezone offset in minutes to add to UTC.
// An invalid Offset means the server local timezone applies.
type Offset struct {
	Minutes int
	Valid   bool
}

// UTC is the zero offset.
var UTC = Offset{Minutes: 0, Valid: true}

// Minutes builds a valid offset.
func Minutes(m int) Offset {
	return Offset{Minutes: m, Valid: true}
}

// ParseOffset parses a signed integer number of minutes.
// Empty, malformed or out-of-range input yields an invalid offset.
func ParseOffset(raw string) Offset {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Offset{}
	}
	m, err := strconv.Atoi(raw)
	if err != nil || m < -maxOffsetMinutes || m > maxOffsetMinutes {
		return Offset{}
	}
	return Minutes(m)
}

// String renders the offset for logs.
func (o Offset) String() string {
	if !o.Valid {
		return "local"
	}
	return strconv.Itoa(o.Minutes)
}

// Date is a calendar day with no time of day or zone.
type Date struct {
	t time.Time // midnight UTC
}

// NewDate builds a date, normalizing overflowing components like time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// LocalDate converts a UTC instant into the user's calendar date.
func LocalDate(instant time.Time, offset Offset) Date {
	var local time.Time
	if offset.Valid {
		local = instant.UTC().Add(time.Duration(offset.Minutes) * time.Minute)
	} else {
		local = instant.In(time.Local)
	}
	return NewDate(local.Year(), local.Month(), local.Day())
}

// DateOf interprets a stored date column (midnight in any zone) as a Date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// IsZero reports whether the date is unset.
func (d Date) IsZero() bool {
	return d.t.IsZero()
}

// AddDays shifts the date by n days.
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// MondayIndex returns the weekday index with Monday=0 and Sunday=6.
func (d Date) MondayIndex() int {
	return (int(d.t.Weekday()) + 6) % 7
}

// WeekStart returns the Monday of the date's week.
func (d Date) WeekStart() Date {
	return d.AddDays(-d.MondayIndex())
}

// DaysSince returns the number of days from other to d.
func (d Date) DaysSince(other Date) int {
	return int(d.t.Sub(other.t) / (24 * time.Hour))
}

// Equal reports whether both dates name the same day.
func (d Date) Equal(other Date) bool {
	return d.t.Equal(other.t)
}

// Before reports whether d is earlier than other.
func (d Date) Before(other Date) bool {
	return d.t.Before(other.t)
}

// After reports whether d is later than other.
func (d Date) After(other Date) bool {
	return d.t.After(other.t)
}

// Time returns midnight UTC of the date, the form stored in date columns.
func (d Date) Time() time.Time {
	return d.t
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.t.Format(dateLayout)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
