package entity

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	// DateLayout is the wire format of an appointment day bucket.
	DateLayout = "2006-01-02"

	minutesPerDay = 24 * 60
)

var (
	ErrInvalidClockTime = errors.New("invalid time, use HH:MM")
	ErrInvalidDate      = errors.New("invalid date, use YYYY-MM-DD")
	ErrEmptySlot        = errors.New("start time must be before end time")
)

// ClockTime is a wall-clock time within a day, stored as minutes since midnight.
// 1440 ("24:00") is valid only as the end of a slot.
type ClockTime int

// ParseClockTime parses a zero-padded "HH:MM" value.
func ParseClockTime(s string) (ClockTime, error) {
	if len(s) != 5 || s[2] != ':' || !isDigit(s[0]) || !isDigit(s[1]) || !isDigit(s[3]) || !isDigit(s[4]) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	hours := int(s[0]-'0')*10 + int(s[1]-'0')
	minutes := int(s[3]-'0')*10 + int(s[4]-'0')
	if minutes > 59 || hours > 24 || (hours == 24 && minutes != 0) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClockTime, s)
	}
	return ClockTime(hours*60 + minutes), nil
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Valid reports whether c lies within [00:00, 24:00].
func (c ClockTime) Valid() bool {
	return c >= 0 && c <= minutesPerDay
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(c.String())), nil
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	raw, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidClockTime, data)
	}
	parsed, err := ParseClockTime(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value implements driver.Valuer
func (c ClockTime) Value() (driver.Value, error) {
	return int64(c), nil
}

// Scan implements sql.Scanner
func (c *ClockTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case int64:
		*c = ClockTime(v)
	case int32:
		*c = ClockTime(v)
	case []byte:
		n, err := strconv.Atoi(string(v))
		if err != nil {
			return fmt.Errorf("scan clock time: %w", err)
		}
		*c = ClockTime(n)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("scan clock time: %w", err)
		}
		*c = ClockTime(n)
	default:
		return fmt.Errorf("scan clock time: unsupported type %T", value)
	}
	return nil
}

// Slot is a half-open [Start, End) interval on a single day.
type Slot struct {
	Start ClockTime
	End   ClockTime
}

// NewSlot validates bounds and ordering.
func NewSlot(start, end ClockTime) (Slot, error) {
	if !start.Valid() || !end.Valid() || start == minutesPerDay {
		return Slot{}, ErrInvalidClockTime
	}
	if start >= end {
		return Slot{}, ErrEmptySlot
	}
	return Slot{Start: start, End: end}, nil
}

// ParseSlot parses both bounds and validates ordering.
func ParseSlot(start, end string) (Slot, error) {
	s, err := ParseClockTime(start)
	if err != nil {
		return Slot{}, err
	}
	e, err := ParseClockTime(end)
	if err != nil {
		return Slot{}, err
	}
	return NewSlot(s, e)
}

// Overlaps reports whether [s1,e1) and [s2,e2) intersect.
// Touching bounds (e1 == s2) do not overlap.
func Overlaps(s1, e1, s2, e2 ClockTime) bool {
	return s1 < e2 && s2 < e1
}

func (s Slot) Overlaps(other Slot) bool {
	return Overlaps(s.Start, s.End, other.Start, other.End)
}

func (s Slot) String() string {
	return s.Start.String() + "-" + s.End.String()
}

// ParseDate parses a "YYYY-MM-DD" day bucket into UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
