package schedule

import (
	"errors"
	"fmt"
	"time"
)

const DefaultSlotMinutes = 50

var (
	ErrInvalidDate     = errors.New("invalid date format")
	ErrInvalidTime     = errors.New("invalid time format")
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidWindow   = errors.New("invalid time window")
)

// Window is a contiguous open-for-booking range on a given date,
// expressed as wall-clock times ("15:04").
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Interval is a half-open [Start, End) range in minutes from midnight.
type Interval struct {
	Start int
	End   int
}

// Overlaps reports whether two half-open intervals share at least one
// instant. Back-to-back intervals (a.End == b.Start) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start < b.End && b.Start < a.End
}

func OverlapsAny(current Interval, reserved []Interval) bool {
	for _, r := range reserved {
		if Overlaps(current, r) {
			return true
		}
	}
	return false
}

func ParseDate(dateStr string, loc *time.Location) (time.Time, error) {
	date, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return date, nil
}

func ParseDateTime(dateStr, timeStr string, loc *time.Location) (time.Time, error) {
	if _, err := time.Parse("15:04", timeStr); err != nil {
		return time.Time{}, ErrInvalidTime
	}
	if _, err := ParseDate(dateStr, loc); err != nil {
		return time.Time{}, err
	}

	parsed, err := time.ParseInLocation("2006-01-02 15:04", dateStr+" "+timeStr, loc)
	if err != nil {
		return time.Time{}, ErrInvalidTime
	}
	return parsed, nil
}

func ParseClockToMinutes(timeStr string) (int, error) {
	tm, err := time.Parse("15:04", timeStr)
	if err != nil {
		return 0, ErrInvalidTime
	}
	return tm.Hour()*60 + tm.Minute(), nil
}

func MinutesToClock(minutes int) string {
	h := minutes / 60
	m := minutes % 60
	return fmt.Sprintf("%02d:%02d", h, m)
}

// ParseInterval converts a clock pair into a half-open minute interval.
// The pair must be well-ordered (start strictly before end).
func ParseInterval(startStr, endStr string) (Interval, error) {
	start, err := ParseClockToMinutes(startStr)
	if err != nil {
		return Interval{}, err
	}
	end, err := ParseClockToMinutes(endStr)
	if err != nil {
		return Interval{}, err
	}
	if start >= end {
		return Interval{}, ErrInvalidWindow
	}
	return Interval{Start: start, End: end}, nil
}

func IsDatePast(dateStr string, loc *time.Location, now time.Time) (bool, error) {
	date, err := ParseDate(dateStr, loc)
	if err != nil {
		return false, err
	}
	startToday := time.Date(now.In(loc).Year(), now.In(loc).Month(), now.In(loc).Day(), 0, 0, 0, 0, loc)
	return date.Before(startToday), nil
}

func IsSlotPast(dateStr, timeStr string, loc *time.Location, now time.Time) (bool, error) {
	slot, err := ParseDateTime(dateStr, timeStr, loc)
	if err != nil {
		return false, err
	}
	return !slot.After(now.In(loc)), nil
}

// SlotsInWindow discretizes a window into candidate intervals of the given
// duration, stepping from the window start. A slot ending exactly at the
// window close is valid.
func SlotsInWindow(w Window, duration int) ([]Interval, error) {
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}
	windowInterval, err := ParseInterval(w.Start, w.End)
	if err != nil {
		return nil, err
	}

	slots := make([]Interval, 0)
	for cursor := windowInterval.Start; cursor+duration <= windowInterval.End; cursor += duration {
		slots = append(slots, Interval{Start: cursor, End: cursor + duration})
	}
	return slots, nil
}
