package adherence

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// Clock abstracts the wall clock so evaluation instants can be injected.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.At }

// Date returns the calendar date as midnight UTC.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf returns the calendar date of t as seen in loc, normalised to
// midnight UTC. A nil loc means UTC.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return Date(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string into a calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Date(t.Year(), t.Month(), t.Day()), nil
}

// FormatDate renders a calendar date as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// AddDays moves a calendar date by n days.
func AddDays(d time.Time, n int) time.Time {
	return d.AddDate(0, 0, n)
}

// DaysBetween returns the number of whole days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

// DateRange enumerates length consecutive dates starting at start.
// A non-positive length yields nil.
func DateRange(start time.Time, length int) []time.Time {
	if length <= 0 {
		return nil
	}
	days := make([]time.Time, 0, length)
	for i := 0; i < length; i++ {
		days = append(days, AddDays(start, i))
	}
	return days
}

// EndOfDay returns the last instant of calendar date d in loc.
func EndOfDay(d time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// StartOfDay returns the first instant of calendar date d in loc.
func StartOfDay(d time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// ParseWeekday accepts full or abbreviated English weekday names in any case.
func ParseWeekday(name string) (time.Weekday, error) {
	wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", name)
	}
	return wd, nil
}

// Weekdays is a set of schedule days kept in Monday..Sunday order.
// The empty set means every day.
type Weekdays []time.Weekday

// ParseWeekdays parses names into a deduplicated, ordered set.
func ParseWeekdays(names []string) (Weekdays, error) {
	days := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		wd, err := ParseWeekday(n)
		if err != nil {
			return nil, err
		}
		days = append(days, wd)
	}
	return NewWeekdays(days...), nil
}

// NewWeekdays collapses duplicates and orders the days Monday first.
func NewWeekdays(days ...time.Weekday) Weekdays {
	uniq := lo.Uniq(days)
	out := make(Weekdays, 0, len(uniq))
	for _, wd := range mondayFirst {
		if lo.Contains(uniq, wd) {
			out = append(out, wd)
		}
	}
	return out
}

var mondayFirst = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

// Everyday reports whether the set places no restriction on the weekday.
func (w Weekdays) Everyday() bool { return len(w) == 0 }

// Includes reports whether a date falling on wd is scheduled.
func (w Weekdays) Includes(wd time.Weekday) bool {
	return w.Everyday() || lo.Contains(w, wd)
}

// Names returns the English names of the days.
func (w Weekdays) Names() []string {
	return lo.Map(w, func(wd time.Weekday, _ int) string { return wd.String() })
}

// Union merges several sets. If any of them is the every-day set the
// result is the every-day set as well.
func Union(sets ...Weekdays) Weekdays {
	var all []time.Weekday
	for _, s := range sets {
		if s.Everyday() {
			return Weekdays{}
		}
		all = append(all, s...)
	}
	return NewWeekdays(all...)
}
