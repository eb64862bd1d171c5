package adherence

import (
	"time"
)

// Expand turns treatments into dated schedule items over the window
// [windowStart, windowStart+days-1]. Dates before a treatment's start date
// and weekdays outside its schedule are skipped. Items are ordered by date
// and, within a date, by the order of treatments. Items dated after today
// are marked upcoming; the rest start out pending.
func Expand(treatments []Treatment, windowStart time.Time, days int, today time.Time) []ScheduleItem {
	if days <= 0 || len(treatments) == 0 {
		return []ScheduleItem{}
	}
	start := normalise(windowStart)
	today = normalise(today)

	items := make([]ScheduleItem, 0, days*len(treatments))
	for _, d := range DateRange(start, days) {
		for _, t := range treatments {
			if d.Before(normalise(t.StartDate)) || !t.ScheduleDays.Includes(d.Weekday()) {
				continue
			}
			item := ScheduleItem{
				TreatmentID:  t.ID,
				Medication:   t.Medication,
				Dosage:       t.Dosage,
				Date:         d,
				IsToday:      d.Equal(today),
				IsFuture:     d.After(today),
				Status:       StatusPending,
				ScheduleDays: t.ScheduleDays,
			}
			if item.IsFuture {
				item.Status = StatusUpcoming
			}
			items = append(items, item)
		}
	}
	return items
}

// EarliestStart returns the earliest start date among treatments and false
// when there are none.
func EarliestStart(treatments []Treatment) (time.Time, bool) {
	if len(treatments) == 0 {
		return time.Time{}, false
	}
	earliest := normalise(treatments[0].StartDate)
	for _, t := range treatments[1:] {
		if s := normalise(t.StartDate); s.Before(earliest) {
			earliest = s
		}
	}
	return earliest, true
}

func normalise(d time.Time) time.Time {
	y, m, day := d.Date()
	return Date(y, m, day)
}
