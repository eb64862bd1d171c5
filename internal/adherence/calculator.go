package adherence

import (
	"math"
	"sort"
	"time"
)

// DefaultGracePeriod makes an unresolved dose count as missed once its
// calendar day is over.
const DefaultGracePeriod = 24 * time.Hour

// GracePolicy decides when an unresolved due dose turns into a missed one.
// Period counts whole calendar days first and then any remaining hours, so
// 24h ends at local midnight even on days that are 23 or 25 hours long.
// Before the deadline the dose is pending and is left out of both the
// numerator and the denominator.
type GracePolicy struct {
	Period   time.Duration
	Location *time.Location
}

// DefaultGracePolicy returns the end-of-day policy in loc.
func DefaultGracePolicy(loc *time.Location) GracePolicy {
	return GracePolicy{Period: DefaultGracePeriod, Location: loc}
}

// Deadline returns the instant at which an unresolved dose on date turns
// into a missed one.
func (g GracePolicy) Deadline(date time.Time) time.Time {
	const day = 24 * time.Hour
	days, rest := int(g.Period/day), g.Period%day
	return StartOfDay(AddDays(date, days), g.Location).Add(rest)
}

// Elapsed reports whether the grace period for date is over at asOf.
func (g GracePolicy) Elapsed(date, asOf time.Time) bool {
	return !asOf.Before(g.Deadline(date))
}

// Resolve returns the effective status of a schedule item at asOf.
func (g GracePolicy) Resolve(item ScheduleItem, ledger Ledger, patientID string, asOf time.Time) (status ScheduleStatus, overdue bool) {
	evaluationDate := DateOf(asOf, g.Location)
	if item.Date.After(evaluationDate) {
		return StatusUpcoming, false
	}
	if st, ok := ledger.StatusOn(patientID, item.Medication, item.Date); ok {
		if st == DoseTaken {
			return StatusTaken, false
		}
		return StatusMissed, false
	}
	return StatusPending, g.Elapsed(item.Date, asOf)
}

// Annotate resolves the status of every item against the ledger. Items that
// are still unresolved keep the pending status and are flagged overdue once
// their grace period has elapsed.
func Annotate(schedule []ScheduleItem, ledger Ledger, patientID string, asOf time.Time, policy GracePolicy) []ScheduleItem {
	evaluationDate := DateOf(asOf, policy.Location)
	out := make([]ScheduleItem, len(schedule))
	for i, item := range schedule {
		item.IsToday = item.Date.Equal(evaluationDate)
		item.IsFuture = item.Date.After(evaluationDate)
		item.Status, item.Overdue = policy.Resolve(item, ledger, patientID, asOf)
		out[i] = item
	}
	return out
}

// Compute reconciles schedule against the ledger as of asOf.
//
// Only items dated on or before the evaluation date are due. Each
// (medication, date) pair is counted once no matter how many treatments
// schedule it. Taken and missed doses form the denominator; unresolved
// doses are pending until the grace period ends and missed afterwards.
// With nothing resolved the percentage is 0.
func Compute(schedule []ScheduleItem, ledger Ledger, patientID string, asOf time.Time, policy GracePolicy) Result {
	type group struct {
		name   string
		days   []Weekdays
		missed []MissedDay
	}
	var (
		order  []string
		groups = make(map[string]*group)
		seen   = make(map[dayKey]bool)
		res    Result
	)

	for _, item := range schedule {
		key := MedicationKey(item.Medication)
		g, ok := groups[key]
		if !ok {
			g = &group{name: item.Medication}
			groups[key] = g
			order = append(order, key)
		}
		g.days = append(g.days, item.ScheduleDays)

		dk := dayKey{patientID, key, normalise(item.Date)}
		if seen[dk] {
			continue
		}
		seen[dk] = true

		status, overdue := policy.Resolve(item, ledger, patientID, asOf)
		switch {
		case status == StatusTaken:
			res.TakenCount++
		case status == StatusMissed, status == StatusPending && overdue:
			res.MissedCount++
			g.missed = append(g.missed, MissedDay{Date: dk.date, Medication: g.name})
		case status == StatusPending:
			res.PendingCount++
		}
	}

	res.Percentage = Percentage(res.TakenCount, res.MissedCount)
	res.MissedDays = make(map[string]MissedDayInfo, len(order))
	for _, key := range order {
		g := groups[key]
		sort.SliceStable(g.missed, func(i, j int) bool {
			return g.missed[i].Date.After(g.missed[j].Date)
		})
		missed := g.missed
		if missed == nil {
			missed = []MissedDay{}
		}
		res.MissedDays[g.name] = MissedDayInfo{
			ScheduledDays: Union(g.days...),
			MissedDays:    missed,
			TotalMissed:   len(missed),
		}
	}
	return res
}

// Percentage returns 100*taken/(taken+missed) clamped to [0, 100], or 0
// when nothing has been resolved.
func Percentage(taken, missed int) float64 {
	total := taken + missed
	if total <= 0 {
		return 0
	}
	p := 100 * float64(taken) / float64(total)
	return math.Max(0, math.Min(100, p))
}

// Round2 rounds p to two decimals for presentation.
func Round2(p float64) float64 {
	return math.Round(p*100) / 100
}
