package feedback

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"theralink-server/internal/adherence"
)

// RuleProvider is the deterministic provider used whenever the primary one
// is missing or fails. It never returns an error.
type RuleProvider struct{}

// Name implements Provider.
func (RuleProvider) Name() string { return "rules" }

// Generate implements Provider.
func (RuleProvider) Generate(_ context.Context, in Input) (string, error) {
	pct := adherence.Round2(in.Percentage)
	switch in.Risk {
	case adherence.RiskLow:
		return fmt.Sprintf("Great work! You have taken %.0f%% of your doses. Keep following your routine.", pct), nil
	case adherence.RiskMedium:
		return fmt.Sprintf("You are at %.0f%% adherence. Try taking your medication at the same time every day to stay consistent.", pct), nil
	}

	if med, missed, ok := MostMissed(in.MissedDays); ok {
		return fmt.Sprintf("Your adherence is %.0f%%. You have missed %s %d %s recently; please talk to your care team about what is getting in the way.",
			pct, med, missed, plural(missed, "time", "times")), nil
	}
	return fmt.Sprintf("Your adherence is %.0f%%. Please log your doses and reach out to your care team if you need support.", pct), nil
}

// MostMissed returns the medication with the most missed days. Ties go to
// the alphabetically first name. ok is false when nothing was missed.
func MostMissed(missed map[string]adherence.MissedDayInfo) (medication string, count int, ok bool) {
	names := lo.Keys(missed)
	sort.Strings(names)
	for _, name := range names {
		if n := missed[name].TotalMissed; n > count {
			medication, count = name, n
		}
	}
	return medication, count, count > 0
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
