package adherence

// RiskLabel buckets adherence into coarse risk levels.
type RiskLabel string

const (
	RiskLow    RiskLabel = "Low"
	RiskMedium RiskLabel = "Medium"
	RiskHigh   RiskLabel = "High"
)

// Lower bounds of the Low and Medium bands, both inclusive.
const (
	LowRiskThreshold    = 80.0
	MediumRiskThreshold = 60.0
)

// Classify maps an adherence percentage to a risk label.
func Classify(percentage float64) RiskLabel {
	switch {
	case percentage >= LowRiskThreshold:
		return RiskLow
	case percentage >= MediumRiskThreshold:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// Severity orders labels from least (0) to most (2) severe.
func (r RiskLabel) Severity() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	default:
		return 2
	}
}
