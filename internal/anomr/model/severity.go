package model

// Severity tiers a flagged bucket by how far its score falls below the boundary.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityNormal   Severity = "normal"
)

// Bands holds the score cutoffs. Critical <= High <= Medium <= 0.
type Bands struct {
	Critical float64
	High     float64
	Medium   float64
}

// DefaultBands are used when no severity configuration is given.
var DefaultBands = Bands{Critical: -0.8, High: -0.5, Medium: -0.2}

// Classify returns the tier for score. Buckets the model did not flag are
// always normal.
func (b Bands) Classify(score float64, isAnomaly bool) Severity {
	switch {
	case !isAnomaly:
		return SeverityNormal
	case score < b.Critical:
		return SeverityCritical
	case score < b.High:
		return SeverityHigh
	case score < b.Medium:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
