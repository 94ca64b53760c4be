package ledger

import (
	"go-cropwatch/config"
	"go-cropwatch/types"
)

// SeverityFor derives an alert's severity from its latest cluster
// metrics. Density raises severity: a smaller radius promotes a case
// count that would not qualify on its own.
//
//	high:   cases >= HighCaseCount, or cases >= HighDenseCases within HighDenseRadiusKM
//	medium: cases >= MediumCaseCount, or cases >= MediumDenseCases within MediumDenseRadiusKM
//	low:    everything else
func SeverityFor(caseCount int, radiusKM float64, cfg config.Config) types.Severity {
	switch {
	case caseCount >= cfg.HighCaseCount:
		return types.High
	case caseCount >= cfg.HighDenseCases && radiusKM <= cfg.HighDenseRadiusKM:
		return types.High
	case caseCount >= cfg.MediumCaseCount:
		return types.Medium
	case caseCount >= cfg.MediumDenseCases && radiusKM <= cfg.MediumDenseRadiusKM:
		return types.Medium
	default:
		return types.Low
	}
}
