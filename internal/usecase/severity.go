package usecase

import (
	"fmt"
	"math"

	"attestor/internal/domain"
)

// Severity scoring bounds. Each component normalizes its raw signal into 0-1
// before averaging, so one runaway metric cannot saturate the composite.
const (
	eiiDeltaFloor       = -10.0 // 30-day EII drop treated as worst case
	withdrawalRateCeil  = 50.0  // withdrawal percentage treated as worst case
	securityAnomalyCeil = 10.0  // anomaly count treated as worst case

	riskLowCeil      = 0.3
	riskModerateCeil = 0.6
)

// ComputeSeverityScore folds the statistical analysis into one bounded risk
// figure. Scores above riskModerateCeil always require human review.
func ComputeSeverityScore(analysis domain.StatisticalAnalysis) domain.SeverityScore {
	eiiComponent := clamp01(analysis.EII.Delta30d / eiiDeltaFloor)
	consentComponent := clamp01(analysis.Consent.WithdrawalRate / withdrawalRateCeil)
	securityComponent := clamp01(float64(analysis.Security.AnomaliesDetected) / securityAnomalyCeil)

	score := (eiiComponent + consentComponent + securityComponent) / 3

	var level domain.RiskLevel
	switch {
	case score < riskLowCeil:
		level = domain.RiskLow
	case score < riskModerateCeil:
		level = domain.RiskModerate
	default:
		level = domain.RiskCritical
	}

	return domain.SeverityScore{
		Score:             round3(score),
		Level:             level,
		EIIComponent:      round3(eiiComponent),
		ConsentComponent:  round3(consentComponent),
		SecurityComponent: round3(securityComponent),
		Explanation: fmt.Sprintf(
			"EII 30-day delta %.2f contributes %.3f; withdrawal rate %.2f%% contributes %.3f; %d security anomalies contribute %.3f; average %.3f is %s risk",
			analysis.EII.Delta30d, eiiComponent,
			analysis.Consent.WithdrawalRate, consentComponent,
			analysis.Security.AnomaliesDetected, securityComponent,
			score, level),
	}
}

// RequiresHumanReview reports whether a severity score is past the autonomy
// threshold.
func RequiresHumanReview(score domain.SeverityScore) bool {
	return score.Score > riskModerateCeil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
