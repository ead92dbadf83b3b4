package usecase

import (
	"fmt"
	"math"
	"time"

	"attestor/internal/domain"
)

// Insight detection thresholds. Each detector fires independently; an empty
// insight list is the expected steady state.
const (
	eiiDecline30Threshold   = -3.0
	eiiDecline90Threshold   = -5.0
	withdrawalRateThreshold = 10.0
	consentVolatilityLimit  = 5.0
	securityAnomalyLimit    = 2
)

// DeriveInsights runs the detectors over the statistical analysis and the
// optional heuristic layer. The severity score attached to every insight is
// the run's composite, so downstream consumers rank by one shared scale.
func DeriveInsights(analysis domain.StatisticalAnalysis, ml *domain.MLAnalysis, score domain.SeverityScore, now time.Time) []domain.Insight {
	source := domain.InsightStatistical
	if ml != nil {
		source = domain.InsightHybrid
	}
	ts := now.UTC().Format(time.RFC3339)
	review := RequiresHumanReview(score)

	var insights []domain.Insight

	if analysis.EII.Delta30d < eiiDecline30Threshold || analysis.EII.Delta90d < eiiDecline90Threshold {
		insights = append(insights, domain.Insight{
			Timestamp:     ts,
			InsightID:     fmt.Sprintf("eii-decline-%d", now.UnixMilli()),
			Severity:      score.Level,
			SeverityScore: score.Score,
			Description: fmt.Sprintf(
				"Ethics Integrity Index is declining: %.2f over 30 days, %.2f over 90 days",
				analysis.EII.Delta30d, analysis.EII.Delta90d),
			RecommendedAction: "Review recent governance decisions and schedule an ethics board session",
			Confidence: confidenceFrom(
				math.Abs(analysis.EII.Delta30d)/10,
				analysis.EII.Volatility),
			Evidence: map[string]float64{
				"delta_30d":  analysis.EII.Delta30d,
				"delta_90d":  analysis.EII.Delta90d,
				"volatility": analysis.EII.Volatility,
			},
			Source:              source,
			RequiresHumanReview: review,
		})
	}

	if analysis.Consent.WithdrawalRate > withdrawalRateThreshold || analysis.Consent.Volatility > consentVolatilityLimit {
		insights = append(insights, domain.Insight{
			Timestamp:     ts,
			InsightID:     fmt.Sprintf("consent-pressure-%d", now.UnixMilli()),
			Severity:      score.Level,
			SeverityScore: score.Score,
			Description: fmt.Sprintf(
				"Consent withdrawal pressure detected: %.2f%% withdrawal rate, volatility %.2f",
				analysis.Consent.WithdrawalRate, analysis.Consent.Volatility),
			RecommendedAction: "Audit recent consent-affecting changes and notify the data protection officer",
			Confidence: confidenceFrom(
				analysis.Consent.WithdrawalRate/withdrawalRateCeil,
				analysis.Consent.Volatility),
			Evidence: map[string]float64{
				"withdrawal_rate": analysis.Consent.WithdrawalRate,
				"volatility":      analysis.Consent.Volatility,
				"total_users":     float64(analysis.Consent.TotalUsers),
			},
			Source:              source,
			RequiresHumanReview: review,
		})
	}

	if analysis.Security.AnomaliesDetected > securityAnomalyLimit || analysis.Security.Trend == domain.TrendDeclining {
		insights = append(insights, domain.Insight{
			Timestamp:     ts,
			InsightID:     fmt.Sprintf("security-posture-%d", now.UnixMilli()),
			Severity:      score.Level,
			SeverityScore: score.Score,
			Description: fmt.Sprintf(
				"Security posture concern: %d anomalies, trend %s",
				analysis.Security.AnomaliesDetected, analysis.Security.Trend),
			RecommendedAction: "Run a federation re-verification and review anomaly records",
			Confidence: confidenceFrom(
				float64(analysis.Security.AnomaliesDetected)/securityAnomalyCeil, 0),
			Evidence: map[string]float64{
				"anomalies":     float64(analysis.Security.AnomaliesDetected),
				"current_score": analysis.Security.CurrentScore,
			},
			Source:              source,
			RequiresHumanReview: review,
		})
	}

	if ml != nil {
		for _, anomaly := range ml.Anomalies {
			insights = append(insights, domain.Insight{
				Timestamp:           ts,
				InsightID:           fmt.Sprintf("ml-anomaly-%s-%d", anomaly.Metric, now.UnixMilli()),
				Severity:            score.Level,
				SeverityScore:       score.Score,
				Description:         anomaly.Explanation,
				RecommendedAction:   "Inspect the flagged observation against its ledger entry",
				Confidence:          round3(math.Min(0.95, anomaly.Score/4)),
				Evidence:            map[string]float64{"z_score": anomaly.Score},
				Source:              domain.InsightHybrid,
				RequiresHumanReview: review,
			})
		}
	}

	return insights
}

// confidenceFrom scales raw signal strength into a 0.3-0.95 confidence band,
// discounted by volatility. Strong stable signals approach the ceiling; weak
// noisy ones stay near the floor.
func confidenceFrom(strength, volatility float64) float64 {
	c := 0.3 + 0.65*clamp01(strength) - 0.02*volatility
	if c < 0.3 {
		c = 0.3
	}
	if c > 0.95 {
		c = 0.95
	}
	return round3(c)
}
