package usecase

import (
	"time"

	"attestor/internal/domain"
)

// consentStabilityPenalty converts withdrawal pressure into a 0-100 stability
// component: each withdrawal percentage point costs two stability points.
const consentStabilityPenalty = 2.0

// ComputeTrustTrajectory folds the three posture components into the 0-100
// Trust Trajectory Indicator under the configured weights.
func ComputeTrustTrajectory(analysis domain.StatisticalAnalysis, weights domain.TrajectoryWeights, now time.Time) domain.TrustTrajectory {
	weights = normalizeWeights(weights)

	components := domain.TrajectoryComponents{
		EII:              clampScore(analysis.EII.Current),
		ConsentStability: consentStability(analysis.Consent.WithdrawalRate),
		SecurityPosture:  clampScore(analysis.Security.CurrentScore),
	}

	score := weights.EII*components.EII +
		weights.Consent*components.ConsentStability +
		weights.Security*components.SecurityPosture

	// The EII series is the only component with a dense history, so it
	// carries the velocity and volatility reads.
	velocity := analysis.EII.Delta30d

	return domain.TrustTrajectory{
		Timestamp:  now.UTC().Format(time.RFC3339),
		TTIScore:   round2(clampScore(score)),
		Components: components,
		Trend:      trendFromDelta(velocity),
		Velocity:   round2(velocity),
		Volatility: round2(analysis.EII.Volatility),
	}
}

func consentStability(withdrawalRate float64) float64 {
	stability := 100 - consentStabilityPenalty*withdrawalRate
	if stability < 0 {
		return 0
	}
	return round2(stability)
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// normalizeWeights rescales so the weights sum to one; a degenerate all-zero
// set falls back to the defaults.
func normalizeWeights(w domain.TrajectoryWeights) domain.TrajectoryWeights {
	sum := w.EII + w.Consent + w.Security
	if sum <= 0 {
		return domain.TrajectoryWeights{EII: 0.4, Consent: 0.3, Security: 0.3}
	}
	return domain.TrajectoryWeights{
		EII:      w.EII / sum,
		Consent:  w.Consent / sum,
		Security: w.Security / sum,
	}
}
