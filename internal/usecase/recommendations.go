package usecase

import (
	"fmt"
	"strings"

	"attestor/internal/domain"
)

// DeriveRecommendations maps insights and the trajectory onto concrete
// governance actions. One recommendation per insight, plus a trajectory-level
// recommendation when the composite indicator is moving the wrong way.
func DeriveRecommendations(insights []domain.Insight, trajectory domain.TrustTrajectory) []domain.Recommendation {
	var recommendations []domain.Recommendation

	for i, insight := range insights {
		recommendations = append(recommendations, domain.Recommendation{
			RecommendationID: fmt.Sprintf("rec-%s-%d", insight.InsightID, i),
			Priority:         priorityFor(insight.Severity),
			Category:         categoryFor(insight.InsightID),
			Action:           insight.RecommendedAction,
			Rationale:        insight.Description,
			SourceInsightID:  insight.InsightID,
		})
	}

	if trajectory.Trend == domain.TrendDeclining {
		recommendations = append(recommendations, domain.Recommendation{
			RecommendationID: fmt.Sprintf("rec-trajectory-%s", trajectory.Timestamp),
			Priority:         domain.PriorityHigh,
			Category:         "trust_trajectory",
			Action:           "Convene a governance review of the declining trust trajectory",
			Rationale: fmt.Sprintf(
				"Trust trajectory indicator at %.2f with velocity %.2f over 30 days",
				trajectory.TTIScore, trajectory.Velocity),
		})
	} else if trajectory.TTIScore < 50 {
		recommendations = append(recommendations, domain.Recommendation{
			RecommendationID: fmt.Sprintf("rec-trajectory-%s", trajectory.Timestamp),
			Priority:         domain.PriorityMedium,
			Category:         "trust_trajectory",
			Action:           "Prioritize remediation of the lowest trajectory component",
			Rationale: fmt.Sprintf(
				"Trust trajectory indicator at %.2f is below the midpoint (EII %.1f, consent %.1f, security %.1f)",
				trajectory.TTIScore,
				trajectory.Components.EII,
				trajectory.Components.ConsentStability,
				trajectory.Components.SecurityPosture),
		})
	}

	return recommendations
}

func priorityFor(level domain.RiskLevel) domain.RecommendationPriority {
	switch level {
	case domain.RiskCritical:
		return domain.PriorityHigh
	case domain.RiskModerate:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

func categoryFor(insightID string) string {
	switch {
	case strings.HasPrefix(insightID, "eii-"):
		return "ethics_integrity"
	case strings.HasPrefix(insightID, "consent-"):
		return "consent"
	case strings.HasPrefix(insightID, "security-"):
		return "security"
	case strings.HasPrefix(insightID, "ml-"):
		return "anomaly"
	default:
		return "general"
	}
}
