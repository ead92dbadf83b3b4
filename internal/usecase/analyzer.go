package usecase

import (
	"context"
	"log/slog"
	"time"

	"attestor/internal/domain"
	"attestor/internal/infra/ledger"
)

// Analyzer orchestrates one full early-warning run: statistics, optional
// heuristic layer, severity, trajectory, insights, recommendations.
type Analyzer struct {
	Stats    *StatisticsEngine
	ML       *MLEngine
	Weights  domain.TrajectoryWeights
	Clock    Clock
	EnableML bool

	logger *slog.Logger
}

func NewAnalyzer(store *ledger.Store, clock Clock, weights domain.TrajectoryWeights, enableML bool) *Analyzer {
	if clock == nil {
		clock = time.Now
	}
	stats := NewStatisticsEngine(store, clock)
	return &Analyzer{
		Stats:    stats,
		ML:       NewMLEngine(stats),
		Weights:  weights,
		Clock:    clock,
		EnableML: enableML,
		logger:   slog.Default().With("component", "analyzer"),
	}
}

func (a *Analyzer) RunAnalysis(ctx context.Context) (domain.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.AnalysisResult{}, err
	}
	now := a.Clock().UTC()

	statistical, err := a.Stats.Analyze()
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	var ml *domain.MLAnalysis
	if a.EnableML {
		ml, err = a.ML.Analyze()
		if err != nil {
			// The heuristic layer is advisory; its failure degrades the run
			// to statistical-only instead of aborting it.
			a.logger.Error("heuristic layer failed, continuing statistical-only", "err", err)
			ml = nil
		}
	}

	score := ComputeSeverityScore(statistical)
	trajectory := ComputeTrustTrajectory(statistical, a.Weights, now)
	insights := DeriveInsights(statistical, ml, score, now)
	recommendations := DeriveRecommendations(insights, trajectory)

	a.logger.Info("analysis complete",
		"severity", score.Score,
		"level", score.Level,
		"tti", trajectory.TTIScore,
		"insights", len(insights))

	return domain.AnalysisResult{
		Timestamp:       now.Format(time.RFC3339),
		Statistical:     statistical,
		ML:              ml,
		Insights:        insights,
		TrustTrajectory: trajectory,
		Recommendations: recommendations,
	}, nil
}
