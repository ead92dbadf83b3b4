package usecase

import (
	"fmt"
	"math"

	"attestor/internal/domain"
)

// MLEngine is the optional heuristic layer on top of the statistical
// analysis. Every output carries its own explanation; an unexplainable score
// is a bug, not a feature. The layer is advisory and never gates a decision
// on its own.
type MLEngine struct {
	Stats *StatisticsEngine
}

func NewMLEngine(stats *StatisticsEngine) *MLEngine {
	return &MLEngine{Stats: stats}
}

const (
	anomalyZScoreThreshold = 2.0
	forecastWindowDays     = 90
)

func (e *MLEngine) Analyze() (*domain.MLAnalysis, error) {
	series, err := e.Stats.eiiSeries()
	if err != nil {
		return nil, err
	}
	analysis := &domain.MLAnalysis{
		Anomalies: e.detectAnomalies(series),
		Forecast:  e.forecastEII(series),
		Patterns:  e.detectPatterns(series),
	}
	return analysis, nil
}

// detectAnomalies flags observations beyond two standard deviations from the
// series mean.
func (e *MLEngine) detectAnomalies(series []timedValue) []domain.MLAnomaly {
	if len(series) < 5 {
		return nil
	}
	values := make([]float64, len(series))
	for i, obs := range series {
		values[i] = obs.Value
	}
	m := mean(values)
	sd := stddev(values)
	if sd == 0 {
		return nil
	}

	var anomalies []domain.MLAnomaly
	for _, obs := range series {
		z := (obs.Value - m) / sd
		if math.Abs(z) < anomalyZScoreThreshold {
			continue
		}
		anomalies = append(anomalies, domain.MLAnomaly{
			Metric: "eii",
			Score:  round3(math.Abs(z)),
			Explanation: fmt.Sprintf(
				"EII %.2f on %s is %.2f standard deviations from the series mean %.2f",
				obs.Value, obs.At.Format("2006-01-02"), z, m),
		})
	}
	return anomalies
}

// forecastEII projects the EII thirty days ahead by ordinary least squares
// over the recent window. Confidence shrinks with volatility and with sparse
// history.
func (e *MLEngine) forecastEII(series []timedValue) domain.MLForecast {
	if len(series) < 2 {
		current := 0.0
		if len(series) == 1 {
			current = series[0].Value
		}
		return domain.MLForecast{EII30d: round2(current), Confidence: 0.1}
	}

	cutoff := series[len(series)-1].At.AddDate(0, 0, -forecastWindowDays)
	var window []timedValue
	for _, obs := range series {
		if !obs.At.Before(cutoff) {
			window = append(window, obs)
		}
	}
	if len(window) < 2 {
		window = series
	}

	origin := window[0].At
	var xs, ys []float64
	for _, obs := range window {
		xs = append(xs, obs.At.Sub(origin).Hours()/24)
		ys = append(ys, obs.Value)
	}
	slope, intercept := leastSquares(xs, ys)

	lastX := xs[len(xs)-1]
	forecast := intercept + slope*(lastX+30)

	residuals := make([]float64, len(xs))
	for i := range xs {
		residuals[i] = ys[i] - (intercept + slope*xs[i])
	}
	confidence := 0.9 - stddev(residuals)/10 - 2.0/float64(len(window))
	if confidence < 0.1 {
		confidence = 0.1
	}

	return domain.MLForecast{
		EII30d:     round2(clampScore(forecast)),
		Confidence: round3(confidence),
	}
}

// detectPatterns looks for sustained monotonic runs, the one shape the
// statistical deltas can miss when the series oscillates around the window
// boundaries.
func (e *MLEngine) detectPatterns(series []timedValue) []domain.MLPattern {
	const minRun = 4
	if len(series) < minRun {
		return nil
	}

	var patterns []domain.MLPattern
	run := 1
	direction := 0
	for i := 1; i < len(series); i++ {
		d := sign(series[i].Value - series[i-1].Value)
		if d != 0 && d == direction {
			run++
		} else {
			run = 1
			direction = d
		}
		if run == minRun && direction != 0 {
			shape := "decline"
			if direction > 0 {
				shape = "climb"
			}
			patterns = append(patterns, domain.MLPattern{
				PatternID:   fmt.Sprintf("eii-sustained-%s-%s", shape, series[i].At.Format("2006-01-02")),
				Description: fmt.Sprintf("EII moved in the same direction for %d consecutive observations ending %s", minRun, series[i].At.Format("2006-01-02")),
				Significance: round3(math.Min(1,
					math.Abs(series[i].Value-series[i-minRun+1].Value)/10)),
			})
		}
	}
	return patterns
}

func leastSquares(xs, ys []float64) (slope, intercept float64) {
	mx := mean(xs)
	my := mean(ys)
	var num, den float64
	for i := range xs {
		num += (xs[i] - mx) * (ys[i] - my)
		den += (xs[i] - mx) * (xs[i] - mx)
	}
	if den == 0 {
		return 0, my
	}
	slope = num / den
	intercept = my - slope*mx
	return slope, intercept
}

func sign(v float64) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
