package usecase

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"attestor/internal/domain"
	"attestor/internal/infra/ledger"
)

// StatisticsEngine computes the descriptive layer of the early-warning
// analysis. Everything here is a plain arithmetic read of the ledgers; no
// value is produced that cannot be recomputed by hand.
type StatisticsEngine struct {
	Store *ledger.Store
	Clock Clock

	logger *slog.Logger
}

func NewStatisticsEngine(store *ledger.Store, clock Clock) *StatisticsEngine {
	if clock == nil {
		clock = time.Now
	}
	return &StatisticsEngine{
		Store:  store,
		Clock:  clock,
		logger: slog.Default().With("component", "statistics"),
	}
}

// timedValue is one scored observation pulled from a ledger.
type timedValue struct {
	At    time.Time
	Value float64
}

func (e *StatisticsEngine) Analyze() (domain.StatisticalAnalysis, error) {
	eii, err := e.AnalyzeEII()
	if err != nil {
		return domain.StatisticalAnalysis{}, err
	}
	consent, err := e.AnalyzeConsent()
	if err != nil {
		return domain.StatisticalAnalysis{}, err
	}
	security, err := e.AnalyzeSecurity()
	if err != nil {
		return domain.StatisticalAnalysis{}, err
	}
	return domain.StatisticalAnalysis{EII: eii, Consent: consent, Security: security}, nil
}

// AnalyzeEII reads the Ethics Integrity Index series from governance baseline
// entries. Deltas compare the newest score against the nearest observation at
// or before the window boundary; volatility is the population standard
// deviation over the trailing thirty observations.
func (e *StatisticsEngine) AnalyzeEII() (domain.EIIAnalysis, error) {
	series, err := e.eiiSeries()
	if err != nil {
		return domain.EIIAnalysis{}, err
	}
	if len(series) == 0 {
		return domain.EIIAnalysis{Trend: domain.TrendStable}, nil
	}

	now := e.Clock().UTC()
	current := series[len(series)-1].Value
	delta30 := current - valueAtOrBefore(series, now.AddDate(0, 0, -30), current)
	delta90 := current - valueAtOrBefore(series, now.AddDate(0, 0, -90), current)

	start := len(series) - 30
	if start < 0 {
		start = 0
	}
	var recent []float64
	for _, obs := range series[start:] {
		recent = append(recent, obs.Value)
	}

	return domain.EIIAnalysis{
		Current:    current,
		Delta30d:   round2(delta30),
		Delta90d:   round2(delta90),
		Volatility: round2(stddev(recent)),
		Trend:      trendFromDelta(delta30),
	}, nil
}

// AnalyzeConsent reads withdrawal pressure from the consent event ledger over
// the last 30 days.
func (e *StatisticsEngine) AnalyzeConsent() (domain.ConsentAnalysis, error) {
	entries, _, err := e.Store.Parse(domain.LedgerConsent)
	if err != nil {
		return domain.ConsentAnalysis{}, err
	}

	now := e.Clock().UTC()
	cutoff := now.AddDate(0, 0, -30)

	users := make(map[string]bool)
	total := 0
	withdrawn := 0
	categoryNow := make(map[string]int)
	categoryPrior := make(map[string]int)
	var dailyWithdrawals map[string]int = make(map[string]int)

	for _, entry := range entries {
		t := entry.Time()
		if t.IsZero() {
			continue
		}
		if user := entry.StringField("user_id"); user != "" {
			users[user] = true
		}
		category := entry.StringField("category")
		isWithdrawal := entry.StringField("event_type") == "consent_withdrawn"

		if t.Before(cutoff) {
			if category != "" {
				categoryPrior[category]++
			}
			continue
		}
		total++
		if category != "" {
			categoryNow[category]++
		}
		if isWithdrawal {
			withdrawn++
			dailyWithdrawals[t.Format("2006-01-02")]++
		}
	}

	withdrawalRate := 0.0
	if total > 0 {
		withdrawalRate = float64(withdrawn) / float64(total) * 100
	}

	shifts := make(map[string]float64)
	for category, count := range categoryNow {
		prior := categoryPrior[category]
		if prior == 0 {
			shifts[category] = float64(count)
			continue
		}
		shifts[category] = round2(float64(count-prior) / float64(prior) * 100)
	}

	var daily []float64
	for _, count := range dailyWithdrawals {
		daily = append(daily, float64(count))
	}

	return domain.ConsentAnalysis{
		TotalUsers:     len(users),
		WithdrawalRate: round2(withdrawalRate),
		CategoryShifts: shifts,
		Volatility:     round2(stddev(daily)),
	}, nil
}

// AnalyzeSecurity reads the security posture from the governance ledger: the
// score carried by the latest entry's metrics block, and an anomaly count
// over the last ten entries. Unsigned entries and missing or malformed
// hashes each count as one anomaly.
func (e *StatisticsEngine) AnalyzeSecurity() (domain.SecurityAnalysis, error) {
	entries, _, err := e.Store.Parse(domain.LedgerGovernance)
	if err != nil {
		return domain.SecurityAnalysis{}, err
	}

	score := 88.0 // baseline when no entry carries a metrics block
	if len(entries) > 0 {
		if metrics, ok := entries[len(entries)-1].Extra["metrics"].(map[string]any); ok {
			if s, ok := metrics["security"].(float64); ok {
				score = s
			}
		}
	}

	start := len(entries) - 10
	if start < 0 {
		start = 0
	}
	anomalies := 0
	for _, entry := range entries[start:] {
		if entry.Signature == "" {
			anomalies++
		}
		if !domain.HashPattern.MatchString(entry.Hash) {
			anomalies++
		}
	}

	trend := domain.TrendStable
	switch {
	case anomalies == 0:
		trend = domain.TrendImproving
	case anomalies > 3:
		trend = domain.TrendDeclining
	}

	return domain.SecurityAnalysis{
		CurrentScore:      round2(score),
		AnomaliesDetected: anomalies,
		Trend:             trend,
	}, nil
}

func (e *StatisticsEngine) eiiSeries() ([]timedValue, error) {
	entries, _, err := e.Store.Parse(domain.LedgerGovernance)
	if err != nil {
		return nil, err
	}
	var series []timedValue
	for _, entry := range entries {
		eii, ok := entry.EII()
		if !ok {
			continue
		}
		t := entry.Time()
		if t.IsZero() {
			continue
		}
		series = append(series, timedValue{At: t, Value: eii})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].At.Before(series[j].At) })
	return series, nil
}

// valueAtOrBefore returns the newest observation at or before the boundary,
// or fallback when the series does not reach that far back.
func valueAtOrBefore(series []timedValue, boundary time.Time, fallback float64) float64 {
	value := fallback
	found := false
	for _, obs := range series {
		if obs.At.After(boundary) {
			break
		}
		value = obs.Value
		found = true
	}
	if !found {
		// The oldest observation stands in when history is shorter than
		// the window.
		if len(series) > 0 {
			return series[0].Value
		}
	}
	return value
}

// trendFromDelta classifies a 30-day velocity: beyond +-2 points is a real
// move, inside is noise.
func trendFromDelta(delta float64) domain.Trend {
	switch {
	case delta > 2:
		return domain.TrendImproving
	case delta < -2:
		return domain.TrendDeclining
	default:
		return domain.TrendStable
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
