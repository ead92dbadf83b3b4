package domain

type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

type EIIAnalysis struct {
	Current    float64 `json:"current"`
	Delta30d   float64 `json:"delta_30d"`
	Delta90d   float64 `json:"delta_90d"`
	Volatility float64 `json:"volatility"`
	Trend      Trend   `json:"trend"`
}

type ConsentAnalysis struct {
	TotalUsers     int                `json:"total_users"`
	WithdrawalRate float64            `json:"withdrawal_rate"`
	CategoryShifts map[string]float64 `json:"category_shifts"`
	Volatility     float64            `json:"volatility"`
}

type SecurityAnalysis struct {
	CurrentScore      float64 `json:"current_score"`
	AnomaliesDetected int     `json:"anomalies_detected"`
	Trend             Trend   `json:"trend"`
}

// StatisticalAnalysis is the EWA engine's read-only view of the ledgers.
type StatisticalAnalysis struct {
	EII      EIIAnalysis      `json:"eii_analysis"`
	Consent  ConsentAnalysis  `json:"consent_analysis"`
	Security SecurityAnalysis `json:"security_analysis"`
}

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskCritical RiskLevel = "critical"
)

// SeverityScore is the multi-factor composite: three 0-1 components averaged.
type SeverityScore struct {
	Score             float64   `json:"score"`
	Level             RiskLevel `json:"level"`
	EIIComponent      float64   `json:"eii_component"`
	ConsentComponent  float64   `json:"consent_component"`
	SecurityComponent float64   `json:"security_component"`
	Explanation       string    `json:"explanation"`
}

// TrustTrajectory is the composite 0-100 trust indicator.
type TrustTrajectory struct {
	Timestamp  string               `json:"timestamp"`
	TTIScore   float64              `json:"tti_score"`
	Components TrajectoryComponents `json:"components"`
	Trend      Trend                `json:"trend"`
	Velocity   float64              `json:"velocity"`
	Volatility float64              `json:"volatility"`
}

type TrajectoryComponents struct {
	EII              float64 `json:"eii"`
	ConsentStability float64 `json:"consent_stability"`
	SecurityPosture  float64 `json:"security_posture"`
}

// TrajectoryWeights are config-overridable; defaults 0.4/0.3/0.3.
type TrajectoryWeights struct {
	EII      float64 `json:"eii"`
	Consent  float64 `json:"consent"`
	Security float64 `json:"security"`
}

// Heuristic layer output. Advisory only; every value must be explainable.
type MLAnomaly struct {
	Metric      string  `json:"metric"`
	Score       float64 `json:"score"`
	Explanation string  `json:"explanation"`
}

type MLForecast struct {
	EII30d     float64 `json:"eii_30d"`
	Confidence float64 `json:"confidence"`
}

type MLPattern struct {
	PatternID    string  `json:"pattern_id"`
	Description  string  `json:"description"`
	Significance float64 `json:"significance"`
}

type MLAnalysis struct {
	Anomalies []MLAnomaly `json:"anomalies"`
	Forecast  MLForecast  `json:"forecast"`
	Patterns  []MLPattern `json:"patterns"`
}

type InsightSource string

const (
	InsightStatistical InsightSource = "statistical"
	InsightHybrid      InsightSource = "hybrid"
)

type Insight struct {
	Timestamp           string             `json:"timestamp"`
	InsightID           string             `json:"insight_id"`
	Severity            RiskLevel          `json:"severity"`
	SeverityScore       float64            `json:"severity_score"`
	Description         string             `json:"description"`
	RecommendedAction   string             `json:"recommended_action"`
	Confidence          float64            `json:"confidence"`
	Evidence            map[string]float64 `json:"evidence"`
	Source              InsightSource      `json:"source"`
	RequiresHumanReview bool               `json:"requires_human_review"`
}

type RecommendationPriority string

const (
	PriorityHigh   RecommendationPriority = "high"
	PriorityMedium RecommendationPriority = "medium"
	PriorityLow    RecommendationPriority = "low"
)

type Recommendation struct {
	RecommendationID string                 `json:"recommendation_id"`
	Priority         RecommendationPriority `json:"priority"`
	Category         string                 `json:"category"`
	Action           string                 `json:"action"`
	Rationale        string                 `json:"rationale"`
	SourceInsightID  string                 `json:"source_insight_id,omitempty"`
}

// AnalysisResult bundles one full EWA run.
type AnalysisResult struct {
	Timestamp       string              `json:"timestamp"`
	Statistical     StatisticalAnalysis `json:"statistical"`
	ML              *MLAnalysis         `json:"ml,omitempty"`
	Insights        []Insight           `json:"insights"`
	TrustTrajectory TrustTrajectory     `json:"trust_trajectory"`
	Recommendations []Recommendation    `json:"recommendations"`
}
