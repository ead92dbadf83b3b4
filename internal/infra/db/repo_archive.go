package db

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"attestor/internal/domain"
)

// ArchiveRepository persists verification and analysis outcomes for query.
// A nil handle disables every method without error so callers never branch
// on whether the archive is wired.
type ArchiveRepository struct {
	db *gorm.DB
}

func NewArchiveRepository(db *gorm.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

func (r *ArchiveRepository) Enabled() bool {
	return r != nil && r.db != nil
}

func (r *ArchiveRepository) SaveReport(ctx context.Context, report domain.IntegrityReport) error {
	if !r.Enabled() {
		return nil
	}
	raw, err := json.Marshal(report)
	if err != nil {
		return err
	}
	runAt, _ := time.Parse(time.RFC3339, report.Timestamp)
	model := IntegrityReportModel{
		ID:               uuid.NewString(),
		RunAt:            runAt,
		Scope:            strings.Join(report.VerificationScope, ","),
		SystemState:      string(report.SystemState),
		TotalIssues:      report.TotalIssues,
		AutoRepaired:     report.AutoRepaired,
		HumanReview:      report.RequiresHumanReview,
		GlobalMerkleRoot: report.GlobalMerkleRoot,
		ReportJSON:       raw,
		CreatedAt:        time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *ArchiveRepository) RecentReports(ctx context.Context, limit int) ([]domain.IntegrityReport, error) {
	if !r.Enabled() {
		return nil, errDBUnavailable
	}
	if limit <= 0 {
		limit = 20
	}
	var models []IntegrityReportModel
	err := r.db.WithContext(ctx).
		Order("run_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	reports := make([]domain.IntegrityReport, 0, len(models))
	for _, model := range models {
		var report domain.IntegrityReport
		if err := json.Unmarshal(model.ReportJSON, &report); err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (r *ArchiveRepository) IndexProof(ctx context.Context, record domain.ActiveProofRecord) error {
	if !r.Enabled() {
		return nil
	}
	issuedAt, _ := time.Parse(time.RFC3339, record.IssuedAt)
	expiresAt, _ := time.Parse(time.RFC3339, record.ExpiresAt)
	model := IssuedProofModel{
		ID:              uuid.NewString(),
		ArtifactID:      record.ArtifactID,
		ArtifactHash:    record.ArtifactHash,
		IssuedAt:        issuedAt,
		ExpiresAt:       expiresAt,
		LedgerReference: record.LedgerReference,
		Status:          record.Status,
		CreatedAt:       time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *ArchiveRepository) SaveAnalysis(ctx context.Context, result domain.AnalysisResult) error {
	if !r.Enabled() {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return err
	}
	runAt, _ := time.Parse(time.RFC3339, result.Timestamp)
	score := ComputedSeverity(result)
	model := AnalysisRunModel{
		ID:            uuid.NewString(),
		RunAt:         runAt,
		SeverityScore: score.Score,
		RiskLevel:     string(score.Level),
		TTIScore:      result.TrustTrajectory.TTIScore,
		InsightCount:  len(result.Insights),
		ResultJSON:    raw,
		CreatedAt:     time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

// ComputedSeverity extracts the run's composite from its insights; an
// insight-free run is low risk by definition.
func ComputedSeverity(result domain.AnalysisResult) domain.SeverityScore {
	if len(result.Insights) == 0 {
		return domain.SeverityScore{Level: domain.RiskLow}
	}
	first := result.Insights[0]
	return domain.SeverityScore{Score: first.SeverityScore, Level: first.Severity}
}
