// Package db is the optional Postgres read model. The JSONL ledgers stay the
// source of truth; these tables exist for dashboard queries and are rebuilt
// from the ledgers at will.
package db

import "time"

type IntegrityReportModel struct {
	ID               string    `gorm:"type:uuid;primaryKey"`
	RunAt            time.Time `gorm:"index;not null"`
	Scope            string    `gorm:"not null"`
	SystemState      string    `gorm:"index;not null"`
	TotalIssues      int       `gorm:"not null"`
	AutoRepaired     int       `gorm:"not null"`
	HumanReview      int       `gorm:"not null"`
	GlobalMerkleRoot string
	ReportJSON       []byte    `gorm:"type:jsonb;not null"`
	CreatedAt        time.Time `gorm:"not null"`
}

func (IntegrityReportModel) TableName() string {
	return "integrity_reports"
}

type IssuedProofModel struct {
	ID              string `gorm:"type:uuid;primaryKey"`
	ArtifactID      string `gorm:"index;not null"`
	ArtifactHash    string `gorm:"index;not null"`
	IssuedAt        time.Time
	ExpiresAt       time.Time
	LedgerReference string
	Status          string    `gorm:"index;not null"`
	CreatedAt       time.Time `gorm:"not null"`
}

func (IssuedProofModel) TableName() string {
	return "issued_proofs"
}

type AnalysisRunModel struct {
	ID            string    `gorm:"type:uuid;primaryKey"`
	RunAt         time.Time `gorm:"index;not null"`
	SeverityScore float64   `gorm:"not null"`
	RiskLevel     string    `gorm:"index;not null"`
	TTIScore      float64   `gorm:"not null"`
	InsightCount  int       `gorm:"not null"`
	ResultJSON    []byte    `gorm:"type:jsonb;not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (AnalysisRunModel) TableName() string {
	return "analysis_runs"
}
