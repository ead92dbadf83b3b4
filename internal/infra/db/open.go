package db

import (
	"errors"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var errDBUnavailable = errors.New("database not configured")

// Open connects and migrates the read-model schema. An empty DSN returns a
// nil handle; every repository treats nil as "archive disabled".
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, nil
	}
	handle, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := handle.AutoMigrate(
		&IntegrityReportModel{},
		&IssuedProofModel{},
		&AnalysisRunModel{},
	); err != nil {
		return nil, err
	}
	return handle, nil
}
