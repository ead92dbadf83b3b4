package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"attestor/internal/domain"
)

// Config carries every externally sourced setting. It is built once at
// startup and threaded through constructors; nothing deeper reads the
// environment.
type Config struct {
	LedgerRoot string

	ProofSecret     string
	ProofExpiryDays int
	ProofIssuer     string
	BaseURL         string

	EnableML      bool
	TTIConfigPath string

	WebhookSecret          string
	GovernanceOfficerEmail string

	HTTPAddr          string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	DatabaseDSN string
}

func FromEnv() Config {
	return Config{
		LedgerRoot:             envDefault("ATTESTOR_LEDGER_ROOT", "governance"),
		ProofSecret:            envDefault("TRUST_PROOF_SECRET", "default-dev-secret-change-in-production"),
		ProofExpiryDays:        envInt("TRUST_PROOF_EXPIRY_DAYS", 90),
		ProofIssuer:            envDefault("TRUST_PROOF_ISSUER", "trust-attestation-service"),
		BaseURL:                envDefault("ATTESTOR_BASE_URL", "https://localhost:8080"),
		EnableML:               os.Getenv("EWA_ML") == "true",
		TTIConfigPath:          os.Getenv("TTI_CONFIG_PATH"),
		WebhookSecret:          os.Getenv("ATTESTOR_WEBHOOK_SECRET"),
		GovernanceOfficerEmail: os.Getenv("GOVERNANCE_OFFICER_EMAIL"),
		HTTPAddr:               envDefault("HTTP_ADDR", ":8080"),
		RateLimitRequests:      envInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:        time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                envInt("REDIS_DB", 0),
		DatabaseDSN:            os.Getenv("DATABASE_DSN"),
	}
}

// TrajectoryWeights loads the optional TTI weight override file; any failure
// falls back to the 0.4/0.3/0.3 defaults.
func (c Config) TrajectoryWeights() domain.TrajectoryWeights {
	defaults := domain.TrajectoryWeights{EII: 0.4, Consent: 0.3, Security: 0.3}
	if c.TTIConfigPath == "" {
		return defaults
	}
	raw, err := os.ReadFile(c.TTIConfigPath)
	if err != nil {
		return defaults
	}
	var doc struct {
		Weights domain.TrajectoryWeights `json:"weights"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return defaults
	}
	if doc.Weights.EII+doc.Weights.Consent+doc.Weights.Security == 0 {
		return defaults
	}
	return doc.Weights
}

func (c Config) ProofTTL() time.Duration {
	days := c.ProofExpiryDays
	if days <= 0 {
		days = 90
	}
	return time.Duration(days) * 24 * time.Hour
}

func envDefault(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	return value
}

func envInt(key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return n
}
