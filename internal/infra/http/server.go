// Package http exposes the verification and analysis surface. Issuance and
// revocation stay on the CLI; the HTTP surface is read-and-verify only, plus
// the rate-limited public verification endpoints behind QR scans.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"attestor/internal/config"
	"attestor/internal/domain"
	"attestor/internal/infra/cachemem"
	"attestor/internal/usecase"
)

type Server struct {
	engine *gin.Engine

	verifier  *usecase.ProofVerifier
	integrity *usecase.IntegrityEngine
	analyzer  *usecase.Analyzer
	cache     *cachemem.Cache

	rateLimiter       domain.RateLimiter
	rateLimitRequests int
	rateLimitWindow   time.Duration

	logger *slog.Logger
}

type Deps struct {
	Verifier    *usecase.ProofVerifier
	Integrity   *usecase.IntegrityEngine
	Analyzer    *usecase.Analyzer
	Cache       *cachemem.Cache
	RateLimiter domain.RateLimiter
}

func NewServer(cfg config.Config, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		engine:            gin.New(),
		verifier:          deps.Verifier,
		integrity:         deps.Integrity,
		analyzer:          deps.Analyzer,
		cache:             deps.Cache,
		rateLimiter:       deps.RateLimiter,
		rateLimitRequests: cfg.RateLimitRequests,
		rateLimitWindow:   cfg.RateLimitWindow,
		logger:            slog.Default().With("component", "http"),
	}
	s.engine.Use(gin.Recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	v1 := s.engine.Group("/v1")
	v1.GET("/healthz", s.handleHealth)
	v1.POST("/verify-trust", s.handleVerifyTrust)
	v1.POST("/verify-attestation", s.handleVerifyAttestation)
	v1.GET("/integrity/status", s.handleIntegrityStatus)
	v1.GET("/analysis/summary", s.handleAnalysisSummary)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Run(addr string) error {
	s.logger.Info("http server starting", "addr", addr)
	return s.engine.Run(addr)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
