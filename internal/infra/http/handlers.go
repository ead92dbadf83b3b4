package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"attestor/internal/domain"
)

// verifyCacheTTL is short on purpose: a revocation must surface on the next
// scan window, not after a long cache horizon.
const verifyCacheTTL = 30 * time.Second

type verifyTrustRequest struct {
	Token        string `json:"token" binding:"required"`
	ArtifactHash string `json:"artifact_hash" binding:"required"`
}

func (s *Server) handleVerifyTrust(c *gin.Context) {
	if !s.enforceRateLimit(c, "verify-trust") {
		return
	}
	var req verifyTrustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "token and artifact_hash are required")
		return
	}

	cacheKey := "token:" + req.Token + ":" + req.ArtifactHash
	if cached, ok, _ := s.cache.Get(c.Request.Context(), cacheKey); ok {
		c.JSON(statusFor(cached.Status), cached)
		return
	}

	response := s.verifier.VerifyArtifactProof(req.Token, req.ArtifactHash)
	_ = s.cache.Put(c.Request.Context(), cacheKey, response, verifyCacheTTL)
	c.JSON(statusFor(response.Status), response)
}

func (s *Server) handleVerifyAttestation(c *gin.Context) {
	if !s.enforceRateLimit(c, "verify-attestation") {
		return
	}
	var attestation domain.AttestationPayload
	if err := c.ShouldBindJSON(&attestation); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_REQUEST", "attestation payload is malformed")
		return
	}

	response := s.verifier.VerifyAttestation(attestation)
	c.JSON(statusFor(response.Status), response)
}

func (s *Server) handleIntegrityStatus(c *gin.Context) {
	if !s.enforceRateLimit(c, "integrity-status") {
		return
	}
	scope := c.QueryArray("scope")
	report, err := s.integrity.RunVerification(c.Request.Context(), scope)
	if err != nil {
		writeErrorCode(c, http.StatusInternalServerError, "VERIFICATION_FAILED", "integrity verification failed")
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleAnalysisSummary(c *gin.Context) {
	if !s.enforceRateLimit(c, "analysis-summary") {
		return
	}
	result, err := s.analyzer.RunAnalysis(c.Request.Context())
	if err != nil {
		writeErrorCode(c, http.StatusInternalServerError, "ANALYSIS_FAILED", "early warning analysis failed")
		return
	}
	c.JSON(http.StatusOK, result)
}

// statusFor maps a verification outcome to a transport status. Every outcome
// is a well-formed response body; only the status code varies.
func statusFor(status domain.ProofStatus) int {
	switch status {
	case domain.ProofValid:
		return http.StatusOK
	case domain.ProofNotFound:
		return http.StatusNotFound
	case domain.ProofInvalidToken:
		return http.StatusBadRequest
	default:
		return http.StatusConflict
	}
}
