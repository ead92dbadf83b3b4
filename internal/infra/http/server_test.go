package http

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"attestor/internal/config"
	"attestor/internal/domain"
	"attestor/internal/infra/cachemem"
	"attestor/internal/infra/crypto"
	"attestor/internal/infra/ledger"
	"attestor/internal/infra/ratelimit"
	"attestor/internal/usecase"
)

const testSecret = "test-secret"

func fixedNow() time.Time {
	t, _ := time.Parse(time.RFC3339, "2025-06-15T12:00:00Z")
	return t
}

type testServer struct {
	server *Server
	issuer *usecase.ProofIssuer
	store  *ledger.Store
}

func newTestServer(t *testing.T, rateLimit int) *testServer {
	t.Helper()
	store := ledger.NewStore(t.TempDir())
	cryptoSvc := crypto.NewService()
	issuer := usecase.NewProofIssuer(store, cryptoSvc, fixedNow, testSecret,
		"trust-attestation-service", 90*24*time.Hour, "https://example.org")
	verifier := usecase.NewProofVerifier(store, cryptoSvc, fixedNow, testSecret)

	cfg := config.Config{
		RateLimitRequests: rateLimit,
		RateLimitWindow:   time.Minute,
	}
	server := NewServer(cfg, Deps{
		Verifier:    verifier,
		Integrity:   usecase.NewIntegrityEngine(store, cryptoSvc, fixedNow),
		Analyzer:    usecase.NewAnalyzer(store, fixedNow, domain.TrajectoryWeights{EII: 0.4, Consent: 0.3, Security: 0.3}, false),
		Cache:       cachemem.NewWithClock(fixedNow),
		RateLimiter: ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{Now: fixedNow}),
	})
	return &testServer{server: server, issuer: issuer, store: store}
}

func (ts *testServer) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func sha256Of(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// seedArtifact records an artifact in the governance ledger so token
// verification can resolve it.
func (ts *testServer) seedArtifact(t *testing.T, id, hash string) {
	t.Helper()
	path := ts.store.Path(domain.LedgerGovernance)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	line := fmt.Sprintf(`{"id":%q,"timestamp":"2025-06-01T00:00:00Z","hash":%q,"merkleRoot":%q}`+"\n", id, hash, hash)
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, 0)
	rec := ts.get(t, "/v1/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestVerifyTrustEndpoint(t *testing.T) {
	ts := newTestServer(t, 0)
	hash := sha256Of("artifact body")
	ts.seedArtifact(t, "report-2025", hash)
	token, _, err := ts.issuer.IssueProof(context.Background(), "report-2025", hash, "gov-1", "document", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := ts.issuer.EncodeToken(token)
	if err != nil {
		t.Fatal(err)
	}

	rec := ts.post(t, "/v1/verify-trust", map[string]string{
		"token": encoded, "artifact_hash": hash,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var response domain.TrustProofResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatal(err)
	}
	if response.Status != domain.ProofValid {
		t.Errorf("status = %s (%s)", response.Status, response.Notes)
	}
	if response.ArtifactID != "report-2025" {
		t.Errorf("artifact id = %s", response.ArtifactID)
	}
}

func TestVerifyTrustStatusCodes(t *testing.T) {
	ts := newTestServer(t, 0)
	hash := sha256Of("artifact body")
	ts.seedArtifact(t, "report-2025", hash)
	token, _, err := ts.issuer.IssueProof(context.Background(), "report-2025", hash, "", "document", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := ts.issuer.EncodeToken(token)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		body map[string]string
		code int
	}{
		{"garbage token", map[string]string{"token": "%%%", "artifact_hash": hash}, http.StatusBadRequest},
		{"hash mismatch", map[string]string{"token": encoded, "artifact_hash": sha256Of("other")}, http.StatusConflict},
		{"missing fields", map[string]string{"token": encoded}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		rec := ts.post(t, "/v1/verify-trust", tc.body)
		if rec.Code != tc.code {
			t.Errorf("%s: status = %d, want %d", tc.name, rec.Code, tc.code)
		}
	}
}

func TestVerifyTrustCachesResponse(t *testing.T) {
	ts := newTestServer(t, 0)
	hash := sha256Of("artifact body")
	ts.seedArtifact(t, "report-2025", hash)
	token, _, err := ts.issuer.IssueProof(context.Background(), "report-2025", hash, "", "document", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	encoded, err := ts.issuer.EncodeToken(token)
	if err != nil {
		t.Fatal(err)
	}
	body := map[string]string{"token": encoded, "artifact_hash": hash}

	first := ts.post(t, "/v1/verify-trust", body)
	if first.Code != http.StatusOK {
		t.Fatalf("first verify failed: %d", first.Code)
	}

	// Remove the ledger record; a cached response must still come back.
	if err := os.Remove(ts.store.Path(domain.LedgerGovernance)); err != nil {
		t.Fatal(err)
	}
	second := ts.post(t, "/v1/verify-trust", body)
	if second.Code != http.StatusOK {
		t.Fatalf("cached verify = %d, want 200", second.Code)
	}
}

func TestVerifyAttestationEndpoint(t *testing.T) {
	ts := newTestServer(t, 0)
	hash := sha256Of("artifact body")
	_, attestation, err := ts.issuer.IssueProof(context.Background(), "report-2025", hash, "", "document", "", nil)
	if err != nil {
		t.Fatal(err)
	}

	rec := ts.post(t, "/v1/verify-attestation", attestation)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	attestation.Sig = "00000000000000000000000000000000"
	rec = ts.post(t, "/v1/verify-attestation", attestation)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("tampered attestation = %d, want 400", rec.Code)
	}
}

func TestIntegrityStatusEndpoint(t *testing.T) {
	ts := newTestServer(t, 0)
	rec := ts.get(t, "/v1/integrity/status?scope=governance")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var report domain.IntegrityReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	// An empty governance ledger is a critical finding, not a transport error.
	if report.SystemState != domain.StateAttentionRequired {
		t.Errorf("system state = %s", report.SystemState)
	}
}

func TestAnalysisSummaryEndpoint(t *testing.T) {
	ts := newTestServer(t, 0)
	rec := ts.get(t, "/v1/analysis/summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var result domain.AnalysisResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.TrustTrajectory.TTIScore < 0 || result.TrustTrajectory.TTIScore > 100 {
		t.Errorf("tti out of range: %v", result.TrustTrajectory.TTIScore)
	}
}

func TestRateLimitEnforced(t *testing.T) {
	ts := newTestServer(t, 2)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = ts.get(t, "/v1/analysis/summary")
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", last.Code)
	}
	if last.Header().Get("RateLimit-Remaining") != "0" {
		t.Errorf("remaining header = %q", last.Header().Get("RateLimit-Remaining"))
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After on a limited response")
	}

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(last.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != "RATE_LIMITED" {
		t.Errorf("error code = %q", body.Error.Code)
	}
}

func TestRateLimitIsPerEndpoint(t *testing.T) {
	ts := newTestServer(t, 1)
	if rec := ts.get(t, "/v1/analysis/summary"); rec.Code != http.StatusOK {
		t.Fatalf("first summary = %d", rec.Code)
	}
	if rec := ts.get(t, "/v1/integrity/status"); rec.Code != http.StatusOK {
		t.Fatalf("other endpoint limited by sibling traffic: %d", rec.Code)
	}
	if rec := ts.get(t, "/v1/analysis/summary"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second summary = %d, want 429", rec.Code)
	}
}
