package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"attestor/internal/config"
	"attestor/internal/domain"
	"attestor/internal/infra/crypto"
	"attestor/internal/infra/db"
	"attestor/internal/infra/ledger"
	"attestor/internal/usecase"
	"attestor/pkg/artifact"
)

func runProof(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: attestor proof <issue|revoke|verify> [flags]")
		return 1
	}
	switch args[0] {
	case "issue":
		return runProofIssue(args[1:])
	case "revoke":
		return runProofRevoke(args[1:])
	case "verify":
		return runProofVerify(args[1:])
	default:
		fmt.Fprintln(os.Stderr, "usage: attestor proof <issue|revoke|verify> [flags]")
		return 1
	}
}

type issueOutput struct {
	Token           any    `json:"token"`
	Attestation     any    `json:"attestation"`
	EncodedToken    string `json:"encoded_token"`
	VerificationURL string `json:"verification_url"`
}

func runProofIssue(args []string) int {
	fs := flag.NewFlagSet("proof issue", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var artifactID string
	var artifactPath string
	var artifactHash string
	var ledgerRef string
	var artifactType string
	var outPath string
	fs.StringVar(&artifactID, "artifact-id", "", "artifact identifier")
	fs.StringVar(&artifactPath, "artifact", "", "artifact file to hash")
	fs.StringVar(&artifactHash, "hash", "", "precomputed sha256 hex hash")
	fs.StringVar(&ledgerRef, "ledger-ref", "", "governance ledger entry reference")
	fs.StringVar(&artifactType, "type", "document", "artifact type label")
	fs.StringVar(&outPath, "out", "", "output JSON path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if artifactID == "" {
		fmt.Fprintln(os.Stderr, "proof issue requires --artifact-id")
		return 1
	}
	if (artifactPath == "" && artifactHash == "") || (artifactPath != "" && artifactHash != "") {
		fmt.Fprintln(os.Stderr, "proof issue requires exactly one of --artifact or --hash")
		return 1
	}

	if artifactPath != "" {
		hash, err := artifact.ComputeFileHash(artifactPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hash artifact: %v\n", err)
			return 1
		}
		artifactHash = hash
	}

	cfg := config.FromEnv()
	store := ledger.NewStore(cfg.LedgerRoot)
	issuer := usecase.NewProofIssuer(store, crypto.NewService(), nil,
		cfg.ProofSecret, cfg.ProofIssuer, cfg.ProofTTL(), cfg.BaseURL)

	ctx := context.Background()
	token, attestation, err := issuer.IssueProof(ctx, artifactID, artifactHash, ledgerRef, artifactType, artifactPath, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue proof: %v\n", err)
		return 1
	}
	encoded, err := issuer.EncodeToken(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode token: %v\n", err)
		return 1
	}
	link, err := issuer.VerificationURL(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verification url: %v\n", err)
		return 1
	}

	handle, err := db.Open(cfg.DatabaseDSN)
	if err != nil {
		slog.Error("archive database unavailable, continuing ledger-only", "err", err)
	} else if handle != nil {
		actives, _ := store.ActiveProofs()
		if len(actives) > 0 {
			if err := db.NewArchiveRepository(handle).IndexProof(ctx, actives[len(actives)-1]); err != nil {
				fmt.Fprintf(os.Stderr, "index proof: %v\n", err)
			}
		}
	}

	output := issueOutput{
		Token:           token,
		Attestation:     attestation,
		EncodedToken:    encoded,
		VerificationURL: link,
	}
	if err := writeJSON(outPath, output); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

func runProofRevoke(args []string) int {
	fs := flag.NewFlagSet("proof revoke", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var artifactID string
	var reason string
	var revokedBy string
	var replacement string
	var outPath string
	fs.StringVar(&artifactID, "artifact-id", "", "artifact identifier")
	fs.StringVar(&reason, "reason", "", "revocation reason")
	fs.StringVar(&revokedBy, "by", "governance-officer", "revoking principal")
	fs.StringVar(&replacement, "replacement", "", "replacement artifact id")
	fs.StringVar(&outPath, "out", "", "output JSON path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if artifactID == "" || reason == "" {
		fmt.Fprintln(os.Stderr, "proof revoke requires --artifact-id and --reason")
		return 1
	}

	cfg := config.FromEnv()
	store := ledger.NewStore(cfg.LedgerRoot)
	issuer := usecase.NewProofIssuer(store, crypto.NewService(), nil,
		cfg.ProofSecret, cfg.ProofIssuer, cfg.ProofTTL(), cfg.BaseURL)

	record, err := issuer.Revoke(context.Background(), artifactID, reason, revokedBy, replacement)
	if err != nil {
		fmt.Fprintf(os.Stderr, "revoke proof: %v\n", err)
		return 1
	}
	if err := writeJSON(outPath, record); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

func runProofVerify(args []string) int {
	fs := flag.NewFlagSet("proof verify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var token string
	var tokenURL string
	var artifactPath string
	var artifactHash string
	var outPath string
	fs.StringVar(&token, "token", "", "encoded trust proof token")
	fs.StringVar(&tokenURL, "url", "", "verification URL carrying the token")
	fs.StringVar(&artifactPath, "artifact", "", "artifact file to hash and compare")
	fs.StringVar(&artifactHash, "hash", "", "precomputed sha256 hex hash to compare")
	fs.StringVar(&outPath, "out", "", "output JSON path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if (token == "" && tokenURL == "") || (token != "" && tokenURL != "") {
		fmt.Fprintln(os.Stderr, "proof verify requires exactly one of --token or --url")
		return 1
	}
	if (artifactPath == "" && artifactHash == "") || (artifactPath != "" && artifactHash != "") {
		fmt.Fprintln(os.Stderr, "proof verify requires exactly one of --artifact or --hash")
		return 1
	}

	cfg := config.FromEnv()
	store := ledger.NewStore(cfg.LedgerRoot)
	cryptoSvc := crypto.NewService()
	verifier := usecase.NewProofVerifier(store, cryptoSvc, nil, cfg.ProofSecret)

	if tokenURL != "" {
		issuer := usecase.NewProofIssuer(store, cryptoSvc, nil,
			cfg.ProofSecret, cfg.ProofIssuer, cfg.ProofTTL(), cfg.BaseURL)
		parsed, err := issuer.ParseVerificationURL(tokenURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "parse url: %v\n", err)
			return 1
		}
		encoded, err := issuer.EncodeToken(parsed)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode token: %v\n", err)
			return 1
		}
		token = encoded
	}

	if artifactPath != "" {
		hash, err := artifact.ComputeFileHash(artifactPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hash artifact: %v\n", err)
			return 1
		}
		artifactHash = hash
	}

	response := verifier.VerifyArtifactProof(token, artifactHash)
	if err := writeJSON(outPath, response); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	if response.Status != domain.ProofValid {
		return 1
	}
	return 0
}
