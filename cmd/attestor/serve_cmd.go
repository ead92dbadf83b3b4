package main

import (
	"flag"
	"fmt"
	"os"

	"attestor/internal/config"
	"attestor/internal/domain"
	"attestor/internal/infra/cachemem"
	"attestor/internal/infra/crypto"
	attesthttp "attestor/internal/infra/http"
	"attestor/internal/infra/ledger"
	"attestor/internal/infra/ratelimit"
	"attestor/internal/usecase"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var addr string
	fs.StringVar(&addr, "addr", "", "listen address (default from HTTP_ADDR)")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg := config.FromEnv()
	if addr == "" {
		addr = cfg.HTTPAddr
	}

	cryptoSvc := crypto.NewService()
	store := ledger.NewStore(cfg.LedgerRoot)

	var limiter domain.RateLimiter
	if cfg.RedisAddr != "" {
		redisLimiter, err := ratelimit.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "redis limiter: %v\n", err)
			return 1
		}
		limiter = redisLimiter
	} else {
		limiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{})
	}

	server := attesthttp.NewServer(cfg, attesthttp.Deps{
		Verifier:    usecase.NewProofVerifier(store, cryptoSvc, nil, cfg.ProofSecret),
		Integrity:   usecase.NewIntegrityEngine(store, cryptoSvc, nil),
		Analyzer:    usecase.NewAnalyzer(store, nil, cfg.TrajectoryWeights(), cfg.EnableML),
		Cache:       cachemem.New(),
		RateLimiter: limiter,
	})

	if err := server.Run(addr); err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		return 1
	}
	return 0
}
