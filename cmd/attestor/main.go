package main

import (
	"fmt"
	"log/slog"
	"os"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var code int
	switch os.Args[1] {
	case "verify":
		code = runVerify(os.Args[2:])
	case "repair":
		code = runRepair(os.Args[2:])
	case "proof":
		code = runProof(os.Args[2:])
	case "analyze":
		code = runAnalyze(os.Args[2:])
	case "serve":
		code = runServe(os.Args[2:])
	default:
		usage()
		code = 1
	}
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: attestor <command> [flags]

commands:
  verify    run integrity verification over the governance ledgers
  repair    process issues from a verification run
  proof     issue, revoke, or verify trust proofs
  analyze   run the early warning analysis
  serve     start the verification HTTP server`)
}
