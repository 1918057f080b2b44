package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"votingledger/internal/app/bootstrap"
	"votingledger/internal/platform/config"
)

// API process entrypoint.
// Data flow:
// 1) Load .env and config.
// 2) Build app wiring (ledger adapter + use cases + HTTP server).
// 3) Serve until SIGINT/SIGTERM.
func main() {
	log.Println("voting-ledger api starting")
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("load .env failed: %v", err)
	}

	app, err := bootstrap.BuildAPI()
	if err != nil {
		log.Fatalf("bootstrap api failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("api shutdown close failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Printf("voting-ledger api stopped with error: %v", err)
	}
}
