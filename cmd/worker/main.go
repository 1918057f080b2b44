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

// Worker process entrypoint.
// Data flow:
// 1) Load .env and config.
// 2) Build app wiring.
// 3) Relay the postgres outbox to the event bus until SIGINT/SIGTERM.
func main() {
	log.Println("voting-ledger worker starting")
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatalf("load .env failed: %v", err)
	}

	app, err := bootstrap.BuildWorker()
	if err != nil {
		log.Fatalf("bootstrap worker failed: %v", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Printf("worker shutdown close failed: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Printf("voting-ledger worker stopped with error: %v", err)
	}
}
