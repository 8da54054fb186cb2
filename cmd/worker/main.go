package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fortunet/internal/config"
	"fortunet/internal/services"
)

// The worker fails stale pending transactions. An STK push either
// completes or dies on the payer's handset within minutes; a pending
// row older than the TTL will never get a callback.
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	cfg := config.Load()
	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL not set")
	}

	db, err := services.InitDB(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// The sweep only touches the database; no gateway or router calls.
	payments := services.NewPaymentService(db, nil, nil)

	log.Printf("Worker started. Sweeping pending transactions older than %s every %s", cfg.Worker.PendingTxTTL, cfg.Worker.Interval)

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down worker...")
		cancel()
	}()

	ticker := time.NewTicker(cfg.Worker.Interval)
	defer ticker.Stop()

	sweep(ctx, payments, cfg.Worker.PendingTxTTL)

	for {
		select {
		case <-ticker.C:
			sweep(ctx, payments, cfg.Worker.PendingTxTTL)
		case <-ctx.Done():
			return
		}
	}
}

func sweep(ctx context.Context, payments *services.PaymentService, ttl time.Duration) {
	expired, err := payments.ExpireStalePending(ctx, ttl)
	if err != nil {
		log.Printf("Error expiring stale pending transactions: %v", err)
		return
	}
	if expired > 0 {
		log.Printf("Marked %d stale pending transactions as failed", expired)
	}
}
