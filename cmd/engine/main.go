package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/giftloop/draw-engine/internal/api"
	"github.com/giftloop/draw-engine/internal/db"
	"github.com/giftloop/draw-engine/internal/draw"
	"github.com/giftloop/draw-engine/internal/scheduler"
)

func main() {
	log.Println("Starting GiftLoop Draw Engine (Microservice: gift-draw-assignments)...")

	// ─── Required Environment Variables ─────────────────────────────────
	// All credentials MUST come from environment variables. No fallback
	// defaults for security-sensitive values. Use a .env file for local
	// development: cp .env.example .env && edit .env
	// ────────────────────────────────────────────────────────────────────

	if err := godotenv.Load(); err == nil {
		log.Println("Loaded configuration from .env")
	}

	dbUrl := requireEnv("DATABASE_URL")

	dbConn, err := db.Connect(dbUrl)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer dbConn.Close()
	if err := dbConn.InitSchema(); err != nil {
		log.Fatalf("DB schema init failed: %v", err)
	}

	// Setup WebSocket Hub
	wsHub := api.NewHub()
	go wsHub.Run()

	// The draw service wires the solver to its CRUD collaborators. The store
	// implements every source plus the first-writer-wins assignment sink.
	drawService := draw.NewService(dbConn, dbConn, dbConn, dbConn, dbConn)

	// Setup and start the scheduled draw poller
	poller := scheduler.NewPoller(dbConn, drawService, api.BroadcastDrawEvent(wsHub))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(ctx)

	// Setup the Gin Router
	r := api.SetupRouter(dbConn, wsHub, drawService)

	port := getEnvOrDefault("PORT", "5340")

	// Start the server
	log.Printf("Engine running on :%s (API Node: gift-draw-assignments)\n", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// requireEnv reads a required environment variable and exits if it is not set.
// This prevents the binary from starting with missing critical configuration.
func requireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: Required environment variable %s is not set. "+
			"Copy .env.example to .env and fill in your values: cp .env.example .env", key)
	}
	return val
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
