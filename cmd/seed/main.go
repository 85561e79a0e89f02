// seed inserts a verified demo user into the local dev database.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ErlanBelekov/backend-skeleton/internal/auth"
	"github.com/ErlanBelekov/backend-skeleton/internal/infrastructure/postgres"
	"github.com/google/uuid"
)

const (
	seedUsername = "demo"
	seedEmail    = "demo@test.local"
	seedPassword = "demo-password"
)

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	pool, err := postgres.NewPool(ctx, dbURL, "seed")
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}

	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		log.Fatalf("migrate: %v", err)
	}

	hash, err := auth.HashPassword(seedPassword)
	if err != nil {
		pool.Close()
		log.Fatalf("hash password: %v", err)
	}

	// Re-runs reset the password so the printed credentials always work.
	var userID string
	err = pool.QueryRow(ctx, `
		INSERT INTO users (id, username, email, password_hash, email_verified_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (username) DO UPDATE
			SET password_hash = EXCLUDED.password_hash, updated_at = NOW()
		RETURNING id`,
		uuid.NewString(), seedUsername, seedEmail, hash,
	).Scan(&userID)
	pool.Close()
	if err != nil {
		log.Fatalf("upsert user: %v", err)
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Username: %s\n", seedUsername)
	fmt.Printf("  Password: %s\n", seedPassword)
	fmt.Printf("  User ID:  %s\n", userID)
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Printf("    curl -s -X POST http://localhost:8080/api/auth/login \\\n")
	fmt.Printf("      -H 'Content-Type: application/json' \\\n")
	fmt.Printf("      -d '{\"username\":\"%s\",\"password\":\"%s\"}'\n", seedUsername, seedPassword)
	fmt.Println("    # → {\"token\":\"eyJ...\"}")
	fmt.Println()
	fmt.Println("    curl -s http://localhost:8080/api/auth/me -H \"Authorization: Bearer $JWT\"")
}
