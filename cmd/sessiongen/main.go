package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/folioworks/vitae/internal/auth"
	"github.com/jackc/pgx/v5"
)

func main() {
	email := flag.String("email", "", "user email (required)")
	plan := flag.String("plan", "free", "subscription plan: free or pro")
	env := flag.String("env", "dev", "environment prefix")
	expires := flag.Duration("expires", 720*time.Hour, "session lifetime")
	dbURL := flag.String("db-url", "", "database URL (overrides env)")
	flag.Parse()

	if *email == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "\nerror: -email is required")
		os.Exit(1)
	}
	if *plan != string(auth.PlanFree) && *plan != string(auth.PlanPro) {
		log.Fatalf("invalid plan: %s (use 'free' or 'pro')", *plan)
	}

	rawToken, err := auth.GenerateToken(*env)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}
	tokenHash := auth.HashToken(rawToken)
	expiresAt := time.Now().Add(*expires)

	dsn := *dbURL
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		host := envOrDefault("DB_HOST", "localhost")
		port := envOrDefault("DB_PORT", "5432")
		u := envOrDefault("DB_USER", "vitae")
		pass := envOrDefault("DB_PASSWORD", "vitae-dev")
		dbname := envOrDefault("DB_NAME", "vitae")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", u, pass, host, port, dbname)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer conn.Close(ctx)

	// Upsert the user, then mint the session.
	var userID string
	err = conn.QueryRow(ctx, `
		INSERT INTO users (email, plan)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE SET plan = EXCLUDED.plan
		RETURNING id
	`, *email, *plan).Scan(&userID)
	if err != nil {
		log.Fatalf("failed to upsert user: %v", err)
	}

	var sessionID string
	err = conn.QueryRow(ctx, `
		INSERT INTO sessions (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, userID, tokenHash, expiresAt).Scan(&sessionID)
	if err != nil {
		log.Fatalf("failed to insert session: %v", err)
	}

	fmt.Println("=== Vitae Session Created ===")
	fmt.Println()
	fmt.Printf("  Session ID: %s\n", sessionID)
	fmt.Printf("  User:       %s (%s)\n", *email, *plan)
	fmt.Printf("  Expires:    %s\n", expiresAt.Format(time.RFC3339))
	fmt.Println()
	fmt.Println("  Session token (save this, it will NOT be shown again):")
	fmt.Printf("  %s\n", rawToken)
	fmt.Println()
	fmt.Println("=============================")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
