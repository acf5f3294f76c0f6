package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"time"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyz0123456789"

// Plan is the user's subscription tier. It drives the daily AI quota
// and the default priority of submitted AI work.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// GenerateToken creates a session token: vitae-{env}-{40 random chars}.
func GenerateToken(env string) (string, error) {
	random, err := randomString(40)
	if err != nil {
		return "", fmt.Errorf("generate random: %w", err)
	}
	return fmt.Sprintf("vitae-%s-%s", env, random), nil
}

// HashToken returns the SHA-256 hex digest of a session token. Only
// hashes are stored and looked up.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphanumeric)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphanumeric[idx.Int64()]
	}
	return string(b), nil
}

// SessionMetadata holds the cached metadata for a session token.
type SessionMetadata struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Plan      Plan      `json:"plan"`
	ExpiresAt time.Time `json:"expires_at"`
}
