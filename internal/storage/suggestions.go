// Package storage is thin persistence glue for the route layer. The AI
// core never touches it; route handlers record accepted results here.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Suggestion is one stored AI result tied to an owner.
type Suggestion struct {
	ID        string
	OwnerID   string
	RequestID string
	Kind      string
	Provider  string
	Prompt    string
	Content   string
	Cached    bool
	CreatedAt time.Time
}

// SuggestionRepo persists AI suggestion history in PostgreSQL.
type SuggestionRepo struct {
	db *pgxpool.Pool
}

func NewSuggestionRepo(db *pgxpool.Pool) *SuggestionRepo {
	return &SuggestionRepo{db: db}
}

func (r *SuggestionRepo) Insert(ctx context.Context, s *Suggestion) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO suggestions (owner_id, request_id, kind, provider, prompt, content, cached)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, s.OwnerID, s.RequestID, s.Kind, s.Provider, s.Prompt, s.Content, s.Cached)
	if err != nil {
		return fmt.Errorf("insert suggestion: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's most recent suggestions, newest first.
func (r *SuggestionRepo) ListByOwner(ctx context.Context, ownerID string, limit int) ([]Suggestion, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, owner_id, request_id, kind, provider, prompt, content, cached, created_at
		FROM suggestions
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query suggestions: %w", err)
	}
	defer rows.Close()

	var out []Suggestion
	for rows.Next() {
		var s Suggestion
		if err := rows.Scan(&s.ID, &s.OwnerID, &s.RequestID, &s.Kind, &s.Provider, &s.Prompt, &s.Content, &s.Cached, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suggestion: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
