package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-solo-service/internal/domain"
)

// TriviaStore records generated trivia as JSONB in Postgres.
type TriviaStore struct {
	pool *pgxpool.Pool
}

func NewTriviaStore(pool *pgxpool.Pool) *TriviaStore {
	return &TriviaStore{pool: pool}
}

func (s *TriviaStore) SaveTrivia(ctx context.Context, rec domain.GeneratedTrivia) error {
	raw, err := json.Marshal(rec.Trivia)
	if err != nil {
		return fmt.Errorf("marshal trivia: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO generated_trivia (submission_id, user_id, topic, data, created_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (submission_id) DO NOTHING`,
		rec.SubmissionID, rec.UserID, rec.Topic, string(raw), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("save trivia: %w", err)
	}
	return nil
}

// ListByUser returns the user's generations, oldest first.
func (s *TriviaStore) ListByUser(ctx context.Context, userID string) ([]domain.GeneratedTrivia, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT submission_id, user_id, topic, data, created_at FROM generated_trivia WHERE user_id=$1 ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list trivia: %w", err)
	}
	defer rows.Close()

	var out []domain.GeneratedTrivia
	for rows.Next() {
		var rec domain.GeneratedTrivia
		var raw []byte
		if err := rows.Scan(&rec.SubmissionID, &rec.UserID, &rec.Topic, &raw, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trivia: %w", err)
		}
		if err := json.Unmarshal(raw, &rec.Trivia); err != nil {
			return nil, fmt.Errorf("unmarshal trivia: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
