package referral

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// QuizCounter reports how many quiz sessions a user has completed.
type QuizCounter interface {
	CompletedQuizzes(ctx context.Context, userID uuid.UUID) (int, error)
}

// DBQuizCounter counts rows in the quiz module's quiz_sessions table.
type DBQuizCounter struct {
	db *sqlx.DB
}

func NewDBQuizCounter(db *sqlx.DB) *DBQuizCounter {
	return &DBQuizCounter{db: db}
}

func (c *DBQuizCounter) CompletedQuizzes(ctx context.Context, userID uuid.UUID) (int, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var n int
	err := c.db.GetContext(ctx2, &n, `SELECT COUNT(*) FROM quiz_sessions WHERE user_id = $1 AND status = 'completed'`, userID)
	return n, err
}
