package referral

import "github.com/google/uuid"

// RegisterRequest is sent by the account service when a new user signs up with a referral.
type RegisterRequest struct {
	ReferredUserID uuid.UUID `json:"referred_user_id" validate:"required"`
	ReferrerUserID uuid.UUID `json:"referrer_user_id" validate:"required"`
}

// QuizCompletedRequest is sent by the quiz service after a session completes.
type QuizCompletedRequest struct {
	UserID    uuid.UUID `json:"user_id" validate:"required"`
	SessionID string    `json:"session_id" validate:"omitempty,max=64"`
}
