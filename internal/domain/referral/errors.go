package referral

import "github.com/quizarena/economy-api/internal/pkg/apperr"

var (
	ErrSelfReferral    = apperr.New(apperr.KindValidation, "users cannot refer themselves")
	ErrAlreadyReferred = apperr.New(apperr.KindStateConflict, "user already has a referrer")
	ErrNotFound        = apperr.New(apperr.KindNotFound, "referral not found")
)
