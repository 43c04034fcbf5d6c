package fraud

import "github.com/quizarena/economy-api/internal/pkg/apperr"

var (
	ErrSuspicious      = apperr.New(apperr.KindFraudSuspected, "too many failed attempts across addresses")
	ErrStateNotFound   = apperr.New(apperr.KindNotFound, "no rate limit state for this user and address")
	ErrInvalidIdentity = apperr.New(apperr.KindValidation, "user id and source address are required")
)
