package ledger

import "github.com/quizarena/economy-api/internal/pkg/apperr"

var (
	ErrInvalidAmount     = apperr.New(apperr.KindValidation, "amount must be positive with at most 2 decimal places")
	ErrInvalidType       = apperr.New(apperr.KindValidation, "unknown transaction type")
	ErrInvalidUser       = apperr.New(apperr.KindValidation, "user id is required")
	ErrInsufficientFunds = apperr.New(apperr.KindInsufficientFunds, "insufficient balance")
	ErrNotFound          = apperr.New(apperr.KindNotFound, "transaction not found")
	ErrMissingReference  = apperr.New(apperr.KindValidation, "reference is required")
)

// ErrReplayMismatch is returned when the log does not chain or disagrees with the cached balance.
var ErrReplayMismatch = apperr.New(apperr.KindStateConflict, "ledger replay mismatch")
