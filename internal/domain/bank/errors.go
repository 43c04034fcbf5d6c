package bank

import "github.com/quizarena/economy-api/internal/pkg/apperr"

var (
	ErrNotFound       = apperr.New(apperr.KindNotFound, "deposit not found")
	ErrOutOfRange     = apperr.New(apperr.KindValidation, "deposit amount is outside the allowed range")
	ErrInvalidAmount  = apperr.New(apperr.KindValidation, "amounts must be non-negative with at most 2 decimal places and not both zero")
	ErrLocked         = apperr.New(apperr.KindStateConflict, "deposit is locked")
	ErrNotActive      = apperr.New(apperr.KindStateConflict, "deposit is not active")
	ErrAlreadyMatured = apperr.New(apperr.KindStateConflict, "deposit has matured; use matured withdrawal")
	ErrNotMatured     = apperr.New(apperr.KindStateConflict, "deposit has not matured yet")
	ErrClosed         = apperr.New(apperr.KindStateConflict, "deposit is already closed")
)
