package voucher

import (
	"errors"

	"github.com/quizarena/economy-api/internal/pkg/apperr"
)

var (
	ErrNotFound       = apperr.New(apperr.KindNotFound, "voucher not found")
	ErrCodeTaken      = apperr.New(apperr.KindStateConflict, "voucher code already exists")
	ErrInvalidVoucher = apperr.New(apperr.KindValidation, "invalid voucher definition")
)

var reasonMessages = map[Reason]string{
	ReasonInvalidCode:           "This code is not valid",
	ReasonExpired:               "This code has expired",
	ReasonNotYetValid:           "This code is not active yet",
	ReasonMaxRedemptionsReached: "This code has been fully redeemed",
	ReasonAlreadyRedeemedByUser: "You have already redeemed this code",
	ReasonVoucherInactive:       "This code is no longer active",
	ReasonSuspiciousPattern:     "This request cannot be processed right now",
	ReasonRateLimitExceeded:     "Too many failed attempts, please try again later",
}

var reasonKinds = map[Reason]apperr.Kind{
	ReasonInvalidCode:           apperr.KindNotFound,
	ReasonExpired:               apperr.KindStateConflict,
	ReasonNotYetValid:           apperr.KindStateConflict,
	ReasonMaxRedemptionsReached: apperr.KindStateConflict,
	ReasonAlreadyRedeemedByUser: apperr.KindStateConflict,
	ReasonVoucherInactive:       apperr.KindStateConflict,
	ReasonSuspiciousPattern:     apperr.KindFraudSuspected,
	ReasonRateLimitExceeded:     apperr.KindRateLimited,
}

// RedeemError is a refused redemption. Its kind follows the reason; rate limited
// refusals wrap the limiter's *apperr.RateLimitedError.
type RedeemError struct {
	reason Reason
	cause  error
}

func newRedeemError(reason Reason, cause error) *RedeemError {
	if cause == nil {
		kind, ok := reasonKinds[reason]
		if !ok {
			kind = apperr.KindValidation
		}
		cause = apperr.New(kind, reasonMessages[reason])
	}
	return &RedeemError{reason: reason, cause: cause}
}

func (e *RedeemError) Error() string  { return reasonMessages[e.reason] }
func (e *RedeemError) Reason() string { return string(e.reason) }
func (e *RedeemError) Unwrap() error  { return e.cause }

// ReasonOf returns the refusal reason carried by err, if any.
func ReasonOf(err error) (Reason, bool) {
	var re *RedeemError
	if errors.As(err, &re) {
		return re.reason, true
	}
	return "", false
}
