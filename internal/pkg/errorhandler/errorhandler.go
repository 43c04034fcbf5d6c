// Package errorhandler turns classified domain errors into HTTP responses.
package errorhandler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/quizarena/economy-api/internal/pkg/apperr"
	"github.com/quizarena/economy-api/internal/pkg/logger"
	"github.com/quizarena/economy-api/internal/pkg/response"
)

// Reasoned is implemented by errors that carry a machine-readable failure reason.
type Reasoned interface {
	error
	Reason() string
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind apperr.Kind) (int, string) {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest, "BAD_REQUEST"
	case apperr.KindInsufficientFunds:
		return http.StatusConflict, "INSUFFICIENT_FUNDS"
	case apperr.KindNotFound:
		return http.StatusNotFound, "NOT_FOUND"
	case apperr.KindStateConflict:
		return http.StatusConflict, "CONFLICT"
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED"
	case apperr.KindFraudSuspected:
		return http.StatusForbidden, "FORBIDDEN"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// Handle writes the response for err. Internal errors are logged with the request logger
// and replaced by a generic message.
func Handle(ctx context.Context, w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status, code := StatusFor(kind)

	switch kind {
	case apperr.KindInternal:
		logger.FromContext(ctx).Error().Err(err).Int("status_code", status).Msg("Request failed")
	case apperr.KindFraudSuspected:
		logger.FromContext(ctx).Warn().Err(err).Msg("Request rejected as suspicious")
	}

	if kind == apperr.KindRateLimited {
		var rl *apperr.RateLimitedError
		errors.As(err, &rl)
		var reason string
		var re Reasoned
		if errors.As(err, &re) {
			reason = re.Reason()
		}
		if rl.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int((rl.RetryAfter+time.Second-1)/time.Second)))
		}
		response.ErrorWithReason(w, status, code, rl.Error(), reason)
		return
	}

	var re Reasoned
	if errors.As(err, &re) {
		response.ErrorWithReason(w, status, code, apperr.PublicMessage(err), re.Reason())
		return
	}
	response.Error(w, status, code, apperr.PublicMessage(err))
}

// Validation writes field errors and logs them at debug level.
func Validation(ctx context.Context, w http.ResponseWriter, fieldErrors map[string]string) {
	logger.FromContext(ctx).Debug().Interface("validation_errors", fieldErrors).Msg("Validation error")
	response.ValidationError(w, fieldErrors)
}
