package errorhandler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizarena/economy-api/internal/pkg/apperr"
	"github.com/quizarena/economy-api/internal/pkg/response"
)

type reasonErr struct {
	err    *apperr.Error
	reason string
}

func (e reasonErr) Error() string  { return e.err.Message }
func (e reasonErr) Reason() string { return e.reason }
func (e reasonErr) Unwrap() error  { return e.err }

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandleMapsKinds(t *testing.T) {
	cases := []struct {
		kind   apperr.Kind
		status int
	}{
		{apperr.KindValidation, http.StatusBadRequest},
		{apperr.KindInsufficientFunds, http.StatusConflict},
		{apperr.KindNotFound, http.StatusNotFound},
		{apperr.KindStateConflict, http.StatusConflict},
		{apperr.KindFraudSuspected, http.StatusForbidden},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		Handle(context.Background(), w, apperr.New(tc.kind, "boom"))
		assert.Equal(t, tc.status, w.Code, tc.kind)
	}
}

func TestHandleHidesInternalMessage(t *testing.T) {
	w := httptest.NewRecorder()
	Handle(context.Background(), w, apperr.Internal("lock balance", fmt.Errorf("connection reset")))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp := decode(t, w)
	assert.NotContains(t, resp.Error.Message, "connection reset")
}

func TestHandleRateLimitedSetsRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	Handle(context.Background(), w, &apperr.RateLimitedError{RetryAfter: 90*time.Second + time.Millisecond})

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "91", w.Header().Get("Retry-After"))
}

func TestHandleCarriesReason(t *testing.T) {
	w := httptest.NewRecorder()
	Handle(context.Background(), w, reasonErr{err: apperr.New(apperr.KindValidation, "code is not valid"), reason: "invalid_code"})

	resp := decode(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "invalid_code", resp.Error.Reason)
}
