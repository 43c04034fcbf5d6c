package voucher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizarena/economy-api/internal/domain/fraud"
	"github.com/quizarena/economy-api/internal/pkg/apperr"
)

type stubLimiter struct {
	mu        sync.Mutex
	checkErr  error
	pattern   error
	recordErr error
	ctxErrs   []error
	failures  []fraud.Attempt
}

func (l *stubLimiter) Check(ctx context.Context, userID uuid.UUID, addr string) error {
	return l.checkErr
}

func (l *stubLimiter) CheckPattern(ctx context.Context, userID uuid.UUID) error {
	return l.pattern
}

func (l *stubLimiter) RecordFailure(ctx context.Context, a fraud.Attempt) (*fraud.Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ctxErrs = append(l.ctxErrs, ctx.Err())
	if l.recordErr != nil {
		return nil, l.recordErr
	}
	l.failures = append(l.failures, a)
	return &fraud.Outcome{}, nil
}

func (l *stubLimiter) ResetTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, addr string) error {
	return nil
}

func TestRedeemRateLimitedIsNotRecorded(t *testing.T) {
	lim := &stubLimiter{checkErr: &apperr.RateLimitedError{RetryAfter: 30 * time.Minute}}
	svc := NewService(nil, nil, nil, lim, nil, nil)

	_, err := svc.Redeem(context.Background(), RedeemRequest{UserID: uuid.New(), Code: "ABCDE-FGH-I-JKLMN-OPQ", SourceAddress: "1.2.3.4"})

	reason, ok := ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, ReasonRateLimitExceeded, reason)
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(err))
	assert.Empty(t, lim.failures)
}

func TestRedeemSuspiciousIsRecorded(t *testing.T) {
	lim := &stubLimiter{pattern: fraud.ErrSuspicious}
	svc := NewService(nil, nil, nil, lim, nil, nil)

	_, err := svc.Redeem(context.Background(), RedeemRequest{UserID: uuid.New(), Code: "whatever"})

	reason, _ := ReasonOf(err)
	assert.Equal(t, ReasonSuspiciousPattern, reason)
	assert.Equal(t, apperr.KindFraudSuspected, apperr.KindOf(err))
	require.Len(t, lim.failures, 1)
	assert.Equal(t, string(ReasonSuspiciousPattern), lim.failures[0].Reason)
}

func TestRedeemMalformedCodeIsRecorded(t *testing.T) {
	lim := &stubLimiter{}
	svc := NewService(nil, nil, nil, lim, nil, nil)
	userID := uuid.New()

	_, err := svc.Redeem(context.Background(), RedeemRequest{UserID: userID, Code: "not-a-code", SourceAddress: "1.2.3.4", UserAgent: "test"})

	reason, _ := ReasonOf(err)
	assert.Equal(t, ReasonInvalidCode, reason)
	require.Len(t, lim.failures, 1)
	assert.Equal(t, fraud.Attempt{UserID: userID, SourceAddress: "1.2.3.4", UserAgent: "test", Code: "not-a-code", Reason: "invalid_code"}, lim.failures[0])
}

func TestRefusalStoresValidUTF8ForMultibytePadding(t *testing.T) {
	lim := &stubLimiter{}
	svc := NewService(nil, nil, nil, lim, nil, nil)
	// 20 ASCII bytes plus 15 three-byte spaces; byte 64 falls inside the last rune
	code := "ZZZZZ-ZZZ-Z-ZZZZZ-ZZ" + strings.Repeat("\u3000", 15)

	_, err := svc.Redeem(context.Background(), RedeemRequest{UserID: uuid.New(), Code: code})

	reason, _ := ReasonOf(err)
	assert.Equal(t, ReasonInvalidCode, reason)
	require.Len(t, lim.failures, 1)
	stored := lim.failures[0].Code
	assert.True(t, utf8.ValidString(stored))
	assert.Len(t, stored, 62)
	assert.True(t, strings.HasPrefix(code, stored))
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	assert.Equal(t, "ab", truncate("ab", 4))
	assert.Equal(t, "a", truncate("a\u3000", 3))
	assert.Equal(t, "a\u3000", truncate("a\u3000b", 4))
	assert.Equal(t, "ab", truncate("a\xffb", 4))
	assert.Equal(t, "", truncate("\u3000", 2))
}

func TestRefusalFailsClosedWhenRecordingFails(t *testing.T) {
	lim := &stubLimiter{recordErr: errors.New("insert fraud log: invalid byte sequence")}
	svc := NewService(nil, nil, nil, lim, nil, nil)

	_, err := svc.Redeem(context.Background(), RedeemRequest{UserID: uuid.New(), Code: "not-a-code"})

	_, isRefusal := ReasonOf(err)
	assert.False(t, isRefusal)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestRefusalIsRecordedAfterClientDisconnect(t *testing.T) {
	lim := &stubLimiter{}
	svc := NewService(nil, nil, nil, lim, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Redeem(ctx, RedeemRequest{UserID: uuid.New(), Code: "not-a-code"})

	reason, _ := ReasonOf(err)
	assert.Equal(t, ReasonInvalidCode, reason)
	require.Len(t, lim.ctxErrs, 1)
	assert.NoError(t, lim.ctxErrs[0])
}
