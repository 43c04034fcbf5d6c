package notification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingQueue struct {
	mu   sync.Mutex
	sent []*Notification
	err  error
}

func (q *recordingQueue) Enqueue(ctx context.Context, n *Notification) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent = append(q.sent, n)
	return q.err
}

func TestFraudAlertAddressedToAdmins(t *testing.T) {
	q := &recordingQueue{}
	svc := NewService(q)

	svc.NotifyFraudAlert(context.Background(), uuid.New(), "203.0.113.9", 3, true)

	require.Len(t, q.sent, 1)
	n := q.sent[0]
	assert.Equal(t, TypeFraudAlert, n.Type)
	assert.Equal(t, AudienceAdmins, n.Audience)
	assert.Nil(t, n.UserID)
	assert.Contains(t, n.Body, "now blocked")
	assert.NotEqual(t, uuid.Nil, n.ID)
}

func TestDepositMaturedFormatsPayout(t *testing.T) {
	q := &recordingQueue{}
	svc := NewService(q)
	userID := uuid.New()

	svc.NotifyDepositMatured(context.Background(), userID, uuid.New(), decimal.NewFromInt(1040))

	require.Len(t, q.sent, 1)
	assert.Equal(t, &userID, q.sent[0].UserID)
	assert.Equal(t, "1040.00", q.sent[0].Data["payout"])
}

func TestQueueFailureIsSwallowed(t *testing.T) {
	q := &recordingQueue{err: errors.New("redis down")}
	svc := NewService(q)

	assert.NotPanics(t, func() {
		svc.NotifyVoucherRedeemed(context.Background(), uuid.New(), uuid.New(), decimal.NewFromInt(100), decimal.NewFromInt(50))
	})
	assert.Len(t, q.sent, 1)
}

func TestNilQueueFallsBackToLog(t *testing.T) {
	svc := NewService(nil)
	assert.NotPanics(t, func() {
		svc.NotifyReferralBonus(context.Background(), uuid.New(), uuid.New(), decimal.NewFromInt(50))
	})
}
