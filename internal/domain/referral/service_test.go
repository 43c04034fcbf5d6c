package referral_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizarena/economy-api/internal/domain/ledger"
	"github.com/quizarena/economy-api/internal/domain/referral"
	"github.com/quizarena/economy-api/internal/pkg/database/dbtest"
)

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func terms() referral.Terms {
	return referral.Terms{CommissionRate: amt("6"), BonusAmount: amt("50"), QuizThreshold: 10}
}

type env struct {
	db     *sqlx.DB
	ledger *ledger.Service
	svc    *referral.Service
}

func setup(t *testing.T) *env {
	db := dbtest.Open(t, "referral")
	led := ledger.NewService(db, ledger.NewRepository(db))
	svc := referral.NewService(db, referral.NewRepository(db), led, referral.NewDBQuizCounter(db), terms, nil)
	led.Subscribe(svc)
	return &env{db: db, ledger: led, svc: svc}
}

func (e *env) completeQuizzes(t *testing.T, userID uuid.UUID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := e.db.Exec(`INSERT INTO quiz_sessions (id, user_id, status) VALUES ($1, $2, 'completed')`, uuid.New(), userID)
		require.NoError(t, err)
	}
}

func TestRegister(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	referrer, referred := uuid.New(), uuid.New()

	_, err := e.svc.Register(ctx, referrer, referrer)
	assert.ErrorIs(t, err, referral.ErrSelfReferral)

	link, err := e.svc.Register(ctx, referred, referrer)
	require.NoError(t, err)
	assert.True(t, link.CommissionRate.Equal(amt("6")))

	_, err = e.svc.Register(ctx, referred, uuid.New())
	assert.ErrorIs(t, err, referral.ErrAlreadyReferred)

	st, err := e.svc.Stats(ctx, referrer)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalReferrals)
	require.Len(t, st.Referred, 1)
	assert.Equal(t, referred, st.Referred[0].ReferredUserID)

	st, err = e.svc.Stats(ctx, referred)
	require.NoError(t, err)
	require.NotNil(t, st.ReferredBy)
	assert.Equal(t, referrer, *st.ReferredBy)
}

func TestQuizRewardPaysCommissionOnce(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	referrer, referred := uuid.New(), uuid.New()
	_, err := e.svc.Register(ctx, referred, referrer)
	require.NoError(t, err)

	reward, err := e.ledger.Credit(ctx, ledger.Entry{UserID: referred, Coins: amt("100"), Type: ledger.TxTypeQuizReward, ReferenceType: "quiz_session", ReferenceID: "s-1"})
	require.NoError(t, err)

	b, err := e.ledger.GetBalance(ctx, referrer)
	require.NoError(t, err)
	assert.True(t, b.BonusCoins.Equal(amt("6")), b.BonusCoins.String())
	assert.True(t, b.Coins.IsZero())

	// A replayed event must not pay twice.
	require.NoError(t, e.svc.OnCredited(ctx, ledger.CreditedEvent{Transaction: *reward}))

	earnings, err := e.svc.Earnings(ctx, referrer, 10, 0)
	require.NoError(t, err)
	require.Len(t, earnings, 1)
	assert.Equal(t, reward.ID, earnings[0].SourceTransactionID)
	assert.True(t, earnings[0].CommissionEarned.Equal(amt("6")))

	b, err = e.ledger.GetBalance(ctx, referrer)
	require.NoError(t, err)
	assert.True(t, b.BonusCoins.Equal(amt("6")))

	st, err := e.svc.Stats(ctx, referrer)
	require.NoError(t, err)
	assert.True(t, st.TotalCommissionEarned.Equal(amt("6")))
}

func TestCommissionUsesRateAtRegistration(t *testing.T) {
	db := dbtest.Open(t, "referral")
	led := ledger.NewService(db, ledger.NewRepository(db))
	rate := amt("10")
	svc := referral.NewService(db, referral.NewRepository(db), led, referral.NewDBQuizCounter(db), func() referral.Terms {
		return referral.Terms{CommissionRate: rate, BonusAmount: amt("50"), QuizThreshold: 10}
	}, nil)
	led.Subscribe(svc)

	ctx := context.Background()
	referrer, referred := uuid.New(), uuid.New()
	_, err := svc.Register(ctx, referred, referrer)
	require.NoError(t, err)
	rate = amt("1")

	_, err = led.Credit(ctx, ledger.Entry{UserID: referred, Coins: amt("100"), Type: ledger.TxTypeQuizReward})
	require.NoError(t, err)

	b, err := led.GetBalance(ctx, referrer)
	require.NoError(t, err)
	assert.True(t, b.BonusCoins.Equal(amt("10")), b.BonusCoins.String())
}

func TestCommissionsDoNotCascade(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	top, middle, bottom := uuid.New(), uuid.New(), uuid.New()
	_, err := e.svc.Register(ctx, middle, top)
	require.NoError(t, err)
	_, err = e.svc.Register(ctx, bottom, middle)
	require.NoError(t, err)

	_, err = e.ledger.Credit(ctx, ledger.Entry{UserID: bottom, Coins: amt("100"), Type: ledger.TxTypeQuizReward})
	require.NoError(t, err)

	b, err := e.ledger.GetBalance(ctx, middle)
	require.NoError(t, err)
	assert.True(t, b.BonusCoins.Equal(amt("6")))

	b, err = e.ledger.GetBalance(ctx, top)
	require.NoError(t, err)
	assert.True(t, b.Total().IsZero())
}

func TestRegistrationBonusPaidOnceUnderConcurrency(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	referrer, referred := uuid.New(), uuid.New()
	_, err := e.svc.Register(ctx, referred, referrer)
	require.NoError(t, err)

	e.completeQuizzes(t, referred, 9)
	res, err := e.svc.OnQuizCompleted(ctx, referred)
	require.NoError(t, err)
	assert.False(t, res.Paid)
	assert.Equal(t, 9, res.CompletedQuiz)

	e.completeQuizzes(t, referred, 2)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		paid int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.svc.OnQuizCompleted(ctx, referred)
			if err == nil && res.Paid {
				mu.Lock()
				paid++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, paid)

	for _, id := range []uuid.UUID{referrer, referred} {
		b, err := e.ledger.GetBalance(ctx, id)
		require.NoError(t, err)
		assert.True(t, b.BonusCoins.Equal(amt("50")), b.BonusCoins.String())
	}

	st, err := e.svc.Stats(ctx, referred)
	require.NoError(t, err)
	assert.True(t, st.RegistrationBonusPaid)
	assert.NotNil(t, st.RegistrationBonusPaidAt)
}

func TestBonusIgnoresUsersWithoutReferrer(t *testing.T) {
	e := setup(t)
	userID := uuid.New()
	e.completeQuizzes(t, userID, 12)

	res, err := e.svc.OnQuizCompleted(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, res.Paid)
	assert.Nil(t, res.ReferrerUserID)
}

func TestBackfillPaysMissedCommissions(t *testing.T) {
	db := dbtest.Open(t, "referral")
	led := ledger.NewService(db, ledger.NewRepository(db))
	svc := referral.NewService(db, referral.NewRepository(db), led, referral.NewDBQuizCounter(db), terms, nil)

	ctx := context.Background()
	referrer, referred := uuid.New(), uuid.New()
	_, err := svc.Register(ctx, referred, referrer)
	require.NoError(t, err)

	// Not subscribed: the listener never sees these credits.
	for i := 0; i < 3; i++ {
		_, err := led.Credit(ctx, ledger.Entry{UserID: referred, Coins: amt("50"), Type: ledger.TxTypeQuizReward})
		require.NoError(t, err)
	}

	n, err := svc.BackfillCommissions(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = svc.BackfillCommissions(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	b, err := led.GetBalance(ctx, referrer)
	require.NoError(t, err)
	assert.True(t, b.BonusCoins.Equal(amt("9")), b.BonusCoins.String())
}
