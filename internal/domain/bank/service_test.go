package bank_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizarena/economy-api/internal/domain/bank"
	"github.com/quizarena/economy-api/internal/domain/ledger"
	"github.com/quizarena/economy-api/internal/pkg/apperr"
	"github.com/quizarena/economy-api/internal/pkg/database/dbtest"
)

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func terms() bank.Terms {
	return bank.Terms{
		InterestRate: amt("4"),
		PenaltyRate:  amt("12"),
		DurationDays: 30,
		MinDeposit:   amt("100"),
		MaxDeposit:   amt("1000000"),
	}
}

type matured struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (m *matured) NotifyDepositMatured(_ context.Context, _, depositID uuid.UUID, _ decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = append(m.ids, depositID)
}

type env struct {
	db       *sqlx.DB
	ledger   *ledger.Service
	svc      *bank.Service
	notifier *matured
}

func setup(t *testing.T) *env {
	db := dbtest.Open(t, "bank")
	led := ledger.NewService(db, ledger.NewRepository(db))
	n := &matured{}
	svc := bank.NewService(db, bank.NewRepository(db), led, terms, n)
	return &env{db: db, ledger: led, svc: svc, notifier: n}
}

func (e *env) fund(t *testing.T, userID uuid.UUID, coins, bonus string) {
	t.Helper()
	_, err := e.ledger.Credit(context.Background(), ledger.Entry{UserID: userID, Coins: amt(coins), BonusCoins: amt(bonus), Type: ledger.TxTypeQuizReward})
	require.NoError(t, err)
}

func (e *env) mature(t *testing.T, id uuid.UUID) {
	t.Helper()
	_, err := e.db.Exec(`UPDATE bank_deposits SET maturity_date = now() - interval '1 minute' WHERE id = $1`, id)
	require.NoError(t, err)
}

func TestCreateDepositValidation(t *testing.T) {
	svc := bank.NewService(nil, nil, nil, terms, nil)
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.CreateDeposit(ctx, userID, amt("99.99"), decimal.Zero)
	assert.ErrorIs(t, err, bank.ErrOutOfRange)

	_, err = svc.CreateDeposit(ctx, userID, amt("1000000.01"), decimal.Zero)
	assert.ErrorIs(t, err, bank.ErrOutOfRange)

	_, err = svc.CreateDeposit(ctx, userID, amt("-5"), amt("200"))
	assert.ErrorIs(t, err, bank.ErrInvalidAmount)

	_, err = svc.CreateDeposit(ctx, uuid.Nil, amt("500"), decimal.Zero)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestDepositEarlyWithdrawal(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	userID := uuid.New()
	e.fund(t, userID, "1000", "0")

	d, err := e.svc.CreateDeposit(ctx, userID, amt("1000"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, d.InterestEarned.Equal(amt("40")))
	assert.Equal(t, 30, d.DurationDays)

	b, err := e.ledger.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, b.Total().IsZero())

	w, err := e.svc.WithdrawEarly(ctx, userID, d.ID)
	require.NoError(t, err)
	assert.True(t, w.Payout.Equal(amt("880")))
	assert.True(t, w.Penalty.Equal(amt("120")))
	assert.Equal(t, bank.StatusCancelled, w.Deposit.Status)

	b, err = e.ledger.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, b.Coins.Equal(amt("880")), b.Coins.String())

	txs, err := e.svc.Transactions(ctx, userID, d.ID)
	require.NoError(t, err)
	types := make([]bank.TxType, 0, len(txs))
	for _, tx := range txs {
		types = append(types, tx.Type)
	}
	assert.ElementsMatch(t, []bank.TxType{bank.TxDeposit, bank.TxPrincipalReturn, bank.TxPenalty}, types)

	_, err = e.svc.WithdrawEarly(ctx, userID, d.ID)
	assert.ErrorIs(t, err, bank.ErrClosed)

	res, err := e.ledger.Replay(ctx, userID)
	require.NoError(t, err)
	assert.True(t, res.Consistent, res.Problem)
}

func TestDepositRequiresFunds(t *testing.T) {
	e := setup(t)
	userID := uuid.New()
	e.fund(t, userID, "150", "0")

	_, err := e.svc.CreateDeposit(context.Background(), userID, amt("200"), decimal.Zero)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	ds, err := e.svc.List(context.Background(), userID, nil)
	require.NoError(t, err)
	assert.Empty(t, ds)
}

func TestDepositOwnership(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	owner := uuid.New()
	e.fund(t, owner, "500", "0")

	d, err := e.svc.CreateDeposit(ctx, owner, amt("500"), decimal.Zero)
	require.NoError(t, err)

	_, err = e.svc.WithdrawEarly(ctx, uuid.New(), d.ID)
	assert.ErrorIs(t, err, bank.ErrNotFound)
	_, err = e.svc.Get(ctx, uuid.New(), d.ID)
	assert.ErrorIs(t, err, bank.ErrNotFound)
}

func TestMaturedWithdrawalAndSweep(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	userID := uuid.New()
	e.fund(t, userID, "600", "400")

	d, err := e.svc.CreateDeposit(ctx, userID, amt("600"), amt("400"))
	require.NoError(t, err)

	_, err = e.svc.WithdrawMatured(ctx, userID, d.ID)
	assert.ErrorIs(t, err, bank.ErrNotMatured)

	e.mature(t, d.ID)

	_, err = e.svc.WithdrawEarly(ctx, userID, d.ID)
	assert.ErrorIs(t, err, bank.ErrAlreadyMatured)

	swept, err := e.svc.SweepMatured(ctx)
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, bank.StatusMatured, swept[0].Status)
	assert.Equal(t, []uuid.UUID{d.ID}, e.notifier.ids)

	again, err := e.svc.SweepMatured(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)

	w, err := e.svc.WithdrawMatured(ctx, userID, d.ID)
	require.NoError(t, err)
	assert.True(t, w.Payout.Equal(amt("1040")))
	assert.True(t, w.Coins.Equal(amt("624")), w.Coins.String())
	assert.True(t, w.BonusCoins.Equal(amt("416")), w.BonusCoins.String())
	assert.Equal(t, bank.StatusCompleted, w.Deposit.Status)

	b, err := e.ledger.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, b.Coins.Equal(amt("624")))
	assert.True(t, b.BonusCoins.Equal(amt("416")))
}

func TestLockedDepositCannotBeWithdrawnOrSwept(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	userID := uuid.New()
	e.fund(t, userID, "300", "0")

	d, err := e.svc.CreateDeposit(ctx, userID, amt("300"), decimal.Zero)
	require.NoError(t, err)

	_, err = e.svc.SetLocked(ctx, uuid.New(), d.ID, true)
	require.NoError(t, err)

	_, err = e.svc.WithdrawEarly(ctx, userID, d.ID)
	assert.ErrorIs(t, err, bank.ErrLocked)

	e.mature(t, d.ID)
	swept, err := e.svc.SweepMatured(ctx)
	require.NoError(t, err)
	assert.Empty(t, swept)

	_, err = e.svc.SetLocked(ctx, uuid.New(), d.ID, false)
	require.NoError(t, err)
	_, err = e.svc.WithdrawMatured(ctx, userID, d.ID)
	require.NoError(t, err)

	_, err = e.svc.SetLocked(ctx, uuid.New(), d.ID, true)
	assert.ErrorIs(t, err, bank.ErrClosed)
	_, err = e.svc.SetLocked(ctx, uuid.New(), uuid.New(), true)
	assert.ErrorIs(t, err, bank.ErrNotFound)
}

func TestConcurrentWithdrawalsPayOnce(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	userID := uuid.New()
	e.fund(t, userID, "1000", "0")

	d, err := e.svc.CreateDeposit(ctx, userID, amt("1000"), decimal.Zero)
	require.NoError(t, err)
	e.mature(t, d.ID)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = e.svc.WithdrawMatured(ctx, userID, d.ID)
			} else {
				_, err = e.svc.SweepMatured(ctx)
				if err == nil {
					return
				}
			}
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, ok)

	b, err := e.ledger.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, b.Coins.Equal(amt("1040")))

	var withdrawnAt time.Time
	require.NoError(t, e.db.Get(&withdrawnAt, `SELECT withdrawn_at FROM bank_deposits WHERE id = $1`, d.ID))
	assert.False(t, withdrawnAt.IsZero())
}

// penaltyFails passes every call through except the penalty debit, which it
// performs and then fails.
type penaltyFails struct {
	*ledger.Service
}

func (l penaltyFails) DebitTx(ctx context.Context, tx *sqlx.Tx, en ledger.Entry) (*ledger.Transaction, error) {
	t, err := l.Service.DebitTx(ctx, tx, en)
	if err != nil {
		return nil, err
	}
	if en.Type == ledger.TxTypeBankPenalty {
		return nil, errors.New("ledger unavailable")
	}
	return t, nil
}

func TestEarlyWithdrawalRollsBackWhenPenaltyFails(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	userID := uuid.New()
	e.fund(t, userID, "1000", "0")

	d, err := e.svc.CreateDeposit(ctx, userID, amt("1000"), decimal.Zero)
	require.NoError(t, err)

	failing := bank.NewService(e.db, bank.NewRepository(e.db), penaltyFails{e.ledger}, terms, nil)
	_, err = failing.WithdrawEarly(ctx, userID, d.ID)
	require.Error(t, err)

	b, err := e.ledger.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.True(t, b.Total().IsZero(), b.Total().String())

	stored, err := e.svc.Get(ctx, userID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, bank.StatusActive, stored.Status)
	assert.Nil(t, stored.WithdrawnAt)

	txs, err := e.svc.Transactions(ctx, userID, d.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, bank.TxDeposit, txs[0].Type)

	led, err := e.ledger.ListTransactions(ctx, userID, 50, 0)
	require.NoError(t, err)
	assert.Len(t, led, 2)

	// the deposit is still withdrawable through a healthy ledger
	w, err := e.svc.WithdrawEarly(ctx, userID, d.ID)
	require.NoError(t, err)
	assert.True(t, w.Payout.Equal(amt("880")))
}
